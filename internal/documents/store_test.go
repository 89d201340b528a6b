package documents

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetdash/fleetdash/internal/shared"
)

var pdfBody = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func newTestStore(t *testing.T, max int64) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), "http://localhost:8080/documents/", max)
	require.NoError(t, err)
	return store
}

func TestUploadStoresPDF(t *testing.T) {
	store := newTestStore(t, 0)

	url, err := store.Upload(context.Background(), bytes.NewReader(pdfBody), Metadata{
		QuoteID:     7,
		Stage:       "preDeliveryJobCard",
		Filename:    "jobcard.pdf",
		ContentType: "application/pdf",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/documents/"))
	assert.True(t, strings.HasSuffix(url, ".pdf"))

	name := strings.TrimPrefix(url, "http://localhost:8080/documents/")
	data, err := os.ReadFile(filepath.Join(store.Dir(), name))
	require.NoError(t, err)
	assert.Equal(t, pdfBody, data)
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	store := newTestStore(t, 0)

	_, err := store.Upload(context.Background(), strings.NewReader("just some plain text"), Metadata{Filename: "x.txt"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadRejectsMismatchedDeclaredType(t *testing.T) {
	store := newTestStore(t, 0)

	_, err := store.Upload(context.Background(), bytes.NewReader(pdfBody), Metadata{ContentType: "image/png"})
	require.Error(t, err)
	assert.Equal(t, []string{"file"}, shared.ValidationFields(err))
}

func TestUploadEnforcesSizeLimit(t *testing.T) {
	store := newTestStore(t, 64)

	big := append(append([]byte{}, pdfBody...), bytes.Repeat([]byte("x"), 256)...)
	_, err := store.Upload(context.Background(), bytes.NewReader(big), Metadata{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadEmpty(t *testing.T) {
	store := newTestStore(t, 0)
	_, err := store.Upload(context.Background(), bytes.NewReader(nil), Metadata{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestHandlerServesStoredDocument(t *testing.T) {
	store := newTestStore(t, 0)
	url, err := store.Upload(context.Background(), bytes.NewReader(pdfBody), Metadata{})
	require.NoError(t, err)
	name := url[strings.LastIndex(url, "/")+1:]

	rr := httptest.NewRecorder()
	store.Handler("/documents/").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents/"+name, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
}

func TestHandlerHidesDirectoryListing(t *testing.T) {
	store := newTestStore(t, 0)
	rr := httptest.NewRecorder()
	store.Handler("/documents").ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/documents/", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
