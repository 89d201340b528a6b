// Package documents stores workflow stage attachments (job cards, licence
// documents) and hands back the reference URL kept on the stage payload.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/fleetdash/fleetdash/internal/shared"
)

// DefaultMaxBytes caps a single upload when no limit is configured.
const DefaultMaxBytes int64 = 10 << 20

const sniffLen = 3072

var allowedTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// Metadata describes an uploaded document.
type Metadata struct {
	QuoteID     int64
	Stage       string
	Filename    string
	ContentType string
}

// Store writes documents to a local directory served under baseURL.
type Store struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewStore prepares the storage directory.
func NewStore(dir, baseURL string, maxBytes int64) (*Store, error) {
	if dir == "" {
		return nil, errors.New("documents: storage dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("documents: create dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// Upload validates the payload type, writes it under a random name and
// returns its public URL.
func (s *Store) Upload(ctx context.Context, r io.Reader, meta Metadata) (string, error) {
	if r == nil {
		return "", shared.NewValidationError("document body required", "file")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("documents: read: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", shared.NewValidationError("document is empty", "file")
	}

	detected := mimetype.Detect(head)
	ext, ok := allowedType(detected)
	if !ok {
		return "", shared.NewValidationError(fmt.Sprintf("content type %s not allowed", detected.String()), "file")
	}
	if meta.ContentType != "" {
		declared := strings.TrimSpace(strings.SplitN(meta.ContentType, ";", 2)[0])
		if _, known := allowedTypes[declared]; !known || !detected.Is(declared) {
			return "", shared.NewValidationError(fmt.Sprintf("declared type %s does not match content", declared), "file")
		}
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("documents: create: %w", err)
	}

	body := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(f, io.LimitReader(body, s.maxBytes+1))
	closeErr := f.Close()
	if err == nil && written > s.maxBytes {
		err = fmt.Errorf("%w: %d bytes", ErrTooLarge, s.maxBytes)
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return "", shared.NewValidationError(err.Error(), "file")
		}
		return "", fmt.Errorf("documents: write: %w", err)
	}
	return s.baseURL + "/" + name, nil
}

func allowedType(m *mimetype.MIME) (string, bool) {
	for typ, ext := range allowedTypes {
		if m.Is(typ) {
			return ext, true
		}
	}
	return "", false
}
