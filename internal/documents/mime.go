package documents

import (
	"log"
	"mime"
	"net/http"
	"strings"
)

func init() {
	ensureMimeType(".pdf", "application/pdf")
	ensureMimeType(".png", "image/png")
	ensureMimeType(".jpg", "image/jpeg")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("documents: failed to register MIME type for %s: %v", ext, err)
	}
}

// Handler serves stored documents. Mount it under the prefix used in the base URL.
func (s *Store) Handler(prefix string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(s.dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no directory listings
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
