package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/imagecache"
)

// handleImage serves card artwork through the cache gateway: a miss triggers
// the (coalesced) remote download, then the file is served with a strong
// ETag so clients revalidate to 304 instead of re-downloading. Cached images
// never change for a given identifier, hence immutable.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	rt := imagecache.ResourceType(chi.URLParam(r, "type"))
	file := chi.URLParam(r, "file")
	if !strings.HasSuffix(file, ".jpg") {
		http.NotFound(w, r)
		return
	}
	identifier := strings.TrimSuffix(file, ".jpg")

	path, err := s.cache.Resolve(r.Context(), rt, identifier)
	if err != nil {
		switch {
		case errors.Is(err, imagecache.ErrUnknownType), errors.Is(err, imagecache.ErrEmptyIdentifier):
			http.NotFound(w, r)
		default:
			s.logger.Warn("image resolve failed",
				zap.String("type", string(rt)),
				zap.String("identifier", identifier),
				zap.Error(err),
			)
			s.respondError(w, http.StatusBadGateway, "image unavailable")
		}
		return
	}

	f, err := os.Open(path)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "open image: "+err.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "stat image: "+err.Error())
		return
	}

	w.Header().Set("ETag", fmt.Sprintf(`"%x-%x"`, info.Size(), info.ModTime().UnixNano()))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("Content-Type", "image/jpeg")
	// ServeContent handles If-None-Match / If-Modified-Since and answers 304.
	http.ServeContent(w, r, file, info.ModTime(), f)
}
