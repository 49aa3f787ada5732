package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shirogane/cardvision/internal/models"
	"github.com/shirogane/cardvision/internal/pipeline"
	"github.com/shirogane/cardvision/internal/search"
	"github.com/shirogane/cardvision/internal/storage"
)

// maxUploadBytes bounds search-by-image uploads.
const maxUploadBytes = 16 << 20

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		if query.Query == "" {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "multipart field 'image' is required")
		return
	}
	defer file.Close()

	// Spool to a temp file; the encoder reads from a path.
	tmp, err := os.CreateTemp("", "cardvision-query-"+uuid.New().String())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "temp file: "+err.Error())
		return
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		s.respondError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}
	tmp.Close()

	limit := queryInt(r, "limit")
	response, err := s.engine.SearchByImage(r.Context(), tmp.Name(), limit)
	if err != nil {
		s.logger.Error("image search failed", zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit")
	response, err := s.engine.SimilarTo(r.Context(), id, limit)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.respondError(w, http.StatusNotFound, "card not found")
		case errors.Is(err, search.ErrNoVector):
			s.respondError(w, http.StatusConflict, "card has no fingerprint yet; run an embedding pass")
		default:
			s.logger.Error("similar search failed", zap.String("card_id", id), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleNameSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	response, err := s.engine.SearchByName(r.Context(), q, queryInt(r, "limit"))
	if err != nil {
		s.logger.Error("name search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type listCardsResponse struct {
	Cards  []*models.Card `json:"cards"`
	Total  int64          `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// handleListCards pages through the catalog in name order.
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit")
	if limit <= 0 {
		limit = s.cfg.Search.DefaultLimit
	}
	if limit > s.cfg.Search.MaxLimit {
		limit = s.cfg.Search.MaxLimit
	}
	offset := queryInt(r, "offset")
	if offset < 0 {
		offset = 0
	}

	cards, err := s.storage.ListCards(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cards == nil {
		cards = []*models.Card{}
	}
	total, err := s.storage.CountCards(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, listCardsResponse{
		Cards:  cards,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.storage.GetCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "card not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, card)
}

type embedRunRequest struct {
	Kind models.VectorKind `json:"kind"`
}

// handleEmbeddingsRun starts a background embedding run and returns 202.
// Only one run may be active at a time.
func (s *Server) handleEmbeddingsRun(w http.ResponseWriter, r *http.Request) {
	if s.encoders == nil {
		s.respondError(w, http.StatusNotImplemented, "no encoder available in this build")
		return
	}
	var req embedRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Kind.Valid() {
		s.respondError(w, http.StatusBadRequest, "kind must be 'feature' or 'concept'")
		return
	}

	s.embedMu.Lock()
	if s.embedRunning {
		s.embedMu.Unlock()
		s.respondError(w, http.StatusConflict, "an embedding run is already in progress")
		return
	}
	s.embedRunning = true
	s.embedMu.Unlock()

	kind := req.Kind
	go func() {
		defer func() {
			s.embedMu.Lock()
			s.embedRunning = false
			s.embedMu.Unlock()
		}()
		enc, err := s.encoders(kind)
		if err != nil {
			s.logger.Error("embedding run: encoder construction failed", zap.Error(err))
			return
		}
		defer enc.Close()
		// Detached from the request context: the run outlives the 202 response.
		result, err := s.pipe.Run(context.Background(), enc, pipeline.Options{
			Kind:        kind,
			BatchSize:   s.cfg.Embed.BatchSize,
			Concurrency: s.cfg.Embed.Concurrency,
		})
		if err != nil {
			s.logger.Error("embedding run aborted", zap.Error(err))
		}
		if result != nil {
			s.embedMu.Lock()
			s.lastEmbed = result
			s.embedMu.Unlock()
			if result.Processed > 0 {
				s.engine.InvalidateCorpus()
			}
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"kind":   string(kind),
	})
}

type embeddingsStatusResponse struct {
	Running bool                    `json:"running"`
	Kinds   []models.EmbeddingStats `json:"kinds"`
	LastRun *pipeline.Result        `json:"last_run,omitempty"`
}

func (s *Server) handleEmbeddingsStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := s.storage.CountCards(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	withSource, err := s.storage.CountWithIdentifier(ctx)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := embeddingsStatusResponse{}
	for _, kind := range []models.VectorKind{models.VectorKindFeature, models.VectorKindConcept} {
		withVector, err := s.storage.CountWithVector(ctx, kind)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		stats := models.EmbeddingStats{
			Kind:       kind,
			Total:      total,
			WithSource: withSource,
			WithVector: withVector,
		}
		if withSource > 0 {
			stats.PercentComplete = 100 * float64(withVector) / float64(withSource)
		}
		resp.Kinds = append(resp.Kinds, stats)
	}

	s.embedMu.Lock()
	resp.Running = s.embedRunning
	resp.LastRun = s.lastEmbed
	s.embedMu.Unlock()
	s.respondJSON(w, http.StatusOK, resp)
}

type migrateRequest struct {
	Kind  models.VectorKind `json:"kind"`
	Limit int               `json:"limit,omitempty"`
}

func (s *Server) handleVectorsMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Kind.Valid() {
		s.respondError(w, http.StatusBadRequest, "kind must be 'feature' or 'concept'")
		return
	}
	result, err := s.pipe.MigrateVectors(r.Context(), req.Kind, req.Limit)
	if err != nil {
		s.logger.Error("vector migration failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result.Rewritten > 0 {
		s.engine.InvalidateCorpus()
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.CollectStats()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	live, err := s.storage.ListIdentifiers(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	removed, err := s.cache.Cleanup(r.Context(), live)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// queryInt reads an integer query parameter, 0 when absent or malformed.
func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}
