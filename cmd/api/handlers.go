package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/engine/graph"
)

type searcher interface {
	Search(ctx context.Context, query string, cfg domain.SearchConfig) (*domain.SearchResponse, error)
	GetPage(ctx context.Context, pageID string) (*domain.Page, []domain.Chunk, error)
}

type catalog interface {
	ListSpaces(ctx context.Context) ([]domain.SpaceSummary, error)
	DeleteBySpace(ctx context.Context, spaceKey string) (int, error)
	GetStats(ctx context.Context) (domain.Stats, error)
}

type hierarchy interface {
	Children(ctx context.Context, pageID string) ([]graph.PageNode, error)
	Ancestors(ctx context.Context, pageID string) ([]graph.PageNode, error)
	SpacePages(ctx context.Context, spaceKey string, offset, limit int) ([]graph.PageNode, error)
}

type cacheClearer interface {
	Clear()
}

// server holds the handler dependencies. graph and cache may be nil.
type server struct {
	search searcher
	store  catalog
	graph  hierarchy
	cache  cacheClearer
	log    *slog.Logger
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/pages/{id}", s.handlePage)
	mux.HandleFunc("GET /api/pages/{id}/children", s.handleChildren)
	mux.HandleFunc("GET /api/pages/{id}/ancestors", s.handleAncestors)
	mux.HandleFunc("GET /api/spaces", s.handleSpaces)
	mux.HandleFunc("GET /api/spaces/{key}/pages", s.handleSpacePages)
	mux.HandleFunc("DELETE /api/spaces/{key}", s.handleDeleteSpace)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	var ve *domain.ValidationError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrRetrieval):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.search.Search(r.Context(), req.Query, req.Config())
	if err != nil {
		code := statusFor(err)
		if code >= http.StatusInternalServerError {
			s.log.Error("search failed", "err", err)
		}
		writeError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type pageResponse struct {
	Page   *domain.Page   `json:"page"`
	Chunks []domain.Chunk `json:"chunks"`
}

func (s *server) handlePage(w http.ResponseWriter, r *http.Request) {
	page, chunks, err := s.search.GetPage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.log.Error("get page failed", "page_id", r.PathValue("id"), "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	if page == nil {
		writeError(w, http.StatusNotFound, "page not indexed")
		return
	}
	writeJSON(w, http.StatusOK, pageResponse{Page: page, Chunks: chunks})
}

func (s *server) handleChildren(w http.ResponseWriter, r *http.Request) {
	s.handleHierarchy(w, r, "children", hierarchy.Children)
}

func (s *server) handleAncestors(w http.ResponseWriter, r *http.Request) {
	s.handleHierarchy(w, r, "ancestors", hierarchy.Ancestors)
}

func (s *server) handleHierarchy(w http.ResponseWriter, r *http.Request, key string, get func(hierarchy, context.Context, string) ([]graph.PageNode, error)) {
	if s.graph == nil {
		writeError(w, http.StatusNotImplemented, "page hierarchy is not configured")
		return
	}
	id := r.PathValue("id")
	nodes, err := get(s.graph, r.Context(), id)
	if err != nil {
		s.log.Error("hierarchy lookup failed", "page_id", id, "relation", key, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page_id": id, key: nodes})
}

func (s *server) handleSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := s.store.ListSpaces(r.Context())
	if err != nil {
		s.log.Error("list spaces failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}

func (s *server) handleSpacePages(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		writeError(w, http.StatusNotImplemented, "page hierarchy is not configured")
		return
	}
	key := r.PathValue("key")
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 || limit < 0 {
		writeError(w, http.StatusBadRequest, "offset and limit must be non-negative")
		return
	}
	pages, err := s.graph.SpacePages(r.Context(), key, offset, limit)
	if err != nil {
		s.log.Error("space pages failed", "space_key", key, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"space_key": key, "pages": pages})
}

func (s *server) handleDeleteSpace(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	n, err := s.store.DeleteBySpace(r.Context(), key)
	if err != nil {
		s.log.Error("delete space failed", "space_key", key, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	// Cached responses may quote the deleted chunks.
	if s.cache != nil && n > 0 {
		s.cache.Clear()
	}
	s.log.Info("space deleted", "space_key", key, "chunks", n)
	writeJSON(w, http.StatusOK, map[string]any{"space_key": key, "deleted": n})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.log.Error("stats failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
