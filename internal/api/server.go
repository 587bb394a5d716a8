package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillback/quillback/internal/embedjob"
	"github.com/quillback/quillback/internal/engine"
	"github.com/quillback/quillback/internal/journal"
	"github.com/quillback/quillback/internal/retrieval"
	"github.com/quillback/quillback/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Searcher abstracts semantic search for the API layer.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.Result, error)
}

// QA abstracts grounded question answering.
type QA interface {
	Answer(ctx context.Context, query string) (string, error)
}

// JobManager abstracts the embedding job for the API layer.
type JobManager interface {
	Start(entries []storage.Entry) (string, error)
	Status() embedjob.Snapshot
}

// ImportRunner abstracts the filesystem importer.
type ImportRunner interface {
	Run() (journal.Result, error)
}

// VectorDeleter evicts an entry's embedding when the entry is deleted.
type VectorDeleter interface {
	Delete(entryID int64)
}

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store    *storage.Store
	Importer ImportRunner
	Jobs     JobManager
	Searcher Searcher
	QA       QA
	Vectors  VectorDeleter // optional; if nil, vector cleanup is skipped on delete
	Token    string        // optional bearer token; empty disables auth
	TopK     int           // default semantic search result count
}

// NewHandler builds the HTTP router. /health stays unauthenticated so
// liveness probes work without the token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		if deps.Token != "" {
			api.Use(BearerAuth(deps.Token))
		}

		api.Post("/import", handleImport(deps))
		api.Get("/import/status", handleImportStatus(deps))
		api.Post("/search/semantic", handleSemanticSearch(deps))
		api.Post("/generate/qa", handleGenerateQA(deps))
		api.Get("/search", handleKeywordSearch(deps))
		api.Get("/entries", handleListEntries(deps))
		api.Get("/entries/{id}", handleGetEntry(deps))
		api.Delete("/entries/{id}", handleDeleteEntry(deps))
	})

	return r
}

func handleImport(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Reject up front if a job is running; no point scanning files.
		if deps.Jobs.Status().Status == embedjob.StatusProcessing {
			httpError(w, http.StatusConflict, "conflict", "an import is already running; poll /api/import/status")
			return
		}

		res, err := deps.Importer.Run()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "import failed: %v", err)
			return
		}

		entries, err := deps.Store.ListEntries()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing entries: %v", err)
			return
		}

		jobID, err := deps.Jobs.Start(entries)
		if errors.Is(err, embedjob.ErrAlreadyRunning) {
			httpError(w, http.StatusConflict, "conflict", "an import is already running; poll /api/import/status")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "starting embedding job: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": jobID,
			"message": fmt.Sprintf("Imported %d new entries, skipped %d files. Embedding started.",
				res.Imported, res.Skipped),
		})
	}
}

type importStatusResponse struct {
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Total     int    `json:"total"`
	JobID     string `json:"job_id,omitempty"`
	StartedAt string `json:"started_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

func handleImportStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Jobs.Status()
		resp := importStatusResponse{
			Status:   string(snap.Status),
			Progress: snap.Completed,
			Total:    snap.Total,
			JobID:    snap.JobID,
			Error:    snap.Error,
		}
		if !snap.StartedAt.IsZero() {
			resp.StartedAt = snap.StartedAt.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func handleSemanticSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		limit := req.Limit
		if limit <= 0 {
			limit = deps.TopK
		}
		if limit > 50 {
			limit = 50
		}

		results, err := deps.Searcher.Search(r.Context(), req.Query, limit)
		if errors.Is(err, retrieval.ErrUnavailable) {
			// Nothing embedded yet: an empty result, not a failure.
			writeJSON(w, http.StatusOK, []retrieval.Result{})
			return
		}
		if errors.Is(err, engine.ErrEmbedding) {
			httpError(w, http.StatusBadGateway, "embedding_error", "embedding query: %v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}

		if results == nil {
			results = []retrieval.Result{}
		}
		writeJSON(w, http.StatusOK, results)
	}
}

type qaRequest struct {
	Query string `json:"query"`
}

func handleGenerateQA(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req qaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		result, err := deps.QA.Answer(r.Context(), req.Query)
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrEmbedding):
				httpError(w, http.StatusBadGateway, "embedding_error", "embedding query: %v", err)
			default:
				// Generation failures and timeouts land here; the
				// caller re-submits, nothing is retried server-side.
				httpError(w, http.StatusBadGateway, "generation_error", "generation failed: %v", err)
			}
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"answer": result})
	}
}

func handleKeywordSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 20, 100)

		entries, err := deps.Store.SearchEntries(q, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleListEntries(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.Store.ListEntries()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing entries: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleGetEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid entry id")
			return
		}

		entry, err := deps.Store.GetEntry(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting entry: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func handleDeleteEntry(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid entry id")
			return
		}

		err = deps.Store.DeleteEntry(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "entry not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting entry: %v", err)
			return
		}

		if deps.Vectors != nil {
			deps.Vectors.Delete(id)
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
