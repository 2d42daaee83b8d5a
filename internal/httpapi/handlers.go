package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
	"github.com/telo-ai/server/pkg/autorag"
	logx "github.com/telo-ai/server/pkg/logger"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// handleSearch proxies a raw retrieval query.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		http.Error(w, "Missing query parameter", http.StatusBadRequest)
		return
	}

	resp, err := s.deps.Searcher.Search(r.Context(), autorag.SearchRequest{Query: query})
	if err != nil {
		logx.Ctx(r.Context()).Error().Err(err).Str("query", query).Msg("Search failed")
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "search failed", Code: errx.CodeDependency})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleParser back-fills the parsed text cache from the bucket.
func (s *Server) handleParser(w http.ResponseWriter, r *http.Request) {
	if s.deps.Parser == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "document parser is not configured"})
		return
	}
	report, err := s.deps.Parser.Backfill(r.Context())
	if err != nil {
		logx.Ctx(r.Context()).Error().Err(err).Msg("Back-fill failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type documentItem struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Uploaded time.Time `json:"uploaded"`
	URL      string    `json:"url"`
}

type documentPage struct {
	Objects   []documentItem `json:"objects"`
	Cursor    string         `json:"cursor,omitempty"`
	Truncated bool           `json:"truncated"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bucket == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "document bucket is not configured"})
		return
	}
	limit := defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, errx.BadRequest("limit must be a positive integer"))
			return
		}
		limit = min(n, maxPageSize)
	}

	page, err := s.deps.Bucket.List(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		logx.Ctx(r.Context()).Error().Err(err).Msg("Failed to list documents")
		writeError(w, errx.WrapStorage(err))
		return
	}

	out := documentPage{Objects: make([]documentItem, 0, len(page.Objects)), Cursor: page.Cursor, Truncated: page.Truncated}
	for _, o := range page.Objects {
		out.Objects = append(out.Objects, documentItem{Key: o.Key, Size: o.Size, Uploaded: o.Uploaded, URL: s.deps.Bucket.PublicURL(o.Key)})
	}
	writeJSON(w, http.StatusOK, out)
}

type saveSessionRequest struct {
	ID       string            `json:"id,omitempty"`
	Messages []model.UIMessage `json:"messages"`
}

type saveSessionResponse struct {
	ID string `json:"id"`
}

// handleSaveSession stores a transcript, generating a UUIDv7 when no id is given.
func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	var req saveSessionRequest
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, err)
		return
	}
	id := req.ID
	if id == "" {
		id = newID()
	} else if _, err := uuid.Parse(id); err != nil {
		writeError(w, errx.BadRequest("id must be a UUID"))
		return
	}
	if req.Messages == nil {
		writeError(w, errx.BadRequest("messages are required"))
		return
	}

	if err := s.deps.Messages.SaveSession(r.Context(), id, req.Messages); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saveSessionResponse{ID: id})
}

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, errx.NotFound("session not found"))
		return
	}
	sess, err := s.deps.Messages.LoadSession(r.Context(), id)
	if err != nil {
		if errx.CodeOf(err) == errx.CodeNotFound {
			writeError(w, errx.NotFound("session not found"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
