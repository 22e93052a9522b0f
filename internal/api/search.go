package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/docket-crawler/internal/crawler"
	"github.com/JakeFAU/docket-crawler/internal/pipeline"
)

const genericSearchError = "search failed, please try again later"

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	RunID   string                   `json:"run_id"`
	Query   string                   `json:"query"`
	Records []crawler.FinalRecord    `json:"records"`
	Sources []pipeline.SourceSummary `json:"sources"`
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageData{})
}

// searchForm handles POST /search from the HTML form (field "name").
func (s *Server) searchForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusBadRequest, pageData{Error: "invalid form"})
		return
	}
	query := r.PostFormValue("name")
	run, status, msg := s.search(r, query)
	if msg != "" {
		s.render(w, r, status, pageData{Query: query, Error: msg})
		return
	}
	s.render(w, r, http.StatusOK, pageData{Query: run.Query, Run: run})
}

// searchJSON handles POST /v1/search.
func (s *Server) searchJSON(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	run, status, msg := s.search(r, req.Query)
	if msg != "" {
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{
		RunID:   run.ID.String(),
		Query:   run.Query,
		Records: run.Records,
		Sources: run.Sources,
	})
}

// search runs the pipeline and maps failures to a status and a user-facing
// message. Validation messages are shown verbatim; anything else is generic.
func (s *Server) search(r *http.Request, query string) (*pipeline.Run, int, string) {
	if s.searcher == nil {
		return nil, http.StatusServiceUnavailable, "pipeline unavailable"
	}
	run, err := s.searcher.Run(r.Context(), query)
	if err == nil {
		if run.Records == nil {
			run.Records = []crawler.FinalRecord{}
		}
		return run, http.StatusOK, ""
	}
	var verr *crawler.ValidationError
	if errors.As(err, &verr) {
		return nil, http.StatusBadRequest, verr.Reason
	}
	s.logger.Error("search failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.String("query", query),
		zap.Error(err),
	)
	return nil, http.StatusInternalServerError, genericSearchError
}
