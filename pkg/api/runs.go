package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/stores"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RunDetail is a run with everything recorded against it.
type RunDetail struct {
	Run       *engine.RunRecord        `json:"run"`
	Resources []*stores.ResourceRecord `json:"resources"`
	Results   []*stores.ResultRecord   `json:"results"`
	Events    []*stores.EventRecord    `json:"events"`
}

// LoadRunDetail reads a run and everything recorded against it.
func LoadRunDetail(ctx context.Context, ledger stores.Reader, id string) (RunDetail, error) {
	var (
		d   RunDetail
		err error
	)
	if d.Run, err = ledger.GetRun(ctx, id); err != nil {
		return d, err
	}
	if d.Resources, err = ledger.ListResources(ctx, id); err != nil {
		return d, err
	}
	if d.Results, err = ledger.ListResults(ctx, id); err != nil {
		return d, err
	}
	d.Events, err = ledger.ListEvents(ctx, id, 0)
	return d, err
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.ledger.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*engine.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	detail, err := LoadRunDetail(r.Context(), s.ledger, id)
	if errors.Is(err, stores.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.WithError(err).WithRunID(id).Error("get run")
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := s.ledger.ListEvents(r.Context(), id, parseIntQuery(r, "limit", 0))
	if err != nil {
		s.logger.WithError(err).WithRunID(id).Error("list events")
		s.writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []*stores.EventRecord{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
