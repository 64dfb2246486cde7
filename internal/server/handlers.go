package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ageofrisk/internal/clean"
	"ageofrisk/internal/export"
	"ageofrisk/internal/query"
	"ageofrisk/internal/session"
)

var errUnknownDataset = errors.New("unknown dataset")

// view is a filtered table ready for JSON or CSV rendering.
type view struct {
	rows    any
	count   int
	warning *query.EmptyResultWarning
	csv     func(io.Writer) error
}

type exportRow interface {
	query.Row
	export.Table
}

func viewOf[T exportRow](s query.Slice[T]) view {
	return view{
		rows:    s.Rows,
		count:   len(s.Rows),
		warning: s.Warning,
		csv:     func(w io.Writer) error { return export.WriteCSV(w, s.Rows) },
	}
}

// table resolves the URL name of a table to its filtered view.
func table(sess *session.Session, dataset string, p query.Params) (view, error) {
	switch dataset {
	case "screening":
		return viewOf(sess.Screening(p)), nil
	case "mortality":
		return viewOf(sess.Mortality(p)), nil
	case "exam-income":
		return viewOf(sess.ExamIncome(p)), nil
	case "income-gap":
		return viewOf(sess.IncomeGaps(p)), nil
	}
	return view{}, fmt.Errorf("%w: %q", errUnknownDataset, dataset)
}

type tableResponse struct {
	Dataset string `json:"dataset"`
	Count   int    `json:"count"`
	Rows    any    `json:"rows"`
	Warning string `json:"warning,omitempty"`
}

func (v view) response(dataset string) tableResponse {
	resp := tableResponse{Dataset: dataset, Count: v.count, Rows: v.rows}
	if v.warning != nil {
		resp.Warning = v.warning.Error()
	}
	return resp
}

// handleTable handles GET /api/tables/{dataset}.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r)
	if !ok {
		return
	}
	dataset := chi.URLParam(r, "dataset")
	v, err := table(s.session, dataset, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v.response(dataset))
}

// handleExport handles GET /api/export/{dataset}.csv. An empty selection
// still downloads a header-only file; the warning travels in a header.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r)
	if !ok {
		return
	}
	dataset := chi.URLParam(r, "dataset")
	v, err := table(s.session, dataset, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, dataset))
	if v.warning != nil {
		w.Header().Set("X-Empty-Result", v.warning.Error())
	}
	w.WriteHeader(http.StatusOK)
	if err := v.csv(w); err != nil {
		s.logger.ErrorContext(r.Context(), "csv export failed",
			"request_id", RequestID(r.Context()),
			"dataset", dataset,
			"error", err,
		)
	}
}

// handleBands handles GET /api/bands/{dataset}.
func (s *Server) handleBands(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r)
	if !ok {
		return
	}
	dataset := chi.URLParam(r, "dataset")
	var name string
	switch dataset {
	case "screening":
		name = clean.DatasetScreening
	case "mortality":
		name = clean.DatasetMortality
	default:
		s.writeError(w, r, fmt.Errorf("%w: no band rollup for %q", errUnknownDataset, dataset))
		return
	}
	sl, err := s.session.Bands(name, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sl).response(dataset))
}

func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kpis": s.session.KPIs(p)})
}

func (s *Server) handleBurdenShift(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": s.session.BurdenShift(p)})
}

// handleCorrelation handles GET /api/correlation?year=. Without a year the
// latest year of any table is used.
func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	year := s.session.Filters().YearMax
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: year=%q", query.ErrInvalidParams, raw))
			return
		}
		year = y
	}
	writeJSON(w, http.StatusOK, s.session.Correlation(year))
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	p, ok := s.params(w, r)
	if !ok {
		return
	}
	metric := r.URL.Query().Get("metric")
	sl, err := s.session.Map(metric, p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]any{"metric": metric, "rows": sl.Rows}
	if sl.Warning != nil {
		resp["warning"] = sl.Warning.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

type diagnosticsResponse struct {
	clean.Diagnostics
	Dropped map[string]int `json:"dropped"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	out := make([]diagnosticsResponse, len(s.session.Diagnostics))
	for i, d := range s.session.Diagnostics {
		out[i] = diagnosticsResponse{Diagnostics: d, Dropped: d.Dropped()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": s.session.ID,
		"version":    s.session.Version,
		"datasets":   out,
	})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Filters())
}

func (s *Server) params(w http.ResponseWriter, r *http.Request) (query.Params, bool) {
	p, err := query.ParseParams(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return query.Params{}, false
	}
	return p, true
}

// writeError maps errors to status codes: bad parameters are the caller's
// fault, unknown datasets are not found, anything else is internal.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, query.ErrInvalidParams):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errUnknownDataset):
		status, msg = http.StatusNotFound, err.Error()
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			"request_id", RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
