package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	pg "qualitygrid/internal/adapters/postgres"
	"qualitygrid/internal/api"
	"qualitygrid/internal/domain"
	"qualitygrid/internal/metrics"
	"qualitygrid/internal/ports"
)

const defaultLimit = 50

// Server is the read-only report API over the last persisted run. It
// implements api.StrictServerInterface.
type Server struct {
	reports ports.Reports
	metrics *metrics.Metrics
	logger  *zap.Logger
}

var _ api.StrictServerInterface = (*Server)(nil)

func New(reports ports.Reports, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{reports: reports, metrics: m, logger: logger}
}

// Routes returns a chi.Router with every handler mounted.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	handler := api.NewStrictHandlerWithOptions(s, nil, api.StrictHTTPServerOptions{
		RequestErrorHandlerFunc:  badRequest,
		ResponseErrorHandlerFunc: s.internalError,
	})
	api.HandlerWithOptions(handler, api.ChiServerOptions{BaseRouter: r, ErrorHandlerFunc: badRequest})

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) GetHealthz(_ context.Context, _ api.GetHealthzRequestObject) (api.GetHealthzResponseObject, error) {
	return api.GetHealthz200JSONResponse{Status: "ok"}, nil
}

func (s *Server) GetRankings(ctx context.Context, req api.GetRankingsRequestObject) (api.GetRankingsResponseObject, error) {
	limit := defaultLimit
	if req.Params.Limit != nil {
		if *req.Params.Limit <= 0 {
			return api.GetRankings400JSONResponse{Error: "limit must be a positive integer"}, nil
		}
		limit = *req.Params.Limit
	}
	run, entries, err := s.reports.LatestRankings(ctx, limit)
	if errors.Is(err, pg.ErrNotFound) {
		return api.GetRankings404JSONResponse{Error: "not found"}, nil
	}
	if err != nil {
		s.logFailure(ctx, "/rankings", err)
		return api.GetRankings500JSONResponse{Error: "internal error"}, nil
	}

	resp := api.RankingsResponse{
		Run: api.RunSummary{
			Id:            run.ID,
			StartedAt:     run.StartedAt,
			FinishedAt:    run.FinishedAt,
			TablesVersion: run.TablesVersion,
			Organizations: run.Organizations,
			ErrorCount:    run.ErrorCount,
		},
		Rankings: make([]api.RankingEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Rankings = append(resp.Rankings, rankingEntry(e))
	}
	return api.GetRankings200JSONResponse(resp), nil
}

func (s *Server) GetOrganizationsId(ctx context.Context, req api.GetOrganizationsIdRequestObject) (api.GetOrganizationsIdResponseObject, error) {
	org, err := s.reports.Organization(ctx, req.Id)
	if errors.Is(err, pg.ErrNotFound) {
		return api.GetOrganizationsId404JSONResponse{Error: "not found"}, nil
	}
	if err != nil {
		s.logFailure(ctx, "/organizations/"+req.Id, err)
		return api.GetOrganizationsId500JSONResponse{Error: "internal error"}, nil
	}
	return api.GetOrganizationsId200JSONResponse(org), nil
}

func rankingEntry(e domain.RankingEntry) api.RankingEntry {
	return api.RankingEntry{
		OrganizationId:           e.OrganizationID,
		Name:                     e.Name,
		TotalScore:               e.TotalScore,
		ActiveCertificationCount: e.ActiveCertificationCount,
		Rank:                     e.Rank,
		Percentile:               e.Percentile,
		Grade:                    e.Grade,
	}
}

func (s *Server) logFailure(ctx context.Context, path string, err error) {
	s.logger.Error("report query failed",
		zap.String("path", path),
		zap.String("request_id", middleware.GetReqID(ctx)),
		zap.Error(err))
}

// internalError handles failures the strict handler could not turn into a
// response. Details go to the log, never to the client.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logFailure(r.Context(), r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func badRequest(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(api.Error{Error: msg})
}
