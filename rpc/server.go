package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"pawnchain/core"
	coreerrors "pawnchain/core/errors"
	"pawnchain/core/state"
	"pawnchain/native/assets"
	"pawnchain/native/bundle"
	"pawnchain/native/loan"
)

const moduleName = "rpc"

// Config wires the read API.
type Config struct {
	Deployment *core.Deployment
	Logger     *slog.Logger
	RateLimit  RateLimit
	// Metrics serves /metrics. Defaults to the prometheus default registry.
	Metrics http.Handler
}

// Server answers read-only queries against committed state.
type Server struct {
	dep     *core.Deployment
	logger  *slog.Logger
	tracer  trace.Tracer
	limiter *RateLimiter
	metrics http.Handler
	router  http.Handler
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Deployment == nil || cfg.Deployment.Store == nil {
		return nil, errors.New("rpc: deployment required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", moduleName)
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s := &Server{
		dep:     cfg.Deployment,
		logger:  logger,
		tracer:  otel.Tracer("pawnchain/rpc"),
		limiter: NewRateLimiter(cfg.RateLimit, logger),
		metrics: metrics,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics)

	r.Group(func(api chi.Router) {
		api.Use(s.limiter.Middleware)
		api.Get("/loans/{ledger}/{id}", s.GetLoan)
		api.Get("/bundles/{id}", s.GetBundle)
		api.Get("/balances/{asset}/{owner}", s.GetBalance)
	})
	return r
}

// ledger resolves "legacy", "current" or a ledger address.
func (s *Server) ledger(name string) (*loan.Ledger, string, bool) {
	legacy, current := s.dep.Legacy.Ledger, s.dep.Current.Ledger
	switch strings.ToLower(name) {
	case "legacy":
		return legacy, "legacy", true
	case "current":
		return current, "current", true
	}
	if common.IsHexAddress(name) {
		switch common.HexToAddress(name) {
		case legacy.Address():
			return legacy, "legacy", true
		case current.Address():
			return current, "current", true
		}
	}
	return nil, "", false
}

// GetLoan serves GET /loans/{ledger}/{id}.
func (s *Server) GetLoan(w http.ResponseWriter, r *http.Request) {
	ledger, name, ok := s.ledger(chi.URLParam(r, "ledger"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_ledger", "ledger must be legacy, current or a ledger address")
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "loan id must be an unsigned integer")
		return
	}
	var view LoanView
	err = s.dep.Store.View(r.Context(), func(st *state.Manager) error {
		ln, err := ledger.Get(st, id)
		if err != nil {
			return err
		}
		view = newLoanView(name, ln)
		return nil
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetBundle serves GET /bundles/{id}.
func (s *Server) GetBundle(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "bundle id must be an unsigned integer")
		return
	}
	var view BundleView
	err = s.dep.Store.View(r.Context(), func(st *state.Manager) error {
		b, err := s.dep.Bundles.Get(st, id)
		if err != nil {
			return err
		}
		view = newBundleView(b)
		return nil
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetBalance serves GET /balances/{asset}/{owner}.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	assetParam, ownerParam := chi.URLParam(r, "asset"), chi.URLParam(r, "owner")
	if !common.IsHexAddress(assetParam) || !common.IsHexAddress(ownerParam) {
		writeError(w, http.StatusBadRequest, "invalid_address", "asset and owner must be hex addresses")
		return
	}
	asset, owner := common.HexToAddress(assetParam), common.HexToAddress(ownerParam)
	var view BalanceView
	err := s.dep.Store.View(r.Context(), func(st *state.Manager) error {
		meta, err := s.dep.Assets.Metadata(st, asset)
		if err != nil {
			return err
		}
		if meta.Kind != assets.KindFungible {
			return assets.ErrWrongKind
		}
		bal, err := s.dep.Assets.BalanceOf(st, asset, owner)
		if err != nil {
			return err
		}
		view = BalanceView{
			Asset:    asset.Hex(),
			Owner:    owner.Hex(),
			Symbol:   meta.Symbol,
			Decimals: meta.Decimals,
			Balance:  bal.String(),
		}
		return nil
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loan.ErrLoanNotFound), errors.Is(err, bundle.ErrBundleNotFound), errors.Is(err, assets.ErrUnknownAsset):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, coreerrors.ErrValue):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		s.logger.Error("rpc query failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
