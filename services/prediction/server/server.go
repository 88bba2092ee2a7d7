package server

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakeoracle/core"
	"stakeoracle/core/events"
	"stakeoracle/gateway/middleware"
	"stakeoracle/native/params"
	"stakeoracle/native/prediction"
	"stakeoracle/services/prediction/journal"
)

// Ledger is the node surface exposed over HTTP.
type Ledger interface {
	Submit(ctx context.Context, loan, creator [20]byte) (*prediction.Loan, error)
	Retract(ctx context.Context, loan, caller [20]byte) (*prediction.Loan, error)
	Vote(ctx context.Context, loan, staker [20]byte, side prediction.Side, amount *big.Int) (*prediction.Vote, error)
	Withdraw(ctx context.Context, loan, staker [20]byte, amount *big.Int) (*prediction.Settlement, error)
	Quote(ctx context.Context, loan, staker [20]byte, amount *big.Int) (*prediction.Settlement, error)
	SetParams(caller [20]byte, lossBps, burnBps *uint32) (params.Redistribution, error)
	Params() (params.Redistribution, error)
	View(ctx context.Context, loan [20]byte) (*prediction.LoanView, error)
	Loans() ([][20]byte, error)
	VoteOf(loan, staker [20]byte) (*prediction.Vote, error)
	Approve(owner [20]byte, amount *big.Int) error
	Balances(addr [20]byte) ([]core.Balance, error)
	Supplies() ([]core.Supply, error)
	SetOracleStatus(caller, loan [20]byte, status prediction.LoanStatus) error
	Events() *events.Feed
}

// Config captures the dependencies required to construct the server.
type Config struct {
	Ledger        Ledger
	Journal       *journal.Journal
	Auth          middleware.AuthConfig
	RateLimits    map[string]middleware.RateLimit
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
	ServiceName   string
	LogRequests   bool
	StreamBuffer  int
	DisableTraces bool
}

// Route groups used as rate limit keys.
const (
	LimitRead  = "read"
	LimitWrite = "write"
)

// Server exposes the prediction ledger over HTTP.
type Server struct {
	ledger  Ledger
	journal *journal.Journal
	logger  *slog.Logger
	cfg     Config

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("server: ledger required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "predictd"
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 64
	}
	srv := &Server{
		ledger:  cfg.Ledger,
		journal: cfg.Journal,
		logger:  cfg.Logger.With(slog.String("component", "server")),
		cfg:     cfg,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	auth := middleware.NewAuthenticator(s.cfg.Auth, s.logger)
	limiter := middleware.NewRateLimiter(s.cfg.RateLimits, s.logger)
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: s.cfg.ServiceName,
		Module:      "prediction",
		LogRequests: s.cfg.LogRequests,
		Enabled:     true,
	}, s.logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(s.cfg.CORS))
	r.Use(obs.Middleware)

	r.Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Group(func(read chi.Router) {
			read.Use(limiter.Middleware(LimitRead))
			read.Get("/params", s.GetParams)
			read.Get("/loans", s.ListLoans)
			read.Get("/loans/{loan}", s.GetLoan)
			read.Get("/loans/{loan}/votes/{staker}", s.GetVote)
			read.Get("/loans/{loan}/quote", s.Quote)
			read.Get("/token/balances/{addr}", s.GetBalances)
			read.Get("/token/supply", s.GetSupply)
			read.Get("/events", s.ListEvents)
			read.Get("/events/ws", s.StreamEvents)
		})
		api.Group(func(write chi.Router) {
			write.Use(auth.Middleware())
			write.Use(limiter.Middleware(LimitWrite))
			write.Put("/params", s.PutParams)
			write.Post("/loans/{loan}/submit", s.SubmitLoan)
			write.Post("/loans/{loan}/retract", s.RetractLoan)
			write.Post("/loans/{loan}/votes", s.CastVote)
			write.Post("/loans/{loan}/withdraw", s.Withdraw)
			write.Put("/oracle/{loan}", s.SetOracleStatus)
			write.Post("/token/approve", s.Approve)
		})
	})

	if s.cfg.DisableTraces {
		return r
	}
	return otelhttp.NewHandler(r, s.cfg.ServiceName)
}
