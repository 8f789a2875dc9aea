package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/RitoIssei/bot-mng-ns/internal/config"
	"github.com/RitoIssei/bot-mng-ns/internal/database"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Application wires configuration, databases, router, background workers and server lifecycle.
type Application struct {
	cfg     config.Application
	db      *pgxpool.Pool
	staging *sql.DB
	deps    *Dependencies
	router  *mux.Router
	srv     *http.Server
}

// NewApplication constructs the full application, ready to Run().
func NewApplication(ctx context.Context, cfg config.Application) (*Application, error) {
	// DB + migrations
	if err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	staging, err := database.OpenStaging(cfg.Staging.Path)
	if err != nil {
		db.Close()
		return nil, err
	}

	r := mux.NewRouter()

	// Build dependencies (services, handlers...)
	deps, err := BuildDependencies(db, staging, cfg)
	if err != nil {
		db.Close()
		staging.Close()
		return nil, err
	}

	// Middleware chain
	SetupMiddleware(r, deps)

	// Routes
	health := NewHealthHandler(db.Ping, staging.PingContext, deps.Sink)
	RegisterRoutes(r, deps, health)

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Server.Addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, staging: staging, deps: deps, router: r, srv: srv}, nil
}

// Run serves HTTP, replicates ledger records and sweeps expired confirmations until ctx is
// cancelled or one of them fails.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("Starting server on %s", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.Info("Shutting down server")
		return a.srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.deps.Sink.Run(ctx)
	})
	g.Go(func() error {
		return a.deps.Sweeper.Run(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *Application) close() {
	if err := a.staging.Close(); err != nil {
		log.Warnf("could not close staging database: %v", err)
	}
	a.db.Close()
}
