// Package app wires the connection manager, sinks, presence directory and
// control API together.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pchat/internal/auth"
	"github.com/vovakirdan/pchat/internal/client"
	"github.com/vovakirdan/pchat/internal/config"
	"github.com/vovakirdan/pchat/internal/core"
	"github.com/vovakirdan/pchat/internal/hub"
	"github.com/vovakirdan/pchat/internal/store"
	"github.com/vovakirdan/pchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/pchat/internal/transport/http"
)

const recordTimeout = 2 * time.Second

// App wires together core and transport layers.
type App struct {
	cfg    config.Config
	sched  *core.TimerScheduler
	client *client.Client
	hub    *hub.Hub
	store  store.PresenceStore
	server *stdhttp.Server
	log    *zerolog.Logger
}

// New constructs the application. Log lines are printed to out, one per line.
func New(cfg config.Config, logger *zerolog.Logger, out io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sched := core.NewScheduler()
	cl := client.New(cfg, sched, logger)
	events := hub.New(cl.Engine().Channel, logger)

	a := &App{
		cfg:    cfg,
		sched:  sched,
		client: cl,
		hub:    events,
		log:    logger,
	}

	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.store = st
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("presence directory initialized")
	}

	logSinks := core.LogSinks{events}
	if out != nil {
		logSinks = append(core.LogSinks{newLinePrinter(out)}, logSinks...)
	}
	rosterSinks := core.RosterSinks{events}
	if a.store != nil {
		rosterSinks = append(rosterSinks, core.RosterSinkFunc(a.recordRoster))
	}
	cl.SetLogSink(logSinks)
	cl.SetRosterSink(rosterSinks)

	if cfg.HTTPAddr != "" {
		if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
			gin.SetMode(gin.ReleaseMode)
		}
		authService := auth.NewService(&auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.JWTTTL,
		}, cfg.ControlPasswordHash)
		a.server = transporthttp.NewServer(cl, events, authService, a.store, &cfg, logger)
	}

	return a, nil
}

// Client returns the connection manager.
func (a *App) Client() *client.Client {
	return a.client
}

// Run starts the client and the control API, and blocks until ctx is
// cancelled or the API server fails.
func (a *App) Run(ctx context.Context) error {
	a.log.Info().Str("address", a.cfg.Address()).Str("account", a.cfg.Account).Msg("starting pchat client")
	a.client.Start()

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.log.Info().Str("addr", a.server.Addr).Msg("control api listening")
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- err
				return
			}
			serverErr <- nil
		}()
	}

	var runErr error
	select {
	case err := <-serverErr:
		runErr = err
	case <-ctx.Done():
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	if err := a.client.Close(); err != nil {
		a.log.Debug().Err(err).Msg("close client")
	}

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.log.Warn().Err(err).Msg("http shutdown")
		}
	}

	a.sched.Wait()
	a.cleanup()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

func (a *App) recordRoster(users []core.User) {
	if len(users) == 0 {
		return
	}
	seen := make([]store.SeenUser, 0, len(users))
	for _, u := range users {
		seen = append(seen, store.SeenUser{Name: u.Name, Flags: u.Flags, Ping: u.Ping, Stats: u.Stats})
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := a.store.RecordRoster(ctx, a.client.Engine().Channel(), seen, time.Now()); err != nil {
		a.log.Warn().Err(err).Int("users", len(seen)).Msg("record roster")
	}
}

// linePrinter writes each log line on its own line. Writes are serialized so
// lines from the receive loop and reconnect timer never interleave.
type linePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newLinePrinter(out io.Writer) *linePrinter {
	return &linePrinter{out: out}
}

func (p *linePrinter) Log(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}
