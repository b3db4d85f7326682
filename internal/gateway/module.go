package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/config"
	"github.com/matheus3301/convsync/internal/lock"
	"github.com/matheus3301/convsync/internal/logging"
	"github.com/matheus3301/convsync/internal/profile"
	"github.com/matheus3301/convsync/internal/provider"
	"github.com/matheus3301/convsync/internal/registry"
	"github.com/matheus3301/convsync/internal/status"
	"github.com/matheus3301/convsync/internal/store"
	"github.com/matheus3301/convsync/internal/wa"
)

// Params holds the resolved gateway configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
}

// Module returns the fx module for the gateway.
func Module(p Params) fx.Option {
	return fx.Module("gateway",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			bus.New,
			provideMachine,
			provideLock,
			provideStore,
			NewRecorder,
			NewHub,
			provideRegistry,
			provideProvider,
			NewIngest,
			provideWSGateway,
			provideAPI,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile, "gateway"), "gateway", p.Profile, p.Config.LogLevel)
}

func provideMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine("provider", b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(profile.Dir(p.Profile), "gateway")
	if err != nil {
		return nil, err
	}
	logger.Info("gateway lock acquired", zap.String("path", l.Path()))
	return l, nil
}

// OpenStore opens and migrates the Message Store at path.
func OpenStore(path string, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("message store ready",
		zap.String("path", path),
		zap.Uint("version", result.Version),
		zap.Bool("migrated", result.Changed))
	return db, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	return OpenStore(profile.MessagesDBPath(p.Profile), logger)
}

func provideRegistry(p Params, db *store.DB, logger *zap.Logger) *registry.Registry {
	return registry.New(NewActiveLister(db, p.Config.Gateway.ActiveWindow.Duration), logger)
}

func provideProvider(p Params, b *bus.Bus, machine *status.Machine, logger *zap.Logger) (provider.Provider, error) {
	switch p.Config.Gateway.Provider {
	case "whatsapp":
		a, err := wa.NewAdapter(context.Background(), profile.ProviderDBPath(p.Profile), b, machine, logger.Named("whatsapp"))
		if err != nil {
			return nil, err
		}
		return a, nil
	case "loopback":
		return provider.NewLoopback(b, p.Config.Gateway.LoopbackFailEvery, logger.Named("loopback")), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", p.Config.Gateway.Provider)
	}
}

func provideWSGateway(p Params, db *store.DB, rec *Recorder, reg *registry.Registry, b *bus.Bus, hub *Hub, logger *zap.Logger) *WSGateway {
	return NewWSGateway(db, rec, reg, b, hub, WSOptions{
		AllowedOrigins:  p.Config.Gateway.AllowedOrigins,
		MaxMessageChars: p.Config.Gateway.MaxMessageChars,
	}, logger.Named("ws"))
}

func provideAPI(p Params, db *store.DB, rec *Recorder, reg *registry.Registry, prov provider.Provider, logger *zap.Logger) *API {
	return NewAPI(db, rec, reg, prov, APIOptions{
		ProviderTimeout: p.Config.Gateway.ProviderTimeout.Duration,
		MaxMessageChars: p.Config.Gateway.MaxMessageChars,
	}, logger.Named("api"))
}

func provideServer(p Params, api *API, ws *WSGateway, logger *zap.Logger) *http.Server {
	return &http.Server{
		Addr: p.Config.Gateway.Listen,
		Handler: NewRouter(api, ws, RouterOptions{
			AllowedOrigins: p.Config.Gateway.AllowedOrigins,
			RateLimit:      p.Config.Gateway.RateLimit,
		}, logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerLifecycle(lc fx.Lifecycle, srv *http.Server, ws *WSGateway, ingest *Ingest, prov provider.Provider, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ingest.Start(context.Background())
			ws.Start(context.Background())

			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			go func() {
				logger.Info("gateway listening", zap.String("addr", ln.Addr().String()), zap.String("provider", prov.Name()))
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			go func() {
				if err := prov.Start(context.Background()); err != nil {
					logger.Error("provider start failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			prov.Stop()
			ws.Stop()
			ingest.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("close store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("gateway stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
