package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/convsync/internal/api"
	"github.com/matheus3301/convsync/internal/bus"
	"github.com/matheus3301/convsync/internal/config"
	"github.com/matheus3301/convsync/internal/convo"
	"github.com/matheus3301/convsync/internal/lock"
	"github.com/matheus3301/convsync/internal/logging"
	"github.com/matheus3301/convsync/internal/outbox"
	"github.com/matheus3301/convsync/internal/profile"
	"github.com/matheus3301/convsync/internal/registry"
	intsync "github.com/matheus3301/convsync/internal/sync"
	"github.com/matheus3301/convsync/internal/transport"
)

const gatewayRequestTimeout = 30 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			bus.New,
			provideLock,
			provideClient,
			provideRegistry,
			provideEngine,
			provideRefetcher,
			NewEventRouter,
			provideManager,
			provideSender,
			provideDaemonService,
			api.NewConversationService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile, "daemon"), "daemon", p.Profile, p.Config.LogLevel)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile), "daemon")
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired", zap.String("path", l.Path()))
	return l, nil
}

func provideClient(p Params) (*transport.Client, error) {
	return transport.NewClient(p.Config.Daemon.GatewayURL, &http.Client{Timeout: gatewayRequestTimeout})
}

func provideRegistry(c *transport.Client, logger *zap.Logger) *registry.Registry {
	return registry.New(c, logger.Named("registry"))
}

func provideEngine(p Params, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	policy := intsync.DefaultPolicy()
	policy.MergeRapidDuplicates = p.Config.Daemon.MergeRapidDuplicates
	return intsync.NewEngine(policy, b, logger.Named("engine"))
}

func provideRefetcher(p Params, engine *intsync.Engine, c *transport.Client, logger *zap.Logger) *intsync.Refetcher {
	return intsync.NewRefetcher(engine, c,
		p.Config.Daemon.RefetchInterval.Duration,
		p.Config.Daemon.HistoryPageSize,
		logger.Named("refetch"))
}

// channelFactory picks the transport for a conversation: widget chats get a
// socket, WhatsApp threads are polled through the REST API.
func channelFactory(cfg config.DaemonConfig, c *transport.Client, b *bus.Bus, logger *zap.Logger) transport.Factory {
	return func(conversationID string, channel convo.Channel) transport.Channel {
		switch channel {
		case convo.ChannelChat:
			return transport.NewSocketChannel(conversationID, transport.SocketOptions{
				BaseURL:          cfg.GatewayURL,
				ReconnectInitial: cfg.ReconnectInitial.Duration,
				ReconnectMax:     cfg.ReconnectMax.Duration,
				Client:           c,
				Bus:              b,
				Logger:           logger,
			})
		case convo.ChannelWhatsApp:
			return transport.NewPollChannel(c, conversationID, transport.PollOptions{
				Interval:         cfg.PollInterval.Duration,
				ReconnectInitial: cfg.ReconnectInitial.Duration,
				ReconnectMax:     cfg.ReconnectMax.Duration,
				Bus:              b,
				Logger:           logger,
			})
		default:
			return nil
		}
	}
}

func provideManager(p Params, c *transport.Client, router *EventRouter, b *bus.Bus, logger *zap.Logger) *transport.Manager {
	factory := channelFactory(p.Config.Daemon, c, b, logger.Named("transport"))
	return transport.NewManager(factory, router.Handle, logger.Named("channels"))
}

func provideSender(p Params, engine *intsync.Engine, channels *transport.Manager, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(engine, channels, b, p.Config.Daemon.SendTimeout.Duration, logger.Named("outbox"))
}

func provideDaemonService(p Params, c *transport.Client, channels *transport.Manager, engine *intsync.Engine, b *bus.Bus) *api.DaemonService {
	return api.NewDaemonService(p.Profile, c, channels, engine, b)
}

func newMetricsServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, channels *transport.Manager, refetcher *intsync.Refetcher, sender *outbox.Sender, logger *zap.Logger) {
	var metricsSrv *http.Server
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			refetcher.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if addr := p.Config.Daemon.MetricsAddr; addr != "" {
				metricsSrv = newMetricsServer(addr)
				go func() {
					logger.Info("metrics listening", zap.String("addr", addr))
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server error", zap.Error(err))
					}
				}()
			}

			logger.Info("daemon started", zap.String("gateway", p.Config.Daemon.GatewayURL))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(ctx)
			}
			if err := channels.CloseAll(); err != nil {
				logger.Warn("close channels", zap.Error(err))
			}
			refetcher.Stop()
			waitSends(ctx, sender)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

// waitSends lets in-flight sends resolve until ctx expires.
func waitSends(ctx context.Context, sender *outbox.Sender) {
	done := make(chan struct{})
	go func() {
		sender.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
