package daemon

import (
	"context"

	"github.com/pbraga/nexchat/internal/api"
	"github.com/pbraga/nexchat/internal/bus"
	"github.com/pbraga/nexchat/internal/engine"
	"github.com/pbraga/nexchat/internal/lock"
	"github.com/pbraga/nexchat/internal/logging"
	"github.com/pbraga/nexchat/internal/outbox"
	"github.com/pbraga/nexchat/internal/profile"
	"github.com/pbraga/nexchat/internal/status"
	"github.com/pbraga/nexchat/internal/store"
	"github.com/pbraga/nexchat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	ServerURL   string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideREST,
			provideClient,
			provideSender,
			provideEngine,
			provideSessionService,
			provideChatService,
			provideEventService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideREST(p Params, logger *zap.Logger) *transport.REST {
	return transport.NewREST(p.ServerURL, logger)
}

func provideClient(p Params, rest *transport.REST, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *transport.Client {
	return transport.NewClient(rest, p.ServerURL, b, machine, logger)
}

func provideSender(client *transport.Client, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(client, b, logger)
}

func provideEngine(b *bus.Bus, sender *outbox.Sender, logger *zap.Logger) *engine.Engine {
	return engine.New(b, sender, logger)
}

func provideSessionService(p Params, machine *status.Machine, eng *engine.Engine, client *transport.Client, rest *transport.REST, db *store.DB, logger *zap.Logger) *api.SessionService {
	return api.NewSessionService(p.ProfileName, machine, eng, client, rest, rest, db, logger)
}

func provideChatService(eng *engine.Engine) *api.ChatService {
	return api.NewChatService(eng)
}

func provideEventService(b *bus.Bus, logger *zap.Logger) *api.EventService {
	return api.NewEventService(b, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, client *transport.Client, eng *engine.Engine, sender *outbox.Sender, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Server acks route placeholder promotions into the engine.
			client.SetPromoter(eng)

			eng.Start(context.Background())
			sender.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control API error", zap.Error(err))
				}
			}()

			// Reconnect with stored credentials if they are still usable.
			creds, err := db.LoadCredentials()
			if err != nil {
				logger.Warn("loading stored credentials", zap.Error(err))
			}
			if creds != nil && !transport.TokenExpired(creds.Token) {
				eng.StartSession(creds.Username, creds.FullName)
				go func() {
					err := client.Connect(context.Background(), transport.Credentials{
						Username: creds.Username,
						FullName: creds.FullName,
						Token:    creds.Token,
					})
					if err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = machine.Transition(status.Error)
					}
				}()
			} else {
				if creds != nil {
					logger.Info("stored token expired, auth required")
				} else {
					logger.Info("no credentials found, auth required")
				}
				_ = machine.Transition(status.AuthRequired)
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			client.Disconnect()
			sender.Stop()
			eng.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
