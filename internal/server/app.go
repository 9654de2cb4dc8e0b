package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/palaver-chat/apiserver/config"
	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/db"
	"github.com/palaver-chat/apiserver/internal/mq"
	"github.com/palaver-chat/apiserver/internal/services"
	"github.com/palaver-chat/apiserver/internal/storage"
	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/internal/store/memstore"
)

// Repositories is the persistence layer the services are built on.
type Repositories struct {
	Users         services.UserRepository
	Channels      services.ChannelRepository
	AccessCodes   services.AccessCodeRepository
	ModerationLog services.ModerationLogRepository
	Messages      services.MessageReader
}

// PostgresRepositories builds repositories over an open database.
func PostgresRepositories(conn *sql.DB) Repositories {
	return Repositories{
		Users:         store.NewUserRepository(conn),
		Channels:      store.NewChannelRepository(conn),
		AccessCodes:   store.NewAccessCodeRepository(conn),
		ModerationLog: store.NewModerationLogRepository(conn),
		Messages:      store.NewMessageRepository(conn),
	}
}

// MemoryRepositories exposes an in-memory store as Repositories.
func MemoryRepositories(s *memstore.Store) Repositories {
	return Repositories{
		Users:         s.Users,
		Channels:      s.Channels,
		AccessCodes:   s.AccessCodes,
		ModerationLog: s.ModerationLog,
		Messages:      s.Messages,
	}
}

// App holds every service of the moderation core.
type App struct {
	Users       *services.UserService
	Sessions    *services.Sessions
	Evaluator   *authz.Evaluator
	Audit       *services.AuditLog
	Locks       *services.ChannelLockService
	AccessCodes *services.AccessCodeService
	Suspensions *services.SuspensionService
	Detector    *services.AnomalyDetector
	Exporter    *services.Exporter

	Events  *mq.MQ
	Storage *storage.Storage

	closers []func() error
}

// NewApp wires services over repos. events and objects may be nil.
func NewApp(
	cfg config.Config,
	repos Repositories,
	events *mq.MQ,
	objects *storage.Storage,
	clk clock.Clock,
	logger *slog.Logger,
) *App {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}

	sessions := services.NewSessions(repos.Users, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clk)
	audit := services.NewAuditLog(repos.ModerationLog, repos.Users, repos.Channels, clk, logger)
	if events != nil {
		audit.SetPublisher(events, cfg.MQ.AuditTopic)
	}

	app := &App{
		Users:     services.NewUserService(repos.Users),
		Sessions:  sessions,
		Evaluator: authz.NewEvaluator(sessions, repos.Channels, clk),
		Audit:     audit,
		Locks:     services.NewChannelLockService(repos.Channels, audit, clk),
		AccessCodes: services.NewAccessCodeService(repos.AccessCodes, repos.Channels, repos.Users, audit, clk, services.AccessCodeOptions{
			Pepper:          cfg.AccessCodes.Pepper,
			TTL:             cfg.AccessCodes.TTL,
			RedeemPerMinute: cfg.AccessCodes.RedeemPerMinute,
		}),
		Suspensions: services.NewSuspensionService(repos.Users, audit, clk),
		Detector:    services.NewAnomalyDetector(repos.Users, repos.Messages, clk, logger),
		Exporter:    services.NewExporter(objects, clk),
		Events:      events,
		Storage:     objects,
	}
	if events != nil {
		app.closers = append(app.closers, events.Close)
	}
	return app
}

// OpenApp connects to the configured store, broker and object storage and
// wires the services over them.
func OpenApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	var (
		repos   Repositories
		closers []func() error
	)
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		repos = MemoryRepositories(memstore.New())
	case config.StoreBackendPostgres, "":
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		repos = PostgresRepositories(conn)
		closers = append(closers, conn.Close)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	events, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		if events != nil {
			_ = events.Close()
		}
		closeAll(closers)
		return nil, err
	}

	app := NewApp(cfg, repos, events, objects, clock.Real(), logger)
	app.closers = append(app.closers, closers...)
	return app, nil
}

// Close releases broker and database connections.
func (a *App) Close() error {
	return closeAll(a.closers)
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
