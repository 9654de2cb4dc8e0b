package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/metrics"
	"github.com/palaver-chat/apiserver/types"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200

	nameCacheSize = 1024
	nameCacheTTL  = 5 * time.Minute
)

// ModerationLogRepository is the append-only audit sink.
type ModerationLogRepository interface {
	Append(ctx context.Context, entry types.ModerationLogEntry) (types.ModerationLogEntry, error)
	List(ctx context.Context, limit int) ([]types.ModerationLogEntry, error)
}

// EventPublisher fans committed audit entries out to subscribers.
// *mq.MQ satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ChannelNamer resolves channel ids to channels for display.
type ChannelNamer interface {
	Get(ctx context.Context, id int) (types.Channel, error)
}

// AuditLog records moderation decisions. Recording is best-effort: a
// failed write is logged and counted but never reported to the caller.
type AuditLog struct {
	repo      ModerationLogRepository
	users     UserReader
	channels  ChannelNamer
	publisher EventPublisher
	topic     string
	clock     clock.Clock
	logger    *slog.Logger

	userNames    *lru.LRU[int, string]
	channelNames *lru.LRU[int, string]
}

func NewAuditLog(repo ModerationLogRepository, users UserReader, channels ChannelNamer, clk clock.Clock, logger *slog.Logger) *AuditLog {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{
		repo:         repo,
		users:        users,
		channels:     channels,
		clock:        clk,
		logger:       logger.With("component", "audit"),
		userNames:    lru.NewLRU[int, string](nameCacheSize, nil, nameCacheTTL),
		channelNames: lru.NewLRU[int, string](nameCacheSize, nil, nameCacheTTL),
	}
}

// SetPublisher enables event fan-out of every persisted entry to topic.
func (a *AuditLog) SetPublisher(publisher EventPublisher, topic string) {
	a.publisher = publisher
	a.topic = topic
}

// Record appends entry to the log and publishes it. It runs after the
// primary change has committed and detaches from request cancellation.
func (a *AuditLog) Record(ctx context.Context, entry types.ModerationLogEntry) {
	ctx = context.WithoutCancel(ctx)

	if entry.EventID == "" {
		entry.EventID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.clock.Now().UTC()
	}
	metrics.ModerationActions.WithLabelValues(string(entry.Action)).Inc()

	saved, err := a.repo.Append(ctx, entry)
	if err != nil {
		metrics.AuditWriteFailures.WithLabelValues("persist").Inc()
		a.logger.Error("failed to write moderation log entry",
			"err", err,
			"event_id", entry.EventID,
			"action", entry.Action,
			"actor_id", entry.ActorID,
		)
		return
	}

	if a.publisher == nil || a.topic == "" {
		return
	}
	data, err := json.Marshal(saved)
	if err != nil {
		metrics.AuditWriteFailures.WithLabelValues("publish").Inc()
		a.logger.Error("failed to encode moderation event", "err", err, "event_id", saved.EventID)
		return
	}
	attrs := map[string]string{
		"event_id": saved.EventID,
		"action":   string(saved.Action),
		"actor_id": strconv.Itoa(saved.ActorID),
	}
	if _, err := a.publisher.Publish(ctx, a.topic, data, attrs); err != nil {
		metrics.AuditWriteFailures.WithLabelValues("publish").Inc()
		a.logger.Warn("failed to publish moderation event", "err", err, "event_id", saved.EventID)
	}
}

// List returns the newest entries, enriched with display names. Only
// moderators and admins may read the log.
func (a *AuditLog) List(ctx context.Context, actor types.Identity, limit int) ([]types.ModerationLogEntry, error) {
	if err := authz.RequireRoleAtLeast(actor, types.RoleModerator); err != nil {
		return nil, err
	}
	entries, err := a.Entries(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		a.enrich(ctx, &entries[i])
	}
	return entries, nil
}

// Entries reads the log without guard checks, for operator tooling.
func (a *AuditLog) Entries(ctx context.Context, limit int) ([]types.ModerationLogEntry, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return a.repo.List(ctx, limit)
}

func (a *AuditLog) enrich(ctx context.Context, entry *types.ModerationLogEntry) {
	entry.ActorName = a.userName(ctx, entry.ActorID)
	switch {
	case entry.TargetUserID != nil:
		entry.TargetName = a.userName(ctx, *entry.TargetUserID)
	case entry.TargetChannelID != nil:
		entry.TargetName = a.channelName(ctx, *entry.TargetChannelID)
	}
}

func (a *AuditLog) userName(ctx context.Context, id int) string {
	if name, ok := a.userNames.Get(id); ok {
		return name
	}
	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		a.logger.Debug("audit enrichment lookup failed", "user_id", id, "err", err)
		return ""
	}
	name := user.DisplayName()
	a.userNames.Add(id, name)
	return name
}

func (a *AuditLog) channelName(ctx context.Context, id int) string {
	if a.channels == nil {
		return ""
	}
	if name, ok := a.channelNames.Get(id); ok {
		return name
	}
	channel, err := a.channels.Get(ctx, id)
	if err != nil {
		a.logger.Debug("audit enrichment lookup failed", "channel_id", id, "err", err)
		return ""
	}
	a.channelNames.Add(id, channel.Name)
	return channel.Name
}
