package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/metrics"
	"github.com/palaver-chat/apiserver/types"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"
)

const (
	rapidWindow    = time.Hour
	recentWindow   = 24 * time.Hour
	newAccountAge  = 24 * time.Hour
	scanWorkers    = 8
	rapidMedium    = 20
	rapidHigh      = 50
	newAcctMedium  = 10
	newAcctHigh    = 30
	duplicateMed   = 3
	duplicateHigh  = 5
	deletedMinimum = 5
	deletedHigh    = 10
)

// MessageReader is read access to the message history of authors.
type MessageReader interface {
	CountByAuthor(ctx context.Context, authorID int) (total, deleted int, err error)
	ListByAuthorSince(ctx context.Context, authorID int, since time.Time) ([]types.Message, error)
}

// UserLister enumerates all users.
type UserLister interface {
	List(ctx context.Context) ([]types.User, error)
}

// AnomalyDetector runs read-only heuristics over user activity and returns
// findings for human review. It never changes any state.
type AnomalyDetector struct {
	users    UserLister
	messages MessageReader
	clock    clock.Clock
	logger   *slog.Logger
	workers  int
}

func NewAnomalyDetector(users UserLister, messages MessageReader, clk clock.Clock, logger *slog.Logger) *AnomalyDetector {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnomalyDetector{
		users:    users,
		messages: messages,
		clock:    clk,
		logger:   logger.With("component", "anomaly"),
		workers:  scanWorkers,
	}
}

// Scan runs every heuristic on behalf of a moderator or admin.
func (d *AnomalyDetector) Scan(ctx context.Context, actor types.Identity) ([]types.AnomalyFinding, error) {
	if err := authz.RequireRoleAtLeast(actor, types.RoleModerator); err != nil {
		return nil, err
	}
	return d.Run(ctx)
}

// Run scans all users without a guard check, for operator tooling.
// Admins and already suspended users are skipped.
func (d *AnomalyDetector) Run(ctx context.Context) ([]types.AnomalyFinding, error) {
	started := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(started).Seconds())
	}()

	users, err := d.users.List(ctx)
	if err != nil {
		return nil, err
	}
	now := d.clock.Now()

	perUser := make([][]types.AnomalyFinding, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, user := range users {
		if user.Role == types.RoleAdmin || user.Suspended {
			continue
		}
		g.Go(func() error {
			total, deleted, err := d.messages.CountByAuthor(gctx, user.ID)
			if err != nil {
				return fmt.Errorf("count messages of user %d: %w", user.ID, err)
			}
			recent, err := d.messages.ListByAuthorSince(gctx, user.ID, now.Add(-recentWindow))
			if err != nil {
				return fmt.Errorf("list messages of user %d: %w", user.ID, err)
			}
			perUser[i] = analyzeUser(now, user, total, deleted, recent)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	findings := make([]types.AnomalyFinding, 0)
	for _, fs := range perUser {
		findings = append(findings, fs...)
	}
	sortFindings(findings)

	for _, f := range findings {
		metrics.Findings.WithLabelValues(string(f.Type), string(f.Severity)).Inc()
	}
	d.logger.Info("anomaly scan finished", "users", len(users), "findings", len(findings))
	return findings, nil
}

func sortFindings(findings []types.AnomalyFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity.Order() != b.Severity.Order() {
			return a.Severity.Order() < b.Severity.Order()
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.Type < b.Type
	})
}

// analyzeUser applies every heuristic to one user. recent holds the
// user's messages from the last 24 hours, deleted ones included.
func analyzeUser(now time.Time, user types.User, total, deleted int, recent []types.Message) []types.AnomalyFinding {
	var findings []types.AnomalyFinding

	lastHour := 0
	for _, m := range recent {
		if m.CreatedAt.After(now.Add(-rapidWindow)) {
			lastHour++
		}
	}
	if severity, ok := grade(lastHour, rapidMedium+1, rapidHigh+1); ok {
		findings = append(findings, types.AnomalyFinding{
			Type:        types.FindingRapidPosting,
			Severity:    severity,
			UserID:      user.ID,
			Description: fmt.Sprintf("%d messages in the last hour", lastHour),
			Count:       lastHour,
		})
	}

	if now.Sub(user.CreatedAt) < newAccountAge {
		if severity, ok := grade(total, newAcctMedium+1, newAcctHigh+1); ok {
			findings = append(findings, types.AnomalyFinding{
				Type:        types.FindingNewAccountSpam,
				Severity:    severity,
				UserID:      user.ID,
				Description: fmt.Sprintf("%d messages from an account younger than a day", total),
				Count:       total,
			})
		}
	}

	if repeats := maxDuplicates(recent); repeats > 0 {
		if severity, ok := grade(repeats, duplicateMed, duplicateHigh); ok {
			findings = append(findings, types.AnomalyFinding{
				Type:        types.FindingDuplicateMessages,
				Severity:    severity,
				UserID:      user.ID,
				Description: fmt.Sprintf("same message posted %d times in the last day", repeats),
				Count:       repeats,
			})
		}
	}

	// more than 30% of the user's messages removed by moderation
	if deleted >= deletedMinimum && deleted*10 > total*3 {
		severity := types.SeverityLow
		if deleted > deletedHigh {
			severity = types.SeverityHigh
		}
		findings = append(findings, types.AnomalyFinding{
			Type:        types.FindingHighModerationRate,
			Severity:    severity,
			UserID:      user.ID,
			Description: fmt.Sprintf("%d of %d messages deleted", deleted, total),
			Count:       deleted,
		})
	}

	return findings
}

// grade returns Medium at or above medium and High at or above high.
func grade(n, medium, high int) (types.Severity, bool) {
	switch {
	case n >= high:
		return types.SeverityHigh, true
	case n >= medium:
		return types.SeverityMedium, true
	}
	return "", false
}

// maxDuplicates returns the largest number of non-deleted messages that
// share the same normalized content.
func maxDuplicates(messages []types.Message) int {
	counts := make(map[uint64]int)
	best := 0
	for _, m := range messages {
		if m.Deleted {
			continue
		}
		content := normalizeContent(m.Content)
		if content == "" {
			continue
		}
		key := murmur3.Sum64([]byte(content))
		counts[key]++
		if counts[key] > best {
			best = counts[key]
		}
	}
	return best
}

func normalizeContent(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}
