package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/palaver-chat/apiserver/internal/authz"
	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/store/memstore"
	"github.com/palaver-chat/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messagesAt(authorID int, at time.Time, contents ...string) []types.Message {
	out := make([]types.Message, 0, len(contents))
	for _, c := range contents {
		out = append(out, types.Message{AuthorID: authorID, Content: c, CreatedAt: at})
	}
	return out
}

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("message %d", i)
	}
	return out
}

func findingOf(findings []types.AnomalyFinding, kind types.FindingType) (types.AnomalyFinding, bool) {
	for _, f := range findings {
		if f.Type == kind {
			return f, true
		}
	}
	return types.AnomalyFinding{}, false
}

func TestRapidPosting(t *testing.T) {
	old := types.User{ID: 1, CreatedAt: testNow.Add(-90 * 24 * time.Hour)}
	recent := testNow.Add(-10 * time.Minute)

	tests := []struct {
		name     string
		count    int
		severity types.Severity
		found    bool
	}{
		{"at threshold", 20, "", false},
		{"above medium", 21, types.SeverityMedium, true},
		{"at high boundary", 50, types.SeverityMedium, true},
		{"above high", 51, types.SeverityHigh, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := messagesAt(1, recent, numbered(tt.count)...)
			finding, ok := findingOf(analyzeUser(testNow, old, tt.count, 0, msgs), types.FindingRapidPosting)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.severity, finding.Severity)
		})
	}
}

func TestRapidPostingIgnoresOlderMessages(t *testing.T) {
	old := types.User{ID: 1, CreatedAt: testNow.Add(-90 * 24 * time.Hour)}
	msgs := messagesAt(1, testNow.Add(-2*time.Hour), numbered(60)...)

	_, ok := findingOf(analyzeUser(testNow, old, 60, 0, msgs), types.FindingRapidPosting)
	assert.False(t, ok)
}

func TestNewAccountSpam(t *testing.T) {
	assert := assert.New(t)
	young := types.User{ID: 2, CreatedAt: testNow.Add(-2 * time.Hour)}

	_, ok := findingOf(analyzeUser(testNow, young, 10, 0, nil), types.FindingNewAccountSpam)
	assert.False(ok)

	finding, ok := findingOf(analyzeUser(testNow, young, 11, 0, nil), types.FindingNewAccountSpam)
	assert.True(ok)
	assert.Equal(types.SeverityMedium, finding.Severity)

	finding, ok = findingOf(analyzeUser(testNow, young, 31, 0, nil), types.FindingNewAccountSpam)
	assert.True(ok)
	assert.Equal(types.SeverityHigh, finding.Severity)

	mature := types.User{ID: 2, CreatedAt: testNow.Add(-48 * time.Hour)}
	_, ok = findingOf(analyzeUser(testNow, mature, 100, 0, nil), types.FindingNewAccountSpam)
	assert.False(ok)
}

func TestDuplicateMessages(t *testing.T) {
	assert := assert.New(t)
	user := types.User{ID: 3, CreatedAt: testNow.Add(-90 * 24 * time.Hour)}
	at := testNow.Add(-3 * time.Hour)

	// case and surrounding whitespace are ignored, inner whitespace is not
	msgs := messagesAt(3, at, "Buy now", " buy now ", "BUY NOW", "buy  now", "hello")
	finding, ok := findingOf(analyzeUser(testNow, user, len(msgs), 0, msgs), types.FindingDuplicateMessages)
	assert.True(ok)
	assert.Equal(types.SeverityMedium, finding.Severity)
	assert.Equal(3, finding.Count)

	msgs = messagesAt(3, at, "spam", "spam", "spam", "spam", "spam")
	finding, _ = findingOf(analyzeUser(testNow, user, len(msgs), 0, msgs), types.FindingDuplicateMessages)
	assert.Equal(types.SeverityHigh, finding.Severity)

	// deleted and blank messages do not count
	msgs = messagesAt(3, at, "spam", "spam", "", "  ", "")
	msgs = append(msgs, types.Message{AuthorID: 3, Content: "spam", Deleted: true, CreatedAt: at})
	_, ok = findingOf(analyzeUser(testNow, user, len(msgs), 0, msgs), types.FindingDuplicateMessages)
	assert.False(ok)
}

func TestHighModerationRate(t *testing.T) {
	user := types.User{ID: 4, CreatedAt: testNow.Add(-90 * 24 * time.Hour)}

	tests := []struct {
		name     string
		total    int
		deleted  int
		severity types.Severity
		found    bool
	}{
		{"too few deletions", 5, 4, "", false},
		{"exactly thirty percent", 20, 6, "", false},
		{"above thirty percent", 15, 5, types.SeverityLow, true},
		{"many deletions", 20, 11, types.SeverityHigh, true},
		{"many but low ratio", 100, 11, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finding, ok := findingOf(analyzeUser(testNow, user, tt.total, tt.deleted, nil), types.FindingHighModerationRate)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.severity, finding.Severity)
		})
	}
}

func TestScanSkipsAdminsAndSuspendedAndSorts(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	st := memstore.New()
	clk := clock.Fake(testNow)
	detector := NewAnomalyDetector(st.Users, st.Messages, clk, discardLogger())

	create := func(name string, role types.Role, age time.Duration) types.User {
		u, err := st.Users.Create(ctx, types.User{Username: name, Role: role, CreatedAt: testNow.Add(-age)})
		require.NoError(t, err)
		return u
	}
	admin := create("root", types.RoleAdmin, 90*24*time.Hour)
	flooder := create("flooder", types.RoleUser, 90*24*time.Hour)
	repeater := create("repeater", types.RoleUser, 90*24*time.Hour)
	banned := create("banned", types.RoleUser, 90*24*time.Hour)
	mod := create("mod", types.RoleModerator, 90*24*time.Hour)

	seed := func(msgs []types.Message) {
		for _, m := range msgs {
			st.Messages.Add(ctx, m)
		}
	}
	seed(messagesAt(admin.ID, testNow.Add(-time.Minute), numbered(80)...))
	seed(messagesAt(flooder.ID, testNow.Add(-time.Minute), numbered(60)...))
	seed(messagesAt(repeater.ID, testNow.Add(-5*time.Hour), "join my server", "Join my server", "join my server "))
	seed(messagesAt(banned.ID, testNow.Add(-time.Minute), numbered(60)...))
	_, err := st.Users.Suspend(ctx, banned.ID, types.Suspension{ActorID: admin.ID, At: testNow})
	require.NoError(t, err)

	findings, err := detector.Scan(ctx, mod.Identity(time.Time{}))
	require.NoError(t, err)
	require.Len(t, findings, 2)

	assert.Equal(flooder.ID, findings[0].UserID)
	assert.Equal(types.FindingRapidPosting, findings[0].Type)
	assert.Equal(types.SeverityHigh, findings[0].Severity)
	assert.Equal(60, findings[0].Count)

	assert.Equal(repeater.ID, findings[1].UserID)
	assert.Equal(types.FindingDuplicateMessages, findings[1].Type)
	assert.Equal(types.SeverityMedium, findings[1].Severity)
	assert.Equal(3, findings[1].Count)

	_, err = detector.Scan(ctx, flooder.Identity(time.Time{}))
	assert.ErrorIs(err, authz.ErrForbidden)
}

func TestScanWithNoActivity(t *testing.T) {
	st := memstore.New()
	detector := NewAnomalyDetector(st.Users, st.Messages, clock.Fake(testNow), discardLogger())

	findings, err := detector.Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, findings)
	assert.Empty(t, findings)
}

func TestSortFindings(t *testing.T) {
	findings := []types.AnomalyFinding{
		{UserID: 2, Type: types.FindingRapidPosting, Severity: types.SeverityLow},
		{UserID: 3, Type: types.FindingRapidPosting, Severity: types.SeverityHigh},
		{UserID: 1, Type: types.FindingRapidPosting, Severity: types.SeverityMedium},
		{UserID: 1, Type: types.FindingDuplicateMessages, Severity: types.SeverityMedium},
		{UserID: 1, Type: types.FindingNewAccountSpam, Severity: types.SeverityHigh},
	}
	sortFindings(findings)

	got := make([]string, len(findings))
	for i, f := range findings {
		got[i] = fmt.Sprintf("%s/%d/%s", f.Severity, f.UserID, f.Type)
	}
	assert.Equal(t, []string{
		"high/1/new_account_spam",
		"high/3/rapid_posting",
		"medium/1/duplicate_messages",
		"medium/1/rapid_posting",
		"low/2/rapid_posting",
	}, got)
}
