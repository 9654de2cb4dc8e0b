// Package memstore is an in-memory implementation of the repositories in
// package store. Every operation holds one store-wide mutex, so each call
// is atomic with respect to every other call. It backs the "memory" store
// backend and the unit tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/palaver-chat/apiserver/internal/store"
	"github.com/palaver-chat/apiserver/types"
)

type memberKey struct {
	channelID int
	userID    int
}

type state struct {
	mu sync.Mutex

	users       map[int]types.User
	channels    map[int]types.Channel
	history     []types.LockHistoryEntry
	members     map[memberKey]time.Time
	overrides   map[memberKey]types.LockOverride
	codes       map[int64]types.AccessCode
	log         []types.ModerationLogEntry
	messages    []types.Message
	nextUser    int
	nextChannel int
	nextSeq     int64
}

// Store groups the repositories sharing one state.
type Store struct {
	Users         *UserRepository
	Channels      *ChannelRepository
	AccessCodes   *AccessCodeRepository
	ModerationLog *ModerationLogRepository
	Messages      *MessageRepository
}

func New() *Store {
	s := &state{
		users:     make(map[int]types.User),
		channels:  make(map[int]types.Channel),
		members:   make(map[memberKey]time.Time),
		overrides: make(map[memberKey]types.LockOverride),
		codes:     make(map[int64]types.AccessCode),
	}
	return &Store{
		Users:         &UserRepository{s: s},
		Channels:      &ChannelRepository{s: s},
		AccessCodes:   &AccessCodeRepository{s: s},
		ModerationLog: &ModerationLogRepository{s: s},
		Messages:      &MessageRepository{s: s},
	}
}

// --- users ---

type UserRepository struct {
	s *state
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := make([]types.User, 0, len(r.s.users))
	for _, user := range r.s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// Create stores the user. A zero CreatedAt is set to now so tests can
// backdate accounts.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return types.User{}, store.ErrConflict
		}
	}
	r.s.nextUser++
	user.ID = r.s.nextUser
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = user.CreatedAt
	if !user.Role.Valid() {
		user.Role = types.RoleUser
	}
	if user.Role == types.RoleAdmin {
		user.Suspended = false
	}
	r.s.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) SetRole(ctx context.Context, id int, role types.Role) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.Role = role
	if role == types.RoleAdmin {
		user.Suspended = false
		user.SuspendedAt = nil
		user.SuspendedBy = nil
		user.SuspendReason = ""
	}
	user.UpdatedAt = time.Now()
	r.s.users[id] = user
	return user, nil
}

func (r *UserRepository) Suspend(ctx context.Context, id int, s types.Suspension) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if user.Role == types.RoleAdmin {
		return types.User{}, store.ErrProtected
	}
	if user.Suspended {
		return types.User{}, store.ErrConflict
	}
	at := s.At
	actor := s.ActorID
	user.Suspended = true
	user.SuspendedAt = &at
	user.SuspendedBy = &actor
	user.SuspendReason = s.Reason
	user.UpdatedAt = at
	r.s.users[id] = user
	return user, nil
}

func (r *UserRepository) Unsuspend(ctx context.Context, id int, at time.Time) (types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if !user.Suspended {
		return types.User{}, store.ErrConflict
	}
	user.Suspended = false
	user.SuspendedAt = nil
	user.SuspendedBy = nil
	user.SuspendReason = ""
	user.UpdatedAt = at
	r.s.users[id] = user
	return user, nil
}

// --- channels ---

type ChannelRepository struct {
	s *state
}

func (r *ChannelRepository) Create(ctx context.Context, name string) (types.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextChannel++
	channel := types.Channel{ID: r.s.nextChannel, Name: name, CreatedAt: time.Now()}
	r.s.channels[channel.ID] = channel
	return channel, nil
}

func (r *ChannelRepository) Get(ctx context.Context, id int) (types.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	channel, ok := r.s.channels[id]
	if !ok {
		return types.Channel{}, store.ErrNotFound
	}
	return channel, nil
}

func (r *ChannelRepository) GetLockState(ctx context.Context, id int) (types.ChannelLockState, error) {
	channel, err := r.Get(ctx, id)
	if err != nil {
		return types.ChannelLockState{}, err
	}
	return channel.Lock, nil
}

func (r *ChannelRepository) Lock(ctx context.Context, id, actorID int, reason string, at time.Time) (types.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	channel, ok := r.s.channels[id]
	if !ok {
		return types.Channel{}, store.ErrNotFound
	}
	if channel.Lock.Locked {
		return types.Channel{}, store.ErrConflict
	}
	actor := actorID
	lockedAt := at
	channel.Lock = types.ChannelLockState{Locked: true, LockedBy: &actor, LockedAt: &lockedAt, Reason: reason}
	r.s.channels[id] = channel
	r.s.appendHistory(id, types.LockActionLock, actorID, reason, at)
	return channel, nil
}

func (r *ChannelRepository) Unlock(ctx context.Context, id, actorID int, at time.Time) (types.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	channel, ok := r.s.channels[id]
	if !ok {
		return types.Channel{}, store.ErrNotFound
	}
	if !channel.Lock.Locked {
		return types.Channel{}, store.ErrConflict
	}
	channel.Lock = types.ChannelLockState{}
	r.s.channels[id] = channel
	r.s.appendHistory(id, types.LockActionUnlock, actorID, "", at)
	return channel, nil
}

func (s *state) appendHistory(channelID int, action types.LockAction, actorID int, reason string, at time.Time) {
	s.nextSeq++
	s.history = append(s.history, types.LockHistoryEntry{
		ID:        s.nextSeq,
		ChannelID: channelID,
		Action:    action,
		ActorID:   actorID,
		Reason:    reason,
		CreatedAt: at,
	})
}

func (r *ChannelRepository) ListLockHistory(ctx context.Context, channelID, limit int) ([]types.LockHistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var entries []types.LockHistoryEntry
	for i := len(r.s.history) - 1; i >= 0 && len(entries) < limit; i-- {
		if r.s.history[i].ChannelID == channelID {
			entries = append(entries, r.s.history[i])
		}
	}
	return entries, nil
}

func (r *ChannelRepository) IsMember(ctx context.Context, channelID, userID int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.members[memberKey{channelID, userID}]
	return ok, nil
}

func (r *ChannelRepository) AddMember(ctx context.Context, channelID, userID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.channels[channelID]; !ok {
		return store.ErrNotFound
	}
	key := memberKey{channelID, userID}
	if _, ok := r.s.members[key]; !ok {
		r.s.members[key] = time.Now()
	}
	return nil
}

func (r *ChannelRepository) HasOverride(ctx context.Context, channelID, userID int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.overrides[memberKey{channelID, userID}]
	return ok, nil
}

func (r *ChannelRepository) ListOverrides(ctx context.Context, channelID int) ([]types.LockOverride, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var overrides []types.LockOverride
	for key, o := range r.s.overrides {
		if key.channelID == channelID {
			overrides = append(overrides, o)
		}
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].UserID < overrides[j].UserID })
	return overrides, nil
}

// --- access codes ---

type AccessCodeRepository struct {
	s *state
}

func (r *AccessCodeRepository) Create(ctx context.Context, code types.AccessCode) (types.AccessCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.codes {
		if existing.HashedSecret == code.HashedSecret {
			return types.AccessCode{}, store.ErrConflict
		}
	}
	r.s.nextSeq++
	code.ID = r.s.nextSeq
	code.Used = false
	code.UsedAt = nil
	r.s.codes[code.ID] = code
	return code, nil
}

func (r *AccessCodeRepository) GetByHash(ctx context.Context, hashedSecret string) (types.AccessCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, code := range r.s.codes {
		if code.HashedSecret == hashedSecret {
			return code, nil
		}
	}
	return types.AccessCode{}, store.ErrNotFound
}

func (r *AccessCodeRepository) Redeem(ctx context.Context, code types.AccessCode, userID int, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.codes[code.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Used {
		return store.ErrConflict
	}
	usedAt := at
	current.Used = true
	current.UsedAt = &usedAt
	r.s.codes[code.ID] = current

	key := memberKey{current.ChannelID, userID}
	if _, ok := r.s.overrides[key]; !ok {
		r.s.overrides[key] = types.LockOverride{
			ChannelID: current.ChannelID,
			UserID:    userID,
			GrantedAt: at,
			GrantedBy: current.CreatedBy,
		}
	}
	if _, ok := r.s.members[key]; !ok {
		r.s.members[key] = at
	}
	return nil
}

// --- moderation log ---

type ModerationLogRepository struct {
	s       *state
	failErr error
}

// FailWith makes subsequent appends fail with err; nil restores normal
// behavior.
func (r *ModerationLogRepository) FailWith(err error) {
	r.s.mu.Lock()
	r.failErr = err
	r.s.mu.Unlock()
}

func (r *ModerationLogRepository) Append(ctx context.Context, entry types.ModerationLogEntry) (types.ModerationLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.failErr != nil {
		return types.ModerationLogEntry{}, r.failErr
	}
	r.s.nextSeq++
	entry.ID = r.s.nextSeq
	r.s.log = append(r.s.log, entry)
	return entry, nil
}

func (r *ModerationLogRepository) List(ctx context.Context, limit int) ([]types.ModerationLogEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entries := make([]types.ModerationLogEntry, 0, limit)
	for i := len(r.s.log) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, r.s.log[i])
	}
	return entries, nil
}

// --- messages ---

type MessageRepository struct {
	s *state
}

// Add seeds a message. The messaging service owns writes in production.
func (r *MessageRepository) Add(ctx context.Context, m types.Message) types.Message {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextSeq++
	m.ID = r.s.nextSeq
	r.s.messages = append(r.s.messages, m)
	return m
}

func (r *MessageRepository) CountByAuthor(ctx context.Context, authorID int) (total, deleted int, err error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.messages {
		if m.AuthorID != authorID {
			continue
		}
		total++
		if m.Deleted {
			deleted++
		}
	}
	return total, deleted, nil
}

func (r *MessageRepository) ListByAuthorSince(ctx context.Context, authorID int, since time.Time) ([]types.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var messages []types.Message
	for _, m := range r.s.messages {
		if m.AuthorID == authorID && m.CreatedAt.After(since) {
			messages = append(messages, m)
		}
	}
	return messages, nil
}
