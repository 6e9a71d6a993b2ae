package repository

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
)

// MemoryStore is an in-process Store for tests and for running without a
// database. InTx units are serialized; each write inside a unit logs its
// inverse, and a failed unit replays those in reverse. Writes made outside
// any unit are never undone.
type MemoryStore struct {
	state *memState
	log   *undoLog
}

type memState struct {
	txMu sync.Mutex

	mu        sync.Mutex
	profiles  map[uuid.UUID]domain.UserProfile
	sessions  map[uuid.UUID]domain.Session
	anomalies []domain.AnomalyLogEntry
	authUsers map[string]domain.AuthUser
	outbox    []domain.OutboxRecord
	outboxSeq int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		profiles:  make(map[uuid.UUID]domain.UserProfile),
		sessions:  make(map[uuid.UUID]domain.Session),
		authUsers: make(map[string]domain.AuthUser),
	}}
}

func (s *MemoryStore) Profiles() ProfileRepository   { return memProfiles{s.state, s.log} }
func (s *MemoryStore) Sessions() SessionRepository   { return memSessions{s.state, s.log} }
func (s *MemoryStore) Anomalies() AnomalyRepository  { return memAnomalies{s.state, s.log} }
func (s *MemoryStore) Outbox() OutboxRepository      { return memOutbox{s.state, s.log} }
func (s *MemoryStore) AuthUsers() AuthUserRepository { return memAuthUsers{s.state, s.log} }

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.log != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state.txMu.Lock()
	defer s.state.txMu.Unlock()

	log := &undoLog{}
	if err := fn(&MemoryStore{state: s.state, log: log}); err != nil {
		s.state.rollback(log)
		return err
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// undoLog holds the inverse of each write made by one unit. Entries run
// with memState.mu held.
type undoLog struct{ undo []func() }

func (l *undoLog) add(f func()) {
	if l != nil {
		l.undo = append(l.undo, f)
	}
}

func (m *memState) rollback(l *undoLog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(l.undo) - 1; i >= 0; i-- {
		l.undo[i]()
	}
}

// --- profiles ---

type memProfiles struct {
	m   *memState
	log *undoLog
}

func (r memProfiles) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// LockForUpdate relies on InTx serialization for exclusivity.
func (r memProfiles) LockForUpdate(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	return r.FindByUserID(ctx, userID)
}

func (r memProfiles) Create(ctx context.Context, p *domain.UserProfile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.profiles[p.UserID]; ok {
		return domain.ErrConflict("profile already exists")
	}
	for _, existing := range r.m.profiles {
		if existing.Username == p.Username {
			return domain.ErrConflict("username already exists")
		}
	}
	r.m.profiles[p.UserID] = *p
	id := p.UserID
	r.log.add(func() { delete(r.m.profiles, id) })
	return nil
}

func (r memProfiles) Update(ctx context.Context, p *domain.UserProfile) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.profiles[p.UserID]
	if !ok {
		return domain.ErrNotFound("profile", p.UserID.String())
	}
	prev := cur
	r.log.add(func() { r.m.profiles[prev.UserID] = prev })
	cur.RiskScore = p.RiskScore
	cur.AccountStatus = p.AccountStatus
	cur.LastLoginAt = p.LastLoginAt
	cur.StatusUpdatedAt = p.StatusUpdatedAt
	r.m.profiles[p.UserID] = cur
	return nil
}

// --- sessions ---

type memSessions struct {
	m   *memState
	log *undoLog
}

func (r memSessions) FindByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(s), nil
}

func (r memSessions) FindRecentActive(ctx context.Context, userID uuid.UUID, since time.Time) (*domain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var best *domain.Session
	for _, s := range r.m.sessions {
		if s.UserID != userID || !s.SeenSince(since) {
			continue
		}
		if best == nil || s.LastSeenAt.After(best.LastSeenAt) ||
			(s.LastSeenAt.Equal(best.LastSeenAt) && s.CreatedAt.After(best.CreatedAt)) {
			best = cloneSession(s)
		}
	}
	return best, nil
}

func (r memSessions) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Session, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var out []domain.Session
	for _, s := range r.m.sessions {
		if s.UserID == userID {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memSessions) Insert(ctx context.Context, s *domain.Session) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.sessions[s.ID]; ok {
		return errors.New("duplicate session id")
	}
	r.m.sessions[s.ID] = *cloneSession(*s)
	id := s.ID
	r.log.add(func() { delete(r.m.sessions, id) })
	return nil
}

func (r memSessions) Deactivate(ctx context.Context, id uuid.UUID, reason *string, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok || !s.IsActive {
		return false, nil
	}
	prevReason, prevSeen := s.KickedReason, s.LastSeenAt
	s.IsActive = false
	if reason != nil {
		v := *reason
		s.KickedReason = &v
	}
	s.LastSeenAt = at
	r.m.sessions[id] = s
	r.log.add(func() {
		cur := r.m.sessions[id]
		cur.IsActive = true
		cur.KickedReason = prevReason
		if cur.LastSeenAt.Equal(at) {
			cur.LastSeenAt = prevSeen
		}
		r.m.sessions[id] = cur
	})
	return true, nil
}

func (r memSessions) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.sessions[id]
	if !ok {
		return domain.ErrNotFound("session", id.String())
	}
	prevSeen := s.LastSeenAt
	s.LastSeenAt = at
	r.m.sessions[id] = s
	r.log.add(func() {
		cur := r.m.sessions[id]
		if cur.LastSeenAt.Equal(at) {
			cur.LastSeenAt = prevSeen
			r.m.sessions[id] = cur
		}
	})
	return nil
}

func cloneSession(s domain.Session) *domain.Session {
	s.FingerprintRaw = maps.Clone(s.FingerprintRaw)
	if s.KickedReason != nil {
		v := *s.KickedReason
		s.KickedReason = &v
	}
	return &s
}

// --- anomalies ---

type memAnomalies struct {
	m   *memState
	log *undoLog
}

func (r memAnomalies) Append(ctx context.Context, e *domain.AnomalyLogEntry) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.anomalies = append(r.m.anomalies, *e)
	id := e.ID
	r.log.add(func() {
		r.m.anomalies = slices.DeleteFunc(r.m.anomalies, func(a domain.AnomalyLogEntry) bool { return a.ID == id })
	})
	return nil
}

func (r memAnomalies) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.AnomalyLogEntry, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var out []domain.AnomalyLogEntry
	for i := len(r.m.anomalies) - 1; i >= 0; i-- {
		if r.m.anomalies[i].UserID == userID {
			out = append(out, r.m.anomalies[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// --- outbox ---

type memOutbox struct {
	m   *memState
	log *undoLog
}

func (r memOutbox) Insert(ctx context.Context, draft domain.OutboxDraft) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.outboxSeq++
	seq := r.m.outboxSeq
	r.m.outbox = append(r.m.outbox, domain.OutboxRecord{SeqID: seq, OutboxDraft: draft})
	// like a database sequence, outboxSeq is not rewound
	r.log.add(func() {
		r.m.outbox = slices.DeleteFunc(r.m.outbox, func(rec domain.OutboxRecord) bool { return rec.SeqID == seq })
	})
	return nil
}

func (r memOutbox) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	n := len(r.m.outbox)
	if limit > 0 && n > limit {
		n = limit
	}
	return slices.Clone(r.m.outbox[:n]), nil
}

func (r memOutbox) MarkPublished(ctx context.Context, ids []int64) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var removed []domain.OutboxRecord
	r.m.outbox = slices.DeleteFunc(r.m.outbox, func(rec domain.OutboxRecord) bool {
		if slices.Contains(ids, rec.SeqID) {
			removed = append(removed, rec)
			return true
		}
		return false
	})
	if len(removed) > 0 {
		r.log.add(func() {
			r.m.outbox = append(r.m.outbox, removed...)
			slices.SortFunc(r.m.outbox, func(a, b domain.OutboxRecord) int { return cmp.Compare(a.SeqID, b.SeqID) })
		})
	}
	return nil
}

// --- auth users ---

type memAuthUsers struct {
	m   *memState
	log *undoLog
}

func (r memAuthUsers) FindByUsername(ctx context.Context, username string) (*domain.AuthUser, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	u, ok := r.m.authUsers[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r memAuthUsers) Create(ctx context.Context, user *domain.AuthUser) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.authUsers[user.Username]; ok {
		return domain.ErrConflict("username already exists")
	}
	r.m.authUsers[user.Username] = *user
	name := user.Username
	r.log.add(func() { delete(r.m.authUsers, name) })
	return nil
}
