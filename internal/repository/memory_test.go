package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProfile(t *testing.T, s *MemoryStore, username string) *domain.UserProfile {
	t.Helper()
	p := &domain.UserProfile{
		UserID:        uuid.New(),
		Username:      username,
		AccountStatus: domain.StatusActive,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, s.Profiles().Create(context.Background(), p))
	return p
}

func newSession(userID uuid.UUID, lastSeen time.Time) *domain.Session {
	return &domain.Session{
		ID:              uuid.New(),
		UserID:          userID,
		FingerprintRaw:  domain.Fingerprint{"canvas_hash": "abc"},
		FingerprintHash: "h",
		IsActive:        true,
		CreatedAt:       lastSeen,
		LastSeenAt:      lastSeen,
		SimilarityScore: 1.0,
	}
}

func TestMemoryProfiles(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProfile(t, s, "alice")

	got, err := s.Profiles().FindByUserID(ctx, p.UserID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)

	missing, err := s.Profiles().FindByUserID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := &domain.UserProfile{UserID: uuid.New(), Username: "alice"}
	assert.True(t, domain.IsCode(s.Profiles().Create(ctx, dup), domain.CodeConflict))

	got.RiskScore = 45
	got.AccountStatus = domain.StatusLimited
	require.NoError(t, s.Profiles().Update(ctx, got))

	again, err := s.Profiles().LockForUpdate(ctx, p.UserID)
	require.NoError(t, err)
	assert.Equal(t, 45, again.RiskScore)
	assert.Equal(t, domain.StatusLimited, again.AccountStatus)

	err = s.Profiles().Update(ctx, &domain.UserProfile{UserID: uuid.New()})
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestMemorySessions_FindRecentActive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	userID := uuid.New()
	now := time.Now()

	stale := newSession(userID, now.Add(-20*time.Minute))
	older := newSession(userID, now.Add(-10*time.Minute))
	newer := newSession(userID, now.Add(-2*time.Minute))
	inactive := newSession(userID, now.Add(-time.Minute))
	inactive.IsActive = false
	other := newSession(uuid.New(), now)

	for _, sess := range []*domain.Session{stale, older, newer, inactive, other} {
		require.NoError(t, s.Sessions().Insert(ctx, sess))
	}

	got, err := s.Sessions().FindRecentActive(ctx, userID, now.Add(-15*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, newer.ID, got.ID, "most recently seen active session wins")

	none, err := s.Sessions().FindRecentActive(ctx, userID, now)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemorySessions_Deactivate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sess := newSession(uuid.New(), time.Now())
	require.NoError(t, s.Sessions().Insert(ctx, sess))

	reason := domain.KickedReasonNewLogin
	at := time.Now().Add(time.Second)

	changed, err := s.Sessions().Deactivate(ctx, sess.ID, &reason, at)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.Sessions().Deactivate(ctx, sess.ID, nil, at)
	require.NoError(t, err)
	assert.False(t, changed, "second close is a no-op")

	changed, err = s.Sessions().Deactivate(ctx, uuid.New(), nil, at)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.Sessions().FindByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.KickedReason)
	assert.Equal(t, "new_login", *got.KickedReason)
	assert.True(t, got.LastSeenAt.Equal(at))
}

func TestMemorySessions_Touch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sess := newSession(uuid.New(), time.Now().Add(-time.Hour))
	require.NoError(t, s.Sessions().Insert(ctx, sess))

	at := time.Now()
	require.NoError(t, s.Sessions().Touch(ctx, sess.ID, at))
	got, _ := s.Sessions().FindByID(ctx, sess.ID)
	assert.True(t, got.LastSeenAt.Equal(at))

	err := s.Sessions().Touch(ctx, uuid.New(), at)
	assert.True(t, domain.IsCode(err, domain.CodeNotFound))
}

func TestMemorySessions_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sess := newSession(uuid.New(), time.Now())
	require.NoError(t, s.Sessions().Insert(ctx, sess))

	sess.FingerprintRaw["canvas_hash"] = "mutated"
	got, _ := s.Sessions().FindByID(ctx, sess.ID)
	assert.Equal(t, "abc", got.FingerprintRaw["canvas_hash"])

	got.IsActive = false
	again, _ := s.Sessions().FindByID(ctx, sess.ID)
	assert.True(t, again.IsActive)
}

func TestMemoryStore_InTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProfile(t, s, "bob")
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Store) error {
		require.NoError(t, tx.Sessions().Insert(ctx, newSession(p.UserID, time.Now())))
		require.NoError(t, tx.Anomalies().Append(ctx, &domain.AnomalyLogEntry{ID: uuid.New(), UserID: p.UserID}))
		require.NoError(t, tx.Outbox().Insert(ctx, domain.OutboxDraft{EventID: uuid.New()}))
		p.RiskScore = 99
		require.NoError(t, tx.Profiles().Update(ctx, p))
		return boom
	})
	require.ErrorIs(t, err, boom)

	sessions, _ := s.Sessions().ListByUser(ctx, p.UserID, 10)
	assert.Empty(t, sessions)
	anomalies, _ := s.Anomalies().ListByUser(ctx, p.UserID, 10)
	assert.Empty(t, anomalies)
	events, _ := s.Outbox().FetchUnpublished(ctx, 10)
	assert.Empty(t, events)
	got, _ := s.Profiles().FindByUserID(ctx, p.UserID)
	assert.Equal(t, 0, got.RiskScore)
}

func TestMemoryStore_RollbackKeepsWritesOutsideUnit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProfile(t, s, "dave")
	start := time.Now().Add(-time.Hour)
	kicked := newSession(p.UserID, start)
	other := newSession(uuid.New(), start)
	require.NoError(t, s.Sessions().Insert(ctx, kicked))
	require.NoError(t, s.Sessions().Insert(ctx, other))
	require.NoError(t, s.Outbox().Insert(ctx, domain.OutboxDraft{EventID: uuid.New()}))

	heartbeat := start.Add(30 * time.Minute)
	reason := "new_login"
	err := s.InTx(ctx, func(tx Store) error {
		ok, err := tx.Sessions().Deactivate(ctx, kicked.ID, &reason, start.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.Sessions().Touch(ctx, other.ID, start.Add(2*time.Minute)))

		// heartbeat and relay run beside the unit, outside it
		require.NoError(t, s.Sessions().Touch(ctx, other.ID, heartbeat))
		require.NoError(t, s.Outbox().MarkPublished(ctx, []int64{1}))
		require.NoError(t, s.Outbox().Insert(ctx, domain.OutboxDraft{EventID: uuid.New()}))
		return errors.New("boom")
	})
	require.Error(t, err)

	got, _ := s.Sessions().FindByID(ctx, kicked.ID)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.KickedReason)
	assert.True(t, got.LastSeenAt.Equal(start))

	got, _ = s.Sessions().FindByID(ctx, other.ID)
	assert.True(t, got.LastSeenAt.Equal(heartbeat), "heartbeat outside the unit survives rollback")

	events, _ := s.Outbox().FetchUnpublished(ctx, 10)
	require.Len(t, events, 1)
	assert.Equal(t, int64(2), events[0].SeqID)
}

func TestMemoryStore_InTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	p := seedProfile(t, s, "carol")

	err := s.InTx(ctx, func(tx Store) error {
		// nested units join the outer one
		return tx.InTx(ctx, func(inner Store) error {
			return inner.Sessions().Insert(ctx, newSession(p.UserID, time.Now()))
		})
	})
	require.NoError(t, err)

	sessions, _ := s.Sessions().ListByUser(ctx, p.UserID, 10)
	assert.Len(t, sessions, 1)
}

func TestMemoryAnomalies_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	userID := uuid.New()

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Anomalies().Append(ctx, &domain.AnomalyLogEntry{
			ID: uuid.New(), UserID: userID, RiskScoreChange: i,
		}))
	}
	require.NoError(t, s.Anomalies().Append(ctx, &domain.AnomalyLogEntry{ID: uuid.New(), UserID: uuid.New()}))

	entries, err := s.Anomalies().ListByUser(ctx, userID, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].RiskScoreChange)
	assert.Equal(t, 2, entries[1].RiskScoreChange)
}

func TestMemoryOutbox(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Outbox().Insert(ctx, domain.OutboxDraft{EventID: uuid.New()}))
	}

	batch, err := s.Outbox().FetchUnpublished(ctx, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0].SeqID)
	assert.Equal(t, int64(2), batch[1].SeqID)

	require.NoError(t, s.Outbox().MarkPublished(ctx, []int64{batch[0].SeqID, batch[1].SeqID}))
	rest, err := s.Outbox().FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, int64(3), rest[0].SeqID)
}

func TestMemoryAuthUsers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := &domain.AuthUser{ID: uuid.New(), Username: "dave", PasswordHash: "x"}
	require.NoError(t, s.AuthUsers().Create(ctx, u))

	got, err := s.AuthUsers().FindByUsername(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	missing, err := s.AuthUsers().FindByUsername(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.AuthUsers().Create(ctx, &domain.AuthUser{ID: uuid.New(), Username: "dave"})
	assert.True(t, domain.IsCode(err, domain.CodeConflict))
}
