package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sessionguard/platform/internal/domain"
	"github.com/sessionguard/platform/internal/geo"
	"github.com/sessionguard/platform/internal/guard"
	"github.com/sessionguard/platform/internal/metrics"
	"github.com/sessionguard/platform/internal/policy"
	"github.com/sessionguard/platform/internal/provider"
	"github.com/sessionguard/platform/internal/repository"
)

// maxSupersedeRounds bounds the evict-and-recheck loop run at login.
const maxSupersedeRounds = 5

// SessionDeps collects the collaborators of a SessionService. Locker, Geo,
// Metrics, Logger and Now fall back to in-process defaults when unset.
type SessionDeps struct {
	Store    repository.Store
	Identity provider.IdentityProvider
	Policy   policy.Config
	Locker   guard.Locker
	Geo      geo.Locator
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// SessionService orchestrates login, heartbeat and logout.
type SessionService struct {
	store    repository.Store
	identity provider.IdentityProvider
	cfg      policy.Config
	locker   guard.Locker
	geo      geo.Locator
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionService creates a SessionService.
func NewSessionService(d SessionDeps) *SessionService {
	if d.Locker == nil {
		d.Locker = guard.NewKeyedMutex()
	}
	if d.Geo == nil {
		d.Geo = geo.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &SessionService{
		store:    d.Store,
		identity: d.Identity,
		cfg:      d.Policy,
		locker:   d.Locker,
		geo:      d.Geo,
		metrics:  d.Metrics,
		logger:   d.Logger,
		now:      d.Now,
	}
}

// LoginInput holds the login request fields. IPAddress and UserAgent are
// filled from the transport.
type LoginInput struct {
	Username        string             `json:"username"`
	Password        string             `json:"password"`
	FingerprintRaw  domain.Fingerprint `json:"fingerprint_raw"`
	FingerprintHash string             `json:"fingerprint_hash"`
	IPAddress       string             `json:"-"`
	UserAgent       string             `json:"-"`
}

// UserSummary is the user part of a login result.
type UserSummary struct {
	ID            uuid.UUID            `json:"id"`
	Username      string               `json:"username"`
	AccountStatus domain.AccountStatus `json:"account_status"`
	RiskScore     int                  `json:"risk_score"`
}

// SessionSummary identifies the session opened by a login.
type SessionSummary struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResult is returned on successful login.
type LoginResult struct {
	User    UserSummary    `json:"user"`
	Session SessionSummary `json:"session"`
}

// HeartbeatResult tells the client whether it must drop its session.
type HeartbeatResult struct {
	ForceLogout   bool                 `json:"force_logout"`
	AccountStatus domain.AccountStatus `json:"account_status,omitempty"`
	Message       string               `json:"message,omitempty"`
}

// LogoutResult is returned by every logout with a well-formed session id.
type LogoutResult struct {
	Message string `json:"message"`
}

// loginOutcome carries what a committed login did, for metrics and logging.
type loginOutcome struct {
	sessionID     uuid.UUID
	superseded    bool
	similarity    float64
	evicted       int
	delta         int
	anomaly       domain.AnomalyEventType
	status        domain.AccountStatus
	statusChanged bool
}

// Login authenticates the user, supersedes any current session and opens a
// new one, applying the concurrent-device risk policy. Logins for one user
// are serialized by the user lock and the profile row lock.
func (s *SessionService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := domain.ValidateCredentials(in.Username, in.Password); err != nil {
		s.metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateFingerprint(in.FingerprintRaw, in.FingerprintHash); err != nil {
		s.metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, domain.ErrValidation(err.Error())
	}

	userID, err := s.identity.Authenticate(ctx, in.Username, in.Password)
	if err != nil {
		s.rejectCredentials(in.Username, err)
		return nil, domain.ErrAuth()
	}

	unlock, err := s.locker.Lock(ctx, userLockKey(userID))
	if err != nil {
		s.metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, s.internal("login", fmt.Errorf("acquire user lock: %w", err))
	}
	defer unlock()

	var (
		result *LoginResult
		out    loginOutcome
	)
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		result, out, err = s.login(ctx, tx, userID, in)
		return err
	})
	switch {
	case err == nil:
	case domain.IsCode(err, domain.CodeAuth):
		s.metrics.Logins.WithLabelValues(metrics.OutcomeRejected).Inc()
		s.logger.Info("login rejected for banned account", "user_id", userID)
		return nil, err
	case domain.IsCode(err, domain.CodeNotFound):
		s.metrics.Logins.WithLabelValues(metrics.OutcomeRejected).Inc()
		s.logger.Warn("authenticated user has no profile", "user_id", userID)
		return nil, err
	default:
		s.metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, s.internal("login", err)
	}

	s.recordLogin(userID, out)
	return result, nil
}

func (s *SessionService) login(ctx context.Context, tx repository.Store, userID uuid.UUID, in LoginInput) (*LoginResult, loginOutcome, error) {
	var out loginOutcome

	profile, err := tx.Profiles().LockForUpdate(ctx, userID)
	if err != nil {
		return nil, out, fmt.Errorf("lock profile: %w", err)
	}
	if profile == nil {
		return nil, out, domain.ErrNotFound("profile", userID.String())
	}
	if profile.AccountStatus == domain.StatusBanned {
		return nil, out, domain.ErrAuth()
	}

	now := s.now().UTC()
	registry := NewSessionRegistry(tx.Sessions(), s.cfg.ActivityWindow, func() time.Time { return now })

	previous, evicted, err := s.supersede(ctx, tx, registry, userID, now)
	if err != nil {
		return nil, out, err
	}
	out.evicted = evicted

	similarity, delta := 1.0, 0
	if previous != nil {
		similarity, delta = s.cfg.Assess(previous.FingerprintRaw, in.FingerprintRaw)
		out.superseded = true
	}
	out.similarity, out.delta = similarity, delta

	// A zero configured delta still leaves evidence; the entry records the delta applied.
	if previous != nil && s.cfg.Anomalous(similarity) {
		entry := &domain.AnomalyLogEntry{
			ID:        uuid.New(),
			UserID:    userID,
			EventType: domain.AnomalyConcurrentLoginDifferentDevice,
			Details: domain.AnomalyDetails{
				OldFingerprintHash: previous.FingerprintHash,
				NewFingerprintHash: in.FingerprintHash,
				SimilarityScore:    similarity,
				OldIPCountry:       s.geo.Country(previous.IPAddress),
				NewIPCountry:       s.geo.Country(in.IPAddress),
			},
			RiskScoreChange: delta,
			CreatedAt:       now,
		}
		if err := NewAnomalyLog(tx).Record(ctx, entry); err != nil {
			return nil, out, err
		}
		out.anomaly = entry.EventType
	}

	session := &domain.Session{
		ID:              uuid.New(),
		UserID:          userID,
		FingerprintRaw:  in.FingerprintRaw,
		FingerprintHash: in.FingerprintHash,
		IPAddress:       in.IPAddress,
		UserAgent:       in.UserAgent,
		CreatedAt:       now,
		LastSeenAt:      now,
		SimilarityScore: similarity,
	}
	if err := registry.Create(ctx, session); err != nil {
		return nil, out, err
	}
	if err := tx.Outbox().Insert(ctx, domain.NewSessionCreatedEvent(session)); err != nil {
		return nil, out, fmt.Errorf("outbox session created: %w", err)
	}
	out.sessionID = session.ID

	oldStatus := profile.AccountStatus
	profile.RiskScore = policy.ApplyDelta(profile.RiskScore, delta)
	profile.AccountStatus = s.cfg.Thresholds.StatusFor(profile.RiskScore)
	profile.LastLoginAt = &now
	if profile.AccountStatus != oldStatus {
		profile.StatusUpdatedAt = &now
		out.statusChanged = true
		evt := domain.NewAccountStatusChangedEvent(userID, oldStatus, profile.AccountStatus, profile.RiskScore, now)
		if err := tx.Outbox().Insert(ctx, evt); err != nil {
			return nil, out, fmt.Errorf("outbox status change: %w", err)
		}
	}
	out.status = profile.AccountStatus
	if err := tx.Profiles().Update(ctx, profile); err != nil {
		return nil, out, fmt.Errorf("update profile: %w", err)
	}

	return &LoginResult{
		User: UserSummary{
			ID:            userID,
			Username:      profile.Username,
			AccountStatus: profile.AccountStatus,
			RiskScore:     profile.RiskScore,
		},
		Session: SessionSummary{ID: session.ID, CreatedAt: session.CreatedAt},
	}, out, nil
}

// supersede evicts every current session of the user and returns the first
// one it closed, which the new login is scored against. An eviction that
// finds the session already closed re-reads instead of trusting the stale row.
func (s *SessionService) supersede(ctx context.Context, tx repository.Store, registry *SessionRegistry, userID uuid.UUID, now time.Time) (*domain.Session, int, error) {
	var previous *domain.Session
	evicted := 0
	for round := 0; round < maxSupersedeRounds; round++ {
		current, err := registry.FindRecentActive(ctx, userID)
		if err != nil {
			return nil, evicted, err
		}
		if current == nil {
			return previous, evicted, nil
		}

		changed, err := registry.Evict(ctx, current.ID, domain.KickedReasonNewLogin)
		if err != nil {
			return nil, evicted, err
		}
		if !changed {
			continue
		}
		if previous == nil {
			previous = current
		}
		evicted++

		evt := domain.NewSessionRevokedEvent(current.ID, userID, domain.KickedReasonNewLogin, now)
		if err := tx.Outbox().Insert(ctx, evt); err != nil {
			return nil, evicted, fmt.Errorf("outbox session revoked: %w", err)
		}
	}
	return nil, evicted, fmt.Errorf("active sessions of user %s did not settle after %d rounds", userID, maxSupersedeRounds)
}

func (s *SessionService) recordLogin(userID uuid.UUID, out loginOutcome) {
	s.metrics.Logins.WithLabelValues(metrics.OutcomeSuccess).Inc()
	if out.superseded {
		s.metrics.Similarity.Observe(out.similarity)
	}
	if out.evicted > 0 {
		s.metrics.Evictions.WithLabelValues(domain.KickedReasonNewLogin).Add(float64(out.evicted))
	}
	if out.anomaly != "" {
		s.metrics.Anomalies.WithLabelValues(string(out.anomaly)).Inc()
		s.logger.Warn("concurrent login from different device",
			"user_id", userID,
			"similarity", out.similarity,
			"risk_delta", out.delta,
		)
	}
	if out.statusChanged {
		s.metrics.StatusChanges.WithLabelValues(string(out.status)).Inc()
		s.logger.Warn("account status changed", "user_id", userID, "status", out.status)
	}
	s.logger.Info("login",
		"user_id", userID,
		"session_id", out.sessionID,
		"evicted", out.evicted,
		"account_status", out.status,
	)
}

// rejectCredentials logs the provider outcome. Callers always get ErrAuth.
func (s *SessionService) rejectCredentials(username string, err error) {
	if errors.Is(err, provider.ErrUnavailable) {
		s.metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		s.logger.Error("identity provider failure", "username", username, "error", err)
		return
	}
	s.metrics.Logins.WithLabelValues(metrics.OutcomeRejected).Inc()
	s.logger.Info("login rejected", "username", username)
}

// Heartbeat refreshes a session and reports whether the client must log out.
// A ban issued out of band closes the session here.
func (s *SessionService) Heartbeat(ctx context.Context, rawSessionID string) (*HeartbeatResult, error) {
	id, err := domain.ParseSessionID(rawSessionID)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	registry := s.registry(s.store)
	session, err := registry.Get(ctx, id)
	if err != nil {
		return nil, s.internal("heartbeat", err)
	}
	if session == nil {
		return nil, domain.ErrNotFound("session", id.String())
	}
	if err := registry.Touch(ctx, id); err != nil {
		if domain.IsCode(err, domain.CodeNotFound) {
			return nil, err
		}
		return nil, s.internal("heartbeat", fmt.Errorf("touch session: %w", err))
	}

	profile, err := s.store.Profiles().FindByUserID(ctx, session.UserID)
	if err != nil {
		return nil, s.internal("heartbeat", fmt.Errorf("find profile: %w", err))
	}
	if profile == nil {
		return nil, domain.ErrNotFound("profile", session.UserID.String())
	}
	if profile.AccountStatus != domain.StatusBanned {
		return &HeartbeatResult{AccountStatus: profile.AccountStatus}, nil
	}

	var closed bool
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		closed, err = s.registry(tx).Evict(ctx, id, domain.KickedReasonBanned)
		if err != nil || !closed {
			return err
		}
		evt := domain.NewSessionRevokedEvent(id, session.UserID, domain.KickedReasonBanned, s.clock())
		return tx.Outbox().Insert(ctx, evt)
	})
	if err != nil {
		return nil, s.internal("heartbeat", err)
	}

	s.metrics.ForcedLogouts.Inc()
	if closed {
		s.metrics.Evictions.WithLabelValues(domain.KickedReasonBanned).Inc()
		s.logger.Warn("session closed for banned account", "user_id", session.UserID, "session_id", id)
	}
	return &HeartbeatResult{ForceLogout: true, Message: "account has been banned"}, nil
}

// Logout closes a session. Unknown and already closed sessions succeed, and
// storage failures are logged rather than returned.
func (s *SessionService) Logout(ctx context.Context, rawSessionID string) (*LogoutResult, error) {
	id, err := domain.ParseSessionID(rawSessionID)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	var revoked bool
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		registry := s.registry(tx)
		session, err := registry.Get(ctx, id)
		if err != nil || session == nil {
			return err
		}
		revoked, err = registry.Deactivate(ctx, id)
		if err != nil || !revoked {
			return err
		}
		evt := domain.NewSessionRevokedEvent(id, session.UserID, domain.RevokeReasonLogout, s.clock())
		return tx.Outbox().Insert(ctx, evt)
	})
	if err != nil {
		s.logger.Error("logout failed", "session_id", id, "error", err)
	} else if revoked {
		s.metrics.Evictions.WithLabelValues(domain.RevokeReasonLogout).Inc()
		s.logger.Info("logout", "session_id", id)
	}
	return &LogoutResult{Message: "logged out"}, nil
}

func (s *SessionService) registry(store repository.Store) *SessionRegistry {
	return NewSessionRegistry(store.Sessions(), s.cfg.ActivityWindow, s.clock)
}

func (s *SessionService) clock() time.Time { return s.now().UTC() }

// internal logs the cause and returns a generic InternalError.
func (s *SessionService) internal(op string, err error) error {
	s.logger.Error(op+" failed", "error", err)
	return domain.ErrInternal(op+" failed", err)
}

func userLockKey(userID uuid.UUID) string { return "user:" + userID.String() }
