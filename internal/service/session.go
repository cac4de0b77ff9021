package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Skotchmaster/imageiq/internal/domain"
	"github.com/Skotchmaster/imageiq/internal/events"
	"github.com/Skotchmaster/imageiq/internal/hash"
	"github.com/Skotchmaster/imageiq/internal/logging"
	"github.com/Skotchmaster/imageiq/internal/models"
	"github.com/Skotchmaster/imageiq/internal/repo"
	"github.com/Skotchmaster/imageiq/internal/revocation"
	"github.com/Skotchmaster/imageiq/internal/tokens"
)

const TokenTypeBearer = "bearer"

// UserStore is the read side of the user repository.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

type SessionConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RevokeOnReuse drops the stored session when a superseded refresh token is presented.
	RevokeOnReuse bool
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type SessionManager struct {
	users     UserStore
	hasher    *hash.Hasher
	codec     *tokens.Codec
	store     revocation.Store
	cfg       SessionConfig
	publisher events.Publisher
}

func NewSessionManager(users UserStore, hasher *hash.Hasher, codec *tokens.Codec, store revocation.Store, cfg SessionConfig, publisher events.Publisher) *SessionManager {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SessionManager{
		users:     users,
		hasher:    hasher,
		codec:     codec,
		store:     store,
		cfg:       cfg,
		publisher: publisher,
	}
}

func (m *SessionManager) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := m.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			m.hasher.VerifyDecoy(password)
			l.Warn("login_failed", "status", 401, "reason", "unknown email")
			return nil, ErrUnknownIdentity
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("load user: %w", err)
	}
	l = l.With("user_id", user.ID)

	if !user.Confirmed {
		l.Warn("login_failed", "status", 401, "reason", "email not confirmed")
		return nil, ErrUnconfirmed
	}
	if !m.hasher.Verify(password, user.PasswordHash) {
		l.Warn("login_failed", "status", 401, "reason", "bad password")
		return nil, ErrBadCredentials
	}
	if !user.Active {
		l.Warn("login_failed", "status", 403, "reason", "banned")
		return nil, ErrInactive
	}

	pair, err := m.issuePair(ctx, subjectOf(user.ID))
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	l.Info("login_succeeded")
	publish(ctx, m.publisher, events.Event{Type: events.TypeLoggedIn, Subject: subjectOf(user.ID), Email: user.Email})
	return pair, nil
}

// Refresh exchanges the current refresh token for a new pair. Any other
// refresh token for the same subject is rejected with ErrRevokedToken.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	subject, err := m.codec.Decode(refreshToken, tokens.PurposeRefresh)
	if err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", err.Error())
		return nil, err
	}
	l = l.With("user_id", subject)

	stored, err := m.store.Get(ctx, subject)
	switch {
	case errors.Is(err, revocation.ErrNotFound):
		l.Warn("refresh_failed", "status", 401, "reason", "no active session")
		return nil, ErrRevokedToken
	case err != nil:
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("load session: %w", err)
	}

	if !tokens.FingerprintMatches(refreshToken, stored) {
		if m.cfg.RevokeOnReuse {
			if err := m.store.Delete(ctx, subject); err != nil {
				l.Error("session_revoke_failed", "error", err)
			}
			l.Warn("refresh_failed", "status", 401, "reason", "superseded token reused, session revoked")
		} else {
			l.Warn("refresh_failed", "status", 401, "reason", "superseded token")
		}
		return nil, ErrRevokedToken
	}

	if _, err := m.activeUser(ctx, subject); err != nil {
		l.Warn("refresh_failed", "status", 401, "reason", err.Error())
		return nil, err
	}

	pair, err := m.issuePair(ctx, subject)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}
	l.Info("refresh_succeeded")
	return pair, nil
}

// Logout ends the subject's session. Tokens that cannot be verified are
// ignored, so only store failures are reported.
func (m *SessionManager) Logout(ctx context.Context, token string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	subject, err := m.codec.Subject(token)
	if err != nil {
		l.Debug("logout_ignored", "reason", err.Error())
		return nil
	}
	if err := m.store.Delete(ctx, subject); err != nil {
		l.Error("logout_failed", "status", 500, "user_id", subject, "error", err)
		return fmt.Errorf("delete session: %w", err)
	}

	l.Info("logout_succeeded", "user_id", subject)
	publish(ctx, m.publisher, events.Event{Type: events.TypeLoggedOut, Subject: subject})
	return nil
}

// ResolveIdentity authenticates an access token and loads the user fresh
// from the store on every call.
func (m *SessionManager) ResolveIdentity(ctx context.Context, accessToken string) (*domain.Identity, error) {
	subject, err := m.codec.Decode(accessToken, tokens.PurposeAccess)
	if err != nil {
		return nil, err
	}
	user, err := m.activeUser(ctx, subject)
	if err != nil {
		return nil, err
	}
	return user.Identity(), nil
}

func (m *SessionManager) activeUser(ctx context.Context, subject string) (*models.User, error) {
	id, err := parseSubject(subject)
	if err != nil {
		return nil, err
	}
	user, err := m.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return nil, ErrInactive
	}
	return user, nil
}

func (m *SessionManager) issuePair(ctx context.Context, subject string) (*TokenPair, error) {
	access, accessExp, err := m.codec.Issue(subject, tokens.PurposeAccess, m.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := m.codec.Issue(subject, tokens.PurposeRefresh, m.cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := m.store.Put(ctx, subject, tokens.Fingerprint(refresh), m.cfg.RefreshTTL); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        TokenTypeBearer,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func subjectOf(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseSubject(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: subject %q is not a user id", tokens.ErrInvalidToken, subject)
	}
	return uint(id), nil
}
