package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Skotchmaster/imageiq/internal/domain"
	"github.com/Skotchmaster/imageiq/internal/events"
	"github.com/Skotchmaster/imageiq/internal/hash"
	"github.com/Skotchmaster/imageiq/internal/logging"
	"github.com/Skotchmaster/imageiq/internal/models"
	"github.com/Skotchmaster/imageiq/internal/repo"
	"github.com/Skotchmaster/imageiq/internal/revocation"
	"github.com/Skotchmaster/imageiq/internal/tokens"
	"github.com/Skotchmaster/imageiq/internal/util"
)

const (
	minPasswordLen = 4
	maxPasswordLen = 72
	maxUsernameLen = 25
)

// AccountStore is the full user repository used by account management.
type AccountStore interface {
	UserStore
	CreateUserIfNotExists(ctx context.Context, u *models.User) error
	ConfirmEmail(ctx context.Context, email string) error
	SetActive(ctx context.Context, id uint, active bool) error
	SetRole(ctx context.Context, id uint, role string) error
	SetPassword(ctx context.Context, id uint, digest string) error
	List(ctx context.Context, offset, limit int) ([]models.User, int64, error)
}

type AccountService struct {
	users         AccountStore
	hasher        *hash.Hasher
	codec         *tokens.Codec
	store         revocation.Store
	emailTokenTTL time.Duration
	publisher     events.Publisher
	publicURL     string
}

func NewAccountService(users AccountStore, hasher *hash.Hasher, codec *tokens.Codec, store revocation.Store, emailTokenTTL time.Duration, publisher events.Publisher) *AccountService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &AccountService{
		users:         users,
		hasher:        hasher,
		codec:         codec,
		store:         store,
		emailTokenTTL: emailTokenTTL,
		publisher:     publisher,
	}
}

// WithPublicURL sets the base used for links in mailer events.
func (s *AccountService) WithPublicURL(base string) *AccountService {
	s.publicURL = strings.TrimRight(base, "/")
	return s
}

type UserPage struct {
	Users []domain.Identity `json:"users"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Size  int               `json:"size"`
}

func (s *AccountService) Register(ctx context.Context, username, email, password string) (*domain.Identity, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if err := validateRegistration(username, email, password); err != nil {
		l.Warn("register_failed", "status", 422, "reason", err.Error())
		return nil, err
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		l.Error("register_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		Avatar:       gravatarURL(email),
		Role:         string(domain.RoleUser),
		Confirmed:    false,
		Active:       true,
	}
	if err := s.users.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_failed", "status", 409, "reason", "user already exist")
			return nil, ErrAlreadyExists
		}
		l.Error("register_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	l.Info("register_succeeded", "user_id", user.ID)
	s.sendVerification(ctx, events.TypeUserRegistered, user)
	return user.Identity(), nil
}

// ConfirmEmail marks the address carried by an email_verify token as confirmed.
func (s *AccountService) ConfirmEmail(ctx context.Context, token string) error {
	l := logging.FromContext(ctx).With("svc", "auth.confirm_email")

	email, err := s.codec.Decode(token, tokens.PurposeEmailVerify)
	if err != nil {
		l.Warn("confirm_failed", "status", 400, "reason", err.Error())
		return err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return s.userErr(l, "confirm_failed", err)
	}
	if user.Confirmed {
		return ErrAlreadyConfirmed
	}
	if err := s.users.ConfirmEmail(ctx, email); err != nil {
		return s.userErr(l, "confirm_failed", err)
	}

	l.Info("email_confirmed", "user_id", user.ID)
	publish(ctx, s.publisher, events.Event{Type: events.TypeEmailConfirmed, Subject: subjectOf(user.ID), Email: email})
	return nil
}

func (s *AccountService) RequestConfirmation(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.request_email")

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return s.userErr(l, "request_email_failed", err)
	}
	if user.Confirmed {
		return ErrAlreadyConfirmed
	}
	s.sendVerification(ctx, events.TypeConfirmationRequested, user)
	return nil
}

// SetActive bans or unbans a user. Admin accounts cannot be banned, and a
// ban also ends the user's session.
func (s *AccountService) SetActive(ctx context.Context, actor *domain.Identity, userID uint, active bool) (*domain.Identity, error) {
	l := logging.FromContext(ctx).With("svc", "users.set_active", "target_id", userID)
	if actor != nil {
		l = l.With("actor_id", actor.ID)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, s.userErr(l, "set_active_failed", err)
	}
	if domain.Role(user.Role) == domain.RoleAdmin {
		l.Warn("set_active_failed", "status", 403, "reason", "target is admin")
		return nil, ErrForbiddenTarget
	}
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		return nil, s.userErr(l, "set_active_failed", err)
	}

	typ := events.TypeUnbanned
	if !active {
		typ = events.TypeBanned
		if err := s.store.Delete(ctx, subjectOf(userID)); err != nil {
			l.Error("set_active_failed", "status", 500, "reason", "cannot drop session", "error", err)
			return nil, fmt.Errorf("delete session: %w", err)
		}
	}

	l.Info("set_active_succeeded", "active", active)
	publish(ctx, s.publisher, events.Event{Type: typ, Subject: subjectOf(userID), Email: user.Email})

	user.Active = active
	return user.Identity(), nil
}

func (s *AccountService) ChangeRole(ctx context.Context, actor *domain.Identity, userID uint, role string) (*domain.Identity, error) {
	l := logging.FromContext(ctx).With("svc", "users.change_role", "target_id", userID)

	r, ok := domain.ParseRole(role)
	if !ok {
		l.Warn("change_role_failed", "status", 422, "reason", "unknown role", "role", role)
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if actor != nil && actor.ID == userID {
		l.Warn("change_role_failed", "status", 403, "reason", "own role")
		return nil, ErrForbiddenTarget
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, s.userErr(l, "change_role_failed", err)
	}
	if domain.Role(user.Role) != r {
		if err := s.users.SetRole(ctx, userID, string(r)); err != nil {
			return nil, s.userErr(l, "change_role_failed", err)
		}
		l.Info("role_changed", "from", user.Role, "to", r)
		publish(ctx, s.publisher, events.Event{Type: events.TypeRoleChanged, Subject: subjectOf(userID), Role: string(r)})
	}

	user.Role = string(r)
	return user.Identity(), nil
}

func (s *AccountService) ListUsers(ctx context.Context, page, size int) (*UserPage, error) {
	offset, limit := util.Calculate(page, size)
	users, total, err := s.users.List(ctx, offset, limit)
	if err != nil {
		logging.FromContext(ctx).Error("list_users_failed", "status", 500, "error", err)
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]domain.Identity, 0, len(users))
	for i := range users {
		out = append(out, *users[i].Identity())
	}
	return &UserPage{Users: out, Total: total, Page: offset/limit + 1, Size: limit}, nil
}

// RequestPasswordReset mails a single-use reset token to a confirmed, active
// user. Only the newest token for a user is accepted.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_password")

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return s.userErr(l, "reset_request_failed", err)
	}
	l = l.With("user_id", user.ID)
	if !user.Confirmed {
		l.Warn("reset_request_failed", "status", 401, "reason", "email not confirmed")
		return ErrUnconfirmed
	}
	if !user.Active {
		l.Warn("reset_request_failed", "status", 403, "reason", "banned")
		return ErrInactive
	}

	token, _, err := s.codec.Issue(user.Email, tokens.PurposePasswordReset, s.emailTokenTTL)
	if err != nil {
		l.Error("reset_request_failed", "status", 500, "error", err)
		return fmt.Errorf("issue reset token: %w", err)
	}
	if err := s.store.Put(ctx, resetKey(user.ID), tokens.Fingerprint(token), s.emailTokenTTL); err != nil {
		l.Error("reset_request_failed", "status", 500, "reason", "cannot store reset token", "error", err)
		return fmt.Errorf("store reset token: %w", err)
	}

	l.Info("reset_requested")
	publish(ctx, s.publisher, events.Event{
		Type:     events.TypePasswordResetRequested,
		Subject:  subjectOf(user.ID),
		Email:    user.Email,
		Username: user.Username,
		Token:    token,
		Link:     s.link("/api/auth/reset_password/", token),
	})
	return nil
}

// ResetPassword sets a new password from a reset token and ends the user's
// session. A used or superseded token is ErrRevokedToken.
func (s *AccountService) ResetPassword(ctx context.Context, token, password string) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_password_confirm")

	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		l.Warn("reset_failed", "status", 422, "reason", "password length")
		return fmt.Errorf("%w: password must be %d to %d bytes", ErrValidation, minPasswordLen, maxPasswordLen)
	}
	email, err := s.codec.Decode(token, tokens.PurposePasswordReset)
	if err != nil {
		l.Warn("reset_failed", "status", 400, "reason", err.Error())
		return err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return s.userErr(l, "reset_failed", err)
	}
	l = l.With("user_id", user.ID)

	stored, err := s.store.Get(ctx, resetKey(user.ID))
	switch {
	case errors.Is(err, revocation.ErrNotFound):
		l.Warn("reset_failed", "status", 400, "reason", "token already used")
		return ErrRevokedToken
	case err != nil:
		l.Error("reset_failed", "status", 500, "error", err)
		return fmt.Errorf("load reset token: %w", err)
	}
	if !tokens.FingerprintMatches(token, stored) {
		l.Warn("reset_failed", "status", 400, "reason", "superseded token")
		return ErrRevokedToken
	}
	if !user.Active {
		l.Warn("reset_failed", "status", 403, "reason", "banned")
		return ErrInactive
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		l.Error("reset_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPassword(ctx, user.ID, digest); err != nil {
		return s.userErr(l, "reset_failed", err)
	}
	for _, key := range []string{resetKey(user.ID), subjectOf(user.ID)} {
		if err := s.store.Delete(ctx, key); err != nil {
			l.Error("reset_failed", "status", 500, "reason", "cannot drop session", "error", err)
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}

	l.Info("password_reset")
	publish(ctx, s.publisher, events.Event{
		Type:     events.TypePasswordReset,
		Subject:  subjectOf(user.ID),
		Email:    user.Email,
		Username: user.Username,
	})
	return nil
}

func (s *AccountService) sendVerification(ctx context.Context, typ string, user *models.User) {
	token, _, err := s.codec.Issue(user.Email, tokens.PurposeEmailVerify, s.emailTokenTTL)
	if err != nil {
		logging.FromContext(ctx).Error("verification_token_failed", "user_id", user.ID, "error", err)
		return
	}
	publish(ctx, s.publisher, events.Event{
		Type:     typ,
		Subject:  subjectOf(user.ID),
		Email:    user.Email,
		Username: user.Username,
		Token:    token,
		Link:     s.link("/api/auth/confirmed_email/", token),
	})
}

func (s *AccountService) link(path, token string) string {
	if s.publicURL == "" {
		return ""
	}
	return s.publicURL + path + url.PathEscape(token)
}

// resetKey keeps reset tokens apart from refresh sessions in the same store.
func resetKey(id uint) string {
	return "reset:" + subjectOf(id)
}

func (s *AccountService) userErr(l *slog.Logger, event string, err error) error {
	if errors.Is(err, repo.ErrUserNotFound) {
		l.Warn(event, "status", 404, "reason", "user not found")
		return ErrUnknownIdentity
	}
	l.Error(event, "status", 500, "error", err)
	return err
}

func publish(ctx context.Context, p events.Publisher, e events.Event) {
	if err := p.Publish(ctx, e); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "type", e.Type, "error", err)
	}
}

func validateRegistration(username, email, password string) error {
	switch n := utf8.RuneCountInString(username); {
	case n == 0:
		return fmt.Errorf("%w: username is required", ErrValidation)
	case n > maxUsernameLen:
		return fmt.Errorf("%w: username is longer than %d characters", ErrValidation, maxUsernameLen)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return fmt.Errorf("%w: password must be %d to %d bytes", ErrValidation, minPasswordLen, maxPasswordLen)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func gravatarURL(email string) string {
	sum := md5.Sum([]byte(email))
	return "https://www.gravatar.com/avatar/" + hex.EncodeToString(sum[:]) + "?d=identicon"
}
