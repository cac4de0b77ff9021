package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/imageiq/internal/db"
	"github.com/Skotchmaster/imageiq/internal/domain"
	"github.com/Skotchmaster/imageiq/internal/events"
	"github.com/Skotchmaster/imageiq/internal/hash"
	"github.com/Skotchmaster/imageiq/internal/models"
	"github.com/Skotchmaster/imageiq/internal/repo"
	"github.com/Skotchmaster/imageiq/internal/revocation"
	"github.com/Skotchmaster/imageiq/internal/tokens"
)

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 24 * time.Hour
	testPassword   = "s3cret-pass"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	clock    *testClock
	repo     *repo.GormRepo
	hasher   *hash.Hasher
	codec    *tokens.Codec
	store    revocation.Store
	events   *events.Recorder
	sessions *SessionManager
	accounts *AccountService
}

type harnessOption func(*SessionConfig)

func withRevokeOnReuse() harnessOption {
	return func(c *SessionConfig) { c.RevokeOnReuse = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	return newHarnessWithStore(t, nil, opts...)
}

func newHarnessWithStore(t *testing.T, store revocation.Store, opts ...harnessOption) *harness {
	t.Helper()

	gdb, err := db.Open(context.Background(), "sqlite::memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })

	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	codec, err := tokens.NewCodec(tokens.Config{Secret: []byte("test-secret"), Algorithm: "HS256"}, tokens.WithClock(clock.Now))
	require.NoError(t, err)

	if store == nil {
		store = revocation.NewMemoryStore(revocation.WithMemoryClock(clock.Now))
	}

	cfg := SessionConfig{AccessTTL: testAccessTTL, RefreshTTL: testRefreshTTL}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{
		clock:  clock,
		repo:   repo.NewGormRepo(gdb),
		hasher: hash.NewHasher(bcrypt.MinCost),
		codec:  codec,
		store:  store,
		events: &events.Recorder{},
	}
	h.sessions = NewSessionManager(h.repo, h.hasher, codec, store, cfg, h.events)
	h.accounts = NewAccountService(h.repo, h.hasher, codec, store, time.Hour, h.events)
	return h
}

func (h *harness) seedUser(t *testing.T, email string, role domain.Role, confirmed, active bool) *models.User {
	t.Helper()

	digest, err := h.hasher.Hash(testPassword)
	require.NoError(t, err)
	u := &models.User{
		Username:     "seed",
		Email:        email,
		PasswordHash: digest,
		Role:         string(role),
		Confirmed:    confirmed,
		Active:       active,
	}
	require.NoError(t, h.repo.CreateUserIfNotExists(context.Background(), u))
	return u
}

func (h *harness) login(t *testing.T, email string) *TokenPair {
	t.Helper()
	pair, err := h.sessions.Login(context.Background(), email, testPassword)
	require.NoError(t, err)
	return pair
}

var errStoreDown = errors.New("store unavailable")

type brokenStore struct{}

func (brokenStore) Put(context.Context, string, string, time.Duration) error { return errStoreDown }
func (brokenStore) Get(context.Context, string) (string, error)              { return "", errStoreDown }
func (brokenStore) Delete(context.Context, string) error                     { return errStoreDown }
