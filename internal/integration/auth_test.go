package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/Skotchmaster/imageiq/internal/db"
	"github.com/Skotchmaster/imageiq/internal/events"
	"github.com/Skotchmaster/imageiq/internal/hash"
	"github.com/Skotchmaster/imageiq/internal/repo"
	"github.com/Skotchmaster/imageiq/internal/revocation"
	"github.com/Skotchmaster/imageiq/internal/service"
	"github.com/Skotchmaster/imageiq/internal/tokens"
)

type integrationEnv struct {
	db       *gorm.DB
	events   *events.Recorder
	sessions *service.SessionManager
	accounts *service.AccountService
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	dsn := os.Getenv("AUTH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUTH_TEST_DATABASE_URL is required for tests")
	}

	gdb, err := db.Open(context.Background(), dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	codec, err := tokens.NewCodec(tokens.Config{Secret: []byte("integration-secret"), Algorithm: "HS512"})
	require.NoError(t, err)

	users := repo.NewGormRepo(gdb)
	hasher := hash.NewHasher(bcrypt.MinCost)
	store := revocation.NewGormStore(gdb)
	rec := &events.Recorder{}

	env := &integrationEnv{
		db:     gdb,
		events: rec,
		sessions: service.NewSessionManager(users, hasher, codec, store,
			service.SessionConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour}, rec),
		accounts: service.NewAccountService(users, hasher, codec, store, time.Hour, rec),
	}

	t.Cleanup(func() {
		gdb.Exec("TRUNCATE TABLE refresh_sessions, users RESTART IDENTITY CASCADE")
		_ = db.Close(gdb)
	})
	return env
}

func uniqueEmail() string {
	return "u_" + uuid.NewString() + "@example.com"
}

func TestPostgres_RegisterConfirmLoginRefreshLogout(t *testing.T) {
	env := newIntegrationEnv(t)
	ctx := context.Background()
	email := uniqueEmail()

	_, err := env.accounts.Register(ctx, "pg", email, "Secret123")
	require.NoError(t, err)
	_, err = env.accounts.Register(ctx, "pg", email, "Secret123")
	assert.ErrorIs(t, err, service.ErrAlreadyExists)

	ev, ok := env.events.Last(events.TypeUserRegistered)
	require.True(t, ok)
	require.NoError(t, env.accounts.ConfirmEmail(ctx, ev.Token))

	first, err := env.sessions.Login(ctx, email, "Secret123")
	require.NoError(t, err)

	second, err := env.sessions.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	_, err = env.sessions.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, service.ErrRevokedToken)

	id, err := env.sessions.ResolveIdentity(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, email, id.Email)

	require.NoError(t, env.sessions.Logout(ctx, second.AccessToken))
	_, err = env.sessions.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, service.ErrRevokedToken)
}
