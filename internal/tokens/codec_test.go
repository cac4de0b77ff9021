package tokens

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCodec(t *testing.T, alg string) (*Codec, *fakeClock) {
	t.Helper()

	clock := &fakeClock{t: time.Unix(1_700_000_000, 0).UTC()}
	c, err := NewCodec(Config{Secret: []byte("test-jwt-secret"), Algorithm: alg}, WithClock(clock.Now))
	require.NoError(t, err)
	return c, clock
}

func TestCodec_IssueDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, alg := range []string{"HS256", "HS512"} {
		alg := alg
		t.Run(alg, func(t *testing.T) {
			t.Parallel()

			c, clock := newTestCodec(t, alg)
			token, exp, err := c.Issue("42", PurposeAccess, 15*time.Minute)
			require.NoError(t, err)
			require.NotEmpty(t, token)
			assert.True(t, exp.Equal(clock.Now().Add(15*time.Minute)))

			sub, err := c.Decode(token, PurposeAccess)
			require.NoError(t, err)
			assert.Equal(t, "42", sub)
		})
	}
}

func TestCodec_Decode_PurposeMismatch(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t, "HS256")
	token, _, err := c.Issue("42", PurposeRefresh, time.Hour)
	require.NoError(t, err)

	_, err = c.Decode(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrPurposeMismatch)

	_, err = c.Decode(token, PurposeEmailVerify)
	assert.ErrorIs(t, err, ErrPurposeMismatch)

	_, err = c.Decode(token, PurposePasswordReset)
	assert.ErrorIs(t, err, ErrPurposeMismatch)
}

func TestCodec_Decode_ExpiryIsStrict(t *testing.T) {
	t.Parallel()

	c, clock := newTestCodec(t, "HS256")
	token, _, err := c.Issue("42", PurposeAccess, time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = c.Decode(token, PurposeAccess)
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = c.Decode(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Hour)
		_, err = c.Decode(token, PurposeAccess)
		assert.ErrorIs(t, err, ErrExpiredToken)
	}
}

func TestCodec_Decode_ExpiredBeatsPurpose(t *testing.T) {
	t.Parallel()

	c, clock := newTestCodec(t, "HS256")
	token, _, err := c.Issue("42", PurposeRefresh, time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = c.Decode(token, PurposeAccess)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCodec_Decode_InvalidTokens(t *testing.T) {
	t.Parallel()

	c, clock := newTestCodec(t, "HS256")

	other, err := NewCodec(Config{Secret: []byte("other-secret"), Algorithm: "HS256"}, WithClock(clock.Now))
	require.NoError(t, err)
	foreign, _, err := other.Issue("42", PurposeAccess, time.Hour)
	require.NoError(t, err)

	hs512, err := NewCodec(Config{Secret: []byte("test-jwt-secret"), Algorithm: "HS512"}, WithClock(clock.Now))
	require.NoError(t, err)
	wrongAlg, _, err := hs512.Issue("42", PurposeAccess, time.Hour)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Purpose:          PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "42"},
	}).SignedString([]byte("test-jwt-secret"))
	require.NoError(t, err)

	good, _, err := c.Issue("42", PurposeAccess, time.Hour)
	require.NoError(t, err)
	tampered := good[:len(good)-2] + "xx"

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-valid-jwt"},
		{name: "foreign secret", token: foreign},
		{name: "other algorithm", token: wrongAlg},
		{name: "missing exp", token: noExp},
		{name: "tampered signature", token: tampered},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := c.Decode(tt.token, PurposeAccess)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestCodec_Subject_IgnoresExpiryAndPurpose(t *testing.T) {
	t.Parallel()

	c, clock := newTestCodec(t, "HS256")
	token, _, err := c.Issue("7", PurposeRefresh, time.Minute)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	sub, err := c.Subject(token)
	require.NoError(t, err)
	assert.Equal(t, "7", sub)

	_, err = c.Subject("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_Issue_TokensAreUnique(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t, "HS256")
	a, _, err := c.Issue("42", PurposeRefresh, time.Hour)
	require.NoError(t, err)
	b, _, err := c.Issue("42", PurposeRefresh, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestCodec_Issue_RejectsBadInput(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t, "HS256")

	_, _, err := c.Issue("", PurposeAccess, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, _, err = c.Issue("42", Purpose("admin"), time.Hour)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, _, err = c.Issue("42", PurposeAccess, 0)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, _, err = c.Issue("42", PurposeAccess, 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_Issue_ShortestTTLIsUsable(t *testing.T) {
	t.Parallel()

	c, clock := newTestCodec(t, "HS256")
	clock.t = clock.t.Add(700 * time.Millisecond)

	token, _, err := c.Issue("42", PurposeAccess, MinTTL)
	require.NoError(t, err)
	sub, err := c.Decode(token, PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, "42", sub)
}

func TestNewCodec_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewCodec(Config{Algorithm: "HS256"})
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewCodec(Config{Secret: []byte("s"), Algorithm: "RS256"})
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	c, err := NewCodec(Config{Secret: []byte("s")})
	require.NoError(t, err)
	assert.Equal(t, "HS256", c.Algorithm())
}

func TestFingerprintMatches(t *testing.T) {
	t.Parallel()

	stored := Fingerprint("token-a")
	assert.True(t, FingerprintMatches("token-a", stored))
	assert.False(t, FingerprintMatches("token-b", stored))
	assert.False(t, FingerprintMatches("token-a", ""))
}
