package ucenter_test

import (
	"strings"
	"testing"

	"github.com/goliatone/go-ucenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, mutate ...func(*ucenter.Config)) *ucenter.Codec {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	codec, err := ucenter.NewCodec(cfg)
	require.NoError(t, err)
	return codec
}

func TestHashCredentialIsDeterministic(t *testing.T) {
	codec := newTestCodec(t)

	first := codec.HashCredential("secret1", "abc123")
	second := codec.HashCredential("secret1", "abc123")

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, codec.HashCredential("secret1", "abc124"))
	assert.NotEqual(t, first, codec.HashCredential("secret2", "abc123"))

	assert.True(t, codec.MatchCredential("secret1", "abc123", first))
	assert.False(t, codec.MatchCredential("secret2", "abc123", first))
	assert.False(t, codec.MatchCredential("secret1", "abc123", ""))
}

func TestGenerateSalt(t *testing.T) {
	codec := newTestCodec(t, func(cfg *ucenter.Config) {
		cfg.SaltAlphabet = "ab"
		cfg.SaltLength = 12
	})

	salt, err := codec.GenerateSalt()
	require.NoError(t, err)
	assert.Len(t, salt, 12)
	assert.Empty(t, strings.Trim(salt, "ab"))
}

func TestGenerateLoginToken(t *testing.T) {
	codec := newTestCodec(t)

	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		token := codec.GenerateLoginToken(7, "1.2.3.4")
		assert.Len(t, token, 32)
		assert.NotContains(t, token, "-")
		seen[token] = struct{}{}
	}
	assert.Len(t, seen, 50)
}

func TestInviteCodeRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	for _, id := range []int64{1, 2, 42, 1000, 10_000_000} {
		code, err := codec.EncodeInviteCode(id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(code), 6)
		assert.Equal(t, id, codec.DecodeInviteCode(code), "code %s", code)
	}
}

func TestInviteCodesAreDistinct(t *testing.T) {
	codec := newTestCodec(t)

	a, err := codec.EncodeInviteCode(10)
	require.NoError(t, err)
	b, err := codec.EncodeInviteCode(11)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecodeInviteCodeRejectsGarbage(t *testing.T) {
	codec := newTestCodec(t)

	assert.Equal(t, int64(-1), codec.DecodeInviteCode(""))
	assert.Equal(t, int64(-1), codec.DecodeInviteCode("   "))
	assert.Equal(t, int64(-1), codec.DecodeInviteCode("!!!!!!"))
	assert.Equal(t, int64(-1), codec.DecodeInviteCode("漢字漢字漢字"))
}

func TestDecodeInviteCodeRejectsNonPositiveIDs(t *testing.T) {
	codec := newTestCodec(t)
	unsalted := newTestCodec(t, func(cfg *ucenter.Config) {
		cfg.InviteCode.Secret = 0
	})

	// 5 is below the secret offset so it maps to a negative id
	code, err := unsalted.EncodeInviteCode(5)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), codec.DecodeInviteCode(code))
}

func TestEncodeInviteCodeRejectsNonPositiveIDs(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.EncodeInviteCode(0)
	assert.Error(t, err)
	_, err = codec.EncodeInviteCode(-3)
	assert.Error(t, err)
}
