package ucenter

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/sqids/sqids-go"
	"golang.org/x/crypto/argon2"
)

// Codec holds the credential and invite code primitives. It is safe for
// concurrent use.
type Codec struct {
	hashing      HashConfig
	saltLength   int
	saltAlphabet []rune
	secret       int64
	invite       *sqids.Sqids
	now          func() time.Time
}

// NewCodec builds a Codec from cfg.
func NewCodec(cfg Config) (*Codec, error) {
	invite, err := sqids.New(sqids.Options{
		Alphabet:  cfg.InviteCode.Alphabet,
		MinLength: uint8(cfg.InviteCode.MinLength),
	})
	if err != nil {
		return nil, fmt.Errorf("ucenter: invite code codec: %w", err)
	}

	return &Codec{
		hashing:      cfg.Hashing,
		saltLength:   cfg.SaltLength,
		saltAlphabet: []rune(cfg.SaltAlphabet),
		secret:       cfg.InviteCode.Secret,
		invite:       invite,
		now:          time.Now,
	}, nil
}

// HashCredential returns the hex encoded argon2id digest of plaintext
// keyed by salt. Same input, same output.
func (c *Codec) HashCredential(plaintext, salt string) string {
	key := argon2.IDKey(
		[]byte(plaintext),
		[]byte(salt),
		c.hashing.Time,
		c.hashing.MemoryKiB,
		c.hashing.Threads,
		c.hashing.KeyLength,
	)
	return hex.EncodeToString(key)
}

// MatchCredential compares plaintext against a stored digest in constant time.
func (c *Codec) MatchCredential(plaintext, salt, digest string) bool {
	if digest == "" {
		return false
	}
	computed := c.HashCredential(plaintext, salt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1
}

// GenerateSalt returns a fresh random salt.
func (c *Codec) GenerateSalt() (string, error) {
	return c.randomString(c.saltLength)
}

func (c *Codec) randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}

	limit := big.NewInt(int64(len(c.saltAlphabet)))
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("ucenter: random source: %w", err)
		}
		sb.WriteRune(c.saltAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// GenerateLoginToken returns an opaque token, different on every call.
func (c *Codec) GenerateLoginToken(accountID int64, source string) string {
	seed := fmt.Sprintf("%s|%s|%d|%d", uuid.NewString(), source, c.now().UnixNano(), accountID)

	id, err := hashid.NewUUID(seed)
	if err != nil {
		id = uuid.New()
	}

	return strings.ReplaceAll(id.String(), "-", "")
}

// EncodeInviteCode turns an account id into its invite code.
func (c *Codec) EncodeInviteCode(id int64) (string, error) {
	if id <= 0 {
		return "", fmt.Errorf("ucenter: cannot encode invite code for id %d", id)
	}
	return c.invite.Encode([]uint64{uint64(id + c.secret)})
}

// DecodeInviteCode returns the account id behind code or -1 when the code is
// malformed, not canonical or resolves to a non positive id.
func (c *Codec) DecodeInviteCode(code string) int64 {
	code = strings.TrimSpace(code)
	if code == "" {
		return -1
	}

	numbers := c.invite.Decode(code)
	if len(numbers) != 1 {
		return -1
	}

	// sqids decodes several spellings to the same number, only accept the
	// one the encoder would produce
	canonical, err := c.invite.Encode(numbers)
	if err != nil || canonical != code {
		return -1
	}

	if numbers[0] > uint64(1<<63-1) {
		return -1
	}

	id := int64(numbers[0]) - c.secret
	if id <= 0 {
		return -1
	}
	return id
}
