package ucenter

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// TableConfig holds the table names used by the repositories
type TableConfig struct {
	Account      string `env:"ACCOUNT"`
	LoginAttempt string `env:"LOGIN_ATTEMPT"`
	RealnameAuth string `env:"REALNAME_AUTH"`
	OpenAccount  string `env:"OPEN_ACCOUNT"`
}

// InviteCodeConfig controls the invite code codec. Changing any value
// invalidates every code handed out before.
type InviteCodeConfig struct {
	Secret    int64  `env:"SECRET"`
	Alphabet  string `env:"ALPHABET"`
	MinLength int    `env:"MIN_LENGTH"`
}

// ThrottleConfig controls the login lockout windows. A limit of zero
// disables that check.
type ThrottleConfig struct {
	AccountErrorLimit int `env:"ACCOUNT_ERROR_LIMIT"`
	IPErrorLimit      int `env:"IP_ERROR_LIMIT"`
	// LoginGap is the lockout window in minutes
	LoginGap int `env:"GAP_MINUTES"`
}

// HashConfig holds the argon2id parameters
type HashConfig struct {
	Time      uint32 `env:"TIME"`
	MemoryKiB uint32 `env:"MEMORY_KIB"`
	Threads   uint8  `env:"THREADS"`
	KeyLength uint32 `env:"KEY_LENGTH"`
}

// Config is the engine configuration. It is read only once handed to New.
type Config struct {
	Tables     TableConfig      `envPrefix:"TABLE_"`
	InviteCode InviteCodeConfig `envPrefix:"INVITE_CODE_"`

	UniqueFields      []string      `env:"UNIQUE_FIELDS" envSeparator:","`
	InviterLevelLimit int           `env:"INVITER_LEVEL_LIMIT"`
	DefaultPassword   string        `env:"DEFAULT_PASSWORD"`
	ForceInviteCode   bool          `env:"FORCE_INVITE_CODE"`
	RegisterStatus    AccountStatus `env:"REGISTER_STATUS"`
	DefaultAvatar     string        `env:"DEFAULT_AVATAR"`
	SaltLength        int           `env:"SALT_LENGTH"`
	SaltAlphabet      string        `env:"SALT_ALPHABET"`
	NicknamePrefix    string        `env:"NICKNAME_PREFIX"`
	MobileRegion      string        `env:"MOBILE_REGION"`

	LoginThrottle ThrottleConfig `envPrefix:"LOGIN_"`
	Hashing       HashConfig     `envPrefix:"HASH_"`
}

const (
	defaultSaltAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	defaultCodeAlphabet = "k3G7QAe51FCsPW92uEOyq4Bg6Sp8YzVTmnU0liwDdHXLajZrfxNhobJIRcMvKt"
)

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Tables: TableConfig{
			Account:      "user",
			LoginAttempt: "user_login_log",
			RealnameAuth: "user_realname_auth",
			OpenAccount:  "user_open_account",
		},
		InviteCode: InviteCodeConfig{
			Secret:    651423,
			Alphabet:  defaultCodeAlphabet,
			MinLength: 6,
		},
		UniqueFields:      []string{"email", "mobile", "username"},
		InviterLevelLimit: 3,
		DefaultPassword:   "123456",
		RegisterStatus:    AccountStatusActive,
		SaltLength:        6,
		SaltAlphabet:      defaultSaltAlphabet,
		NicknamePrefix:    "u_",
		MobileRegion:      "CN",
		LoginThrottle: ThrottleConfig{
			AccountErrorLimit: 5,
			IPErrorLimit:      8,
			LoginGap:          5,
		},
		Hashing: HashConfig{
			Time:      1,
			MemoryKiB: 64 * 1024,
			Threads:   4,
			KeyLength: 32,
		},
	}
}

// LoadConfig returns DefaultConfig overlaid with UCENTER_* environment
// variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "UCENTER_"}); err != nil {
		return cfg, fmt.Errorf("ucenter: load config from env: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Tables),
		validation.Field(&c.InviteCode),
		validation.Field(&c.UniqueFields, validation.Each(validation.In("email", "mobile", "username"))),
		validation.Field(&c.InviterLevelLimit, validation.Min(0)),
		validation.Field(&c.DefaultPassword, validation.Required),
		validation.Field(&c.RegisterStatus, validation.By(func(value any) error {
			if s, ok := value.(AccountStatus); ok && !s.Valid() {
				return validation.NewError("validation_invalid_status", "must be a known account status")
			}
			return nil
		})),
		validation.Field(&c.SaltLength, validation.Required, validation.Min(1)),
		validation.Field(&c.SaltAlphabet, validation.Required, validation.Length(2, 0)),
		validation.Field(&c.MobileRegion, validation.Required, validation.Length(2, 2)),
		validation.Field(&c.LoginThrottle),
		validation.Field(&c.Hashing),
	)
}

// Validate checks the table names.
func (t TableConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Account, validation.Required),
		validation.Field(&t.LoginAttempt, validation.Required),
		validation.Field(&t.RealnameAuth, validation.Required),
		validation.Field(&t.OpenAccount, validation.Required),
	)
}

// Validate checks the codec settings.
func (i InviteCodeConfig) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Secret, validation.Min(int64(0))),
		validation.Field(&i.Alphabet, validation.Required, validation.Length(3, 0)),
		validation.Field(&i.MinLength, validation.Min(0), validation.Max(255)),
	)
}

// Validate checks the lockout settings.
func (t ThrottleConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.AccountErrorLimit, validation.Min(0)),
		validation.Field(&t.IPErrorLimit, validation.Min(0)),
		validation.Field(&t.LoginGap, validation.Min(0)),
	)
}

// Validate checks the argon2 parameters.
func (h HashConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.Time, validation.Required),
		validation.Field(&h.MemoryKiB, validation.Required),
		validation.Field(&h.Threads, validation.Required),
		validation.Field(&h.KeyLength, validation.Required, validation.Min(uint32(16))),
	)
}
