package ucenter

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/uptrace/bun"
)

// AccountStatus is the lifecycle status of an account
type AccountStatus int

const (
	AccountStatusPending  AccountStatus = 0
	AccountStatusActive   AccountStatus = 1
	AccountStatusDisabled AccountStatus = 2
	AccountStatusRejected AccountStatus = 3
)

// Valid reports whether s is one of the known statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusPending, AccountStatusActive, AccountStatusDisabled, AccountStatusRejected:
		return true
	}
	return false
}

func (s AccountStatus) String() string {
	switch s {
	case AccountStatusPending:
		return "pending"
	case AccountStatusActive:
		return "active"
	case AccountStatusDisabled:
		return "disabled"
	case AccountStatusRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// IdentityType selects which identity column a login or registration uses
type IdentityType int

const (
	IdentityMobile   IdentityType = 1
	IdentityEmail    IdentityType = 2
	IdentityUsername IdentityType = 3
)

func (t IdentityType) column() (string, bool) {
	switch t {
	case IdentityMobile:
		return "mobile", true
	case IdentityEmail:
		return "email", true
	case IdentityUsername:
		return "username", true
	}
	return "", false
}

// Account is the canonical user record
type Account struct {
	bun.BaseModel `bun:"table:user,alias:acc"`

	ID           int64         `bun:"id,pk,autoincrement" json:"id"`
	Username     string        `bun:"username" json:"username,omitempty"`
	Email        string        `bun:"email" json:"email,omitempty"`
	Mobile       string        `bun:"mobile" json:"mobile,omitempty"`
	Password     string        `bun:"password" json:"-"`
	PayPassword  string        `bun:"pay_password" json:"-"`
	Salt         string        `bun:"salt" json:"-"`
	Nickname     string        `bun:"nickname" json:"nickname,omitempty"`
	Avatar       string        `bun:"avatar" json:"avatar,omitempty"`
	Sex          int           `bun:"sex,notnull,default:0" json:"sex"`
	Level        int           `bun:"level,notnull,default:0" json:"level"`
	Comment      string        `bun:"comment" json:"comment,omitempty"`
	Status       AccountStatus `bun:"status,notnull,default:0" json:"status"`
	RegisterType int           `bun:"register_type,notnull,default:0" json:"register_type"`
	RegisterIP   string        `bun:"register_ip" json:"register_ip,omitempty"`
	Lineage      Lineage       `bun:"inviter_uid,type:varchar(255)" json:"inviter_uid,omitempty"`
	LoginTime    *time.Time    `bun:"login_time,nullzero" json:"login_time,omitempty"`
	LoginIP      string        `bun:"login_ip" json:"login_ip,omitempty"`
	LoginToken   string        `bun:"login_token" json:"login_token,omitempty"`
	CreatedAt    time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    time.Time     `bun:"updated_at,notnull" json:"updated_at"`

	Realname *RealnameAuth `bun:"-" json:"realname,omitempty"`
}

func (a *Account) IsPending() bool  { return a.Status == AccountStatusPending }
func (a *Account) IsActive() bool   { return a.Status == AccountStatusActive }
func (a *Account) IsDisabled() bool { return a.Status == AccountStatusDisabled }
func (a *Account) IsRejected() bool { return a.Status == AccountStatusRejected }

// Lineage is the ordered chain of inviter ids, most recent inviter first.
// It is persisted as a comma separated list.
type Lineage []int64

// Inviter returns the direct inviter or zero.
func (l Lineage) Inviter() int64 {
	if len(l) == 0 {
		return 0
	}
	return l[0]
}

// Truncate keeps at most depth entries, zero means unlimited.
func (l Lineage) Truncate(depth int) Lineage {
	if depth <= 0 || len(l) <= depth {
		return l
	}
	return l[:depth]
}

func (l Lineage) String() string {
	parts := make([]string, 0, len(l))
	for _, id := range l {
		parts = append(parts, cast.ToString(id))
	}
	return strings.Join(parts, ",")
}

// Value implements driver.Valuer.
func (l Lineage) Value() (driver.Value, error) {
	return l.String(), nil
}

// Scan implements sql.Scanner.
func (l *Lineage) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("ucenter: cannot scan %T into Lineage", src)
	}

	parsed, err := ParseLineage(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLineage decodes a comma separated id list.
func ParseLineage(raw string) (Lineage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	out := make(Lineage, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := cast.ToInt64E(part)
		if err != nil {
			return nil, fmt.Errorf("ucenter: invalid lineage entry %q: %w", part, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// AttemptType classifies login attempt records. Every value from
// AttemptLoginFailure upwards counts towards lockouts.
type AttemptType int

const (
	AttemptLoginSuccess AttemptType = 1
	AttemptLoginFailure AttemptType = 2
)

// IsFailure reports whether t is failure class.
func (t AttemptType) IsFailure() bool {
	return t >= AttemptLoginFailure
}

// LoginAttempt is an append only audit row for one authentication attempt
type LoginAttempt struct {
	bun.BaseModel `bun:"table:user_login_log,alias:la"`

	ID        string      `bun:"id,pk" json:"id"`
	AccountID int64       `bun:"uid,nullzero" json:"uid,omitempty"`
	Type      AttemptType `bun:"type,notnull" json:"type"`
	Action    string      `bun:"action,notnull" json:"action"`
	Content   string      `bun:"content" json:"content,omitempty"`
	IP        string      `bun:"ip" json:"ip,omitempty"`
	UserAgent string      `bun:"ua" json:"ua,omitempty"`
	CreatedAt time.Time   `bun:"created_at,notnull" json:"created_at"`
}

// AuthType is the kind of real-name verification
type AuthType int

const (
	AuthTypeIndividual   AuthType = 0
	AuthTypeOrganization AuthType = 1
)

// ReviewStatus is the review state of a real-name submission
type ReviewStatus int

const (
	ReviewPending  ReviewStatus = 0
	ReviewApproved ReviewStatus = 1
	ReviewRejected ReviewStatus = 2
)

func (s ReviewStatus) String() string {
	switch s {
	case ReviewPending:
		return "pending"
	case ReviewApproved:
		return "approved"
	case ReviewRejected:
		return "rejected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// RealnameAuth is a real-name verification submission, at most one per account
type RealnameAuth struct {
	bun.BaseModel `bun:"table:user_realname_auth,alias:rna"`

	ID            int64        `bun:"id,pk,autoincrement" json:"id"`
	AccountID     int64        `bun:"uid,notnull,unique" json:"uid"`
	AuthType      AuthType     `bun:"auth_type,notnull,default:0" json:"auth_type"`
	RealName      string       `bun:"real_name,notnull" json:"real_name"`
	Identity      string       `bun:"identity,notnull" json:"identity"`
	IDCardFront   string       `bun:"id_card_front" json:"id_card_front"`
	IDCardBack    string       `bun:"id_card_back" json:"id_card_back"`
	IDCardHand    string       `bun:"id_card_hand" json:"id_card_hand"`
	License       string       `bun:"license" json:"license,omitempty"`
	ContactPerson string       `bun:"contact_person" json:"contact_person,omitempty"`
	ContactMobile string       `bun:"contact_mobile" json:"contact_mobile,omitempty"`
	ContactEmail  string       `bun:"contact_email" json:"contact_email,omitempty"`
	Status        ReviewStatus `bun:"auth_status,notnull,default:0" json:"auth_status"`
	ReviewedAt    *time.Time   `bun:"auth_time,nullzero" json:"auth_time,omitempty"`
	Comment       string       `bun:"comment" json:"comment,omitempty"`
	CreatedAt     time.Time    `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time    `bun:"updated_at,notnull" json:"updated_at"`
}

// OpenAccount binds an account to a third party platform identity
type OpenAccount struct {
	bun.BaseModel `bun:"table:user_open_account,alias:opa"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	AccountID int64     `bun:"uid,notnull" json:"uid"`
	OpenID    string    `bun:"openid,notnull" json:"openid"`
	Platform  int       `bun:"platform,notnull" json:"platform"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Page is one page of a list query
type Page[T any] struct {
	Items    []T `json:"list"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}
