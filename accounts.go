package ucenter

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/cast"
	"github.com/uptrace/bun"
)

// RegisterInput is a self service registration
type RegisterInput struct {
	RegisterType IdentityType `json:"register_type"`
	Account      string       `json:"account"`
	Password     string       `json:"password"`
	InviteCode   string       `json:"invite_code"`
}

// AccountInput is an administrator created account
type AccountInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Mobile      string `json:"mobile"`
	Password    string `json:"password"`
	PayPassword string `json:"pay_password"`
	Nickname    string `json:"nickname"`
	Avatar      string `json:"avatar"`
	Sex         int    `json:"sex"`
	Level       int    `json:"level"`
	Comment     string `json:"comment"`

	// Status defaults to the configured register status
	Status       *AccountStatus `json:"status"`
	RegisterType IdentityType   `json:"register_type"`
	// InviterID is the raw inviter reference, anything that is not a
	// positive integer means no inviter
	InviterID any `json:"inviter_uid"`
}

// AccountEdit updates profile fields. Nil fields are left untouched.
type AccountEdit struct {
	ID       int64   `json:"id"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Mobile   *string `json:"mobile"`
	Nickname *string `json:"nickname"`
	Avatar   *string `json:"avatar"`
	Sex      *int    `json:"sex"`
	Level    *int    `json:"level"`
	Comment  *string `json:"comment"`
}

// PasswordChange is a password update request
type PasswordChange struct {
	ID          int64  `json:"id"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// BindType selects the identity changed by ChangeBindAccount
type BindType int

const (
	BindMobile BindType = 1
	BindEmail  BindType = 2
)

// AccountStore owns account creation and maintenance
type AccountStore struct {
	repo         RepositoryManager
	codec        *Codec
	lineage      *LineageBuilder
	stateMachine AccountStateMachine
	cfg          Config
	rules        fieldRules
	now          func() time.Time
	activity     activityRecorder
	logger       Logger
}

// NewAccountStore wires an AccountStore.
func NewAccountStore(repo RepositoryManager, codec *Codec, sm AccountStateMachine, cfg Config, now func() time.Time, sink ActivitySink, logger Logger) *AccountStore {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &AccountStore{
		repo:         repo,
		codec:        codec,
		lineage:      NewLineageBuilder(repo.Accounts(), cfg.InviterLevelLimit),
		stateMachine: sm,
		cfg:          cfg,
		rules:        newFieldRules(cfg),
		now:          now,
		activity:     activityRecorder{sink: normalizeActivitySink(sink), now: now, logger: logger},
		logger:       logger,
	}
}

// Register creates an account from a self service request and returns its id.
func (s *AccountStore) Register(ctx context.Context, input RegisterInput, ip string) (int64, error) {
	column, ok := input.RegisterType.column()
	if !ok {
		return 0, ErrUnknownRegisterType
	}

	input.Account = strings.TrimSpace(input.Account)
	input.InviteCode = strings.TrimSpace(input.InviteCode)

	errs := validation.Errors{
		"account":  validation.Validate(input.Account, validation.Required, s.rules.identityRule(input.RegisterType)),
		"password": validation.Validate(input.Password, passwordRules()...),
	}
	if err := toValidationError(errs.Filter()); err != nil {
		return 0, err
	}

	var inviter int64
	switch {
	case input.InviteCode != "":
		inviter = s.codec.DecodeInviteCode(input.InviteCode)
		if inviter <= 0 {
			return 0, ErrInvalidInviteCode
		}
	case s.cfg.ForceInviteCode:
		return 0, ErrInviteCodeRequired
	}

	account := AccountInput{
		Password:     input.Password,
		RegisterType: input.RegisterType,
	}
	switch column {
	case "mobile":
		account.Mobile = input.Account
	case "email":
		account.Email = input.Account
	default:
		account.Username = input.Account
	}
	if inviter > 0 {
		account.InviterID = inviter
	}

	id, err := s.create(ctx, account, ip, true)
	if err != nil {
		return 0, err
	}

	s.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor:     ActorRef{ID: cast.ToString(id), Type: "account"},
		AccountID: id,
		Metadata:  map[string]any{"register_type": int(input.RegisterType), "inviter": inviter},
	})
	return id, nil
}

// Add creates an account on behalf of an administrator and returns its id.
// With useDefaultPassword the configured default password is used when
// input carries none.
func (s *AccountStore) Add(ctx context.Context, input AccountInput, useDefaultPassword bool, ip string) (int64, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	input.Mobile = strings.TrimSpace(input.Mobile)

	if input.Username == "" && input.Email == "" && input.Mobile == "" {
		return 0, newValidationError("one of username, email or mobile is required")
	}

	if input.Password == "" && useDefaultPassword {
		input.Password = s.cfg.DefaultPassword
	} else if err := toValidationError(validation.Errors{
		"password": validation.Validate(input.Password, passwordRules()...),
	}.Filter()); err != nil {
		return 0, err
	}

	if err := s.validateProfile(input); err != nil {
		return 0, err
	}

	id, err := s.create(ctx, input, ip, false)
	if err != nil {
		return 0, err
	}

	s.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventAccountCreated,
		AccountID: id,
	})
	return id, nil
}

func (s *AccountStore) validateProfile(input AccountInput) error {
	errs := validation.Errors{
		"username": validation.Validate(input.Username, usernameRule()),
		"email":    validation.Validate(input.Email, is.EmailFormat),
		"mobile":   validation.Validate(input.Mobile, s.rules.mobile()),
		"nickname": validation.Validate(input.Nickname, validation.RuneLength(0, 24)),
		"avatar":   validation.Validate(input.Avatar, is.URL),
		"sex":      validation.Validate(input.Sex, validation.Min(0), validation.Max(2)),
		"level":    validation.Validate(input.Level, validation.Min(0), validation.Max(10)),
		"comment":  validation.Validate(input.Comment, validation.RuneLength(0, 200)),
	}
	if input.PayPassword != "" {
		errs["pay_password"] = validation.Validate(input.PayPassword, passwordRules()...)
	}
	if input.Status != nil && !input.Status.Valid() {
		errs["status"] = validation.NewError("validation_invalid_status", "must be a known account status")
	}
	return toValidationError(errs.Filter())
}

func (s *AccountStore) create(ctx context.Context, input AccountInput, ip string, registered bool) (int64, error) {
	salt, err := s.codec.GenerateSalt()
	if err != nil {
		return 0, storeFault(err, "failed to generate salt")
	}

	payPassword := input.PayPassword
	if payPassword == "" {
		payPassword = input.Password
	}

	nickname := input.Nickname
	if nickname == "" {
		suffix, err := s.codec.randomString(10)
		if err != nil {
			return 0, storeFault(err, "failed to generate nickname")
		}
		nickname = s.cfg.NicknamePrefix + suffix
	}

	avatar := input.Avatar
	if avatar == "" {
		avatar = s.cfg.DefaultAvatar
	}

	status := s.cfg.RegisterStatus
	if input.Status != nil {
		status = *input.Status
	}

	record := &Account{
		Username:     input.Username,
		Email:        input.Email,
		Mobile:       input.Mobile,
		Salt:         salt,
		Password:     s.codec.HashCredential(input.Password, salt),
		PayPassword:  s.codec.HashCredential(payPassword, salt),
		Nickname:     nickname,
		Avatar:       avatar,
		Sex:          input.Sex,
		Level:        input.Level,
		Comment:      input.Comment,
		Status:       status,
		RegisterType: int(input.RegisterType),
		RegisterIP:   ip,
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.checkUnique(ctx, tx, record, 0); err != nil {
			return err
		}

		lineage, err := s.lineage.Build(ctx, tx, input.InviterID)
		if err != nil {
			if registered && errors.Is(err, ErrInviterNotFound) {
				return ErrInviteTargetNotFound
			}
			return err
		}
		record.Lineage = lineage

		_, err = s.repo.Accounts().CreateTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return 0, passThroughRejection(err, TextCodeStoreFault, "failed to create account")
	}

	s.logger.Info("account created", "uid", record.ID, "register_type", record.RegisterType, "inviters", record.Lineage.String())
	return record.ID, nil
}

// checkUnique rejects values of the configured unique fields that another
// account already uses.
func (s *AccountStore) checkUnique(ctx context.Context, tx bun.IDB, record *Account, excludeID int64) error {
	for _, field := range s.cfg.UniqueFields {
		var value string
		switch field {
		case "username":
			value = record.Username
		case "email":
			value = record.Email
		case "mobile":
			value = record.Mobile
		default:
			continue
		}
		if value == "" {
			continue
		}

		taken, err := s.repo.Accounts().ExistsTx(ctx, tx, field, value, excludeID)
		if err != nil {
			return storeFault(err, "failed to check uniqueness")
		}
		if taken {
			return newDuplicateFieldError(field)
		}
	}
	return nil
}

// Edit updates profile fields. Status is never changed here.
func (s *AccountStore) Edit(ctx context.Context, edit AccountEdit) error {
	if edit.ID <= 0 {
		return ErrAccountNotFound
	}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.loadTx(ctx, tx, edit.ID)
		if err != nil {
			return err
		}

		var columns []string
		setString := func(column string, dst *string, src *string) {
			if src != nil {
				*dst = strings.TrimSpace(*src)
				columns = append(columns, column)
			}
		}
		setString("username", &record.Username, edit.Username)
		setString("email", &record.Email, edit.Email)
		setString("mobile", &record.Mobile, edit.Mobile)
		setString("nickname", &record.Nickname, edit.Nickname)
		setString("avatar", &record.Avatar, edit.Avatar)
		setString("comment", &record.Comment, edit.Comment)
		if edit.Sex != nil {
			record.Sex = *edit.Sex
			columns = append(columns, "sex")
		}
		if edit.Level != nil {
			record.Level = *edit.Level
			columns = append(columns, "level")
		}
		if len(columns) == 0 {
			return nil
		}

		if record.Username == "" && record.Email == "" && record.Mobile == "" {
			return newValidationError("one of username, email or mobile is required")
		}

		err = s.validateProfile(AccountInput{
			Username: record.Username,
			Email:    record.Email,
			Mobile:   record.Mobile,
			Nickname: record.Nickname,
			Avatar:   record.Avatar,
			Sex:      record.Sex,
			Level:    record.Level,
			Comment:  record.Comment,
		})
		if err != nil {
			return err
		}

		if err := s.checkUnique(ctx, tx, record, record.ID); err != nil {
			return err
		}

		if err := s.repo.Accounts().UpdateColumnsTx(ctx, tx, record, columns...); err != nil {
			return storeFault(err, "failed to update account")
		}
		return nil
	})
	return passThroughRejection(err, TextCodeStoreFault, "failed to update account")
}

// ChangePassword replaces the login password, or the pay password when
// payPassword is set. With checkOld the current password must match.
func (s *AccountStore) ChangePassword(ctx context.Context, change PasswordChange, checkOld, payPassword bool) error {
	if err := toValidationError(validation.Errors{
		"new_password": validation.Validate(change.NewPassword, passwordRules()...),
	}.Filter()); err != nil {
		return err
	}

	column := "password"
	if payPassword {
		column = "pay_password"
	}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.loadTx(ctx, tx, change.ID)
		if err != nil {
			return err
		}

		current := record.Password
		if payPassword {
			current = record.PayPassword
		}
		if checkOld && !s.codec.MatchCredential(change.OldPassword, record.Salt, current) {
			return ErrWrongOldPassword
		}

		digest := s.codec.HashCredential(change.NewPassword, record.Salt)
		if digest == record.Password || digest == record.PayPassword {
			return ErrPasswordRepeated
		}

		if payPassword {
			record.PayPassword = digest
		} else {
			record.Password = digest
		}
		if err := s.repo.Accounts().UpdateColumnsTx(ctx, tx, record, column); err != nil {
			return storeFault(err, "failed to update password")
		}
		return nil
	})
	if err != nil {
		return passThroughRejection(err, TextCodeStoreFault, "failed to update password")
	}

	s.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		AccountID: change.ID,
		Metadata:  map[string]any{"column": column},
	})
	return nil
}

// ChangeBindAccount replaces the mobile or email of an account.
func (s *AccountStore) ChangeBindAccount(ctx context.Context, id int64, value string, bind BindType) error {
	value = strings.TrimSpace(value)

	var column string
	var rule validation.Rule
	switch bind {
	case BindMobile:
		column, rule = "mobile", s.rules.mobile()
	case BindEmail:
		column, rule = "email", is.EmailFormat
	default:
		return newValidationError("bind type must be mobile or email")
	}

	if err := toValidationError(validation.Errors{
		column: validation.Validate(value, validation.Required, rule),
	}.Filter()); err != nil {
		return err
	}

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.loadTx(ctx, tx, id)
		if err != nil {
			return err
		}

		taken, err := s.repo.Accounts().ExistsTx(ctx, tx, column, value, id)
		if err != nil {
			return storeFault(err, "failed to check bind account")
		}
		if taken {
			return ErrBindAccountTaken
		}

		if column == "mobile" {
			record.Mobile = value
		} else {
			record.Email = value
		}
		if err := s.repo.Accounts().UpdateColumnsTx(ctx, tx, record, column); err != nil {
			return storeFault(err, "failed to update bind account")
		}
		return nil
	})
	return passThroughRejection(err, TextCodeStoreFault, "failed to update bind account")
}

// ChangeStatus moves an account to status through the state machine. The
// state machine re-reads the status inside its transaction.
func (s *AccountStore) ChangeStatus(ctx context.Context, actor ActorRef, id int64, status AccountStatus, opts ...TransitionOption) (*Account, error) {
	record, err := s.loadTx(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	record, err = s.stateMachine.Transition(ctx, actor, record, status, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.attachRealname(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Get returns the account with its real-name record attached.
func (s *AccountStore) Get(ctx context.Context, id int64) (*Account, error) {
	record, err := s.loadTx(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachRealname(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *AccountStore) attachRealname(ctx context.Context, record *Account) error {
	realname, err := s.repo.RealnameAuths().GetByAccount(ctx, record.ID)
	switch {
	case err == nil:
		record.Realname = realname
	case !isNotFound(err):
		return storeFault(err, "failed to load real-name record")
	}
	return nil
}

// loadTx reads an account, tx may be nil to read outside a transaction.
func (s *AccountStore) loadTx(ctx context.Context, tx bun.IDB, id int64) (*Account, error) {
	var (
		record *Account
		err    error
	)
	if tx == nil {
		record, err = s.repo.Accounts().GetByID(ctx, id)
	} else {
		record, err = s.repo.Accounts().GetByIDTx(ctx, tx, id)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, ErrAccountNotFound
		}
		return nil, storeFault(err, "failed to load account")
	}
	return record, nil
}

// GetInviteCode returns the invite code of account id.
func (s *AccountStore) GetInviteCode(id int64) (string, error) {
	code, err := s.codec.EncodeInviteCode(id)
	if err != nil {
		return "", newValidationError(err.Error())
	}
	return code, nil
}

// ParseInviteCode returns the account id behind code.
func (s *AccountStore) ParseInviteCode(code string) (int64, error) {
	id := s.codec.DecodeInviteCode(code)
	if id <= 0 {
		return 0, ErrInvalidInviteCode
	}
	return id, nil
}

// QueryAccounts lists accounts with their real-name records attached.
func (s *AccountStore) QueryAccounts(ctx context.Context, query AccountQuery) (*Page[*Account], error) {
	query = query.normalized()

	records, total, err := s.repo.Accounts().List(ctx, query)
	if err != nil {
		return nil, storeFault(err, "failed to list accounts")
	}

	ids := make([]int64, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	realnames, err := s.repo.RealnameAuths().GetByAccounts(ctx, ids)
	if err != nil {
		return nil, storeFault(err, "failed to list real-name records")
	}
	for _, record := range records {
		record.Realname = realnames[record.ID]
	}

	return &Page[*Account]{Items: records, Total: total, Page: query.Page, PageSize: query.PageSize}, nil
}

// QueryLoginAttempts lists login audit records, newest first.
func (s *AccountStore) QueryLoginAttempts(ctx context.Context, query AttemptQuery) (*Page[*LoginAttempt], error) {
	records, total, err := s.repo.LoginAttempts().List(ctx, query)
	if err != nil {
		return nil, storeFault(err, "failed to list login attempts")
	}

	page, size := query.Page, query.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	return &Page[*LoginAttempt]{Items: records, Total: total, Page: page, PageSize: size}, nil
}
