package ucenter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	LoginAttempts() LoginAttempts
	RealnameAuths() RealnameAuths
	OpenAccounts() OpenAccounts
}

type mngr struct {
	db            *bun.DB
	accounts      Accounts
	loginAttempts LoginAttempts
	realnameAuths RealnameAuths
	openAccounts  OpenAccounts
}

// NewRepositoryManager wires the repositories to the tables in cfg. now is
// the clock for audit timestamps, nil means time.Now.
func NewRepositoryManager(db *bun.DB, tables TableConfig, now func() time.Time) RepositoryManager {
	if now == nil {
		now = time.Now
	}
	return &mngr{
		db:            db,
		accounts:      NewAccountsRepository(db, tables.Account, WithAccountsClock(now)),
		loginAttempts: NewLoginAttemptsRepository(db, tables.LoginAttempt, now),
		realnameAuths: NewRealnameAuthsRepository(db, tables.RealnameAuth, now),
		openAccounts:  NewOpenAccountsRepository(db, tables.OpenAccount, now),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.loginAttempts == nil {
		return errors.New("repository loginAttempts should be initialized")
	}

	if m.realnameAuths == nil {
		return errors.New("repository realnameAuths should be initialized")
	}

	if m.openAccounts == nil {
		return errors.New("repository openAccounts should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) LoginAttempts() LoginAttempts {
	return m.loginAttempts
}

func (m mngr) RealnameAuths() RealnameAuths {
	return m.realnameAuths
}

func (m mngr) OpenAccounts() OpenAccounts {
	return m.openAccounts
}

// isNotFound reports whether err means the record does not exist.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func expectAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("ucenter: %s %d: %w", kind, id, sql.ErrNoRows)
	}
	return nil
}
