package ucenter

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Accounts is the account store. Every method has a Tx twin so callers can
// compose reads and writes inside RunInTx.
type Accounts interface {
	GetByID(ctx context.Context, id int64) (*Account, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*Account, error)
	GetByIdentity(ctx context.Context, t IdentityType, value string) (*Account, error)
	GetByIdentityTx(ctx context.Context, tx bun.IDB, t IdentityType, value string) (*Account, error)

	// ExistsTx reports whether another account (id != excludeID) already
	// uses value in column.
	ExistsTx(ctx context.Context, tx bun.IDB, column, value string, excludeID int64) (bool, error)

	CreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	UpdateColumnsTx(ctx context.Context, tx bun.IDB, record *Account, columns ...string) error
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id int64, status AccountStatus) (*Account, error)

	// TrackSuccessfulLogin stamps the session on an account that is still
	// active, any other status reports sql.ErrNoRows.
	TrackSuccessfulLogin(ctx context.Context, id int64, session LoginSession) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id int64, session LoginSession) error

	List(ctx context.Context, query AccountQuery) ([]*Account, int, error)
}

// LoginSession is the metadata stamped on an account after a successful login
type LoginSession struct {
	Time  time.Time
	IP    string
	Token string
}

type accounts struct {
	db    *bun.DB
	table string
	now   func() time.Time
}

var _ Accounts = (*accounts)(nil)

// AccountsOption customizes the account store.
type AccountsOption func(*accounts)

// WithAccountsClock sets the clock used for audit timestamps.
func WithAccountsClock(now func() time.Time) AccountsOption {
	return func(a *accounts) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAccountsRepository returns an Accounts bound to table.
func NewAccountsRepository(db *bun.DB, table string, opts ...AccountsOption) Accounts {
	repo := &accounts{
		db:    db,
		table: table,
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo
}

func (a *accounts) selectQuery(tx bun.IDB, record any) *bun.SelectQuery {
	return tx.NewSelect().Model(record).ModelTableExpr("? AS acc", bun.Ident(a.table))
}

func (a *accounts) GetByID(ctx context.Context, id int64) (*Account, error) {
	return a.GetByIDTx(ctx, a.db, id)
}

func (a *accounts) GetByIDTx(ctx context.Context, tx bun.IDB, id int64) (*Account, error) {
	record := &Account{}
	err := a.selectQuery(tx, record).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (a *accounts) GetByIdentity(ctx context.Context, t IdentityType, value string) (*Account, error) {
	return a.GetByIdentityTx(ctx, a.db, t, value)
}

func (a *accounts) GetByIdentityTx(ctx context.Context, tx bun.IDB, t IdentityType, value string) (*Account, error) {
	column, ok := t.column()
	if !ok {
		return nil, ErrUnknownLoginType
	}

	record := &Account{}
	err := a.selectQuery(tx, record).
		Where("? = ?", bun.Ident(column), value).
		OrderExpr("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (a *accounts) ExistsTx(ctx context.Context, tx bun.IDB, column, value string, excludeID int64) (bool, error) {
	q := a.selectQuery(tx, (*Account)(nil)).
		Where("? = ?", bun.Ident(column), value)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	return q.Exists(ctx)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	now := a.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	_, err := tx.NewInsert().
		Model(record).
		ModelTableExpr("?", bun.Ident(a.table)).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (a *accounts) UpdateColumnsTx(ctx context.Context, tx bun.IDB, record *Account, columns ...string) error {
	record.UpdatedAt = a.now().UTC()
	columns = append(columns, "updated_at")

	res, err := tx.NewUpdate().
		Model(record).
		ModelTableExpr("? AS acc", bun.Ident(a.table)).
		Column(columns...).
		Where("id = ?", record.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "account", record.ID)
}

func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id int64, status AccountStatus) (*Account, error) {
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		ModelTableExpr("? AS acc", bun.Ident(a.table)).
		Set("status = ?", status).
		Set("updated_at = ?", a.now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res, "account", id); err != nil {
		return nil, err
	}
	return a.GetByIDTx(ctx, tx, id)
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, id int64, session LoginSession) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, id, session)
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, id int64, session LoginSession) error {
	res, err := tx.NewUpdate().
		Model((*Account)(nil)).
		ModelTableExpr("? AS acc", bun.Ident(a.table)).
		Set("login_time = ?", session.Time.UTC()).
		Set("login_ip = ?", session.IP).
		Set("login_token = ?", session.Token).
		Set("updated_at = ?", session.Time.UTC()).
		Where("id = ?", id).
		Where("status = ?", AccountStatusActive).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "account", id)
}

// AccountQuery filters the account listing. Zero values are ignored.
type AccountQuery struct {
	ID           int64
	Status       *AccountStatus
	RegisterType int
	Level        *int
	Email        string
	Mobile       string
	Username     string

	CreatedFrom time.Time
	CreatedTo   time.Time
	LoginFrom   time.Time
	LoginTo     time.Time

	// OrderBy is one of login_time, created_at, updated_at, default id
	OrderBy   string
	OrderDesc bool

	Page     int
	PageSize int
}

const defaultPageSize = 20

func (q AccountQuery) normalized() AccountQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > 500 {
		q.PageSize = 500
	}
	return q
}

func (a *accounts) List(ctx context.Context, query AccountQuery) ([]*Account, int, error) {
	query = query.normalized()

	var records []*Account
	q := a.selectQuery(a.db, &records)

	if query.ID > 0 {
		q = q.Where("id = ?", query.ID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.RegisterType > 0 {
		q = q.Where("register_type = ?", query.RegisterType)
	}
	if query.Level != nil {
		q = q.Where("level = ?", *query.Level)
	}
	if query.Email != "" {
		q = q.Where("email = ?", query.Email)
	}
	if query.Mobile != "" {
		q = q.Where("mobile = ?", query.Mobile)
	}
	if query.Username != "" {
		q = q.Where("username = ?", query.Username)
	}
	q = applyTimeRange(q, "created_at", query.CreatedFrom, query.CreatedTo)
	q = applyTimeRange(q, "login_time", query.LoginFrom, query.LoginTo)

	switch query.OrderBy {
	case "login_time", "created_at", "updated_at":
		dir := "ASC"
		if query.OrderDesc {
			dir = "DESC"
		}
		q = q.OrderExpr("? "+dir+", id DESC", bun.Ident(query.OrderBy))
	default:
		q = q.OrderExpr("id DESC")
	}

	total, err := q.
		Limit(query.PageSize).
		Offset((query.Page - 1) * query.PageSize).
		ScanAndCount(ctx)
	if err != nil && !isNotFound(err) {
		return nil, 0, err
	}
	return records, total, nil
}

func applyTimeRange(q *bun.SelectQuery, column string, from, to time.Time) *bun.SelectQuery {
	if !from.IsZero() {
		q = q.Where("? >= ?", bun.Ident(column), from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("? <= ?", bun.Ident(column), to.UTC())
	}
	return q
}
