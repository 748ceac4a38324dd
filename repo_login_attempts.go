package ucenter

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// LoginAttempts is the append only login audit log
type LoginAttempts interface {
	Append(ctx context.Context, record *LoginAttempt) error
	AppendTx(ctx context.Context, tx bun.IDB, record *LoginAttempt) error

	// RecentFailureIDs returns up to limit ids of failure class attempts
	// matching column = value created at or after since, newest first.
	RecentFailureIDs(ctx context.Context, column string, value any, since time.Time, limit int) ([]string, error)

	List(ctx context.Context, query AttemptQuery) ([]*LoginAttempt, int, error)
}

type loginAttempts struct {
	db    *bun.DB
	table string
	now   func() time.Time
}

var _ LoginAttempts = (*loginAttempts)(nil)

// NewLoginAttemptsRepository returns a LoginAttempts bound to table.
func NewLoginAttemptsRepository(db *bun.DB, table string, now func() time.Time) LoginAttempts {
	if now == nil {
		now = time.Now
	}
	return &loginAttempts{db: db, table: table, now: now}
}

func (r *loginAttempts) Append(ctx context.Context, record *LoginAttempt) error {
	return r.AppendTx(ctx, r.db, record)
}

func (r *loginAttempts) AppendTx(ctx context.Context, tx bun.IDB, record *LoginAttempt) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.now().UTC()
	}
	if record.ID == "" {
		record.ID = ulid.MustNew(ulid.Timestamp(record.CreatedAt), ulid.DefaultEntropy()).String()
	}

	_, err := tx.NewInsert().
		Model(record).
		ModelTableExpr("?", bun.Ident(r.table)).
		Exec(ctx)
	return err
}

func (r *loginAttempts) RecentFailureIDs(ctx context.Context, column string, value any, since time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*LoginAttempt)(nil)).
		ModelTableExpr("? AS la", bun.Ident(r.table)).
		Column("id").
		Where("? = ?", bun.Ident(column), value).
		Where("type >= ?", AttemptLoginFailure).
		Where("created_at >= ?", since.UTC()).
		OrderExpr("id DESC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	return ids, nil
}

// AttemptQuery filters the login audit listing. Zero values are ignored.
type AttemptQuery struct {
	AccountID int64
	Type      AttemptType
	IP        string
	From      time.Time
	To        time.Time
	Page      int
	PageSize  int
}

func (r *loginAttempts) List(ctx context.Context, query AttemptQuery) ([]*LoginAttempt, int, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = defaultPageSize
	}

	var records []*LoginAttempt
	q := r.db.NewSelect().
		Model(&records).
		ModelTableExpr("? AS la", bun.Ident(r.table))

	if query.AccountID > 0 {
		q = q.Where("uid = ?", query.AccountID)
	}
	if query.Type > 0 {
		q = q.Where("type = ?", query.Type)
	}
	if query.IP != "" {
		q = q.Where("ip = ?", query.IP)
	}
	q = applyTimeRange(q, "created_at", query.From, query.To)

	total, err := q.
		OrderExpr("id DESC").
		Limit(query.PageSize).
		Offset((query.Page - 1) * query.PageSize).
		ScanAndCount(ctx)
	if err != nil && !isNotFound(err) {
		return nil, 0, err
	}
	return records, total, nil
}
