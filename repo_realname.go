package ucenter

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// RealnameAuths stores real-name submissions, at most one per account
type RealnameAuths interface {
	GetByAccount(ctx context.Context, uid int64) (*RealnameAuth, error)
	GetByAccountTx(ctx context.Context, tx bun.IDB, uid int64) (*RealnameAuth, error)
	GetByAccounts(ctx context.Context, uids []int64) (map[int64]*RealnameAuth, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *RealnameAuth) (*RealnameAuth, error)
	DeleteByAccountTx(ctx context.Context, tx bun.IDB, uid int64) error
	UpdateReviewTx(ctx context.Context, tx bun.IDB, uid int64, status ReviewStatus, reviewedAt time.Time, comment string) error
}

type realnameAuths struct {
	db    *bun.DB
	table string
	now   func() time.Time
}

var _ RealnameAuths = (*realnameAuths)(nil)

// NewRealnameAuthsRepository returns a RealnameAuths bound to table.
func NewRealnameAuthsRepository(db *bun.DB, table string, now func() time.Time) RealnameAuths {
	if now == nil {
		now = time.Now
	}
	return &realnameAuths{db: db, table: table, now: now}
}

func (r *realnameAuths) GetByAccount(ctx context.Context, uid int64) (*RealnameAuth, error) {
	return r.GetByAccountTx(ctx, r.db, uid)
}

func (r *realnameAuths) GetByAccountTx(ctx context.Context, tx bun.IDB, uid int64) (*RealnameAuth, error) {
	record := &RealnameAuth{}
	err := tx.NewSelect().
		Model(record).
		ModelTableExpr("? AS rna", bun.Ident(r.table)).
		Where("uid = ?", uid).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *realnameAuths) GetByAccounts(ctx context.Context, uids []int64) (map[int64]*RealnameAuth, error) {
	out := make(map[int64]*RealnameAuth, len(uids))
	if len(uids) == 0 {
		return out, nil
	}

	var records []*RealnameAuth
	err := r.db.NewSelect().
		Model(&records).
		ModelTableExpr("? AS rna", bun.Ident(r.table)).
		Where("uid IN (?)", bun.In(uids)).
		Scan(ctx)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	for _, record := range records {
		out[record.AccountID] = record
	}
	return out, nil
}

func (r *realnameAuths) CreateTx(ctx context.Context, tx bun.IDB, record *RealnameAuth) (*RealnameAuth, error) {
	now := r.now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := tx.NewInsert().
		Model(record).
		ModelTableExpr("?", bun.Ident(r.table)).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *realnameAuths) DeleteByAccountTx(ctx context.Context, tx bun.IDB, uid int64) error {
	_, err := tx.NewDelete().
		Model((*RealnameAuth)(nil)).
		ModelTableExpr("? AS rna", bun.Ident(r.table)).
		Where("uid = ?", uid).
		Exec(ctx)
	return err
}

func (r *realnameAuths) UpdateReviewTx(ctx context.Context, tx bun.IDB, uid int64, status ReviewStatus, reviewedAt time.Time, comment string) error {
	res, err := tx.NewUpdate().
		Model((*RealnameAuth)(nil)).
		ModelTableExpr("? AS rna", bun.Ident(r.table)).
		Set("auth_status = ?", status).
		Set("auth_time = ?", reviewedAt.UTC()).
		Set("comment = ?", comment).
		Set("updated_at = ?", r.now().UTC()).
		Where("uid = ?", uid).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "realname auth", uid)
}
