package ucenter

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// OpenAccounts stores third party platform bindings
type OpenAccounts interface {
	FindByOpenID(ctx context.Context, openID string, platform int) (*OpenAccount, error)
	FindByOpenIDTx(ctx context.Context, tx bun.IDB, openID string, platform int) (*OpenAccount, error)
	FindByAccount(ctx context.Context, uid int64, platform int) (*OpenAccount, error)
	FindByAccountTx(ctx context.Context, tx bun.IDB, uid int64, platform int) (*OpenAccount, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *OpenAccount) (*OpenAccount, error)
	DeleteTx(ctx context.Context, tx bun.IDB, uid int64, platform int) (int64, error)
}

type openAccounts struct {
	db    *bun.DB
	table string
	now   func() time.Time
}

var _ OpenAccounts = (*openAccounts)(nil)

// NewOpenAccountsRepository returns an OpenAccounts bound to table.
func NewOpenAccountsRepository(db *bun.DB, table string, now func() time.Time) OpenAccounts {
	if now == nil {
		now = time.Now
	}
	return &openAccounts{db: db, table: table, now: now}
}

func (r *openAccounts) FindByOpenID(ctx context.Context, openID string, platform int) (*OpenAccount, error) {
	return r.FindByOpenIDTx(ctx, r.db, openID, platform)
}

func (r *openAccounts) FindByOpenIDTx(ctx context.Context, tx bun.IDB, openID string, platform int) (*OpenAccount, error) {
	record := &OpenAccount{}
	err := tx.NewSelect().
		Model(record).
		ModelTableExpr("? AS opa", bun.Ident(r.table)).
		Where("openid = ?", openID).
		Where("platform = ?", platform).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *openAccounts) FindByAccount(ctx context.Context, uid int64, platform int) (*OpenAccount, error) {
	return r.FindByAccountTx(ctx, r.db, uid, platform)
}

func (r *openAccounts) FindByAccountTx(ctx context.Context, tx bun.IDB, uid int64, platform int) (*OpenAccount, error) {
	record := &OpenAccount{}
	err := tx.NewSelect().
		Model(record).
		ModelTableExpr("? AS opa", bun.Ident(r.table)).
		Where("uid = ?", uid).
		Where("platform = ?", platform).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *openAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *OpenAccount) (*OpenAccount, error) {
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

func (r *openAccounts) DeleteTx(ctx context.Context, tx bun.IDB, uid int64, platform int) (int64, error) {
	res, err := tx.NewDelete().
		Model((*OpenAccount)(nil)).
		ModelTableExpr("? AS opa", bun.Ident(r.table)).
		Where("uid = ?", uid).
		Where("platform = ?", platform).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
