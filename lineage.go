package ucenter

import (
	"context"
	"strings"

	"github.com/spf13/cast"
	"github.com/uptrace/bun"
)

// LineageBuilder computes the inviter chain for a new account
type LineageBuilder struct {
	accounts Accounts
	depth    int
}

// NewLineageBuilder returns a builder keeping at most depth ancestors,
// zero keeps all of them.
func NewLineageBuilder(accounts Accounts, depth int) *LineageBuilder {
	return &LineageBuilder{accounts: accounts, depth: depth}
}

// Build returns the lineage for an account invited by candidate. Anything
// that is not a positive integer means "no inviter". An unknown inviter is
// rejected.
func (b *LineageBuilder) Build(ctx context.Context, tx bun.IDB, candidate any) (Lineage, error) {
	id, ok := inviterID(candidate)
	if !ok {
		return nil, nil
	}

	inviter, err := b.accounts.GetByIDTx(ctx, tx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrInviterNotFound
		}
		return nil, storeFault(err, "failed to load inviter")
	}

	lineage := make(Lineage, 0, len(inviter.Lineage)+1)
	lineage = append(lineage, inviter.ID)
	lineage = append(lineage, inviter.Lineage...)
	return lineage.Truncate(b.depth), nil
}

func inviterID(candidate any) (int64, bool) {
	if s, ok := candidate.(string); ok {
		candidate = strings.TrimSpace(s)
		if candidate == "" {
			return 0, false
		}
	}

	id, err := cast.ToInt64E(candidate)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
