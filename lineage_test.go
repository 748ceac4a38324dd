package ucenter_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-ucenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) registerInvited(t *testing.T, account string, inviter int64) int64 {
	t.Helper()
	code, err := f.uc.GetInviteCode(inviter)
	require.NoError(t, err)

	id, err := f.uc.Register(context.Background(), ucenter.RegisterInput{
		RegisterType: ucenter.IdentityUsername,
		Account:      account,
		Password:     "secret1",
		InviteCode:   code,
	}, "")
	require.NoError(t, err)
	return id
}

func (f *fixture) lineage(t *testing.T, id int64) ucenter.Lineage {
	t.Helper()
	account, err := f.uc.Account(context.Background(), id)
	require.NoError(t, err)
	return account.Lineage
}

func TestRegisterBuildsInviterChain(t *testing.T) {
	f := newFixture(t)

	a := f.register(t, "alice", "secret1")
	b := f.registerInvited(t, "bobby", a)
	c := f.registerInvited(t, "carol", b)

	assert.Empty(t, f.lineage(t, a))
	assert.Equal(t, ucenter.Lineage{a}, f.lineage(t, b))
	assert.Equal(t, ucenter.Lineage{b, a}, f.lineage(t, c))
	assert.Equal(t, b, f.lineage(t, c).Inviter())
}

func TestRegisterTruncatesInviterChain(t *testing.T) {
	f := newFixture(t)

	ids := []int64{f.register(t, "user0", "secret1")}
	for _, name := range []string{"user1", "user2", "user3", "user4"} {
		ids = append(ids, f.registerInvited(t, name, ids[len(ids)-1]))
	}

	// user4 was invited by user3, user3 by user2 and so on
	assert.Equal(t, ucenter.Lineage{ids[3], ids[2], ids[1]}, f.lineage(t, ids[4]))
}

func TestRegisterUnlimitedInviterChain(t *testing.T) {
	f := newFixture(t, func(cfg *ucenter.Config) {
		cfg.InviterLevelLimit = 0
	})

	ids := []int64{f.register(t, "user0", "secret1")}
	for _, name := range []string{"user1", "user2", "user3", "user4"} {
		ids = append(ids, f.registerInvited(t, name, ids[len(ids)-1]))
	}

	assert.Equal(t, ucenter.Lineage{ids[3], ids[2], ids[1], ids[0]}, f.lineage(t, ids[4]))
}

func TestRegisterInviteCodeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.uc.Register(ctx, ucenter.RegisterInput{
		RegisterType: ucenter.IdentityUsername,
		Account:      "alice",
		Password:     "secret1",
		InviteCode:   "!!bad!!",
	}, "")
	assert.ErrorIs(t, err, ucenter.ErrInvalidInviteCode)
	assert.Equal(t, "invalid invite code", ucenter.Reason(err))

	code, err := f.uc.GetInviteCode(9999)
	require.NoError(t, err)
	_, err = f.uc.Register(ctx, ucenter.RegisterInput{
		RegisterType: ucenter.IdentityUsername,
		Account:      "alice",
		Password:     "secret1",
		InviteCode:   code,
	}, "")
	assert.ErrorIs(t, err, ucenter.ErrInviteTargetNotFound)
	assert.Equal(t, "invite code target user not found", ucenter.Reason(err))

	page, err := f.uc.QueryAccounts(ctx, ucenter.AccountQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestRegisterForcedInviteCode(t *testing.T) {
	f := newFixture(t, func(cfg *ucenter.Config) {
		cfg.ForceInviteCode = true
	})

	_, err := f.uc.Register(context.Background(), ucenter.RegisterInput{
		RegisterType: ucenter.IdentityUsername,
		Account:      "alice",
		Password:     "secret1",
	}, "")
	assert.ErrorIs(t, err, ucenter.ErrInviteCodeRequired)
}

func TestAddInviterCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice", "secret1")

	id, err := f.uc.Add(ctx, ucenter.AccountInput{Username: "bobby", InviterID: "not-a-number"}, true, "")
	require.NoError(t, err)
	assert.Empty(t, f.lineage(t, id))

	id, err = f.uc.Add(ctx, ucenter.AccountInput{Username: "carol", InviterID: "-4"}, true, "")
	require.NoError(t, err)
	assert.Empty(t, f.lineage(t, id))

	id, err = f.uc.Add(ctx, ucenter.AccountInput{Username: "david", InviterID: a}, true, "")
	require.NoError(t, err)
	assert.Equal(t, ucenter.Lineage{a}, f.lineage(t, id))

	_, err = f.uc.Add(ctx, ucenter.AccountInput{Username: "erin_x", InviterID: "9999"}, true, "")
	assert.ErrorIs(t, err, ucenter.ErrInviterNotFound)
}

func TestParseLineage(t *testing.T) {
	lineage, err := ucenter.ParseLineage(" 10, 3 ,7 ")
	require.NoError(t, err)
	assert.Equal(t, ucenter.Lineage{10, 3, 7}, lineage)
	assert.Equal(t, "10,3,7", lineage.String())
	assert.Equal(t, ucenter.Lineage{10, 3}, lineage.Truncate(2))
	assert.Equal(t, lineage, lineage.Truncate(0))

	empty, err := ucenter.ParseLineage("")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Zero(t, empty.Inviter())

	_, err = ucenter.ParseLineage("1,x")
	assert.Error(t, err)
}
