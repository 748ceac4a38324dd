package ucenter_test

import (
	"context"
	"strings"
	"testing"

	"github.com/goliatone/go-ucenter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMigrationsUsesConfiguredTables(t *testing.T) {
	tables := ucenter.TableConfig{
		Account:      "members",
		LoginAttempt: "member_logins",
		RealnameAuth: "member_kyc",
		OpenAccount:  "member_oauth",
	}

	for _, dir := range []string{"sqlite", "postgres"} {
		t.Run(dir, func(t *testing.T) {
			statements, err := ucenter.RenderMigrations(dir, tables)
			require.NoError(t, err)
			require.NotEmpty(t, statements)

			joined := strings.Join(statements, "\n")
			for _, name := range []string{"members", "member_logins", "member_kyc", "member_oauth"} {
				assert.Contains(t, joined, `"`+name+`"`)
			}
			assert.NotContains(t, joined, "{{")
			assert.NotContains(t, joined, "--bun:split")
		})
	}

	_, err := ucenter.RenderMigrations("oracle", tables)
	assert.Error(t, err)
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	cfg := testConfig()
	cfg.Tables = ucenter.TableConfig{
		Account:      "members",
		LoginAttempt: "member_logins",
		RealnameAuth: "member_kyc",
		OpenAccount:  "member_oauth",
	}
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, ucenter.CreateSchema(ctx, db, cfg.Tables))
	require.NoError(t, ucenter.CreateSchema(ctx, db, cfg.Tables))

	uc, err := ucenter.New(db, cfg)
	require.NoError(t, err)
	require.NoError(t, uc.Migrate(ctx, db))

	id, err := uc.Register(ctx, ucenter.RegisterInput{
		RegisterType: ucenter.IdentityUsername,
		Account:      "alice",
		Password:     "secret1",
	}, "")
	require.NoError(t, err)

	_, err = uc.Login(ctx, ucenter.LoginInput{LoginType: ucenter.IdentityUsername, Account: "alice", Password: "wrong-pass"}, "1.1.1.1", "")
	require.ErrorIs(t, err, ucenter.ErrInvalidCredentials)

	var count int
	require.NoError(t, db.NewRaw(`SELECT COUNT(*) FROM "member_logins" WHERE uid = ?`, id).Scan(ctx, &count))
	assert.Equal(t, 1, count)
}
