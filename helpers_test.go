package ucenter_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-ucenter"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []ucenter.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event ucenter.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []ucenter.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ucenter.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type fixture struct {
	db    *bun.DB
	uc    *ucenter.UCenter
	cfg   ucenter.Config
	clock *testClock
	sink  *recordingSink
}

func testConfig() ucenter.Config {
	cfg := ucenter.DefaultConfig()
	cfg.Hashing = ucenter.HashConfig{Time: 1, MemoryKiB: 64, Threads: 1, KeyLength: 32}
	return cfg
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newFileTestDB opens a database file shared by conns connections, so
// transactions from different goroutines really overlap.
func newFileTestDB(t *testing.T, conns int) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+filepath.Join(t.TempDir(), "ucenter.db"))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(conns)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newFixture(t *testing.T, mutate ...func(*ucenter.Config)) *fixture {
	t.Helper()
	return newFixtureOn(t, newTestDB(t), mutate...)
}

func newFixtureOn(t *testing.T, db *bun.DB, mutate ...func(*ucenter.Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	require.NoError(t, ucenter.CreateSchema(context.Background(), db, cfg.Tables))

	clock := newTestClock()
	sink := &recordingSink{}
	uc, err := ucenter.New(db, cfg,
		ucenter.WithLogger(ucenter.NewZapLogger(zap.NewNop())),
		ucenter.WithClock(clock.Now),
		ucenter.WithActivitySink(sink),
	)
	require.NoError(t, err)

	return &fixture{db: db, uc: uc, cfg: cfg, clock: clock, sink: sink}
}

func (f *fixture) register(t *testing.T, account, password string) int64 {
	t.Helper()
	id, err := f.uc.Register(context.Background(), ucenter.RegisterInput{
		RegisterType: ucenter.IdentityUsername,
		Account:      account,
		Password:     password,
	}, "10.0.0.1")
	require.NoError(t, err)
	return id
}

func (f *fixture) attempts(t *testing.T) []*ucenter.LoginAttempt {
	t.Helper()
	page, err := f.uc.QueryLoginAttempts(context.Background(), ucenter.AttemptQuery{PageSize: 100})
	require.NoError(t, err)
	return page.Items
}

func (s *recordingSink) count(eventType ucenter.ActivityEventType) int {
	n := 0
	for _, et := range s.Types() {
		if et == eventType {
			n++
		}
	}
	return n
}

func (f *fixture) exec(t *testing.T, query string) {
	t.Helper()
	_, err := f.db.ExecContext(context.Background(), query)
	require.NoError(t, err)
}
