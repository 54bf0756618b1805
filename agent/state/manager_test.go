package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Task-Agent/agent/store"
)

var dbSeq atomic.Int64

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:state-test-%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	sqldb, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))
	return store.New(db)
}

func newTestManager(t *testing.T, s Store) *Manager {
	t.Helper()
	m, err := NewManager(s)
	require.NoError(t, err)
	return m
}

type greeter struct{}

func (greeter) Name() string { return "tasks" }
func (greeter) Persona() string { return "p" }
func (greeter) Greeting() string { return "Hi there" }
func (greeter) ToolNames() []string { return nil }
func (greeter) HandlerFor(string) (contractx.ToolHandler, bool) { return nil, false }
func (greeter) ToolInfos() []*schema.ToolInfo { return nil }
func (greeter) Invoke(context.Context, string, contractx.Owner, string) contractx.ToolResult {
	return contractx.ToolResult{}
}
func (greeter) Clarify(contractx.ToolResult) string { return "" }
func (greeter) Degraded(contractx.Outcome, []contractx.ToolCallRecord) string { return "" }

func TestNewConversationIsWrittenOnFirstCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	m := newTestManager(t, s)
	alice := contractx.MustOwner("alice")

	conv, err := m.Resolve(ctx, alice, "", "tasks")
	require.NoError(t, err)
	require.True(t, conv.IsNew)

	turns, err := m.LoadRecent(ctx, conv, 0)
	require.NoError(t, err)
	require.Empty(t, turns)

	_, err = s.GetConversation(ctx, "alice", conv.ID)
	require.ErrorIs(t, err, contractx.ErrNotFound)

	require.NoError(t, m.Commit(ctx, conv,
		contractx.Turn{Role: contractx.RoleUser, Content: "add Buy milk"},
		contractx.Turn{Role: contractx.RoleAgent, Content: "Added."},
	))

	again, err := m.Resolve(ctx, alice, conv.ID, "tasks")
	require.NoError(t, err)
	require.False(t, again.IsNew)
	turns, err = m.LoadRecent(ctx, again, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, contractx.RoleUser, turns[0].Role)
	require.Equal(t, "Added.", turns[1].Content)
}

func TestBoundedHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t, newTestStore(t))
	alice := contractx.MustOwner("alice")

	conv, err := m.Resolve(ctx, alice, "", "tasks")
	require.NoError(t, err)
	for i := 1; i <= 100; i++ {
		require.NoError(t, m.Commit(ctx, conv,
			contractx.Turn{Role: contractx.RoleUser, Content: fmt.Sprintf("u%d", i)},
			contractx.Turn{Role: contractx.RoleAgent, Content: fmt.Sprintf("a%d", i)},
		))
		conv.IsNew = false
		conv.Version += 2
	}

	turns, err := m.LoadRecent(ctx, conv, 0)
	require.NoError(t, err)
	require.Len(t, turns, DefaultHistoryLimit)
	require.Equal(t, "u76", turns[0].Content)
	require.Equal(t, "a100", turns[len(turns)-1].Content)
	for i := 1; i < len(turns); i++ {
		require.Equal(t, turns[i-1].Seq+1, turns[i].Seq)
	}
}

func TestRestartSafety(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	alice := contractx.MustOwner("alice")

	first := newTestManager(t, s)
	conv, err := first.Resolve(ctx, alice, "", "tasks")
	require.NoError(t, err)
	require.NoError(t, first.Commit(ctx, conv,
		contractx.Turn{Role: contractx.RoleUser, Content: "hello"},
		contractx.Turn{Role: contractx.RoleAgent, Content: "hi"},
	))

	restarted := newTestManager(t, s)
	_, turns, err := restarted.History(ctx, alice, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "hello", turns[0].Content)
}

func TestResolveIsOwnerScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t, newTestStore(t))

	conv, _, err := m.Start(ctx, contractx.MustOwner("u1"), greeter{})
	require.NoError(t, err)

	_, err = m.Resolve(ctx, contractx.MustOwner("u2"), conv.ID, "")
	require.ErrorIs(t, err, contractx.ErrNotFound)

	err = m.Append(ctx, contractx.MustOwner("u2"), conv.ID, contractx.RoleUser, "sneaky")
	require.ErrorIs(t, err, contractx.ErrNotFound)

	_, err = m.Resolve(ctx, contractx.MustOwner("u1"), "not-a-uuid", "")
	require.ErrorIs(t, err, contractx.ErrValidation)

	_, err = m.Resolve(ctx, contractx.MustOwner("u1"), conv.ID, "writing")
	require.ErrorIs(t, err, ErrAdapterMismatch)

	_, err = m.Resolve(ctx, contractx.Owner{}, "", "tasks")
	require.ErrorIs(t, err, contractx.ErrValidation)
}

func TestStartPersistsGreeting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t, newTestStore(t))
	alice := contractx.MustOwner("alice")

	conv, turns, err := m.Start(ctx, alice, greeter{})
	require.NoError(t, err)
	require.Equal(t, "tasks", conv.Adapter)
	require.Len(t, turns, 1)

	require.NoError(t, m.Append(ctx, alice, conv.ID, contractx.RoleUser, "thanks"))

	_, history, err := m.History(ctx, alice, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "Hi there", history[0].Content)
	require.Equal(t, contractx.RoleAgent, history[0].Role)
	require.Equal(t, int64(1), history[0].Seq)
}

func TestCommitRejectsUnknownRoleWithoutWriting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	m := newTestManager(t, s)
	alice := contractx.MustOwner("alice")

	conv, err := m.Resolve(ctx, alice, "", "tasks")
	require.NoError(t, err)
	err = m.Commit(ctx, conv,
		contractx.Turn{Role: contractx.RoleUser, Content: "x"},
		contractx.Turn{Role: "system", Content: "y"},
	)
	require.ErrorIs(t, err, contractx.ErrValidation)

	_, err = s.GetConversation(ctx, "alice", conv.ID)
	require.ErrorIs(t, err, contractx.ErrNotFound)
}

func TestCommitFromStaleConversationConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t, newTestStore(t))
	alice := contractx.MustOwner("alice")

	started, _, err := m.Start(ctx, alice, greeter{})
	require.NoError(t, err)

	first, err := m.Resolve(ctx, alice, started.ID, "tasks")
	require.NoError(t, err)
	second, err := m.Resolve(ctx, alice, started.ID, "tasks")
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Version)

	require.NoError(t, m.Commit(ctx, first,
		contractx.Turn{Role: contractx.RoleUser, Content: "add Buy milk"},
		contractx.Turn{Role: contractx.RoleAgent, Content: "Added."},
	))
	err = m.Commit(ctx, second,
		contractx.Turn{Role: contractx.RoleUser, Content: "add Buy eggs"},
		contractx.Turn{Role: contractx.RoleAgent, Content: "Added."},
	)
	require.ErrorIs(t, err, contractx.ErrConflict)
	require.Equal(t, contractx.KindStore, contractx.KindOf(err))

	_, turns, err := m.History(ctx, alice, started.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, "add Buy milk", turns[1].Content)
}

func TestListIsOwnerScoped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t, newTestStore(t))
	alice := contractx.MustOwner("alice")

	a1, _, err := m.Start(ctx, alice, greeter{})
	require.NoError(t, err)
	a2, _, err := m.Start(ctx, alice, greeter{})
	require.NoError(t, err)
	_, _, err = m.Start(ctx, contractx.MustOwner("bob"), greeter{})
	require.NoError(t, err)

	convs, err := m.List(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	ids := []string{convs[0].ID, convs[1].ID}
	require.ElementsMatch(t, []string{a1.ID, a2.ID}, ids)
	require.Equal(t, int64(1), convs[0].Turns)
	require.Equal(t, "tasks", convs[0].Adapter)

	convs, err = m.List(ctx, alice, 1)
	require.NoError(t, err)
	require.Len(t, convs, 1)

	_, err = m.List(ctx, contractx.Owner{}, 0)
	require.ErrorIs(t, err, contractx.ErrValidation)
}
