package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

var dbSeq atomic.Int64

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:store-test-%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	sqldb, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func TestTaskLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(openTestDB(t))

	created, err := s.CreateTask(ctx, "alice", "Buy milk", "")
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	tasks, err := s.ListTasks(ctx, "alice", TaskFilterPending)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "Buy milk", tasks[0].Title)

	done, changed, err := s.CompleteTask(ctx, "alice", created.ID)
	require.NoError(t, err)
	require.True(t, changed)
	require.True(t, done.Completed)

	_, changed, err = s.CompleteTask(ctx, "alice", created.ID)
	require.NoError(t, err)
	require.False(t, changed, "second completion must not write")

	pending, err := s.ListTasks(ctx, "alice", TaskFilterPending)
	require.NoError(t, err)
	require.Empty(t, pending)

	title := "Buy oat milk"
	updated, err := s.UpdateTask(ctx, "alice", created.ID, TaskPatch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)

	deleted, err := s.DeleteTask(ctx, "alice", created.ID)
	require.NoError(t, err)
	require.Equal(t, title, deleted.Title)

	_, err = s.GetTask(ctx, "alice", created.ID)
	require.ErrorIs(t, err, contractx.ErrNotFound)
}

func TestOwnerIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(openTestDB(t))

	task, err := s.CreateTask(ctx, "bob", "Secret plan", "")
	require.NoError(t, err)

	_, err = s.GetTask(ctx, "alice", task.ID)
	require.ErrorIs(t, err, contractx.ErrNotFound)

	_, _, err = s.CompleteTask(ctx, "alice", task.ID)
	require.ErrorIs(t, err, contractx.ErrNotFound)

	_, err = s.DeleteTask(ctx, "alice", task.ID)
	require.ErrorIs(t, err, contractx.ErrNotFound)

	title := "Hijacked"
	_, err = s.UpdateTask(ctx, "alice", task.ID, TaskPatch{Title: &title})
	require.ErrorIs(t, err, contractx.ErrNotFound)

	found, err := s.FindTasksByTitle(ctx, "alice", "secret")
	require.NoError(t, err)
	require.Empty(t, found)

	still, err := s.GetTask(ctx, "bob", task.ID)
	require.NoError(t, err)
	require.False(t, still.Completed)
	require.Equal(t, "Secret plan", still.Title)
}

func TestFindTasksByTitle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(openTestDB(t))

	for _, title := range []string{"Pay rent", "Pay phone bill", "100% done_ish", "Walk dog"} {
		_, err := s.CreateTask(ctx, "alice", title, "")
		require.NoError(t, err)
	}

	found, err := s.FindTasksByTitle(ctx, "alice", "PAY")
	require.NoError(t, err)
	require.Len(t, found, 2)

	found, err = s.FindTasksByTitle(ctx, "alice", "100%")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "100% done_ish", found[0].Title)

	found, err = s.FindTasksByTitle(ctx, "alice", "e_i")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestAppendMessagesKeepsLastWindowInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(openTestDB(t))

	ref := ConversationRef{ID: "conv-1", OwnerID: "alice", Adapter: "tasks", Create: true}
	for i := 1; i <= 200; i++ {
		role := contractx.RoleUser
		if i%2 == 0 {
			role = contractx.RoleAgent
		}
		_, err := s.AppendMessages(ctx, ref, NewMessage{Role: role, Content: fmt.Sprintf("turn %d", i)})
		require.NoError(t, err)
		ref.Create = false
		ref.ExpectTurns++
	}

	recent, err := s.RecentMessages(ctx, "alice", "conv-1", 50)
	require.NoError(t, err)
	require.Len(t, recent, 50)
	for i, m := range recent {
		require.Equal(t, int64(151+i), m.Seq)
		require.Equal(t, fmt.Sprintf("turn %d", 151+i), m.Content)
	}

	conv, err := s.GetConversation(ctx, "alice", "conv-1")
	require.NoError(t, err)
	require.Equal(t, int64(200), conv.TurnCount)

	_, err = s.GetConversation(ctx, "bob", "conv-1")
	require.ErrorIs(t, err, contractx.ErrNotFound)
}

func TestAppendMessagesRejectsDuplicateCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(openTestDB(t))

	ref := ConversationRef{ID: "conv-dup", OwnerID: "alice", Adapter: "tasks", Create: true}
	_, err := s.AppendMessages(ctx, ref, NewMessage{Role: contractx.RoleUser, Content: "hi"})
	require.NoError(t, err)

	_, err = s.AppendMessages(ctx, ref, NewMessage{Role: contractx.RoleUser, Content: "again"})
	require.ErrorIs(t, err, contractx.ErrStore)

	msgs, err := s.RecentMessages(ctx, "alice", "conv-dup", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestAppendMessagesRejectsStaleTurnCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(openTestDB(t))

	_, err := s.AppendMessages(ctx, ConversationRef{ID: "conv-stale", OwnerID: "alice", Adapter: "tasks", Create: true},
		NewMessage{Role: contractx.RoleAgent, Content: "hello"})
	require.NoError(t, err)

	loaded := ConversationRef{ID: "conv-stale", OwnerID: "alice", Adapter: "tasks", ExpectTurns: 1}
	_, err = s.AppendMessages(ctx, loaded,
		NewMessage{Role: contractx.RoleUser, Content: "first"},
		NewMessage{Role: contractx.RoleAgent, Content: "done"})
	require.NoError(t, err)

	_, err = s.AppendMessages(ctx, loaded,
		NewMessage{Role: contractx.RoleUser, Content: "second"},
		NewMessage{Role: contractx.RoleAgent, Content: "also done"})
	require.ErrorIs(t, err, contractx.ErrConflict)
	require.ErrorIs(t, err, contractx.ErrStore)

	msgs, err := s.RecentMessages(ctx, "alice", "conv-stale", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "done", msgs[2].Content)

	conv, err := s.GetConversation(ctx, "alice", "conv-stale")
	require.NoError(t, err)
	require.Equal(t, int64(3), conv.TurnCount)
}

func TestAppendMessagesSeqCollision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	s := New(db)

	_, err := s.AppendMessages(ctx, ConversationRef{ID: "conv-race", OwnerID: "alice", Adapter: "tasks", Create: true},
		NewMessage{Role: contractx.RoleAgent, Content: "hello"})
	require.NoError(t, err)

	// A writer whose row landed before its counter update.
	_, err = db.NewInsert().Model(&Message{
		ConversationID: "conv-race",
		OwnerID:        "alice",
		Role:           contractx.RoleUser,
		Content:        "other writer",
		Seq:            2,
		CreatedAt:      time.Now().UTC(),
	}).Exec(ctx)
	require.NoError(t, err)

	_, err = s.AppendMessages(ctx, ConversationRef{ID: "conv-race", OwnerID: "alice", ExpectTurns: 1},
		NewMessage{Role: contractx.RoleUser, Content: "mine"},
		NewMessage{Role: contractx.RoleAgent, Content: "reply"})
	require.ErrorIs(t, err, contractx.ErrConflict)

	msgs, err := s.RecentMessages(ctx, "alice", "conv-race", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "other writer", msgs[1].Content)

	conv, err := s.GetConversation(ctx, "alice", "conv-race")
	require.NoError(t, err)
	require.Equal(t, int64(1), conv.TurnCount)
}

func TestConcurrentAppendsOneWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(openTestDB(t))

	_, err := s.AppendMessages(ctx, ConversationRef{ID: "conv-both", OwnerID: "alice", Adapter: "tasks", Create: true},
		NewMessage{Role: contractx.RoleAgent, Content: "hello"})
	require.NoError(t, err)

	ref := ConversationRef{ID: "conv-both", OwnerID: "alice", ExpectTurns: 1}
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AppendMessages(ctx, ref,
				NewMessage{Role: contractx.RoleUser, Content: fmt.Sprintf("user %d", i)},
				NewMessage{Role: contractx.RoleAgent, Content: fmt.Sprintf("agent %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, contractx.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, conflicts)

	msgs, err := s.RecentMessages(ctx, "alice", "conv-both", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, strings.Replace(msgs[1].Content, "user", "agent", 1), msgs[2].Content)
}

func TestAccountOverview(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(openTestDB(t), WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }))

	a, err := s.CreateTask(ctx, "alice", "one", "")
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, "alice", "two", "")
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, "bob", "other", "")
	require.NoError(t, err)
	_, _, err = s.CompleteTask(ctx, "alice", a.ID)
	require.NoError(t, err)
	_, err = s.AppendMessages(ctx, ConversationRef{ID: "c", OwnerID: "alice", Adapter: "account", Create: true},
		NewMessage{Role: contractx.RoleAgent, Content: "hello"})
	require.NoError(t, err)

	got, err := s.AccountOverview(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, AccountOverview{PendingTasks: 1, CompletedTasks: 1, Conversations: 1}, got)
}

func TestStoreErrorsAreWrapped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	s := New(db)
	require.NoError(t, db.Close())

	_, err := s.ListTasks(ctx, "alice", TaskFilterAll)
	require.Error(t, err)
	require.True(t, errors.Is(err, contractx.ErrStore))
	require.Equal(t, contractx.KindStore, contractx.KindOf(err))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Config{Driver: DriverSQLite, DSN: "file::memory:"}.Validate())
	err := Config{Driver: "mysql", DSN: "x"}.Validate()
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "mysql"))
	require.Error(t, Config{Driver: DriverPostgres}.Validate())
}
