package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

// Store is the owner-scoped persistence layer for tasks and conversations.
// Every query filters by owner_id; a row owned by someone else is reported as
// not found.
type Store struct {
	db  *bun.DB
	now func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) DB() *bun.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrapErr("ping", err)
	}
	return nil
}

func (s *Store) stamp() time.Time { return s.now().UTC() }

func (s *Store) CreateTask(ctx context.Context, ownerID, title, description string) (*Task, error) {
	now := s.stamp()
	task := &Task{
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.db.NewInsert().Model(task).Returning("id").Exec(ctx); err != nil {
		return nil, wrapErr("create task", err)
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string, filter TaskFilter) ([]Task, error) {
	tasks := make([]Task, 0)
	q := s.db.NewSelect().Model(&tasks).Where("t.owner_id = ?", ownerID)
	switch filter {
	case TaskFilterPending:
		q = q.Where("t.completed = ?", false)
	case TaskFilterCompleted:
		q = q.Where("t.completed = ?", true)
	}
	if err := q.OrderExpr("t.id ASC").Scan(ctx); err != nil {
		return nil, wrapErr("list tasks", err)
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, ownerID string, id int64) (*Task, error) {
	return getTask(ctx, s.db, ownerID, id)
}

// FindTasksByTitle returns the owner's tasks whose title contains query,
// compared case-insensitively.
func (s *Store) FindTasksByTitle(ctx context.Context, ownerID, query string) ([]Task, error) {
	tasks := make([]Task, 0)
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	err := s.db.NewSelect().
		Model(&tasks).
		Where("t.owner_id = ?", ownerID).
		Where("LOWER(t.title) LIKE ? ESCAPE '!'", pattern).
		OrderExpr("t.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrapErr("find tasks", err)
	}
	return tasks, nil
}

// CompleteTask marks a task completed. The boolean reports whether this call
// changed it; completing an already completed task writes nothing.
func (s *Store) CompleteTask(ctx context.Context, ownerID string, id int64) (*Task, bool, error) {
	var (
		task    *Task
		changed bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		t, err := getTask(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		task = t
		if t.Completed {
			return nil
		}

		now := s.stamp()
		res, err := tx.NewUpdate().
			Model((*Task)(nil)).
			Set("completed = ?", true).
			Set("updated_at = ?", now).
			Where("id = ?", id).
			Where("owner_id = ?", ownerID).
			Where("completed = ?", false).
			Exec(ctx)
		if err != nil {
			return wrapErr("complete task", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			changed = true
			task.UpdatedAt = now
		}
		task.Completed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return task, changed, nil
}

func (s *Store) UpdateTask(ctx context.Context, ownerID string, id int64, patch TaskPatch) (*Task, error) {
	var task *Task
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		t, err := getTask(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		t.UpdatedAt = s.stamp()

		_, err = tx.NewUpdate().
			Model(t).
			Column("title", "description", "updated_at").
			Where("id = ?", id).
			Where("owner_id = ?", ownerID).
			Exec(ctx)
		if err != nil {
			return wrapErr("update task", err)
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// DeleteTask removes a task and returns the row as it was before deletion.
func (s *Store) DeleteTask(ctx context.Context, ownerID string, id int64) (*Task, error) {
	var task *Task
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		t, err := getTask(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		_, err = tx.NewDelete().
			Model((*Task)(nil)).
			Where("id = ?", id).
			Where("owner_id = ?", ownerID).
			Exec(ctx)
		if err != nil {
			return wrapErr("delete task", err)
		}
		task = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Store) AccountOverview(ctx context.Context, ownerID string) (AccountOverview, error) {
	var out AccountOverview
	pending, err := s.db.NewSelect().Model((*Task)(nil)).
		Where("t.owner_id = ?", ownerID).
		Where("t.completed = ?", false).
		Count(ctx)
	if err != nil {
		return out, wrapErr("count pending", err)
	}
	completed, err := s.db.NewSelect().Model((*Task)(nil)).
		Where("t.owner_id = ?", ownerID).
		Where("t.completed = ?", true).
		Count(ctx)
	if err != nil {
		return out, wrapErr("count completed", err)
	}
	convs, err := s.db.NewSelect().Model((*Conversation)(nil)).
		Where("c.owner_id = ?", ownerID).
		Count(ctx)
	if err != nil {
		return out, wrapErr("count conversations", err)
	}
	out.PendingTasks, out.CompletedTasks, out.Conversations = pending, completed, convs
	return out, nil
}

func (s *Store) GetConversation(ctx context.Context, ownerID, id string) (*Conversation, error) {
	return getConversation(ctx, s.db, ownerID, id)
}

func (s *Store) ListConversations(ctx context.Context, ownerID string, limit int) ([]Conversation, error) {
	convs := make([]Conversation, 0)
	q := s.db.NewSelect().Model(&convs).
		Where("c.owner_id = ?", ownerID).
		OrderExpr("c.updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, wrapErr("list conversations", err)
	}
	return convs, nil
}

// RecentMessages returns up to limit of the newest messages in chronological
// order. A non-positive limit returns the whole conversation.
func (s *Store) RecentMessages(ctx context.Context, ownerID, conversationID string, limit int) ([]Message, error) {
	msgs := make([]Message, 0)
	q := s.db.NewSelect().Model(&msgs).
		Where("m.conversation_id = ?", conversationID).
		Where("m.owner_id = ?", ownerID).
		OrderExpr("m.seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, wrapErr("recent messages", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// AppendMessages writes msgs to the end of a conversation in one transaction,
// creating the conversation first when ref.Create is set. The turn counter is
// advanced with a compare-and-set from ref.ExpectTurns, so of two appends made
// from the same loaded state only one lands; the other gets ErrConflict and
// nothing of its batch is written.
func (s *Store) AppendMessages(ctx context.Context, ref ConversationRef, msgs ...NewMessage) ([]Message, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	var written []Message
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.stamp()

		var conv *Conversation
		if ref.Create {
			conv = &Conversation{
				ID:        ref.ID,
				OwnerID:   ref.OwnerID,
				Adapter:   ref.Adapter,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := tx.NewInsert().Model(conv).Exec(ctx); err != nil {
				return wrapErr("create conversation", err)
			}
		} else {
			c, err := getConversation(ctx, tx, ref.OwnerID, ref.ID)
			if err != nil {
				return err
			}
			if c.TurnCount != ref.ExpectTurns {
				return fmt.Errorf("%w: %w: conversation %s advanced concurrently", contractx.ErrStore, contractx.ErrConflict, c.ID)
			}
			conv = c
		}

		base := conv.TurnCount
		rows := make([]Message, 0, len(msgs))
		for i, m := range msgs {
			rows = append(rows, Message{
				ConversationID: conv.ID,
				OwnerID:        conv.OwnerID,
				Role:           m.Role,
				Content:        m.Content,
				Seq:            base + int64(i) + 1,
				CreatedAt:      now,
			})
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %w: conversation %s advanced concurrently", contractx.ErrStore, contractx.ErrConflict, conv.ID)
			}
			return wrapErr("append messages", err)
		}

		next := base + int64(len(rows))
		res, err := tx.NewUpdate().
			Model((*Conversation)(nil)).
			Set("turn_count = ?", next).
			Set("updated_at = ?", now).
			Where("id = ?", conv.ID).
			Where("owner_id = ?", conv.OwnerID).
			Where("turn_count = ?", base).
			Exec(ctx)
		if err != nil {
			return wrapErr("advance conversation", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("%w: %w: conversation %s advanced concurrently", contractx.ErrStore, contractx.ErrConflict, conv.ID)
		}
		written = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func getTask(ctx context.Context, db bun.IDB, ownerID string, id int64) (*Task, error) {
	task := new(Task)
	err := db.NewSelect().Model(task).
		Where("t.id = ?", id).
		Where("t.owner_id = ?", ownerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: task %d", contractx.ErrNotFound, id)
		}
		return nil, wrapErr("get task", err)
	}
	return task, nil
}

func getConversation(ctx context.Context, db bun.IDB, ownerID, id string) (*Conversation, error) {
	conv := new(Conversation)
	err := db.NewSelect().Model(conv).
		Where("c.id = ?", id).
		Where("c.owner_id = ?", ownerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: conversation %s", contractx.ErrNotFound, id)
		}
		return nil, wrapErr("get conversation", err)
	}
	return conv, nil
}

func wrapErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", contractx.ErrStore, op, err)
	}
	return fmt.Errorf("%w: %s: %v", contractx.ErrStore, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
