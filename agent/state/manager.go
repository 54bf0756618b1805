package state

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Task-Agent/agent/store"
)

const (
	DefaultHistoryLimit = 50
	DefaultListLimit    = 20
)

var ErrAdapterMismatch = errors.New("conversation belongs to another adapter")

// Store is the persistence contract the manager reads and appends through.
type Store interface {
	GetConversation(ctx context.Context, ownerID, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, ownerID string, limit int) ([]store.Conversation, error)
	RecentMessages(ctx context.Context, ownerID, conversationID string, limit int) ([]store.Message, error)
	AppendMessages(ctx context.Context, ref store.ConversationRef, msgs ...store.NewMessage) ([]store.Message, error)
}

type Option func(*Manager)

func WithHistoryLimit(limit int) Option {
	return func(m *Manager) {
		if limit > 0 {
			m.limit = limit
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager owns the message read/append protocol. It keeps nothing between
// calls: every load goes to the store and every append is one transaction.
type Manager struct {
	store Store
	limit int
	newID func() string
}

var _ contractx.History = (*Manager)(nil)

func NewManager(s Store, opts ...Option) (*Manager, error) {
	if s == nil {
		return nil, errors.New("conversation store is required")
	}
	m := &Manager{store: s, limit: DefaultHistoryLimit, newID: uuid.NewString}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Resolve returns the conversation a request appends to. An empty id starts a
// new conversation that is only written on the first Commit; an id owned by
// someone else is reported as not found.
func (m *Manager) Resolve(ctx context.Context, owner contractx.Owner, conversationID string, adapter string) (contractx.Conversation, error) {
	if owner.IsZero() {
		return contractx.Conversation{}, fmt.Errorf("%w: owner identity is required", contractx.ErrValidation)
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return contractx.Conversation{
			ID:      m.newID(),
			Owner:   owner,
			Adapter: adapter,
			IsNew:   true,
		}, nil
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return contractx.Conversation{}, fmt.Errorf("%w: conversation id %q is not a uuid", contractx.ErrValidation, conversationID)
	}

	conv, err := m.store.GetConversation(ctx, owner.ID(), conversationID)
	if err != nil {
		return contractx.Conversation{}, err
	}
	if adapter != "" && conv.Adapter != adapter {
		return contractx.Conversation{}, fmt.Errorf("%w: %w: %s", contractx.ErrValidation, ErrAdapterMismatch, conv.Adapter)
	}
	return contractx.Conversation{ID: conv.ID, Owner: owner, Adapter: conv.Adapter, Version: conv.TurnCount}, nil
}

// LoadRecent returns the newest limit turns in chronological order. Older
// turns are dropped. A non-positive limit uses the configured default.
func (m *Manager) LoadRecent(ctx context.Context, conv contractx.Conversation, limit int) ([]contractx.Turn, error) {
	if conv.IsNew {
		return []contractx.Turn{}, nil
	}
	if limit <= 0 {
		limit = m.limit
	}
	msgs, err := m.store.RecentMessages(ctx, conv.Owner.ID(), conv.ID, limit)
	if err != nil {
		return nil, err
	}
	turns := make([]contractx.Turn, 0, len(msgs))
	for _, msg := range msgs {
		turns = append(turns, contractx.Turn{
			Role:      msg.Role,
			Content:   msg.Content,
			Seq:       msg.Seq,
			CreatedAt: msg.CreatedAt,
		})
	}
	return turns, nil
}

// Commit appends turns in one transaction, creating the conversation when it
// is new. Either all turns are written or none are. A conversation that gained
// turns since it was resolved fails with ErrConflict.
func (m *Manager) Commit(ctx context.Context, conv contractx.Conversation, turns ...contractx.Turn) error {
	if conv.Owner.IsZero() {
		return fmt.Errorf("%w: owner identity is required", contractx.ErrValidation)
	}
	if len(turns) == 0 {
		return nil
	}
	msgs := make([]store.NewMessage, 0, len(turns))
	for _, t := range turns {
		if t.Role != contractx.RoleUser && t.Role != contractx.RoleAgent {
			return fmt.Errorf("%w: unknown role %q", contractx.ErrValidation, t.Role)
		}
		msgs = append(msgs, store.NewMessage{Role: t.Role, Content: t.Content})
	}
	_, err := m.store.AppendMessages(ctx, store.ConversationRef{
		ID:          conv.ID,
		OwnerID:     conv.Owner.ID(),
		Adapter:     conv.Adapter,
		Create:      conv.IsNew,
		ExpectTurns: conv.Version,
	}, msgs...)
	return err
}

// Append adds a single turn to an existing conversation.
func (m *Manager) Append(ctx context.Context, owner contractx.Owner, conversationID string, role contractx.Role, content string) error {
	if err := contractx.ValidateConversationID(conversationID); err != nil {
		return err
	}
	conv, err := m.Resolve(ctx, owner, conversationID, "")
	if err != nil {
		return err
	}
	return m.Commit(ctx, conv, contractx.Turn{Role: role, Content: content})
}

// Start opens a conversation and stores the adapter greeting as its first turn.
func (m *Manager) Start(ctx context.Context, owner contractx.Owner, adapter contractx.Adapter) (contractx.Conversation, []contractx.Turn, error) {
	conv, err := m.Resolve(ctx, owner, "", adapter.Name())
	if err != nil {
		return contractx.Conversation{}, nil, err
	}
	greeting := contractx.Turn{Role: contractx.RoleAgent, Content: adapter.Greeting()}
	if greeting.Content == "" {
		greeting.Content = "Hello! How can I help?"
	}
	if err := m.Commit(ctx, conv, greeting); err != nil {
		return contractx.Conversation{}, nil, err
	}
	conv.IsNew = false
	conv.Version = 1
	return conv, []contractx.Turn{greeting}, nil
}

// History returns the recent turns of an existing conversation.
func (m *Manager) History(ctx context.Context, owner contractx.Owner, conversationID string, limit int) (contractx.Conversation, []contractx.Turn, error) {
	if err := contractx.ValidateConversationID(conversationID); err != nil {
		return contractx.Conversation{}, nil, err
	}
	conv, err := m.Resolve(ctx, owner, conversationID, "")
	if err != nil {
		return contractx.Conversation{}, nil, err
	}
	turns, err := m.LoadRecent(ctx, conv, limit)
	if err != nil {
		return contractx.Conversation{}, nil, err
	}
	return conv, turns, nil
}

// List returns the owner's conversations, most recently active first.
func (m *Manager) List(ctx context.Context, owner contractx.Owner, limit int) ([]contractx.ConversationSummary, error) {
	if owner.IsZero() {
		return nil, fmt.Errorf("%w: owner identity is required", contractx.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	convs, err := m.store.ListConversations(ctx, owner.ID(), limit)
	if err != nil {
		return nil, err
	}
	out := make([]contractx.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, contractx.ConversationSummary{
			ID:        c.ID,
			Adapter:   c.Adapter,
			Turns:     c.TurnCount,
			UpdatedAt: c.UpdatedAt,
		})
	}
	return out, nil
}
