package chathistory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	// ErrChatNotFound is returned when writing to a chat that does not exist.
	ErrChatNotFound = errors.New("chathistory: chat not found")

	// ErrChatExists is returned when a generated chat id is already taken.
	ErrChatExists = errors.New("chathistory: chat already exists")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("chathistory: closed")
)

const chatPrefix = "chat/"

// maxConflictRetries bounds retries of a read-modify-write that lost a race.
const maxConflictRetries = 5

// Role is the sender of a message.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// Message is one chat message.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Chat is a named conversation.
type Chat struct {
	ID       string    `json:"chatId"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// Summary identifies a chat without its messages.
type Summary struct {
	ID   string `json:"chatId"`
	Name string `json:"name"`
}

// Page is a window of a chat's messages.
type Page struct {
	Messages   []Message `json:"messages"`
	NoMoreData bool      `json:"noMoreData"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for chat ids and message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store persists chats in Badger. Each chat is one JSON record keyed by its
// id. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	gc     *gcRunner
	logger *slog.Logger
	now    func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Open opens the history described by cfg.
func Open(cfg Config, opts ...Option) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		db:     db,
		logger: logger.With("component", "chathistory"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		s.gc = startGC(db, cfg.GCInterval, ratio, s.logger)
	}
	return s, nil
}

// Close stops garbage collection and closes the database. Calling Close more
// than once is safe.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.gc != nil {
			s.gc.stop()
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func chatKey(id string) []byte {
	return []byte(chatPrefix + id)
}

// NewChatID returns the id of a chat named name created at t.
func NewChatID(name string, t time.Time) string {
	return fmt.Sprintf("%s_%d", name, t.UnixMilli())
}

// Create stores an empty chat named name and returns its id.
func (s *Store) Create(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("chathistory: chat name is required")
	}
	id := NewChatID(name, s.now())
	chat := Chat{ID: id, Name: name, Messages: []Message{}}

	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(chatKey(id)); err == nil {
			return fmt.Errorf("%w: %s", ErrChatExists, id)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putChat(txn, chat)
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("chat created", "chat_id", id)
	return id, nil
}

// List returns every chat ordered by id.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chatPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var chat Chat
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &chat)
			}); err != nil {
				return fmt.Errorf("decode chat %s: %w", it.Item().Key(), err)
			}
			out = append(out, Summary{ID: chat.ID, Name: chat.Name})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the chat with the given id.
func (s *Store) Get(ctx context.Context, id string) (Chat, error) {
	var chat Chat
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		chat, err = getChat(txn, id)
		return err
	})
	return chat, err
}

// Delete removes a chat. Deleting an unknown chat is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(chatKey(id))
	})
	if err == nil {
		s.logger.Debug("chat deleted", "chat_id", id)
	}
	return err
}

// Save replaces the whole message history of a chat.
func (s *Store) Save(ctx context.Context, id string, messages []Message) error {
	messages = s.stamp(messages)
	return s.update(ctx, func(txn *badger.Txn) error {
		chat, err := getChat(txn, id)
		if err != nil {
			return err
		}
		chat.Messages = messages
		return putChat(txn, chat)
	})
}

// Append adds messages to the end of a chat and returns them with ids and
// timestamps filled in.
func (s *Store) Append(ctx context.Context, id string, messages ...Message) ([]Message, error) {
	messages = s.stamp(messages)
	err := s.update(ctx, func(txn *badger.Txn) error {
		chat, err := getChat(txn, id)
		if err != nil {
			return err
		}
		chat.Messages = append(chat.Messages, messages...)
		return putChat(txn, chat)
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Messages returns every message of a chat. An unknown chat has no messages.
func (s *Store) Messages(ctx context.Context, id string) ([]Message, error) {
	chat, err := s.Get(ctx, id)
	if errors.Is(err, ErrChatNotFound) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return chat.Messages, nil
}

// Page returns up to limit messages starting at offset. NoMoreData is set
// when the page reaches the end of the chat.
func (s *Store) Page(ctx context.Context, id string, offset, limit int) (Page, error) {
	if offset < 0 || limit <= 0 {
		return Page{}, fmt.Errorf("chathistory: invalid page offset=%d limit=%d", offset, limit)
	}
	all, err := s.Messages(ctx, id)
	if err != nil {
		return Page{}, err
	}
	if offset >= len(all) {
		return Page{Messages: []Message{}, NoMoreData: true}, nil
	}
	end := len(all)
	if limit < end-offset {
		end = offset + limit
	}
	return Page{Messages: all[offset:end], NoMoreData: end == len(all)}, nil
}

// stamp returns a copy of messages with missing ids and timestamps set.
func (s *Store) stamp(messages []Message) []Message {
	out := make([]Message, len(messages))
	now := s.now()
	for i, m := range messages {
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = now
		}
		out[i] = m
	}
	return out
}

func getChat(txn *badger.Txn, id string) (Chat, error) {
	var chat Chat
	item, err := txn.Get(chatKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat, fmt.Errorf("%w: %s", ErrChatNotFound, id)
	}
	if err != nil {
		return chat, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &chat)
	})
	if err != nil {
		return chat, fmt.Errorf("decode chat %s: %w", id, err)
	}
	return chat, nil
}

func putChat(txn *badger.Txn, chat Chat) error {
	raw, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", chat.ID, err)
	}
	return txn.Set(chatKey(chat.ID), raw)
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("context cancelled: %w", cerr)
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return s.translate(err)
		}
		s.logger.Debug("history write conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.translate(s.db.View(fn))
}

func (s *Store) translate(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}
