// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/muse/internal/kv"
	"github.com/jeranaias/muse/internal/model"
)

// ConversationsKey is the kv key holding the serialized conversation list.
const ConversationsKey = "conversations"

// =============================================================================
// ERRORS
// =============================================================================

// ConversationError represents a conversation-related error.
// It implements the error interface and can be compared using errors.Is.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var (
	// ErrConversationNotFound is returned for ids the store never held.
	ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

	// ErrConversationDeleted is returned for ids that were deleted (tombstoned).
	ErrConversationDeleted = &ConversationError{Message: "conversation deleted"}

	// ErrMessageNotFound is returned when the conversation has no such message.
	ErrMessageNotFound = &ConversationError{Message: "message not found"}

	// ErrMessageClosed is returned when appending to a failed or completed message.
	ErrMessageClosed = &ConversationError{Message: "message no longer accepts content"}
)

// ErrPersist wraps failures to write the conversation list. The in-memory
// change has been committed when it is returned.
var ErrPersist = errors.New("persist conversations")

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is an immutable view of the store. Conversations are kept in
// insertion order with the newest conversation first. Values reachable from a
// Snapshot must not be mutated; Clone them first.
type Snapshot struct {
	Conversations []*model.Conversation
	ActiveID      string
	Version       uint64
}

// Get returns the conversation with the given id, or nil.
func (s Snapshot) Get(id string) *model.Conversation {
	if i := s.index(id); i >= 0 {
		return s.Conversations[i]
	}
	return nil
}

// Active returns the active conversation, or nil in the new-chat state.
func (s Snapshot) Active() *model.Conversation {
	if s.ActiveID == "" {
		return nil
	}
	return s.Get(s.ActiveID)
}

// Ordered returns the conversations in display order: pinned first, then
// insertion order.
func (s Snapshot) Ordered() []*model.Conversation {
	out := make([]*model.Conversation, len(s.Conversations))
	copy(out, s.Conversations)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].IsPinned && !out[j].IsPinned
	})
	return out
}

func (s Snapshot) index(id string) int {
	for i, c := range s.Conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// ConversationStore holds the conversation list and the active pointer.
// Every mutation commits a new Snapshot, persists the whole list and then
// notifies subscribers.
type ConversationStore struct {
	mu            sync.Mutex
	backend       kv.Store
	snap          Snapshot
	tombstones    map[string]struct{}
	subs          map[int]func(Snapshot)
	nextSub       int
	lastPersisted []byte
}

// NewConversationStore loads the persisted list from backend. An absent
// value yields an empty store; a corrupt value is discarded.
func NewConversationStore(backend kv.Store) *ConversationStore {
	s := &ConversationStore{
		backend:    backend,
		tombstones: make(map[string]struct{}),
		subs:       make(map[int]func(Snapshot)),
	}
	convs, raw := s.load()
	s.snap = Snapshot{Conversations: convs}
	s.lastPersisted = raw
	return s
}

// load reads and decodes the persisted list.
func (s *ConversationStore) load() ([]*model.Conversation, []byte) {
	raw, err := s.backend.Get(ConversationsKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Warn().Err(err).Msg("CONVERSATIONS_READ_FAILED | starting empty")
		}
		return []*model.Conversation{}, nil
	}

	convs, err := decodeConversations(raw)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(raw)).Msg("CONVERSATIONS_CORRUPT | discarding stored value")
		if derr := s.backend.Delete(ConversationsKey); derr != nil {
			log.Warn().Err(derr).Msg("CONVERSATIONS_RESET_FAILED")
		}
		return []*model.Conversation{}, nil
	}
	return convs, raw
}

func decodeConversations(raw []byte) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		return nil, err
	}
	out := make([]*model.Conversation, 0, len(convs))
	for _, c := range convs {
		if c == nil || c.ID == "" {
			continue
		}
		msgs := c.Messages[:0]
		for _, m := range c.Messages {
			if m != nil {
				msgs = append(msgs, m)
			}
		}
		c.Messages = msgs
		out = append(out, c)
	}
	return out, nil
}

// =============================================================================
// READ OPERATIONS
// =============================================================================

// Snapshot returns the current immutable snapshot.
func (s *ConversationStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// List returns deep copies of all conversations in display order.
func (s *ConversationStore) List() []*model.Conversation {
	ordered := s.Snapshot().Ordered()
	out := make([]*model.Conversation, len(ordered))
	for i, c := range ordered {
		out[i] = c.Clone()
	}
	return out
}

// Get returns a deep copy of the conversation with the given id.
func (s *ConversationStore) Get(id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv := s.snap.Get(id)
	if conv == nil {
		return nil, s.missingLocked(id)
	}
	return conv.Clone(), nil
}

// ActiveID returns the id of the active conversation, or "".
func (s *ConversationStore) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.ActiveID
}

// IsDeleted reports whether id was deleted during this session.
func (s *ConversationStore) IsDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tombstones[id]
	return ok
}

// Subscribe registers fn to receive every committed snapshot. fn runs
// outside the store lock, on the goroutine that made the change.
func (s *ConversationStore) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// Create inserts a new conversation holding initial at the head of the list
// and makes it active.
func (s *ConversationStore) Create(initial *model.Message, title string) (string, error) {
	conv := model.NewConversation(title, initial.Clone())
	err := s.commit(func(cur Snapshot) (Snapshot, error) {
		convs := make([]*model.Conversation, 0, len(cur.Conversations)+1)
		convs = append(convs, conv)
		convs = append(convs, cur.Conversations...)
		return Snapshot{Conversations: convs, ActiveID: conv.ID}, nil
	})
	return conv.ID, err
}

// Delete removes a conversation. The id is tombstoned so late updates become
// ErrConversationDeleted, and the active pointer is cleared if it pointed here.
func (s *ConversationStore) Delete(id string) error {
	return s.commit(func(cur Snapshot) (Snapshot, error) {
		idx := cur.index(id)
		if idx < 0 {
			return cur, s.missingLocked(id)
		}
		convs := make([]*model.Conversation, 0, len(cur.Conversations)-1)
		convs = append(convs, cur.Conversations[:idx]...)
		convs = append(convs, cur.Conversations[idx+1:]...)

		active := cur.ActiveID
		if active == id {
			active = ""
		}
		s.tombstones[id] = struct{}{}
		return Snapshot{Conversations: convs, ActiveID: active}, nil
	})
}

// TogglePin flips the pinned state of a conversation.
func (s *ConversationStore) TogglePin(id string) error {
	return s.updateConversation(id, func(c *model.Conversation) error {
		c.IsPinned = !c.IsPinned
		return nil
	})
}

// Rename sets the conversation title. Blank titles are ignored.
func (s *ConversationStore) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}
	return s.updateConversation(id, func(c *model.Conversation) error {
		c.Title = title
		return nil
	})
}

// SetActive selects a conversation.
func (s *ConversationStore) SetActive(id string) error {
	return s.commit(func(cur Snapshot) (Snapshot, error) {
		if cur.index(id) < 0 {
			return cur, s.missingLocked(id)
		}
		cur.ActiveID = id
		return cur, nil
	})
}

// ClearActive returns to the new-chat state.
func (s *ConversationStore) ClearActive() {
	s.commit(func(cur Snapshot) (Snapshot, error) {
		cur.ActiveID = ""
		return cur, nil
	})
}

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// AppendMessage appends msg to the end of a conversation.
func (s *ConversationStore) AppendMessage(convID string, msg *model.Message) error {
	msg = msg.Clone()
	return s.updateConversation(convID, func(c *model.Conversation) error {
		c.Messages = append(c.Messages, msg)
		return nil
	})
}

// UpdateMessage applies fn to a private copy of the message and commits it.
func (s *ConversationStore) UpdateMessage(convID, msgID string, fn func(*model.Message)) error {
	return s.updateConversation(convID, func(c *model.Conversation) error {
		msg, idx := c.MessageByID(msgID)
		if msg == nil {
			return ErrMessageNotFound
		}
		next := msg.Clone()
		fn(next)
		c.Messages[idx] = next
		return nil
	})
}

// AppendContent appends a streamed fragment to a message. The read-modify-write
// runs against the current list, so concurrent edits to the same conversation
// are never lost. Terminal messages return ErrMessageClosed.
func (s *ConversationStore) AppendContent(convID, msgID, fragment string) error {
	return s.updateConversation(convID, func(c *model.Conversation) error {
		msg, idx := c.MessageByID(msgID)
		if msg == nil {
			return ErrMessageNotFound
		}
		next := msg.Clone()
		if !next.AppendFragment(fragment) {
			return ErrMessageClosed
		}
		c.Messages[idx] = next
		return nil
	})
}

// =============================================================================
// RELOAD
// =============================================================================

// Reload re-reads the persisted list, picking up changes written by another
// process. It is a no-op when the stored bytes match the last write. A read
// that raced a local commit is discarded: the commit already overwrote the
// value that was read.
func (s *ConversationStore) Reload() error {
	s.mu.Lock()
	base := s.snap.Version
	s.mu.Unlock()

	raw, err := s.backend.Get(ConversationsKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return err
	}

	s.mu.Lock()
	if s.snap.Version != base {
		s.mu.Unlock()
		log.Debug().Uint64("base", base).Msg("CONVERSATIONS_RELOAD_STALE | local commit won")
		return nil
	}
	if bytes.Equal(raw, s.lastPersisted) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	convs := []*model.Conversation{}
	if raw != nil {
		if convs, err = decodeConversations(raw); err != nil {
			return fmt.Errorf("decode reloaded conversations: %w", err)
		}
	}

	s.mu.Lock()
	if s.snap.Version != base {
		s.mu.Unlock()
		log.Debug().Uint64("base", base).Msg("CONVERSATIONS_RELOAD_STALE | local commit won")
		return nil
	}
	keepStreaming(s.snap, convs)
	next := Snapshot{Conversations: convs, ActiveID: s.snap.ActiveID, Version: s.snap.Version + 1}
	if next.index(next.ActiveID) < 0 {
		next.ActiveID = ""
	}
	s.snap = next
	s.lastPersisted = raw
	subs := s.subscribersLocked()
	s.mu.Unlock()

	log.Debug().Int("conversations", len(convs)).Msg("CONVERSATIONS_RELOADED")
	for _, fn := range subs {
		fn(next)
	}
	return nil
}

// keepStreaming carries in-memory state over to reloaded messages that are
// still being generated here. Streaming is never persisted, and a media
// placeholder without a URL yet decodes as text, so both come from memory.
func keepStreaming(cur Snapshot, convs []*model.Conversation) {
	live := make(map[string]model.Kind)
	for _, c := range cur.Conversations {
		for _, m := range c.Messages {
			if m.Streaming {
				live[m.ID] = m.Kind
			}
		}
	}
	if len(live) == 0 {
		return
	}
	for _, c := range convs {
		for _, m := range c.Messages {
			kind, ok := live[m.ID]
			if !ok || m.IsError {
				continue
			}
			m.Streaming = true
			if m.MediaURL == "" {
				m.Kind = kind
			}
		}
	}
}

// =============================================================================
// COMMIT
// =============================================================================

// updateConversation clones one conversation, applies fn and swaps it in.
func (s *ConversationStore) updateConversation(id string, fn func(*model.Conversation) error) error {
	return s.commit(func(cur Snapshot) (Snapshot, error) {
		idx := cur.index(id)
		if idx < 0 {
			return cur, s.missingLocked(id)
		}
		next := cur.Conversations[idx].CloneShallow()
		if err := fn(next); err != nil {
			return cur, err
		}
		convs := make([]*model.Conversation, len(cur.Conversations))
		copy(convs, cur.Conversations)
		convs[idx] = next
		return Snapshot{Conversations: convs, ActiveID: cur.ActiveID}, nil
	})
}

// commit runs fn under the lock, persists the result and publishes it.
// When fn fails nothing changes.
func (s *ConversationStore) commit(fn func(cur Snapshot) (Snapshot, error)) error {
	s.mu.Lock()
	next, err := fn(s.snap)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	next.Version = s.snap.Version + 1
	perr := s.persistLocked(next.Conversations)
	s.snap = next
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
	return perr
}

func (s *ConversationStore) persistLocked(convs []*model.Conversation) error {
	data, err := json.Marshal(convs)
	if err != nil {
		log.Error().Err(err).Msg("CONVERSATIONS_ENCODE_FAILED")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := s.backend.Set(ConversationsKey, data); err != nil {
		log.Error().Err(err).Int("bytes", len(data)).Msg("CONVERSATIONS_WRITE_FAILED")
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	s.lastPersisted = data
	return nil
}

func (s *ConversationStore) subscribersLocked() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (s *ConversationStore) missingLocked(id string) error {
	if _, ok := s.tombstones[id]; ok {
		return ErrConversationDeleted
	}
	return ErrConversationNotFound
}
