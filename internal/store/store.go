// Package store holds the in-memory chat and message model. A Store is
// owned exclusively by the event-loop goroutine: all mutation is
// serialized through Apply and the command methods, so no locking is
// needed. Concurrent producers hand updates over via the queue package.
package store

import (
	"sort"
	"strings"
	"time"

	"github.com/mvolodin/teleterm/internal/domain"
)

// provisionalBase is the first id handed to optimistic local messages.
// It is far above any realistic server message id, so pending messages
// sort to the bottom of a chat until the server id replaces them.
const provisionalBase = 1 << 30

type chatEntry struct {
	summary  domain.ChatSummary
	messages []domain.Message // ascending by ID, no duplicates
}

type Store struct {
	chats       map[int64]*chatEntry
	activeChat  int64
	atBottom    bool
	selectedID  int64
	nextLocalID int
}

func New() *Store {
	return &Store{
		chats:       make(map[int64]*chatEntry),
		atBottom:    true,
		nextLocalID: provisionalBase,
	}
}

// Apply merges one update event and reports whether the visible view
// changed as a result.
func (s *Store) Apply(u Update) bool {
	switch ev := u.(type) {
	case NewMessage:
		return s.applyNewMessage(ev.Message)
	case MessageStatusChanged:
		return s.applyStatusChange(ev)
	case ChatMetadataChanged:
		return s.applyMetadata(ev)
	case DialogsSnapshot:
		return s.applySnapshot(ev.Chats)
	default:
		return false
	}
}

func (s *Store) applyNewMessage(msg domain.Message) bool {
	entry := s.ensureChat(msg.ChatID)

	if !insertByID(&entry.messages, msg) {
		// Duplicate delivery.
		return false
	}

	if msg.Timestamp.After(entry.summary.LastTime) || entry.summary.LastTime.IsZero() {
		entry.summary.LastMessage = msg.Text
		entry.summary.LastTime = msg.Timestamp
	}

	viewing := msg.ChatID == s.activeChat && s.atBottom
	if !msg.Out && !viewing {
		entry.summary.UnreadCount++
	}
	return true
}

func (s *Store) applyStatusChange(ev MessageStatusChanged) bool {
	entry, ok := s.chats[ev.ChatID]
	if !ok {
		return false
	}
	idx := indexOfID(entry.messages, ev.MessageID)
	if idx < 0 {
		// Status arrived before the message itself; drop silently rather
		// than synthesizing a placeholder.
		return false
	}

	entry.messages[idx].Status = ev.Status

	if ev.NewID != 0 && ev.NewID != ev.MessageID {
		msg := entry.messages[idx]
		msg.ID = ev.NewID
		entry.messages = append(entry.messages[:idx], entry.messages[idx+1:]...)
		insertByID(&entry.messages, msg)
	}
	return true
}

func (s *Store) applyMetadata(ev ChatMetadataChanged) bool {
	entry := s.ensureChat(ev.ChatID)
	if ev.Title != nil {
		entry.summary.Title = *ev.Title
	}
	if ev.UnreadCount != nil {
		entry.summary.UnreadCount = *ev.UnreadCount
	}
	if ev.Peer != nil {
		entry.summary.Peer = ev.Peer
	}
	entry.summary.Stale = false
	return true
}

func (s *Store) applySnapshot(chats []domain.ChatSummary) bool {
	for _, c := range chats {
		entry := s.ensureChat(c.ID)
		messages := entry.messages
		entry.summary = c
		entry.summary.Stale = false
		entry.messages = messages
	}
	// Chats absent from the snapshot stay (never deleted mid-session) but
	// are marked stale.
	present := make(map[int64]bool, len(chats))
	for _, c := range chats {
		present[c.ID] = true
	}
	for id, entry := range s.chats {
		if !present[id] {
			entry.summary.Stale = true
		}
	}
	return true
}

// AppendLocal inserts an outgoing message with Pending status and returns
// its provisional id for later reconciliation.
func (s *Store) AppendLocal(chatID int64, senderName, text string, now time.Time) int {
	entry := s.ensureChat(chatID)
	id := s.nextLocalID
	s.nextLocalID++

	msg := domain.Message{
		ID:         id,
		ChatID:     chatID,
		SenderName: senderName,
		Text:       text,
		Timestamp:  now,
		Out:        true,
		Status:     domain.StatusPending,
	}
	insertByID(&entry.messages, msg)
	entry.summary.LastMessage = text
	entry.summary.LastTime = now
	return id
}

// SetHistory merges fetched history into a chat. Existing messages
// (including pending local ones) are preserved; duplicates are dropped.
func (s *Store) SetHistory(chatID int64, msgs []domain.Message) {
	entry := s.ensureChat(chatID)
	for _, m := range msgs {
		insertByID(&entry.messages, m)
	}
}

// OldestMessageID returns the lower bound of the loaded range, or 0 when
// nothing real is loaded yet.
func (s *Store) OldestMessageID(chatID int64) int {
	entry, ok := s.chats[chatID]
	if !ok {
		return 0
	}
	for _, m := range entry.messages {
		if m.ID < provisionalBase {
			return m.ID
		}
	}
	return 0
}

// Messages returns a copy of a chat's message list.
func (s *Store) Messages(chatID int64) []domain.Message {
	entry, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	out := make([]domain.Message, len(entry.messages))
	copy(out, entry.messages)
	return out
}

// Chat returns the summary for a chat id.
func (s *Store) Chat(chatID int64) (domain.ChatSummary, bool) {
	entry, ok := s.chats[chatID]
	if !ok {
		return domain.ChatSummary{}, false
	}
	return entry.summary, true
}

// VisibleChats projects the chat list through the sort mode and search
// query. It is a pure read: recomputed each call, mutating nothing.
func (s *Store) VisibleChats(mode domain.SortMode, query string) []domain.ChatSummary {
	out := make([]domain.ChatSummary, 0, len(s.chats))
	q := strings.ToLower(query)
	for _, entry := range s.chats {
		if q != "" && !strings.Contains(strings.ToLower(entry.summary.Title), q) {
			continue
		}
		out = append(out, entry.summary)
	}

	// O(n log n) per render tick; fine at chat-list sizes, revisit if the
	// list ever grows past a few thousand.
	switch mode {
	case domain.SortAlphabeticalAsc:
		sort.Slice(out, func(i, j int) bool {
			a, b := strings.ToLower(out[i].Title), strings.ToLower(out[j].Title)
			if a != b {
				return a < b
			}
			return out[i].ID < out[j].ID
		})
	default:
		sort.Slice(out, func(i, j int) bool {
			if !out[i].LastTime.Equal(out[j].LastTime) {
				return out[i].LastTime.After(out[j].LastTime)
			}
			return out[i].ID < out[j].ID
		})
	}
	return out
}

// SelectedID returns the selected chat id after clamping against the
// current visible projection.
func (s *Store) SelectedID(mode domain.SortMode, query string) int64 {
	s.ensureSelection(mode, query)
	return s.selectedID
}

// SelectedIndex returns the selection position within the visible list,
// or -1 when the list is empty.
func (s *Store) SelectedIndex(mode domain.SortMode, query string) int {
	visible := s.VisibleChats(mode, query)
	s.ensureSelection(mode, query)
	for i, c := range visible {
		if c.ID == s.selectedID {
			return i
		}
	}
	return -1
}

// MoveSelection shifts the selection by delta within the visible list,
// clamped to its bounds. It reports whether the selection changed.
func (s *Store) MoveSelection(delta int, mode domain.SortMode, query string) bool {
	visible := s.VisibleChats(mode, query)
	if len(visible) == 0 {
		s.selectedID = 0
		return false
	}
	s.ensureSelection(mode, query)

	pos := 0
	for i, c := range visible {
		if c.ID == s.selectedID {
			pos = i
			break
		}
	}
	next := pos + delta
	if next < 0 {
		next = 0
	}
	if next > len(visible)-1 {
		next = len(visible) - 1
	}
	if visible[next].ID == s.selectedID {
		return false
	}
	s.selectedID = visible[next].ID
	return true
}

func (s *Store) ensureSelection(mode domain.SortMode, query string) {
	visible := s.VisibleChats(mode, query)
	if len(visible) == 0 {
		s.selectedID = 0
		return
	}
	for _, c := range visible {
		if c.ID == s.selectedID {
			return
		}
	}
	s.selectedID = visible[0].ID
}

// SetActive marks the chat whose messages the view is showing.
func (s *Store) SetActive(chatID int64) {
	s.activeChat = chatID
	s.atBottom = true
}

func (s *Store) Active() int64 { return s.activeChat }

// SetAtBottom records whether the message view is scrolled to the bottom;
// new incoming messages in the active chat count as unread otherwise.
func (s *Store) SetAtBottom(v bool) { s.atBottom = v }

func (s *Store) AtBottom() bool { return s.atBottom }

// MarkRead clears a chat's unread counter.
func (s *Store) MarkRead(chatID int64) {
	if entry, ok := s.chats[chatID]; ok {
		entry.summary.UnreadCount = 0
	}
}

// MarkAllStale flags every chat as possibly out of date, as on
// disconnect. The next DialogsSnapshot clears the flags.
func (s *Store) MarkAllStale() {
	for _, entry := range s.chats {
		entry.summary.Stale = true
	}
}

func (s *Store) ensureChat(chatID int64) *chatEntry {
	entry, ok := s.chats[chatID]
	if !ok {
		entry = &chatEntry{summary: domain.ChatSummary{ID: chatID}}
		s.chats[chatID] = entry
	}
	return entry
}

// insertByID places msg into the id-ordered slice, reporting false when
// the id is already present.
func insertByID(msgs *[]domain.Message, msg domain.Message) bool {
	i := sort.Search(len(*msgs), func(i int) bool { return (*msgs)[i].ID >= msg.ID })
	if i < len(*msgs) && (*msgs)[i].ID == msg.ID {
		return false
	}
	*msgs = append(*msgs, domain.Message{})
	copy((*msgs)[i+1:], (*msgs)[i:])
	(*msgs)[i] = msg
	return true
}

func indexOfID(msgs []domain.Message, id int) int {
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].ID >= id })
	if i < len(msgs) && msgs[i].ID == id {
		return i
	}
	return -1
}
