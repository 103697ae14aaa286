package store_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/mvolodin/teleterm/internal/domain"
	"github.com/mvolodin/teleterm/internal/store"
)

func msg(chatID int64, id int, text string, ts time.Time) domain.Message {
	return domain.Message{ID: id, ChatID: chatID, Text: text, Timestamp: ts}
}

func TestApply_NewMessage_OrderedAndDeduplicated(t *testing.T) {
	base := time.Now()
	ids := []int{5, 1, 3, 2, 4, 3, 1, 5}

	// Shuffle a few interleavings; the result must always be the same.
	for trial := 0; trial < 10; trial++ {
		s := store.New()
		shuffled := append([]int(nil), ids...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		for _, id := range shuffled {
			s.Apply(store.NewMessage{Message: msg(1, id, "m", base.Add(time.Duration(id)*time.Second))})
		}

		got := s.Messages(1)
		if len(got) != 5 {
			t.Fatalf("trial %d: got %d messages, want 5", trial, len(got))
		}
		for i, m := range got {
			if m.ID != i+1 {
				t.Errorf("trial %d: message[%d].ID = %d, want %d", trial, i, m.ID, i+1)
			}
		}
	}
}

func TestApply_DuplicateNewMessage_NoOp(t *testing.T) {
	s := store.New()
	m := msg(1, 10, "hello", time.Now())

	if !s.Apply(store.NewMessage{Message: m}) {
		t.Error("first insert should report dirty")
	}
	if s.Apply(store.NewMessage{Message: m}) {
		t.Error("duplicate insert should not report dirty")
	}
	if got := len(s.Messages(1)); got != 1 {
		t.Errorf("message count = %d, want 1", got)
	}
}

func TestApply_StatusChangeForUnknownMessage_NoOp(t *testing.T) {
	s := store.New()
	s.Apply(store.NewMessage{Message: msg(1, 1, "a", time.Now())})

	before := s.Messages(1)
	dirty := s.Apply(store.MessageStatusChanged{ChatID: 1, MessageID: 99, Status: domain.StatusSent})
	after := s.Messages(1)

	if dirty {
		t.Error("unknown-id status change reported dirty")
	}
	if len(after) != len(before) {
		t.Errorf("store size changed: %d -> %d", len(before), len(after))
	}
	// Unknown chat must also be a no-op, not create an entry.
	s.Apply(store.MessageStatusChanged{ChatID: 42, MessageID: 1, Status: domain.StatusSent})
	if _, ok := s.Chat(42); ok {
		t.Error("status change synthesized a chat entry")
	}
}

func TestApply_NewMessage_CreatesUnseenChat(t *testing.T) {
	s := store.New()
	s.Apply(store.NewMessage{Message: msg(7, 1, "hi", time.Now())})

	if _, ok := s.Chat(7); !ok {
		t.Fatal("chat entry not created on first inbound message")
	}
}

func TestApply_UnreadCounting(t *testing.T) {
	s := store.New()
	now := time.Now()

	// Incoming to a non-active chat: unread +1.
	s.Apply(store.NewMessage{Message: msg(1, 1, "a", now)})
	c, _ := s.Chat(1)
	if c.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", c.UnreadCount)
	}

	// Incoming to the active chat viewed at bottom: no unread.
	s.SetActive(2)
	s.Apply(store.NewMessage{Message: msg(2, 1, "b", now)})
	c, _ = s.Chat(2)
	if c.UnreadCount != 0 {
		t.Errorf("active-at-bottom UnreadCount = %d, want 0", c.UnreadCount)
	}

	// Incoming to the active chat while scrolled up: unread +1.
	s.SetAtBottom(false)
	s.Apply(store.NewMessage{Message: msg(2, 2, "c", now.Add(time.Second))})
	c, _ = s.Chat(2)
	if c.UnreadCount != 1 {
		t.Errorf("active-scrolled-up UnreadCount = %d, want 1", c.UnreadCount)
	}

	// Outgoing messages never count as unread.
	out := msg(1, 2, "mine", now)
	out.Out = true
	s.Apply(store.NewMessage{Message: out})
	c, _ = s.Chat(1)
	if c.UnreadCount != 1 {
		t.Errorf("outgoing bumped unread: %d, want 1", c.UnreadCount)
	}
}

func TestApply_SnapshotScenario(t *testing.T) {
	s := store.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Apply(store.DialogsSnapshot{Chats: []domain.ChatSummary{
		{ID: 1, Title: "Alice", LastTime: base.Add(2 * time.Hour)},
		{ID: 2, Title: "Bob", LastTime: base},
		{ID: 3, Title: "Carol", LastTime: base.Add(time.Hour)},
	}})

	visible := s.VisibleChats(domain.SortRecencyDesc, "")
	if len(visible) != 3 {
		t.Fatalf("visible = %d chats, want 3", len(visible))
	}
	wantOrder := []int64{1, 3, 2}
	for i, id := range wantOrder {
		if visible[i].ID != id {
			t.Errorf("visible[%d].ID = %d, want %d", i, visible[i].ID, id)
		}
	}

	// A newer message in chat #2 moves it to the front.
	s.Apply(store.NewMessage{Message: msg(2, 1, "ping", base.Add(3 * time.Hour))})
	visible = s.VisibleChats(domain.SortRecencyDesc, "")
	if visible[0].ID != 2 {
		t.Errorf("after new message, first chat = %d, want 2", visible[0].ID)
	}
}

func TestVisibleChats_AlphabeticalSort(t *testing.T) {
	s := store.New()
	s.Apply(store.DialogsSnapshot{Chats: []domain.ChatSummary{
		{ID: 1, Title: "zulu"},
		{ID: 2, Title: "alpha"},
		{ID: 3, Title: "Mike"},
	}})

	visible := s.VisibleChats(domain.SortAlphabeticalAsc, "")
	want := []string{"alpha", "Mike", "zulu"}
	for i, title := range want {
		if visible[i].Title != title {
			t.Errorf("visible[%d].Title = %q, want %q", i, visible[i].Title, title)
		}
	}
}

func TestVisibleChats_SearchIsPureRead(t *testing.T) {
	s := store.New()
	s.Apply(store.DialogsSnapshot{Chats: []domain.ChatSummary{
		{ID: 1, Title: "Alice"},
		{ID: 2, Title: "Bob"},
		{ID: 3, Title: "alina"},
	}})
	s.Apply(store.NewMessage{Message: msg(1, 1, "x", time.Now())})

	filtered := s.VisibleChats(domain.SortAlphabeticalAsc, "ali")
	if len(filtered) != 2 {
		t.Fatalf("filtered = %d chats, want 2 (case-insensitive substring)", len(filtered))
	}

	// Changing the query must not mutate stored chats or messages.
	all := s.VisibleChats(domain.SortAlphabeticalAsc, "")
	if len(all) != 3 {
		t.Errorf("after filtering, full list = %d chats, want 3", len(all))
	}
	if got := len(s.Messages(1)); got != 1 {
		t.Errorf("messages mutated by query: %d, want 1", got)
	}
}

func TestSelection_ClampedToVisibleBounds(t *testing.T) {
	s := store.New()
	mode, query := domain.SortRecencyDesc, ""

	// Empty store: no selection, moves are safe.
	if s.MoveSelection(1, mode, query) {
		t.Error("MoveSelection on empty store reported change")
	}
	if idx := s.SelectedIndex(mode, query); idx != -1 {
		t.Errorf("SelectedIndex on empty = %d, want -1", idx)
	}

	s.Apply(store.DialogsSnapshot{Chats: []domain.ChatSummary{
		{ID: 1, Title: "a"}, {ID: 2, Title: "b"}, {ID: 3, Title: "c"},
	}})

	// Over-shoot both ends; index must stay in [0, len-1].
	s.MoveSelection(-10, mode, query)
	if idx := s.SelectedIndex(mode, query); idx != 0 {
		t.Errorf("after big up move, index = %d, want 0", idx)
	}
	s.MoveSelection(10, mode, query)
	if idx := s.SelectedIndex(mode, query); idx != 2 {
		t.Errorf("after big down move, index = %d, want 2", idx)
	}

	// Narrowing the filter re-clamps onto the remaining chat.
	if id := s.SelectedID(mode, "b"); id != 2 {
		t.Errorf("SelectedID with filter = %d, want 2", id)
	}
}

func TestOptimisticSend_Lifecycle(t *testing.T) {
	s := store.New()
	now := time.Now()
	s.Apply(store.DialogsSnapshot{Chats: []domain.ChatSummary{{ID: 1, Title: "Alice"}}})

	pendingID := s.AppendLocal(1, "me", "hi", now)

	msgs := s.Messages(1)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Status != domain.StatusPending {
		t.Errorf("status = %v, want Pending", msgs[0].Status)
	}
	if !msgs[0].Out {
		t.Error("local message not marked outgoing")
	}

	// Failure keeps the message in place, text unchanged.
	s.Apply(store.MessageStatusChanged{ChatID: 1, MessageID: pendingID, Status: domain.StatusFailed})
	msgs = s.Messages(1)
	if msgs[0].Status != domain.StatusFailed {
		t.Errorf("status = %v, want Failed", msgs[0].Status)
	}
	if msgs[0].Text != "hi" {
		t.Errorf("text changed on failure: %q", msgs[0].Text)
	}
}

func TestOptimisticSend_ServerIDRewrite(t *testing.T) {
	s := store.New()
	now := time.Now()
	s.Apply(store.NewMessage{Message: msg(1, 100, "earlier", now)})

	pendingID := s.AppendLocal(1, "me", "hi", now)
	msgs := s.Messages(1)
	if msgs[len(msgs)-1].ID != pendingID {
		t.Fatal("pending message should sort after server messages")
	}

	s.Apply(store.MessageStatusChanged{ChatID: 1, MessageID: pendingID, NewID: 101, Status: domain.StatusSent})
	msgs = s.Messages(1)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[1].ID != 101 || msgs[1].Status != domain.StatusSent {
		t.Errorf("reconciled message = %+v, want ID 101 Sent", msgs[1])
	}
}

func TestSetHistory_MergesWithoutDuplicates(t *testing.T) {
	s := store.New()
	now := time.Now()
	s.Apply(store.NewMessage{Message: msg(1, 5, "live", now)})

	s.SetHistory(1, []domain.Message{
		msg(1, 3, "old", now.Add(-2*time.Minute)),
		msg(1, 4, "older", now.Add(-time.Minute)),
		msg(1, 5, "live", now),
	})

	msgs := s.Messages(1)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Errorf("messages out of order at %d: %d <= %d", i, msgs[i].ID, msgs[i-1].ID)
		}
	}
	if got := s.OldestMessageID(1); got != 3 {
		t.Errorf("OldestMessageID = %d, want 3", got)
	}
}

func TestApply_Snapshot_KeepsMessagesAndMarksMissingStale(t *testing.T) {
	s := store.New()
	now := time.Now()
	s.Apply(store.DialogsSnapshot{Chats: []domain.ChatSummary{
		{ID: 1, Title: "Alice"}, {ID: 2, Title: "Bob"},
	}})
	s.Apply(store.NewMessage{Message: msg(1, 1, "keep me", now)})

	s.Apply(store.DialogsSnapshot{Chats: []domain.ChatSummary{{ID: 1, Title: "Alice II"}}})

	if got := len(s.Messages(1)); got != 1 {
		t.Errorf("messages lost on snapshot: %d, want 1", got)
	}
	c1, _ := s.Chat(1)
	if c1.Title != "Alice II" || c1.Stale {
		t.Errorf("chat 1 = %+v, want fresh title Alice II", c1)
	}
	c2, _ := s.Chat(2)
	if !c2.Stale {
		t.Error("chat 2 missing from snapshot should be stale, not deleted")
	}
}

func TestMarkRead_And_MarkAllStale(t *testing.T) {
	s := store.New()
	s.Apply(store.NewMessage{Message: msg(1, 1, "a", time.Now())})

	s.MarkRead(1)
	c, _ := s.Chat(1)
	if c.UnreadCount != 0 {
		t.Errorf("UnreadCount after MarkRead = %d, want 0", c.UnreadCount)
	}

	s.MarkAllStale()
	c, _ = s.Chat(1)
	if !c.Stale {
		t.Error("chat not stale after MarkAllStale")
	}
}

func TestApply_ChatMetadataChanged(t *testing.T) {
	s := store.New()
	s.Apply(store.DialogsSnapshot{Chats: []domain.ChatSummary{{ID: 1, Title: "Old", UnreadCount: 3}}})

	title := "New"
	unread := 0
	s.Apply(store.ChatMetadataChanged{ChatID: 1, Title: &title, UnreadCount: &unread})

	c, _ := s.Chat(1)
	if c.Title != "New" {
		t.Errorf("Title = %q, want New", c.Title)
	}
	if c.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d, want 0", c.UnreadCount)
	}
}
