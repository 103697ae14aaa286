package store

import "github.com/mvolodin/teleterm/internal/domain"

// Update is an immutable event produced by the network side and applied
// to the store on the event-loop goroutine.
type Update interface{ update() }

// NewMessage inserts a message into its chat, creating the chat entry if
// this is the first reference to the chat id.
type NewMessage struct {
	Message domain.Message
}

// MessageStatusChanged reconciles a message's delivery status. NewID, when
// non-zero, carries the server-assigned id replacing a provisional one.
type MessageStatusChanged struct {
	ChatID    int64
	MessageID int
	NewID     int
	Status    domain.DeliveryStatus
}

// ChatMetadataChanged updates a chat's summary fields without touching its
// messages. Nil fields are left unchanged.
type ChatMetadataChanged struct {
	ChatID      int64
	Title       *string
	UnreadCount *int
	Peer        interface{}
}

// DialogsSnapshot replaces all chat summaries, as on cold start or
// post-reconnect re-sync. Message lists already loaded are kept.
type DialogsSnapshot struct {
	Chats []domain.ChatSummary
}

func (NewMessage) update()           {}
func (MessageStatusChanged) update() {}
func (ChatMetadataChanged) update()  {}
func (DialogsSnapshot) update()      {}
