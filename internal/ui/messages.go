package ui

import (
	"time"

	"github.com/mvolodin/teleterm/internal/auth"
	"github.com/mvolodin/teleterm/internal/domain"
)

// UpdatesQueuedMsg is sent by the update queue's wake callback whenever new
// store updates are waiting to be drained.
type UpdatesQueuedMsg struct{}

// AuthResultMsg carries the outcome of an asynchronous auth step.
type AuthResultMsg struct {
	Result auth.Result
}

// AuthLostMsg signals that the session was invalidated server-side and the
// client must log in again.
type AuthLostMsg struct{}

// HistoryLoadedMsg delivers fetched history for a chat. Prepend is set when
// the page was requested by scrolling past the oldest loaded message.
type HistoryLoadedMsg struct {
	ChatID   int64
	Messages []domain.Message
	Prepend  bool
	Err      error
}

// SendResultMsg reports the fate of an optimistically appended message.
type SendResultMsg struct {
	ChatID    int64
	PendingID int
	ServerID  int
	Err       error
}

// DialogsLoadedMsg delivers a fresh chat list fetched after re-login.
type DialogsLoadedMsg struct {
	Chats []domain.ChatSummary
	Err   error
}

// StatusTextMsg sets a transient message in the status bar.
type StatusTextMsg struct {
	Text string
}

// ConnStateMsg flips the connection indicator, e.g. while the ingest loop
// is backing off between retries.
type ConnStateMsg struct {
	Connected bool
	Text      string
}

// clockTickMsg triggers a periodic redraw and status bar time refresh.
type clockTickMsg time.Time

// splashDoneMsg signals that the splash screen timeout has elapsed.
type splashDoneMsg struct{}
