package domain

import "time"

// DeliveryStatus tracks a message through the optimistic-send lifecycle.
// Pending transitions to Sent or Failed, never back.
type DeliveryStatus int

const (
	StatusSent DeliveryStatus = iota
	StatusPending
	StatusFailed
)

type ChatSummary struct {
	ID          int64
	Title       string
	UnreadCount int
	LastMessage string
	LastTime    time.Time
	Stale       bool        // set on disconnect until the next snapshot
	Peer        interface{} // holds tg.InputPeerClass for sending
}

type Message struct {
	ID          int
	ChatID      int64
	SenderName  string
	SenderID    int64
	Text        string
	HasMarkdown bool // true if Text contains markdown from Telegram entities
	Timestamp   time.Time
	Out         bool // true if sent by us
	Status      DeliveryStatus
}

// SortMode selects the ordering of the visible chat list.
type SortMode int

const (
	SortRecencyDesc SortMode = iota
	SortAlphabeticalAsc
)

func (m SortMode) String() string {
	if m == SortAlphabeticalAsc {
		return "A-Z"
	}
	return "Recent"
}

// Focus identifies the pane that receives navigation keys.
type Focus int

const (
	FocusChats Focus = iota
	FocusMessages
	FocusCompose
)

// Mode is the input mode: Normal dispatches hotkeys, Compose and Search
// treat printable keys as text.
type Mode int

const (
	ModeNormal Mode = iota
	ModeCompose
	ModeSearch
)
