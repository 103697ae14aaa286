package telegram

import (
	"context"

	"github.com/mvolodin/teleterm/internal/auth"
	"github.com/mvolodin/teleterm/internal/domain"
	"github.com/mvolodin/teleterm/internal/store"
)

// Client is the protocol surface consumed by the rest of the app. All
// methods are safe for use from tea.Cmd goroutines once Run has signalled
// readiness.
type Client interface {
	// Run connects and serves API calls until ctx is cancelled.
	Run(ctx context.Context) error
	// Ready is closed once the connection is usable for API calls.
	Ready() <-chan struct{}
	// NotifyAuthenticated tells the client login has completed so it can
	// start the gap-aware update manager.
	NotifyAuthenticated()

	GetDialogs(ctx context.Context) ([]domain.ChatSummary, error)
	GetHistory(ctx context.Context, chatID int64, beforeID, limit int) ([]domain.Message, error)
	// SendMessage returns the server-assigned message id.
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	MarkAsRead(ctx context.Context, chatID int64, maxID int) error

	// AuthBackend exposes the step backend for the auth state machine.
	AuthBackend() auth.Backend
	// SelfName is the logged-in user's display name, empty before sync.
	SelfName() string

	// Next yields the next update event (ingest.EventSource).
	Next(ctx context.Context) (store.Update, error)
}
