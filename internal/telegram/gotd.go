package telegram

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/mvolodin/teleterm/internal/auth"
	"github.com/mvolodin/teleterm/internal/domain"
	"github.com/mvolodin/teleterm/internal/ingest"
	"github.com/mvolodin/teleterm/internal/store"
)

// reconnectDelay spaces out full client restarts. Transient transport
// drops are already retried inside gotd; this only covers a dead Run.
const reconnectDelay = 5 * time.Second

// GotdClient implements Client using gotd/td. Update events flow out
// through an internal channel read by Next.
type GotdClient struct {
	apiID      int
	apiHash    string
	sessionDir string
	logger     *zap.Logger

	client *telegram.Client
	api    *tg.Client
	sender *message.Sender
	self   *tg.User

	events  chan store.Update
	runErrs chan error

	ready     chan struct{}
	readyOnce sync.Once
	authed    chan struct{}
	authOnce  sync.Once

	mu        sync.Mutex
	peerCache map[int64]tg.InputPeerClass
	nameCache map[int64]string
}

func NewGotdClient(apiID int, apiHash, sessionDir string, logger *zap.Logger) *GotdClient {
	return &GotdClient{
		apiID:      apiID,
		apiHash:    apiHash,
		sessionDir: sessionDir,
		logger:     logger,
		events:     make(chan store.Update, 128),
		runErrs:    make(chan error, 4),
		ready:      make(chan struct{}),
		authed:     make(chan struct{}),
		peerCache:  make(map[int64]tg.InputPeerClass),
		nameCache:  make(map[int64]string),
	}
}

func (c *GotdClient) Ready() <-chan struct{} { return c.ready }

// NotifyAuthenticated unblocks the update manager once login completes.
func (c *GotdClient) NotifyAuthenticated() {
	c.authOnce.Do(func() { close(c.authed) })
}

// AuthBackend returns the auth-machine backend bound to this client.
func (c *GotdClient) AuthBackend() auth.Backend {
	return &authBackend{c: c}
}

// Run connects and serves until ctx is cancelled, restarting the client
// after unexpected exits. Each failure is surfaced through Next so the
// ingestion loop can report and pace the stream restart.
func (c *GotdClient) Run(ctx context.Context) error {
	for {
		err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Error("client run ended", zap.Error(err))
		select {
		case c.runErrs <- err:
		default:
		}

		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *GotdClient) runOnce(ctx context.Context) error {
	dispatcher := tg.NewUpdateDispatcher()

	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewMessage) error {
		c.dispatchMessage(ctx, update.Message, e.Users)
		return nil
	})

	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, update *tg.UpdateNewChannelMessage) error {
		c.dispatchMessage(ctx, update.Message, e.Users)
		return nil
	})

	dispatcher.OnReadHistoryInbox(func(ctx context.Context, e tg.Entities, update *tg.UpdateReadHistoryInbox) error {
		unread := update.StillUnreadCount
		c.emit(ctx, store.ChatMetadataChanged{
			ChatID:      peerID(update.Peer),
			UnreadCount: &unread,
		})
		return nil
	})

	gaps := updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  c.logger.Named("gaps"),
	})

	c.client = telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		Logger:         c.logger.Named("gotd"),
		UpdateHandler:  gaps,
		SessionStorage: &session.FileStorage{Path: filepath.Join(c.sessionDir, "session.json")},
	})

	return c.client.Run(ctx, func(ctx context.Context) error {
		c.api = c.client.API()
		c.sender = message.NewSender(c.api)
		c.readyOnce.Do(func() { close(c.ready) })

		// Updates can only be consumed for an authenticated session; the
		// auth machine flips this switch.
		select {
		case <-c.authed:
		case <-ctx.Done():
			return ctx.Err()
		}

		self, err := c.client.Self(ctx)
		if err != nil {
			return fmt.Errorf("get self: %w", err)
		}
		c.mu.Lock()
		c.self = self
		c.mu.Unlock()

		// Initial (or post-reconnect) dialog sync through the update path.
		chats, err := c.GetDialogs(ctx)
		if err != nil {
			c.logger.Warn("initial dialog load failed", zap.Error(err))
		} else {
			c.emit(ctx, store.DialogsSnapshot{Chats: chats})
		}

		return gaps.Run(ctx, c.api, self.ID, updates.AuthOptions{})
	})
}

func (c *GotdClient) selfUser() *tg.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// SelfName returns the logged-in user's display name, empty until the first
// successful sync.
func (c *GotdClient) SelfName() string {
	if self := c.selfUser(); self != nil {
		return formatUserName(self)
	}
	return ""
}

func (c *GotdClient) dispatchMessage(ctx context.Context, msg tg.MessageClass, users map[int64]*tg.User) {
	m, ok := msg.(*tg.Message)
	if !ok {
		return
	}
	c.emit(ctx, store.NewMessage{Message: c.convertMessage(m, users)})
}

func (c *GotdClient) emit(ctx context.Context, u store.Update) {
	select {
	case c.events <- u:
	case <-ctx.Done():
	}
}

// Next implements ingest.EventSource. Client run failures surface here as
// errors; session revocation maps to ErrAuthInvalidated.
func (c *GotdClient) Next(ctx context.Context) (store.Update, error) {
	select {
	case u := <-c.events:
		return u, nil
	case err := <-c.runErrs:
		if tgerr.Is(err, "AUTH_KEY_UNREGISTERED") || tgerr.Is(err, "SESSION_REVOKED") {
			return nil, fmt.Errorf("%w: %v", ingest.ErrAuthInvalidated, err)
		}
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendMessage sends text to a chat and returns the server message id.
func (c *GotdClient) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	peer := c.findPeer(chatID)
	if peer == nil {
		return 0, fmt.Errorf("unknown peer: %d", chatID)
	}
	upd, err := c.sender.To(peer).Text(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sentMessageID(upd), nil
}

// sentMessageID digs the assigned message id out of a send result.
func sentMessageID(u tg.UpdatesClass) int {
	switch v := u.(type) {
	case *tg.UpdateShortSentMessage:
		return v.ID
	case *tg.Updates:
		for _, upd := range v.Updates {
			switch x := upd.(type) {
			case *tg.UpdateMessageID:
				return x.ID
			case *tg.UpdateNewMessage:
				if m, ok := x.Message.(*tg.Message); ok {
					return m.ID
				}
			case *tg.UpdateNewChannelMessage:
				if m, ok := x.Message.(*tg.Message); ok {
					return m.ID
				}
			}
		}
	}
	return 0
}

// GetHistory retrieves up to limit messages older than beforeID
// (beforeID 0 means newest).
func (c *GotdClient) GetHistory(ctx context.Context, chatID int64, beforeID, limit int) ([]domain.Message, error) {
	peer := c.findPeer(chatID)
	if peer == nil {
		return nil, fmt.Errorf("unknown peer: %d", chatID)
	}

	result, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		Limit:    limit,
		OffsetID: beforeID,
	})
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	return c.convertHistoryResult(result)
}

// GetDialogs retrieves the chat list and refreshes the peer cache.
func (c *GotdClient) GetDialogs(ctx context.Context) ([]domain.ChatSummary, error) {
	queryBuilder := dialogs.NewQueryBuilder(c.api)
	iter := queryBuilder.GetDialogs().BatchSize(100).Iter()

	var result []domain.ChatSummary
	for iter.Next(ctx) {
		elem := iter.Value()

		chatID := peerIDFromInputPeer(elem.Peer)
		if chatID != 0 {
			c.cachePeer(chatID, elem.Peer)
		}

		title := c.titleFromEntities(elem)

		var unreadCount int
		var lastMsg string
		var lastTime time.Time

		if dlg, ok := elem.Dialog.(*tg.Dialog); ok {
			unreadCount = dlg.UnreadCount
		}
		if elem.Last != nil {
			if msg, ok := elem.Last.(*tg.Message); ok {
				lastMsg = msg.Message
				lastTime = time.Unix(int64(msg.Date), 0)
			}
		}

		result = append(result, domain.ChatSummary{
			ID:          chatID,
			Title:       title,
			UnreadCount: unreadCount,
			LastMessage: lastMsg,
			LastTime:    lastTime,
			Peer:        elem.Peer,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("iterate dialogs: %w", err)
	}

	return result, nil
}

// MarkAsRead marks messages in a chat as read up to the given message ID.
func (c *GotdClient) MarkAsRead(ctx context.Context, chatID int64, maxID int) error {
	peer := c.findPeer(chatID)
	if peer == nil {
		return fmt.Errorf("unknown peer: %d", chatID)
	}

	switch p := peer.(type) {
	case *tg.InputPeerUser, *tg.InputPeerChat:
		_, err := c.api.MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{
			Peer:  peer,
			MaxID: maxID,
		})
		return err
	case *tg.InputPeerChannel:
		_, err := c.api.ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
			Channel: &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash},
			MaxID:   maxID,
		})
		return err
	default:
		return fmt.Errorf("unsupported peer type for mark as read: %T", peer)
	}
}

func (c *GotdClient) findPeer(chatID int64) tg.InputPeerClass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerCache[chatID]
}

func (c *GotdClient) cachePeer(chatID int64, peer tg.InputPeerClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerCache[chatID] = peer
}

func (c *GotdClient) cacheUserName(userID int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nameCache[userID] = name
}

func (c *GotdClient) findUserName(userID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nameCache[userID]
}

// convertMessage converts a tg.Message to a domain.Message. Entities are
// rendered to markdown; media-only messages get a placeholder text.
func (c *GotdClient) convertMessage(msg *tg.Message, users map[int64]*tg.User) domain.Message {
	var senderName string
	var senderID int64

	if fromID := msg.FromID; fromID != nil {
		switch p := fromID.(type) {
		case *tg.PeerUser:
			senderID = p.UserID
			if u, ok := users[p.UserID]; ok {
				senderName = formatUserName(u)
			} else {
				senderName = c.findUserName(p.UserID)
			}
		case *tg.PeerChat:
			senderID = p.ChatID
		case *tg.PeerChannel:
			senderID = p.ChannelID
		}
	}

	chatID := peerID(msg.PeerID)

	// In DMs FromID is often nil; derive the sender from PeerID and Out.
	if senderName == "" && !msg.Out {
		if p, ok := msg.PeerID.(*tg.PeerUser); ok {
			senderID = p.UserID
			if u, ok := users[p.UserID]; ok {
				senderName = formatUserName(u)
			} else {
				senderName = c.findUserName(p.UserID)
			}
		}
	}
	if senderName == "" && msg.Out {
		if self := c.selfUser(); self != nil {
			senderID = self.ID
			senderName = formatUserName(self)
		}
	}

	if senderID != 0 && senderName != "" {
		c.cacheUserName(senderID, senderName)
	}

	text := msg.Message
	hasMarkdown := false
	if len(msg.Entities) > 0 {
		rendered := EntitiesToMarkdown(text, msg.Entities)
		hasMarkdown = rendered != text
		text = rendered
	}
	if text == "" {
		if media, ok := msg.GetMedia(); ok {
			text = mediaPlaceholder(media)
		}
	}

	return domain.Message{
		ID:          msg.ID,
		ChatID:      chatID,
		SenderName:  senderName,
		SenderID:    senderID,
		Text:        text,
		HasMarkdown: hasMarkdown,
		Timestamp:   time.Unix(int64(msg.Date), 0),
		Out:         msg.Out,
		Status:      domain.StatusSent,
	}
}

// mediaPlaceholder renders non-text content as a short text stand-in.
func mediaPlaceholder(media tg.MessageMediaClass) string {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		return "[photo]"
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return "[media]"
		}
		for _, attr := range doc.Attributes {
			if sticker, ok := attr.(*tg.DocumentAttributeSticker); ok {
				if sticker.Alt != "" {
					return "sticker: " + sticker.Alt
				}
				return "sticker:"
			}
		}
		return "[media]"
	case *tg.MessageMediaGeo:
		return "[location]"
	case *tg.MessageMediaContact:
		return "[contact]"
	default:
		return "[media]"
	}
}

// convertHistoryResult extracts messages from a MessagesMessagesClass response.
func (c *GotdClient) convertHistoryResult(result tg.MessagesMessagesClass) ([]domain.Message, error) {
	var messages []tg.MessageClass
	var users []tg.UserClass

	switch r := result.(type) {
	case *tg.MessagesMessages:
		messages = r.Messages
		users = r.Users
	case *tg.MessagesMessagesSlice:
		messages = r.Messages
		users = r.Users
	case *tg.MessagesChannelMessages:
		messages = r.Messages
		users = r.Users
	default:
		return nil, fmt.Errorf("unexpected messages type: %T", result)
	}

	userMap := usersToMap(users)
	for id, u := range userMap {
		c.cacheUserName(id, formatUserName(u))
	}

	// The API returns reverse chronological order; flip it.
	var domainMsgs []domain.Message
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(*tg.Message)
		if !ok {
			continue
		}
		domainMsgs = append(domainMsgs, c.convertMessage(msg, userMap))
	}

	return domainMsgs, nil
}

// titleFromEntities extracts the chat title from dialog entities.
func (c *GotdClient) titleFromEntities(elem dialogs.Elem) string {
	if elem.Peer == nil {
		return "Unknown"
	}

	entities := elem.Entities

	switch p := elem.Dialog.GetPeer().(type) {
	case *tg.PeerUser:
		if u, ok := entities.User(p.UserID); ok {
			name := formatUserName(u)
			c.cacheUserName(p.UserID, name)
			return name
		}
	case *tg.PeerChat:
		if ch, ok := entities.Chat(p.ChatID); ok {
			return ch.Title
		}
	case *tg.PeerChannel:
		if ch, ok := entities.Channel(p.ChannelID); ok {
			return ch.Title
		}
	}

	return "Unknown"
}

// peerID extracts a numeric chat id from a PeerClass.
func peerID(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return p.ChatID
	case *tg.PeerChannel:
		return p.ChannelID
	default:
		return 0
	}
}

// peerIDFromInputPeer extracts a numeric peer ID from an InputPeerClass.
func peerIDFromInputPeer(peer tg.InputPeerClass) int64 {
	switch p := peer.(type) {
	case *tg.InputPeerUser:
		return p.UserID
	case *tg.InputPeerChat:
		return p.ChatID
	case *tg.InputPeerChannel:
		return p.ChannelID
	default:
		return 0
	}
}

// formatUserName returns a display name for a user.
func formatUserName(u *tg.User) string {
	if u.FirstName != "" && u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "Unknown"
}

// usersToMap converts a UserClass slice to a map of User by ID.
func usersToMap(users []tg.UserClass) map[int64]*tg.User {
	m := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		user, ok := u.(*tg.User)
		if !ok {
			continue
		}
		m[user.ID] = user
	}
	return m
}
