package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"go.uber.org/zap"

	"github.com/mvolodin/teleterm/internal/auth"
	"github.com/mvolodin/teleterm/internal/domain"
	"github.com/mvolodin/teleterm/internal/keymap"
	"github.com/mvolodin/teleterm/internal/queue"
	"github.com/mvolodin/teleterm/internal/store"
	"github.com/mvolodin/teleterm/internal/telegram"
)

const chatListWidth = 36

const historyPageSize = 50

const apiCallTimeout = 30 * time.Second

// Deps bundles everything the root model needs.
type Deps struct {
	Store   *store.Store
	Machine *auth.Machine
	Client  telegram.Client
	Updates *queue.Queue[store.Update]
	Log     *zap.Logger

	// OnReauth restarts the stopped update ingestion after a re-login.
	OnReauth func()
}

// Model is the root Bubble Tea model. It owns the event loop: every store
// mutation, auth transition and key command funnels through Update, so the
// store needs no locking.
type Model struct {
	chatList    ChatListModel
	messageView MessageViewModel
	compose     ComposeModel
	authView    AuthModel
	status      statusModel
	splash      SplashModel
	help        HelpModel

	store   *store.Store
	machine *auth.Machine
	client  telegram.Client
	updates *queue.Queue[store.Update]
	log     *zap.Logger
	reauth  func()

	focus    domain.Focus
	mode     domain.Mode
	sortMode domain.SortMode

	composeText string
	searchQuery string

	connected bool
	authLost  bool

	historyRequested map[int64]bool

	width  int
	height int
}

// NewModel creates the root model with all sub-components.
func NewModel(deps Deps) Model {
	m := Model{
		chatList:         NewChatListModel(),
		messageView:      NewMessageViewModel(),
		compose:          NewComposeModel(),
		authView:         NewAuthModel(),
		status:           newStatusModel(),
		splash:           NewSplashModel(),
		help:             NewHelpModel(),
		store:            deps.Store,
		machine:          deps.Machine,
		client:           deps.Client,
		updates:          deps.Updates,
		log:              deps.Log,
		reauth:           deps.OnReauth,
		focus:            domain.FocusChats,
		historyRequested: make(map[int64]bool),
	}
	m = m.updateFocus()
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.Tick(2*time.Second, func(time.Time) tea.Msg { return splashDoneMsg{} }),
		clockTick(),
	}
	// Check the persisted session straight away; the splash covers the wait.
	if step, err := m.machine.Restore(); err == nil {
		cmds = append(cmds, runStep(step))
	}
	return tea.Batch(cmds...)
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockTickMsg(t) })
}

// runStep executes an auth step off the event loop and feeds the result back.
func runStep(step auth.Step) tea.Cmd {
	return func() tea.Msg {
		return AuthResultMsg{Result: step(context.Background())}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m = m.distributeSize()
		return m.refresh(), nil

	case splashDoneMsg:
		m.splash = m.splash.TimerDone()
		return m, nil

	case clockTickMsg:
		m.status = m.status.SetClock(time.Time(msg))
		m = m.drainUpdates()
		return m.refresh(), clockTick()

	case UpdatesQueuedMsg:
		m = m.drainUpdates()
		return m.refresh(), nil

	case AuthResultMsg:
		return m.applyAuthResult(msg.Result)

	case AuthLostMsg:
		m.machine.Reset()
		m.store.MarkAllStale()
		m.authLost = true
		m.connected = false
		m.status = m.status.SetText("Signed out", false)
		m.authView = m.authView.Show(m.machine.State(), false)
		return m.refresh(), nil

	case DialogsLoadedMsg:
		if msg.Err != nil {
			m.log.Warn("dialog refresh failed", zap.Error(msg.Err))
			m.status = m.status.SetText("Sync failed", m.connected)
			return m, nil
		}
		m.store.Apply(store.DialogsSnapshot{Chats: msg.Chats})
		return m.refresh(), nil

	case HistoryLoadedMsg:
		return m.applyHistory(msg)

	case SendResultMsg:
		if msg.Err != nil {
			m.log.Warn("send failed", zap.Int64("chat", msg.ChatID), zap.Error(msg.Err))
			m.store.Apply(store.MessageStatusChanged{
				ChatID:    msg.ChatID,
				MessageID: msg.PendingID,
				Status:    domain.StatusFailed,
			})
			m.status = m.status.SetText("Send failed", m.connected)
		} else {
			m.store.Apply(store.MessageStatusChanged{
				ChatID:    msg.ChatID,
				MessageID: msg.PendingID,
				NewID:     msg.ServerID,
				Status:    domain.StatusSent,
			})
		}
		return m.refresh(), nil

	case StatusTextMsg:
		m.status = m.status.SetText(msg.Text, m.connected)
		return m, nil

	case ConnStateMsg:
		m.connected = msg.Connected
		m.status = m.status.SetText(msg.Text, msg.Connected)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.splash.IsVisible() {
		if key == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	}

	if m.help.IsVisible() {
		switch key {
		case "ctrl+c":
			return m, tea.Quit
		case "?", "f1", "esc":
			m.help = m.help.Toggle()
		}
		return m, nil
	}

	if m.machine.State().Kind != auth.Authenticated {
		return m.handleAuthKey(msg)
	}

	cmd := keymap.Map(key, m.focus, m.mode)
	return m.execute(cmd)
}

func (m Model) handleAuthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		if m.machine.Pending() {
			return m, nil
		}
		return m.submitAuth()
	}
	if m.machine.Pending() {
		return m, nil
	}
	var cmd tea.Cmd
	m.authView, cmd = m.authView.Update(msg)
	return m, cmd
}

func (m Model) submitAuth() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.authView.Value())
	if value == "" {
		return m, nil
	}

	var (
		step auth.Step
		err  error
	)
	switch m.machine.State().Kind {
	case auth.AwaitingCode:
		step, err = m.machine.SubmitCode(value)
	case auth.AwaitingPassword:
		step, err = m.machine.SubmitPassword(value)
	default:
		step, err = m.machine.SubmitPhone(value)
	}
	if err != nil {
		m.log.Warn("auth input rejected", zap.Error(err))
		return m, nil
	}

	m.authView = m.authView.Reset().Show(m.machine.State(), true)
	return m, runStep(step)
}

func (m Model) applyAuthResult(r auth.Result) (tea.Model, tea.Cmd) {
	m.splash = m.splash.SessionChecked()

	if !m.machine.Apply(r) {
		// A cancelled or superseded step; nothing to show.
		return m, nil
	}

	st := m.machine.State()
	m.authView = m.authView.Show(st, false)

	var cmds []tea.Cmd
	switch st.Kind {
	case auth.Authenticated:
		m.client.NotifyAuthenticated()
		m.status = m.status.SetText("Online", true)
		m.connected = true
		if m.authLost {
			m.authLost = false
			if m.reauth != nil {
				m.reauth()
			}
			cmds = append(cmds, m.fetchDialogsCmd())
		}
	case auth.Failed:
		m.log.Warn("sign-in failed",
			zap.String("reason", fmt.Sprint(st.Reason)), zap.Error(r.Err))
	}
	return m.refresh(), tea.Batch(cmds...)
}

func (m Model) applyHistory(msg HistoryLoadedMsg) (tea.Model, tea.Cmd) {
	delete(m.historyRequested, msg.ChatID)

	if msg.Err != nil {
		m.log.Warn("history load failed", zap.Int64("chat", msg.ChatID), zap.Error(msg.Err))
		m.status = m.status.SetText("History failed", m.connected)
		m.messageView = m.messageView.AbortLoading()
		return m, nil
	}

	m.store.SetHistory(msg.ChatID, msg.Messages)
	if m.store.Active() == msg.ChatID {
		all := m.store.Messages(msg.ChatID)
		if msg.Prepend {
			m.messageView = m.messageView.PrependOlder(all, len(msg.Messages))
		} else {
			m.messageView = m.messageView.SetMessages(all, true)
		}
		m.store.SetAtBottom(m.messageView.AtBottom())
	}
	return m.refresh(), nil
}

func (m Model) execute(cmd keymap.Command) (tea.Model, tea.Cmd) {
	switch cmd.Action {
	case keymap.ActQuit:
		return m, tea.Quit

	case keymap.ActFocusNext:
		m.focus = nextFocus(m.focus, 1)
		m = m.updateFocus()

	case keymap.ActFocusPrev:
		m.focus = nextFocus(m.focus, 2)
		m = m.updateFocus()

	case keymap.ActMoveUp:
		return m.move(-1)

	case keymap.ActMoveDown:
		return m.move(1)

	case keymap.ActEnterCompose:
		m.mode = domain.ModeCompose
		m.focus = domain.FocusCompose
		m = m.updateFocus()

	case keymap.ActExitMode:
		m = m.exitMode()

	case keymap.ActStartSearch:
		m.mode = domain.ModeSearch
		m.focus = domain.FocusChats
		m = m.updateFocus()

	case keymap.ActToggleSort:
		if m.sortMode == domain.SortRecencyDesc {
			m.sortMode = domain.SortAlphabeticalAsc
		} else {
			m.sortMode = domain.SortRecencyDesc
		}

	case keymap.ActToggleHelp:
		m.help = m.help.Toggle()

	case keymap.ActSendComposed:
		return m.sendComposed()

	case keymap.ActInsertRune:
		switch m.mode {
		case domain.ModeCompose:
			m.composeText += string(cmd.Rune)
		case domain.ModeSearch:
			m.searchQuery += string(cmd.Rune)
		}

	case keymap.ActBackspace:
		switch m.mode {
		case domain.ModeCompose:
			m.composeText = dropLastRune(m.composeText)
		case domain.ModeSearch:
			m.searchQuery = dropLastRune(m.searchQuery)
		}
	}

	return m.refresh(), nil
}

// exitMode implements Esc: leave compose, or clear the search query first and
// leave search on the next press; in normal mode it returns focus to chats.
func (m Model) exitMode() Model {
	switch m.mode {
	case domain.ModeCompose:
		m.mode = domain.ModeNormal
	case domain.ModeSearch:
		if m.searchQuery != "" {
			m.searchQuery = ""
		} else {
			m.mode = domain.ModeNormal
		}
	default:
		m.focus = domain.FocusChats
		m = m.updateFocus()
	}
	return m
}

func (m Model) move(delta int) (tea.Model, tea.Cmd) {
	switch m.focus {
	case domain.FocusChats:
		if m.store.MoveSelection(delta, m.sortMode, m.searchQuery) {
			return m.openSelected()
		}

	case domain.FocusMessages:
		var cmds []tea.Cmd
		if delta < 0 {
			var needOlder bool
			m.messageView, needOlder = m.messageView.ScrollUp()
			if needOlder {
				chatID := m.store.Active()
				if beforeID := m.store.OldestMessageID(chatID); beforeID != 0 {
					cmds = append(cmds, m.loadHistoryCmd(chatID, beforeID))
				}
			}
		} else {
			m.messageView = m.messageView.ScrollDown()
		}
		m.store.SetAtBottom(m.messageView.AtBottom())
		if m.messageView.AtBottom() {
			cmds = append(cmds, m.markReadNow())
		}
		return m.refresh(), tea.Batch(cmds...)
	}
	return m.refresh(), nil
}

// openSelected makes the selected chat active, loading history on first
// visit and clearing its unread counter.
func (m Model) openSelected() (tea.Model, tea.Cmd) {
	id := m.store.SelectedID(m.sortMode, m.searchQuery)
	if id == 0 {
		return m.refresh(), nil
	}
	if id == m.store.Active() {
		return m.refresh(), nil
	}

	m.store.SetActive(id)
	m.messageView = m.messageView.SetMessages(m.store.Messages(id), true)

	var cmds []tea.Cmd
	if len(m.store.Messages(id)) == 0 && !m.historyRequested[id] {
		m.historyRequested[id] = true
		cmds = append(cmds, m.loadHistoryCmd(id, 0))
	}
	cmds = append(cmds, m.markReadNow())
	return m.refresh(), tea.Batch(cmds...)
}

// markReadNow zeroes the active chat's unread counter locally and tells the
// server, fire and forget.
func (m Model) markReadNow() tea.Cmd {
	chatID := m.store.Active()
	if chatID == 0 {
		return nil
	}
	chat, ok := m.store.Chat(chatID)
	if !ok || chat.UnreadCount == 0 {
		return nil
	}
	m.store.MarkRead(chatID)

	maxID := 0
	if msgs := m.store.Messages(chatID); len(msgs) > 0 {
		maxID = msgs[len(msgs)-1].ID
	}
	client := m.client
	log := m.log
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
		defer cancel()
		if err := client.MarkAsRead(ctx, chatID, maxID); err != nil {
			log.Warn("mark read failed", zap.Int64("chat", chatID), zap.Error(err))
		}
		return nil
	}
}

func (m Model) sendComposed() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.composeText)
	if text == "" {
		return m, nil
	}
	chatID := m.store.Active()
	if chatID == 0 {
		m.status = m.status.SetText("Select a chat first", m.connected)
		return m, nil
	}

	name := m.client.SelfName()
	if name == "" {
		name = "You"
	}
	pendingID := m.store.AppendLocal(chatID, name, text, time.Now())
	m.composeText = ""

	client := m.client
	cmd := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
		defer cancel()
		id, err := client.SendMessage(ctx, chatID, text)
		return SendResultMsg{ChatID: chatID, PendingID: pendingID, ServerID: id, Err: err}
	}
	return m.refresh(), cmd
}

func (m Model) loadHistoryCmd(chatID int64, beforeID int) tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
		defer cancel()
		msgs, err := client.GetHistory(ctx, chatID, beforeID, historyPageSize)
		return HistoryLoadedMsg{ChatID: chatID, Messages: msgs, Prepend: beforeID != 0, Err: err}
	}
}

func (m Model) fetchDialogsCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), apiCallTimeout)
		defer cancel()
		chats, err := client.GetDialogs(ctx)
		return DialogsLoadedMsg{Chats: chats, Err: err}
	}
}

// drainUpdates empties the ingest queue into the store, in arrival order.
func (m Model) drainUpdates() Model {
	for _, u := range m.updates.Drain() {
		switch ev := u.(type) {
		case store.NewMessage:
			msg := ev.Message
			if msg.ChatID == m.store.Active() && !msg.Out && !m.messageView.AtBottom() {
				m.messageView = m.messageView.SetPendingNew(m.messageView.PendingNew() + 1)
			}
		case store.DialogsSnapshot:
			m.connected = true
			m.status = m.status.SetText("Online", true)
			if name := m.client.SelfName(); name != "" {
				m.status = m.status.SetUserName(name)
			}
		}
		m.store.Apply(u)
	}
	return m
}

// refresh projects the store into the view components. It is the only place
// the panes learn about state changes.
func (m Model) refresh() Model {
	visible := m.store.VisibleChats(m.sortMode, m.searchQuery)
	idx := m.store.SelectedIndex(m.sortMode, m.searchQuery)
	m.chatList = m.chatList.
		WithChats(visible, idx).
		SetSortMode(m.sortMode).
		SetSearch(m.searchQuery, m.mode == domain.ModeSearch)

	if active := m.store.Active(); active != 0 {
		stick := m.messageView.AtBottom()
		m.messageView = m.messageView.SetMessages(m.store.Messages(active), stick)
		m.store.SetAtBottom(m.messageView.AtBottom())
		if c, ok := m.store.Chat(active); ok {
			m.status = m.status.SetChatTitle(c.Title)
		}
	}

	m.compose = m.compose.
		SetValue(m.composeText).
		SetComposing(m.mode == domain.ModeCompose)
	m.status = m.status.SetSortMode(m.sortMode)
	return m
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	if m.splash.IsVisible() {
		x, y := m.splash.BoxOffset()
		bg := lipgloss.NewLayer(lipgloss.NewStyle().Width(m.width).Height(m.height).Render(""))
		fg := lipgloss.NewLayer(m.splash.View()).X(x).Y(y).Z(1)
		v.SetContent(lipgloss.NewCompositor(bg, fg).Render())
		return v
	}

	if m.machine.State().Kind != auth.Authenticated {
		v.SetContent(m.authView.View())
		return v
	}

	chatListView := m.chatList.View()
	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.messageView.View(), m.compose.View())
	panes := lipgloss.JoinHorizontal(lipgloss.Top, chatListView, rightPane)
	full := lipgloss.JoinVertical(lipgloss.Left, panes, m.status.View())

	mainContent := lipgloss.NewStyle().
		MaxWidth(m.width).
		MaxHeight(m.height).
		Render(full)

	if m.help.IsVisible() {
		x, y := m.help.BoxOffset()
		bg := lipgloss.NewLayer(mainContent)
		fg := lipgloss.NewLayer(m.help.View()).X(x).Y(y).Z(1)
		v.SetContent(lipgloss.NewCompositor(bg, fg).Render())
	} else {
		v.SetContent(mainContent)
	}
	return v
}

func (m Model) distributeSize() Model {
	// Status bar takes the last row.
	contentHeight := m.height - 1
	if contentHeight < 1 {
		contentHeight = 1
	}

	clWidth := chatListWidth
	if clWidth > m.width {
		clWidth = m.width
	}
	m.chatList = m.chatList.SetSize(clWidth, contentHeight)

	rightWidth := m.width - clWidth
	if rightWidth < 1 {
		rightWidth = 1
	}
	messagesHeight := contentHeight - composeRenderedHeight
	if messagesHeight < 1 {
		messagesHeight = 1
	}
	m.messageView = m.messageView.SetSize(rightWidth, messagesHeight)
	m.compose = m.compose.SetSize(rightWidth, composeRenderedHeight)

	m.status = m.status.SetWidth(m.width)
	m.authView = m.authView.SetSize(m.width, m.height)
	m.splash = m.splash.SetSize(m.width, m.height)
	m.help = m.help.SetSize(m.width, m.height)
	return m
}

func (m Model) updateFocus() Model {
	m.chatList = m.chatList.SetFocused(m.focus == domain.FocusChats)
	m.messageView = m.messageView.SetFocused(m.focus == domain.FocusMessages)
	m.compose = m.compose.SetFocused(m.focus == domain.FocusCompose)
	return m
}

func nextFocus(f domain.Focus, step int) domain.Focus {
	order := []domain.Focus{domain.FocusChats, domain.FocusMessages, domain.FocusCompose}
	for i, cur := range order {
		if cur == f {
			return order[(i+step)%len(order)]
		}
	}
	return domain.FocusChats
}

func dropLastRune(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return string(r[:len(r)-1])
}

// App wraps the Bubble Tea program for external use.
type App struct {
	program *tea.Program
}

// NewApp creates a new App ready to Run.
func NewApp(deps Deps) *App {
	p := tea.NewProgram(NewModel(deps))
	return &App{program: p}
}

// Run starts the Bubble Tea event loop (blocks until quit).
func (a *App) Run() error {
	_, err := a.program.Run()
	return err
}

// Send sends a message into the Bubble Tea event loop from external goroutines.
func (a *App) Send(msg tea.Msg) {
	go a.program.Send(msg)
}
