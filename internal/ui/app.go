// Package ui provides the terminal screens: login, signup, chat, profile, and
// the admin users table. Screens render from store snapshots and dispatch
// store operations as commands; they own only their local input state.
package ui

import (
	"log/slog"

	"breathechat/internal/chat"
	"breathechat/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Screen identifies the active screen.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenSignup
	ScreenChat
	ScreenProfile
	ScreenUsers
)

// SessionStateMsg delivers a session store snapshot to the UI.
type SessionStateMsg session.State

// ChatStateMsg delivers a chat store snapshot to the UI.
type ChatStateMsg chat.State

// opDoneMsg signals that a dispatched store operation finished. The stores
// already hold the outcome; the message only triggers a re-render and lets a
// screen reset its local editing state.
type opDoneMsg struct {
	op string
}

// App is the root model. It routes between screens based on session state.
type App struct {
	session *session.Store
	chats   *chat.Store

	screen  Screen
	login   *LoginScreen
	signup  *SignupScreen
	chatScr *ChatScreen
	profile *ProfileScreen
	users   *UsersScreen

	sessionState session.State
	chatState    chat.State

	width  int
	height int
	logger *slog.Logger
}

// NewApp builds the root model with all screens.
func NewApp(sessionStore *session.Store, chatStore *chat.Store, logger *slog.Logger) *App {
	app := &App{
		session: sessionStore,
		chats:   chatStore,
		screen:  ScreenLogin,
		width:   80,
		height:  24,
		logger:  logger,
	}
	app.login = NewLoginScreen(sessionStore)
	app.signup = NewSignupScreen(sessionStore)
	app.chatScr = NewChatScreen(chatStore)
	app.profile = NewProfileScreen(sessionStore)
	app.users = NewUsersScreen(sessionStore)
	return app
}

// Init rehydrates both stores and routes to the right first screen.
func (a *App) Init() tea.Cmd {
	a.session.InitializeAuth()
	a.sessionState = a.session.State()

	if a.sessionState.IsAuthenticated {
		a.chats.LoadLocalHistory()
		a.chats.InitializeWelcomeMessage()
		a.chatState = a.chats.State()
		a.screen = ScreenChat
		return a.chatScr.refreshHistoryCmd()
	}
	return nil
}

// Update handles messages and routes them to the active screen.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case SessionStateMsg:
		a.sessionState = session.State(msg)
		a.route()
		return a, nil

	case ChatStateMsg:
		a.chatState = chat.State(msg)
		return a, nil

	case opDoneMsg:
		a.sessionState = a.session.State()
		a.chatState = a.chats.State()
		var cmds []tea.Cmd
		if msg.op == "login" && a.sessionState.IsAuthenticated {
			a.chats.LoadLocalHistory()
			a.chats.InitializeWelcomeMessage()
			a.chatState = a.chats.State()
			cmds = append(cmds, a.chatScr.refreshHistoryCmd())
		}
		cmds = append(cmds, a.activeScreen().OnOpDone(msg.op, a.sessionState, a.chatState))
		a.route()
		return a, tea.Batch(cmds...)

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

// route moves off screens the session state no longer permits.
func (a *App) route() {
	authed := a.sessionState.IsAuthenticated
	switch {
	case !authed && a.screen != ScreenLogin && a.screen != ScreenSignup:
		a.screen = ScreenLogin
	case authed && (a.screen == ScreenLogin || a.screen == ScreenSignup):
		a.screen = ScreenChat
	case a.screen == ScreenUsers && !a.sessionState.User.IsAdmin():
		a.screen = ScreenChat
	}
}

func (a *App) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c":
		return a, tea.Quit
	}

	if a.sessionState.IsAuthenticated {
		switch key.String() {
		case "f2":
			a.screen = ScreenChat
			return a, nil
		case "f3":
			a.screen = ScreenProfile
			return a, nil
		case "f4":
			if a.sessionState.User.IsAdmin() {
				a.screen = ScreenUsers
				return a, a.users.refreshCmd()
			}
			return a, nil
		case "ctrl+l":
			a.session.Logout()
			a.sessionState = a.session.State()
			a.route()
			return a, nil
		}
	} else if key.String() == "tab" && !a.activeScreen().CapturesTab() {
		// Toggle between login and signup.
		if a.screen == ScreenLogin {
			a.screen = ScreenSignup
		} else {
			a.screen = ScreenLogin
		}
		return a, nil
	}

	return a, a.activeScreen().Update(key, a.sessionState, a.chatState)
}

// screenModel is the surface every screen implements.
type screenModel interface {
	Update(key tea.KeyMsg, s session.State, c chat.State) tea.Cmd
	OnOpDone(op string, s session.State, c chat.State) tea.Cmd
	View(s session.State, c chat.State, width, height int) string
	CapturesTab() bool
}

func (a *App) activeScreen() screenModel {
	switch a.screen {
	case ScreenSignup:
		return a.signup
	case ScreenChat:
		return a.chatScr
	case ScreenProfile:
		return a.profile
	case ScreenUsers:
		return a.users
	default:
		return a.login
	}
}

// View renders the active screen plus the shared banner and help line.
func (a *App) View() string {
	body := a.activeScreen().View(a.sessionState, a.chatState, a.width, a.height)

	banner := ""
	switch {
	case a.sessionState.SuccessMessage != "":
		banner = successStyle.Render(a.sessionState.SuccessMessage)
	case a.sessionState.Error != "":
		banner = errorStyle.Render(a.sessionState.Error)
	}

	help := helpStyle.Render(a.helpLine())
	return lipgloss.JoinVertical(lipgloss.Left, body, banner, help)
}

func (a *App) helpLine() string {
	if !a.sessionState.IsAuthenticated {
		return "tab: switch login/signup | enter: submit | ctrl+c: quit"
	}
	line := "f2: chat | f3: profile | ctrl+l: logout | ctrl+c: quit"
	if a.sessionState.User.IsAdmin() {
		line = "f2: chat | f3: profile | f4: users | ctrl+l: logout | ctrl+c: quit"
	}
	return line
}
