package ui

import (
	"context"

	"breathechat/internal/api"
	"breathechat/internal/chat"
	"breathechat/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LoginScreen is the username/password form.
type LoginScreen struct {
	session *session.Store

	username *TextField
	password *TextField
	focus    int
	fieldErr string
}

// NewLoginScreen builds the form with the username field focused.
func NewLoginScreen(store *session.Store) *LoginScreen {
	s := &LoginScreen{
		session:  store,
		username: NewTextField("Username", "your username"),
		password: NewTextField("Password", ""),
	}
	s.password.Masked = true
	s.username.Focus()
	return s
}

func (s *LoginScreen) CapturesTab() bool { return false }

func (s *LoginScreen) fields() []*TextField {
	return []*TextField{s.username, s.password}
}

func (s *LoginScreen) setFocus(idx int) {
	fields := s.fields()
	s.focus = (idx + len(fields)) % len(fields)
	for i, f := range fields {
		if i == s.focus {
			f.Focus()
		} else {
			f.Blur()
		}
	}
}

// Update handles form input; enter on the last field submits.
func (s *LoginScreen) Update(key tea.KeyMsg, _ session.State, _ chat.State) tea.Cmd {
	switch key.String() {
	case "up":
		s.setFocus(s.focus - 1)
		return nil
	case "down":
		s.setFocus(s.focus + 1)
		return nil
	case "enter":
		if s.focus < len(s.fields())-1 {
			s.setFocus(s.focus + 1)
			return nil
		}
		return s.submit()
	}
	s.fields()[s.focus].Update(key)
	return nil
}

func (s *LoginScreen) submit() tea.Cmd {
	if msg := validateRequired(s.username.Value(), "Username"); msg != "" {
		s.fieldErr = msg
		return nil
	}
	if msg := validateRequired(s.password.Value(), "Password"); msg != "" {
		s.fieldErr = msg
		return nil
	}
	s.fieldErr = ""

	creds := api.Credentials{Username: s.username.Value(), Password: s.password.Value()}
	return func() tea.Msg {
		s.session.Login(context.Background(), creds)
		return opDoneMsg{op: "login"}
	}
}

// OnOpDone clears the password after any login attempt.
func (s *LoginScreen) OnOpDone(op string, state session.State, _ chat.State) tea.Cmd {
	if op == "login" {
		s.password.Reset()
		if state.IsAuthenticated {
			s.username.Reset()
		}
	}
	return nil
}

// View renders the form.
func (s *LoginScreen) View(state session.State, _ chat.State, width, _ int) string {
	lines := []string{
		titleStyle.Render("BREATHE — Sign in"),
		"",
		s.username.View(),
		s.password.View(),
	}
	if s.fieldErr != "" {
		lines = append(lines, "", errorStyle.Render(s.fieldErr))
	}
	if state.IsLoading {
		lines = append(lines, "", dimStyle.Render("Signing in..."))
	}
	lines = append(lines, "", dimStyle.Render("No account yet? Press tab to sign up."))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
