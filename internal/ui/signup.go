package ui

import (
	"context"
	"strings"

	"breathechat/internal/api"
	"breathechat/internal/chat"
	"breathechat/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SignupScreen is the registration form. Created accounts start pending and
// cannot chat until an administrator approves them.
type SignupScreen struct {
	session *session.Store

	username *TextField
	email    *TextField
	password *TextField
	gender   *TextField
	dob      *TextField
	focus    int

	fieldErrs map[string]string
	submitted bool
}

// NewSignupScreen builds the form.
func NewSignupScreen(store *session.Store) *SignupScreen {
	s := &SignupScreen{
		session:   store,
		username:  NewTextField("Username", "pick a username"),
		email:     NewTextField("Email", "you@example.com"),
		password:  NewTextField("Password", "min 8 characters"),
		gender:    NewTextField("Gender", "e.g. female / male / other"),
		dob:       NewTextField("Date of birth", "YYYY-MM-DD"),
		fieldErrs: make(map[string]string),
	}
	s.password.Masked = true
	s.username.Focus()
	return s
}

func (s *SignupScreen) CapturesTab() bool { return false }

func (s *SignupScreen) fields() []*TextField {
	return []*TextField{s.username, s.email, s.password, s.gender, s.dob}
}

func (s *SignupScreen) setFocus(idx int) {
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
func (s *SignupScreen) Update(key tea.KeyMsg, _ session.State, _ chat.State) tea.Cmd {
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

// validate fills fieldErrs and reports whether the form may be submitted.
// Errors render inline next to the offending field and never reach the network.
func (s *SignupScreen) validate() bool {
	s.fieldErrs = map[string]string{}
	if msg := validateRequired(s.username.Value(), "Username"); msg != "" {
		s.fieldErrs["username"] = msg
	}
	if msg := validateEmail(s.email.Value()); msg != "" {
		s.fieldErrs["email"] = msg
	}
	if msg := validatePassword(s.password.Value()); msg != "" {
		s.fieldErrs["password"] = msg
	}
	if msg := validateRequired(s.gender.Value(), "Gender"); msg != "" {
		s.fieldErrs["gender"] = msg
	}
	if msg := validateDOB(s.dob.Value()); msg != "" {
		s.fieldErrs["dob"] = msg
	}
	return len(s.fieldErrs) == 0
}

func (s *SignupScreen) submit() tea.Cmd {
	if !s.validate() {
		return nil
	}
	data := api.SignupData{
		Username: strings.TrimSpace(s.username.Value()),
		Email:    strings.TrimSpace(s.email.Value()),
		Password: s.password.Value(),
		Gender:   strings.TrimSpace(s.gender.Value()),
		DOB:      strings.TrimSpace(s.dob.Value()),
	}
	return func() tea.Msg {
		s.session.Signup(context.Background(), data)
		return opDoneMsg{op: "signup"}
	}
}

// OnOpDone marks a successful registration so the pending-approval notice
// shows, and clears the password either way.
func (s *SignupScreen) OnOpDone(op string, state session.State, _ chat.State) tea.Cmd {
	if op == "signup" {
		s.password.Reset()
		s.submitted = state.Error == ""
	}
	return nil
}

func (s *SignupScreen) fieldLine(f *TextField, key string) string {
	line := f.View()
	if msg, found := s.fieldErrs[key]; found {
		line += "  " + errorStyle.Render(msg)
	}
	return line
}

// View renders the form with inline field errors.
func (s *SignupScreen) View(state session.State, _ chat.State, width, _ int) string {
	lines := []string{
		titleStyle.Render("BREATHE — Create account"),
		"",
		s.fieldLine(s.username, "username"),
		s.fieldLine(s.email, "email"),
		s.fieldLine(s.password, "password"),
		s.fieldLine(s.gender, "gender"),
		s.fieldLine(s.dob, "dob"),
	}
	if state.IsLoading {
		lines = append(lines, "", dimStyle.Render("Creating account..."))
	}
	if s.submitted {
		lines = append(lines, "", noticeStyle.Render(
			"Account created. An administrator must approve it before you can chat."))
	}
	lines = append(lines, "", dimStyle.Render("Already registered? Press tab to sign in."))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
