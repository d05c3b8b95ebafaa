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

// profileMode selects what the profile screen is doing.
type profileMode int

const (
	profileViewing profileMode = iota
	profileEditing
	profileChangingPassword
	profileConfirmingDelete
)

// ProfileScreen shows the current user and hosts profile edits, password
// changes, and account deletion.
type ProfileScreen struct {
	session *session.Store

	mode  profileMode
	focus int

	email  *TextField
	gender *TextField
	dob    *TextField

	currentPassword *TextField
	newPassword     *TextField

	fieldErr string
}

// NewProfileScreen builds the screen in view mode.
func NewProfileScreen(store *session.Store) *ProfileScreen {
	s := &ProfileScreen{
		session:         store,
		email:           NewTextField("Email", ""),
		gender:          NewTextField("Gender", ""),
		dob:             NewTextField("Date of birth", "YYYY-MM-DD"),
		currentPassword: NewTextField("Current password", ""),
		newPassword:     NewTextField("New password", "min 8 characters"),
	}
	s.currentPassword.Masked = true
	s.newPassword.Masked = true
	return s
}

func (s *ProfileScreen) CapturesTab() bool { return true }

func (s *ProfileScreen) fields() []*TextField {
	switch s.mode {
	case profileEditing:
		return []*TextField{s.email, s.gender, s.dob}
	case profileChangingPassword:
		return []*TextField{s.currentPassword, s.newPassword}
	}
	return nil
}

func (s *ProfileScreen) setFocus(idx int) {
	fields := s.fields()
	if len(fields) == 0 {
		return
	}
	s.focus = (idx + len(fields)) % len(fields)
	for i, f := range fields {
		if i == s.focus {
			f.Focus()
		} else {
			f.Blur()
		}
	}
}

func (s *ProfileScreen) enterView() {
	s.mode = profileViewing
	s.fieldErr = ""
	s.currentPassword.Reset()
	s.newPassword.Reset()
	for _, f := range s.fields() {
		f.Blur()
	}
}

// Update handles keys per mode.
func (s *ProfileScreen) Update(key tea.KeyMsg, sess session.State, _ chat.State) tea.Cmd {
	switch s.mode {
	case profileViewing:
		return s.updateViewing(key, sess)
	case profileConfirmingDelete:
		return s.updateConfirmingDelete(key)
	}
	return s.updateForm(key)
}

func (s *ProfileScreen) updateViewing(key tea.KeyMsg, sess session.State) tea.Cmd {
	switch key.String() {
	case "e":
		if sess.User != nil {
			s.mode = profileEditing
			s.email.SetValue(sess.User.Email)
			s.gender.SetValue(sess.User.Gender)
			s.dob.SetValue(sess.User.DOB)
			s.setFocus(0)
		}
		return nil
	case "p":
		s.mode = profileChangingPassword
		s.setFocus(0)
		return nil
	case "ctrl+d":
		s.mode = profileConfirmingDelete
		return nil
	case "ctrl+r":
		return func() tea.Msg {
			s.session.FetchUserProfile(context.Background())
			return opDoneMsg{op: "profile"}
		}
	}
	return nil
}

func (s *ProfileScreen) updateConfirmingDelete(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "y":
		s.mode = profileViewing
		return func() tea.Msg {
			s.session.DeleteAccount(context.Background())
			return opDoneMsg{op: "delete-account"}
		}
	case "n", "esc":
		s.mode = profileViewing
	}
	return nil
}

func (s *ProfileScreen) updateForm(key tea.KeyMsg) tea.Cmd {
	switch key.String() {
	case "esc":
		s.enterView()
		return nil
	case "up":
		s.setFocus(s.focus - 1)
		return nil
	case "down", "tab":
		s.setFocus(s.focus + 1)
		return nil
	case "enter":
		if s.focus < len(s.fields())-1 {
			s.setFocus(s.focus + 1)
			return nil
		}
		if s.mode == profileEditing {
			return s.submitProfile()
		}
		return s.submitPassword()
	}
	s.fields()[s.focus].Update(key)
	return nil
}

func (s *ProfileScreen) submitProfile() tea.Cmd {
	if msg := validateEmail(s.email.Value()); msg != "" {
		s.fieldErr = msg
		return nil
	}
	if msg := validateDOB(s.dob.Value()); msg != "" {
		s.fieldErr = msg
		return nil
	}
	s.fieldErr = ""

	fields := map[string]any{
		"email":  strings.TrimSpace(s.email.Value()),
		"gender": strings.TrimSpace(s.gender.Value()),
		"dob":    strings.TrimSpace(s.dob.Value()),
	}
	return func() tea.Msg {
		s.session.UpdateProfile(context.Background(), fields)
		return opDoneMsg{op: "update-profile"}
	}
}

func (s *ProfileScreen) submitPassword() tea.Cmd {
	if msg := validateRequired(s.currentPassword.Value(), "Current password"); msg != "" {
		s.fieldErr = msg
		return nil
	}
	if msg := validatePassword(s.newPassword.Value()); msg != "" {
		s.fieldErr = msg
		return nil
	}
	s.fieldErr = ""

	change := api.PasswordChange{
		CurrentPassword: s.currentPassword.Value(),
		NewPassword:     s.newPassword.Value(),
	}
	return func() tea.Msg {
		s.session.ChangePassword(context.Background(), change)
		return opDoneMsg{op: "change-password"}
	}
}

// OnOpDone returns to view mode after a successful operation so a failure
// never leaves the form stuck disabled.
func (s *ProfileScreen) OnOpDone(op string, state session.State, _ chat.State) tea.Cmd {
	switch op {
	case "update-profile":
		if state.ProfileError == "" {
			s.enterView()
		}
	case "change-password":
		if state.Error == "" {
			s.enterView()
		}
	}
	return nil
}

// View renders the profile record or the active form.
func (s *ProfileScreen) View(state session.State, _ chat.State, width, _ int) string {
	lines := []string{titleStyle.Render("Profile"), ""}

	if state.User == nil {
		lines = append(lines, dimStyle.Render("No profile loaded."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	switch s.mode {
	case profileEditing:
		lines = append(lines, s.email.View(), s.gender.View(), s.dob.View())
		lines = append(lines, "", dimStyle.Render("enter: save | esc: cancel"))
	case profileChangingPassword:
		lines = append(lines, s.currentPassword.View(), s.newPassword.View())
		lines = append(lines, "", dimStyle.Render("enter: change password | esc: cancel"))
	case profileConfirmingDelete:
		lines = append(lines,
			errorStyle.Render("Delete your account? This cannot be undone."),
			dimStyle.Render("y: delete | n: keep"))
	default:
		u := state.User
		lines = append(lines,
			labelStyle.Render("Username: ")+u.Username,
			labelStyle.Render("Email: ")+u.Email,
			labelStyle.Render("Gender: ")+u.Gender,
			labelStyle.Render("Date of birth: ")+u.DOB,
			labelStyle.Render("Approval: ")+string(u.IsApproved),
		)
		lines = append(lines, "", dimStyle.Render("e: edit | p: change password | ctrl+r: refresh | ctrl+d: delete account"))
	}

	if s.fieldErr != "" {
		lines = append(lines, "", errorStyle.Render(s.fieldErr))
	}
	if state.ProfileError != "" {
		lines = append(lines, "", errorStyle.Render(state.ProfileError))
	}
	if state.IsLoadingProfile {
		lines = append(lines, "", dimStyle.Render("working..."))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
