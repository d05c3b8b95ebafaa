package ui

import (
	"context"
	"fmt"
	"strings"

	"breathechat/internal/chat"
	"breathechat/internal/models"
	"breathechat/internal/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// UsersScreen is the admin approval table with pagination and filtering.
type UsersScreen struct {
	session *session.Store

	selected  int
	page      int
	filter    *TextField
	filtering bool
}

// NewUsersScreen builds the table on page one.
func NewUsersScreen(store *session.Store) *UsersScreen {
	return &UsersScreen{
		session: store,
		page:    1,
		filter:  NewTextField("Filter", "username or email"),
	}
}

func (s *UsersScreen) CapturesTab() bool { return true }

// refreshCmd fetches the current page with the current filter.
func (s *UsersScreen) refreshCmd() tea.Cmd {
	page, filter := s.page, strings.TrimSpace(s.filter.Value())
	return func() tea.Msg {
		s.session.FetchUsers(context.Background(), page, filter)
		return opDoneMsg{op: "users"}
	}
}

// Update handles table navigation and approval actions.
func (s *UsersScreen) Update(key tea.KeyMsg, sess session.State, _ chat.State) tea.Cmd {
	if s.filtering {
		switch key.String() {
		case "enter":
			s.filtering = false
			s.filter.Blur()
			s.page = 1
			return s.refreshCmd()
		case "esc":
			s.filtering = false
			s.filter.Blur()
			s.filter.Reset()
			return s.refreshCmd()
		}
		s.filter.Update(key)
		return nil
	}

	switch key.String() {
	case "up":
		if s.selected > 0 {
			s.selected--
		}
	case "down":
		if s.selected < len(sess.Users)-1 {
			s.selected++
		}
	case "a":
		return s.setApproval(sess, models.ApprovalApproved)
	case "x":
		return s.setApproval(sess, models.ApprovalDeclined)
	case "n":
		s.page++
		return s.refreshCmd()
	case "p":
		if s.page > 1 {
			s.page--
			return s.refreshCmd()
		}
	case "/":
		s.filtering = true
		s.filter.Focus()
	case "ctrl+r":
		return s.refreshCmd()
	}
	return nil
}

func (s *UsersScreen) setApproval(sess session.State, status models.ApprovalStatus) tea.Cmd {
	if s.selected < 0 || s.selected >= len(sess.Users) {
		return nil
	}
	userID := sess.Users[s.selected].ID
	return func() tea.Msg {
		s.session.UpdateUserApproval(context.Background(), userID, status)
		return opDoneMsg{op: "approval"}
	}
}

// OnOpDone clamps the selection to the refreshed list.
func (s *UsersScreen) OnOpDone(op string, sess session.State, _ chat.State) tea.Cmd {
	if s.selected >= len(sess.Users) {
		s.selected = len(sess.Users) - 1
	}
	if s.selected < 0 {
		s.selected = 0
	}
	return nil
}

// View renders the table.
func (s *UsersScreen) View(state session.State, _ chat.State, width, _ int) string {
	lines := []string{titleStyle.Render(fmt.Sprintf("Users — page %d", s.page)), ""}

	if s.filtering || s.filter.Value() != "" {
		lines = append(lines, s.filter.View(), "")
	}

	switch {
	case state.IsLoadingUsers:
		lines = append(lines, dimStyle.Render("loading users..."))
	case state.UsersError != "":
		lines = append(lines,
			errorStyle.Render("Failed to load users: "+state.UsersError),
			dimStyle.Render("ctrl+r: retry"))
	case len(state.Users) == 0:
		lines = append(lines, dimStyle.Render("no users on this page"))
	default:
		header := fmt.Sprintf("%-20s %-28s %-8s %s", "USERNAME", "EMAIL", "TYPE", "APPROVAL")
		lines = append(lines, labelStyle.Render(header))
		for i, u := range state.Users {
			row := fmt.Sprintf("%-20s %-28s %-8s %s", clip(u.Username, 20), clip(u.Email, 28), u.UserType, u.IsApproved)
			if i == s.selected {
				row = selectedItemStyle.Render(row)
			}
			lines = append(lines, row)
		}
	}

	lines = append(lines, "", dimStyle.Render("a: approve | x: decline | n/p: page | /: filter | ctrl+r: refresh"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// clip truncates on rune boundaries so multi-byte text never renders split.
func clip(v string, max int) string {
	runes := []rune(v)
	if len(runes) <= max {
		return v
	}
	return string(runes[:max-1]) + "…"
}
