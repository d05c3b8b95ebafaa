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

// chatFocus selects which pane receives keys.
type chatFocus int

const (
	focusInput chatFocus = iota
	focusSidebar
	focusRename
)

// ChatScreen is the conversation view: history sidebar, transcript, input.
type ChatScreen struct {
	chats *chat.Store

	input    *TextField
	rename   *TextField
	focus    chatFocus
	selected int
}

// NewChatScreen builds the screen with the message input focused.
func NewChatScreen(store *chat.Store) *ChatScreen {
	s := &ChatScreen{
		chats:  store,
		input:  NewTextField("You", "type a message"),
		rename: NewTextField("New title", ""),
	}
	s.input.Focus()
	return s
}

func (s *ChatScreen) CapturesTab() bool { return true }

// refreshHistoryCmd fetches the first page of conversation summaries.
func (s *ChatScreen) refreshHistoryCmd() tea.Cmd {
	return func() tea.Msg {
		s.chats.FetchChatHistory(context.Background())
		return opDoneMsg{op: "history"}
	}
}

// Update handles keys for the focused pane.
func (s *ChatScreen) Update(key tea.KeyMsg, sess session.State, st chat.State) tea.Cmd {
	switch s.focus {
	case focusSidebar:
		return s.updateSidebar(key, st)
	case focusRename:
		return s.updateRename(key, st)
	}
	return s.updateInput(key, sess)
}

func (s *ChatScreen) updateInput(key tea.KeyMsg, sess session.State) tea.Cmd {
	switch key.String() {
	case "tab":
		s.focus = focusSidebar
		s.input.Blur()
		return nil
	case "ctrl+n":
		s.chats.StartNewChat()
		return refreshChat()
	case "enter":
		text := strings.TrimSpace(s.input.Value())
		if text == "" {
			return nil
		}
		s.input.Reset()
		return func() tea.Msg {
			s.chats.SendMessage(context.Background(), text)
			return opDoneMsg{op: "send"}
		}
	}
	s.input.Update(key)
	return nil
}

func (s *ChatScreen) updateSidebar(key tea.KeyMsg, st chat.State) tea.Cmd {
	switch key.String() {
	case "tab", "esc":
		s.focus = focusInput
		s.input.Focus()
		return nil
	case "up":
		if s.selected > 0 {
			s.selected--
		}
		return nil
	case "down":
		if s.selected < len(st.History)-1 {
			s.selected++
		}
		return nil
	case "enter":
		if id, found := s.selectedID(st); found {
			return func() tea.Msg {
				s.chats.SelectChat(context.Background(), id)
				return opDoneMsg{op: "select"}
			}
		}
		return nil
	case "r":
		if _, found := s.selectedID(st); found {
			s.focus = focusRename
			s.rename.SetValue(st.History[s.selected].Title)
			s.rename.Focus()
		}
		return nil
	case "d":
		return s.deleteSelected(st, false)
	case "D":
		return s.deleteSelected(st, true)
	case "m":
		return func() tea.Msg {
			s.chats.LoadMoreChatHistory(context.Background())
			return opDoneMsg{op: "history"}
		}
	case "ctrl+r":
		return s.refreshHistoryCmd()
	}
	return nil
}

func (s *ChatScreen) updateRename(key tea.KeyMsg, st chat.State) tea.Cmd {
	switch key.String() {
	case "esc":
		s.focus = focusSidebar
		s.rename.Blur()
		s.rename.Reset()
		return nil
	case "enter":
		id, found := s.selectedID(st)
		title := s.rename.Value()
		s.focus = focusSidebar
		s.rename.Blur()
		s.rename.Reset()
		if !found {
			return nil
		}
		return func() tea.Msg {
			s.chats.RenameChat(context.Background(), id, title)
			return opDoneMsg{op: "rename"}
		}
	}
	s.rename.Update(key)
	return nil
}

func (s *ChatScreen) selectedID(st chat.State) (string, bool) {
	if s.selected < 0 || s.selected >= len(st.History) {
		return "", false
	}
	return st.History[s.selected].ID, true
}

func (s *ChatScreen) deleteSelected(st chat.State, permanent bool) tea.Cmd {
	id, found := s.selectedID(st)
	if !found {
		return nil
	}
	return func() tea.Msg {
		s.chats.DeleteChat(context.Background(), id, permanent)
		return opDoneMsg{op: "delete"}
	}
}

// OnOpDone keeps the sidebar selection inside the shrunken list after deletes.
func (s *ChatScreen) OnOpDone(op string, _ session.State, st chat.State) tea.Cmd {
	if s.selected >= len(st.History) {
		s.selected = len(st.History) - 1
	}
	if s.selected < 0 {
		s.selected = 0
	}
	return nil
}

// refreshChat triggers a plain re-render after a synchronous store call.
func refreshChat() tea.Cmd {
	return func() tea.Msg { return opDoneMsg{op: "refresh"} }
}

// View renders the sidebar next to the transcript and input.
func (s *ChatScreen) View(sess session.State, st chat.State, width, height int) string {
	sidebarWidth := 28
	if width < 70 {
		sidebarWidth = 0
	}
	transcriptHeight := height - 8
	if transcriptHeight < 3 {
		transcriptHeight = 3
	}

	main := s.renderTranscript(st, width-sidebarWidth-3, transcriptHeight)

	inputLine := s.input.View()
	if s.focus == focusRename {
		inputLine = s.rename.View()
	}
	if st.IsLoadingChat {
		inputLine += "  " + dimStyle.Render("thinking...")
	}

	var notice string
	if sess.User != nil && !sess.User.IsApproved.IsApproved() {
		notice = noticeStyle.Render("Your account is pending approval — chat is disabled until an administrator approves it.")
	}
	if st.ChatError != "" {
		notice = errorStyle.Render(st.ChatError)
	}

	right := lipgloss.JoinVertical(lipgloss.Left, main, notice, inputLine)
	if sidebarWidth == 0 {
		return right
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, s.renderSidebar(st, sidebarWidth, transcriptHeight+2), right)
}

func (s *ChatScreen) renderSidebar(st chat.State, width, height int) string {
	lines := []string{titleStyle.Render("Chats"), ""}

	switch {
	case st.IsLoadingHistory && len(st.History) == 0:
		lines = append(lines, dimStyle.Render("loading..."))
	case st.HistoryError != "":
		lines = append(lines, errorStyle.Render("failed to load"), dimStyle.Render("ctrl+r: retry"))
	case len(st.History) == 0:
		lines = append(lines, dimStyle.Render("no conversations yet"))
	default:
		for i, c := range st.History {
			title := c.Title
			if title == "" {
				title = c.ID
			}
			title = clip(title, width-4)
			marker := "  "
			if c.ID == st.ActiveChatID {
				marker = "* "
			}
			line := marker + title
			if i == s.selected && s.focus != focusInput {
				line = selectedItemStyle.Render(line)
			}
			lines = append(lines, line)
		}
		if st.HasMore {
			lines = append(lines, dimStyle.Render("m: more"))
		}
	}

	if s.focus == focusSidebar {
		lines = append(lines, "", dimStyle.Render("enter: open | r: rename"), dimStyle.Render("d: delete | D: purge"))
	}

	return sidebarStyle.Width(width).Height(height).Render(strings.Join(lines, "\n"))
}

func (s *ChatScreen) renderTranscript(st chat.State, width, height int) string {
	if width < 20 {
		width = 20
	}

	var lines []string
	for _, m := range st.Current {
		lines = append(lines, renderMessage(m, width)...)
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return lipgloss.NewStyle().Width(width).Height(height).Render(strings.Join(lines, "\n"))
}

// renderMessage formats one message as a speaker-prefixed, wrapped block.
func renderMessage(m models.Message, width int) []string {
	var prefix string
	style := assistantMsgStyle
	switch m.Role {
	case models.RoleUser:
		prefix = "You"
		style = userMsgStyle
	case models.RoleSystem:
		prefix = "Notice"
		style = noticeStyle
	default:
		prefix = "BREATHE"
		if m.IsError {
			style = errorStyle
		}
	}

	header := style.Render(fmt.Sprintf("%s — %s", prefix, m.Timestamp.Format("15:04")))
	body := lipgloss.NewStyle().Width(width).Render(m.Content)
	return append([]string{header}, append(strings.Split(body, "\n"), "")...)
}
