package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Message roles. System messages are client-side notices that are never sent
// to the API.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn in a conversation. Messages are append-only: once added
// to a transcript they are never mutated or reordered.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"isError,omitempty"`
}

// NewMessage builds a message with a fresh id and the current time.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewErrorMessage builds an assistant-role message that marks a locally
// synthesized failure notice rather than a real reply.
func NewErrorMessage(content string) Message {
	m := NewMessage(RoleAssistant, content)
	m.IsError = true
	return m
}

// Chat is a titled, ordered transcript.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatSummary is a history-list entry for a conversation.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// titleMaxLen is how much of the first user message becomes the default title.
const titleMaxLen = 30

// DeriveTitle produces a conversation title from its first user message,
// truncated on a rune boundary. Used until the chat is explicitly renamed.
func DeriveTitle(firstUserMessage string) string {
	t := strings.TrimSpace(firstUserMessage)
	if t == "" {
		return "New chat"
	}
	if utf8.RuneCountInString(t) <= titleMaxLen {
		return t
	}
	runes := []rune(t)
	return string(runes[:titleMaxLen])
}
