package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"breathechat/internal/models"

	"github.com/google/uuid"
)

// ChatService covers the conversation endpoints. All of them use the stored
// access token via DoAuthed rather than a threaded token.
type ChatService struct {
	client *Client
}

// NewChatService wraps the client.
func NewChatService(client *Client) *ChatService {
	return &ChatService{client: client}
}

// SendMessageResponse is the reply to a chat turn. ChatID echoes the existing
// conversation or carries the server-assigned id of a new one.
type SendMessageResponse struct {
	ChatID   string `json:"chat_id"`
	Response string `json:"response"`
	Title    string `json:"title,omitempty"`
}

type sendMessageRequest struct {
	UserInput string `json:"user_input"`
}

// wire shapes; the server uses Mongo-style _id fields.
type wireChatSummary struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

type wireMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type wireChat struct {
	ID        string        `json:"_id"`
	Title     string        `json:"title"`
	Messages  []wireMessage `json:"messages"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// SendMessage posts a chat turn. An empty chatID starts a new conversation.
func (s *ChatService) SendMessage(ctx context.Context, userInput, chatID string) (*SendMessageResponse, error) {
	path := "/chat"
	if chatID != "" {
		path += "?chat_id=" + url.QueryEscape(chatID)
	}
	var out SendMessageResponse
	if err := s.client.DoAuthed(ctx, http.MethodPost, path, sendMessageRequest{UserInput: userInput}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChats returns conversation summaries, most recent first.
func (s *ChatService) ListChats(ctx context.Context, skip, limit int) ([]models.ChatSummary, error) {
	path := fmt.Sprintf("/chats?skip=%d&limit=%d", skip, limit)
	var wire []wireChatSummary
	if err := s.client.DoAuthed(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	summaries := make([]models.ChatSummary, len(wire))
	for i, w := range wire {
		summaries[i] = models.ChatSummary{ID: w.ID, Title: w.Title, UpdatedAt: w.UpdatedAt}
	}
	return summaries, nil
}

// GetChat fetches a full conversation.
func (s *ChatService) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	var wire wireChat
	if err := s.client.DoAuthed(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID), nil, &wire); err != nil {
		return nil, err
	}
	chat := &models.Chat{
		ID:        wire.ID,
		Title:     wire.Title,
		Messages:  make([]models.Message, len(wire.Messages)),
		UpdatedAt: wire.UpdatedAt,
	}
	for i, m := range wire.Messages {
		chat.Messages[i] = models.Message{
			ID:        uuid.NewString(),
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	}
	return chat, nil
}

type renameRequest struct {
	Title string `json:"title"`
}

// RenameChat sets a conversation title.
func (s *ChatService) RenameChat(ctx context.Context, chatID, title string) error {
	return s.client.DoAuthed(ctx, http.MethodPatch, "/chats/"+url.PathEscape(chatID), renameRequest{Title: title}, nil)
}

// DeleteChat removes a conversation. permanent distinguishes hard delete from
// the server's soft delete.
func (s *ChatService) DeleteChat(ctx context.Context, chatID string, permanent bool) error {
	path := "/chats/" + url.PathEscape(chatID)
	if permanent {
		path += "?permanent=true"
	}
	return s.client.DoAuthed(ctx, http.MethodDelete, path, nil, nil)
}
