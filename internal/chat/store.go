// Package chat owns the in-progress conversation transcript, the chat history
// list, and the currently selected conversation. History is mirrored to
// durable local storage with a rolling 7-day retention window so recent
// conversations survive a restart even before the API round-trip.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"breathechat/internal/api"
	"breathechat/internal/models"
	"breathechat/internal/storage"
)

// retentionWindow is how long a locally persisted conversation is kept.
// Expired entries are filtered out on load, not actively deleted.
const retentionWindow = 7 * 24 * time.Hour

// welcomeText seeds a fresh transcript.
const welcomeText = "Welcome to BREATHE AI! 🌱 I'm here to help you with mindfulness and sustainable living. How can I assist you today?"

// defaultPageSize is the history pagination limit.
const defaultPageSize = 50

// ChatAPI is the slice of the API surface the chat store needs. *api.ChatService
// satisfies it; tests substitute fakes.
type ChatAPI interface {
	SendMessage(ctx context.Context, userInput, chatID string) (*api.SendMessageResponse, error)
	ListChats(ctx context.Context, skip, limit int) ([]models.ChatSummary, error)
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	RenameChat(ctx context.Context, chatID, title string) error
	DeleteChat(ctx context.Context, chatID string, permanent bool) error
}

// Result is the uniform outcome of a store operation.
type Result struct {
	Success bool
	Error   string
}

func ok() Result               { return Result{Success: true} }
func fail(msg string) Result   { return Result{Error: msg} }
func failErr(err error) Result { return Result{Error: err.Error()} }

// State is a snapshot of the chat store. An empty ActiveChatID means a new,
// unsaved conversation.
type State struct {
	Current      []models.Message
	History      []models.ChatSummary
	ActiveChatID string

	IsLoadingChat    bool
	IsLoadingHistory bool
	IsLoadingRename  bool
	IsLoadingDelete  bool

	ChatError    string
	HistoryError string

	Skip    int
	Limit   int
	HasMore bool
}

// Store is the chat store. Construct instances explicitly with New.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners []func(State)

	// pending holds queued snapshots; a single dispatch goroutine drains it
	// so listeners observe state changes in the order they were produced.
	pending     []State
	dispatching bool

	// local is the offline mirror of full conversation records, keyed by
	// conversation id and persisted under the chat_history storage key.
	local map[string]*models.Chat

	api      ChatAPI
	storage  storage.Store
	approved func() bool
	logger   *slog.Logger

	historySeq uint64
}

// New builds a chat store. approved gates sending client-side (the server is
// the actual authority); a nil func allows everything.
func New(chatAPI ChatAPI, store storage.Store, approved func() bool, logger *slog.Logger) *Store {
	return &Store{
		state:    State{Limit: defaultPageSize, HasMore: true},
		local:    make(map[string]*models.Chat),
		api:      chatAPI,
		storage:  store,
		approved: approved,
		logger:   logger,
	}
}

// Subscribe registers a listener invoked with a snapshot after every state
// change. It returns an unsubscribe function.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.listeners) {
			s.listeners[idx] = nil
		}
	}
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	snap := s.state
	snap.Current = append([]models.Message(nil), s.state.Current...)
	snap.History = append([]models.ChatSummary(nil), s.state.History...)
	return snap
}

// notifyLocked queues a snapshot for delivery. Callers hold the lock; the
// callbacks run outside it, in production order.
func (s *Store) notifyLocked() {
	s.pending = append(s.pending, s.snapshotLocked())
	if s.dispatching {
		return
	}
	s.dispatching = true
	go s.dispatch()
}

// dispatch drains the snapshot queue, delivering each snapshot to every
// listener before moving to the next.
func (s *Store) dispatch() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.dispatching = false
			s.mu.Unlock()
			return
		}
		snap := s.pending[0]
		s.pending = s.pending[1:]
		listeners := append([]func(State){}, s.listeners...)
		s.mu.Unlock()

		for _, fn := range listeners {
			if fn != nil {
				fn(snap)
			}
		}
	}
}

// InitializeWelcomeMessage seeds an empty, unsaved transcript with a single
// assistant greeting. Calling it after a conversation has started is a no-op.
func (s *Store) InitializeWelcomeMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.state.Current) > 0 || s.state.ActiveChatID != "" {
		return
	}
	s.state.Current = []models.Message{models.NewMessage(models.RoleAssistant, welcomeText)}
	s.notifyLocked()
}

// FetchChatHistory loads the first page of conversation summaries from the
// API, most recent first. Responses that lose a race to a newer fetch are
// discarded.
func (s *Store) FetchChatHistory(ctx context.Context) Result {
	s.mu.Lock()
	s.historySeq++
	seq := s.historySeq
	skip, limit := 0, s.state.Limit
	s.state.IsLoadingHistory = true
	s.state.HistoryError = ""
	s.notifyLocked()
	s.mu.Unlock()

	chats, err := s.api.ListChats(ctx, skip, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.historySeq {
		return fail("superseded by a newer request")
	}
	s.state.IsLoadingHistory = false
	if err != nil {
		s.state.HistoryError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	s.state.History = chats
	s.state.Skip = 0
	s.state.HasMore = len(chats) == limit
	s.notifyLocked()
	return ok()
}

// LoadMoreChatHistory appends the next page of summaries.
func (s *Store) LoadMoreChatHistory(ctx context.Context) Result {
	s.mu.Lock()
	if !s.state.HasMore {
		s.mu.Unlock()
		return fail("No more chats to load")
	}
	s.historySeq++
	seq := s.historySeq
	skip := s.state.Skip + s.state.Limit
	limit := s.state.Limit
	s.state.IsLoadingHistory = true
	s.state.HistoryError = ""
	s.notifyLocked()
	s.mu.Unlock()

	chats, err := s.api.ListChats(ctx, skip, limit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.historySeq {
		return fail("superseded by a newer request")
	}
	s.state.IsLoadingHistory = false
	if err != nil {
		s.state.HistoryError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	s.state.History = append(s.state.History, chats...)
	s.state.Skip = skip
	s.state.HasMore = len(chats) == limit
	s.notifyLocked()
	return ok()
}

// LoadLocalHistory rehydrates the offline mirror from storage, dropping
// conversations last touched more than 7 days ago, and auto-selects the most
// recently updated survivor as the active transcript.
func (s *Store) LoadLocalHistory() Result {
	data, found, err := s.storage.Get(storage.KeyChatHistory)
	if err != nil {
		return failErr(err)
	}

	var records []models.Chat
	if found {
		if err := json.Unmarshal(data, &records); err != nil {
			s.logger.Error("Failed to decode stored chat history", "error", err)
			return failErr(err)
		}
	}

	cutoff := time.Now().Add(-retentionWindow)

	activeID := ""
	if raw, found, err := s.storage.Get(storage.KeyActiveChat); err == nil && found {
		activeID = string(raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.local = make(map[string]*models.Chat, len(records))
	for i := range records {
		if records[i].UpdatedAt.Before(cutoff) {
			continue
		}
		rec := records[i]
		s.local[rec.ID] = &rec
	}
	s.rebuildHistoryLocked()

	if rec, found := s.local[activeID]; found {
		s.state.ActiveChatID = rec.ID
		s.state.Current = append([]models.Message(nil), rec.Messages...)
	} else if len(s.state.History) > 0 {
		latest := s.local[s.state.History[0].ID]
		s.state.ActiveChatID = latest.ID
		s.state.Current = append([]models.Message(nil), latest.Messages...)
		s.persistActiveLocked()
	}
	s.notifyLocked()
	return ok()
}

// rebuildHistoryLocked derives the summary list from the offline mirror,
// most recent first.
func (s *Store) rebuildHistoryLocked() {
	summaries := make([]models.ChatSummary, 0, len(s.local))
	for _, rec := range s.local {
		summaries = append(summaries, models.ChatSummary{ID: rec.ID, Title: rec.Title, UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	s.state.History = summaries
}

// persistActiveLocked writes the active conversation id through to storage so
// a restart reopens the same conversation.
func (s *Store) persistActiveLocked() {
	if s.state.ActiveChatID == "" {
		if err := s.storage.Delete(storage.KeyActiveChat); err != nil {
			s.logger.Error("Failed to clear active chat", "error", err)
		}
		return
	}
	if err := s.storage.Set(storage.KeyActiveChat, []byte(s.state.ActiveChatID)); err != nil {
		s.logger.Error("Failed to persist active chat", "error", err)
	}
}

// persistLocalLocked writes the offline mirror through to storage.
func (s *Store) persistLocalLocked() {
	records := make([]models.Chat, 0, len(s.local))
	for _, rec := range s.local {
		records = append(records, *rec)
	}
	data, err := json.Marshal(records)
	if err != nil {
		s.logger.Error("Failed to encode chat history", "error", err)
		return
	}
	if err := s.storage.Set(storage.KeyChatHistory, data); err != nil {
		s.logger.Error("Failed to persist chat history", "error", err)
	}
}

// SendMessage posts a chat turn. The user message is appended optimistically;
// on failure the transcript gains an isError assistant notice instead of a
// reply and history is left untouched. A successful first turn adopts the
// server-assigned conversation id.
func (s *Store) SendMessage(ctx context.Context, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return fail("Message is empty")
	}

	if s.approved != nil && !s.approved() {
		s.mu.Lock()
		defer s.mu.Unlock()
		notice := models.NewMessage(models.RoleSystem,
			"Your account is pending approval. You can chat once an administrator approves it.")
		s.state.Current = append(s.state.Current, notice)
		s.notifyLocked()
		return fail("Account not approved")
	}

	s.mu.Lock()
	chatID := s.state.ActiveChatID
	userMsg := models.NewMessage(models.RoleUser, text)
	s.state.Current = append(s.state.Current, userMsg)
	s.state.IsLoadingChat = true
	s.state.ChatError = ""
	s.notifyLocked()
	s.mu.Unlock()

	resp, err := s.api.SendMessage(ctx, text, chatID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoadingChat = false
	if err != nil {
		s.state.Current = append(s.state.Current, models.NewErrorMessage(err.Error()))
		s.state.ChatError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	reply := models.NewMessage(models.RoleAssistant, resp.Response)
	s.state.Current = append(s.state.Current, reply)
	if resp.ChatID != "" {
		s.state.ActiveChatID = resp.ChatID
	}

	s.upsertLocalLocked(userMsg, reply, resp.Title)
	s.notifyLocked()
	return ok()
}

// upsertLocalLocked merges the latest exchange into the offline mirror and the
// history list. A new conversation takes the server title, falling back to the
// first user message truncated to 30 characters.
func (s *Store) upsertLocalLocked(userMsg, reply models.Message, serverTitle string) {
	id := s.state.ActiveChatID
	if id == "" {
		return
	}

	rec, exists := s.local[id]
	if !exists {
		title := serverTitle
		if title == "" {
			title = models.DeriveTitle(userMsg.Content)
		}
		rec = &models.Chat{ID: id, Title: title}
		s.local[id] = rec
	}
	rec.Messages = append(rec.Messages, userMsg, reply)
	rec.UpdatedAt = reply.Timestamp

	s.rebuildHistoryLocked()
	s.persistLocalLocked()
	s.persistActiveLocked()
}

// StartNewChat resets the transcript to a fresh welcome message and clears the
// active conversation. History is untouched.
func (s *Store) StartNewChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Current = []models.Message{models.NewMessage(models.RoleAssistant, welcomeText)}
	s.state.ActiveChatID = ""
	s.state.ChatError = ""
	s.persistActiveLocked()
	s.notifyLocked()
}

// SelectChat makes an existing conversation the active transcript, serving it
// from the offline mirror when present and from the API otherwise.
func (s *Store) SelectChat(ctx context.Context, chatID string) Result {
	s.mu.Lock()
	if rec, found := s.local[chatID]; found {
		s.state.Current = append([]models.Message(nil), rec.Messages...)
		s.state.ActiveChatID = chatID
		s.state.ChatError = ""
		s.persistActiveLocked()
		s.notifyLocked()
		s.mu.Unlock()
		return ok()
	}
	s.state.IsLoadingChat = true
	s.state.ChatError = ""
	s.notifyLocked()
	s.mu.Unlock()

	chat, err := s.api.GetChat(ctx, chatID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoadingChat = false
	if err != nil {
		s.state.ChatError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	s.state.Current = append([]models.Message(nil), chat.Messages...)
	s.state.ActiveChatID = chat.ID
	s.persistActiveLocked()
	s.notifyLocked()
	return ok()
}

// RenameChat sets a conversation title remotely and in the history list.
// Messages are untouched.
func (s *Store) RenameChat(ctx context.Context, chatID, newTitle string) Result {
	newTitle = strings.TrimSpace(newTitle)
	if newTitle == "" {
		return fail("Title cannot be empty")
	}

	s.mu.Lock()
	s.state.IsLoadingRename = true
	s.state.ChatError = ""
	s.notifyLocked()
	s.mu.Unlock()

	err := s.api.RenameChat(ctx, chatID, newTitle)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoadingRename = false
	if err != nil {
		s.state.ChatError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	for i := range s.state.History {
		if s.state.History[i].ID == chatID {
			s.state.History[i].Title = newTitle
			break
		}
	}
	if rec, found := s.local[chatID]; found {
		rec.Title = newTitle
		s.persistLocalLocked()
	}
	s.notifyLocked()
	return ok()
}

// DeleteChat removes a conversation from history. Deleting the active
// conversation immediately starts a new chat so the UI never shows a dangling
// active id.
func (s *Store) DeleteChat(ctx context.Context, chatID string, permanent bool) Result {
	s.mu.Lock()
	s.state.IsLoadingDelete = true
	s.state.ChatError = ""
	s.notifyLocked()
	s.mu.Unlock()

	err := s.api.DeleteChat(ctx, chatID, permanent)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoadingDelete = false
	if err != nil {
		s.state.ChatError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	filtered := s.state.History[:0]
	for _, c := range s.state.History {
		if c.ID != chatID {
			filtered = append(filtered, c)
		}
	}
	s.state.History = filtered
	if _, found := s.local[chatID]; found {
		delete(s.local, chatID)
		s.persistLocalLocked()
	}

	if s.state.ActiveChatID == chatID {
		s.state.Current = []models.Message{models.NewMessage(models.RoleAssistant, welcomeText)}
		s.state.ActiveChatID = ""
		s.persistActiveLocked()
	}
	s.notifyLocked()
	return ok()
}

// ClearChatError resets the chat-scoped error.
func (s *Store) ClearChatError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ChatError = ""
	s.notifyLocked()
}

// ClearHistoryError resets the history-scoped error.
func (s *Store) ClearHistoryError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.HistoryError = ""
	s.notifyLocked()
}
