package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"breathechat/internal/api"
	"breathechat/internal/models"
	"breathechat/internal/storage"
)

// fakeChatAPI implements ChatAPI with canned responses.
type fakeChatAPI struct {
	sendResp   *api.SendMessageResponse
	sendErr    error
	listResp   []models.ChatSummary
	listErr    error
	getResp    *models.Chat
	getErr     error
	renameErr  error
	deleteErr  error
	sentChatID string
	sendCalls  int
}

func (f *fakeChatAPI) SendMessage(ctx context.Context, userInput, chatID string) (*api.SendMessageResponse, error) {
	f.sendCalls++
	f.sentChatID = chatID
	return f.sendResp, f.sendErr
}

func (f *fakeChatAPI) ListChats(ctx context.Context, skip, limit int) ([]models.ChatSummary, error) {
	return f.listResp, f.listErr
}

func (f *fakeChatAPI) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	return f.getResp, f.getErr
}

func (f *fakeChatAPI) RenameChat(ctx context.Context, chatID, title string) error {
	return f.renameErr
}

func (f *fakeChatAPI) DeleteChat(ctx context.Context, chatID string, permanent bool) error {
	return f.deleteErr
}

func approvedAlways() bool { return true }

func newTestStore(t *testing.T, fake *fakeChatAPI, approved func() bool) (*Store, *storage.FileStore) {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return New(fake, fs, approved, slog.Default()), fs
}

func TestInitializeWelcomeMessageIsIdempotent(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, &fakeChatAPI{}, approvedAlways)

	store.InitializeWelcomeMessage()
	first := store.State()
	if len(first.Current) != 1 || first.Current[0].Role != models.RoleAssistant {
		t.Fatalf("expected a single assistant greeting, got %+v", first.Current)
	}

	store.InitializeWelcomeMessage()
	second := store.State()
	if len(second.Current) != 1 {
		t.Fatalf("expected welcome seeding to be a no-op on repeat, got %d messages", len(second.Current))
	}
}

func TestSendMessageAdoptsServerChatID(t *testing.T) {
	t.Parallel()

	fake := &fakeChatAPI{sendResp: &api.SendMessageResponse{ChatID: "abc", Response: "hello back"}}
	store, _ := newTestStore(t, fake, approvedAlways)

	res := store.SendMessage(context.Background(), "hi")
	if !res.Success {
		t.Fatalf("send failed: %q", res.Error)
	}
	if fake.sentChatID != "" {
		t.Fatalf("expected no chat id on a new conversation, sent %q", fake.sentChatID)
	}

	state := store.State()
	if state.ActiveChatID != "abc" {
		t.Fatalf("expected adopted chat id abc, got %q", state.ActiveChatID)
	}
	last := state.Current[len(state.Current)-1]
	if last.Role != models.RoleAssistant || last.Content != "hello back" {
		t.Fatalf("unexpected last message: %+v", last)
	}
}

func TestSendMessageFailureAppendsErrorNotice(t *testing.T) {
	t.Parallel()

	fake := &fakeChatAPI{sendErr: errors.New("service unavailable")}
	store, _ := newTestStore(t, fake, approvedAlways)
	store.InitializeWelcomeMessage()
	before := store.State()

	res := store.SendMessage(context.Background(), "hello")
	if res.Success {
		t.Fatal("expected failure result")
	}

	state := store.State()
	if len(state.Current) != len(before.Current)+2 {
		t.Fatalf("expected exactly two appended messages, got %d -> %d", len(before.Current), len(state.Current))
	}
	userMsg := state.Current[len(state.Current)-2]
	errMsg := state.Current[len(state.Current)-1]
	if userMsg.Role != models.RoleUser || userMsg.Content != "hello" {
		t.Fatalf("unexpected user message: %+v", userMsg)
	}
	if !errMsg.IsError || errMsg.Role != models.RoleAssistant {
		t.Fatalf("expected isError assistant notice, got %+v", errMsg)
	}
	if len(state.History) != 0 {
		t.Fatalf("expected history untouched on failure, got %+v", state.History)
	}
}

func TestSendMessageRefusedWhileUnapproved(t *testing.T) {
	t.Parallel()

	fake := &fakeChatAPI{}
	store, _ := newTestStore(t, fake, func() bool { return false })

	res := store.SendMessage(context.Background(), "hello")
	if res.Success {
		t.Fatal("expected refusal for unapproved account")
	}

	state := store.State()
	last := state.Current[len(state.Current)-1]
	if last.Role != models.RoleSystem {
		t.Fatalf("expected system notice, got %+v", last)
	}
	if fake.sendCalls != 0 {
		t.Fatalf("expected no transport call for an unapproved account, got %d", fake.sendCalls)
	}
}

func TestSendMessageDerivesLocalTitle(t *testing.T) {
	t.Parallel()

	fake := &fakeChatAPI{sendResp: &api.SendMessageResponse{ChatID: "c1", Response: "sure"}}
	store, _ := newTestStore(t, fake, approvedAlways)

	long := "this message is well over thirty characters long"
	if res := store.SendMessage(context.Background(), long); !res.Success {
		t.Fatalf("send failed: %q", res.Error)
	}

	state := store.State()
	if len(state.History) != 1 {
		t.Fatalf("expected one history entry, got %d", len(state.History))
	}
	if got := state.History[0].Title; len([]rune(got)) != 30 {
		t.Fatalf("expected 30-rune derived title, got %q", got)
	}
}

func TestListenersObserveSnapshotsInOrder(t *testing.T) {
	t.Parallel()

	fake := &fakeChatAPI{sendResp: &api.SendMessageResponse{ChatID: "c1", Response: "sure"}}
	store, _ := newTestStore(t, fake, approvedAlways)

	got := make(chan State, 8)
	store.Subscribe(func(s State) { got <- s })

	if res := store.SendMessage(context.Background(), "hello"); !res.Success {
		t.Fatalf("send failed: %q", res.Error)
	}

	first := recvSnapshot(t, got)
	if !first.IsLoadingChat || len(first.Current) != 1 {
		t.Fatalf("expected the optimistic loading snapshot first, got %+v", first)
	}
	second := recvSnapshot(t, got)
	if second.IsLoadingChat || len(second.Current) != 2 {
		t.Fatalf("expected the completed snapshot second, got %+v", second)
	}
}

func recvSnapshot(t *testing.T, ch chan State) State {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return State{}
	}
}

func TestLoadLocalHistoryAppliesRetention(t *testing.T) {
	t.Parallel()

	store, fs := newTestStore(t, &fakeChatAPI{}, approvedAlways)

	now := time.Now()
	records := []models.Chat{
		{ID: "fresh", Title: "six days old", UpdatedAt: now.Add(-6 * 24 * time.Hour),
			Messages: []models.Message{models.NewMessage(models.RoleUser, "hi")}},
		{ID: "stale", Title: "eight days old", UpdatedAt: now.Add(-8 * 24 * time.Hour),
			Messages: []models.Message{models.NewMessage(models.RoleUser, "old")}},
	}
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := fs.Set(storage.KeyChatHistory, data); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if res := store.LoadLocalHistory(); !res.Success {
		t.Fatalf("load failed: %q", res.Error)
	}

	state := store.State()
	if len(state.History) != 1 || state.History[0].ID != "fresh" {
		t.Fatalf("expected only the 6-day-old conversation, got %+v", state.History)
	}
	if state.ActiveChatID != "fresh" {
		t.Fatalf("expected most recent conversation auto-selected, got %q", state.ActiveChatID)
	}
	if len(state.Current) != 1 || state.Current[0].Content != "hi" {
		t.Fatalf("expected transcript loaded from the local record, got %+v", state.Current)
	}
}

func TestLoadLocalHistoryRestoresActiveChat(t *testing.T) {
	t.Parallel()

	store, fs := newTestStore(t, &fakeChatAPI{}, approvedAlways)

	now := time.Now()
	records := []models.Chat{
		{ID: "newer", Title: "newer", UpdatedAt: now.Add(-1 * time.Hour),
			Messages: []models.Message{models.NewMessage(models.RoleUser, "recent")}},
		{ID: "older", Title: "older", UpdatedAt: now.Add(-2 * 24 * time.Hour),
			Messages: []models.Message{models.NewMessage(models.RoleUser, "kept open")}},
	}
	data, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := fs.Set(storage.KeyChatHistory, data); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := fs.Set(storage.KeyActiveChat, []byte("older")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if res := store.LoadLocalHistory(); !res.Success {
		t.Fatalf("load failed: %q", res.Error)
	}

	state := store.State()
	if state.ActiveChatID != "older" {
		t.Fatalf("expected stored active chat restored, got %q", state.ActiveChatID)
	}
	if len(state.Current) != 1 || state.Current[0].Content != "kept open" {
		t.Fatalf("expected transcript of the stored active chat, got %+v", state.Current)
	}
}

func TestDeleteActiveChatStartsNewChat(t *testing.T) {
	t.Parallel()

	fake := &fakeChatAPI{sendResp: &api.SendMessageResponse{ChatID: "X", Response: "ok"}}
	store, _ := newTestStore(t, fake, approvedAlways)

	if res := store.SendMessage(context.Background(), "hello"); !res.Success {
		t.Fatalf("send failed: %q", res.Error)
	}
	if store.State().ActiveChatID != "X" {
		t.Fatalf("setup failed: active chat is %q", store.State().ActiveChatID)
	}

	if res := store.DeleteChat(context.Background(), "X", false); !res.Success {
		t.Fatalf("delete failed: %q", res.Error)
	}

	state := store.State()
	for _, c := range state.History {
		if c.ID == "X" {
			t.Fatal("expected X removed from history")
		}
	}
	if state.ActiveChatID != "" {
		t.Fatalf("expected active chat cleared, got %q", state.ActiveChatID)
	}
	if len(state.Current) != 1 || state.Current[0].Role != models.RoleAssistant {
		t.Fatalf("expected transcript reset to a single welcome message, got %+v", state.Current)
	}
}

func TestDeleteInactiveChatKeepsTranscript(t *testing.T) {
	t.Parallel()

	fake := &fakeChatAPI{sendResp: &api.SendMessageResponse{ChatID: "A", Response: "ok"}}
	store, _ := newTestStore(t, fake, approvedAlways)
	store.SendMessage(context.Background(), "hello")

	// Inject a second, inactive conversation via the local mirror.
	fake.sendResp = &api.SendMessageResponse{ChatID: "B", Response: "ok"}
	store.StartNewChat()
	store.SendMessage(context.Background(), "other")

	if res := store.SelectChat(context.Background(), "A"); !res.Success {
		t.Fatalf("select failed: %q", res.Error)
	}
	if res := store.DeleteChat(context.Background(), "B", false); !res.Success {
		t.Fatalf("delete failed: %q", res.Error)
	}

	state := store.State()
	if state.ActiveChatID != "A" {
		t.Fatalf("expected active chat to survive, got %q", state.ActiveChatID)
	}
}

func TestRenameChatRequiresTitle(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, &fakeChatAPI{}, approvedAlways)

	res := store.RenameChat(context.Background(), "c1", "   ")
	if res.Success {
		t.Fatal("expected failure for a blank title")
	}
	if res.Error != "Title cannot be empty" {
		t.Fatalf("unexpected error: %q", res.Error)
	}
}

func TestRenameChatUpdatesHistoryAndMirror(t *testing.T) {
	t.Parallel()

	fake := &fakeChatAPI{sendResp: &api.SendMessageResponse{ChatID: "c1", Response: "ok"}}
	store, fs := newTestStore(t, fake, approvedAlways)
	store.SendMessage(context.Background(), "hello")

	if res := store.RenameChat(context.Background(), "c1", "Better title"); !res.Success {
		t.Fatalf("rename failed: %q", res.Error)
	}

	state := store.State()
	if state.History[0].Title != "Better title" {
		t.Fatalf("expected renamed history entry, got %q", state.History[0].Title)
	}

	// The persisted mirror carries the new title too.
	data, found, err := fs.Get(storage.KeyChatHistory)
	if err != nil || !found {
		t.Fatalf("expected persisted history: found=%v err=%v", found, err)
	}
	var records []models.Chat
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(records) != 1 || records[0].Title != "Better title" {
		t.Fatalf("unexpected persisted records: %+v", records)
	}
}

func TestSelectChatFallsBackToAPI(t *testing.T) {
	t.Parallel()

	remote := &models.Chat{
		ID:    "r1",
		Title: "remote",
		Messages: []models.Message{
			models.NewMessage(models.RoleUser, "hi"),
			models.NewMessage(models.RoleAssistant, "hello"),
		},
	}
	store, _ := newTestStore(t, &fakeChatAPI{getResp: remote}, approvedAlways)

	if res := store.SelectChat(context.Background(), "r1"); !res.Success {
		t.Fatalf("select failed: %q", res.Error)
	}

	state := store.State()
	if state.ActiveChatID != "r1" || len(state.Current) != 2 {
		t.Fatalf("unexpected state after select: %+v", state)
	}
}

func TestSelectChatUnknownIDFails(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t, &fakeChatAPI{getErr: &api.HTTPError{Status: 404, Message: "Not Found"}}, approvedAlways)

	res := store.SelectChat(context.Background(), "missing")
	if res.Success {
		t.Fatal("expected failure for unknown id")
	}
	if store.State().ChatError != "Not Found" {
		t.Fatalf("unexpected chat error: %q", store.State().ChatError)
	}
}

func TestFetchChatHistoryPagination(t *testing.T) {
	t.Parallel()

	page := make([]models.ChatSummary, defaultPageSize)
	for i := range page {
		page[i] = models.ChatSummary{ID: string(rune('a' + i%26))}
	}
	fake := &fakeChatAPI{listResp: page}
	store, _ := newTestStore(t, fake, approvedAlways)

	if res := store.FetchChatHistory(context.Background()); !res.Success {
		t.Fatalf("fetch failed: %q", res.Error)
	}
	if !store.State().HasMore {
		t.Fatal("expected HasMore after a full page")
	}

	fake.listResp = []models.ChatSummary{{ID: "last"}}
	if res := store.LoadMoreChatHistory(context.Background()); !res.Success {
		t.Fatalf("load more failed: %q", res.Error)
	}
	state := store.State()
	if state.HasMore {
		t.Fatal("expected HasMore cleared after a short page")
	}
	if len(state.History) != defaultPageSize+1 {
		t.Fatalf("expected %d entries, got %d", defaultPageSize+1, len(state.History))
	}
	if state.Skip != defaultPageSize {
		t.Fatalf("expected skip advanced to %d, got %d", defaultPageSize, state.Skip)
	}
}
