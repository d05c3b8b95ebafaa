package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"breathechat/internal/storage"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *storage.FileStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return NewClient(srv.URL, 5*time.Second, store, slog.Default()), store
}

func TestDoAttachesBearerToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))

	if _, err := client.Do(context.Background(), http.MethodGet, "/users/profile", nil, "tok-1"); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Fatalf("unexpected Authorization header: %q", gotAuth)
	}
}

func TestDoFormEncodesURLValues(t *testing.T) {
	t.Parallel()

	var gotContentType, gotBody string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))

	svc := NewAuthService(client)
	if _, err := svc.Login(context.Background(), Credentials{Username: "ana", Password: "pw"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type: %q", gotContentType)
	}
	if gotBody != "password=pw&username=ana" {
		t.Fatalf("unexpected body: %q", gotBody)
	}
}

func TestDoNormalizesErrorDetail(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid credentials"}`))
	}))

	_, err := client.Do(context.Background(), http.MethodPost, "/auth/login", nil, "")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", httpErr.Status)
	}
	if httpErr.Message != "invalid credentials" {
		t.Fatalf("unexpected message: %q", httpErr.Message)
	}
}

func TestDoFallsBackToStatusText(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("not json"))
	}))

	_, err := client.Do(context.Background(), http.MethodGet, "/chats", nil, "")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.Message != "Bad Gateway" {
		t.Fatalf("unexpected message: %q", httpErr.Message)
	}
}

func TestDoJSONIgnoresNonJSONBody(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("OK"))
	}))

	out := struct {
		Message string `json:"message"`
	}{Message: "untouched"}
	if err := client.DoJSON(context.Background(), http.MethodPost, "/auth/change-password", nil, "tok", &out); err != nil {
		t.Fatalf("DoJSON failed on a plain-text success: %v", err)
	}
	if out.Message != "untouched" {
		t.Fatalf("expected target untouched, got %q", out.Message)
	}
}

func TestDoAuthedFailsFastWithoutToken(t *testing.T) {
	t.Parallel()

	called := false
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	err := client.DoAuthed(context.Background(), http.MethodGet, "/chats", nil, nil)
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if called {
		t.Fatal("expected no network call without a token")
	}
}

func TestDoAuthedUsesStoredToken(t *testing.T) {
	t.Parallel()

	var gotAuth string
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))

	if err := store.Set(storage.KeyAccessToken, []byte("stored-tok")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	svc := NewChatService(client)
	if _, err := svc.ListChats(context.Background(), 0, 50); err != nil {
		t.Fatalf("ListChats failed: %v", err)
	}
	if gotAuth != "Bearer stored-tok" {
		t.Fatalf("unexpected Authorization header: %q", gotAuth)
	}
}

func TestSendMessageAppendsChatIDQuery(t *testing.T) {
	t.Parallel()

	var gotPath string
	client, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chat_id":"abc","response":"hi"}`))
	}))
	if err := store.Set(storage.KeyAccessToken, []byte("tok")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	svc := NewChatService(client)
	resp, err := svc.SendMessage(context.Background(), "hello", "abc")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if gotPath != "/chat?chat_id=abc" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if resp.ChatID != "abc" || resp.Response != "hi" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
