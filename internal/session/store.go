// Package session owns the authenticated actor: token pair, user record, and
// the operations that move an account between anonymous, authenticating, and
// authenticated. Essential fields are written through to durable local storage
// so a restart resumes the session without re-authentication.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"breathechat/internal/api"
	"breathechat/internal/models"
	"breathechat/internal/storage"
)

// successMessageTTL is how long a transient success banner stays set before
// the store clears it.
const successMessageTTL = 2 * time.Second

// AuthAPI is the slice of the API surface the session store needs. *api.AuthService
// satisfies it; tests substitute fakes.
type AuthAPI interface {
	Login(ctx context.Context, creds api.Credentials) (*api.TokenResponse, error)
	Signup(ctx context.Context, data api.SignupData) (*models.User, error)
	SocialLogin(ctx context.Context, data api.SocialLoginData) (*api.TokenResponse, error)
	ChangePassword(ctx context.Context, change api.PasswordChange, token string) (*api.MessageResponse, error)
	DeleteAccount(ctx context.Context, token string) error
	GetProfile(ctx context.Context, token string) (*models.User, error)
	UpdateProfile(ctx context.Context, fields map[string]any, token string) (*models.User, error)
	GetUsers(ctx context.Context, page int, filter, token string) ([]models.User, error)
	UpdateUserApproval(ctx context.Context, userID string, status models.ApprovalStatus, token string) error
}

// Result is the uniform outcome of a store operation. Operations never leak
// errors to the caller any other way.
type Result struct {
	Success bool
	Error   string
}

func ok() Result               { return Result{Success: true} }
func fail(msg string) Result   { return Result{Error: msg} }
func failErr(err error) Result { return Result{Error: err.Error()} }

// State is a snapshot of the session store. IsAuthenticated is true iff both
// tokens and the user record are present.
type State struct {
	User            *models.User
	AccessToken     string
	RefreshToken    string
	IsAuthenticated bool

	IsLoading        bool
	IsLoadingUsers   bool
	IsLoadingProfile bool

	Error        string
	UsersError   string
	ProfileError string

	SuccessMessage string

	Users []models.User
}

// Store is the session store. Construct instances explicitly with New; there
// is no package-level singleton.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners []func(State)

	// pending holds queued snapshots; a single dispatch goroutine drains it
	// so listeners observe state changes in the order they were produced.
	pending     []State
	dispatching bool

	auth    AuthAPI
	storage storage.Store
	logger  *slog.Logger

	// stale-response guards: a completion is applied only if it carries the
	// latest sequence number issued for its operation family.
	usersSeq   uint64
	profileSeq uint64

	// successGen invalidates pending banner-clear timers when a newer
	// message replaces the one they were scheduled for.
	successGen uint64
}

// New builds a session store. Call InitializeAuth once at startup to rehydrate.
func New(auth AuthAPI, store storage.Store, logger *slog.Logger) *Store {
	return &Store{
		auth:    auth,
		storage: store,
		logger:  logger,
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
	if s.state.User != nil {
		u := *s.state.User
		snap.User = &u
	}
	snap.Users = append([]models.User(nil), s.state.Users...)
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

// setSuccessLocked sets the transient success banner and schedules its clear.
func (s *Store) setSuccessLocked(msg string) {
	s.successGen++
	gen := s.successGen
	s.state.SuccessMessage = msg
	time.AfterFunc(successMessageTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.successGen != gen {
			return
		}
		s.state.SuccessMessage = ""
		s.notifyLocked()
	})
}

// recomputeAuthLocked keeps the derived flag in sync with its inputs.
func (s *Store) recomputeAuthLocked() {
	s.state.IsAuthenticated = s.state.AccessToken != "" &&
		s.state.RefreshToken != "" &&
		s.state.User != nil
}

// InitializeAuth rehydrates the session from durable storage. It makes no
// network call and is idempotent: with an incomplete stored triple the store
// stays anonymous.
func (s *Store) InitializeAuth() {
	token, okT, errT := s.storage.Get(storage.KeyAccessToken)
	refresh, okR, errR := s.storage.Get(storage.KeyRefreshToken)
	userData, okU, errU := s.storage.Get(storage.KeyUser)
	if errT != nil || errR != nil || errU != nil {
		s.logger.Error("Failed to read stored session", "error", errors3(errT, errR, errU))
		return
	}
	if !okT || !okR || !okU {
		return
	}

	var user models.User
	if err := json.Unmarshal(userData, &user); err != nil {
		s.logger.Error("Failed to decode stored user", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.AccessToken = string(token)
	s.state.RefreshToken = string(refresh)
	s.state.User = &user
	s.recomputeAuthLocked()
	s.notifyLocked()
}

// persistSession writes the token pair and user through to storage after a
// successful in-memory mutation. Storage is never read back outside
// InitializeAuth.
func (s *Store) persistSession(token, refresh string, user *models.User) {
	if err := s.storage.Set(storage.KeyAccessToken, []byte(token)); err != nil {
		s.logger.Error("Failed to persist access token", "error", err)
	}
	if err := s.storage.Set(storage.KeyRefreshToken, []byte(refresh)); err != nil {
		s.logger.Error("Failed to persist refresh token", "error", err)
	}
	s.persistUser(user)
}

func (s *Store) persistUser(user *models.User) {
	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Error("Failed to encode user", "error", err)
		return
	}
	if err := s.storage.Set(storage.KeyUser, data); err != nil {
		s.logger.Error("Failed to persist user", "error", err)
	}
}

func (s *Store) clearStoredSession() {
	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser} {
		if err := s.storage.Delete(key); err != nil {
			s.logger.Error("Failed to clear stored session", "key", key, "error", err)
		}
	}
}

// Login exchanges credentials for a session. On success the session becomes
// authenticated and is persisted; on failure the store stays anonymous and the
// failure is reported in the result, never thrown.
func (s *Store) Login(ctx context.Context, creds api.Credentials) Result {
	s.mu.Lock()
	s.state.IsLoading = true
	s.state.Error = ""
	s.notifyLocked()
	s.mu.Unlock()

	resp, err := s.auth.Login(ctx, creds)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = false
	if err != nil {
		s.state.Error = err.Error()
		s.recomputeAuthLocked()
		s.notifyLocked()
		return failErr(err)
	}

	user := resp.User
	s.state.AccessToken = resp.AccessToken
	s.state.RefreshToken = resp.RefreshToken
	s.state.User = &user
	s.recomputeAuthLocked()
	s.persistSession(resp.AccessToken, resp.RefreshToken, &user)
	s.setSuccessLocked("Login successful!")
	s.notifyLocked()
	s.logger.Info("Logged in", "username", user.Username)
	return ok()
}

// Signup creates a pending account. It does not authenticate: new accounts
// wait for admin approval before they can use the chat.
func (s *Store) Signup(ctx context.Context, data api.SignupData) Result {
	s.mu.Lock()
	s.state.IsLoading = true
	s.state.Error = ""
	s.notifyLocked()
	s.mu.Unlock()

	user, err := s.auth.Signup(ctx, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = false
	if err != nil {
		s.state.Error = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	s.state.User = user
	s.recomputeAuthLocked()
	s.persistUser(user)
	s.setSuccessLocked("Account created successfully!")
	s.notifyLocked()
	s.logger.Info("Account created", "username", user.Username, "approval", user.IsApproved)
	return ok()
}

// SocialLogin exchanges a provider token for a session, with the same
// transitions and persistence as Login.
func (s *Store) SocialLogin(ctx context.Context, data api.SocialLoginData) Result {
	s.mu.Lock()
	s.state.IsLoading = true
	s.state.Error = ""
	s.notifyLocked()
	s.mu.Unlock()

	resp, err := s.auth.SocialLogin(ctx, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = false
	if err != nil {
		s.state.Error = err.Error()
		s.recomputeAuthLocked()
		s.notifyLocked()
		return failErr(err)
	}

	user := resp.User
	s.state.AccessToken = resp.AccessToken
	s.state.RefreshToken = resp.RefreshToken
	s.state.User = &user
	s.recomputeAuthLocked()
	s.persistSession(resp.AccessToken, resp.RefreshToken, &user)
	s.setSuccessLocked(data.Provider + " login successful!")
	s.notifyLocked()
	return ok()
}

// Logout tears the session down synchronously: in-memory fields and stored
// entries are cleared together. No network call is made.
func (s *Store) Logout() {
	s.clearStoredSession()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.User = nil
	s.state.AccessToken = ""
	s.state.RefreshToken = ""
	s.state.Error = ""
	s.state.Users = nil
	s.recomputeAuthLocked()
	s.setSuccessLocked("Logged out successfully!")
	s.notifyLocked()
	s.logger.Info("Logged out")
}

// FetchUserProfile refreshes the current user record, updating the stored copy.
func (s *Store) FetchUserProfile(ctx context.Context) Result {
	s.mu.Lock()
	token := s.state.AccessToken
	if token == "" {
		s.mu.Unlock()
		return fail("No access token")
	}
	s.profileSeq++
	seq := s.profileSeq
	s.state.IsLoadingProfile = true
	s.state.ProfileError = ""
	s.notifyLocked()
	s.mu.Unlock()

	user, err := s.auth.GetProfile(ctx, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.profileSeq {
		return fail("superseded by a newer request")
	}
	s.state.IsLoadingProfile = false
	if err != nil {
		s.state.ProfileError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	s.state.User = user
	s.recomputeAuthLocked()
	s.persistUser(user)
	s.notifyLocked()
	return ok()
}

// UpdateProfile sends changed fields. On failure neither in-memory nor stored
// user data is altered.
func (s *Store) UpdateProfile(ctx context.Context, fields map[string]any) Result {
	s.mu.Lock()
	token := s.state.AccessToken
	if token == "" {
		s.mu.Unlock()
		return fail("No access token")
	}
	s.state.IsLoadingProfile = true
	s.state.ProfileError = ""
	s.notifyLocked()
	s.mu.Unlock()

	user, err := s.auth.UpdateProfile(ctx, fields, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoadingProfile = false
	if err != nil {
		s.state.ProfileError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	s.state.User = user
	s.recomputeAuthLocked()
	s.persistUser(user)
	s.setSuccessLocked("Profile updated successfully!")
	s.notifyLocked()
	return ok()
}

// ChangePassword rotates the password. Session state is left untouched on
// success beyond the notification; the server keeps the session valid.
func (s *Store) ChangePassword(ctx context.Context, change api.PasswordChange) Result {
	s.mu.Lock()
	token := s.state.AccessToken
	if token == "" {
		s.mu.Unlock()
		return fail("No access token")
	}
	s.state.IsLoading = true
	s.state.Error = ""
	s.notifyLocked()
	s.mu.Unlock()

	resp, err := s.auth.ChangePassword(ctx, change, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = false
	if err != nil {
		s.state.Error = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	msg := "Password changed successfully!"
	if resp != nil && resp.Message != "" {
		msg = resp.Message
	}
	s.setSuccessLocked(msg)
	s.notifyLocked()
	return ok()
}

// DeleteAccount removes the account and performs the same teardown as Logout
// so the caller can navigate away.
func (s *Store) DeleteAccount(ctx context.Context) Result {
	s.mu.Lock()
	token := s.state.AccessToken
	if token == "" {
		s.mu.Unlock()
		return fail("No access token")
	}
	s.state.IsLoading = true
	s.state.Error = ""
	s.notifyLocked()
	s.mu.Unlock()

	err := s.auth.DeleteAccount(ctx, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = false
	if err != nil {
		s.state.Error = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	s.clearStoredSession()
	s.state.User = nil
	s.state.AccessToken = ""
	s.state.RefreshToken = ""
	s.state.Users = nil
	s.recomputeAuthLocked()
	s.notifyLocked()
	s.logger.Info("Account deleted")
	return ok()
}

// FetchUsers loads the account list (admin only). Responses that lose a race
// to a newer fetch are discarded rather than overwriting fresher data.
func (s *Store) FetchUsers(ctx context.Context, page int, filter string) Result {
	s.mu.Lock()
	token := s.state.AccessToken
	if token == "" {
		s.mu.Unlock()
		return fail("No access token")
	}
	s.usersSeq++
	seq := s.usersSeq
	s.state.IsLoadingUsers = true
	s.state.UsersError = ""
	s.notifyLocked()
	s.mu.Unlock()

	users, err := s.auth.GetUsers(ctx, page, filter, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.usersSeq {
		return fail("superseded by a newer request")
	}
	s.state.IsLoadingUsers = false
	if err != nil {
		s.state.UsersError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	s.state.Users = users
	s.notifyLocked()
	return ok()
}

// UpdateUserApproval sets one user's approval status and patches the cached
// list entry in place, so the table reflects the change without a refetch. On
// failure the list is untouched.
func (s *Store) UpdateUserApproval(ctx context.Context, userID string, status models.ApprovalStatus) Result {
	s.mu.Lock()
	token := s.state.AccessToken
	if token == "" {
		s.mu.Unlock()
		return fail("No access token")
	}
	s.state.IsLoading = true
	s.state.UsersError = ""
	s.notifyLocked()
	s.mu.Unlock()

	err := s.auth.UpdateUserApproval(ctx, userID, status, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsLoading = false
	if err != nil {
		s.state.UsersError = err.Error()
		s.notifyLocked()
		return failErr(err)
	}

	for i := range s.state.Users {
		if s.state.Users[i].ID == userID {
			s.state.Users[i].IsApproved = status
			break
		}
	}
	s.setSuccessLocked("User " + string(status) + " successfully!")
	s.notifyLocked()
	return ok()
}

// ClearError resets the general error field.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = ""
	s.notifyLocked()
}

// errors3 joins up to three errors for a single log line.
func errors3(errs ...error) string {
	msg := ""
	for _, err := range errs {
		if err == nil {
			continue
		}
		if msg != "" {
			msg += "; "
		}
		msg += err.Error()
	}
	return msg
}
