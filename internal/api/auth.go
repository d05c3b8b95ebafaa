package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"breathechat/internal/models"
)

// AuthService covers the auth, profile, and admin user endpoints.
type AuthService struct {
	client *Client
}

// NewAuthService wraps the client.
func NewAuthService(client *Client) *AuthService {
	return &AuthService{client: client}
}

// Credentials is the login form payload.
type Credentials struct {
	Username string
	Password string
}

// SignupData is the registration payload.
type SignupData struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Gender   string `json:"gender"`
	DOB      string `json:"dob"`
}

// SocialLoginData exchanges a provider-issued token for a session. Google
// sends an id_token, Facebook an access_token.
type SocialLoginData struct {
	Provider    string `json:"provider"`
	IDToken     string `json:"id_token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// TokenResponse is the session payload returned by login and social login.
type TokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

// PasswordChange rotates the account password.
type PasswordChange struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// MessageResponse is a bare acknowledgment payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// Login exchanges form-encoded credentials for a token pair and user.
func (s *AuthService) Login(ctx context.Context, creds Credentials) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	var out TokenResponse
	if err := s.client.DoJSON(ctx, http.MethodPost, "/auth/login", form, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Signup creates a pending account. It does not authenticate the caller.
func (s *AuthService) Signup(ctx context.Context, data SignupData) (*models.User, error) {
	var out models.User
	if err := s.client.DoJSON(ctx, http.MethodPost, "/auth/signup", data, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SocialLogin exchanges a provider token for the same session payload as Login.
func (s *AuthService) SocialLogin(ctx context.Context, data SocialLoginData) (*TokenResponse, error) {
	var out TokenResponse
	if err := s.client.DoJSON(ctx, http.MethodPost, "/auth/social-login", data, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword rotates the password for the authenticated account.
func (s *AuthService) ChangePassword(ctx context.Context, change PasswordChange, token string) (*MessageResponse, error) {
	var out MessageResponse
	if err := s.client.DoJSON(ctx, http.MethodPost, "/auth/change-password", change, token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAccount removes the authenticated account.
func (s *AuthService) DeleteAccount(ctx context.Context, token string) error {
	return s.client.DoJSON(ctx, http.MethodDelete, "/auth/delete-account", nil, token, nil)
}

// GetProfile fetches the current user record.
func (s *AuthService) GetProfile(ctx context.Context, token string) (*models.User, error) {
	var out models.User
	if err := s.client.DoJSON(ctx, http.MethodGet, "/users/profile", nil, token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile sends changed profile fields and returns the updated record.
func (s *AuthService) UpdateProfile(ctx context.Context, fields map[string]any, token string) (*models.User, error) {
	var out models.User
	if err := s.client.DoJSON(ctx, http.MethodPut, "/users/profile", fields, token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUsers lists accounts (admin only). filter is an optional search string.
func (s *AuthService) GetUsers(ctx context.Context, page int, filter, token string) ([]models.User, error) {
	path := fmt.Sprintf("/admin/users?page=%d", page)
	if filter != "" {
		path += "&filter=" + url.QueryEscape(filter)
	}
	var out []models.User
	if err := s.client.DoJSON(ctx, http.MethodGet, path, nil, token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// approvalUpdate is the admin approval payload.
type approvalUpdate struct {
	IsApproved models.ApprovalStatus `json:"isApproved"`
}

// UpdateUserApproval sets a single user's approval status (admin only).
func (s *AuthService) UpdateUserApproval(ctx context.Context, userID string, status models.ApprovalStatus, token string) error {
	path := fmt.Sprintf("/admin/users/%s/approval", url.PathEscape(userID))
	return s.client.DoJSON(ctx, http.MethodPost, path, approvalUpdate{IsApproved: status}, token, nil)
}
