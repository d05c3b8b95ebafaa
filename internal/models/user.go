// Package models defines the shared data types exchanged with the BREATHE API
// and persisted by the local stores.
package models

import (
	"bytes"
	"fmt"
	"time"
)

// ApprovalStatus is the admin-controlled gate on an account. New accounts start
// as pending and may not use the chat feature until approved.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalDeclined ApprovalStatus = "declined"
)

// UnmarshalJSON accepts both the current string form and the legacy boolean
// form still emitted by older deployments (true = approved, false = pending).
func (s *ApprovalStatus) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, []byte("true")):
		*s = ApprovalApproved
		return nil
	case bytes.Equal(data, []byte("false")):
		*s = ApprovalPending
		return nil
	}
	trimmed := bytes.Trim(data, `"`)
	switch ApprovalStatus(trimmed) {
	case ApprovalPending, ApprovalApproved, ApprovalDeclined:
		*s = ApprovalStatus(trimmed)
		return nil
	case "":
		*s = ApprovalPending
		return nil
	}
	return fmt.Errorf("unknown approval status %s", data)
}

// IsApproved reports whether the account may use the chat feature.
func (s ApprovalStatus) IsApproved() bool {
	return s == ApprovalApproved
}

// User is the profile record for an account.
type User struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	Email      string         `json:"email"`
	UserType   string         `json:"userType"`
	IsApproved ApprovalStatus `json:"isApproved"`
	Gender     string         `json:"gender,omitempty"`
	DOB        string         `json:"dob,omitempty"`
	CreatedAt  time.Time      `json:"createdAt,omitempty"`
}

// IsAdmin reports whether the user may access the admin screens.
func (u *User) IsAdmin() bool {
	return u != nil && u.UserType == "admin"
}
