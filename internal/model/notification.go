package model

import (
	"time"
)

// NotificationEvent names what happened to the recipients.
type NotificationEvent string

const (
	EventInvitationSent     NotificationEvent = "invitation_sent"
	EventInvitationAccepted NotificationEvent = "invitation_accepted"
	EventInvitationDeclined NotificationEvent = "invitation_declined"
	EventRoleChanged        NotificationEvent = "role_changed"
	EventAccessChanged      NotificationEvent = "access_changed"
	EventMemberRemoved      NotificationEvent = "member_removed"
)

// Recipient is addressed by user id, email, or both.
type Recipient struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Notification is the message handed to delivery channels.
type Notification struct {
	ID         string                 `json:"id"`
	Event      NotificationEvent      `json:"event"`
	Recipients []Recipient            `json:"recipients"`
	Subject    string                 `json:"subject"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}
