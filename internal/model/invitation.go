package model

import (
	"strings"
	"time"
)

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID                 string                  `json:"id"`
	OwnerID            string                  `json:"ownerId"`
	InvitedBy          string                  `json:"invitedBy"`
	RecipientEmail     string                  `json:"recipientEmail"`
	RecipientName      string                  `json:"recipientName,omitempty"`
	Role               FamilyRole              `json:"role"`
	PatientIDs         []string                `json:"patientIds"`
	Permissions        *Permissions            `json:"permissions,omitempty"`
	PatientPermissions map[string]*Permissions `json:"patientPermissions,omitempty"`
	Message            string                  `json:"message,omitempty"`
	Status             InvitationStatus        `json:"status"`
	CreatedAt          time.Time               `json:"createdAt"`
	ExpiresAt          time.Time               `json:"expiresAt"`
	AcceptedAt         *time.Time              `json:"acceptedAt,omitempty"`
	AcceptedBy         string                  `json:"acceptedBy,omitempty"`
	DeclinedAt         *time.Time              `json:"declinedAt,omitempty"`
	RevokedBy          string                  `json:"revokedBy,omitempty"`

	Version int64 `json:"-"`
}

// IsExpired reports whether the invitation deadline has passed at now.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// IsPending reports whether the invitation can still be resolved.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationPending
}

// NormalizeEmail lower-cases and trims an address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
