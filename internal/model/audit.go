package model

import (
	"encoding/json"
	"time"
)

// AuditLog is an append-only record of an administrative action.
type AuditLog struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	OwnerID    string          `json:"ownerId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	UserAgent  string          `json:"userAgent,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

const (
	// Action types
	AuditActionInvitationIssued   = "invitation_issued"
	AuditActionInvitationAccepted = "invitation_accepted"
	AuditActionInvitationDeclined = "invitation_declined"
	AuditActionInvitationRevoked  = "invitation_revoked"
	AuditActionRoleChanged        = "role_changed"
	AuditActionPermissionsChanged = "permissions_changed"
	AuditActionAccessGranted      = "access_granted"
	AuditActionAccessRevoked      = "access_revoked"
	AuditActionMemberRemoved      = "member_removed"
	AuditActionReconciled         = "reconciled"

	// Entity types
	AuditEntityInvitation   = "invitation"
	AuditEntityFamilyMember = "family_member"
	AuditEntityFamily       = "family"
)
