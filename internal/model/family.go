package model

import (
	"time"
)

type MemberStatus string

const (
	MemberStatusPending  MemberStatus = "pending"
	MemberStatusAccepted MemberStatus = "accepted"
	MemberStatusExpired  MemberStatus = "expired"
)

// FamilyMember is the account-level record stored under the owner.
type FamilyMember struct {
	UserID         string       `json:"userId"`
	OwnerID        string       `json:"ownerId"`
	Name           string       `json:"name"`
	Email          string       `json:"email"`
	Phone          string       `json:"phone,omitempty"`
	FamilyRole     FamilyRole   `json:"familyRole"`
	PatientsAccess []string     `json:"patientsAccess"`
	Permissions    *Permissions `json:"permissions,omitempty"`
	ManagedBy      string       `json:"managedBy"`
	Status         MemberStatus `json:"status"`
	InvitationID   string       `json:"invitationId,omitempty"`
	InvitedAt      time.Time    `json:"invitedAt"`
	AcceptedAt     *time.Time   `json:"acceptedAt,omitempty"`
	RoleAssignedAt time.Time    `json:"roleAssignedAt"`
	RoleAssignedBy string       `json:"roleAssignedBy,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`

	// Version is the store version the record was read at.
	Version int64 `json:"-"`
}

// HasPatient reports whether patientID is in the member's access list.
func (m *FamilyMember) HasPatient(patientID string) bool {
	for _, p := range m.PatientsAccess {
		if p == patientID {
			return true
		}
	}
	return false
}

// PatientMember is the patient-level copy of a membership, scoped to one patient.
type PatientMember struct {
	UserID       string       `json:"userId"`
	OwnerID      string       `json:"ownerId"`
	PatientID    string       `json:"patientId"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	FamilyRole   FamilyRole   `json:"familyRole"`
	// Permissions is the effective override for this patient; Overrides keeps
	// the patient-specific part so it survives account default changes.
	Permissions  *Permissions `json:"permissions,omitempty"`
	Overrides    *Permissions `json:"overrides,omitempty"`
	Status       MemberStatus `json:"status"`
	AddedAt      time.Time    `json:"addedAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
	ReconciledAt *time.Time   `json:"reconciledAt,omitempty"`
	ReconciledBy string       `json:"reconciledBy,omitempty"`

	Version int64 `json:"-"`
}

// MembershipIndex maps a member user id to the owner of their family.
type MembershipIndex struct {
	MemberUserID string    `json:"memberUserId"`
	OwnerID      string    `json:"ownerId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Principal is the verified identity of a caller.
type Principal struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	// Admin is resolved once from the identity token.
	Admin bool `json:"admin,omitempty"`
}
