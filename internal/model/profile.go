package model

import "time"

type ProfileVisibility string

const (
	VisibilityPublic  ProfileVisibility = "public"
	VisibilityFamily  ProfileVisibility = "family"
	VisibilityPrivate ProfileVisibility = "private"
)

// PrivacySettings controls what a user exposes in the family directory.
// Nil flags mean the user never chose, and the permissive default applies.
type PrivacySettings struct {
	ProfileVisibility ProfileVisibility `json:"profileVisibility,omitempty"`
	ShareContactInfo  *bool             `json:"shareContactInfo,omitempty"`
	ShareAvailability *bool             `json:"shareAvailability,omitempty"`
}

// DefaultPrivacy is applied to users onboarded before privacy preferences existed.
func DefaultPrivacy() PrivacySettings {
	return PrivacySettings{
		ProfileVisibility: VisibilityPublic,
		ShareContactInfo:  Bool(true),
		ShareAvailability: Bool(true),
	}
}

// Effective fills unset fields with the defaults.
func (p *PrivacySettings) Effective() PrivacySettings {
	out := DefaultPrivacy()
	if p == nil {
		return out
	}
	if p.ProfileVisibility != "" {
		out.ProfileVisibility = p.ProfileVisibility
	}
	if p.ShareContactInfo != nil {
		out.ShareContactInfo = Bool(*p.ShareContactInfo)
	}
	if p.ShareAvailability != nil {
		out.ShareAvailability = Bool(*p.ShareAvailability)
	}
	return out
}

type UserPreferences struct {
	DefaultMode string `json:"defaultMode,omitempty"`
}

// UserProfile is the users/{id} document.
type UserProfile struct {
	UserID            string           `json:"userId"`
	Name              string           `json:"name"`
	Email             string           `json:"email"`
	Phone             string           `json:"phone,omitempty"`
	PhotoURL          string           `json:"photoUrl,omitempty"`
	Status            string           `json:"status,omitempty"`
	Privacy           *PrivacySettings `json:"privacy,omitempty"`
	Preferences       UserPreferences  `json:"preferences"`
	AccountOwnerSince *time.Time       `json:"accountOwnerSince,omitempty"`
	UpdatedAt         time.Time        `json:"updatedAt"`

	Version int64 `json:"-"`
}

const DefaultModeCaregiver = "caregiver"

// DirectoryEntry is one visible family contact.
type DirectoryEntry struct {
	UserID         string     `json:"userId"`
	Name           string     `json:"name"`
	Role           FamilyRole `json:"role"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	PhotoURL       string     `json:"photoUrl,omitempty"`
	Status         string     `json:"status,omitempty"`
	SharedPatients []string   `json:"sharedPatients"`
}
