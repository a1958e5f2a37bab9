// Package rbac holds the family role catalog, the capability resolver and the
// role assignment rules.
package rbac

import (
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
)

// RoleInfo describes a catalog entry for display.
type RoleInfo struct {
	Role         model.FamilyRole    `json:"role"`
	Level        int                 `json:"level"`
	Label        string              `json:"label"`
	Description  string              `json:"description"`
	Capabilities model.CapabilitySet `json:"capabilities"`
	CanAssign    []model.FamilyRole  `json:"canAssign"`
}

var allRoles = []model.FamilyRole{
	model.RoleAccountOwner,
	model.RoleCoAdmin,
	model.RoleCaregiver,
	model.RoleViewer,
}

func ownerCapabilities() model.CapabilitySet {
	var s model.CapabilitySet
	for _, c := range model.AllCapabilities {
		s = s.With(c, true)
	}
	return s
}

// baseCapabilities is the static role table.
func baseCapabilities(role model.FamilyRole) (model.CapabilitySet, bool) {
	switch role {
	case model.RoleAccountOwner:
		return ownerCapabilities(), true
	case model.RoleCoAdmin:
		return ownerCapabilities().With(model.CapViewBilling, false), true
	case model.RoleCaregiver:
		return model.CapabilitySet{
			ViewMedicalRecords: true,
			ViewVitals:         true,
			LogVitals:          true,
			EditVitals:         true,
			ViewMedications:    true,
			ManageMedications:  true,
			ViewAppointments:   true,
			ManageAppointments: true,
			UploadDocuments:    true,
			ChatAccess:         true,
			ReceiveAlerts:      true,
		}, true
	case model.RoleViewer:
		return model.CapabilitySet{
			ViewMedicalRecords: true,
			ViewVitals:         true,
			ViewMedications:    true,
			ViewAppointments:   true,
			ChatAccess:         true,
			ReceiveAlerts:      true,
		}, true
	}
	return model.CapabilitySet{}, false
}

// ParseRole validates a role name.
func ParseRole(s string) (model.FamilyRole, error) {
	r := model.FamilyRole(s)
	if !r.Valid() {
		return "", errors.UnknownRole(s)
	}
	return r, nil
}

// BaseCapabilities returns the unmodified capability set of role.
func BaseCapabilities(role model.FamilyRole) (model.CapabilitySet, error) {
	s, ok := baseCapabilities(role)
	if !ok {
		return model.CapabilitySet{}, errors.UnknownRole(string(role))
	}
	return s, nil
}

// CapabilitiesFor applies explicit overrides on top of the role's base set.
// Every set override flag wins over the base value, in either direction.
func CapabilitiesFor(role model.FamilyRole, overrides *model.Permissions) (model.CapabilitySet, error) {
	set, err := BaseCapabilities(role)
	if err != nil {
		return model.CapabilitySet{}, err
	}
	for _, c := range model.AllCapabilities {
		if v, ok := overrides.Get(c); ok {
			set = set.With(c, v)
		}
	}
	return set, nil
}

// ResolveOverrides merges account-level defaults with a patient-specific override.
// For each flag the patient-level value wins when set, then the account-level value.
func ResolveOverrides(accountDefault, patientSpecific *model.Permissions) *model.Permissions {
	out := &model.Permissions{}
	for _, c := range model.AllCapabilities {
		if v, ok := patientSpecific.Get(c); ok {
			out.Set(c, v)
			continue
		}
		if v, ok := accountDefault.Get(c); ok {
			out.Set(c, v)
		}
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

// Hierarchy lists the catalog from highest to lowest authority.
func Hierarchy() []RoleInfo {
	out := make([]RoleInfo, 0, len(allRoles))
	for _, r := range allRoles {
		caps, _ := baseCapabilities(r)
		out = append(out, RoleInfo{
			Role:         r,
			Level:        r.Level(),
			Label:        roleLabels[r],
			Description:  roleDescriptions[r],
			Capabilities: caps,
			CanAssign:    AssignableBy(r),
		})
	}
	return out
}

// AssignableBy lists the roles actor may hand out.
func AssignableBy(actor model.FamilyRole) []model.FamilyRole {
	var out []model.FamilyRole
	for _, r := range allRoles {
		if ValidateRoleAssignment(actor, model.RoleViewer, r) == nil {
			out = append(out, r)
		}
	}
	return out
}

var roleLabels = map[model.FamilyRole]string{
	model.RoleAccountOwner: "Account Owner",
	model.RoleCoAdmin:      "Co-Admin",
	model.RoleCaregiver:    "Caregiver",
	model.RoleViewer:       "Viewer",
}

var roleDescriptions = map[model.FamilyRole]string{
	model.RoleAccountOwner: "Owns the account and billing; full authority over patients and members.",
	model.RoleCoAdmin:      "Manages members and records on behalf of the owner.",
	model.RoleCaregiver:    "Day to day care: logs vitals, manages medications and appointments.",
	model.RoleViewer:       "Read-only access to shared records.",
}
