package model

// FamilyRole is a position in the family authority hierarchy.
type FamilyRole string

const (
	RoleAccountOwner FamilyRole = "account_owner"
	RoleCoAdmin      FamilyRole = "co_admin"
	RoleCaregiver    FamilyRole = "caregiver"
	RoleViewer       FamilyRole = "viewer"
)

// Level returns the authority level, 0 for unknown roles.
func (r FamilyRole) Level() int {
	switch r {
	case RoleAccountOwner:
		return 4
	case RoleCoAdmin:
		return 3
	case RoleCaregiver:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

func (r FamilyRole) Valid() bool {
	return r.Level() > 0
}

// AtLeast reports whether r has at least the authority of floor.
func (r FamilyRole) AtLeast(floor FamilyRole) bool {
	return r.Valid() && r.Level() >= floor.Level()
}

// Outranks reports whether r holds strictly more authority than other.
func (r FamilyRole) Outranks(other FamilyRole) bool {
	return r.Level() > other.Level()
}

// Capability names a single permission flag.
type Capability string

const (
	CapViewMedicalRecords Capability = "viewMedicalRecords"
	CapEditMedicalRecords Capability = "editMedicalRecords"
	CapViewVitals         Capability = "viewVitals"
	CapLogVitals          Capability = "logVitals"
	CapEditVitals         Capability = "editVitals"
	CapViewMedications    Capability = "viewMedications"
	CapManageMedications  Capability = "manageMedications"
	CapViewAppointments   Capability = "viewAppointments"
	CapManageAppointments Capability = "manageAppointments"
	CapUploadDocuments    Capability = "uploadDocuments"
	CapDeleteDocuments    Capability = "deleteDocuments"
	CapShareWithOthers    Capability = "shareWithOthers"
	CapManageFamily       Capability = "manageFamily"
	CapViewBilling        Capability = "viewBilling"
	CapChatAccess         Capability = "chatAccess"
	CapReceiveAlerts      Capability = "receiveAlerts"
)

// AllCapabilities lists every capability in display order.
var AllCapabilities = []Capability{
	CapViewMedicalRecords,
	CapEditMedicalRecords,
	CapViewVitals,
	CapLogVitals,
	CapEditVitals,
	CapViewMedications,
	CapManageMedications,
	CapViewAppointments,
	CapManageAppointments,
	CapUploadDocuments,
	CapDeleteDocuments,
	CapShareWithOthers,
	CapManageFamily,
	CapViewBilling,
	CapChatAccess,
	CapReceiveAlerts,
}

func (c Capability) Valid() bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// CapabilitySet is a fully resolved set of flags.
type CapabilitySet struct {
	ViewMedicalRecords bool `json:"viewMedicalRecords"`
	EditMedicalRecords bool `json:"editMedicalRecords"`
	ViewVitals         bool `json:"viewVitals"`
	LogVitals          bool `json:"logVitals"`
	EditVitals         bool `json:"editVitals"`
	ViewMedications    bool `json:"viewMedications"`
	ManageMedications  bool `json:"manageMedications"`
	ViewAppointments   bool `json:"viewAppointments"`
	ManageAppointments bool `json:"manageAppointments"`
	UploadDocuments    bool `json:"uploadDocuments"`
	DeleteDocuments    bool `json:"deleteDocuments"`
	ShareWithOthers    bool `json:"shareWithOthers"`
	ManageFamily       bool `json:"manageFamily"`
	ViewBilling        bool `json:"viewBilling"`
	ChatAccess         bool `json:"chatAccess"`
	ReceiveAlerts      bool `json:"receiveAlerts"`
}

// field returns a pointer to the flag backing c, nil for unknown capabilities.
func (s *CapabilitySet) field(c Capability) *bool {
	switch c {
	case CapViewMedicalRecords:
		return &s.ViewMedicalRecords
	case CapEditMedicalRecords:
		return &s.EditMedicalRecords
	case CapViewVitals:
		return &s.ViewVitals
	case CapLogVitals:
		return &s.LogVitals
	case CapEditVitals:
		return &s.EditVitals
	case CapViewMedications:
		return &s.ViewMedications
	case CapManageMedications:
		return &s.ManageMedications
	case CapViewAppointments:
		return &s.ViewAppointments
	case CapManageAppointments:
		return &s.ManageAppointments
	case CapUploadDocuments:
		return &s.UploadDocuments
	case CapDeleteDocuments:
		return &s.DeleteDocuments
	case CapShareWithOthers:
		return &s.ShareWithOthers
	case CapManageFamily:
		return &s.ManageFamily
	case CapViewBilling:
		return &s.ViewBilling
	case CapChatAccess:
		return &s.ChatAccess
	case CapReceiveAlerts:
		return &s.ReceiveAlerts
	}
	return nil
}

// Has reports whether the set grants c. Unknown capabilities are never granted.
func (s CapabilitySet) Has(c Capability) bool {
	if f := s.field(c); f != nil {
		return *f
	}
	return false
}

// With returns a copy with c set to v.
func (s CapabilitySet) With(c Capability, v bool) CapabilitySet {
	if f := s.field(c); f != nil {
		*f = v
	}
	return s
}

// Granted lists the capabilities that are true.
func (s CapabilitySet) Granted() []Capability {
	var out []Capability
	for _, c := range AllCapabilities {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Permissions is a partial override of a CapabilitySet; nil flags are unset.
type Permissions struct {
	ViewMedicalRecords *bool `json:"viewMedicalRecords,omitempty"`
	EditMedicalRecords *bool `json:"editMedicalRecords,omitempty"`
	ViewVitals         *bool `json:"viewVitals,omitempty"`
	LogVitals          *bool `json:"logVitals,omitempty"`
	EditVitals         *bool `json:"editVitals,omitempty"`
	ViewMedications    *bool `json:"viewMedications,omitempty"`
	ManageMedications  *bool `json:"manageMedications,omitempty"`
	ViewAppointments   *bool `json:"viewAppointments,omitempty"`
	ManageAppointments *bool `json:"manageAppointments,omitempty"`
	UploadDocuments    *bool `json:"uploadDocuments,omitempty"`
	DeleteDocuments    *bool `json:"deleteDocuments,omitempty"`
	ShareWithOthers    *bool `json:"shareWithOthers,omitempty"`
	ManageFamily       *bool `json:"manageFamily,omitempty"`
	ViewBilling        *bool `json:"viewBilling,omitempty"`
	ChatAccess         *bool `json:"chatAccess,omitempty"`
	ReceiveAlerts      *bool `json:"receiveAlerts,omitempty"`
}

func (p *Permissions) field(c Capability) **bool {
	switch c {
	case CapViewMedicalRecords:
		return &p.ViewMedicalRecords
	case CapEditMedicalRecords:
		return &p.EditMedicalRecords
	case CapViewVitals:
		return &p.ViewVitals
	case CapLogVitals:
		return &p.LogVitals
	case CapEditVitals:
		return &p.EditVitals
	case CapViewMedications:
		return &p.ViewMedications
	case CapManageMedications:
		return &p.ManageMedications
	case CapViewAppointments:
		return &p.ViewAppointments
	case CapManageAppointments:
		return &p.ManageAppointments
	case CapUploadDocuments:
		return &p.UploadDocuments
	case CapDeleteDocuments:
		return &p.DeleteDocuments
	case CapShareWithOthers:
		return &p.ShareWithOthers
	case CapManageFamily:
		return &p.ManageFamily
	case CapViewBilling:
		return &p.ViewBilling
	case CapChatAccess:
		return &p.ChatAccess
	case CapReceiveAlerts:
		return &p.ReceiveAlerts
	}
	return nil
}

// Get returns the override for c and whether it is set.
func (p *Permissions) Get(c Capability) (bool, bool) {
	if p == nil {
		return false, false
	}
	f := p.field(c)
	if f == nil || *f == nil {
		return false, false
	}
	return **f, true
}

// Set records an explicit override for c.
func (p *Permissions) Set(c Capability, v bool) {
	if f := p.field(c); f != nil {
		val := v
		*f = &val
	}
}

// IsEmpty reports whether no flag is overridden.
func (p *Permissions) IsEmpty() bool {
	for _, c := range AllCapabilities {
		if _, ok := p.Get(c); ok {
			return false
		}
	}
	return true
}

// PermissionsFromSet turns a resolved set into a full override.
func PermissionsFromSet(s CapabilitySet) *Permissions {
	p := &Permissions{}
	for _, c := range AllCapabilities {
		p.Set(c, s.Has(c))
	}
	return p
}

// Bool is a convenience for building overrides.
func Bool(v bool) *bool { return &v }
