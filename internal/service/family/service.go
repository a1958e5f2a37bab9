// Package family exposes member management on top of the guard and the
// replication manager.
package family

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/access"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/audit"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/notification"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/rbac"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
)

type Guard interface {
	ResolveFamily(ctx context.Context, p *model.Principal, ownerID string) (*access.FamilyContext, error)
	Authorize(ctx context.Context, p *model.Principal, patientID string, capability model.Capability) (*access.Decision, error)
	AuthorizeMutation(ctx context.Context, p *model.Principal, patientID string, capability model.Capability, minRole model.FamilyRole) (*access.Decision, error)
}

type Replicator interface {
	GrantAccess(ctx context.Context, ownerID, memberID string, patientIDs []string, grant membership.Grant) (*membership.GrantResult, error)
	RevokeAccess(ctx context.Context, ownerID, memberID string, patientIDs []string) (*membership.RevokeResult, error)
	RemoveMember(ctx context.Context, ownerID, memberID string) (*membership.RevokeResult, error)
	SetPermissions(ctx context.Context, ownerID, memberID string, accountDefault *model.Permissions, perPatient map[string]*model.Permissions) (*membership.GrantResult, error)
	SetRole(ctx context.Context, ownerID, memberID string, role model.FamilyRole, assignedBy string) (*model.FamilyMember, error)
	Reconcile(ctx context.Context, ownerID string) (*membership.ReconcileReport, error)
}

// AuditTrail reads a family's audit log.
type AuditTrail interface {
	List(ctx context.Context, ownerID string) ([]*model.AuditLog, error)
}

type Service struct {
	guard      Guard
	replicator Replicator
	members    repository.MemberRepository
	patients   repository.PatientRepository
	auditor    audit.Auditor
	trail      AuditTrail
	notifier   notification.Dispatcher
	log        *logger.Logger
}

func NewService(
	guard Guard,
	replicator Replicator,
	members repository.MemberRepository,
	patients repository.PatientRepository,
	auditor audit.Auditor,
	trail AuditTrail,
	notifier notification.Dispatcher,
	log *logger.Logger,
) *Service {
	return &Service{
		guard:      guard,
		replicator: replicator,
		members:    members,
		patients:   patients,
		auditor:    auditor,
		trail:      trail,
		notifier:   notifier,
		log:        log,
	}
}

type MemberList struct {
	OwnerID string                `json:"ownerId"`
	Role    model.FamilyRole      `json:"role"`
	Members []*model.FamilyMember `json:"members"`
}

// ListMembers returns the roster of the caller's family.
func (s *Service) ListMembers(ctx context.Context, p *model.Principal, ownerID string) (*MemberList, error) {
	fc, err := s.guard.ResolveFamily(ctx, p, ownerID)
	if err != nil {
		return nil, err
	}
	members, err := s.members.List(ctx, fc.OwnerID)
	if err != nil {
		return nil, errors.DependencyUnavailable("document store", err)
	}
	sort.Slice(members, func(i, j int) bool {
		ni, nj := strings.ToLower(members[i].Name), strings.ToLower(members[j].Name)
		if ni != nj {
			return ni < nj
		}
		return members[i].UserID < members[j].UserID
	})
	return &MemberList{OwnerID: fc.OwnerID, Role: fc.Role, Members: members}, nil
}

type UpdateMemberRequest struct {
	OwnerID            string                        `json:"ownerId"`
	Role               *model.FamilyRole             `json:"role" binding:"omitempty,family_role"`
	Permissions        *model.Permissions            `json:"permissions"`
	PatientPermissions map[string]*model.Permissions `json:"patientPermissions"`
	AddPatients        []string                      `json:"addPatients" binding:"omitempty,dive,required"`
	RemovePatients     []string                      `json:"removePatients" binding:"omitempty,dive,required"`
}

func (r *UpdateMemberRequest) empty() bool {
	return r.Role == nil && r.Permissions == nil && len(r.PatientPermissions) == 0 &&
		len(r.AddPatients) == 0 && len(r.RemovePatients) == 0
}

type UpdateResult struct {
	// Member is nil when the update removed the last patient.
	Member  *model.FamilyMember      `json:"member"`
	Granted *membership.GrantResult  `json:"granted,omitempty"`
	Revoked *membership.RevokeResult `json:"revoked,omitempty"`
}

// authorizeManagement checks that the caller may administer target.
func (s *Service) authorizeManagement(ctx context.Context, p *model.Principal, ownerID, memberID string) (*access.FamilyContext, *model.FamilyMember, error) {
	fc, err := s.guard.ResolveFamily(ctx, p, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if !fc.Role.AtLeast(model.RoleCoAdmin) {
		return nil, nil, errors.InsufficientAuthority("only owners and co-admins can manage members")
	}
	if !fc.Capabilities().Has(model.CapManageFamily) {
		return nil, nil, errors.InsufficientCapability(string(model.CapManageFamily))
	}

	target, err := s.members.Get(ctx, fc.OwnerID, memberID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, nil, errors.MemberNotFound(memberID)
		}
		return nil, nil, errors.DependencyUnavailable("document store", err)
	}
	if !rbac.CanManage(fc.Role, target.FamilyRole) {
		return nil, nil, errors.InsufficientAuthority("cannot manage a member with role " + string(target.FamilyRole))
	}
	return fc, target, nil
}

// authorizePatients requires the manageFamily capability on each patient for non-owners.
func (s *Service) authorizePatients(ctx context.Context, p *model.Principal, fc *access.FamilyContext, patientIDs []string) error {
	for _, pid := range patientIDs {
		if fc.IsOwner() {
			if _, err := s.patients.Get(ctx, fc.OwnerID, pid); err != nil {
				if stderrors.Is(err, repository.ErrNotFound) {
					return errors.PatientNotFound(pid)
				}
				return errors.DependencyUnavailable("document store", err)
			}
			continue
		}
		if _, err := s.guard.AuthorizeMutation(ctx, p, pid, model.CapManageFamily, model.RoleCoAdmin); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMember applies patient additions, permission changes, a role change
// and patient removals, in that order.
func (s *Service) UpdateMember(ctx context.Context, p *model.Principal, memberID string, req UpdateMemberRequest) (*UpdateResult, error) {
	if req.empty() {
		return nil, errors.Validation("nothing to update")
	}
	fc, target, err := s.authorizeManagement(ctx, p, req.OwnerID, memberID)
	if err != nil {
		return nil, err
	}
	if req.Role != nil {
		if err := rbac.ValidateRoleAssignment(fc.Role, target.FamilyRole, *req.Role); err != nil {
			return nil, err
		}
	}

	touched := append(append([]string{}, req.AddPatients...), req.RemovePatients...)
	for pid := range req.PatientPermissions {
		touched = append(touched, pid)
	}
	if err := s.authorizePatients(ctx, p, fc, touched); err != nil {
		return nil, err
	}

	res := &UpdateResult{}
	accessChanged := false

	if len(req.AddPatients) > 0 {
		perPatient := make(map[string]*model.Permissions)
		for _, pid := range req.AddPatients {
			if perm, ok := req.PatientPermissions[pid]; ok {
				perPatient[pid] = perm
			}
		}
		res.Granted, err = s.replicator.GrantAccess(ctx, fc.OwnerID, memberID, req.AddPatients, membership.Grant{PerPatient: perPatient})
		if err != nil {
			return nil, err
		}
		accessChanged = true
		s.audit(ctx, p, fc.OwnerID, memberID, model.AuditActionAccessGranted, map[string]interface{}{"patientIds": req.AddPatients})
	}

	if req.Permissions != nil || len(req.PatientPermissions) > 0 {
		if _, err := s.replicator.SetPermissions(ctx, fc.OwnerID, memberID, req.Permissions, req.PatientPermissions); err != nil {
			return nil, err
		}
		accessChanged = true
		s.audit(ctx, p, fc.OwnerID, memberID, model.AuditActionPermissionsChanged, map[string]interface{}{
			"permissions":        req.Permissions,
			"patientPermissions": req.PatientPermissions,
		})
	}

	if req.Role != nil && *req.Role != target.FamilyRole {
		if _, err := s.replicator.SetRole(ctx, fc.OwnerID, memberID, *req.Role, p.UserID); err != nil {
			return nil, err
		}
		s.audit(ctx, p, fc.OwnerID, memberID, model.AuditActionRoleChanged, map[string]interface{}{
			"from": target.FamilyRole,
			"to":   *req.Role,
		})
		s.notifier.Notify(ctx, []model.Recipient{{UserID: memberID, Email: target.Email, Name: target.Name}},
			model.EventRoleChanged, map[string]interface{}{"role": string(*req.Role)})
	}

	if len(req.RemovePatients) > 0 {
		res.Revoked, err = s.replicator.RevokeAccess(ctx, fc.OwnerID, memberID, req.RemovePatients)
		if err != nil {
			return nil, err
		}
		accessChanged = true
		s.audit(ctx, p, fc.OwnerID, memberID, model.AuditActionAccessRevoked, map[string]interface{}{
			"patientIds":    req.RemovePatients,
			"memberDeleted": res.Revoked.MemberDeleted,
		})
	}

	if accessChanged {
		s.notifier.Notify(ctx, []model.Recipient{{UserID: memberID}}, model.EventAccessChanged, nil)
	}

	m, err := s.members.Get(ctx, fc.OwnerID, memberID)
	switch {
	case err == nil:
		res.Member = m
	case !stderrors.Is(err, repository.ErrNotFound):
		return nil, errors.DependencyUnavailable("document store", err)
	}
	return res, nil
}

// RemoveMember deletes a membership. Members may always remove themselves.
func (s *Service) RemoveMember(ctx context.Context, p *model.Principal, ownerID, memberID string) (*membership.RevokeResult, error) {
	var fc *access.FamilyContext
	var target *model.FamilyMember
	var err error

	if memberID == p.UserID {
		fc, err = s.guard.ResolveFamily(ctx, p, ownerID)
		if err != nil {
			return nil, err
		}
		if fc.Member == nil {
			return nil, errors.NotAMember()
		}
		target = fc.Member
	} else {
		fc, target, err = s.authorizeManagement(ctx, p, ownerID, memberID)
		if err != nil {
			return nil, err
		}
	}

	res, err := s.replicator.RemoveMember(ctx, fc.OwnerID, memberID)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, p, fc.OwnerID, memberID, model.AuditActionMemberRemoved, map[string]interface{}{
		"role":       target.FamilyRole,
		"patientIds": target.PatientsAccess,
		"self":       memberID == p.UserID,
	})
	if memberID != p.UserID {
		s.notifier.Notify(ctx, []model.Recipient{{UserID: memberID, Email: target.Email, Name: target.Name}}, model.EventMemberRemoved, nil)
	}
	return res, nil
}

// Roles serves the role hierarchy.
func (s *Service) Roles() []rbac.RoleInfo {
	return rbac.Hierarchy()
}

// CheckAccess exposes the guard decision for one capability.
func (s *Service) CheckAccess(ctx context.Context, p *model.Principal, patientID string, capability model.Capability) (*access.Decision, error) {
	return s.guard.Authorize(ctx, p, patientID, capability)
}

// Reconcile heals the caller's family. Only owners and admins may run it.
func (s *Service) Reconcile(ctx context.Context, p *model.Principal, ownerID string) (*membership.ReconcileReport, error) {
	fc, err := s.guard.ResolveFamily(ctx, p, ownerID)
	if err != nil {
		return nil, err
	}
	if !fc.IsOwner() {
		return nil, errors.InsufficientAuthority("only the account owner can reconcile the family")
	}
	report, err := s.replicator.Reconcile(ctx, fc.OwnerID)
	if err != nil {
		return nil, errors.DependencyUnavailable("document store", err)
	}
	return report, nil
}

// AuditLog returns the family's audit trail, newest first, to owners and co-admins.
func (s *Service) AuditLog(ctx context.Context, p *model.Principal, ownerID string) ([]*model.AuditLog, error) {
	fc, err := s.guard.ResolveFamily(ctx, p, ownerID)
	if err != nil {
		return nil, err
	}
	if !fc.Role.AtLeast(model.RoleCoAdmin) {
		return nil, errors.InsufficientAuthority("only owners and co-admins can read the audit log")
	}
	logs, err := s.trail.List(ctx, fc.OwnerID)
	if err != nil {
		return nil, errors.DependencyUnavailable("document store", err)
	}
	return logs, nil
}

func (s *Service) audit(ctx context.Context, p *model.Principal, ownerID, memberID, action string, metadata map[string]interface{}) {
	if err := s.auditor.Log(ctx, p.UserID, ownerID, action, model.AuditEntityFamilyMember, memberID, &audit.LogOptions{
		Metadata: metadata,
	}); err != nil {
		s.log.Error(err, "failed to write audit log", "action", action, "member_id", memberID)
	}
}
