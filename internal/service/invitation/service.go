// Package invitation runs the invitation lifecycle: pending, then accepted,
// declined or expired.
package invitation

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/access"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/audit"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/notification"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/rbac"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/worker"
)

const (
	DefaultTTL = 7 * 24 * time.Hour

	acceptAttempts = 3
	storeDep       = "document store"
)

type Config struct {
	TTL time.Duration
	// InviterDefaultsAsFull grants the role's full base set when an invitation
	// carries no explicit permissions.
	InviterDefaultsAsFull bool
}

// Guard is the part of the access guard the invitation flow needs.
type Guard interface {
	ResolveFamily(ctx context.Context, p *model.Principal, ownerID string) (*access.FamilyContext, error)
	AuthorizeMutation(ctx context.Context, p *model.Principal, patientID string, capability model.Capability, minRole model.FamilyRole) (*access.Decision, error)
}

// Replicator writes patient-level records after acceptance.
type Replicator interface {
	FanOut(ctx context.Context, m *model.FamilyMember, patientIDs []string, perPatient map[string]*model.Permissions) *membership.GrantResult
}

type Service struct {
	cfg         Config
	invitations repository.InvitationRepository
	members     repository.MemberRepository
	index       repository.MembershipIndexRepository
	patients    repository.PatientRepository
	profiles    repository.ProfileRepository
	guard       Guard
	replicator  Replicator
	auditor     audit.Auditor
	notifier    notification.Dispatcher
	log         *logger.Logger
	metrics     *metrics.Metrics
	nowFn       func() time.Time
}

type Deps struct {
	Invitations repository.InvitationRepository
	Members     repository.MemberRepository
	Index       repository.MembershipIndexRepository
	Patients    repository.PatientRepository
	Profiles    repository.ProfileRepository
	Guard       Guard
	Replicator  Replicator
	Auditor     audit.Auditor
	Notifier    notification.Dispatcher
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Service{
		cfg:         cfg,
		invitations: deps.Invitations,
		members:     deps.Members,
		index:       deps.Index,
		patients:    deps.Patients,
		profiles:    deps.Profiles,
		guard:       deps.Guard,
		replicator:  deps.Replicator,
		auditor:     deps.Auditor,
		notifier:    deps.Notifier,
		log:         deps.Logger,
		metrics:     deps.Metrics,
		nowFn:       time.Now,
	}
}

func (s *Service) now() time.Time { return s.nowFn().UTC() }

type IssueRequest struct {
	// OwnerID selects the family; empty means the caller's own family.
	OwnerID            string                        `json:"ownerId"`
	RecipientEmail     string                        `json:"recipientEmail" binding:"required,email"`
	RecipientName      string                        `json:"recipientName" binding:"max=200"`
	Role               model.FamilyRole              `json:"role" binding:"required,family_role"`
	PatientIDs         []string                      `json:"patientIds" binding:"required,min=1,dive,required"`
	Permissions        *model.Permissions            `json:"permissions"`
	PatientPermissions map[string]*model.Permissions `json:"patientPermissions"`
	Message            string                        `json:"message" binding:"max=1000"`
}

// Issue creates a pending invitation into the actor's family.
func (s *Service) Issue(ctx context.Context, actor *model.Principal, req IssueRequest) (*model.Invitation, error) {
	fc, err := s.guard.ResolveFamily(ctx, actor, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := rbac.ValidateRoleAssignment(fc.Role, model.RoleViewer, req.Role); err != nil {
		return nil, err
	}

	email := model.NormalizeEmail(req.RecipientEmail)
	if email == "" {
		return nil, errors.Validation("recipient email is required")
	}
	if email == model.NormalizeEmail(actor.Email) {
		return nil, errors.Validation("cannot invite yourself")
	}

	patientIDs := dedupe(req.PatientIDs)
	if len(patientIDs) == 0 {
		return nil, errors.Validation("at least one patient is required")
	}
	for pid := range req.PatientPermissions {
		if !contains(patientIDs, pid) {
			return nil, errors.Validation(fmt.Sprintf("patient permissions given for uninvited patient %s", pid))
		}
	}
	for _, pid := range patientIDs {
		if _, err := s.patients.Get(ctx, fc.OwnerID, pid); err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return nil, errors.PatientNotFound(pid)
			}
			return nil, errors.DependencyUnavailable(storeDep, err)
		}
		if fc.IsOwner() {
			continue
		}
		if _, err := s.guard.AuthorizeMutation(ctx, actor, pid, model.CapManageFamily, model.RoleCoAdmin); err != nil {
			return nil, err
		}
	}

	existing, err := s.members.List(ctx, fc.OwnerID)
	if err != nil {
		return nil, errors.DependencyUnavailable(storeDep, err)
	}
	for _, m := range existing {
		if m.Status == model.MemberStatusAccepted && model.NormalizeEmail(m.Email) == email {
			return nil, errors.AlreadyAMember()
		}
	}

	perms := req.Permissions
	if perms == nil && s.cfg.InviterDefaultsAsFull {
		base, err := rbac.BaseCapabilities(req.Role)
		if err != nil {
			return nil, err
		}
		perms = model.PermissionsFromSet(base)
	}

	now := s.now()
	inv := &model.Invitation{
		ID:                 uuid.NewString(),
		OwnerID:            fc.OwnerID,
		InvitedBy:          actor.UserID,
		RecipientEmail:     email,
		RecipientName:      req.RecipientName,
		Role:               req.Role,
		PatientIDs:         patientIDs,
		Permissions:        perms,
		PatientPermissions: req.PatientPermissions,
		Message:            req.Message,
		Status:             model.InvitationPending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.cfg.TTL),
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, errors.DependencyUnavailable(storeDep, err)
	}
	s.metrics.Invitations.WithLabelValues("issued").Inc()

	s.audit(ctx, actor.UserID, inv, model.AuditActionInvitationIssued, map[string]interface{}{
		"recipientEmail": inv.RecipientEmail,
		"role":           inv.Role,
		"patientIds":     inv.PatientIDs,
	})
	s.notifier.Notify(ctx, []model.Recipient{{Email: inv.RecipientEmail, Name: inv.RecipientName}}, model.EventInvitationSent, map[string]interface{}{
		"invitationId": inv.ID,
		"inviterName":  s.displayName(ctx, actor.UserID),
		"role":         string(inv.Role),
		"expiresAt":    inv.ExpiresAt.Format(time.RFC1123),
	})
	return inv, nil
}

// AcceptResult is what a successful acceptance produced.
type AcceptResult struct {
	Invitation *model.Invitation       `json:"invitation"`
	Member     *model.FamilyMember     `json:"member"`
	Replicated *membership.GrantResult `json:"replicated"`
}

func retryableCommit(err error) bool {
	return stderrors.Is(err, repository.ErrConflict) || stderrors.Is(err, repository.ErrAlreadyExists)
}

// Accept turns a pending invitation into a membership. The invitation status,
// the account-level record and the reverse index entry are committed in one batch.
func (s *Service) Accept(ctx context.Context, invitationID string, p *model.Principal) (*AcceptResult, error) {
	if p == nil || p.UserID == "" {
		return nil, errors.Unauthorized(nil)
	}

	var inv *model.Invitation
	var member *model.FamilyMember
	err := worker.RetryIf(ctx, acceptAttempts, 0, retryableCommit, func() error {
		var err error
		inv, err = s.loadForRecipient(ctx, invitationID, p)
		if err != nil {
			return err
		}
		if p.UserID == inv.OwnerID {
			return errors.Validation("cannot join your own family")
		}

		idx, err := s.index.Get(ctx, p.UserID)
		switch {
		case err == nil:
			if idx.OwnerID != inv.OwnerID {
				return errors.AlreadyAMember()
			}
		case !stderrors.Is(err, repository.ErrNotFound):
			return errors.DependencyUnavailable(storeDep, err)
		}

		member, err = s.buildMember(ctx, inv, p)
		if err != nil {
			return err
		}

		now := s.now()
		inv.Status = model.InvitationAccepted
		inv.AcceptedAt = &now
		inv.AcceptedBy = p.UserID

		return s.invitations.Accept(ctx, inv, member, &model.MembershipIndex{
			MemberUserID: p.UserID,
			OwnerID:      inv.OwnerID,
			CreatedAt:    now,
		})
	})
	if err != nil {
		if retryableCommit(err) {
			// Lost every race; report what the winner left behind.
			if current, getErr := s.invitations.Get(ctx, invitationID); getErr == nil && !current.IsPending() {
				return nil, errors.AlreadyResolved(string(current.Status))
			}
			return nil, errors.Conflict(errors.ReasonAlreadyResolved, "invitation is being resolved concurrently")
		}
		if _, ok := errors.AsAppError(err); ok {
			return nil, err
		}
		return nil, errors.DependencyUnavailable(storeDep, err)
	}
	s.metrics.Invitations.WithLabelValues("accepted").Inc()

	if err := s.profiles.SetDefaultMode(ctx, p.UserID, model.DefaultModeCaregiver); err != nil {
		s.log.Error(err, "failed to set default mode", "user_id", p.UserID)
	}

	replicated := s.replicator.FanOut(ctx, member, inv.PatientIDs, inv.PatientPermissions)
	if len(replicated.Failed) > 0 {
		s.log.Warn("patient-level fan-out incomplete, left for reconciliation",
			"invitation_id", inv.ID, "failed", len(replicated.Failed))
	}

	s.audit(ctx, p.UserID, inv, model.AuditActionInvitationAccepted, map[string]interface{}{
		"memberId":   p.UserID,
		"patientIds": inv.PatientIDs,
	})
	s.notifier.Notify(ctx, []model.Recipient{{UserID: inv.InvitedBy}}, model.EventInvitationAccepted, map[string]interface{}{
		"invitationId": inv.ID,
		"memberName":   member.Name,
		"memberEmail":  member.Email,
	})

	return &AcceptResult{Invitation: inv, Member: member, Replicated: replicated}, nil
}

// buildMember prepares the account-level record, merging into an existing one.
func (s *Service) buildMember(ctx context.Context, inv *model.Invitation, p *model.Principal) (*model.FamilyMember, error) {
	now := s.now()

	existing, err := s.members.Get(ctx, inv.OwnerID, p.UserID)
	switch {
	case err == nil:
		existing.PatientsAccess = union(existing.PatientsAccess, inv.PatientIDs)
		if existing.FamilyRole != inv.Role {
			existing.FamilyRole = inv.Role
			existing.RoleAssignedAt = now
			existing.RoleAssignedBy = inv.InvitedBy
		}
		if inv.Permissions != nil {
			existing.Permissions = inv.Permissions
		}
		existing.Status = model.MemberStatusAccepted
		existing.InvitationID = inv.ID
		existing.AcceptedAt = &now
		existing.UpdatedAt = now
		return existing, nil
	case !stderrors.Is(err, repository.ErrNotFound):
		return nil, errors.DependencyUnavailable(storeDep, err)
	}

	name := inv.RecipientName
	var phone string
	if profile, err := s.profiles.Get(ctx, p.UserID); err == nil {
		if profile.Name != "" {
			name = profile.Name
		}
		phone = profile.Phone
	}

	return &model.FamilyMember{
		UserID:         p.UserID,
		OwnerID:        inv.OwnerID,
		Name:           name,
		Email:          inv.RecipientEmail,
		Phone:          phone,
		FamilyRole:     inv.Role,
		PatientsAccess: append([]string{}, inv.PatientIDs...),
		Permissions:    inv.Permissions,
		ManagedBy:      inv.InvitedBy,
		Status:         model.MemberStatusAccepted,
		InvitationID:   inv.ID,
		InvitedAt:      inv.CreatedAt,
		AcceptedAt:     &now,
		RoleAssignedAt: now,
		RoleAssignedBy: inv.InvitedBy,
		UpdatedAt:      now,
	}, nil
}

// loadForRecipient applies the checks shared by accept and decline. A pending
// invitation found past its deadline is moved to expired.
func (s *Service) loadForRecipient(ctx context.Context, invitationID string, p *model.Principal) (*model.Invitation, error) {
	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.InvitationNotFound(invitationID)
		}
		return nil, errors.DependencyUnavailable(storeDep, err)
	}
	if model.NormalizeEmail(p.Email) != inv.RecipientEmail {
		return nil, errors.NotTargetOfInvitation()
	}
	if !inv.IsPending() {
		return nil, errors.AlreadyResolved(string(inv.Status))
	}
	if inv.IsExpired(s.now()) {
		s.markExpired(ctx, inv)
		return nil, errors.Expired()
	}
	return inv, nil
}

func (s *Service) markExpired(ctx context.Context, inv *model.Invitation) bool {
	inv.Status = model.InvitationExpired
	if err := s.invitations.Update(ctx, inv); err != nil {
		if !stderrors.Is(err, repository.ErrConflict) {
			s.log.Error(err, "failed to expire invitation", "invitation_id", inv.ID)
		}
		return false
	}
	s.metrics.Invitations.WithLabelValues("expired").Inc()
	return true
}

// Decline closes a pending invitation on behalf of its recipient.
func (s *Service) Decline(ctx context.Context, invitationID string, p *model.Principal) (*model.Invitation, error) {
	if p == nil || p.UserID == "" {
		return nil, errors.Unauthorized(nil)
	}
	inv, err := s.loadForRecipient(ctx, invitationID, p)
	if err != nil {
		return nil, err
	}

	now := s.now()
	inv.Status = model.InvitationDeclined
	inv.DeclinedAt = &now
	if err := s.update(ctx, inv); err != nil {
		return nil, err
	}
	s.metrics.Invitations.WithLabelValues("declined").Inc()

	s.audit(ctx, p.UserID, inv, model.AuditActionInvitationDeclined, nil)
	s.notifier.Notify(ctx, []model.Recipient{{UserID: inv.InvitedBy}}, model.EventInvitationDeclined, map[string]interface{}{
		"invitationId":   inv.ID,
		"recipientEmail": inv.RecipientEmail,
	})
	return inv, nil
}

// Revoke lets the inviter or the owner withdraw a pending invitation.
func (s *Service) Revoke(ctx context.Context, actor *model.Principal, invitationID string) (*model.Invitation, error) {
	if actor == nil || actor.UserID == "" {
		return nil, errors.Unauthorized(nil)
	}
	inv, err := s.invitations.Get(ctx, invitationID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.InvitationNotFound(invitationID)
		}
		return nil, errors.DependencyUnavailable(storeDep, err)
	}
	if !actor.Admin && actor.UserID != inv.InvitedBy && actor.UserID != inv.OwnerID {
		return nil, errors.InsufficientAuthority("only the inviter or the account owner can revoke an invitation")
	}
	if !inv.IsPending() {
		return nil, errors.AlreadyResolved(string(inv.Status))
	}

	now := s.now()
	inv.Status = model.InvitationDeclined
	inv.DeclinedAt = &now
	inv.RevokedBy = actor.UserID
	if err := s.update(ctx, inv); err != nil {
		return nil, err
	}
	s.metrics.Invitations.WithLabelValues("revoked").Inc()

	s.audit(ctx, actor.UserID, inv, model.AuditActionInvitationRevoked, nil)
	return inv, nil
}

// update writes a status transition; losing a race means someone else resolved it.
func (s *Service) update(ctx context.Context, inv *model.Invitation) error {
	err := s.invitations.Update(ctx, inv)
	if err == nil {
		return nil
	}
	if stderrors.Is(err, repository.ErrConflict) {
		if current, getErr := s.invitations.Get(ctx, inv.ID); getErr == nil {
			return errors.AlreadyResolved(string(current.Status))
		}
	}
	return errors.DependencyUnavailable(storeDep, err)
}

// ListForOwner returns the family's open invitations. Pending invitations
// past their deadline are reported as expired.
func (s *Service) ListForOwner(ctx context.Context, actor *model.Principal, ownerID string) ([]*model.Invitation, error) {
	fc, err := s.guard.ResolveFamily(ctx, actor, ownerID)
	if err != nil {
		return nil, err
	}
	if !fc.Role.AtLeast(model.RoleCoAdmin) {
		return nil, errors.InsufficientAuthority("only owners and co-admins can list invitations")
	}
	invs, err := s.invitations.ListByOwner(ctx, fc.OwnerID)
	if err != nil {
		return nil, errors.DependencyUnavailable(storeDep, err)
	}
	return s.open(invs), nil
}

// ListForRecipient returns the open invitations addressed to the caller.
func (s *Service) ListForRecipient(ctx context.Context, p *model.Principal) ([]*model.Invitation, error) {
	if p == nil || p.Email == "" {
		return nil, errors.Unauthorized(nil)
	}
	invs, err := s.invitations.ListByEmail(ctx, p.Email)
	if err != nil {
		return nil, errors.DependencyUnavailable(storeDep, err)
	}
	return s.open(invs), nil
}

func (s *Service) open(invs []*model.Invitation) []*model.Invitation {
	now := s.now()
	out := make([]*model.Invitation, 0, len(invs))
	for _, inv := range invs {
		if !inv.IsPending() {
			continue
		}
		if inv.IsExpired(now) {
			inv.Status = model.InvitationExpired
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ExpireStale marks every pending invitation past its deadline as expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	pending, err := s.invitations.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending invitations: %w", err)
	}

	now := s.now()
	expired := 0
	for _, inv := range pending {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		if inv.IsExpired(now) && s.markExpired(ctx, inv) {
			expired++
		}
	}
	if expired > 0 {
		s.log.Info("expired stale invitations", "count", expired)
	}
	return expired, nil
}

func (s *Service) audit(ctx context.Context, actorID string, inv *model.Invitation, action string, metadata map[string]interface{}) {
	if err := s.auditor.Log(ctx, actorID, inv.OwnerID, action, model.AuditEntityInvitation, inv.ID, &audit.LogOptions{
		Metadata: metadata,
	}); err != nil {
		s.log.Error(err, "failed to audit invitation", "invitation_id", inv.ID, "action", action)
	}
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	if profile, err := s.profiles.Get(ctx, userID); err == nil && profile.Name != "" {
		return profile.Name
	}
	return ""
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func union(a, b []string) []string {
	return dedupe(append(append([]string{}, a...), b...))
}
