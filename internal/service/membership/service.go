// Package membership keeps the account-level and patient-level views of a
// family membership in step.
package membership

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/audit"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/rbac"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/worker"
)

const (
	conflictRetries = 5
	conflictBackoff = 10 * time.Millisecond
)

// Invalidator drops cached membership lookups for a user.
type Invalidator interface {
	Invalidate(memberID string)
}

type Service struct {
	members     repository.MemberRepository
	index       repository.MembershipIndexRepository
	patients    repository.PatientRepository
	log         *logger.Logger
	metrics     *metrics.Metrics
	invalidator Invalidator
	auditor     audit.Auditor
	concurrency int
	nowFn       func() time.Time
}

type Option func(*Service)

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.invalidator = inv }
}

// WithAuditor records reconciliation repairs.
func WithAuditor(a audit.Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithConcurrency bounds how many families ReconcileAll works on at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.nowFn = now }
}

func NewService(
	members repository.MemberRepository,
	index repository.MembershipIndexRepository,
	patients repository.PatientRepository,
	log *logger.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		members:     members,
		index:       index,
		patients:    patients,
		log:         log,
		metrics:     m,
		concurrency: 4,
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GrantResult lists the patients whose patient-level record was written, and
// the ones that failed. Failures are healed by Reconcile.
type GrantResult struct {
	Added  []string          `json:"added"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Grant carries the permissions written with new access. The account-level
// default is changed through SetPermissions, which rewrites every record.
type Grant struct {
	// PerPatient holds patient-specific overrides.
	PerPatient map[string]*model.Permissions
}

func (s *Service) now() time.Time { return s.nowFn().UTC() }

func (s *Service) invalidate(memberID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(memberID)
	}
}

func (s *Service) record(op string, err error) {
	s.metrics.ReplicationOperations.WithLabelValues(op, metrics.Status(err)).Inc()
}

func isConflict(err error) bool {
	return stderrors.Is(err, repository.ErrConflict)
}

// mutate applies fn to a fresh read of the account-level record and writes it
// back under the read version, retrying on version conflicts.
func (s *Service) mutate(ctx context.Context, ownerID, memberID string, fn func(m *model.FamilyMember) error) (*model.FamilyMember, error) {
	var out *model.FamilyMember
	err := worker.RetryIf(ctx, conflictRetries, conflictBackoff, isConflict, func() error {
		m, err := s.members.Get(ctx, ownerID, memberID)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return errors.MemberNotFound(memberID)
			}
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
		m.UpdatedAt = s.now()
		if err := s.members.Update(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) patientRecord(m *model.FamilyMember, patientID string, overrides *model.Permissions) *model.PatientMember {
	now := s.now()
	return &model.PatientMember{
		UserID:      m.UserID,
		OwnerID:     m.OwnerID,
		PatientID:   patientID,
		Name:        m.Name,
		Email:       m.Email,
		FamilyRole:  m.FamilyRole,
		Permissions: rbac.ResolveOverrides(m.Permissions, overrides),
		Overrides:   overrides,
		Status:      model.MemberStatusAccepted,
		AddedAt:     now,
		UpdatedAt:   now,
	}
}

// FanOut writes patient-level records for patientIDs from the account-level
// record m. Per-patient failures are collected, never returned.
func (s *Service) FanOut(ctx context.Context, m *model.FamilyMember, patientIDs []string, perPatient map[string]*model.Permissions) *GrantResult {
	res := &GrantResult{Added: []string{}}
	for _, pid := range patientIDs {
		err := s.members.PutPatientMember(ctx, s.patientRecord(m, pid, perPatient[pid]))
		s.record("fan_out", err)
		if err != nil {
			s.log.Error(err, "failed to write patient-level member record",
				"owner_id", m.OwnerID, "member_id", m.UserID, "patient_id", pid)
			if res.Failed == nil {
				res.Failed = map[string]string{}
			}
			res.Failed[pid] = err.Error()
			continue
		}
		res.Added = append(res.Added, pid)
	}
	return res
}

// GrantAccess adds patients to a member's access list and replicates only the
// newly added ones.
func (s *Service) GrantAccess(ctx context.Context, ownerID, memberID string, patientIDs []string, grant Grant) (*GrantResult, error) {
	for _, pid := range patientIDs {
		if _, err := s.patients.Get(ctx, ownerID, pid); err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return nil, errors.PatientNotFound(pid)
			}
			return nil, errors.DependencyUnavailable("document store", err)
		}
	}

	var delta []string
	m, err := s.mutate(ctx, ownerID, memberID, func(m *model.FamilyMember) error {
		delta = difference(patientIDs, m.PatientsAccess)
		m.PatientsAccess = union(m.PatientsAccess, delta)
		return nil
	})
	s.record("grant", err)
	if err != nil {
		return nil, err
	}
	s.invalidate(memberID)

	return s.FanOut(ctx, m, delta, grant.PerPatient), nil
}

// RevokeResult reports a revocation.
type RevokeResult struct {
	Removed       []string          `json:"removed"`
	Failed        map[string]string `json:"failed,omitempty"`
	MemberDeleted bool              `json:"memberDeleted"`
}

// RevokeAccess removes patients from a member. When nothing is left the
// account-level record and the reverse index entry are deleted together.
func (s *Service) RevokeAccess(ctx context.Context, ownerID, memberID string, patientIDs []string) (*RevokeResult, error) {
	return s.revoke(ctx, "revoke", ownerID, memberID, func(*model.FamilyMember) []string {
		return patientIDs
	})
}

// RemoveMember revokes every patient the member holds and deletes the membership.
func (s *Service) RemoveMember(ctx context.Context, ownerID, memberID string) (*RevokeResult, error) {
	return s.revoke(ctx, "remove", ownerID, memberID, func(m *model.FamilyMember) []string {
		return m.PatientsAccess
	})
}

// revoke commits the account-level change under the read version, so a grant
// that lands in between forces a re-read instead of being overwritten. pick
// chooses the patients to drop from each fresh read.
func (s *Service) revoke(ctx context.Context, op, ownerID, memberID string, pick func(*model.FamilyMember) []string) (*RevokeResult, error) {
	res := &RevokeResult{Removed: []string{}}

	var removed []string
	var emptied bool
	err := worker.RetryIf(ctx, conflictRetries, conflictBackoff, isConflict, func() error {
		m, err := s.members.Get(ctx, ownerID, memberID)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return errors.MemberNotFound(memberID)
			}
			return err
		}
		targets := pick(m)
		removed = intersection(m.PatientsAccess, targets)
		remaining := difference(m.PatientsAccess, targets)
		if len(remaining) == 0 {
			emptied = true
			return s.members.Delete(ctx, m)
		}
		emptied = false
		m.PatientsAccess = remaining
		m.UpdatedAt = s.now()
		return s.members.Update(ctx, m)
	})
	s.record(op, err)
	if err != nil {
		return nil, err
	}
	s.invalidate(memberID)
	res.MemberDeleted = emptied

	for _, pid := range removed {
		dropped, err := s.dropPatientRecord(ctx, ownerID, pid, memberID)
		s.record("revoke_patient", err)
		if err != nil {
			s.log.Error(err, "failed to delete patient-level member record",
				"owner_id", ownerID, "member_id", memberID, "patient_id", pid)
			if res.Failed == nil {
				res.Failed = map[string]string{}
			}
			res.Failed[pid] = err.Error()
			continue
		}
		if dropped {
			res.Removed = append(res.Removed, pid)
		}
	}
	return res, nil
}

// dropPatientRecord removes the patient-level record of a revoked patient.
// A missing record counts as removed.
func (s *Service) dropPatientRecord(ctx context.Context, ownerID, patientID, memberID string) (bool, error) {
	pm, err := s.members.GetPatientMember(ctx, ownerID, patientID, memberID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	kept, err := s.dropIfOrphaned(ctx, pm)
	return !kept, err
}

// dropIfOrphaned deletes pm unless the member's account-level record lists its
// patient. The delete is conditional on the version pm was read at; when a
// concurrent grant rewrites the record the check runs again on a fresh read.
// It reports whether the record was kept.
func (s *Service) dropIfOrphaned(ctx context.Context, pm *model.PatientMember) (bool, error) {
	var kept bool
	err := worker.RetryIf(ctx, conflictRetries, conflictBackoff, isConflict, func() error {
		kept = false
		m, err := s.members.Get(ctx, pm.OwnerID, pm.UserID)
		switch {
		case err == nil:
			if m.Status == model.MemberStatusAccepted && m.HasPatient(pm.PatientID) {
				kept = true
				return nil
			}
		case !stderrors.Is(err, repository.ErrNotFound):
			return err
		}

		err = s.members.DeletePatientMemberIf(ctx, pm)
		switch {
		case err == nil, stderrors.Is(err, repository.ErrNotFound):
			return nil
		case isConflict(err):
			fresh, gerr := s.members.GetPatientMember(ctx, pm.OwnerID, pm.PatientID, pm.UserID)
			if gerr != nil {
				if stderrors.Is(gerr, repository.ErrNotFound) {
					return nil
				}
				return gerr
			}
			pm = fresh
		}
		return err
	})
	return kept, err
}

// SetPermissions replaces the account-level default and rewrites the
// patient-level records so their effective permissions follow.
func (s *Service) SetPermissions(ctx context.Context, ownerID, memberID string, accountDefault *model.Permissions, perPatient map[string]*model.Permissions) (*GrantResult, error) {
	m, err := s.mutate(ctx, ownerID, memberID, func(m *model.FamilyMember) error {
		for pid := range perPatient {
			if !m.HasPatient(pid) {
				return errors.Validation(fmt.Sprintf("member has no access to patient %s", pid))
			}
		}
		if accountDefault != nil {
			m.Permissions = accountDefault
		}
		return nil
	})
	s.record("set_permissions", err)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]*model.Permissions, len(m.PatientsAccess))
	for _, pid := range m.PatientsAccess {
		if p, ok := perPatient[pid]; ok {
			overrides[pid] = p
			continue
		}
		pm, err := s.members.GetPatientMember(ctx, ownerID, pid, memberID)
		if err == nil {
			overrides[pid] = pm.Overrides
		}
	}
	return s.FanOut(ctx, m, m.PatientsAccess, overrides), nil
}

// SetRole records a new role, already validated by the caller, and propagates it.
func (s *Service) SetRole(ctx context.Context, ownerID, memberID string, role model.FamilyRole, assignedBy string) (*model.FamilyMember, error) {
	m, err := s.mutate(ctx, ownerID, memberID, func(m *model.FamilyMember) error {
		m.FamilyRole = role
		m.RoleAssignedAt = s.now()
		m.RoleAssignedBy = assignedBy
		return nil
	})
	s.record("set_role", err)
	if err != nil {
		return nil, err
	}

	for _, pid := range m.PatientsAccess {
		pm, err := s.members.GetPatientMember(ctx, ownerID, pid, memberID)
		if err != nil {
			if !stderrors.Is(err, repository.ErrNotFound) {
				s.log.Error(err, "failed to read patient-level member record", "patient_id", pid)
			}
			continue
		}
		pm.FamilyRole = role
		pm.UpdatedAt = s.now()
		if err := s.members.PutPatientMember(ctx, pm); err != nil {
			s.log.Error(err, "failed to propagate role", "owner_id", ownerID, "member_id", memberID, "patient_id", pid)
		}
	}
	return m, nil
}

func difference(a, b []string) []string {
	skip := make(map[string]struct{}, len(b))
	for _, v := range b {
		skip[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := skip[v]; ok {
			continue
		}
		skip[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func intersection(a, b []string) []string {
	keep := make(map[string]struct{}, len(b))
	for _, v := range b {
		keep[v] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := keep[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

func union(a, b []string) []string {
	out := append([]string{}, a...)
	out = append(out, difference(b, a)...)
	sort.Strings(out)
	return out
}
