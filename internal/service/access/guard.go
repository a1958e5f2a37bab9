// Package access decides whether a principal may use a capability on a patient.
package access

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/rbac"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
)

const storeDependency = "document store"

// Decision is a granted authorization.
type Decision struct {
	OwnerID      string              `json:"ownerId"`
	PatientID    string              `json:"patientId"`
	Role         model.FamilyRole    `json:"role"`
	Capabilities model.CapabilitySet `json:"capabilities"`
	Admin        bool                `json:"admin,omitempty"`
}

// FamilyContext is the family a principal acts in.
type FamilyContext struct {
	OwnerID string              `json:"ownerId"`
	Role    model.FamilyRole    `json:"role"`
	Member  *model.FamilyMember `json:"member,omitempty"`
	Admin   bool                `json:"admin,omitempty"`
}

// IsOwner reports whether the principal has owner authority in the family.
func (f *FamilyContext) IsOwner() bool {
	return f.Role == model.RoleAccountOwner
}

type Guard struct {
	members  repository.MemberRepository
	index    repository.MembershipIndexRepository
	patients repository.PatientRepository
	owners   *cache.Cache
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewGuard caches reverse index lookups for cacheTTL. A zero TTL disables the cache.
func NewGuard(
	members repository.MemberRepository,
	index repository.MembershipIndexRepository,
	patients repository.PatientRepository,
	cacheTTL time.Duration,
	log *logger.Logger,
	m *metrics.Metrics,
) *Guard {
	g := &Guard{
		members:  members,
		index:    index,
		patients: patients,
		log:      log,
		metrics:  m,
	}
	if cacheTTL > 0 {
		g.owners = cache.New(cacheTTL, 2*cacheTTL)
	}
	return g
}

// Invalidate drops the cached family of memberID.
func (g *Guard) Invalidate(memberID string) {
	if g.owners != nil {
		g.owners.Delete(memberID)
	}
}

// ownerOf resolves the family a user is a member of, "" when none.
// Only positive lookups are cached.
func (g *Guard) ownerOf(ctx context.Context, userID string) (string, error) {
	if g.owners != nil {
		if v, ok := g.owners.Get(userID); ok {
			g.metrics.MembershipCacheLookups.WithLabelValues("hit").Inc()
			return v.(string), nil
		}
		g.metrics.MembershipCacheLookups.WithLabelValues("miss").Inc()
	}

	idx, err := g.index.Get(ctx, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", errors.DependencyUnavailable(storeDependency, err)
	}
	if g.owners != nil {
		g.owners.SetDefault(userID, idx.OwnerID)
	}
	return idx.OwnerID, nil
}

// Authorize checks that p may use capability on patientID.
func (g *Guard) Authorize(ctx context.Context, p *model.Principal, patientID string, capability model.Capability) (*Decision, error) {
	d, err := g.authorize(ctx, p, patientID, capability)
	g.observe(err)
	return d, err
}

// AuthorizeMutation additionally requires the role floor minRole.
func (g *Guard) AuthorizeMutation(ctx context.Context, p *model.Principal, patientID string, capability model.Capability, minRole model.FamilyRole) (*Decision, error) {
	d, err := g.authorize(ctx, p, patientID, capability)
	if err == nil && !d.Role.AtLeast(minRole) {
		err = errors.InsufficientAuthority("role " + string(d.Role) + " is below " + string(minRole))
		d = nil
	}
	g.observe(err)
	return d, err
}

func (g *Guard) observe(err error) {
	result, reason := "allow", ""
	if err != nil {
		result = "deny"
		if appErr, ok := errors.AsAppError(err); ok {
			reason = string(appErr.Reason)
			if appErr.Code == errors.ErrUnavailable || appErr.Code == errors.ErrInternal {
				result = "error"
			}
		} else {
			result = "error"
		}
	}
	g.metrics.AuthorizationDecisions.WithLabelValues(result, reason).Inc()
}

func ownerDecision(ownerID, patientID string, admin bool) *Decision {
	caps, _ := rbac.CapabilitiesFor(model.RoleAccountOwner, nil)
	return &Decision{
		OwnerID:      ownerID,
		PatientID:    patientID,
		Role:         model.RoleAccountOwner,
		Capabilities: caps,
		Admin:        admin,
	}
}

func (g *Guard) authorize(ctx context.Context, p *model.Principal, patientID string, capability model.Capability) (*Decision, error) {
	if p == nil || p.UserID == "" {
		return nil, errors.Unauthorized(nil)
	}
	if !capability.Valid() {
		return nil, errors.Validation("unknown capability " + string(capability))
	}

	// Platform admins act with owner authority in whichever family holds the patient.
	if p.Admin {
		patient, err := g.patients.Find(ctx, patientID)
		if err != nil {
			if stderrors.Is(err, repository.ErrNotFound) {
				return nil, errors.PatientNotFound(patientID)
			}
			return nil, errors.DependencyUnavailable(storeDependency, err)
		}
		return ownerDecision(patient.OwnerID, patientID, true), nil
	}

	// Owners.
	_, err := g.patients.Get(ctx, p.UserID, patientID)
	switch {
	case err == nil:
		return ownerDecision(p.UserID, patientID, false), nil
	case !stderrors.Is(err, repository.ErrNotFound):
		return nil, errors.DependencyUnavailable(storeDependency, err)
	}

	// Members.
	ownerID, err := g.ownerOf(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, errors.NotAMember()
	}

	member, err := g.members.Get(ctx, ownerID, p.UserID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			g.Invalidate(p.UserID)
			return nil, errors.NotAMember()
		}
		return nil, errors.DependencyUnavailable(storeDependency, err)
	}
	if member.Status != model.MemberStatusAccepted {
		return nil, errors.NotAMember()
	}
	if !member.HasPatient(patientID) {
		return nil, errors.InsufficientCapability(string(capability))
	}

	if _, err := g.patients.Get(ctx, ownerID, patientID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, errors.PatientNotFound(patientID)
		}
		return nil, errors.DependencyUnavailable(storeDependency, err)
	}

	perms := member.Permissions
	pm, err := g.members.GetPatientMember(ctx, ownerID, patientID, p.UserID)
	switch {
	case err == nil:
		perms = pm.Permissions
	case !stderrors.Is(err, repository.ErrNotFound):
		return nil, errors.DependencyUnavailable(storeDependency, err)
	}

	caps, err := rbac.CapabilitiesFor(member.FamilyRole, perms)
	if err != nil {
		return nil, err
	}
	if !caps.Has(capability) {
		return nil, errors.InsufficientCapability(string(capability))
	}

	return &Decision{
		OwnerID:      ownerID,
		PatientID:    patientID,
		Role:         member.FamilyRole,
		Capabilities: caps,
	}, nil
}

// ResolveFamily finds the family p acts in. With ownerID empty, a member
// resolves to the family they joined and everyone else to their own account.
func (g *Guard) ResolveFamily(ctx context.Context, p *model.Principal, ownerID string) (*FamilyContext, error) {
	if p == nil || p.UserID == "" {
		return nil, errors.Unauthorized(nil)
	}

	if ownerID != "" && (p.Admin || ownerID == p.UserID) {
		return &FamilyContext{OwnerID: ownerID, Role: model.RoleAccountOwner, Admin: p.Admin}, nil
	}

	memberOf, err := g.ownerOf(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	if memberOf == "" || (ownerID != "" && memberOf != ownerID) {
		if ownerID == "" {
			return &FamilyContext{OwnerID: p.UserID, Role: model.RoleAccountOwner, Admin: p.Admin}, nil
		}
		return nil, errors.NotAMember()
	}

	member, err := g.members.Get(ctx, memberOf, p.UserID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			g.Invalidate(p.UserID)
			if ownerID == "" {
				return &FamilyContext{OwnerID: p.UserID, Role: model.RoleAccountOwner, Admin: p.Admin}, nil
			}
			return nil, errors.NotAMember()
		}
		return nil, errors.DependencyUnavailable(storeDependency, err)
	}
	if member.Status != model.MemberStatusAccepted {
		return nil, errors.NotAMember()
	}

	return &FamilyContext{OwnerID: memberOf, Role: member.FamilyRole, Member: member, Admin: p.Admin}, nil
}

// Capabilities resolves what fc grants across the family, ignoring per-patient overrides.
func (f *FamilyContext) Capabilities() model.CapabilitySet {
	var perms *model.Permissions
	if f.Member != nil {
		perms = f.Member.Permissions
	}
	caps, _ := rbac.CapabilitiesFor(f.Role, perms)
	return caps
}
