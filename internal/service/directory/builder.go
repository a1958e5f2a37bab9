// Package directory builds the list of people who share patients with a user.
package directory

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
)

const (
	storeDep       = "document store"
	maxConcurrency = 8
)

type Builder struct {
	members  repository.MemberRepository
	index    repository.MembershipIndexRepository
	patients repository.PatientRepository
	profiles repository.ProfileRepository
	log      *logger.Logger
}

func NewBuilder(
	members repository.MemberRepository,
	index repository.MembershipIndexRepository,
	patients repository.PatientRepository,
	profiles repository.ProfileRepository,
	log *logger.Logger,
) *Builder {
	return &Builder{
		members:  members,
		index:    index,
		patients: patients,
		profiles: profiles,
		log:      log,
	}
}

// contact is a directory candidate before privacy is applied.
type contact struct {
	userID string
	name   string
	email  string
	phone  string
	role   model.FamilyRole
	shared map[string]struct{}
}

// Build lists everyone who shares at least one reachable patient with the
// requester, optionally narrowed to patientFilter. The requester is never listed.
func (b *Builder) Build(ctx context.Context, requesterID, patientFilter string) ([]model.DirectoryEntry, error) {
	reachable, familyOwner, err := b.reachable(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(reachable))
	if patientFilter != "" {
		if _, ok := reachable[patientFilter]; !ok {
			return nil, errors.PatientNotFound(patientFilter)
		}
		targets = append(targets, patientFilter)
	} else {
		for pid := range reachable {
			targets = append(targets, pid)
		}
		sort.Strings(targets)
	}

	var mu sync.Mutex
	contacts := make(map[string]*contact)
	addShared := func(c *contact, pid string) {
		if existing, ok := contacts[c.userID]; ok {
			existing.shared[pid] = struct{}{}
			return
		}
		c.shared = map[string]struct{}{pid: {}}
		contacts[c.userID] = c
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrency)
	for _, pid := range targets {
		eg.Go(func() error {
			members, err := b.members.ListByPatient(egCtx, pid)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, m := range members {
				if m.UserID == requesterID || m.OwnerID != reachable[pid] || m.Status != model.MemberStatusAccepted {
					continue
				}
				addShared(&contact{
					userID: m.UserID,
					name:   m.Name,
					email:  m.Email,
					phone:  m.Phone,
					role:   m.FamilyRole,
				}, pid)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.DependencyUnavailable(storeDep, err)
	}

	// Members also see the owner of their family.
	if familyOwner != "" {
		for _, pid := range targets {
			if reachable[pid] == familyOwner {
				addShared(&contact{userID: familyOwner, role: model.RoleAccountOwner}, pid)
			}
		}
	}

	profiles, err := b.loadProfiles(ctx, contacts)
	if err != nil {
		return nil, err
	}

	entries := make([]model.DirectoryEntry, 0, len(contacts))
	for id, c := range contacts {
		entries = append(entries, project(c, profiles[id]))
	}
	sort.Slice(entries, func(i, j int) bool {
		ni, nj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if ni != nj {
			return ni < nj
		}
		return entries[i].UserID < entries[j].UserID
	})
	return entries, nil
}

// reachable maps every patient the requester can see to its owner, and
// returns the owner of the family the requester is a member of, if any.
func (b *Builder) reachable(ctx context.Context, requesterID string) (map[string]string, string, error) {
	out := make(map[string]string)

	owned, err := b.patients.List(ctx, requesterID)
	if err != nil {
		return nil, "", errors.DependencyUnavailable(storeDep, err)
	}
	for _, p := range owned {
		out[p.ID] = requesterID
	}

	idx, err := b.index.Get(ctx, requesterID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return out, "", nil
		}
		return nil, "", errors.DependencyUnavailable(storeDep, err)
	}

	member, err := b.members.Get(ctx, idx.OwnerID, requesterID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return out, "", nil
		}
		return nil, "", errors.DependencyUnavailable(storeDep, err)
	}
	if member.Status != model.MemberStatusAccepted {
		return out, "", nil
	}
	for _, pid := range member.PatientsAccess {
		out[pid] = idx.OwnerID
	}
	return out, idx.OwnerID, nil
}

func (b *Builder) loadProfiles(ctx context.Context, contacts map[string]*contact) (map[string]*model.UserProfile, error) {
	var mu sync.Mutex
	profiles := make(map[string]*model.UserProfile, len(contacts))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrency)
	for id := range contacts {
		eg.Go(func() error {
			p, err := b.profiles.Get(egCtx, id)
			if err != nil {
				if stderrors.Is(err, repository.ErrNotFound) {
					return nil
				}
				return err
			}
			mu.Lock()
			profiles[id] = p
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, errors.DependencyUnavailable(storeDep, err)
	}
	return profiles, nil
}

// project applies the contact's own privacy settings. Missing profiles get
// the permissive defaults.
func project(c *contact, profile *model.UserProfile) model.DirectoryEntry {
	e := model.DirectoryEntry{
		UserID: c.userID,
		Name:   c.name,
		Role:   c.role,
		Email:  c.email,
		Phone:  c.phone,
	}

	var privacy *model.PrivacySettings
	if profile != nil {
		if profile.Name != "" {
			e.Name = profile.Name
		}
		if e.Email == "" {
			e.Email = profile.Email
		}
		if e.Phone == "" {
			e.Phone = profile.Phone
		}
		e.PhotoURL = profile.PhotoURL
		e.Status = profile.Status
		privacy = profile.Privacy
	}

	eff := privacy.Effective()
	if eff.ProfileVisibility == model.VisibilityPrivate {
		e.Email, e.Phone, e.PhotoURL, e.Status = "", "", "", ""
	}
	if !*eff.ShareContactInfo {
		e.Email, e.Phone = "", ""
	}
	if !*eff.ShareAvailability {
		e.Status = ""
	}

	e.SharedPatients = make([]string, 0, len(c.shared))
	for pid := range c.shared {
		e.SharedPatients = append(e.SharedPatients, pid)
	}
	sort.Strings(e.SharedPatients)
	return e
}
