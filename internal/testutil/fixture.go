// Package testutil wires the repositories over an in-memory store for
// service tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository/document"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/audit"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore/memory"
)

type Fixture struct {
	Store       *memory.Store
	Patients    repository.PatientRepository
	Members     repository.MemberRepository
	Index       repository.MembershipIndexRepository
	Invitations repository.InvitationRepository
	Profiles    repository.ProfileRepository
	Audit       repository.AuditRepository
}

func NewFixture() *Fixture {
	store := memory.New()
	base := document.NewBaseRepository(store)
	return &Fixture{
		Store:       store,
		Patients:    document.NewPatientRepository(base),
		Members:     document.NewMemberRepository(base),
		Index:       document.NewMembershipIndexRepository(base),
		Invitations: document.NewInvitationRepository(base),
		Profiles:    document.NewProfileRepository(base),
		Audit:       document.NewAuditRepository(base),
	}
}

func (f *Fixture) AddPatient(t testing.TB, ownerID, patientID, name string) *model.Patient {
	t.Helper()
	p := &model.Patient{ID: patientID, OwnerID: ownerID, Name: name, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.Patients.Create(context.Background(), p))
	return p
}

func (f *Fixture) AddProfile(t testing.TB, profile *model.UserProfile) {
	t.Helper()
	require.NoError(t, f.Profiles.Put(context.Background(), profile))
}

// AddMember writes a consistent accepted membership: the account-level record,
// the reverse index and one patient-level record per patient.
func (f *Fixture) AddMember(t testing.TB, ownerID, memberID string, role model.FamilyRole, patientIDs []string, perms *model.Permissions) *model.FamilyMember {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	m := &model.FamilyMember{
		UserID:         memberID,
		OwnerID:        ownerID,
		Name:           memberID,
		Email:          memberID + "@example.com",
		FamilyRole:     role,
		PatientsAccess: patientIDs,
		Permissions:    perms,
		ManagedBy:      ownerID,
		Status:         model.MemberStatusAccepted,
		InvitedAt:      now,
		AcceptedAt:     &now,
		RoleAssignedAt: now,
		UpdatedAt:      now,
	}
	require.NoError(t, f.Members.Create(ctx, m))
	require.NoError(t, f.Index.Put(ctx, &model.MembershipIndex{MemberUserID: memberID, OwnerID: ownerID, CreatedAt: now}))
	for _, pid := range patientIDs {
		require.NoError(t, f.Members.PutPatientMember(ctx, &model.PatientMember{
			UserID:      memberID,
			OwnerID:     ownerID,
			PatientID:   pid,
			Name:        m.Name,
			Email:       m.Email,
			FamilyRole:  role,
			Permissions: perms,
			Status:      model.MemberStatusAccepted,
			AddedAt:     now,
			UpdatedAt:   now,
		}))
	}
	return m
}

// Entry is one recorded audit call.
type Entry struct {
	ActorID  string
	OwnerID  string
	Action   string
	EntityID string
	Metadata interface{}
}

// Auditor records entries in memory.
type Auditor struct {
	mu      sync.Mutex
	Entries []Entry
}

func (a *Auditor) Log(_ context.Context, actorID, ownerID, action, _, entityID string, opts *audit.LogOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e := Entry{ActorID: actorID, OwnerID: ownerID, Action: action, EntityID: entityID}
	if opts != nil {
		e.Metadata = opts.Metadata
	}
	a.Entries = append(a.Entries, e)
	return nil
}

func (a *Auditor) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Entries))
	for _, e := range a.Entries {
		out = append(out, e.Action)
	}
	return out
}

// Notice is one recorded notification.
type Notice struct {
	Recipients []model.Recipient
	Event      model.NotificationEvent
	Metadata   map[string]interface{}
}

// Notifier records notifications in memory.
type Notifier struct {
	mu      sync.Mutex
	Notices []Notice
}

func (n *Notifier) Notify(_ context.Context, recipients []model.Recipient, event model.NotificationEvent, metadata map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, Notice{Recipients: recipients, Event: event, Metadata: metadata})
}

func (n *Notifier) Events() []model.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.NotificationEvent, 0, len(n.Notices))
	for _, x := range n.Notices {
		out = append(out, x.Event)
	}
	return out
}
