package access

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository/document"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/testutil"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore/memory"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
)

func newGuard(f *testutil.Fixture) *Guard {
	return NewGuard(f.Members, f.Index, f.Patients, time.Minute, logger.Nop(), metrics.Discard())
}

func principal(id string) *model.Principal {
	return &model.Principal{UserID: id, Email: id + "@example.com"}
}

func TestAuthorize(t *testing.T) {
	f := testutil.NewFixture()
	f.AddPatient(t, "owner", "p1", "Kiddo")
	f.AddPatient(t, "owner", "p2", "Grandpa")
	f.AddPatient(t, "stranger", "p9", "Other")
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p1"}, nil)

	noVitals := &model.Permissions{}
	noVitals.Set(model.CapViewVitals, false)
	f.AddMember(t, "owner", "uncle", model.RoleViewer, []string{"p1"}, noVitals)

	g := newGuard(f)
	ctx := context.Background()

	tests := []struct {
		name       string
		principal  *model.Principal
		patientID  string
		capability model.Capability
		wantReason errors.Reason
		wantOwner  string
		wantRole   model.FamilyRole
	}{
		{"owner on own patient", principal("owner"), "p2", model.CapViewBilling, "", "owner", model.RoleAccountOwner},
		{"caregiver base capability", principal("aunt"), "p1", model.CapLogVitals, "", "owner", model.RoleCaregiver},
		{"caregiver missing capability", principal("aunt"), "p1", model.CapDeleteDocuments, errors.ReasonInsufficientCapability, "", ""},
		{"caregiver on unassigned patient", principal("aunt"), "p2", model.CapViewVitals, errors.ReasonInsufficientCapability, "", ""},
		{"override removes capability", principal("uncle"), "p1", model.CapViewVitals, errors.ReasonInsufficientCapability, "", ""},
		{"override keeps the rest", principal("uncle"), "p1", model.CapViewMedications, "", "owner", model.RoleViewer},
		{"non member", principal("nobody"), "p1", model.CapViewVitals, errors.ReasonNotAMember, "", ""},
		{"owner of another family", principal("stranger"), "p1", model.CapViewVitals, errors.ReasonNotAMember, "", ""},
		{"admin anywhere", &model.Principal{UserID: "ops", Admin: true}, "p9", model.CapDeleteDocuments, "", "stranger", model.RoleAccountOwner},
		{"admin unknown patient", &model.Principal{UserID: "ops", Admin: true}, "missing", model.CapViewVitals, errors.ReasonPatientNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := g.Authorize(ctx, tt.principal, tt.patientID, tt.capability)
			if tt.wantReason != "" {
				require.Error(t, err)
				assert.True(t, errors.HasReason(err, tt.wantReason), "got %v", err)
				assert.Nil(t, d)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, d.OwnerID)
			assert.Equal(t, tt.wantRole, d.Role)
			assert.True(t, d.Capabilities.Has(tt.capability))
		})
	}
}

func TestAuthorize_RejectsAnonymousAndUnknownCapability(t *testing.T) {
	f := testutil.NewFixture()
	g := newGuard(f)

	_, err := g.Authorize(context.Background(), nil, "p1", model.CapViewVitals)
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))

	_, err = g.Authorize(context.Background(), principal("owner"), "p1", model.Capability("teleport"))
	assert.True(t, errors.IsCode(err, errors.ErrBadRequest))
}

func TestAuthorizeMutation_RoleFloor(t *testing.T) {
	f := testutil.NewFixture()
	f.AddPatient(t, "owner", "p1", "Kiddo")

	manage := &model.Permissions{}
	manage.Set(model.CapManageFamily, true)
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p1"}, manage)
	f.AddMember(t, "owner", "co", model.RoleCoAdmin, []string{"p1"}, nil)

	g := newGuard(f)
	ctx := context.Background()

	_, err := g.Authorize(ctx, principal("aunt"), "p1", model.CapManageFamily)
	require.NoError(t, err)

	_, err = g.AuthorizeMutation(ctx, principal("aunt"), "p1", model.CapManageFamily, model.RoleCoAdmin)
	assert.True(t, errors.HasReason(err, errors.ReasonInsufficientAuthority))

	d, err := g.AuthorizeMutation(ctx, principal("co"), "p1", model.CapManageFamily, model.RoleCoAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCoAdmin, d.Role)
}

func TestAuthorize_RemovedMemberLosesAccessDespiteCache(t *testing.T) {
	f := testutil.NewFixture()
	f.AddPatient(t, "owner", "p1", "Kiddo")
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p1"}, nil)

	g := newGuard(f)
	ctx := context.Background()

	_, err := g.Authorize(ctx, principal("aunt"), "p1", model.CapViewVitals)
	require.NoError(t, err)

	aunt, err := f.Members.Get(ctx, "owner", "aunt")
	require.NoError(t, err)
	require.NoError(t, f.Members.Delete(ctx, aunt))

	_, err = g.Authorize(ctx, principal("aunt"), "p1", model.CapViewVitals)
	assert.True(t, errors.HasReason(err, errors.ReasonNotAMember))
	_, cached := g.owners.Get("aunt")
	assert.False(t, cached)
}

func TestAuthorize_PendingMemberIsNotAMember(t *testing.T) {
	f := testutil.NewFixture()
	f.AddPatient(t, "owner", "p1", "Kiddo")
	m := f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p1"}, nil)
	m.Status = model.MemberStatusPending
	require.NoError(t, f.Members.Update(context.Background(), m))

	_, err := newGuard(f).Authorize(context.Background(), principal("aunt"), "p1", model.CapViewVitals)
	assert.True(t, errors.HasReason(err, errors.ReasonNotAMember))
}

// failingStore fails every read.
type failingStore struct {
	*memory.Store
}

var errStoreDown = stderrors.New("store down")

func (s failingStore) Get(context.Context, string) (*docstore.Document, error) {
	return nil, errStoreDown
}

func TestAuthorize_FailsClosedWhenStoreIsDown(t *testing.T) {
	base := document.NewBaseRepository(failingStore{memory.New()})
	g := NewGuard(
		document.NewMemberRepository(base),
		document.NewMembershipIndexRepository(base),
		document.NewPatientRepository(base),
		time.Minute, logger.Nop(), metrics.Discard(),
	)

	d, err := g.Authorize(context.Background(), principal("aunt"), "p1", model.CapViewVitals)
	assert.Nil(t, d)
	assert.True(t, errors.IsCode(err, errors.ErrUnavailable))
	assert.ErrorIs(t, err, errStoreDown)
}

func TestResolveFamily(t *testing.T) {
	f := testutil.NewFixture()
	f.AddPatient(t, "owner", "p1", "Kiddo")
	f.AddMember(t, "owner", "co", model.RoleCoAdmin, []string{"p1"}, nil)
	g := newGuard(f)
	ctx := context.Background()

	fc, err := g.ResolveFamily(ctx, principal("owner"), "")
	require.NoError(t, err)
	assert.Equal(t, "owner", fc.OwnerID)
	assert.True(t, fc.IsOwner())

	fc, err = g.ResolveFamily(ctx, principal("co"), "")
	require.NoError(t, err)
	assert.Equal(t, "owner", fc.OwnerID)
	assert.Equal(t, model.RoleCoAdmin, fc.Role)
	assert.True(t, fc.Capabilities().Has(model.CapManageFamily))
	assert.False(t, fc.Capabilities().Has(model.CapViewBilling))

	fc, err = g.ResolveFamily(ctx, principal("co"), "owner")
	require.NoError(t, err)
	assert.Equal(t, model.RoleCoAdmin, fc.Role)

	_, err = g.ResolveFamily(ctx, principal("co"), "someone-else")
	assert.True(t, errors.HasReason(err, errors.ReasonNotAMember))

	fc, err = g.ResolveFamily(ctx, &model.Principal{UserID: "ops", Admin: true}, "owner")
	require.NoError(t, err)
	assert.True(t, fc.IsOwner())
	assert.True(t, fc.Admin)
}
