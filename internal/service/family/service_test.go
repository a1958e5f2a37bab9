package family

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/access"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/audit"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/testutil"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
)

type harness struct {
	f        *testutil.Fixture
	svc      *Service
	auditor  *testutil.Auditor
	notifier *testutil.Notifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	f := testutil.NewFixture()
	m := metrics.Discard()
	guard := access.NewGuard(f.Members, f.Index, f.Patients, time.Minute, logger.Nop(), m)
	repl := membership.NewService(f.Members, f.Index, f.Patients, logger.Nop(), m, membership.WithInvalidator(guard))
	h := &harness{f: f, auditor: &testutil.Auditor{}, notifier: &testutil.Notifier{}}
	h.svc = NewService(guard, repl, f.Members, f.Patients, h.auditor, audit.NewService(f.Audit), h.notifier, logger.Nop())

	f.AddPatient(t, "owner", "kiddo", "Kiddo")
	f.AddPatient(t, "owner", "grandpa", "Grandpa")
	f.AddMember(t, "owner", "co", model.RoleCoAdmin, []string{"kiddo"}, nil)
	f.AddMember(t, "owner", "co2", model.RoleCoAdmin, []string{"kiddo"}, nil)
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"kiddo"}, nil)
	f.AddMember(t, "owner", "uncle", model.RoleViewer, []string{"kiddo", "grandpa"}, nil)
	return h
}

func user(id string) *model.Principal {
	return &model.Principal{UserID: id, Email: id + "@example.com"}
}

func rolePtr(r model.FamilyRole) *model.FamilyRole { return &r }

func TestListMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	list, err := h.svc.ListMembers(ctx, user("owner"), "")
	require.NoError(t, err)
	assert.Equal(t, "owner", list.OwnerID)
	assert.Equal(t, model.RoleAccountOwner, list.Role)
	assert.Len(t, list.Members, 4)
	assert.Equal(t, "aunt", list.Members[0].UserID)

	list, err = h.svc.ListMembers(ctx, user("aunt"), "")
	require.NoError(t, err)
	assert.Equal(t, "owner", list.OwnerID)
	assert.Equal(t, model.RoleCaregiver, list.Role)

	_, err = h.svc.ListMembers(ctx, user("aunt"), "elsewhere")
	assert.True(t, errors.HasReason(err, errors.ReasonNotAMember))
}

func TestUpdateMember_ByOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.UpdateMember(ctx, user("owner"), "aunt", UpdateMemberRequest{
		Role:        rolePtr(model.RoleViewer),
		AddPatients: []string{"grandpa"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Member)
	assert.Equal(t, model.RoleViewer, res.Member.FamilyRole)
	assert.Equal(t, []string{"grandpa", "kiddo"}, res.Member.PatientsAccess)
	assert.Equal(t, []string{"grandpa"}, res.Granted.Added)

	for _, pid := range []string{"kiddo", "grandpa"} {
		pm, err := h.f.Members.GetPatientMember(ctx, "owner", pid, "aunt")
		require.NoError(t, err)
		assert.Equal(t, model.RoleViewer, pm.FamilyRole)
	}

	assert.Equal(t, []string{model.AuditActionAccessGranted, model.AuditActionRoleChanged}, h.auditor.Actions())
	assert.Equal(t, []model.NotificationEvent{model.EventRoleChanged, model.EventAccessChanged}, h.notifier.Events())
}

func TestUpdateMember_RemovingLastPatientDeletesMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.UpdateMember(ctx, user("owner"), "aunt", UpdateMemberRequest{RemovePatients: []string{"kiddo"}})
	require.NoError(t, err)
	assert.Nil(t, res.Member)
	assert.True(t, res.Revoked.MemberDeleted)

	_, err = h.f.Members.Get(ctx, "owner", "aunt")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = h.f.Index.Get(ctx, "aunt")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateMember_Permissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	perms := &model.Permissions{}
	perms.Set(model.CapLogVitals, false)
	_, err := h.svc.UpdateMember(ctx, user("co"), "aunt", UpdateMemberRequest{
		PatientPermissions: map[string]*model.Permissions{"kiddo": perms},
	})
	require.NoError(t, err)

	d, err := h.svc.CheckAccess(ctx, user("aunt"), "kiddo", model.CapViewVitals)
	require.NoError(t, err)
	assert.False(t, d.Capabilities.Has(model.CapLogVitals))

	_, err = h.svc.CheckAccess(ctx, user("aunt"), "kiddo", model.CapLogVitals)
	assert.True(t, errors.HasReason(err, errors.ReasonInsufficientCapability))
	assert.Equal(t, []string{model.AuditActionPermissionsChanged}, h.auditor.Actions())
}

func TestUpdateMember_Authority(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		actor      string
		memberID   string
		req        UpdateMemberRequest
		wantCode   errors.ErrorCode
		wantReason errors.Reason
	}{
		{"empty update", "owner", "aunt", UpdateMemberRequest{}, errors.ErrBadRequest, ""},
		{"caregiver cannot manage", "aunt", "uncle", UpdateMemberRequest{AddPatients: []string{"kiddo"}}, 0, errors.ReasonInsufficientAuthority},
		{"co-admin cannot manage a peer", "co", "co2", UpdateMemberRequest{Role: rolePtr(model.RoleViewer)}, 0, errors.ReasonInsufficientAuthority},
		{"co-admin cannot promote to co-admin", "co", "aunt", UpdateMemberRequest{Role: rolePtr(model.RoleCoAdmin)}, 0, errors.ReasonCannotElevateBeyond},
		{"co-admin limited to own patients", "co", "aunt", UpdateMemberRequest{AddPatients: []string{"grandpa"}}, 0, errors.ReasonInsufficientCapability},
		{"unknown member", "owner", "ghost", UpdateMemberRequest{AddPatients: []string{"kiddo"}}, 0, errors.ReasonMemberNotFound},
		{"unknown patient", "owner", "aunt", UpdateMemberRequest{AddPatients: []string{"nobody"}}, 0, errors.ReasonPatientNotFound},
		{"unknown role", "owner", "aunt", UpdateMemberRequest{Role: rolePtr("boss")}, 0, errors.ReasonUnknownRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.UpdateMember(ctx, user(tt.actor), tt.memberID, tt.req)
			require.Error(t, err)
			if tt.wantCode != 0 {
				assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
			}
			if tt.wantReason != "" {
				assert.True(t, errors.HasReason(err, tt.wantReason), "got %v", err)
			}
		})
	}
	assert.Empty(t, h.auditor.Entries)
}

func TestRemoveMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RemoveMember(ctx, user("aunt"), "", "uncle")
	assert.True(t, errors.HasReason(err, errors.ReasonInsufficientAuthority))

	res, err := h.svc.RemoveMember(ctx, user("uncle"), "", "uncle")
	require.NoError(t, err)
	assert.True(t, res.MemberDeleted)
	assert.ElementsMatch(t, []string{"kiddo", "grandpa"}, res.Removed)

	_, err = h.svc.RemoveMember(ctx, user("co"), "", "aunt")
	require.NoError(t, err)

	_, err = h.svc.CheckAccess(ctx, user("aunt"), "kiddo", model.CapViewVitals)
	assert.True(t, errors.HasReason(err, errors.ReasonNotAMember))

	assert.Equal(t, []string{model.AuditActionMemberRemoved, model.AuditActionMemberRemoved}, h.auditor.Actions())
	// Leaving yourself sends nothing.
	assert.Equal(t, []model.NotificationEvent{model.EventMemberRemoved}, h.notifier.Events())
}

func TestReconcile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.f.Members.DeletePatientMember(ctx, "owner", "grandpa", "uncle"))

	_, err := h.svc.Reconcile(ctx, user("co"), "")
	assert.True(t, errors.HasReason(err, errors.ReasonInsufficientAuthority))

	report, err := h.svc.Reconcile(ctx, user("owner"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	report, err = h.svc.Reconcile(ctx, &model.Principal{UserID: "ops", Admin: true}, "owner")
	require.NoError(t, err)
	assert.Zero(t, report.Created)
}

func TestRoles(t *testing.T) {
	roles := newHarness(t).svc.Roles()
	require.Len(t, roles, 4)
	assert.Equal(t, model.RoleAccountOwner, roles[0].Role)
}

func TestAuditLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	trail := audit.NewService(h.f.Audit)
	require.NoError(t, trail.Log(ctx, "owner", "owner", model.AuditActionRoleChanged, model.AuditEntityFamilyMember, "aunt", nil))

	logs, err := h.svc.AuditLog(ctx, user("co"), "")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, model.AuditActionRoleChanged, logs[0].Action)

	_, err = h.svc.AuditLog(ctx, user("aunt"), "")
	assert.True(t, errors.HasReason(err, errors.ReasonInsufficientAuthority))
}
