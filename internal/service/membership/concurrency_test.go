package membership

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/rbac"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/testutil"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
)

// interleavedMembers runs a hook once, right before the wrapped call, so a
// concurrent writer can be placed at an exact point of another operation.
type interleavedMembers struct {
	repository.MemberRepository

	beforeRecords func()
	beforeDelete  func()
	beforeDropIf  func()
}

func once(hook *func()) {
	if h := *hook; h != nil {
		*hook = nil
		h()
	}
}

func (r *interleavedMembers) ListPatientRecordsByOwner(ctx context.Context, ownerID string) ([]*model.PatientMember, error) {
	once(&r.beforeRecords)
	return r.MemberRepository.ListPatientRecordsByOwner(ctx, ownerID)
}

func (r *interleavedMembers) Delete(ctx context.Context, member *model.FamilyMember) error {
	once(&r.beforeDelete)
	return r.MemberRepository.Delete(ctx, member)
}

func (r *interleavedMembers) DeletePatientMemberIf(ctx context.Context, pm *model.PatientMember) error {
	once(&r.beforeDropIf)
	return r.MemberRepository.DeletePatientMemberIf(ctx, pm)
}

func narrowing(c model.Capability) map[string]*model.Permissions {
	p := &model.Permissions{}
	p.Set(c, false)
	return map[string]*model.Permissions{"p2": p}
}

func effective(t *testing.T, f *testutil.Fixture, patientID, memberID string) model.CapabilitySet {
	t.Helper()
	pm, err := f.Members.GetPatientMember(context.Background(), "owner", patientID, memberID)
	require.NoError(t, err)
	caps, err := rbac.CapabilitiesFor(pm.FamilyRole, pm.Permissions)
	require.NoError(t, err)
	return caps
}

func TestReconcile_KeepsRecordGrantedBetweenScans(t *testing.T) {
	f := testutil.NewFixture()
	ctx := context.Background()
	f.AddPatient(t, "owner", "p1", "p1")
	f.AddPatient(t, "owner", "p2", "p2")
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p1"}, nil)

	granter := newService(f)
	members := &interleavedMembers{MemberRepository: f.Members}
	members.beforeRecords = func() {
		_, err := granter.GrantAccess(ctx, "owner", "aunt", []string{"p2"}, Grant{PerPatient: narrowing(model.CapEditVitals)})
		require.NoError(t, err)
	}
	reconciler := NewService(members, f.Index, f.Patients, logger.Nop(), metrics.Discard())

	report, err := reconciler.Reconcile(ctx, "owner")
	require.NoError(t, err)
	assert.Zero(t, report.Removed)
	assert.Zero(t, report.Failed)

	report, err = reconciler.Reconcile(ctx, "owner")
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	assert.Zero(t, report.Removed)

	assert.False(t, effective(t, f, "p2", "aunt").Has(model.CapEditVitals))
	assertConsistent(t, f, "owner", "aunt")
}

func TestReconcile_OrphanRewrittenBeforeDelete(t *testing.T) {
	f := testutil.NewFixture()
	ctx := context.Background()
	f.AddPatient(t, "owner", "p1", "p1")
	f.AddPatient(t, "owner", "p2", "p2")
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p1"}, nil)

	// A record left behind by an earlier revoke.
	require.NoError(t, f.Members.PutPatientMember(ctx, &model.PatientMember{
		UserID: "aunt", OwnerID: "owner", PatientID: "p2", FamilyRole: model.RoleCaregiver, Status: model.MemberStatusAccepted,
	}))

	granter := newService(f)
	members := &interleavedMembers{MemberRepository: f.Members}
	members.beforeDropIf = func() {
		_, err := granter.GrantAccess(ctx, "owner", "aunt", []string{"p2"}, Grant{PerPatient: narrowing(model.CapEditVitals)})
		require.NoError(t, err)
	}
	reconciler := NewService(members, f.Index, f.Patients, logger.Nop(), metrics.Discard())

	report, err := reconciler.Reconcile(ctx, "owner")
	require.NoError(t, err)
	assert.Zero(t, report.Removed)
	assert.Zero(t, report.Failed)

	assert.False(t, effective(t, f, "p2", "aunt").Has(model.CapEditVitals))
	assertConsistent(t, f, "owner", "aunt")
}

func TestRevokeAccess_GrantBeforeDeleteIsKept(t *testing.T) {
	f := testutil.NewFixture()
	ctx := context.Background()
	f.AddPatient(t, "owner", "p1", "p1")
	f.AddPatient(t, "owner", "p2", "p2")
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p1"}, nil)

	granter := newService(f)
	members := &interleavedMembers{MemberRepository: f.Members}
	members.beforeDelete = func() {
		_, err := granter.GrantAccess(ctx, "owner", "aunt", []string{"p2"}, Grant{})
		require.NoError(t, err)
	}
	revoker := NewService(members, f.Index, f.Patients, logger.Nop(), metrics.Discard())

	res, err := revoker.RevokeAccess(ctx, "owner", "aunt", []string{"p1"})
	require.NoError(t, err)
	assert.False(t, res.MemberDeleted)
	assert.Equal(t, []string{"p1"}, res.Removed)

	m, err := f.Members.Get(ctx, "owner", "aunt")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, m.PatientsAccess)
	idx, err := f.Index.Get(ctx, "aunt")
	require.NoError(t, err)
	assert.Equal(t, "owner", idx.OwnerID)
	assertConsistent(t, f, "owner", "aunt")
}

func TestRemoveMember_GrantBeforeDeleteIsRemovedToo(t *testing.T) {
	f := testutil.NewFixture()
	ctx := context.Background()
	f.AddPatient(t, "owner", "p1", "p1")
	f.AddPatient(t, "owner", "p2", "p2")
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p1"}, nil)

	granter := newService(f)
	members := &interleavedMembers{MemberRepository: f.Members}
	members.beforeDelete = func() {
		_, err := granter.GrantAccess(ctx, "owner", "aunt", []string{"p2"}, Grant{})
		require.NoError(t, err)
	}
	remover := NewService(members, f.Index, f.Patients, logger.Nop(), metrics.Discard())

	res, err := remover.RemoveMember(ctx, "owner", "aunt")
	require.NoError(t, err)
	assert.True(t, res.MemberDeleted)
	assert.ElementsMatch(t, []string{"p1", "p2"}, res.Removed)
	assert.Zero(t, countDocs(t, f, "owner"))
}

func TestConcurrentGrantRevokeReconcileConverge(t *testing.T) {
	f := testutil.NewFixture()
	ctx := context.Background()
	patients := []string{"p0", "p1", "p2", "p3", "p4"}
	for _, pid := range patients {
		f.AddPatient(t, "owner", pid, pid)
	}
	f.AddMember(t, "owner", "aunt", model.RoleCaregiver, []string{"p0"}, nil)
	f.AddMember(t, "owner", "uncle", model.RoleViewer, []string{"p0"}, nil)
	svc := newService(f)

	// Conflicts that outlast the retry budget are expected under this much
	// contention; anything else is a bug.
	var mu sync.Mutex
	var unexpected []error
	check := func(err error) {
		if err == nil || stderrors.Is(err, repository.ErrConflict) {
			return
		}
		mu.Lock()
		unexpected = append(unexpected, err)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for _, member := range []string{"aunt", "uncle"} {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(member string, i int) {
				defer wg.Done()
				for j := 0; j < 10; j++ {
					pid := patients[1+(i+j)%4]
					if (i+j)%2 == 0 {
						_, err := svc.GrantAccess(ctx, "owner", member, []string{pid}, Grant{})
						check(err)
						continue
					}
					_, err := svc.RevokeAccess(ctx, "owner", member, []string{pid})
					check(err)
				}
			}(member, i)
		}
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 10; j++ {
			_, err := svc.Reconcile(ctx, "owner")
			check(err)
		}
	}()
	wg.Wait()
	require.Empty(t, unexpected, fmt.Sprint(unexpected))

	report, err := svc.Reconcile(ctx, "owner")
	require.NoError(t, err)
	assert.Zero(t, report.Failed)

	for _, member := range []string{"aunt", "uncle"} {
		m, err := f.Members.Get(ctx, "owner", member)
		require.NoError(t, err, "p0 is never revoked")
		assert.Contains(t, m.PatientsAccess, "p0")
		assertConsistent(t, f, "owner", member)
	}

	report, err = svc.Reconcile(ctx, "owner")
	require.NoError(t, err)
	assert.Zero(t, report.Created+report.Removed+report.Failed)
}
