package invitation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/access"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/membership"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/testutil"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/metrics"
)

type harness struct {
	f        *testutil.Fixture
	svc      *Service
	guard    *access.Guard
	auditor  *testutil.Auditor
	notifier *testutil.Notifier
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	f := testutil.NewFixture()
	m := metrics.Discard()
	guard := access.NewGuard(f.Members, f.Index, f.Patients, time.Minute, logger.Nop(), m)
	repl := membership.NewService(f.Members, f.Index, f.Patients, logger.Nop(), m, membership.WithInvalidator(guard))
	h := &harness{f: f, guard: guard, auditor: &testutil.Auditor{}, notifier: &testutil.Notifier{}}
	h.svc = NewService(cfg, Deps{
		Invitations: f.Invitations,
		Members:     f.Members,
		Index:       f.Index,
		Patients:    f.Patients,
		Profiles:    f.Profiles,
		Guard:       guard,
		Replicator:  repl,
		Auditor:     h.auditor,
		Notifier:    h.notifier,
		Logger:      logger.Nop(),
		Metrics:     m,
	})

	f.AddPatient(t, "owner", "kiddo", "Kiddo")
	f.AddPatient(t, "owner", "grandpa", "Grandpa")
	f.AddProfile(t, &model.UserProfile{UserID: "owner", Name: "Olivia", Email: "owner@example.com"})
	return h
}

func user(id string) *model.Principal {
	return &model.Principal{UserID: id, Email: id + "@example.com"}
}

func (h *harness) issue(t *testing.T, actor *model.Principal, email string, role model.FamilyRole, patients ...string) *model.Invitation {
	t.Helper()
	inv, err := h.svc.Issue(context.Background(), actor, IssueRequest{
		RecipientEmail: email,
		RecipientName:  "Aunt May",
		Role:           role,
		PatientIDs:     patients,
	})
	require.NoError(t, err)
	return inv
}

func TestInviteAndAccept(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	inv := h.issue(t, user("owner"), " Aunt@Example.com ", model.RoleCaregiver, "kiddo")
	assert.Equal(t, "aunt@example.com", inv.RecipientEmail)
	assert.Equal(t, model.InvitationPending, inv.Status)
	assert.Equal(t, "owner", inv.OwnerID)
	assert.WithinDuration(t, inv.CreatedAt.Add(DefaultTTL), inv.ExpiresAt, time.Second)

	res, err := h.svc.Accept(ctx, inv.ID, user("aunt"))
	require.NoError(t, err)
	assert.Equal(t, model.InvitationAccepted, res.Invitation.Status)
	assert.Equal(t, []string{"kiddo"}, res.Replicated.Added)
	assert.Equal(t, "Aunt May", res.Member.Name)

	stored, err := h.f.Invitations.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationAccepted, stored.Status)
	assert.Equal(t, "aunt", stored.AcceptedBy)

	idx, err := h.f.Index.Get(ctx, "aunt")
	require.NoError(t, err)
	assert.Equal(t, "owner", idx.OwnerID)

	pm, err := h.f.Members.GetPatientMember(ctx, "owner", "kiddo", "aunt")
	require.NoError(t, err)
	assert.Equal(t, model.RoleCaregiver, pm.FamilyRole)

	profile, err := h.f.Profiles.Get(ctx, "aunt")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultModeCaregiver, profile.Preferences.DefaultMode)

	_, err = h.guard.Authorize(ctx, user("aunt"), "kiddo", model.CapLogVitals)
	assert.NoError(t, err)
	_, err = h.guard.Authorize(ctx, user("aunt"), "grandpa", model.CapViewVitals)
	assert.True(t, errors.HasReason(err, errors.ReasonInsufficientCapability))

	assert.Equal(t, []string{model.AuditActionInvitationIssued, model.AuditActionInvitationAccepted}, h.auditor.Actions())
	assert.Equal(t, []model.NotificationEvent{model.EventInvitationSent, model.EventInvitationAccepted}, h.notifier.Events())
	assert.Equal(t, "owner", h.notifier.Notices[1].Recipients[0].UserID)
	assert.Equal(t, "Olivia", h.notifier.Notices[0].Metadata["inviterName"])
}

func TestAccept_Twice(t *testing.T) {
	h := newHarness(t, Config{})
	inv := h.issue(t, user("owner"), "aunt@example.com", model.RoleViewer, "kiddo")

	_, err := h.svc.Accept(context.Background(), inv.ID, user("aunt"))
	require.NoError(t, err)

	_, err = h.svc.Accept(context.Background(), inv.ID, user("aunt"))
	assert.True(t, errors.HasReason(err, errors.ReasonAlreadyResolved))
}

func TestAccept_Rejections(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	inv := h.issue(t, user("owner"), "aunt@example.com", model.RoleViewer, "kiddo")

	_, err := h.svc.Accept(ctx, "missing", user("aunt"))
	assert.True(t, errors.HasReason(err, errors.ReasonInvitationNotFound))

	_, err = h.svc.Accept(ctx, inv.ID, user("mallory"))
	assert.True(t, errors.HasReason(err, errors.ReasonNotTargetOfInvitation))

	_, err = h.svc.Accept(ctx, inv.ID, nil)
	assert.True(t, errors.IsCode(err, errors.ErrUnauthorized))

	// Nothing was written for the failed attempts.
	_, err = h.f.Index.Get(ctx, "mallory")
	assert.Error(t, err)
}

func TestAccept_Expired(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	inv := h.issue(t, user("owner"), "aunt@example.com", model.RoleViewer, "kiddo")

	h.svc.nowFn = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := h.svc.Accept(context.Background(), inv.ID, user("aunt"))
	assert.True(t, errors.IsCode(err, errors.ErrExpired))

	stored, err := h.f.Invitations.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationExpired, stored.Status)
}

func TestAccept_MemberOfAnotherFamily(t *testing.T) {
	h := newHarness(t, Config{})
	h.f.AddPatient(t, "other", "o1", "Other")
	h.f.AddMember(t, "other", "aunt", model.RoleViewer, []string{"o1"}, nil)

	inv := h.issue(t, user("owner"), "aunt@example.com", model.RoleViewer, "kiddo")
	_, err := h.svc.Accept(context.Background(), inv.ID, user("aunt"))
	assert.True(t, errors.HasReason(err, errors.ReasonAlreadyAMember))
}

func TestIssue_Validation(t *testing.T) {
	h := newHarness(t, Config{})
	h.f.AddMember(t, "owner", "co", model.RoleCoAdmin, []string{"kiddo"}, nil)
	h.f.AddMember(t, "owner", "viewer", model.RoleViewer, []string{"kiddo"}, nil)
	ctx := context.Background()

	tests := []struct {
		name       string
		actor      *model.Principal
		req        IssueRequest
		wantCode   errors.ErrorCode
		wantReason errors.Reason
	}{
		{
			name:     "self invite",
			actor:    user("owner"),
			req:      IssueRequest{RecipientEmail: "OWNER@example.com", Role: model.RoleViewer, PatientIDs: []string{"kiddo"}},
			wantCode: errors.ErrBadRequest,
		},
		{
			name:       "unknown patient",
			actor:      user("owner"),
			req:        IssueRequest{RecipientEmail: "x@example.com", Role: model.RoleViewer, PatientIDs: []string{"nobody"}},
			wantReason: errors.ReasonPatientNotFound,
		},
		{
			name:     "override for uninvited patient",
			actor:    user("owner"),
			req:      IssueRequest{RecipientEmail: "x@example.com", Role: model.RoleViewer, PatientIDs: []string{"kiddo"}, PatientPermissions: map[string]*model.Permissions{"grandpa": {}}},
			wantCode: errors.ErrBadRequest,
		},
		{
			name:       "unknown role",
			actor:      user("owner"),
			req:        IssueRequest{RecipientEmail: "x@example.com", Role: "boss", PatientIDs: []string{"kiddo"}},
			wantReason: errors.ReasonUnknownRole,
		},
		{
			name:       "owner cannot hand out ownership",
			actor:      user("owner"),
			req:        IssueRequest{RecipientEmail: "x@example.com", Role: model.RoleAccountOwner, PatientIDs: []string{"kiddo"}},
			wantReason: errors.ReasonCannotElevateBeyond,
		},
		{
			name:       "co-admin cannot create co-admins",
			actor:      user("co"),
			req:        IssueRequest{RecipientEmail: "x@example.com", Role: model.RoleCoAdmin, PatientIDs: []string{"kiddo"}},
			wantReason: errors.ReasonCannotElevateBeyond,
		},
		{
			name:       "co-admin limited to own patients",
			actor:      user("co"),
			req:        IssueRequest{RecipientEmail: "x@example.com", Role: model.RoleViewer, PatientIDs: []string{"grandpa"}},
			wantReason: errors.ReasonInsufficientCapability,
		},
		{
			name:       "viewer cannot invite",
			actor:      user("viewer"),
			req:        IssueRequest{RecipientEmail: "x@example.com", Role: model.RoleViewer, PatientIDs: []string{"kiddo"}},
			wantReason: errors.ReasonInsufficientAuthority,
		},
		{
			name:       "already a member",
			actor:      user("owner"),
			req:        IssueRequest{RecipientEmail: "co@example.com", Role: model.RoleViewer, PatientIDs: []string{"kiddo"}},
			wantReason: errors.ReasonAlreadyAMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Issue(ctx, tt.actor, tt.req)
			require.Error(t, err)
			if tt.wantCode != 0 {
				assert.True(t, errors.IsCode(err, tt.wantCode), "got %v", err)
			}
			if tt.wantReason != "" {
				assert.True(t, errors.HasReason(err, tt.wantReason), "got %v", err)
			}
		})
	}

	inv, err := h.svc.Issue(ctx, user("co"), IssueRequest{RecipientEmail: "x@example.com", Role: model.RoleCaregiver, PatientIDs: []string{"kiddo", "kiddo"}})
	require.NoError(t, err)
	assert.Equal(t, "owner", inv.OwnerID)
	assert.Equal(t, "co", inv.InvitedBy)
	assert.Equal(t, []string{"kiddo"}, inv.PatientIDs)
}

func TestIssue_InviterDefaultsAsFull(t *testing.T) {
	h := newHarness(t, Config{InviterDefaultsAsFull: true})
	inv := h.issue(t, user("owner"), "aunt@example.com", model.RoleViewer, "kiddo")

	require.NotNil(t, inv.Permissions)
	v, ok := inv.Permissions.Get(model.CapViewVitals)
	assert.True(t, ok)
	assert.True(t, v)
	v, ok = inv.Permissions.Get(model.CapLogVitals)
	assert.True(t, ok)
	assert.False(t, v)
}

func TestDeclineAndRevoke(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	inv := h.issue(t, user("owner"), "aunt@example.com", model.RoleViewer, "kiddo")
	declined, err := h.svc.Decline(ctx, inv.ID, user("aunt"))
	require.NoError(t, err)
	assert.Equal(t, model.InvitationDeclined, declined.Status)
	assert.NotNil(t, declined.DeclinedAt)

	_, err = h.svc.Accept(ctx, inv.ID, user("aunt"))
	assert.True(t, errors.HasReason(err, errors.ReasonAlreadyResolved))

	inv = h.issue(t, user("owner"), "uncle@example.com", model.RoleViewer, "kiddo")
	_, err = h.svc.Revoke(ctx, user("stranger"), inv.ID)
	assert.True(t, errors.HasReason(err, errors.ReasonInsufficientAuthority))

	revoked, err := h.svc.Revoke(ctx, user("owner"), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationDeclined, revoked.Status)
	assert.Equal(t, "owner", revoked.RevokedBy)

	_, err = h.svc.Revoke(ctx, user("owner"), inv.ID)
	assert.True(t, errors.HasReason(err, errors.ReasonAlreadyResolved))

	assert.Contains(t, h.auditor.Actions(), model.AuditActionInvitationRevoked)
	assert.Contains(t, h.notifier.Events(), model.EventInvitationDeclined)
}

func TestListingAndExpiry(t *testing.T) {
	h := newHarness(t, Config{TTL: time.Hour})
	ctx := context.Background()
	h.f.AddMember(t, "owner", "viewer", model.RoleViewer, []string{"kiddo"}, nil)

	first := h.issue(t, user("owner"), "aunt@example.com", model.RoleViewer, "kiddo")
	h.svc.nowFn = func() time.Time { return time.Now().Add(30 * time.Minute) }
	second := h.issue(t, user("owner"), "uncle@example.com", model.RoleViewer, "kiddo")

	invs, err := h.svc.ListForOwner(ctx, user("owner"), "")
	require.NoError(t, err)
	require.Len(t, invs, 2)
	assert.Equal(t, second.ID, invs[0].ID)

	_, err = h.svc.ListForOwner(ctx, user("viewer"), "")
	assert.True(t, errors.HasReason(err, errors.ReasonInsufficientAuthority))

	mine, err := h.svc.ListForRecipient(ctx, user("aunt"))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	// Only the first one is past its deadline 70 minutes in.
	h.svc.nowFn = func() time.Time { return time.Now().Add(70 * time.Minute) }
	n, err := h.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := h.f.Invitations.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvitationExpired, stored.Status)

	n, err = h.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
