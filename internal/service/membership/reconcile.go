package membership

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/service/audit"
)

// ReconcilerID marks records written by the reconciler.
const ReconcilerID = "reconciler"

type ItemResult string

const (
	ItemCreated ItemResult = "created"
	ItemOK      ItemResult = "ok"
	ItemRemoved ItemResult = "removed"
	ItemFailed  ItemResult = "failed"
)

type ItemKind string

const (
	KindPatientRecord   ItemKind = "patient_record"
	KindMembershipIndex ItemKind = "membership_index"
)

type ReconcileItem struct {
	Kind      ItemKind   `json:"kind"`
	MemberID  string     `json:"memberId"`
	PatientID string     `json:"patientId,omitempty"`
	Result    ItemResult `json:"result"`
	Error     string     `json:"error,omitempty"`
}

type ReconcileReport struct {
	OwnerID string          `json:"ownerId"`
	Items   []ReconcileItem `json:"items"`
	Created int             `json:"created"`
	OK      int             `json:"ok"`
	Removed int             `json:"removed"`
	Failed  int             `json:"failed"`
	// Error is set when the family could not be scanned at all.
	Error string `json:"error,omitempty"`
}

func (r *ReconcileReport) add(item ReconcileItem) {
	r.Items = append(r.Items, item)
	switch item.Result {
	case ItemCreated:
		r.Created++
	case ItemOK:
		r.OK++
	case ItemRemoved:
		r.Removed++
	case ItemFailed:
		r.Failed++
	}
}

func recordKey(memberID, patientID string) string {
	return memberID + "/" + patientID
}

// Reconcile brings the patient-level records and the reverse index of one
// family in line with its account-level records. It is idempotent and keeps
// going past individual failures.
func (s *Service) Reconcile(ctx context.Context, ownerID string) (*ReconcileReport, error) {
	start := s.nowFn()
	defer func() {
		s.metrics.ReconcileDuration.Observe(s.nowFn().Sub(start).Seconds())
	}()

	members, err := s.members.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile family %s: %w", ownerID, err)
	}
	records, err := s.members.ListPatientRecordsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile family %s: %w", ownerID, err)
	}

	existing := make(map[string]*model.PatientMember, len(records))
	for _, pm := range records {
		existing[recordKey(pm.UserID, pm.PatientID)] = pm
	}

	report := &ReconcileReport{OwnerID: ownerID, Items: []ReconcileItem{}}
	expected := make(map[string]struct{})

	for _, m := range members {
		if m.OwnerID == "" {
			m.OwnerID = ownerID
		}
		if m.Status != model.MemberStatusAccepted {
			continue
		}

		report.add(s.reconcileIndex(ctx, m))

		for _, pid := range m.PatientsAccess {
			key := recordKey(m.UserID, pid)
			expected[key] = struct{}{}
			if _, ok := existing[key]; ok {
				report.add(ReconcileItem{Kind: KindPatientRecord, MemberID: m.UserID, PatientID: pid, Result: ItemOK})
				continue
			}
			report.add(s.createMissing(ctx, m, pid))
		}
	}

	for key, pm := range existing {
		if _, ok := expected[key]; ok {
			continue
		}
		if pm.OwnerID == "" {
			pm.OwnerID = ownerID
		}
		// The member list was read before the records, so a grant committed in
		// between looks like an orphan here. dropIfOrphaned checks again.
		item := ReconcileItem{Kind: KindPatientRecord, MemberID: pm.UserID, PatientID: pm.PatientID, Result: ItemRemoved}
		kept, err := s.dropIfOrphaned(ctx, pm)
		switch {
		case err != nil:
			item.Result, item.Error = ItemFailed, err.Error()
		case kept:
			item.Result = ItemOK
		}
		report.add(item)
	}

	sort.SliceStable(report.Items, func(i, j int) bool {
		a, b := report.Items[i], report.Items[j]
		if a.MemberID != b.MemberID {
			return a.MemberID < b.MemberID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.PatientID < b.PatientID
	})

	for _, item := range report.Items {
		s.metrics.ReconcileItems.WithLabelValues(string(item.Result)).Inc()
	}
	if report.Created+report.Removed > 0 {
		s.log.Info("reconciled family", "owner_id", ownerID,
			"created", report.Created, "removed", report.Removed, "failed", report.Failed)
		s.auditReconcile(ctx, report)
	}
	return report, nil
}

func (s *Service) createMissing(ctx context.Context, m *model.FamilyMember, patientID string) ReconcileItem {
	item := ReconcileItem{Kind: KindPatientRecord, MemberID: m.UserID, PatientID: patientID, Result: ItemCreated}

	pm := s.patientRecord(m, patientID, nil)
	now := s.now()
	pm.ReconciledAt = &now
	pm.ReconciledBy = ReconcilerID

	err := s.members.CreatePatientMember(ctx, pm)
	switch {
	case err == nil:
	case stderrors.Is(err, repository.ErrAlreadyExists):
		// A concurrent writer got there first.
		item.Result = ItemOK
	default:
		item.Result, item.Error = ItemFailed, err.Error()
	}
	return item
}

func (s *Service) reconcileIndex(ctx context.Context, m *model.FamilyMember) ReconcileItem {
	item := ReconcileItem{Kind: KindMembershipIndex, MemberID: m.UserID, Result: ItemOK}

	idx, err := s.index.Get(ctx, m.UserID)
	switch {
	case err == nil:
		if idx.OwnerID != m.OwnerID {
			item.Result = ItemFailed
			item.Error = fmt.Sprintf("member is indexed under family %s", idx.OwnerID)
		}
		return item
	case !stderrors.Is(err, repository.ErrNotFound):
		item.Result, item.Error = ItemFailed, err.Error()
		return item
	}

	err = s.index.Put(ctx, &model.MembershipIndex{MemberUserID: m.UserID, OwnerID: m.OwnerID, CreatedAt: s.now()})
	if err != nil {
		item.Result, item.Error = ItemFailed, err.Error()
		return item
	}
	s.invalidate(m.UserID)
	item.Result = ItemCreated
	return item
}

func (s *Service) auditReconcile(ctx context.Context, report *ReconcileReport) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, ReconcilerID, report.OwnerID, model.AuditActionReconciled, model.AuditEntityFamily, report.OwnerID, &audit.LogOptions{
		Metadata: map[string]int{
			"created": report.Created,
			"removed": report.Removed,
			"failed":  report.Failed,
		},
	}); err != nil {
		s.log.Error(err, "failed to audit reconciliation", "owner_id", report.OwnerID)
	}
}

// ReconcileAll reconciles every family that has members, a bounded number at a time.
func (s *Service) ReconcileAll(ctx context.Context) ([]*ReconcileReport, error) {
	start := s.nowFn()
	owners, err := s.members.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover families: %w", err)
	}

	reports := make([]*ReconcileReport, len(owners))
	var mu sync.Mutex
	failures := 0

	var eg errgroup.Group
	eg.SetLimit(s.concurrency)

	for i, ownerID := range owners {
		eg.Go(func() error {
			report, err := s.Reconcile(ctx, ownerID)
			if err != nil {
				s.log.Error(err, "failed to reconcile family", "owner_id", ownerID)
				report = &ReconcileReport{OwnerID: ownerID, Items: []ReconcileItem{}, Error: err.Error()}
				mu.Lock()
				failures++
				mu.Unlock()
			}
			reports[i] = report
			return nil
		})
	}
	_ = eg.Wait()

	s.log.Info("reconciliation sweep finished", "families", len(owners), "failed_families", failures, "took", s.nowFn().Sub(start).String())
	return reports, ctx.Err()
}
