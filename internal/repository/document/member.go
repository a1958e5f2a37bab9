package document

import (
	"context"
	"fmt"
	"sort"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

type memberRepository struct {
	BaseRepository
}

func NewMemberRepository(base BaseRepository) repository.MemberRepository {
	return &memberRepository{base}
}

func (r *memberRepository) Get(ctx context.Context, ownerID, memberID string) (*model.FamilyMember, error) {
	var m model.FamilyMember
	version, err := r.get(ctx, memberPath(ownerID, memberID), &m)
	if err != nil {
		return nil, err
	}
	m.Version = version
	m.UserID = memberID
	m.OwnerID = ownerID
	return &m, nil
}

func (r *memberRepository) decodeMembers(docs []*docstore.Document) ([]*model.FamilyMember, error) {
	members := make([]*model.FamilyMember, 0, len(docs))
	for _, doc := range docs {
		m, err := decode[model.FamilyMember](doc)
		if err != nil {
			return nil, err
		}
		m.Version = doc.Version
		m.UserID = doc.ID()
		_, _, m.OwnerID = docstore.Split(doc.ParentDoc())
		members = append(members, m)
	}
	return members, nil
}

func (r *memberRepository) List(ctx context.Context, ownerID string) ([]*model.FamilyMember, error) {
	docs, err := r.store.Query(ctx, membersPath(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list family members: %w", err)
	}
	return r.decodeMembers(docs)
}

func (r *memberRepository) ListByPatient(ctx context.Context, patientID string) ([]*model.FamilyMember, error) {
	docs, err := r.store.CollectionGroup(ctx, familyMembersCollection,
		docstore.Where("patientsAccess", docstore.OpArrayContains, patientID),
		docstore.Where("status", docstore.OpEqual, string(model.MemberStatusAccepted)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query members by patient: %w", err)
	}
	return r.decodeMembers(docs)
}

func (r *memberRepository) ListOwners(ctx context.Context) ([]string, error) {
	docs, err := r.store.CollectionGroup(ctx, familyMembersCollection)
	if err != nil {
		return nil, fmt.Errorf("failed to list family owners: %w", err)
	}

	seen := make(map[string]struct{})
	var owners []string
	for _, doc := range docs {
		_, _, ownerID := docstore.Split(doc.ParentDoc())
		if _, ok := seen[ownerID]; ok {
			continue
		}
		seen[ownerID] = struct{}{}
		owners = append(owners, ownerID)
	}
	sort.Strings(owners)
	return owners, nil
}

func (r *memberRepository) Create(ctx context.Context, member *model.FamilyMember) error {
	if err := r.store.Create(ctx, memberPath(member.OwnerID, member.UserID), member); err != nil {
		return fmt.Errorf("failed to create family member: %w", err)
	}
	member.Version = 1
	return nil
}

func (r *memberRepository) Update(ctx context.Context, member *model.FamilyMember) error {
	if err := r.store.Update(ctx, memberPath(member.OwnerID, member.UserID), member, member.Version); err != nil {
		return fmt.Errorf("failed to update family member: %w", err)
	}
	member.Version++
	return nil
}

func (r *memberRepository) Delete(ctx context.Context, member *model.FamilyMember) error {
	err := r.store.Batch().
		DeleteIf(memberPath(member.OwnerID, member.UserID), member.Version).
		Delete(indexPath(member.UserID)).
		Commit(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete family member: %w", err)
	}
	return nil
}

func (r *memberRepository) GetPatientMember(ctx context.Context, ownerID, patientID, memberID string) (*model.PatientMember, error) {
	var pm model.PatientMember
	version, err := r.get(ctx, patientMemberPath(ownerID, patientID, memberID), &pm)
	if err != nil {
		return nil, err
	}
	pm.Version = version
	return &pm, nil
}

func (r *memberRepository) decodePatientMembers(docs []*docstore.Document) ([]*model.PatientMember, error) {
	out := make([]*model.PatientMember, 0, len(docs))
	for _, doc := range docs {
		pm, err := decode[model.PatientMember](doc)
		if err != nil {
			return nil, err
		}
		pm.Version = doc.Version
		out = append(out, pm)
	}
	return out, nil
}

func (r *memberRepository) ListPatientMembers(ctx context.Context, ownerID, patientID string) ([]*model.PatientMember, error) {
	docs, err := r.store.Query(ctx, patientMembersPath(ownerID, patientID))
	if err != nil {
		return nil, fmt.Errorf("failed to list patient members: %w", err)
	}
	return r.decodePatientMembers(docs)
}

func (r *memberRepository) ListPatientRecordsOf(ctx context.Context, ownerID, memberID string) ([]*model.PatientMember, error) {
	docs, err := r.store.CollectionGroup(ctx, patientMembersColl,
		docstore.Where("userId", docstore.OpEqual, memberID),
		docstore.Where("ownerId", docstore.OpEqual, ownerID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list patient records of member: %w", err)
	}
	return r.decodePatientMembers(docs)
}

func (r *memberRepository) ListPatientRecordsByOwner(ctx context.Context, ownerID string) ([]*model.PatientMember, error) {
	docs, err := r.store.CollectionGroup(ctx, patientMembersColl, docstore.Where("ownerId", docstore.OpEqual, ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list patient records of family: %w", err)
	}
	return r.decodePatientMembers(docs)
}

func (r *memberRepository) PutPatientMember(ctx context.Context, pm *model.PatientMember) error {
	if err := r.store.Set(ctx, patientMemberPath(pm.OwnerID, pm.PatientID, pm.UserID), pm); err != nil {
		return fmt.Errorf("failed to write patient member: %w", err)
	}
	return nil
}

func (r *memberRepository) CreatePatientMember(ctx context.Context, pm *model.PatientMember) error {
	if err := r.store.Create(ctx, patientMemberPath(pm.OwnerID, pm.PatientID, pm.UserID), pm); err != nil {
		return fmt.Errorf("failed to create patient member: %w", err)
	}
	return nil
}

func (r *memberRepository) DeletePatientMember(ctx context.Context, ownerID, patientID, memberID string) error {
	if err := r.store.Delete(ctx, patientMemberPath(ownerID, patientID, memberID)); err != nil {
		return fmt.Errorf("failed to delete patient member: %w", err)
	}
	return nil
}

func (r *memberRepository) DeletePatientMemberIf(ctx context.Context, pm *model.PatientMember) error {
	if err := r.store.DeleteIf(ctx, patientMemberPath(pm.OwnerID, pm.PatientID, pm.UserID), pm.Version); err != nil {
		return fmt.Errorf("failed to delete patient member: %w", err)
	}
	return nil
}
