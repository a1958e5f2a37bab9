// Package document implements the repositories on top of a docstore.Store.
package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

// Collection and path layout.
const (
	usersCollection         = "users"
	patientsCollection      = "patients"
	familyMembersCollection = "familyMembers"
	patientMembersColl      = "patientMembers"
	membershipsCollection   = "memberships"
	invitationsCollection   = "invitations"
	auditLogsCollection     = "auditLogs"
)

func userPath(userID string) string {
	return docstore.Join(usersCollection, userID)
}

func patientsPath(ownerID string) string {
	return docstore.Join(usersCollection, ownerID, patientsCollection)
}

func patientPath(ownerID, patientID string) string {
	return docstore.Join(patientsPath(ownerID), patientID)
}

func membersPath(ownerID string) string {
	return docstore.Join(usersCollection, ownerID, familyMembersCollection)
}

func memberPath(ownerID, memberID string) string {
	return docstore.Join(membersPath(ownerID), memberID)
}

func patientMembersPath(ownerID, patientID string) string {
	return docstore.Join(patientPath(ownerID, patientID), patientMembersColl)
}

func patientMemberPath(ownerID, patientID, memberID string) string {
	return docstore.Join(patientMembersPath(ownerID, patientID), memberID)
}

func indexPath(memberID string) string {
	return docstore.Join(membershipsCollection, memberID)
}

func invitationPath(id string) string {
	return docstore.Join(invitationsCollection, id)
}

func auditPath(id string) string {
	return docstore.Join(auditLogsCollection, id)
}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	store docstore.Store
}

func NewBaseRepository(store docstore.Store) BaseRepository {
	return BaseRepository{store: store}
}

func (r *BaseRepository) Store() docstore.Store {
	return r.store
}

func decode[T any](doc *docstore.Document) (*T, error) {
	var v T
	if err := doc.DataTo(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *BaseRepository) get(ctx context.Context, path string, v interface{}) (int64, error) {
	doc, err := r.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to get %s: %w", path, err)
	}
	if err := doc.DataTo(v); err != nil {
		return 0, err
	}
	return doc.Version, nil
}
