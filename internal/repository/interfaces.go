package repository

import (
	"context"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

// Sentinel errors shared by every implementation.
var (
	ErrNotFound      = docstore.ErrNotFound
	ErrConflict      = docstore.ErrConflict
	ErrAlreadyExists = docstore.ErrAlreadyExists
)

// All repository interfaces in one file
type (
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, ownerID, patientID string) (*model.Patient, error)
		// Find locates a patient by id in any family.
		Find(ctx context.Context, patientID string) (*model.Patient, error)
		List(ctx context.Context, ownerID string) ([]*model.Patient, error)
	}

	// MemberRepository manages both views of a membership.
	MemberRepository interface {
		Get(ctx context.Context, ownerID, memberID string) (*model.FamilyMember, error)
		List(ctx context.Context, ownerID string) ([]*model.FamilyMember, error)
		// ListByPatient searches every family for accepted members with access to patientID.
		ListByPatient(ctx context.Context, patientID string) ([]*model.FamilyMember, error)
		ListOwners(ctx context.Context) ([]string, error)
		Create(ctx context.Context, member *model.FamilyMember) error
		// Update writes member only if it is unchanged since it was read.
		Update(ctx context.Context, member *model.FamilyMember) error
		// Delete removes the account-level record and the reverse index entry
		// together, only if the record is still at member.Version.
		Delete(ctx context.Context, member *model.FamilyMember) error

		GetPatientMember(ctx context.Context, ownerID, patientID, memberID string) (*model.PatientMember, error)
		ListPatientMembers(ctx context.Context, ownerID, patientID string) ([]*model.PatientMember, error)
		ListPatientRecordsOf(ctx context.Context, ownerID, memberID string) ([]*model.PatientMember, error)
		ListPatientRecordsByOwner(ctx context.Context, ownerID string) ([]*model.PatientMember, error)
		PutPatientMember(ctx context.Context, pm *model.PatientMember) error
		// CreatePatientMember fails with ErrAlreadyExists when the record exists.
		CreatePatientMember(ctx context.Context, pm *model.PatientMember) error
		DeletePatientMember(ctx context.Context, ownerID, patientID, memberID string) error
		// DeletePatientMemberIf removes pm only if it is unchanged since it was read.
		DeletePatientMemberIf(ctx context.Context, pm *model.PatientMember) error
	}

	MembershipIndexRepository interface {
		Get(ctx context.Context, memberID string) (*model.MembershipIndex, error)
		Put(ctx context.Context, idx *model.MembershipIndex) error
	}

	InvitationRepository interface {
		Create(ctx context.Context, inv *model.Invitation) error
		Get(ctx context.Context, id string) (*model.Invitation, error)
		Update(ctx context.Context, inv *model.Invitation) error
		ListByOwner(ctx context.Context, ownerID string) ([]*model.Invitation, error)
		ListByEmail(ctx context.Context, email string) ([]*model.Invitation, error)
		ListPending(ctx context.Context) ([]*model.Invitation, error)
		// Accept commits the invitation transition, the account-level record and the reverse index atomically.
		Accept(ctx context.Context, inv *model.Invitation, member *model.FamilyMember, idx *model.MembershipIndex) error
	}

	ProfileRepository interface {
		Get(ctx context.Context, userID string) (*model.UserProfile, error)
		Put(ctx context.Context, profile *model.UserProfile) error
		SetDefaultMode(ctx context.Context, userID, mode string) error
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, ownerID string) ([]*model.AuditLog, error)
	}
)
