package document

import (
	"context"
	"fmt"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	if err := r.store.Create(ctx, patientPath(patient.OwnerID, patient.ID), patient); err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, ownerID, patientID string) (*model.Patient, error) {
	var p model.Patient
	if _, err := r.get(ctx, patientPath(ownerID, patientID), &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = patientID
	}
	if p.OwnerID == "" {
		p.OwnerID = ownerID
	}
	return &p, nil
}

func (r *patientRepository) Find(ctx context.Context, patientID string) (*model.Patient, error) {
	docs, err := r.store.CollectionGroup(ctx, patientsCollection, docstore.Where("id", docstore.OpEqual, patientID))
	if err != nil {
		return nil, fmt.Errorf("failed to find patient: %w", err)
	}
	if len(docs) == 0 {
		return nil, repository.ErrNotFound
	}
	p, err := decode[model.Patient](docs[0])
	if err != nil {
		return nil, err
	}
	_, _, p.OwnerID = docstore.Split(docs[0].ParentDoc())
	return p, nil
}

func (r *patientRepository) List(ctx context.Context, ownerID string) ([]*model.Patient, error) {
	docs, err := r.store.Query(ctx, patientsPath(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	patients := make([]*model.Patient, 0, len(docs))
	for _, doc := range docs {
		p, err := decode[model.Patient](doc)
		if err != nil {
			return nil, err
		}
		if p.ID == "" {
			p.ID = doc.ID()
		}
		p.OwnerID = ownerID
		patients = append(patients, p)
	}
	return patients, nil
}
