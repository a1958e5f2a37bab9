package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

const maxProfileWriteAttempts = 5

type profileRepository struct {
	BaseRepository
}

func NewProfileRepository(base BaseRepository) repository.ProfileRepository {
	return &profileRepository{base}
}

func (r *profileRepository) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	var p model.UserProfile
	version, err := r.get(ctx, userPath(userID), &p)
	if err != nil {
		return nil, err
	}
	p.Version = version
	p.UserID = userID
	return &p, nil
}

func (r *profileRepository) Put(ctx context.Context, profile *model.UserProfile) error {
	if err := r.store.Set(ctx, userPath(profile.UserID), profile); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// SetDefaultMode is a read-modify-write of the preferences block, retried on version conflicts.
func (r *profileRepository) SetDefaultMode(ctx context.Context, userID, mode string) error {
	for attempt := 0; attempt < maxProfileWriteAttempts; attempt++ {
		p, err := r.Get(ctx, userID)
		if errors.Is(err, docstore.ErrNotFound) {
			p = &model.UserProfile{UserID: userID, Preferences: model.UserPreferences{DefaultMode: mode}, UpdatedAt: time.Now().UTC()}
			err = r.store.Create(ctx, userPath(userID), p)
			if errors.Is(err, docstore.ErrAlreadyExists) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to create profile: %w", err)
			}
			return nil
		}
		if err != nil {
			return err
		}

		p.Preferences.DefaultMode = mode
		p.UpdatedAt = time.Now().UTC()
		err = r.store.Update(ctx, userPath(userID), p, p.Version)
		if errors.Is(err, docstore.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		return nil
	}
	return fmt.Errorf("failed to update profile of %s: %w", userID, docstore.ErrConflict)
}
