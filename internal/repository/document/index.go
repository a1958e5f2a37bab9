package document

import (
	"context"
	"fmt"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
)

type membershipIndexRepository struct {
	BaseRepository
}

func NewMembershipIndexRepository(base BaseRepository) repository.MembershipIndexRepository {
	return &membershipIndexRepository{base}
}

func (r *membershipIndexRepository) Get(ctx context.Context, memberID string) (*model.MembershipIndex, error) {
	var idx model.MembershipIndex
	if _, err := r.get(ctx, indexPath(memberID), &idx); err != nil {
		return nil, err
	}
	idx.MemberUserID = memberID
	return &idx, nil
}

func (r *membershipIndexRepository) Put(ctx context.Context, idx *model.MembershipIndex) error {
	if err := r.store.Set(ctx, indexPath(idx.MemberUserID), idx); err != nil {
		return fmt.Errorf("failed to write membership index: %w", err)
	}
	return nil
}
