package document

import (
	"context"
	"fmt"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/repository"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

type invitationRepository struct {
	BaseRepository
}

func NewInvitationRepository(base BaseRepository) repository.InvitationRepository {
	return &invitationRepository{base}
}

func (r *invitationRepository) Create(ctx context.Context, inv *model.Invitation) error {
	if err := r.store.Create(ctx, invitationPath(inv.ID), inv); err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	inv.Version = 1
	return nil
}

func (r *invitationRepository) Get(ctx context.Context, id string) (*model.Invitation, error) {
	var inv model.Invitation
	version, err := r.get(ctx, invitationPath(id), &inv)
	if err != nil {
		return nil, err
	}
	inv.Version = version
	inv.ID = id
	return &inv, nil
}

func (r *invitationRepository) Update(ctx context.Context, inv *model.Invitation) error {
	if err := r.store.Update(ctx, invitationPath(inv.ID), inv, inv.Version); err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	inv.Version++
	return nil
}

func (r *invitationRepository) list(ctx context.Context, filters ...docstore.Filter) ([]*model.Invitation, error) {
	docs, err := r.store.Query(ctx, invitationsCollection, filters...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	out := make([]*model.Invitation, 0, len(docs))
	for _, doc := range docs {
		inv, err := decode[model.Invitation](doc)
		if err != nil {
			return nil, err
		}
		inv.Version = doc.Version
		inv.ID = doc.ID()
		out = append(out, inv)
	}
	return out, nil
}

func (r *invitationRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Invitation, error) {
	return r.list(ctx, docstore.Where("ownerId", docstore.OpEqual, ownerID))
}

func (r *invitationRepository) ListByEmail(ctx context.Context, email string) ([]*model.Invitation, error) {
	return r.list(ctx, docstore.Where("recipientEmail", docstore.OpEqual, model.NormalizeEmail(email)))
}

func (r *invitationRepository) ListPending(ctx context.Context) ([]*model.Invitation, error) {
	return r.list(ctx, docstore.Where("status", docstore.OpEqual, string(model.InvitationPending)))
}

func (r *invitationRepository) Accept(ctx context.Context, inv *model.Invitation, member *model.FamilyMember, idx *model.MembershipIndex) error {
	b := r.store.Batch().Update(invitationPath(inv.ID), inv, inv.Version)
	if member.Version == 0 {
		b = b.Create(memberPath(member.OwnerID, member.UserID), member)
	} else {
		b = b.Update(memberPath(member.OwnerID, member.UserID), member, member.Version)
	}
	b = b.Set(indexPath(idx.MemberUserID), idx)

	if err := b.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}
	inv.Version++
	member.Version++
	return nil
}
