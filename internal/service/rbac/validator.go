package rbac

import (
	"fmt"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/errors"
)

// ValidateRoleAssignment decides whether actor may move a target from current to requested.
func ValidateRoleAssignment(actor, current, requested model.FamilyRole) error {
	for _, r := range []model.FamilyRole{actor, current, requested} {
		if !r.Valid() {
			return errors.UnknownRole(string(r))
		}
	}

	if !actor.AtLeast(model.RoleCoAdmin) {
		return errors.InsufficientAuthority(fmt.Sprintf("%s cannot change roles", actor))
	}
	if current == model.RoleAccountOwner {
		return errors.Forbidden(errors.ReasonCannotModifyOwner, "the account owner's role cannot be changed")
	}
	if !actor.Outranks(current) {
		return errors.InsufficientAuthority(fmt.Sprintf("%s cannot change the role of a %s", actor, current))
	}
	if !actor.Outranks(requested) {
		return errors.Forbidden(errors.ReasonCannotElevateBeyond, fmt.Sprintf("%s cannot assign %s", actor, requested))
	}
	return nil
}

// CanManage reports whether actor may administer a member holding target.
func CanManage(actor, target model.FamilyRole) bool {
	return actor.AtLeast(model.RoleCoAdmin) && actor.Outranks(target)
}
