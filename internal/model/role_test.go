package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFamilyRoleOrdering(t *testing.T) {
	assert.True(t, RoleAccountOwner.Outranks(RoleCoAdmin))
	assert.True(t, RoleCoAdmin.Outranks(RoleCaregiver))
	assert.True(t, RoleCaregiver.Outranks(RoleViewer))
	assert.False(t, RoleCoAdmin.Outranks(RoleCoAdmin))
	assert.False(t, RoleViewer.Outranks(RoleCaregiver))

	assert.True(t, RoleCoAdmin.AtLeast(RoleCoAdmin))
	assert.False(t, RoleCaregiver.AtLeast(RoleCoAdmin))
	assert.False(t, FamilyRole("boss").AtLeast(RoleViewer))
	assert.False(t, FamilyRole("boss").Valid())
}

func TestPermissionsOverrides(t *testing.T) {
	var p *Permissions
	assert.True(t, p.IsEmpty())

	p = &Permissions{}
	p.Set(CapViewBilling, true)
	v, ok := p.Get(CapViewBilling)
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = p.Get(CapChatAccess)
	assert.False(t, ok)
	assert.False(t, p.IsEmpty())
}
