package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Skotchmaster/imageiq/internal/domain"
)

func TestCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		role    domain.Role
		allowed Roles
		want    bool
	}{
		{"admin in all", domain.RoleAdmin, AllRoles, true},
		{"moderator in all", domain.RoleModerator, AllRoles, true},
		{"user in all", domain.RoleUser, AllRoles, true},
		{"admin in admin+moderator", domain.RoleAdmin, AdminModerator, true},
		{"moderator in admin+moderator", domain.RoleModerator, AdminModerator, true},
		{"user not in admin+moderator", domain.RoleUser, AdminModerator, false},
		{"admin in admin only", domain.RoleAdmin, AdminOnly, true},
		{"moderator not in admin only", domain.RoleModerator, AdminOnly, false},
		{"unknown role never allowed", domain.Role("superuser"), AllRoles, false},
		{"empty role never allowed", domain.Role(""), AllRoles, false},
		{"empty set allows nobody", domain.RoleAdmin, NewRoles(), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			id := &domain.Identity{ID: 1, Role: tt.role}
			assert.Equal(t, tt.want, Check(id, tt.allowed))
		})
	}
}

func TestCheck_NilIdentity(t *testing.T) {
	t.Parallel()
	assert.False(t, Check(nil, AllRoles))
}

func TestNewRoles_DropsUnknown(t *testing.T) {
	t.Parallel()
	s := NewRoles(domain.RoleUser, domain.Role("root"))
	assert.Len(t, s, 1)
	assert.True(t, s.Has(domain.RoleUser))
	assert.False(t, s.Has(domain.Role("root")))
}
