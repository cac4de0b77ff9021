// Package policy decides whether an identity's role is allowed to perform an
// operation. Roles have no ordering; a check is plain set membership.
package policy

import "github.com/Skotchmaster/imageiq/internal/domain"

type Roles map[domain.Role]struct{}

func NewRoles(roles ...domain.Role) Roles {
	set := make(Roles, len(roles))
	for _, r := range roles {
		if r.Valid() {
			set[r] = struct{}{}
		}
	}
	return set
}

func (s Roles) Has(r domain.Role) bool {
	_, ok := s[r]
	return ok
}

var (
	AllRoles       = NewRoles(domain.RoleAdmin, domain.RoleModerator, domain.RoleUser)
	AdminModerator = NewRoles(domain.RoleAdmin, domain.RoleModerator)
	AdminOnly      = NewRoles(domain.RoleAdmin)
)

func Check(id *domain.Identity, allowed Roles) bool {
	return id != nil && allowed.Has(id.Role)
}
