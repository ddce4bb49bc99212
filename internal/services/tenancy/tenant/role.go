package tenant

import "strings"

// Role is a team member's authority inside an agency.
type Role string

const (
	RoleAgencyOwner     Role = "AGENCY_OWNER"
	RoleAgencyAdmin     Role = "AGENCY_ADMIN"
	RoleSubAccountUser  Role = "SUBACCOUNT_USER"
	RoleSubAccountGuest Role = "SUBACCOUNT_GUEST"
)

// ParseRole normalizes s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	return role, role.Valid()
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAgencyOwner, RoleAgencyAdmin, RoleSubAccountUser, RoleSubAccountGuest:
		return true
	default:
		return false
	}
}

// ManagesAgency reports whether r can administer the agency itself.
func (r Role) ManagesAgency() bool {
	return r == RoleAgencyOwner || r == RoleAgencyAdmin
}

// SubAccountScoped reports whether r only reaches sub-accounts.
func (r Role) SubAccountScoped() bool {
	return r == RoleSubAccountUser || r == RoleSubAccountGuest
}

// Invitable reports whether r can be granted through an invitation.
// Ownership is only established when the agency is created.
func (r Role) Invitable() bool {
	return r.Valid() && r != RoleAgencyOwner
}

func (r Role) String() string {
	return string(r)
}
