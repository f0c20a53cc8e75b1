package models

import "fmt"

type Role string

const (
	RoleProvider   Role = "provider"
	RoleOwner      Role = "owner"
	RoleTeamMember Role = "team-member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleProvider, RoleOwner, RoleTeamMember:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
