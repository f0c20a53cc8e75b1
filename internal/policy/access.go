// Package policy decides who may open a conversation with whom.
package policy

import "github.com/thereayou/dealroom-chat/internal/models"

// CanInitiate reports whether a user with initiator role may open a
// conversation with a user holding recipient role. Owners can only be
// approached by providers; everyone else is open to anyone. Unknown roles
// are never allowed.
func CanInitiate(initiator, recipient models.Role) bool {
	if !initiator.Valid() || !recipient.Valid() {
		return false
	}
	switch recipient {
	case models.RoleOwner:
		return initiator == models.RoleProvider
	case models.RoleProvider, models.RoleTeamMember:
		return true
	}
	return false
}

// CanStartThread reports whether a participant holding role may post the
// first text message of a two-party conversation.
func CanStartThread(role models.Role) bool {
	return role == models.RoleProvider
}
