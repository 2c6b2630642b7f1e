// Package permission decides whether a membership may perform a privileged
// action inside its tavern.
package permission

import "github.com/Gopher0727/Tavern/internal/model"

type Action string

const (
	CreateGameDay     Action = "create a game day"
	RescheduleGameDay Action = "reschedule a game day"
	ConcludeGameDay   Action = "conclude a game day"
	DeleteGameDay     Action = "delete a game day"
	UpdateTavern      Action = "update the tavern"
	AddMember         Action = "add members"
	RemoveMember      Action = "remove members"
	AcceptJoinRequest Action = "accept join requests"
	AssignFolder      Action = "assign folders to other members"
)

// Actions lists every privileged action.
var Actions = []Action{
	CreateGameDay, RescheduleGameDay, ConcludeGameDay, DeleteGameDay,
	UpdateTavern, AddMember, RemoveMember, AcceptJoinRequest, AssignFolder,
}

// Authorize returns nil when m may perform action, otherwise a forbidden
// domain error naming the reason. Elevation requires both the DM flag and
// ADMIN status; either one alone is denied.
func Authorize(m *model.Membership, action Action) error {
	if !m.Active() {
		return model.Forbidden("you are not an active member of this tavern")
	}
	if !m.IsDm {
		return model.Forbidden("only the dungeon master can %s", action)
	}
	if m.Status != model.StatusAdmin {
		return model.Forbidden("an admin status is required to %s", action)
	}
	return nil
}
