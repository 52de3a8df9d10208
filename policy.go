package deskctl

import "fmt"

// Action is something a subject may do to a resource.
type Action int

const (
	ActionDeviceView Action = iota + 1
	ActionDeviceUpdate
	ActionDeviceDelete
	ActionDeviceAssignTeam
	ActionDeviceRotateToken
	ActionDeviceHeartbeat
	ActionCommandView
	ActionCommandIssue
	ActionCommandReport
	ActionTeamView
	ActionTeamManageMembers
	ActionTeamDelete
)

var actionNames = map[Action]string{
	ActionDeviceView:        "view device",
	ActionDeviceUpdate:      "update device",
	ActionDeviceDelete:      "delete device",
	ActionDeviceAssignTeam:  "assign device team",
	ActionDeviceRotateToken: "rotate device token",
	ActionDeviceHeartbeat:   "heartbeat device",
	ActionCommandView:       "view command",
	ActionCommandIssue:      "issue command",
	ActionCommandReport:     "report command status",
	ActionTeamView:          "view team",
	ActionTeamManageMembers: "manage team members",
	ActionTeamDelete:        "delete team",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Subject is the authenticated actor. End users carry UserId and their team
// roles; device agents carry only DeviceId.
type Subject struct {
	UserId   uint64
	DeviceId uint64
	Roles    map[uint64]Role
}

func UserSubject(userId uint64, roles map[uint64]Role) Subject {
	return Subject{UserId: userId, Roles: roles}
}

func DeviceSubject(deviceId uint64) Subject {
	return Subject{DeviceId: deviceId}
}

func (s Subject) isUser() bool {
	return s.UserId != 0 && s.DeviceId == 0
}

func (s Subject) role(teamId *uint64) (Role, bool) {
	if teamId == nil || s.Roles == nil {
		return "", false
	}
	r, ok := s.Roles[*teamId]
	return r, ok
}

// Resource is the ownership data an authorization decision looks at. For a
// team, OwnerId is the creator and TeamId the team itself.
type Resource struct {
	OwnerId  uint64
	TeamId   *uint64
	DeviceId uint64
}

func DeviceResource(d *Device) Resource {
	return Resource{OwnerId: d.OwnerId, TeamId: d.TeamId, DeviceId: d.Id}
}

func TeamResource(t *Team) Resource {
	id := t.Id
	return Resource{OwnerId: t.CreatedBy, TeamId: &id}
}

type Predicate func(Subject, Resource) bool

func owner(s Subject, r Resource) bool {
	return s.isUser() && s.UserId == r.OwnerId
}

func teamMember(s Subject, r Resource) bool {
	if !s.isUser() {
		return false
	}
	_, ok := s.role(r.TeamId)
	return ok
}

func teamAdmin(s Subject, r Resource) bool {
	if !s.isUser() {
		return false
	}
	role, ok := s.role(r.TeamId)
	return ok && role == RoleAdmin
}

func deviceAgent(s Subject, r Resource) bool {
	return s.DeviceId != 0 && s.DeviceId == r.DeviceId
}

func anyOf(predicates ...Predicate) Predicate {
	return func(s Subject, r Resource) bool {
		for _, p := range predicates {
			if p(s, r) {
				return true
			}
		}
		return false
	}
}

// Policy maps every action to the predicate that allows it. An action
// without an entry is denied.
var Policy = map[Action]Predicate{
	ActionDeviceView:        anyOf(owner, teamMember),
	ActionDeviceUpdate:      anyOf(owner, teamAdmin),
	ActionDeviceDelete:      owner,
	ActionDeviceAssignTeam:  owner,
	ActionDeviceRotateToken: owner,
	ActionDeviceHeartbeat:   deviceAgent,
	ActionCommandView:       anyOf(owner, teamMember, deviceAgent),
	ActionCommandIssue:      anyOf(owner, teamMember),
	ActionCommandReport:     deviceAgent,
	ActionTeamView:          anyOf(owner, teamMember),
	ActionTeamManageMembers: anyOf(owner, teamAdmin),
	ActionTeamDelete:        owner,
}

func Can(s Subject, a Action, r Resource) bool {
	p, ok := Policy[a]
	return ok && p(s, r)
}

// Authorize returns a NotAuthorized error unless s may perform a on r.
func Authorize(s Subject, a Action, r Resource) error {
	if Can(s, a, r) {
		return nil
	}
	return newError(CodeNotAuthorized, "not authorized to %s", a)
}
