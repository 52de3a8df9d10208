package deskctl

import "testing"

func TestPolicy(t *testing.T) {
	team := uint64(7)
	other := uint64(8)

	owned := Resource{OwnerId: 1, DeviceId: 100}
	shared := Resource{OwnerId: 1, TeamId: &team, DeviceId: 101}

	owner := UserSubject(1, nil)
	member := UserSubject(2, map[uint64]Role{team: RoleMember})
	admin := UserSubject(3, map[uint64]Role{team: RoleAdmin})
	elsewhere := UserSubject(4, map[uint64]Role{other: RoleAdmin})
	agent := DeviceSubject(101)

	tests := []struct {
		name     string
		subject  Subject
		action   Action
		resource Resource
		allowed  bool
	}{
		{"owner views", owner, ActionDeviceView, owned, true},
		{"owner issues", owner, ActionCommandIssue, owned, true},
		{"owner deletes", owner, ActionDeviceDelete, shared, true},
		{"stranger views", member, ActionDeviceView, owned, false},
		{"stranger issues", member, ActionCommandIssue, owned, false},
		{"member views shared", member, ActionDeviceView, shared, true},
		{"member issues on shared", member, ActionCommandIssue, shared, true},
		{"member views commands", member, ActionCommandView, shared, true},
		{"member cannot update", member, ActionDeviceUpdate, shared, false},
		{"member cannot delete", member, ActionDeviceDelete, shared, false},
		{"member cannot reassign", member, ActionDeviceAssignTeam, shared, false},
		{"admin updates shared", admin, ActionDeviceUpdate, shared, true},
		{"admin cannot delete", admin, ActionDeviceDelete, shared, false},
		{"admin cannot rotate", admin, ActionDeviceRotateToken, shared, false},
		{"other team", elsewhere, ActionDeviceView, shared, false},
		{"user cannot report", owner, ActionCommandReport, shared, false},
		{"user cannot heartbeat", owner, ActionDeviceHeartbeat, owned, false},
		{"agent reports", agent, ActionCommandReport, shared, true},
		{"agent heartbeats", agent, ActionDeviceHeartbeat, shared, true},
		{"agent views own commands", agent, ActionCommandView, shared, true},
		{"agent of other device", agent, ActionCommandReport, owned, false},
		{"agent cannot issue", agent, ActionCommandIssue, shared, false},
		{"anonymous", Subject{}, ActionDeviceView, owned, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Can(tt.subject, tt.action, tt.resource); got != tt.allowed {
				t.Fatalf("Can(%s) = %v, expected %v", tt.action, got, tt.allowed)
			}

			err := Authorize(tt.subject, tt.action, tt.resource)
			if tt.allowed && err != nil {
				t.Fatal(err)
			}
			if !tt.allowed {
				expectCode(t, err, CodeNotAuthorized)
			}
		})
	}
}

func TestPolicyTeams(t *testing.T) {
	creator := UserSubject(1, map[uint64]Role{7: RoleAdmin})
	admin := UserSubject(2, map[uint64]Role{7: RoleAdmin})
	member := UserSubject(3, map[uint64]Role{7: RoleMember})
	outsider := UserSubject(4, nil)

	r := TeamResource(&Team{Id: 7, CreatedBy: 1})

	if !Can(creator, ActionTeamDelete, r) {
		t.Fatal("Creator must be able to delete the team")
	}
	if Can(admin, ActionTeamDelete, r) {
		t.Fatal("Admin must not be able to delete the team")
	}
	if !Can(admin, ActionTeamManageMembers, r) {
		t.Fatal("Admin must be able to manage members")
	}
	if Can(member, ActionTeamManageMembers, r) {
		t.Fatal("Member must not be able to manage members")
	}
	if !Can(member, ActionTeamView, r) {
		t.Fatal("Member must be able to view the team")
	}
	if Can(outsider, ActionTeamView, r) {
		t.Fatal("Outsider must not see the team")
	}
}

func TestActionWithoutPolicyIsDenied(t *testing.T) {
	if Can(UserSubject(1, nil), Action(999), Resource{OwnerId: 1}) {
		t.Fatal("Unknown action must be denied")
	}
}
