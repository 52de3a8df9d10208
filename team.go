package deskctl

import (
	"context"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cmodk/go-simpleflake"

	"github.com/cmodk/deskctl/app"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleMember:
		return Role(s), nil
	case "":
		return RoleMember, nil
	}
	return "", newError(CodeValidation, "unknown team role %q", s)
}

type Team struct {
	Id        uint64    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedBy uint64    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type TeamMember struct {
	Id       uint64    `db:"id" json:"id"`
	TeamId   uint64    `db:"team_id" json:"team_id"`
	UserId   uint64    `db:"user_id" json:"user_id"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

type TeamCriteria struct {
	Id        uint64 `schema:"id" db:"id"`
	CreatedBy uint64 `schema:"created_by" db:"created_by"`

	Limit int `schema:"limit"`
}

type TeamMemberCriteria struct {
	TeamId uint64 `db:"team_id"`
	UserId uint64 `db:"user_id"`

	OrderBy string
}

type Teams struct {
	d       *Deskctl
	teams   *app.DatabaseRepository
	members *app.DatabaseRepository
}

func NewTeams(d *Deskctl) *Teams {
	return &Teams{
		d:       d,
		teams:   app.NewDatabaseRepository(d.Database, "teams"),
		members: app.NewDatabaseRepository(d.Database, "team_members"),
	}
}

// Subject loads the team roles of a user. Creators are admins of their
// teams whether or not a membership row exists.
func (teams *Teams) Subject(ctx context.Context, userId uint64) (Subject, error) {
	roles := map[uint64]Role{}

	var memberships []TeamMember
	if err := teams.members.List(ctx, &memberships, TeamMemberCriteria{UserId: userId}); err != nil {
		return Subject{}, err
	}
	for _, m := range memberships {
		roles[m.TeamId] = m.Role
	}

	var created []Team
	if err := teams.teams.List(ctx, &created, TeamCriteria{CreatedBy: userId}); err != nil {
		return Subject{}, err
	}
	for _, t := range created {
		roles[t.Id] = RoleAdmin
	}

	return UserSubject(userId, roles), nil
}

func (teams *Teams) Create(ctx context.Context, s Subject, name string) (*Team, error) {
	if !s.isUser() {
		return nil, newError(CodeNotAuthorized, "only users can create teams")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newError(CodeValidation, "team name is required")
	}
	if len(name) > maxNameLength {
		return nil, newError(CodeValidation, "team name is longer than %d characters", maxNameLength)
	}

	t := Team{
		Id:        simpleflake.Next(),
		Name:      name,
		CreatedBy: s.UserId,
		CreatedAt: teams.d.Now(),
	}

	if err := teams.teams.Create(ctx, &t); err != nil {
		return nil, err
	}

	teams.d.Logger.WithField("team", t.Id).WithField("user", s.UserId).Info("Team created")

	return &t, nil
}

func (teams *Teams) get(ctx context.Context, id uint64) (*Team, error) {
	var t Team
	if err := teams.teams.Get(ctx, &t, TeamCriteria{Id: id}); err != nil {
		return nil, notFound(err, "team %d not found", id)
	}
	return &t, nil
}

func (teams *Teams) Get(ctx context.Context, s Subject, id uint64) (*Team, error) {
	t, err := teams.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := Authorize(s, ActionTeamView, TeamResource(t)); err != nil {
		return nil, err
	}

	return t, nil
}

// List returns the teams s created or belongs to.
func (teams *Teams) List(ctx context.Context, s Subject) ([]Team, error) {
	result := []Team{}
	if !s.isUser() || len(s.Roles) == 0 {
		return result, nil
	}

	ids := make([]uint64, 0, len(s.Roles))
	for id := range s.Roles {
		ids = append(ids, id)
	}

	query, args, err := squirrel.Select("*").From("teams").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("created_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	if err := teams.d.Database.SelectContext(ctx, &result, query, args...); err != nil {
		return nil, err
	}

	return result, nil
}

func (teams *Teams) Delete(ctx context.Context, s Subject, id uint64) error {
	t, err := teams.get(ctx, id)
	if err != nil {
		return err
	}

	if err := Authorize(s, ActionTeamDelete, TeamResource(t)); err != nil {
		return err
	}

	if err := teams.teams.Delete(ctx, t.Id); err != nil {
		return notFound(err, "team %d not found", id)
	}

	teams.d.Logger.WithField("team", t.Id).Info("Team deleted")
	return nil
}

func (teams *Teams) Members(ctx context.Context, s Subject, teamId uint64) ([]TeamMember, error) {
	if _, err := teams.Get(ctx, s, teamId); err != nil {
		return nil, err
	}

	members := []TeamMember{}
	if err := teams.members.List(ctx, &members, TeamMemberCriteria{TeamId: teamId, OrderBy: "joined_at"}); err != nil {
		return nil, err
	}

	return members, nil
}

func (teams *Teams) AddMember(ctx context.Context, s Subject, teamId uint64, userId uint64, role Role) (*TeamMember, error) {
	t, err := teams.get(ctx, teamId)
	if err != nil {
		return nil, err
	}

	if err := Authorize(s, ActionTeamManageMembers, TeamResource(t)); err != nil {
		return nil, err
	}

	if role != RoleAdmin && role != RoleMember {
		return nil, newError(CodeValidation, "unknown team role %q", role)
	}

	if _, err := teams.d.Users.Get(ctx, userId); err != nil {
		return nil, err
	}

	if userId == t.CreatedBy {
		return nil, newError(CodeValidation, "user %d created team %d", userId, teamId)
	}

	var existing []TeamMember
	if err := teams.members.List(ctx, &existing, TeamMemberCriteria{TeamId: teamId, UserId: userId}); err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, newError(CodeValidation, "user %d is already a member of team %d", userId, teamId)
	}

	m := TeamMember{
		Id:       simpleflake.Next(),
		TeamId:   teamId,
		UserId:   userId,
		Role:     role,
		JoinedAt: teams.d.Now(),
	}

	if err := teams.members.Create(ctx, &m); err != nil {
		return nil, err
	}

	teams.d.Logger.WithField("team", teamId).WithField("user", userId).WithField("role", role).Info("Team member added")

	return &m, nil
}

// RemoveMember removes userId from the team. Admins may remove anyone, every
// member may remove themselves.
func (teams *Teams) RemoveMember(ctx context.Context, s Subject, teamId uint64, userId uint64) error {
	t, err := teams.get(ctx, teamId)
	if err != nil {
		return err
	}

	if !(s.isUser() && s.UserId == userId) {
		if err := Authorize(s, ActionTeamManageMembers, TeamResource(t)); err != nil {
			return err
		}
	}

	removed, err := teams.d.Database.ExecBuilder(ctx, squirrel.Delete("team_members").Where(squirrel.Eq{
		"team_id": teamId,
		"user_id": userId,
	}))
	if err != nil {
		return err
	}
	if removed == 0 {
		return newError(CodeNotFound, "user %d is not a member of team %d", userId, teamId)
	}

	teams.d.Logger.WithField("team", teamId).WithField("user", userId).Info("Team member removed")
	return nil
}
