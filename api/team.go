package api

import (
	"net/http"

	"github.com/cmodk/deskctl"
)

type teamRequest struct {
	Name string `json:"name"`
}

type memberRequest struct {
	UserId uint64 `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (a *Api) teamListHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	ts, err := a.d.Teams.List(r.Context(), s)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, ts)
}

func (a *Api) teamCreateHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	var req teamRequest
	if err := decodeBody(r, &req); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	t, err := a.d.Teams.Create(r.Context(), s, req.Name)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusCreated, t)
}

func (a *Api) teamGetHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "team")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	t, err := a.d.Teams.Get(r.Context(), s, id)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, t)
}

func (a *Api) teamDeleteHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "team")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	if err := a.d.Teams.Delete(r.Context(), s, id); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *Api) teamMemberListHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "team")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	members, err := a.d.Teams.Members(r.Context(), s, id)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, members)
}

// teamMemberAddHandler accepts the new member by id or by email.
func (a *Api) teamMemberAddHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "team")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	var req memberRequest
	if err := decodeBody(r, &req); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	role, err := deskctl.ParseRole(req.Role)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	if req.UserId == 0 && req.Email != "" {
		u, err := a.d.Users.ByEmail(r.Context(), req.Email)
		if err != nil {
			a.d.HttpFail(w, err)
			return
		}
		req.UserId = u.Id
	}

	m, err := a.d.Teams.AddMember(r.Context(), s, id, req.UserId, role)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusCreated, m)
}

func (a *Api) teamMemberRemoveHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "team")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}
	userId, err := pathId(r, "user")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	if err := a.d.Teams.RemoveMember(r.Context(), s, id, userId); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
