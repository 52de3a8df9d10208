package api

import (
	"net/http"

	"github.com/cmodk/deskctl"
)

type commandRequest struct {
	Kind    deskctl.Kind    `json:"command_type"`
	Payload deskctl.Payload `json:"payload"`
}

// commandOf loads the command in the path and checks that it belongs to the
// device in the path.
func (a *Api) commandOf(r *http.Request, s deskctl.Subject) (*deskctl.Command, error) {
	deviceId, err := pathId(r, "device")
	if err != nil {
		return nil, err
	}
	id, err := pathId(r, "command")
	if err != nil {
		return nil, err
	}

	c, err := a.d.Commands.Get(r.Context(), s, id)
	if err != nil {
		return nil, err
	}
	if c.DeviceId != deviceId {
		return nil, &deskctl.Error{Code: deskctl.CodeNotFound, Message: "command not found on device"}
	}

	return c, nil
}

func (a *Api) commandListHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	deviceId, err := pathId(r, "device")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	c := deskctl.CommandCriteria{}
	if err := decodeQuery(r, &c); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	cs, err := a.d.Commands.List(r.Context(), s, deviceId, c)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, cs)
}

func (a *Api) commandIssueHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	deviceId, err := pathId(r, "device")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	var req commandRequest
	if err := decodeBody(r, &req); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	c, err := a.d.Commands.Issue(r.Context(), s, deviceId, req.Kind, req.Payload)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusCreated, c)
}

func (a *Api) commandGetHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	c, err := a.commandOf(r, s)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, c)
}

func (a *Api) commandRetryHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	c, err := a.commandOf(r, s)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	retried, err := a.d.Commands.Retry(r.Context(), s, c.Id)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusCreated, retried)
}
