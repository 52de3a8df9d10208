package api

import (
	"net/http"

	"github.com/cmodk/deskctl"
)

// DeviceView is a device as the dashboard shows it, with the liveness
// inferred at response time.
type DeviceView struct {
	*deskctl.Device
	Liveness deskctl.DeviceStatus `json:"liveness"`
}

// DeviceCredentials is returned only to the owner on registration and token
// rotation.
type DeviceCredentials struct {
	*deskctl.Device
	Token string `json:"token"`
}

type deviceRegistration struct {
	Name string `json:"name"`
	Host string `json:"ip_address"`
	Port int    `json:"port"`
}

type deviceTeam struct {
	TeamId *uint64 `json:"team_id"`
}

func (a *Api) view(d *deskctl.Device) DeviceView {
	return DeviceView{d, d.Liveness(a.d.Now(), a.d.Config.Liveness.StaleAfter)}
}

func (a *Api) deviceListHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	c := deskctl.DeviceCriteria{}
	if err := decodeQuery(r, &c); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	ds, err := a.d.Devices.List(r.Context(), s, c)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	views := make([]DeviceView, len(ds))
	for i := range ds {
		views[i] = a.view(&ds[i])
	}

	a.respond(w, http.StatusOK, views)
}

func (a *Api) deviceRegisterHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	var req deviceRegistration
	if err := decodeBody(r, &req); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	d, err := a.d.Devices.Register(r.Context(), s, req.Name, req.Host, req.Port)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusCreated, DeviceCredentials{d, d.Token})
}

func (a *Api) deviceGetHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject, d *deskctl.Device) {
	a.respond(w, http.StatusOK, a.view(d))
}

func (a *Api) deviceUpdateHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "device")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	var u deskctl.DeviceUpdate
	if err := decodeBody(r, &u); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	d, err := a.d.Devices.Update(r.Context(), s, id, u)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, a.view(d))
}

func (a *Api) deviceDeleteHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "device")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	if err := a.d.Devices.Delete(r.Context(), s, id); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *Api) deviceTeamHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "device")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	var req deviceTeam
	if err := decodeBody(r, &req); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	d, err := a.d.Devices.AssignTeam(r.Context(), s, id, req.TeamId)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, a.view(d))
}

func (a *Api) deviceTokenHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "device")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	d, err := a.d.Devices.RotateToken(r.Context(), s, id)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, DeviceCredentials{d, d.Token})
}
