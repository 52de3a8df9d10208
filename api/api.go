// Package api exposes the dashboard and agent http endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"

	"github.com/cmodk/deskctl"
	"github.com/cmodk/deskctl/app"
	"github.com/cmodk/deskctl/auth"
)

type Api struct {
	d *deskctl.Deskctl
}

type subjectHandler func(http.ResponseWriter, *http.Request, deskctl.Subject)
type deviceHandler func(http.ResponseWriter, *http.Request, deskctl.Subject, *deskctl.Device)

// Register installs the middleware chain and every route on d.
func Register(d *deskctl.Deskctl) *Api {
	a := &Api{d}

	d.Use(app.Cors())
	d.Use(auth.NewMiddleware(d))

	d.Router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.HttpNotFound(w, fmt.Errorf("no route for %s %s", r.Method, r.URL.Path))
	})

	d.Get("/info", a.infoHandler)

	d.Get("/device", a.withSubject(a.deviceListHandler))
	d.Post("/device", a.withSubject(a.deviceRegisterHandler))
	d.Get("/device/{device}", a.withDevice(a.deviceGetHandler))
	d.Put("/device/{device}", a.withSubject(a.deviceUpdateHandler))
	d.Delete("/device/{device}", a.withSubject(a.deviceDeleteHandler))
	d.Put("/device/{device}/team", a.withSubject(a.deviceTeamHandler))
	d.Post("/device/{device}/token", a.withSubject(a.deviceTokenHandler))
	d.Get("/device/{device}/command", a.withSubject(a.commandListHandler))
	d.Post("/device/{device}/command", a.withSubject(a.commandIssueHandler))
	d.Get("/device/{device}/command/{command}", a.withSubject(a.commandGetHandler))
	d.Post("/device/{device}/command/{command}/retry", a.withSubject(a.commandRetryHandler))

	d.Get("/team", a.withSubject(a.teamListHandler))
	d.Post("/team", a.withSubject(a.teamCreateHandler))
	d.Get("/team/{team}", a.withSubject(a.teamGetHandler))
	d.Delete("/team/{team}", a.withSubject(a.teamDeleteHandler))
	d.Get("/team/{team}/member", a.withSubject(a.teamMemberListHandler))
	d.Post("/team/{team}/member", a.withSubject(a.teamMemberAddHandler))
	d.Delete("/team/{team}/member/{user}", a.withSubject(a.teamMemberRemoveHandler))

	d.Get("/agent/command", a.withSubject(a.agentPendingHandler))
	d.Post("/agent/command/{command}/claim", a.withSubject(a.agentClaimHandler))
	d.Post("/agent/command/{command}/status", a.withSubject(a.agentStatusHandler))
	d.Post("/agent/heartbeat", a.withSubject(a.agentHeartbeatHandler))
	d.Post("/agent/offline", a.withSubject(a.agentOfflineHandler))

	return a
}

func (a *Api) infoHandler(w http.ResponseWriter, r *http.Request) {
	info := struct {
		Version string         `json:"version"`
		Kinds   []deskctl.Kind `json:"command_types"`
	}{
		Version: deskctl.Version,
		Kinds:   deskctl.Kinds(),
	}

	a.respond(w, http.StatusOK, info)
}

func (a *Api) withSubject(h subjectHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := auth.SubjectFrom(r.Context())
		if !ok {
			a.d.HttpUnauthorized(w, fmt.Errorf("missing authentication"))
			return
		}

		h(w, r, s)
	}
}

func (a *Api) withDevice(h deviceHandler) http.HandlerFunc {
	return a.withSubject(func(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
		id, err := pathId(r, "device")
		if err != nil {
			a.d.HttpFail(w, err)
			return
		}

		d, err := a.d.Devices.Get(r.Context(), s, id)
		if err != nil {
			a.d.HttpFail(w, err)
			return
		}

		h(w, r, s, d)
	})
}

func (a *Api) respond(w http.ResponseWriter, status int, data interface{}) {
	if err := app.JsonStatus(w, status, data); err != nil {
		a.d.Logger.WithField("error", err).Warn("Writing response")
	}
}

func pathId(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, &deskctl.Error{Code: deskctl.CodeValidation, Message: fmt.Sprintf("malformed %s id %q", name, raw), Cause: err}
	}
	return id, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &deskctl.Error{Code: deskctl.CodeValidation, Message: fmt.Sprintf("malformed request body: %v", err), Cause: err}
	}
	return nil
}

func decodeQuery(r *http.Request, dst interface{}) error {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	if err := decoder.Decode(dst, r.URL.Query()); err != nil {
		return &deskctl.Error{Code: deskctl.CodeValidation, Message: fmt.Sprintf("malformed query: %v", err), Cause: err}
	}
	return nil
}
