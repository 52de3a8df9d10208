package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cmodk/deskctl"
)

const agentBatchLimit = 50

type statusRequest struct {
	Status     deskctl.Status `json:"status"`
	ExecutedAt *time.Time     `json:"executed_at,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func (a *Api) agentPendingHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	limit := agentBatchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.d.HttpFail(w, &deskctl.Error{Code: deskctl.CodeValidation, Message: "limit must be a positive number"})
			return
		}
		if n < limit {
			limit = n
		}
	}

	it, err := a.d.Commands.FetchPending(r.Context(), s, s.DeviceId)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	cs, err := it.Collect(limit)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, cs)
}

func (a *Api) agentClaimHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "command")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	c, err := a.d.Commands.Claim(r.Context(), s, id)
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, c)
}

func (a *Api) agentStatusHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	id, err := pathId(r, "command")
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	c, err := a.d.Commands.ReportStatus(r.Context(), s, id, req.Status, deskctl.StatusReport{
		ExecutedAt: req.ExecutedAt,
		Error:      req.Error,
	})
	if err != nil {
		a.d.HttpFail(w, err)
		return
	}

	a.respond(w, http.StatusOK, c)
}

func (a *Api) agentHeartbeatHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	if err := a.d.Devices.Heartbeat(r.Context(), s, s.DeviceId); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *Api) agentOfflineHandler(w http.ResponseWriter, r *http.Request, s deskctl.Subject) {
	if err := a.d.Devices.MarkOffline(r.Context(), s, s.DeviceId); err != nil {
		a.d.HttpFail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
