package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmodk/go-simplehttp"

	"github.com/cmodk/deskctl"
	"github.com/cmodk/deskctl/app"
)

// Client talks to the agent endpoints with a device token.
type Client struct {
	*simplehttp.SimpleHttp
}

func New(host string, token string, logger *logrus.Logger) *Client {
	backend := simplehttp.New(host, logger)
	backend.SetBearerAuth(token)

	client := Client{&backend}

	return &client
}

type statusReport struct {
	Status     deskctl.Status `json:"status"`
	ExecutedAt *time.Time     `json:"executed_at,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Pending returns up to limit pending commands of the device, oldest first.
func (client *Client) Pending(limit int) ([]deskctl.Command, error) {
	data, err := client.Get(fmt.Sprintf("/agent/command?limit=%d", limit))
	if err != nil {
		return nil, serverError(data, err)
	}

	var cs []deskctl.Command
	if err := json.Unmarshal([]byte(data), &cs); err != nil {
		return nil, err
	}

	return cs, nil
}

// Claim moves a pending command to delivered. A command claimed by someone
// else or deleted comes back as a deskctl.Error with CodeInvalidTransition or
// CodeNotFound.
func (client *Client) Claim(id uint64) (*deskctl.Command, error) {
	data, err := client.Post(fmt.Sprintf("/agent/command/%d/claim", id), "")
	if err != nil {
		return nil, serverError(data, err)
	}

	var c deskctl.Command
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return nil, err
	}

	if c.Id != id || c.Status != deskctl.StatusDelivered {
		return nil, fmt.Errorf("claim of command %d returned %d in %s", id, c.Id, c.Status)
	}

	return &c, nil
}

func (client *Client) Report(id uint64, status deskctl.Status, report deskctl.StatusReport) error {
	body, err := json.Marshal(statusReport{
		Status:     status,
		ExecutedAt: report.ExecutedAt,
		Error:      report.Error,
	})
	if err != nil {
		return err
	}

	data, err := client.Post(fmt.Sprintf("/agent/command/%d/status", id), string(body))
	if err != nil {
		return serverError(data, err)
	}
	return nil
}

func (client *Client) Heartbeat() error {
	_, err := client.Post("/agent/heartbeat", "")
	return err
}

func (client *Client) Offline() error {
	_, err := client.Post("/agent/offline", "")
	return err
}

// serverError recovers the coded error the server wrote for a failed
// request, from the response body or from err itself. Anything without one,
// transport failures included, is returned unchanged.
func serverError(data string, err error) error {
	for _, s := range []string{data, err.Error()} {
		if resp, ok := errorResponse(s); ok {
			return &deskctl.Error{Code: deskctl.Code(resp.Code), Message: resp.Error, Cause: err}
		}
	}
	return err
}

func errorResponse(s string) (app.ErrorResponse, bool) {
	var resp app.ErrorResponse

	start := strings.Index(s, "{")
	if start < 0 {
		return resp, false
	}

	if err := json.NewDecoder(strings.NewReader(s[start:])).Decode(&resp); err != nil {
		return resp, false
	}
	return resp, resp.Code != ""
}
