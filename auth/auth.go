package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/cmodk/deskctl"
)

// AgentPrefix is the path prefix whose requests carry a device token instead
// of a user api key.
const AgentPrefix = "/agent/"

type contextKey int

const subjectKey contextKey = 0

type Auth struct {
	D *deskctl.Deskctl
}

func NewMiddleware(d *deskctl.Deskctl) *Auth {
	return &Auth{
		D: d,
	}
}

// ServeHTTP resolves the bearer token of a request to a subject. Requests
// without a token pass through anonymous and are rejected by the handlers
// that need a subject.
func (a Auth) ServeHTTP(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	bearer, ok := BearerToken(r)
	if !ok {
		next(w, r)
		return
	}

	ctx := r.Context()

	if strings.HasPrefix(r.URL.Path, AgentPrefix) {
		device, err := a.D.Devices.Authenticate(ctx, bearer)
		if err != nil {
			a.reject(w, err)
			return
		}

		a.D.Logger.WithField("device", device.Id).Debug("Agent request")

		ctx = context.WithValue(ctx, subjectKey, deskctl.DeviceSubject(device.Id))
		next(w, r.WithContext(ctx))
		return
	}

	user, err := a.D.Users.Authenticate(ctx, bearer)
	if err != nil {
		a.reject(w, err)
		return
	}

	s, err := a.D.Teams.Subject(ctx, user.Id)
	if err != nil {
		a.D.HttpFail(w, err)
		return
	}

	ctx = context.WithValue(ctx, subjectKey, s)
	next(w, r.WithContext(ctx))
}

func (a Auth) reject(w http.ResponseWriter, err error) {
	if !deskctl.HasCode(err, deskctl.CodeNotAuthorized) {
		a.D.HttpFail(w, err)
		return
	}

	a.D.Logger.WithField("error", err).Info("Rejected bearer token")
	a.D.HttpUnauthorized(w, err)
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}

	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func SubjectFrom(ctx context.Context) (deskctl.Subject, bool) {
	s, ok := ctx.Value(subjectKey).(deskctl.Subject)
	return s, ok
}
