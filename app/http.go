package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

// CodedError is implemented by errors that know their http status and a
// machine readable code.
type CodedError interface {
	error
	HttpStatus() int
	ErrorCode() string
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JsonStatus(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// HttpFail writes err with the status of the first CodedError in its chain,
// 500 otherwise.
func (app *App) HttpFail(w http.ResponseWriter, err error) {
	var coded CodedError
	if errors.As(err, &coded) {
		app.HttpError(w, coded, coded.HttpStatus())
		return
	}

	app.Logger.WithField("error", err).Error("Internal error")
	app.HttpError(w, err, http.StatusInternalServerError)
}

func (app *App) HttpUnauthorized(w http.ResponseWriter, err error) {
	app.HttpError(w, err, http.StatusUnauthorized)
}

func (app *App) HttpNotFound(w http.ResponseWriter, err error) {
	app.HttpError(w, err, http.StatusNotFound)
}

func (app *App) HttpError(w http.ResponseWriter, err interface{}, status int) {
	resp := ErrorResponse{}

	switch v := err.(type) {
	case CodedError:
		resp.Error = v.Error()
		resp.Code = v.ErrorCode()
	case error:
		resp.Error = v.Error()
	case string:
		resp.Error = v
	default:
		resp.Error = "Unknown error"
	}

	if err := JsonStatus(w, status, resp); err != nil {
		app.Logger.WithField("error", err).Warn("Writing error response")
	}
}

// RequestLogger logs one line per request through logrus.
func RequestLogger(logger *logrus.Logger) negroni.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		start := time.Now()
		next(w, r)

		status := 0
		if rw, ok := w.(negroni.ResponseWriter); ok {
			status = rw.Status()
		}

		logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   status,
			"duration": time.Since(start),
		}).Debug("Handled request")
	}
}
