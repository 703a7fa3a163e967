package server

import (
	"errors"
	"net/http"

	app "eventgallery/src/app"
	db "eventgallery/src/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	dataverseConsentHint = "consent to the Dataverse permissions is required for this application"
	graphConsentHint     = "admin approval is required to access the SharePoint API (Files.Read.All)"
)

// consentHint is the remediation text of one route and the identity errors
// it applies to.
type consentHint struct {
	text    string
	matches func(error) bool
}

var (
	noHint = consentHint{}

	// Dataverse reports a missing consent either way.
	dataverseConsent = consentHint{text: dataverseConsentHint, matches: func(err error) bool {
		return app.IsConsentRequired(err) || app.IsInvalidGrant(err)
	}}

	graphConsent = consentHint{text: graphConsentHint, matches: app.IsConsentRequired}
)

var errUnauthenticated = errors.New("authentication required")

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// statusFor maps an error to the status reported to the browser.
func statusFor(err error) int {
	var upstream *app.UpstreamError
	var parseErr *app.ParseError
	switch {
	case errors.Is(err, app.ErrNotConfigured):
		return http.StatusInternalServerError
	case errors.Is(err, app.ErrMissingAssertion), errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrEventNotFound), errors.Is(err, app.ErrObjectNotFound), errors.Is(err, db.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidRequest), errors.As(err, &parseErr):
		return http.StatusBadRequest
	case errors.As(err, &upstream):
		if upstream.StatusCode >= 400 {
			return upstream.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError aborts the request with the error envelope. The hint text is
// attached when err matches it.
func (a *AppHandler) writeError(c *gin.Context, title string, err error, hint consentHint) {
	status := statusFor(err)
	body := errorResponse{Error: title, Message: err.Error()}
	if errors.Is(err, app.ErrNotConfigured) {
		body.Error = app.ErrNotConfigured.Error()
	}

	var upstream *app.UpstreamError
	if errors.As(err, &upstream) {
		body.Details = upstream.Details
	}
	if hint.matches != nil && hint.matches(err) {
		body.Hint = hint.text
	}

	entry := a.log.WithFields(logrus.Fields{
		"path":   c.FullPath(),
		"status": status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error(title)
	} else {
		entry.Warn(title)
	}
	c.AbortWithStatusJSON(status, body)
}
