package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	app "eventgallery/src/app"

	"github.com/gin-gonic/gin"
)

const (
	headerAccessToken     = "x-ms-token-aad-access-token"
	headerClientPrincipal = "x-ms-client-principal"
	headerUserID          = "X-User-ID"
	headerRequestID       = "X-Request-ID"
)

// userAssertion returns the caller's access token, preferring the header
// injected by the static web app platform over a bearer Authorization header.
func userAssertion(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(headerAccessToken)); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

type (
	// ClientPrincipal is the identity the static web app platform forwards in
	// the x-ms-client-principal header.
	ClientPrincipal struct {
		IdentityProvider string   `json:"identityProvider"`
		UserID           string   `json:"userId"`
		UserDetails      string   `json:"userDetails"`
		UserRoles        []string `json:"userRoles"`
	}

	authCallbackBody struct {
		AccessToken  string     `json:"accessToken"`
		RefreshToken string     `json:"refreshToken"`
		ExpiresOn    expiryTime `json:"expiresOn"`
		Scopes       scopeList  `json:"scopes"`
	}

	uploadBody struct {
		EventID string            `json:"eventId"`
		Images  []app.UploadImage `json:"images"`
	}

	// expiryTime accepts RFC 3339 strings and unix timestamps in seconds or
	// milliseconds.
	expiryTime struct {
		time.Time
	}

	// scopeList accepts a space separated string or an array.
	scopeList []string
)

func decodeClientPrincipal(header string) (ClientPrincipal, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ClientPrincipal{}, fmt.Errorf("%w: %s header missing", errUnauthenticated, headerClientPrincipal)
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(header, "="))
	}
	if err != nil {
		return ClientPrincipal{}, fmt.Errorf("%w: client principal is not base64: %v", errUnauthenticated, err)
	}
	var principal ClientPrincipal
	if err := json.Unmarshal(raw, &principal); err != nil {
		return ClientPrincipal{}, fmt.Errorf("%w: client principal is not JSON: %v", errUnauthenticated, err)
	}
	if principal.UserID == "" && principal.UserDetails == "" {
		return ClientPrincipal{}, fmt.Errorf("%w: client principal carries no user", errUnauthenticated)
	}
	return principal, nil
}

func (e *expiryTime) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		e.Time = time.Time{}
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			e.Time = t
			return nil
		}
		raw = s
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("expiresOn %q is neither RFC 3339 nor a unix timestamp", raw)
	}
	if n > 1e12 {
		e.Time = time.UnixMilli(int64(n))
	} else {
		e.Time = time.Unix(int64(n), 0)
	}
	return nil
}

func (s *scopeList) UnmarshalJSON(b []byte) error {
	var joined string
	if err := json.Unmarshal(b, &joined); err == nil {
		*s = strings.Fields(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.New("scopes must be a string or an array of strings")
	}
	*s = list
	return nil
}
