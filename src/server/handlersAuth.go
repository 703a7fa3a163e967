package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	app "eventgallery/src/app"
	db "eventgallery/src/repository"

	"github.com/gin-gonic/gin"
)

const (
	authCallbackError   = "token handling failed"
	dataverseTokenError = "could not obtain a Dataverse token"
)

// AuthCallback stores (POST) or checks (GET) the cached token of the user
// named by the X-User-ID header.
func (a *AppHandler) AuthCallback(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(headerUserID))
	if userID == "" {
		a.writeError(c, "user id required", fmt.Errorf("%w: %s header missing", app.ErrInvalidRequest, headerUserID), noHint)
		return
	}

	if c.Request.Method == http.MethodPost {
		var body authCallbackBody
		if err := c.ShouldBindJSON(&body); err != nil {
			a.writeError(c, "invalid token payload", fmt.Errorf("%w: %v", app.ErrInvalidRequest, err), noHint)
			return
		}
		if body.AccessToken == "" {
			a.writeError(c, "token missing", fmt.Errorf("%w: accessToken is required in the body", app.ErrInvalidRequest), noHint)
			return
		}
		record := db.TokenRecord{
			AccessToken:  body.AccessToken,
			RefreshToken: body.RefreshToken,
			ExpiresOn:    body.ExpiresOn.Time,
			Scopes:       body.Scopes,
		}
		if err := a.tokens.Save(c.Request.Context(), userID, record); err != nil {
			a.writeError(c, authCallbackError, err, noHint)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "token saved"})
		return
	}

	if _, err := a.tokens.AccessToken(c.Request.Context(), userID); err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			a.writeError(c, "token not found", err, noHint)
			return
		}
		a.writeError(c, authCallbackError, err, noHint)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "hasToken": true})
}

// DataverseToken exchanges the signed-in user's assertion for a Dataverse
// token and caches it under the user's id.
func (a *AppHandler) DataverseToken(c *gin.Context) {
	principal, err := decodeClientPrincipal(c.GetHeader(headerClientPrincipal))
	if err != nil {
		a.writeError(c, "not authenticated", err, noHint)
		return
	}
	log := a.log.WithField("user", principal.UserDetails)

	if userAssertion(c) == "" {
		log.Info("no assertion forwarded, on-behalf-of skipped")
		c.JSON(http.StatusOK, gin.H{
			"user":    principal.UserDetails,
			"message": "token endpoint requires an on-behalf-of assertion",
			"note":    "forward the " + headerAccessToken + " header to obtain a Dataverse token",
		})
		return
	}

	ctx := c.Request.Context()
	assertion, err := a.assertion(ctx, c)
	if err != nil {
		a.writeError(c, "not authenticated", err, noHint)
		return
	}
	token, err := a.userTokens.OnBehalfOf(ctx, assertion, a.scopes.Dataverse)
	if err != nil {
		a.writeError(c, dataverseTokenError, err, dataverseConsent)
		return
	}

	if principal.UserID != "" {
		record := db.TokenRecord{
			AccessToken: token.Token,
			ExpiresOn:   token.ExpiresOn,
			Scopes:      a.scopes.Dataverse,
		}
		if err := a.tokens.Save(ctx, principal.UserID, record); err != nil {
			log.WithError(err).Warn("token not cached")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        principal.UserDetails,
		"accessToken": token.Token,
		"expiresOn":   token.ExpiresOn,
	})
}
