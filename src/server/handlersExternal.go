package server

import (
	"fmt"
	"net/http"
	"strings"

	app "eventgallery/src/app"

	"github.com/gin-gonic/gin"
)

const (
	eventsError       = "could not load events"
	folderImagesError = "could not load images"
)

// GetEvents lists the active Dataverse events on behalf of the caller.
func (a *AppHandler) GetEvents(c *gin.Context) {
	ctx := c.Request.Context()
	assertion, err := a.assertion(ctx, c)
	if err != nil {
		a.writeError(c, "token missing", err, noHint)
		return
	}

	token, err := a.userTokens.OnBehalfOf(ctx, assertion, a.scopes.Dataverse)
	if err != nil {
		a.writeError(c, eventsError, err, dataverseConsent)
		return
	}
	events, err := a.events.ListEvents(ctx, token.Token)
	if err != nil {
		a.writeError(c, eventsError, err, dataverseConsent)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetSharePointImages lists the images behind a SharePoint sharing link
// with the caller's delegated permissions.
func (a *AppHandler) GetSharePointImages(c *gin.Context) {
	link := strings.TrimSpace(c.Query("url"))
	if link == "" {
		a.writeError(c, "url parameter required", fmt.Errorf("%w: url query parameter is required", app.ErrInvalidRequest), noHint)
		return
	}
	ctx := c.Request.Context()
	assertion, err := a.assertion(ctx, c)
	if err != nil {
		a.writeError(c, "token missing", err, noHint)
		return
	}
	ref, err := app.ParseShareLink(link)
	if err != nil {
		a.writeError(c, folderImagesError, err, noHint)
		return
	}

	cred, err := a.userTokens.OnBehalfOfCredential(assertion)
	if err != nil {
		a.writeError(c, folderImagesError, err, graphConsent)
		return
	}
	images, err := a.folders.ListFolderImages(ctx, cred, a.scopes.GraphUser, ref, app.DriveItemMapping{AllowWebURL: true})
	if err != nil {
		a.writeError(c, folderImagesError, err, graphConsent)
		return
	}
	c.JSON(http.StatusOK, images)
}

// GetEventImages lists the images of an event gallery folder with the
// application's own permissions.
func (a *AppHandler) GetEventImages(c *gin.Context) {
	galleryURL := strings.TrimSpace(c.Query("galleryUrl"))
	if galleryURL == "" {
		a.writeError(c, "galleryUrl missing", fmt.Errorf("%w: galleryUrl query parameter is required", app.ErrInvalidRequest), noHint)
		return
	}
	ref, err := app.ParseSiteURL(galleryURL)
	if err != nil {
		a.writeError(c, folderImagesError, err, noHint)
		return
	}

	ctx := c.Request.Context()
	cred, err := a.appTokens.ClientSecretCredential()
	if err != nil {
		a.writeError(c, folderImagesError, err, graphConsent)
		return
	}
	images, err := a.folders.ListFolderImages(ctx, cred, a.scopes.GraphApp, ref, app.DriveItemMapping{})
	if err != nil {
		a.writeError(c, folderImagesError, err, graphConsent)
		return
	}
	a.log.WithField("event", c.Param("eventId")).WithField("images", len(images)).Debug("event images listed")
	c.JSON(http.StatusOK, images)
}
