package server

import (
	"fmt"
	"net/http"
	"strings"

	app "eventgallery/src/app"

	"github.com/gin-gonic/gin"
)

const (
	blobEventsError = "could not load events"
	blobImagesError = "could not load images"
	uploadError     = "image upload failed"
)

// GetBlobEvents lists the events of the storage index with their image counts.
func (a *AppHandler) GetBlobEvents(c *gin.Context) {
	events, err := a.gallery.ListEvents(c.Request.Context())
	if err != nil {
		a.writeError(c, blobEventsError, err, noHint)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetBlobImages lists the images of one event folder with signed URLs.
func (a *AppHandler) GetBlobImages(c *gin.Context) {
	folder := strings.TrimSpace(c.Query("folder"))
	if folder == "" {
		a.writeError(c, "folder parameter required", fmt.Errorf("%w: folder query parameter is required", app.ErrInvalidRequest), noHint)
		return
	}
	images, err := a.gallery.ListImages(c.Request.Context(), folder)
	if err != nil {
		a.writeError(c, blobImagesError, err, noHint)
		return
	}
	c.JSON(http.StatusOK, images)
}

// PostEventImages uploads a batch of base64 images into an event folder.
// The batch succeeds when at least one image was stored.
func (a *AppHandler) PostEventImages(c *gin.Context) {
	var body uploadBody
	if err := c.ShouldBindJSON(&body); err != nil {
		a.writeError(c, "invalid upload payload", fmt.Errorf("%w: %v", app.ErrInvalidRequest, err), noHint)
		return
	}

	summary, err := a.gallery.Upload(c.Request.Context(), body.EventID, body.Images)
	if err != nil {
		a.writeError(c, uploadError, err, noHint)
		return
	}

	status := http.StatusOK
	if summary.Uploaded == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, summary)
}
