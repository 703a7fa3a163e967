package app

import (
	"path"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
)

const defaultEventType = "Evento"

// DataverseEvent is one row of the events table as returned by the OData API.
type DataverseEvent struct {
	ID          string `json:"cr15b_mesheventid"`
	Name        string `json:"cr15b_name"`
	Date        string `json:"cr15b_date"`
	Description string `json:"cr15b_description"`
	GalleryURL  string `json:"cr15b_galleryurl"`
	Type        string `json:"cr15b_type"`
}

// EventFromDataverse maps a Dataverse row to the gallery event. The image
// count is only known once the gallery is opened, so it is reported as zero.
func EventFromDataverse(row DataverseEvent) Event {
	eventType := row.Type
	if eventType == "" {
		eventType = defaultEventType
	}
	return Event{
		ID:          row.ID,
		Name:        row.Name,
		Date:        row.Date,
		Description: row.Description,
		GalleryURL:  row.GalleryURL,
		Type:        eventType,
		ImageCount:  0,
	}
}

// DriveItemMapping selects the URL fallbacks used when mapping drive items.
// The delegated route may fall back to the SharePoint web URL, the app-only
// route only ever exposes the pre-authenticated download URL.
type DriveItemMapping struct {
	AllowWebURL bool
}

// downloadURLKey is the instance annotation carrying the short-lived,
// pre-authenticated content URL of a drive item.
const downloadURLKey = "@microsoft.graph.downloadUrl"

// ImageFromDriveItem maps a Graph drive item to a gallery image. ok is false
// when the item has no usable URL or thumbnail.
func ImageFromDriveItem(item models.DriveItemable, mapping DriveItemMapping) (Image, bool) {
	download := downloadURL(item)
	url := download
	if url == "" && mapping.AllowWebURL {
		url = deref(item.GetWebUrl())
	}
	thumbnail := thumbnailURL(item.GetThumbnails())
	if thumbnail == "" {
		thumbnail = download
	}
	if url == "" || thumbnail == "" {
		return Image{}, false
	}
	name := deref(item.GetName())
	return Image{
		ID:           deref(item.GetId()),
		Name:         name,
		URL:          url,
		Thumbnail:    thumbnail,
		Caption:      Caption(name),
		Size:         deref(item.GetSize()),
		LastModified: deref(item.GetLastModifiedDateTime()),
	}, true
}

func downloadURL(item models.DriveItemable) string {
	switch v := item.GetAdditionalData()[downloadURLKey].(type) {
	case *string:
		return deref(v)
	case string:
		return v
	}
	return ""
}

func thumbnailURL(sets []models.ThumbnailSetable) string {
	if len(sets) == 0 || sets[0] == nil {
		return ""
	}
	first := sets[0]
	if large := first.GetLarge(); large != nil && deref(large.GetUrl()) != "" {
		return *large.GetUrl()
	}
	if medium := first.GetMedium(); medium != nil && deref(medium.GetUrl()) != "" {
		return *medium.GetUrl()
	}
	return ""
}

// ImageFromObject maps a stored object and its signed URL to a gallery
// image. The signed URL doubles as thumbnail.
func ImageFromObject(object ObjectInfo, signedURL string) (Image, bool) {
	if signedURL == "" {
		return Image{}, false
	}
	fileName := path.Base(object.Name)
	return Image{
		ID:           object.Name,
		Name:         fileName,
		URL:          signedURL,
		Thumbnail:    signedURL,
		Caption:      Caption(fileName),
		Size:         object.Size,
		LastModified: object.LastModified,
	}, true
}
