package app

import "time"

// Event is the gallery view of an event, whichever store it came from.
type Event struct {
	// Stable identifier of the event.
	ID string `json:"id"`

	// Folder under which the event images are stored. Only set for events
	// read from the blob index.
	Folder string `json:"folder,omitempty"`

	Name        string `json:"name"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description"`

	// SharePoint folder holding the event photos.
	GalleryURL string `json:"galleryUrl"`

	// Free-form category shown on the event card.
	Type string `json:"type"`

	// Number of images found for the event. Zero when not computed.
	ImageCount int `json:"imageCount"`
}

// EventIndex is the layout of the index blob listing every event.
type EventIndex struct {
	Events []Event `json:"events"`
}

// Image is a single picture exposed to the gallery. URL and Thumbnail are
// always set; records without a usable URL are never emitted.
type Image struct {
	// Provider identifier: the blob name or the drive item id.
	ID string `json:"id"`

	// File name without any folder prefix.
	Name string `json:"name"`

	// Signed or delegated URL to the full image.
	URL string `json:"url"`

	Thumbnail string `json:"thumbnail"`

	// File name without extension.
	Caption string `json:"caption"`

	// Size of the image in bytes.
	Size int64 `json:"size"`

	LastModified time.Time `json:"lastModified"`
}

// ObjectInfo describes an object returned by an ObjectStore listing.
type ObjectInfo struct {
	Name         string
	Size         int64
	LastModified time.Time
}
