package app

import (
	"path"
	"strings"
)

const defaultImageContentType = "image/jpeg"

var (
	imageAvailableFormats = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"}

	imageContentTypes = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
		".bmp":  "image/bmp",
	}
)

// IsImageFile reports whether name ends in one of the gallery image
// extensions, ignoring case.
func IsImageFile(name string) bool {
	return checkIn(name, imageAvailableFormats)
}

// ContentType picks the MIME type for an uploaded image from its extension.
func ContentType(fileName string) string {
	if contentType, ok := imageContentTypes[strings.ToLower(path.Ext(fileName))]; ok {
		return contentType
	}
	return defaultImageContentType
}

// Caption is the file name without its extension.
func Caption(fileName string) string {
	return strings.TrimSuffix(fileName, path.Ext(fileName))
}

func checkIn(key string, filters []string) bool {
	ext := strings.ToLower(path.Ext(key))
	if ext == "" {
		return false
	}
	for _, f := range filters {
		if f == ext {
			return true
		}
	}
	return false
}
