package app

import (
	"net/url"
	"strings"
)

const sharedDocumentsLibrary = "Shared Documents"

// SharePointRef locates a folder inside the default document library of a
// SharePoint site.
type SharePointRef struct {
	Host       string
	Site       string
	FolderPath string
}

// DrivePath is FolderPath relative to the root of the default drive. The
// default drive of a site is the "Shared Documents" library, so a leading
// library segment is dropped.
func (r SharePointRef) DrivePath() string {
	p := strings.Trim(r.FolderPath, "/")
	if p == sharedDocumentsLibrary {
		return ""
	}
	return strings.TrimPrefix(p, sharedDocumentsLibrary+"/")
}

// ParseSiteURL parses a canonical site URL of the form
// https://{host}/sites/{site}/{folder...}.
func ParseSiteURL(raw string) (SharePointRef, error) {
	u, segments, siteIndex, err := parseSitePath(raw)
	if err != nil {
		return SharePointRef{}, err
	}
	return SharePointRef{
		Host:       u.Hostname(),
		Site:       segments[siteIndex],
		FolderPath: strings.Join(segments[siteIndex+1:], "/"),
	}, nil
}

// ParseShareLink parses a "Copy link" sharing URL such as
// https://{host}/:f:/r/sites/{site}/Shared%20Documents/{folder...}!?csf=1.
// Links that do not point inside Shared Documents resolve to the library
// root.
func ParseShareLink(raw string) (SharePointRef, error) {
	u, segments, siteIndex, err := parseSitePath(raw)
	if err != nil {
		return SharePointRef{}, err
	}
	ref := SharePointRef{
		Host:       u.Hostname(),
		Site:       segments[siteIndex],
		FolderPath: sharedDocumentsLibrary,
	}
	// u.Path is already percent-decoded.
	if idx := strings.Index(u.Path, sharedDocumentsLibrary); idx >= 0 {
		folder := u.Path[idx:]
		if cut := strings.IndexAny(folder, "?!"); cut >= 0 {
			folder = folder[:cut]
		}
		if folder = strings.TrimRight(folder, "/"); folder != "" {
			ref.FolderPath = folder
		}
	}
	return ref, nil
}

// parseSitePath returns the parsed URL, its non-empty path segments and the
// index of the site name segment.
func parseSitePath(raw string) (*url.URL, []string, int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, 0, &ParseError{Input: raw, Reason: "empty URL"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, nil, 0, &ParseError{Input: raw, Reason: err.Error()}
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Hostname() == "" {
		return nil, nil, 0, &ParseError{Input: raw, Reason: "not an absolute http(s) URL"}
	}
	segments := make([]string, 0)
	for _, segment := range strings.Split(u.Path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	for i, segment := range segments {
		if segment != "sites" {
			continue
		}
		if i+1 >= len(segments) {
			break
		}
		return u, segments, i + 1, nil
	}
	return nil, nil, 0, &ParseError{Input: raw, Reason: "URL does not contain /sites/{name}"}
}
