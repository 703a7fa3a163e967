package app

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
)

// UploadImage is one image of an upload batch. It accepts either a bare
// string payload or an object {data|base64string, fileName}.
type UploadImage struct {
	Data     string
	FileName string
}

func (u *UploadImage) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err == nil {
		*u = UploadImage{Data: raw}
		return nil
	}
	var body struct {
		Data         string `json:"data"`
		Base64String string `json:"base64string"`
		FileName     string `json:"fileName"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return fmt.Errorf("image must be a base64 string or an object: %w", err)
	}
	u.Data = body.Data
	if u.Data == "" {
		u.Data = body.Base64String
	}
	u.FileName = body.FileName
	return nil
}

// UploadResult describes one stored image.
type UploadResult struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName"`
	BlobName string `json:"blobName"`
	URL      string `json:"url"`
}

// UploadSummary reports the outcome of a batch. Failed images are listed in
// Errors and do not stop the batch.
type UploadSummary struct {
	Success  bool           `json:"success"`
	Uploaded int            `json:"uploaded"`
	Total    int            `json:"total"`
	Results  []UploadResult `json:"results"`
	Errors   []string       `json:"errors,omitempty"`
	Message  string         `json:"message"`
}

var errEmptyPayload = errors.New("empty image payload")

// DecodeImageData decodes a data URL (data:image/jpeg;base64,...) or a bare
// base64 payload.
func DecodeImageData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		comma := strings.Index(data, ",")
		if comma < 0 {
			return nil, errors.New("malformed data URL")
		}
		data = data[comma+1:]
	}
	if data == "" {
		return nil, errEmptyPayload
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(data); rawErr == nil {
			decoded = raw
		} else {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
	}
	if len(decoded) == 0 {
		return nil, errEmptyPayload
	}
	return decoded, nil
}

// cleanFileName keeps only the last path element of a client supplied name.
func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}
