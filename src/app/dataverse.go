package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

const (
	dataverseService = "dataverse"

	dataverseSelect  = "cr15b_mesheventid,cr15b_name,cr15b_date,cr15b_description,cr15b_galleryurl,cr15b_type"
	dataverseOrderBy = "cr15b_date desc"
	dataverseFilter  = "statecode eq 0"
)

// DataverseClient reads active events from the Dataverse events table.
type DataverseClient struct {
	environmentURL string
	apiVersion     string
	table          string
	httpClient     *http.Client
}

func NewDataverseClient(environmentURL, apiVersion, table string, httpClient *http.Client) *DataverseClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &DataverseClient{
		environmentURL: strings.TrimSuffix(environmentURL, "/"),
		apiVersion:     apiVersion,
		table:          table,
		httpClient:     httpClient,
	}
}

type dataverseResponse struct {
	Value []DataverseEvent `json:"value"`
}

// ListEvents issues a single OData query for the active events, newest first.
func (d *DataverseClient) ListEvents(ctx context.Context, accessToken string) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.queryURL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
	req.Header.Set("Prefer", `odata.include-annotations="*"`)

	resp, err := bearerClient(ctx, d.httpClient, accessToken).Do(req)
	if err != nil {
		return nil, &UpstreamError{Service: dataverseService, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newUpstreamError(dataverseService, resp)
	}

	var body dataverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &UpstreamError{Service: dataverseService, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	events := make([]Event, 0, len(body.Value))
	for _, row := range body.Value {
		events = append(events, EventFromDataverse(row))
	}
	return events, nil
}

func (d *DataverseClient) queryURL() string {
	query := strings.Join([]string{
		"$select=" + odataEscape(dataverseSelect),
		"$orderby=" + odataEscape(dataverseOrderBy),
		"$filter=" + odataEscape(dataverseFilter),
	}, "&")
	return fmt.Sprintf("%s/api/data/v%s/%s?%s", d.environmentURL, d.apiVersion, d.table, query)
}

// odataEscape escapes a query value keeping spaces as %20, which OData
// expects instead of "+".
func odataEscape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// bearerClient wraps base so that every request carries accessToken.
func bearerClient(ctx context.Context, base *http.Client, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}
