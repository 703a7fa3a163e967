package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	app "eventgallery/src/app"
	db "eventgallery/src/repository"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeExchanger struct {
	token      app.AccessToken
	err        error
	assertions []string
	scopes     [][]string
}

func (f *fakeExchanger) OnBehalfOf(_ context.Context, assertion string, scopes []string) (app.AccessToken, error) {
	f.assertions = append(f.assertions, assertion)
	f.scopes = append(f.scopes, scopes)
	return f.token, f.err
}

func (f *fakeExchanger) OnBehalfOfCredential(assertion string) (azcore.TokenCredential, error) {
	f.assertions = append(f.assertions, assertion)
	if f.err != nil {
		return nil, f.err
	}
	return fakeCredential("obo:" + assertion), nil
}

func (f *fakeExchanger) ClientSecretCredential() (azcore.TokenCredential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return fakeCredential("app"), nil
}

type fakeCredential string

func (f fakeCredential) GetToken(context.Context, policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: string(f)}, nil
}

type fakeEvents struct {
	events []app.Event
	err    error
	tokens []string
}

func (f *fakeEvents) ListEvents(_ context.Context, accessToken string) ([]app.Event, error) {
	f.tokens = append(f.tokens, accessToken)
	return f.events, f.err
}

type fakeFolders struct {
	images   []app.Image
	err      error
	creds    []azcore.TokenCredential
	scopes   [][]string
	refs     []app.SharePointRef
	mappings []app.DriveItemMapping
}

func (f *fakeFolders) ListFolderImages(_ context.Context, cred azcore.TokenCredential, scopes []string, ref app.SharePointRef, mapping app.DriveItemMapping) ([]app.Image, error) {
	f.creds = append(f.creds, cred)
	f.scopes = append(f.scopes, scopes)
	f.refs = append(f.refs, ref)
	f.mappings = append(f.mappings, mapping)
	return f.images, f.err
}

type fakeGallery struct {
	events   []app.Event
	images   []app.Image
	summary  app.UploadSummary
	err      error
	folders  []string
	uploaded [][]app.UploadImage
}

func (f *fakeGallery) ListEvents(context.Context) ([]app.Event, error) {
	return f.events, f.err
}

func (f *fakeGallery) ListImages(_ context.Context, folder string) ([]app.Image, error) {
	f.folders = append(f.folders, folder)
	return f.images, f.err
}

func (f *fakeGallery) Upload(_ context.Context, _ string, images []app.UploadImage) (app.UploadSummary, error) {
	f.uploaded = append(f.uploaded, images)
	return f.summary, f.err
}

type fakeVerifier struct {
	err error
}

func (f fakeVerifier) Verify(context.Context, string) error {
	return f.err
}

type testEnv struct {
	router     *gin.Engine
	gallery    *fakeGallery
	userTokens *fakeExchanger
	appTokens  *fakeExchanger
	events     *fakeEvents
	folders    *fakeFolders
}

func newTestEnv(t *testing.T, configure func(*Dependencies)) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		gallery:    &fakeGallery{},
		userTokens: &fakeExchanger{token: app.AccessToken{Token: "obo-token", ExpiresOn: time.Now().Add(time.Hour)}},
		appTokens:  &fakeExchanger{token: app.AccessToken{Token: "app-token", ExpiresOn: time.Now().Add(time.Hour)}},
		events:     &fakeEvents{},
		folders:    &fakeFolders{},
	}
	deps := Dependencies{
		Logger:     logger,
		Gallery:    env.gallery,
		UserTokens: env.userTokens,
		AppTokens:  env.appTokens,
		Events:     env.events,
		Folders:    env.folders,
		Tokens:     db.NewTokenVault(db.NewInMemoryTokenStore(), logger),
		Scopes: Scopes{
			Dataverse: []string{"https://org.crm4.dynamics.com/user_impersonation"},
			GraphUser: []string{"https://graph.microsoft.com/Files.Read.All"},
			GraphApp:  []string{"https://graph.microsoft.com/.default"},
		},
	}
	if configure != nil {
		configure(&deps)
	}
	env.router = NewRouter(deps)
	return env
}

func (e *testEnv) do(method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

var apiPaths = []string{
	"/api/auth-callback",
	"/api/events",
	"/api/events/42/images",
	"/api/blob-events",
	"/api/blob-images",
	"/api/sharepoint-images",
	"/api/upload-event-images",
	"/api/get-dataverse-token",
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range apiPaths {
		t.Run(path, func(t *testing.T) {
			rec := env.do(http.MethodOptions, path, nil, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, corsAllowMethods, rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "x-ms-client-principal")

			rec = env.do(http.MethodOptions, path, nil, map[string]string{
				"Origin":                        "https://gallery.example",
				"Access-Control-Request-Method": http.MethodPost,
			})
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
			// The cors middleware answers browser preflights with its own
			// comma-joined, canonicalised lists.
			assert.Equal(t, "GET,POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type,Authorization,X-User-Id,X-Ms-Token-Aad-Access-Token,X-Ms-Client-Principal",
				rec.Header().Get("Access-Control-Allow-Headers"))
		})
	}
}

func TestHealthAndNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/health", nil, map[string]string{headerRequestID: "req-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())
	assert.Equal(t, "req-1", rec.Header().Get(headerRequestID))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(http.MethodGet, "/api/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	assert.Equal(t, "not found", decodeError(t, rec).Error)
}

func TestGetEvents(t *testing.T) {
	t.Run("missing assertion", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/events", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, env.userTokens.assertions)
		assert.Empty(t, env.events.tokens)
	})

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.events.events = []app.Event{{ID: "a1", Name: "Team Day", Type: "Evento"}}

		rec := env.do(http.MethodGet, "/api/events", nil, map[string]string{headerAccessToken: "user-assertion"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var events []app.Event
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
		assert.Equal(t, env.events.events, events)
		assert.Equal(t, []string{"user-assertion"}, env.userTokens.assertions)
		assert.Equal(t, [][]string{{"https://org.crm4.dynamics.com/user_impersonation"}}, env.userTokens.scopes)
		assert.Equal(t, []string{"obo-token"}, env.events.tokens)
	})

	t.Run("bearer header", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/events", nil, map[string]string{"Authorization": "Bearer from-header"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"from-header"}, env.userTokens.assertions)
	})

	t.Run("consent required", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.userTokens.err = &app.UpstreamError{Service: "identity", StatusCode: http.StatusBadRequest, Err: errors.New("AADSTS65001: consent required")}

		rec := env.do(http.MethodGet, "/api/events", nil, map[string]string{headerAccessToken: "user-assertion"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, eventsError, body.Error)
		assert.Equal(t, dataverseConsentHint, body.Hint)
		assert.Empty(t, env.events.tokens)
	})

	t.Run("provider error relayed", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.events.err = &app.UpstreamError{Service: "dataverse", StatusCode: http.StatusForbidden, Details: map[string]any{"code": "0x80040220"}}

		rec := env.do(http.MethodGet, "/api/events", nil, map[string]string{headerAccessToken: "user-assertion"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, map[string]any{"code": "0x80040220"}, body.Details)
		assert.Empty(t, body.Hint)
	})

	t.Run("transport failure", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.events.err = &app.UpstreamError{Service: "dataverse", Err: errors.New("connection reset")}

		rec := env.do(http.MethodGet, "/api/events", nil, map[string]string{headerAccessToken: "user-assertion"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("rejected assertion", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) { d.Verifier = fakeVerifier{err: errors.New("token expired")} })

		rec := env.do(http.MethodGet, "/api/events", nil, map[string]string{headerAccessToken: "user-assertion"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, env.userTokens.assertions)
	})
}

func TestGetSharePointImages(t *testing.T) {
	link := "https://contoso.sharepoint.com/:f:/r/sites/events/Shared%20Documents/Team%20Day?csf=1"

	t.Run("missing url", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/sharepoint-images", nil, map[string]string{headerAccessToken: "a"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing assertion", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/sharepoint-images?url="+link, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unparseable url", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/sharepoint-images?url=ftp://contoso/sites/x", nil, map[string]string{headerAccessToken: "a"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, env.userTokens.assertions)
	})

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.folders.images = []app.Image{{ID: "1", Name: "a.jpg", URL: "https://dl/a", Thumbnail: "https://t/a"}}

		req := "/api/sharepoint-images?url=" + encodeQuery(link)
		rec := env.do(http.MethodGet, req, nil, map[string]string{headerAccessToken: "a"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		require.Len(t, env.folders.refs, 1)
		assert.Equal(t, app.SharePointRef{Host: "contoso.sharepoint.com", Site: "events", FolderPath: "Shared Documents/Team Day"}, env.folders.refs[0])
		assert.True(t, env.folders.mappings[0].AllowWebURL)
		assert.Equal(t, []string{"a"}, env.userTokens.assertions)
		assert.Equal(t, []azcore.TokenCredential{fakeCredential("obo:a")}, env.folders.creds)
		assert.Equal(t, [][]string{{"https://graph.microsoft.com/Files.Read.All"}}, env.folders.scopes)
	})

	t.Run("admin approval hint", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.folders.err = &app.UpstreamError{Service: "identity", Err: errors.New("AADSTS65001: consent required")}

		rec := env.do(http.MethodGet, "/api/sharepoint-images?url="+encodeQuery(link), nil, map[string]string{headerAccessToken: "a"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, graphConsentHint, decodeError(t, rec).Hint)
	})

	t.Run("invalid grant gets no admin hint", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.folders.err = &app.UpstreamError{Service: "identity", StatusCode: http.StatusBadRequest, Err: errors.New(`{"error":"invalid_grant"}`)}

		rec := env.do(http.MethodGet, "/api/sharepoint-images?url="+encodeQuery(link), nil, map[string]string{headerAccessToken: "a"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, decodeError(t, rec).Hint)
	})

	t.Run("credential not configured", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.userTokens.err = fmt.Errorf("token broker credentials: %w", app.ErrNotConfigured)

		rec := env.do(http.MethodGet, "/api/sharepoint-images?url="+encodeQuery(link), nil, map[string]string{headerAccessToken: "a"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, env.folders.refs)
	})
}

func TestGetEventImages(t *testing.T) {
	t.Run("missing galleryUrl", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/events/42/images", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("app-only listing", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.folders.images = []app.Image{}

		gallery := encodeQuery("https://contoso.sharepoint.com/sites/events/Shared Documents/2024")
		rec := env.do(http.MethodGet, "/api/events/42/images?galleryUrl="+gallery, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `[]`, rec.Body.String())

		assert.Equal(t, []azcore.TokenCredential{fakeCredential("app")}, env.folders.creds)
		assert.Equal(t, [][]string{{"https://graph.microsoft.com/.default"}}, env.folders.scopes)
		assert.Empty(t, env.userTokens.assertions)
		assert.False(t, env.folders.mappings[0].AllowWebURL)
		assert.Equal(t, "Shared Documents/2024", env.folders.refs[0].FolderPath)
	})

	t.Run("app credentials missing", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.appTokens.err = fmt.Errorf("token broker credentials: %w", app.ErrNotConfigured)

		rec := env.do(http.MethodGet, "/api/events/42/images?galleryUrl=https://contoso.sharepoint.com/sites/events", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "configuration missing", decodeError(t, rec).Error)
	})
}

func TestBlobRoutes(t *testing.T) {
	t.Run("events", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gallery.events = []app.Event{{ID: "e1", Folder: "e1", Name: "Team Day", ImageCount: 3}}

		rec := env.do(http.MethodGet, "/api/blob-events", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[{"id":"e1","folder":"e1","name":"Team Day","description":"","galleryUrl":"","type":"","imageCount":3}]`, rec.Body.String())
	})

	t.Run("images require folder", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/blob-images", nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, env.gallery.folders)
	})

	t.Run("images", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gallery.images = []app.Image{{ID: "e1/a.jpg", Name: "a.jpg"}}

		rec := env.do(http.MethodGet, "/api/blob-images?folder=e1", nil, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"e1"}, env.gallery.folders)
	})

	t.Run("storage not configured", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gallery.err = fmt.Errorf("storage connection string: %w", app.ErrNotConfigured)

		rec := env.do(http.MethodGet, "/api/blob-images?folder=e1", nil, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "configuration missing", decodeError(t, rec).Error)
	})

	t.Run("missing index", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gallery.err = fmt.Errorf("read event index: %w", app.ErrObjectNotFound)

		rec := env.do(http.MethodGet, "/api/blob-events", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPostEventImages(t *testing.T) {
	payload := `{"eventId":"e1","images":["aGVsbG8=",{"base64string":"d29ybGQ=","fileName":"b.png"},{"data":"%%%"}]}`

	t.Run("partial success", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gallery.summary = app.UploadSummary{Success: true, Uploaded: 2, Total: 3, Errors: []string{"image 3 upload failed"}}

		rec := env.do(http.MethodPost, "/api/upload-event-images", payload, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var summary app.UploadSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.Equal(t, 2, summary.Uploaded)
		assert.Equal(t, 3, summary.Total)

		require.Len(t, env.gallery.uploaded, 1)
		assert.Equal(t, []app.UploadImage{
			{Data: "aGVsbG8="},
			{Data: "d29ybGQ=", FileName: "b.png"},
			{Data: "%%%"},
		}, env.gallery.uploaded[0])
	})

	t.Run("nothing uploaded", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gallery.summary = app.UploadSummary{Uploaded: 0, Total: 3}

		rec := env.do(http.MethodPost, "/api/upload-event-images", payload, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total":3`)
	})

	t.Run("unknown event", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gallery.err = fmt.Errorf("e1: %w", app.ErrEventNotFound)

		rec := env.do(http.MethodPost, "/api/upload-event-images", payload, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.gallery.err = fmt.Errorf("%w: eventId is required", app.ErrInvalidRequest)

		rec := env.do(http.MethodPost, "/api/upload-event-images", `{"images":["eA=="]}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(http.MethodPost, "/api/upload-event-images", `not json`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t, func(d *Dependencies) {
			d.RateLimit = 1
			d.RateLimitWindow = time.Hour
		})
		env.gallery.summary = app.UploadSummary{Success: true, Uploaded: 1, Total: 1}

		assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/upload-event-images", payload, nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/api/upload-event-images", payload, nil).Code)
		assert.Equal(t, http.StatusOK, env.do(http.MethodOptions, "/api/upload-event-images", nil, nil).Code)
	})
}

func TestAuthCallback(t *testing.T) {
	env := newTestEnv(t, nil)
	user := map[string]string{headerUserID: "alice"}

	rec := env.do(http.MethodGet, "/api/auth-callback", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/auth-callback", nil, user)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth-callback", map[string]any{"refreshToken": "rt"}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth-callback", map[string]any{
		"accessToken":  "at",
		"refreshToken": "rt",
		"expiresOn":    time.Now().Add(time.Hour).Format(time.RFC3339),
		"scopes":       "Files.Read.All User.Read",
	}, user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"token saved"}`, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/auth-callback", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"hasToken":true}`, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/auth-callback", map[string]any{
		"accessToken": "at",
		"expiresOn":   time.Now().Add(2 * time.Minute).Unix(),
	}, user)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/auth-callback", nil, user)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "token not found", decodeError(t, rec).Error)
}

func encodePrincipal(t *testing.T, principal ClientPrincipal) string {
	t.Helper()
	data, err := json.Marshal(principal)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func TestDataverseToken(t *testing.T) {
	principal := encodePrincipal(t, ClientPrincipal{IdentityProvider: "aad", UserID: "u-1", UserDetails: "alice@contoso.com"})

	t.Run("missing principal", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/get-dataverse-token", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed principal", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/get-dataverse-token", nil, map[string]string{headerClientPrincipal: "%%%"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("principal without assertion", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/get-dataverse-token", nil, map[string]string{headerClientPrincipal: principal})
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "alice@contoso.com", body["user"])
		assert.NotEmpty(t, body["note"])
		assert.Empty(t, env.userTokens.assertions)
	})

	t.Run("on-behalf-of exchange is cached", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(http.MethodGet, "/api/get-dataverse-token", nil, map[string]string{
			headerClientPrincipal: principal,
			headerAccessToken:     "user-assertion",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			User        string    `json:"user"`
			AccessToken string    `json:"accessToken"`
			ExpiresOn   time.Time `json:"expiresOn"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "alice@contoso.com", body.User)
		assert.Equal(t, "obo-token", body.AccessToken)
		assert.Equal(t, [][]string{{"https://org.crm4.dynamics.com/user_impersonation"}}, env.userTokens.scopes)

		rec = env.do(http.MethodGet, "/api/auth-callback", nil, map[string]string{headerUserID: "u-1"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("consent hint", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.userTokens.err = &app.UpstreamError{Service: "identity", StatusCode: http.StatusBadRequest, Err: errors.New("invalid_grant")}

		rec := env.do(http.MethodGet, "/api/get-dataverse-token", nil, map[string]string{
			headerClientPrincipal: principal,
			headerAccessToken:     "user-assertion",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, dataverseConsentHint, decodeError(t, rec).Hint)
	})
}
