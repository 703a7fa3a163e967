package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"github.com/microsoftgraph/msgraph-sdk-go/drives"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
)

const (
	DefaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

	graphService = "graph"
)

// ServiceClientFactory builds a Graph client that authenticates with cred
// for scopes.
type ServiceClientFactory func(cred azcore.TokenCredential, scopes []string) (*msgraphsdk.GraphServiceClient, error)

// GraphClient reads SharePoint folders through Microsoft Graph. Each call
// builds a service client from the credential it is given, so delegated and
// app-only reads share the same lookup.
type GraphClient struct {
	baseURL          string
	newServiceClient ServiceClientFactory
}

// NewGraphClient returns a client for baseURL. An empty baseURL targets the
// public Graph v1.0 endpoint.
func NewGraphClient(baseURL string) *GraphClient {
	return NewGraphClientWithFactory(baseURL, msgraphsdk.NewGraphServiceClientWithCredentials)
}

// NewGraphClientWithFactory is NewGraphClient with a custom service client
// factory, e.g. one that sends requests through a different http.Client.
func NewGraphClientWithFactory(baseURL string, factory ServiceClientFactory) *GraphClient {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	return &GraphClient{baseURL: strings.TrimSuffix(baseURL, "/"), newServiceClient: factory}
}

// ListFolderImages resolves ref to a drive folder and returns its images,
// most recent first. Every page of the folder listing is read.
func (g *GraphClient) ListFolderImages(ctx context.Context, cred azcore.TokenCredential, scopes []string, ref SharePointRef, mapping DriveItemMapping) ([]Image, error) {
	client, err := g.newServiceClient(cred, scopes)
	if err != nil {
		return nil, fmt.Errorf("create graph client: %w", err)
	}
	client.GetAdapter().SetBaseUrl(g.baseURL)

	site, err := client.Sites().BySiteId(ref.Host+":/sites/"+ref.Site).Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve site %s: %w", ref.Site, graphError(err))
	}

	drive, err := client.Sites().BySiteId(deref(site.GetId())).Drive().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve drive: %w", graphError(err))
	}
	driveID := deref(drive.GetId())

	var folder models.DriveItemable
	if p := ref.DrivePath(); p != "" {
		folder, err = client.Drives().ByDriveId(driveID).Items().ByDriveItemId("root:/"+p+":").Get(ctx, nil)
	} else {
		folder, err = client.Drives().ByDriveId(driveID).Root().Get(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve folder %q: %w", ref.FolderPath, graphError(err))
	}

	children, err := client.Drives().ByDriveId(driveID).Items().ByDriveItemId(deref(folder.GetId())).Children().Get(ctx,
		&drives.ItemItemsItemChildrenRequestBuilderGetRequestConfiguration{
			QueryParameters: &drives.ItemItemsItemChildrenRequestBuilderGetQueryParameters{
				Expand: []string{"thumbnails"},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", ref.FolderPath, graphError(err))
	}

	pages, err := msgraphcore.NewPageIterator[models.DriveItemable](children, client.GetAdapter(),
		models.CreateDriveItemCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", ref.FolderPath, err)
	}
	var images []Image
	err = pages.Iterate(ctx, func(item models.DriveItemable) bool {
		if item.GetFolder() != nil || !IsImageFile(deref(item.GetName())) {
			return true
		}
		if image, ok := ImageFromDriveItem(item, mapping); ok {
			images = append(images, image)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list folder %q: %w", ref.FolderPath, graphError(err))
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].LastModified.After(images[j].LastModified)
	})
	if images == nil {
		images = []Image{}
	}
	return images, nil
}

// graphError keeps the provider status and error body. Token failures raised
// while the SDK authenticates the request are reported as identity errors.
func graphError(err error) error {
	var authErr *azidentity.AuthenticationFailedError
	if errors.As(err, &authErr) {
		return identityError(err)
	}
	upstream := &UpstreamError{Service: graphService, Err: err}
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		upstream.StatusCode = odataErr.ResponseStatusCode
		if main := odataErr.GetErrorEscaped(); main != nil {
			upstream.Details = map[string]string{
				"code":    deref(main.GetCode()),
				"message": deref(main.GetMessage()),
			}
		}
	}
	return upstream
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
