package server

import (
	"context"

	app "eventgallery/src/app"
	db "eventgallery/src/repository"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

type (
	// TokenExchanger obtains downstream tokens, or the credentials that
	// mint them, from the identity provider.
	TokenExchanger interface {
		OnBehalfOf(ctx context.Context, assertion string, scopes []string) (app.AccessToken, error)
		OnBehalfOfCredential(assertion string) (azcore.TokenCredential, error)
		ClientSecretCredential() (azcore.TokenCredential, error)
	}

	// EventSource lists events from the business data service.
	EventSource interface {
		ListEvents(ctx context.Context, accessToken string) ([]app.Event, error)
	}

	// FolderImageSource lists the images of a SharePoint folder.
	FolderImageSource interface {
		ListFolderImages(ctx context.Context, cred azcore.TokenCredential, scopes []string, ref app.SharePointRef, mapping app.DriveItemMapping) ([]app.Image, error)
	}

	// BlobGallery serves events and images kept in object storage.
	BlobGallery interface {
		ListEvents(ctx context.Context) ([]app.Event, error)
		ListImages(ctx context.Context, folder string) ([]app.Image, error)
		Upload(ctx context.Context, eventID string, images []app.UploadImage) (app.UploadSummary, error)
	}

	// TokenCache keeps user tokens between requests.
	TokenCache interface {
		Save(ctx context.Context, userID string, record db.TokenRecord) error
		AccessToken(ctx context.Context, userID string) (string, error)
	}

	AssertionVerifier interface {
		Verify(ctx context.Context, assertion string) error
	}
)
