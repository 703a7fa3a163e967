package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

const blobService = "blob storage"

// AzureBlobStore is an ObjectStore over a single Azure Blob container. It
// must be built from a connection string carrying the account key so that
// read URLs can be signed with the shared key.
type AzureBlobStore struct {
	client    *azblob.Client
	container *container.Client
}

// NewAzureBlobStore connects to containerName using connectionString.
func NewAzureBlobStore(connectionString, containerName string) (*AzureBlobStore, error) {
	if strings.TrimSpace(connectionString) == "" {
		return nil, fmt.Errorf("storage connection string: %w", ErrNotConfigured)
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &AzureBlobStore{
		client:    client,
		container: client.ServiceClient().NewContainerClient(containerName),
	}, nil
}

func (s *AzureBlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	resp, err := s.container.NewBlobClient(name).DownloadStream(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("%s: %w", name, ErrObjectNotFound)
		}
		return nil, azureError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *AzureBlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	result := make([]ObjectInfo, 0)
	pager := s.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, azureError(err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			info := ObjectInfo{Name: *item.Name}
			if props := item.Properties; props != nil {
				if props.ContentLength != nil {
					info.Size = *props.ContentLength
				}
				if props.LastModified != nil {
					info.LastModified = *props.LastModified
				}
			}
			result = append(result, info)
		}
	}
	return result, nil
}

func (s *AzureBlobStore) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	start := time.Now().UTC()
	signed, err := s.container.NewBlobClient(name).GetSASURL(
		sas.BlobPermissions{Read: true},
		start.Add(ttl),
		&blob.GetSASURLOptions{StartTime: &start})
	if err != nil {
		return "", fmt.Errorf("sign %s: %w", name, err)
	}
	return signed, nil
}

func (s *AzureBlobStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	blockBlob := s.container.NewBlockBlobClient(name)
	_, err := blockBlob.UploadBuffer(ctx, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", azureError(err)
	}
	return blockBlob.URL(), nil
}

func azureError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return &UpstreamError{
			Service:    blobService,
			StatusCode: respErr.StatusCode,
			Details:    respErr.ErrorCode,
			Err:        err,
		}
	}
	return &UpstreamError{Service: blobService, Err: err}
}
