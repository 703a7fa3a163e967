package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioService = "object storage"

type ClientMinio interface {
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (info minio.UploadInfo, err error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// MinioS3Client is an ObjectStore over an S3-compatible bucket, used for local
// development against MinIO.
type MinioS3Client struct {
	endpoint   string
	useSSL     bool
	bucketName string
	client     ClientMinio
}

// NewMinioS3Client creates a new MinioS3Client instance.
func NewMinioS3Client(endpoint, accessKeyID, secretAccessKey, bucketName string, useSSL bool) (*MinioS3Client, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint: %w", ErrNotConfigured)
	}
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client for %s: %w", endpoint, err)
	}
	return newMinioS3Client(minioClient, endpoint, bucketName, useSSL), nil
}

func newMinioS3Client(client ClientMinio, endpoint, bucketName string, useSSL bool) *MinioS3Client {
	return &MinioS3Client{
		endpoint:   endpoint,
		useSSL:     useSSL,
		bucketName: bucketName,
		client:     client,
	}
}

func (s3 *MinioS3Client) Get(ctx context.Context, name string) ([]byte, error) {
	object, err := s3.client.GetObject(ctx, s3.bucketName, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, minioError(name, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, minioError(name, err)
	}
	return data, nil
}

func (s3 *MinioS3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make([]ObjectInfo, 0)
	objectCh := s3.client.ListObjects(ctx, s3.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, minioError(prefix, object.Err)
		}
		result = append(result, ObjectInfo{
			Name:         object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return result, nil
}

func (s3 *MinioS3Client) SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	presignedURL, err := s3.client.PresignedGetObject(ctx, s3.bucketName, name, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", name, err)
	}
	return presignedURL.String(), nil
}

// Put uploads an object to the bucket.
func (s3 *MinioS3Client) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	_, err := s3.client.PutObject(ctx,
		s3.bucketName,
		name,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", minioError(name, err)
	}
	return s3.objectURL(name), nil
}

func (s3 *MinioS3Client) objectURL(name string) string {
	scheme := "http"
	if s3.useSSL {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: s3.endpoint, Path: "/" + s3.bucketName + "/" + name}
	return u.String()
}

func minioError(name string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%s: %w", name, ErrObjectNotFound)
	case "":
		return &UpstreamError{Service: minioService, Err: err}
	}
	return &UpstreamError{
		Service:    minioService,
		StatusCode: resp.StatusCode,
		Details:    resp.Code,
		Err:        err,
	}
}
