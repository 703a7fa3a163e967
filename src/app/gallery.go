package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultIndexName        = "_index.json"
	DefaultSignedURLExpiry  = 60 * time.Minute
	defaultCountConcurrency = 8
)

type GalleryOptions struct {
	// IndexName is the object listing every event.
	IndexName string
	// SignedURLExpiry bounds the lifetime of image URLs.
	SignedURLExpiry time.Duration
	// CountConcurrency bounds the per-event image count fan-out.
	CountConcurrency int
}

// Gallery serves events and images kept in an ObjectStore. A Gallery built
// without a store answers every call with ErrNotConfigured.
type Gallery struct {
	store   ObjectStore
	opts    GalleryOptions
	log     *logrus.Entry
	now     func() time.Time
	newName func(now time.Time) string
}

func NewGallery(store ObjectStore, opts GalleryOptions, logger *logrus.Logger) *Gallery {
	if opts.IndexName == "" {
		opts.IndexName = DefaultIndexName
	}
	if opts.SignedURLExpiry <= 0 {
		opts.SignedURLExpiry = DefaultSignedURLExpiry
	}
	if opts.CountConcurrency <= 0 {
		opts.CountConcurrency = defaultCountConcurrency
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gallery{
		store:   store,
		opts:    opts,
		log:     logger.WithField("component", "gallery"),
		now:     time.Now,
		newName: generatedFileName,
	}
}

func generatedFileName(now time.Time) string {
	return fmt.Sprintf("image_%d_%s.jpg", now.UnixMilli(), uuid.NewString()[:8])
}

func (g *Gallery) ready() error {
	if g.store == nil {
		return fmt.Errorf("storage connection string: %w", ErrNotConfigured)
	}
	return nil
}

// ReadIndex downloads and parses the event index.
func (g *Gallery) ReadIndex(ctx context.Context) (EventIndex, error) {
	if err := g.ready(); err != nil {
		return EventIndex{}, err
	}
	data, err := g.store.Get(ctx, g.opts.IndexName)
	if err != nil {
		return EventIndex{}, fmt.Errorf("read event index: %w", err)
	}
	var index EventIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return EventIndex{}, fmt.Errorf("parse event index: %w", err)
	}
	return index, nil
}

// ListEvents returns the indexed events with their image counts. Counting
// runs concurrently; a failed count is logged and reported as zero.
func (g *Gallery) ListEvents(ctx context.Context) ([]Event, error) {
	index, err := g.ReadIndex(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]Event, len(index.Events))
	var group errgroup.Group
	group.SetLimit(g.opts.CountConcurrency)
	for i, event := range index.Events {
		i, event := i, event
		group.Go(func() error {
			count, err := g.CountImages(ctx, eventFolder(event))
			if err != nil {
				g.log.WithError(err).WithField("event", event.ID).Warn("image count failed")
				count = 0
			}
			event.ImageCount = count
			events[i] = event
			return nil
		})
	}
	// Workers only log count failures, so Wait never reports an error.
	_ = group.Wait()
	return events, nil
}

// CountImages counts the images stored under folder.
func (g *Gallery) CountImages(ctx context.Context, folder string) (int, error) {
	objects, err := g.folderImages(ctx, folder)
	if err != nil {
		return 0, err
	}
	return len(objects), nil
}

// ListImages returns the images under folder with read URLs signed for the
// configured expiry, most recently modified first. Images whose URL cannot
// be signed are left out.
func (g *Gallery) ListImages(ctx context.Context, folder string) ([]Image, error) {
	objects, err := g.folderImages(ctx, folder)
	if err != nil {
		return nil, err
	}
	images := make([]Image, 0, len(objects))
	for _, object := range objects {
		signed, err := g.store.SignedURL(ctx, object.Name, g.opts.SignedURLExpiry)
		if err != nil {
			g.log.WithError(err).WithField("blob", object.Name).Warn("signing failed, image skipped")
			continue
		}
		if image, ok := ImageFromObject(object, signed); ok {
			images = append(images, image)
		}
	}
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].LastModified.After(images[j].LastModified)
	})
	return images, nil
}

// folderImages lists image objects under folder, skipping the folder marker.
func (g *Gallery) folderImages(ctx context.Context, folder string) ([]ObjectInfo, error) {
	if err := g.ready(); err != nil {
		return nil, err
	}
	prefix := folderPrefix(folder)
	objects, err := g.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	images := make([]ObjectInfo, 0, len(objects))
	for _, object := range objects {
		if object.Name == prefix || !IsImageFile(object.Name) {
			continue
		}
		images = append(images, object)
	}
	return images, nil
}

// FindEvent looks eventID up in the index by id or folder.
func (g *Gallery) FindEvent(ctx context.Context, eventID string) (Event, error) {
	index, err := g.ReadIndex(ctx)
	if err != nil {
		return Event{}, err
	}
	for _, event := range index.Events {
		if event.ID == eventID || event.Folder == eventID {
			return event, nil
		}
	}
	return Event{}, fmt.Errorf("%s: %w", eventID, ErrEventNotFound)
}

// Upload stores images in the folder of eventID, one at a time. A failed
// image is recorded in the summary and the batch continues.
func (g *Gallery) Upload(ctx context.Context, eventID string, images []UploadImage) (UploadSummary, error) {
	if err := g.ready(); err != nil {
		return UploadSummary{}, err
	}
	if strings.TrimSpace(eventID) == "" {
		return UploadSummary{}, fmt.Errorf("%w: eventId is required", ErrInvalidRequest)
	}
	if len(images) == 0 {
		return UploadSummary{}, fmt.Errorf("%w: images must be a non-empty array", ErrInvalidRequest)
	}

	event, err := g.FindEvent(ctx, eventID)
	if err != nil {
		return UploadSummary{}, err
	}
	folder := strings.TrimSuffix(eventFolder(event), "/")
	log := g.log.WithFields(logrus.Fields{"event": eventID, "folder": folder})

	summary := UploadSummary{
		Total:   len(images),
		Results: make([]UploadResult, 0, len(images)),
	}
	for i, image := range images {
		result, err := g.uploadOne(ctx, folder, image)
		if err != nil {
			msg := fmt.Sprintf("image %d upload failed: %v", i+1, err)
			log.Warn(msg)
			summary.Errors = append(summary.Errors, msg)
			continue
		}
		log.WithField("blob", result.BlobName).Info("image uploaded")
		summary.Results = append(summary.Results, result)
	}
	summary.Uploaded = len(summary.Results)
	summary.Success = summary.Uploaded > 0
	summary.Message = fmt.Sprintf("uploaded %d of %d images", summary.Uploaded, summary.Total)
	return summary, nil
}

func (g *Gallery) uploadOne(ctx context.Context, folder string, image UploadImage) (UploadResult, error) {
	data, err := DecodeImageData(image.Data)
	if err != nil {
		return UploadResult{}, err
	}
	fileName := cleanFileName(image.FileName)
	if fileName == "" {
		fileName = g.newName(g.now())
	}
	blobName := folder + "/" + fileName
	location, err := g.store.Put(ctx, blobName, data, ContentType(fileName))
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{
		Success:  true,
		FileName: fileName,
		BlobName: blobName,
		URL:      location,
	}, nil
}

// eventFolder is the storage folder of event, defaulting to its id.
func eventFolder(event Event) string {
	if event.Folder != "" {
		return event.Folder
	}
	return event.ID
}

func folderPrefix(folder string) string {
	return strings.TrimSuffix(folder, "/") + "/"
}
