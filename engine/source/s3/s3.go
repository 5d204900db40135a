package s3

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/mwantia/mdquery/data"
	"github.com/mwantia/mdquery/data/errors"
	"github.com/mwantia/mdquery/engine/source"
)

// Bucket notification events a watcher subscribes to.
var events = []string{
	string(notification.ObjectCreatedAll),
	string(notification.ObjectRemovedAll),
}

// S3Source derives metadata from the objects of a single bucket. Object keys map
// to item keys below "/", and user metadata becomes item attributes.
type S3Source struct {
	mu sync.RWMutex

	client     *minio.Client
	bucketName string
	closed     bool
}

func NewS3Source(endpoint, bucketName, accessKey, secretKey string, useSsl bool) (*S3Source, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSsl,
	})
	if err != nil {
		return nil, err
	}

	return &S3Source{
		client:     client,
		bucketName: bucketName,
	}, nil
}

// Returns the identifier name defined for this source
func (*S3Source) Name() string {
	return "s3"
}

// Open is part of the lifecycle behaviour and fails when the bucket is missing.
func (ss *S3Source) Open(ctx context.Context) error {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return errors.SourceClosed(ss.Name())
	}

	exists, err := ss.client.BucketExists(ctx, ss.bucketName)
	if err != nil {
		return errors.SourceUnavailable(err, ss.Name())
	}
	if !exists {
		return errors.SourceUnavailable(data.ErrNotExist, ss.Name())
	}

	return nil
}

func (ss *S3Source) Close(ctx context.Context) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	ss.closed = true
	return nil
}

// GetCapabilities returns a list of capabilities supported by this source.
func (*S3Source) GetCapabilities() *source.Capabilities {
	return &source.Capabilities{
		Capabilities: []source.Capability{
			source.CapabilityScan,
			source.CapabilityWatch,
		},
	}
}

func (ss *S3Source) Scan(ctx context.Context, prefixes []string) ([]*data.Metadata, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return nil, errors.SourceClosed(ss.Name())
	}

	result := make([]*data.Metadata, 0)
	for _, prefix := range prefixes {
		objects := ss.client.ListObjects(ctx, ss.bucketName, minio.ListObjectsOptions{
			Prefix:       objectPrefix(prefix),
			Recursive:    true,
			WithMetadata: true,
		})

		for object := range objects {
			if object.Err != nil {
				return nil, errors.SourceUnavailable(object.Err, ss.Name())
			}

			meta := fromObjectInfo(object)
			if data.HasPrefix(meta.Key, prefix) {
				result = append(result, meta)
			}
		}
	}

	return result, nil
}

// Watch listens for bucket notifications. The server only accepts a single
// prefix filter per listener, so scope filtering happens here.
func (ss *S3Source) Watch(ctx context.Context, prefixes []string, sink func(source.Change)) (<-chan error, error) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if ss.closed {
		return nil, errors.SourceClosed(ss.Name())
	}

	infos := ss.client.ListenBucketNotification(ctx, ss.bucketName, "", "", events)

	errc := make(chan error, 1)
	go func() {
		defer close(errc)

		for info := range infos {
			if info.Err != nil {
				if ctx.Err() == nil {
					errc <- errors.SourceUnavailable(info.Err, ss.Name())
				}
				return
			}

			for _, record := range info.Records {
				change, ok := fromEvent(record)
				if ok && source.InScope(change.Key, prefixes) {
					sink(change)
				}
			}
		}
	}()

	return errc, nil
}

// objectPrefix converts an item key prefix into an object listing prefix.
func objectPrefix(prefix string) string {
	prefix = strings.TrimPrefix(data.CleanKey(prefix), "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func fromObjectInfo(object minio.ObjectInfo) *data.Metadata {
	fileType := data.FileTypeFile
	if strings.HasSuffix(object.Key, "/") {
		fileType = data.FileTypeDirectory
	}

	meta := data.NewMetadata(object.Key, fileType, object.Size)
	meta.ID = object.ETag
	if object.ContentType != "" && fileType == data.FileTypeFile {
		meta.ContentType = data.ContentType(object.ContentType)
	}
	if !object.LastModified.IsZero() {
		meta.AccessTime = object.LastModified
		meta.ModifyTime = object.LastModified
		meta.CreateTime = object.LastModified
	}

	for name, value := range object.UserMetadata {
		meta.Attributes[attributeName(name)] = value
	}

	return meta
}

func fromEvent(event notification.Event) (source.Change, bool) {
	key, err := url.QueryUnescape(event.S3.Object.Key)
	if err != nil || key == "" {
		return source.Change{}, false
	}

	switch {
	case strings.HasPrefix(event.EventName, "s3:ObjectRemoved:"):
		return source.Change{Kind: source.ChangeDelete, Key: data.CleanKey(key)}, true

	case strings.HasPrefix(event.EventName, "s3:ObjectCreated:"):
		meta := data.NewFileMetadata(key, event.S3.Object.Size)
		if event.S3.Object.ETag != "" {
			meta.ID = event.S3.Object.ETag
		}
		if event.S3.Object.ContentType != "" {
			meta.ContentType = data.ContentType(event.S3.Object.ContentType)
		}
		if ts, err := time.Parse(time.RFC3339Nano, event.EventTime); err == nil {
			meta.AccessTime = ts
			meta.ModifyTime = ts
			meta.CreateTime = ts
		}
		for name, value := range event.S3.Object.UserMetadata {
			meta.Attributes[attributeName(name)] = value
		}
		return source.Change{Kind: source.ChangePut, Key: meta.Key, Metadata: meta}, true
	}

	return source.Change{}, false
}

// attributeName strips the amz user metadata prefix.
func attributeName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "x-amz-meta-") {
		return name[len("x-amz-meta-"):]
	}
	return name
}
