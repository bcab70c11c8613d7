package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultMaxPhotoBytes  = int64(10 << 20)
	defaultSignedURLTTL   = 15 * time.Minute
	deliveryPhotoPrefix   = "orders"
	deliveryPhotoCategory = "delivery"
)

var (
	errPhotoClientRequired = errors.New("photo store: storage client is required")
	errPhotoBucketRequired = errors.New("photo store: bucket name is required")
	// ErrPhotoTooLarge indicates the uploaded photo exceeds the size limit.
	ErrPhotoTooLarge = errors.New("photo store: photo exceeds size limit")
	// ErrPhotoContentType indicates the upload is not an image.
	ErrPhotoContentType = errors.New("photo store: content type must be an image")
)

// photoWriterFactory opens a writer for the object, used to stub uploads in tests.
type photoWriterFactory func(ctx context.Context, object, contentType string) io.WriteCloser

// PhotoStoreConfig configures the delivery photo store.
type PhotoStoreConfig struct {
	Client *gcs.Client
	Bucket string
	// Signer enables signed download URLs. Without one the store returns
	// plain storage URLs, which suits public buckets.
	Signer        Signer
	SignedURLTTL  time.Duration
	MaxPhotoBytes int64
	Clock         func() time.Time
	// NewWriter overrides object writer creation, used by tests.
	NewWriter photoWriterFactory
}

// PhotoStore persists delivery evidence photos in Cloud Storage under the
// owning order and returns a URL the API can hand back to clients.
type PhotoStore struct {
	bucket    string
	signer    Signer
	ttl       time.Duration
	maxBytes  int64
	clock     func() time.Time
	newWriter photoWriterFactory
}

// NewPhotoStore constructs a PhotoStore from the given configuration.
func NewPhotoStore(cfg PhotoStoreConfig) (*PhotoStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errPhotoBucketRequired
	}
	newWriter := cfg.NewWriter
	if newWriter == nil {
		if cfg.Client == nil {
			return nil, errPhotoClientRequired
		}
		handle := cfg.Client.Bucket(bucket)
		newWriter = func(ctx context.Context, object, contentType string) io.WriteCloser {
			w := handle.Object(object).NewWriter(ctx)
			w.ContentType = contentType
			return w
		}
	}

	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	maxBytes := cfg.MaxPhotoBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxPhotoBytes
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &PhotoStore{
		bucket:   bucket,
		signer:   cfg.Signer,
		ttl:      ttl,
		maxBytes: maxBytes,
		clock: func() time.Time {
			return clock().UTC()
		},
		newWriter: newWriter,
	}, nil
}

// Save streams the photo into the bucket and returns its download URL.
func (s *PhotoStore) Save(ctx context.Context, orderID, fileName, contentType string, photo io.Reader) (string, error) {
	if s == nil {
		return "", errPhotoClientRequired
	}
	if photo == nil {
		return "", errors.New("photo store: photo reader is required")
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: got %q", ErrPhotoContentType, contentType)
	}

	object, err := deliveryPhotoPath(orderID, fileName, s.clock())
	if err != nil {
		return "", err
	}

	w := s.newWriter(ctx, object, contentType)
	written, err := io.Copy(w, io.LimitReader(photo, s.maxBytes+1))
	if err != nil {
		_ = w.Close()
		return "", fmt.Errorf("photo store: write object %s: %w", object, err)
	}
	if written > s.maxBytes {
		_ = w.Close()
		return "", fmt.Errorf("%w: limit %d bytes", ErrPhotoTooLarge, s.maxBytes)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("photo store: finalize object %s: %w", object, err)
	}

	return s.downloadURL(ctx, object)
}

// downloadURL prefers a signed URL when a signer is configured.
func (s *PhotoStore) downloadURL(ctx context.Context, object string) (string, error) {
	if s.signer == nil {
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, object), nil
	}

	signed, err := gcs.SignedURL(s.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: s.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "GET",
		Expires:        s.clock().Add(s.ttl),
		SignBytes: func(payload []byte) ([]byte, error) {
			return s.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return "", fmt.Errorf("photo store: sign download url: %w", err)
	}
	return signed, nil
}

// deliveryPhotoPath composes orders/{orderID}/delivery/{timestamp}-{file}.
// The timestamp keeps re-uploads from clobbering earlier evidence.
func deliveryPhotoPath(orderID, fileName string, now time.Time) (string, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", errors.New("photo store: order id is required")
	}
	if strings.ContainsAny(orderID, "/\\") || strings.Contains(orderID, "..") {
		return "", fmt.Errorf("photo store: order id %q contains invalid path characters", orderID)
	}

	name := sanitizeFileName(fileName)
	stamped := fmt.Sprintf("%d-%s", now.UnixMilli(), name)
	return path.Join(deliveryPhotoPrefix, orderID, deliveryPhotoCategory, stamped), nil
}

func sanitizeFileName(fileName string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/"))
	if name == "." || name == "/" || name == "" || strings.Contains(name, "..") {
		return "photo"
	}
	return url.PathEscape(name)
}
