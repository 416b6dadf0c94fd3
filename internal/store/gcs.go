package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/expense-bot/internal/logger"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultSignedURLExpiry is how long download links stay valid.
const DefaultSignedURLExpiry = 7 * 24 * time.Hour

// WriteOptions are the preconditions and metadata of one object write.
type WriteOptions struct {
	// IfGenerationMatch, when non-zero, only replaces that generation.
	IfGenerationMatch int64
	// IfNotExist only creates the object.
	IfNotExist   bool
	ContentType  string
	CacheControl string
}

// ObjectClient is the object storage surface GCSStore needs.
type ObjectClient interface {
	// ReadObject returns ErrNotFound when the object is absent.
	ReadObject(ctx context.Context, name string) ([]byte, int64, error)
	// WriteObject returns ErrConflict when a precondition fails.
	WriteObject(ctx context.Context, name string, data []byte, opts WriteOptions) (int64, error)
	// ObjectGeneration returns ErrNotFound when the object is absent.
	ObjectGeneration(ctx context.Context, name string) (int64, error)
	SignedURL(name string, expires time.Duration) (string, error)
	PublicURL(name string) string
}

// GCSOptions configures a GCSStore.
type GCSOptions struct {
	// Prefix is prepended to every object name, e.g. "bot/".
	Prefix          string
	Backups         bool
	InitialDocument string
	SignedURLExpiry time.Duration

	Now   func() time.Time
	NewID func() string
}

// GCSStore keeps the document as a single object at a stable name and
// replaces it with generation-match preconditions.
type GCSStore struct {
	client ObjectClient
	opts   GCSOptions
}

// NewGCSStore wraps an ObjectClient.
func NewGCSStore(client ObjectClient, opts GCSOptions) *GCSStore {
	if opts.SignedURLExpiry <= 0 {
		opts.SignedURLExpiry = DefaultSignedURLExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &GCSStore{client: client, opts: opts}
}

// ObjectName is the stable document address inside the bucket.
func (s *GCSStore) ObjectName() string {
	return s.opts.Prefix + DefaultObjectName
}

func (s *GCSStore) backupName() string {
	id := s.opts.NewID()
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%sbackups/expenses-%s-%s.csv", s.opts.Prefix, s.opts.Now().UTC().Format("20060102T150405Z"), id)
}

// Read returns the document and its generation.
func (s *GCSStore) Read(ctx context.Context) (Snapshot, error) {
	data, gen, err := s.client.ReadObject(ctx, s.ObjectName())
	if errors.Is(err, ErrNotFound) {
		return Snapshot{Text: s.opts.InitialDocument}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: read %s: %w", s.ObjectName(), err)
	}
	return Snapshot{Text: string(data), Version: Version(gen)}, nil
}

// Write supersedes generation base. Base zero means the object must not
// exist yet.
func (s *GCSStore) Write(ctx context.Context, text string, base Version) (Location, error) {
	log := logger.FromContext(ctx)

	gen, err := s.client.WriteObject(ctx, s.ObjectName(), []byte(text), WriteOptions{
		IfGenerationMatch: int64(base),
		IfNotExist:        base == 0,
		ContentType:       "text/csv; charset=utf-8",
		CacheControl:      NoCache,
	})
	if err != nil {
		return Location{}, fmt.Errorf("store: write %s: %w", s.ObjectName(), err)
	}
	log.Debug().Str("object", s.ObjectName()).Int64("generation", gen).Msg("Document written")

	if s.opts.Backups {
		name := s.backupName()
		if _, err := s.client.WriteObject(ctx, name, []byte(text), WriteOptions{
			IfNotExist:  true,
			ContentType: "text/csv; charset=utf-8",
		}); err != nil {
			log.Warn().Err(err).Str("object", name).Msg("Backup write failed")
		}
	}

	return s.location(gen), nil
}

// Locate returns a fresh link for the current generation.
func (s *GCSStore) Locate(ctx context.Context) (Location, error) {
	gen, err := s.client.ObjectGeneration(ctx, s.ObjectName())
	if err != nil {
		return Location{}, fmt.Errorf("store: locate %s: %w", s.ObjectName(), err)
	}
	return s.location(gen), nil
}

// location prefers a signed URL. Signed URLs are unique per signing so only
// the public URL carries the generation as a cache buster.
func (s *GCSStore) location(gen int64) Location {
	if signed, err := s.client.SignedURL(s.ObjectName(), s.opts.SignedURLExpiry); err == nil && signed != "" {
		return Location{URL: signed}
	}
	return Location{URL: withVersion(s.client.PublicURL(s.ObjectName()), gen)}
}

func withVersion(rawURL string, gen int64) string {
	u, err := url.Parse(rawURL)
	if err != nil || gen == 0 {
		return rawURL
	}
	q := u.Query()
	q.Set("v", strconv.FormatInt(gen, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// GCSObjectClient implements ObjectClient on a Cloud Storage bucket.
type GCSObjectClient struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// NewGCSObjectClient creates the storage client. Credentials come from
// Application Default Credentials unless opts say otherwise.
func NewGCSObjectClient(ctx context.Context, bucketName string, opts ...option.ClientOption) (*GCSObjectClient, error) {
	if bucketName == "" {
		return nil, errors.New("NewGCSObjectClient: bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSObjectClient: create storage client: %w", err)
	}
	return &GCSObjectClient{client: client, bucket: client.Bucket(bucketName), name: bucketName}, nil
}

// Close releases the storage client.
func (c *GCSObjectClient) Close() error {
	return c.client.Close()
}

func (c *GCSObjectClient) ReadObject(ctx context.Context, name string) ([]byte, int64, error) {
	r, err := c.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read GCS object: %w", err)
	}
	return data, r.Attrs.Generation, nil
}

func (c *GCSObjectClient) WriteObject(ctx context.Context, name string, data []byte, opts WriteOptions) (int64, error) {
	obj := c.bucket.Object(name)
	switch {
	case opts.IfNotExist:
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	case opts.IfGenerationMatch != 0:
		obj = obj.If(storage.Conditions{GenerationMatch: opts.IfGenerationMatch})
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	w.CacheControl = opts.CacheControl

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("write GCS object: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("finalize upload: %w", err)
	}
	return w.Attrs().Generation, nil
}

func (c *GCSObjectClient) ObjectGeneration(ctx context.Context, name string) (int64, error) {
	attrs, err := c.bucket.Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read GCS object attrs: %w", err)
	}
	return attrs.Generation, nil
}

// SignedURL signs a V4 GET URL with the client's credentials.
func (c *GCSObjectClient) SignedURL(name string, expires time.Duration) (string, error) {
	return c.bucket.SignedURL(name, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(expires),
		Scheme:  storage.SigningSchemeV4,
	})
}

func (c *GCSObjectClient) PublicURL(name string) string {
	u := url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + c.name + "/" + name}
	return u.String()
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
