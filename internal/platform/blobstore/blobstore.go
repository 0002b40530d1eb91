// Package blobstore stores vitals monitor photos captured for OCR. Keys are
// "vitals/{patientID}/{uuid}.{ext}". Backends: S3 and in-memory.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/learnlegits-ceo/er-command-center-sub001/internal/platform/auth"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyContent       = errors.New("content is empty")
)

// MaxFileSize is the maximum allowed image size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the sniffed image types accepted for monitor photos.
var AllowedContentTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// Metadata describes a stored blob.
type Metadata struct {
	Key         string    `json:"key"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	PatientID   string    `json:"patientId"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy,omitempty"`
}

// Store is the contract for blob backends.
type Store interface {
	Put(ctx context.Context, meta Metadata, content []byte) (*Metadata, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *Metadata, error)
}

// prepare validates content, sniffs its type and fills the generated fields.
func prepare(meta Metadata, content []byte) (Metadata, error) {
	if len(content) == 0 {
		return meta, ErrEmptyContent
	}
	if len(content) > MaxFileSize {
		return meta, ErrFileTooLarge
	}
	ct := http.DetectContentType(content)
	ext, ok := AllowedContentTypes[ct]
	if !ok {
		return meta, fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
	}

	meta.ContentType = ct
	meta.Size = int64(len(content))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(content))
	meta.CreatedAt = time.Now().UTC()
	if meta.Key == "" {
		meta.Key = fmt.Sprintf("vitals/%s/%s.%s", meta.PatientID, uuid.NewString(), ext)
	}
	return meta, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// InMemoryStore is a thread-safe, in-memory Store for tests and development.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]*storedBlob)}
}

func (s *InMemoryStore) Put(_ context.Context, meta Metadata, content []byte) (*Metadata, error) {
	meta, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(content))
	copy(data, content)

	s.mu.Lock()
	s.blobs[meta.Key] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

// ---------------------------------------------------------------------------
// S3 implementation
// ---------------------------------------------------------------------------

// S3API is the subset of *s3.Client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds a client from an AWS config. A non-empty endpoint
// selects path-style addressing for local emulators.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

type S3Store struct {
	client S3API
	bucket string
}

func NewS3Store(client S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, meta Metadata, content []byte) (*Metadata, error) {
	meta, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(meta.Key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
		ACL:           types.ObjectCannedACLPrivate,
		Metadata: map[string]string{
			"patient-id": meta.PatientID,
			"created-by": meta.CreatedBy,
			"sha256":     meta.Hash,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("put s3://%s/%s: %w", s.bucket, meta.Key, err)
	}
	return &meta, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, *Metadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	meta := &Metadata{
		Key:         key,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		PatientID:   out.Metadata["patient-id"],
		CreatedBy:   out.Metadata["created-by"],
		Hash:        out.Metadata["sha256"],
	}
	if out.LastModified != nil {
		meta.CreatedAt = *out.LastModified
	}
	return out.Body, meta, nil
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler serves stored monitor photos to clinicians reviewing OCR captures.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequirePermission("canRecordVitals", func(p auth.Permissions) bool { return p.CanRecordVitals }))
	g.GET("/patients/:id/monitor-images/:name", h.handleGet)
}

func (h *Handler) handleGet(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	name := c.Param("name")
	if name == "" || strings.ContainsAny(name, "/\\") {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid image name")
	}

	body, meta, err := h.store.Get(c.Request().Context(), fmt.Sprintf("vitals/%s/%s", patientID, name))
	if errors.Is(err, ErrBlobNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}
	if err != nil {
		return err
	}
	defer body.Close()

	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	if meta.Size > 0 {
		c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(meta.Size, 10))
	}
	return c.Stream(http.StatusOK, meta.ContentType, body)
}
