// Package uploader pushes downloaded images from the local image directory
// to a Google Cloud Storage bucket.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 8

// objectStore is the minimal bucket surface the uploader needs.
type objectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key, contentType string, r io.Reader) error
}

type gcsStore struct {
	client *storage.Client
	bucket string
}

func (s *gcsStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("object attrs %s: %w", key, err)
	}
	return true, nil
}

func (s *gcsStore) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Stats tallies one bulk upload.
type Stats struct {
	Uploaded int
	Skipped  int
	Failed   int
}

// Uploader copies every image file under a directory into a bucket prefix.
// Existing objects are skipped unless overwrite is set.
type Uploader struct {
	store     objectStore
	prefix    string
	overwrite bool
	workers   int
	logger    *zap.Logger
}

// New connects to GCS and verifies the bucket exists before any upload
// starts.
func New(ctx context.Context, bucket, prefix string, overwrite bool, logger *zap.Logger) (*Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("storage.bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("bucket %s: %w (close client: %v)", bucket, err, closeErr)
		}
		return nil, fmt.Errorf("bucket %s: %w", bucket, err)
	}
	return newWithStore(&gcsStore{client: client, bucket: bucket}, prefix, overwrite, logger), nil
}

func newWithStore(store objectStore, prefix string, overwrite bool, logger *zap.Logger) *Uploader {
	return &Uploader{
		store:     store,
		prefix:    strings.Trim(prefix, "/"),
		overwrite: overwrite,
		workers:   defaultWorkers,
		logger:    logger,
	}
}

// UploadDir uploads every regular file under dir. Per-file failures are
// logged and counted; only an unreadable directory fails the whole call.
func (u *Uploader) UploadDir(ctx context.Context, dir string) (Stats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Stats{}, fmt.Errorf("read image dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var (
		mu    sync.Mutex
		stats Stats
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for _, name := range names {
		g.Go(func() error {
			outcome := u.uploadOne(ctx, filepath.Join(dir, name), u.objectKey(name))
			mu.Lock()
			switch outcome {
			case uploadDone:
				stats.Uploaded++
			case uploadSkipped:
				stats.Skipped++
			case uploadFailed:
				stats.Failed++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	u.logger.Info("bulk upload complete",
		zap.String("dir", dir),
		zap.Int("uploaded", stats.Uploaded),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

type uploadOutcome int

const (
	uploadDone uploadOutcome = iota
	uploadSkipped
	uploadFailed
)

func (u *Uploader) uploadOne(ctx context.Context, filePath, key string) uploadOutcome {
	if !u.overwrite {
		exists, err := u.store.Exists(ctx, key)
		if err != nil {
			u.logger.Warn("existence check failed", zap.String("key", key), zap.Error(err))
			return uploadFailed
		}
		if exists {
			return uploadSkipped
		}
	}

	f, err := os.Open(filePath)
	if err != nil {
		u.logger.Warn("open image failed", zap.String("path", filePath), zap.Error(err))
		return uploadFailed
	}
	defer f.Close()

	if err := u.store.Put(ctx, key, contentType(filePath), f); err != nil {
		u.logger.Warn("upload failed", zap.String("key", key), zap.Error(err))
		return uploadFailed
	}
	u.logger.Debug("uploaded", zap.String("key", key))
	return uploadDone
}

func (u *Uploader) objectKey(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

func contentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
