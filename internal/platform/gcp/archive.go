package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Archive keeps raw upstream menu documents so a parse can be replayed.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

func ArchiveKey(source, day, name string) string {
	return path.Join("menus", source, day, name)
}

type archiveService struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewArchive(log *logger.Logger, cfg ObjectStorageConfig) (Archive, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing env var MENU_ARCHIVE_BUCKET")
	}
	client, err := newStorageClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	slog := log.With("service", "gcp.Archive")
	slog.Info("Menu archive initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	return &archiveService{log: slog, client: client, bucket: cfg.Bucket}, nil
}

func newStorageClient(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	if cfg.IsEmulatorMode() {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := append(ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	return storage.NewClient(ctx, opts...)
}

func (s *archiveService) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(strings.TrimPrefix(key, "/")).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write archive object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close archive writer: %w", err)
	}
	s.log.Debug("Archived menu document", "key", key, "bytes", len(data))
	return nil
}

func (s *archiveService) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.client.Bucket(s.bucket).Object(strings.TrimPrefix(key, "/")).NewReader(ctxutil.Default(ctx))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *archiveService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
