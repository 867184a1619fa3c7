package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kettleworks/storysync/internal/logging"
	"github.com/kettleworks/storysync/internal/syncerr"
)

// MinioConfig configures the object-store backend.
type MinioConfig struct {
	// Endpoint is the S3-compatible endpoint host[:port].
	Endpoint string

	// AccessKey and SecretKey are the bearer credentials.
	AccessKey string
	SecretKey string

	// Bucket is the bucket holding the sync namespace.
	Bucket string

	// Prefix is an optional key prefix isolating this user's namespace
	// inside the bucket.
	Prefix string

	// Insecure disables TLS; meant for local development endpoints.
	Insecure bool
}

// MinioStore implements Store against any S3-compatible object store.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string

	// keyCache memoizes folder → full key prefix. Explicit per-instance
	// state rather than a package-level map, so independent stores never
	// share it.
	keyCache   map[string]string
	keyCacheMu sync.Mutex
}

// NewMinioStore creates a store over the given endpoint and bucket.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       !cfg.Insecure,
		Transport:    tr,
		Region:       "auto",
		BucketLookup: minio.BucketLookupAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store client: %w", err)
	}

	return &MinioStore{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		keyCache: make(map[string]string),
	}, nil
}

// key builds the object key for a named blob in a folder. The folder
// prefix is cached per instance.
func (m *MinioStore) key(folder, name string) string {
	m.keyCacheMu.Lock()
	prefix, ok := m.keyCache[folder]
	if !ok {
		parts := make([]string, 0, 2)
		if m.prefix != "" {
			parts = append(parts, m.prefix)
		}
		if folder != "" {
			parts = append(parts, strings.Trim(folder, "/"))
		}
		prefix = strings.Join(parts, "/")
		m.keyCache[folder] = prefix
	}
	m.keyCacheMu.Unlock()

	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// GetJSON fetches a named JSON blob.
func (m *MinioStore) GetJSON(ctx context.Context, folder, name string) ([]byte, error) {
	return m.get(ctx, folder, name)
}

// PutJSON upserts a named JSON blob.
func (m *MinioStore) PutJSON(ctx context.Context, folder, name string, data []byte) error {
	return m.put(ctx, folder, name, data, "application/json")
}

// GetBinary fetches a named binary blob.
func (m *MinioStore) GetBinary(ctx context.Context, folder, name string) ([]byte, error) {
	return m.get(ctx, folder, name)
}

// PutBinary upserts a named binary blob.
func (m *MinioStore) PutBinary(ctx context.Context, folder, name string, data []byte, mimeType string) error {
	return m.put(ctx, folder, name, data, mimeType)
}

// Delete removes a named blob. Absence is not an error.
func (m *MinioStore) Delete(ctx context.Context, folder, name string) error {
	key := m.key(folder, name)
	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		mapped := m.mapError("delete "+key, err)
		if errors.Is(mapped, ErrNotExist) {
			return nil
		}
		return mapped
	}
	return nil
}

func (m *MinioStore) get(ctx context.Context, folder, name string) ([]byte, error) {
	key := m.key(folder, name)

	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.mapError("get "+key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.mapError("read "+key, err)
	}
	return data, nil
}

func (m *MinioStore) put(ctx context.Context, folder, name string, data []byte, mimeType string) error {
	key := m.key(folder, name)

	_, err := m.client.PutObject(ctx, m.bucket, key,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: mimeType},
	)
	if err != nil {
		return m.mapError("put "+key, err)
	}

	logging.Debug("uploaded object",
		logging.Path(key),
		logging.Count(len(data)),
	)
	return nil
}

// mapError classifies an object-store failure into the sync error
// taxonomy.
func (m *MinioStore) mapError(op string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return fmt.Errorf("%s: %w", op, ErrNotExist)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"ExpiredToken", "TokenRefreshRequired":
			return syncerr.Wrap(syncerr.KindAuthFailed, op, err)
		case "QuotaExceeded", "EntityTooLarge":
			return syncerr.Wrap(syncerr.KindStorageFull, op, err)
		case "SlowDown", "TooManyRequests", "RequestLimitExceeded":
			return syncerr.Wrap(syncerr.KindRateLimited, op, err)
		default:
			return syncerr.Wrap(syncerr.KindUnknown, op, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return syncerr.Wrap(syncerr.KindNetwork, op, err)
	}
	return syncerr.Wrap(syncerr.KindUnknown, op, err)
}
