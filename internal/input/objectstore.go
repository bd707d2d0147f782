package input

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"launcher/internal/apperrors"
	"launcher/internal/config"
)

// ObjectStoreConfig configures the S3-compatible payload store.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// LoadObjectStoreConfigFromEnv reads PAYLOAD_STORE_* variables. Keys may
// come from mounted secret files.
func LoadObjectStoreConfigFromEnv() ObjectStoreConfig {
	cfg := ObjectStoreConfig{
		Endpoint:  config.GetEnv("PAYLOAD_STORE_ENDPOINT", ""),
		AccessKey: config.GetEnv("PAYLOAD_STORE_ACCESS_KEY", ""),
		SecretKey: config.GetEnv("PAYLOAD_STORE_SECRET_KEY", ""),
		Region:    config.GetEnv("PAYLOAD_STORE_REGION", ""),
		UseSSL:    config.GetBoolEnv("PAYLOAD_STORE_USE_SSL", false),
	}
	if cfg.AccessKey == "" {
		cfg.AccessKey = config.GetSecretFile(config.GetEnv("PAYLOAD_STORE_ACCESS_KEY_FILE", ""))
	}
	if cfg.SecretKey == "" {
		cfg.SecretKey = config.GetSecretFile(config.GetEnv("PAYLOAD_STORE_SECRET_KEY_FILE", ""))
	}
	return cfg
}

// Enabled reports whether an endpoint is configured.
func (c ObjectStoreConfig) Enabled() bool {
	return c.Endpoint != ""
}

// ObjectStoreFetcher loads payloads stored as "bucket/key" objects.
type ObjectStoreFetcher struct {
	client *minio.Client
}

// NewObjectStoreFetcher connects to the configured endpoint.
func NewObjectStoreFetcher(cfg ObjectStoreConfig) (*ObjectStoreFetcher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("payload store endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create payload store client: %w", err)
	}
	return &ObjectStoreFetcher{client: client}, nil
}

// Fetch implements Fetcher.
func (f *ObjectStoreFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := splitRef(ref)
	if err != nil {
		return nil, err
	}

	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.Unavailable("input.fetch", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxPayloadBytes+1))
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperrors.NotFound("payload", ref)
		}
		return nil, apperrors.Unavailable("input.fetch", err)
	}
	if len(data) > maxPayloadBytes {
		return nil, apperrors.Validation("payloadRef", fmt.Sprintf("payload exceeds %d bytes", maxPayloadBytes))
	}
	return data, nil
}

// splitRef parses "bucket/key".
func splitRef(ref string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, "/"), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", apperrors.Validation("payloadRef", fmt.Sprintf("payload reference %q must be bucket/key", ref))
	}
	return bucket, key, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
