package objectstore

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader is the subset of *minio.Client used to publish files.
type Uploader interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

func NewClient(cfg Config) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	}
	return minio.New(cfg.Endpoint, opts)
}

func EnsureBucket(ctx context.Context, client *minio.Client, cfg Config) error {
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("make bucket %s: %w", cfg.Bucket, err)
	}
	return nil
}

// Artifacts lists the files of a sweep directory that make up a published
// report: the rendered report, the summary, the manifest and the run
// checkpoints. Episode workspaces are not included.
func Artifacts(sweepDir string) ([]string, error) {
	entries, err := os.ReadDir(sweepDir)
	if err != nil {
		return nil, fmt.Errorf("reading sweep dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".md", ".json":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Publish uploads the artifacts of sweepDir under prefix and returns the
// object keys written.
func Publish(ctx context.Context, up Uploader, bucket, sweepDir, prefix string) ([]string, error) {
	files, err := Artifacts(sweepDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("nothing to publish in %s", sweepDir)
	}

	keys := make([]string, 0, len(files))
	for _, name := range files {
		key := path.Join(strings.Trim(prefix, "/"), name)
		opts := minio.PutObjectOptions{ContentType: contentType(name)}
		if _, err := up.FPutObject(ctx, bucket, key, filepath.Join(sweepDir, name), opts); err != nil {
			return keys, fmt.Errorf("uploading %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func contentType(name string) string {
	switch filepath.Ext(name) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
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
