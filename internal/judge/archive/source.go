package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"smartsolution/internal/common/storage"
	appErr "smartsolution/pkg/errors"
)

// Source resolves a stored archive location into a readable local file.
type Source interface {
	Fetch(ctx context.Context, location, workDir string) (string, error)
}

// LocalSource resolves archive paths on the local filesystem.
type LocalSource struct {
	roots []string
}

// NewLocalSource creates a LocalSource. Relative locations are tried against roots in order.
func NewLocalSource(roots ...string) *LocalSource {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		if r != "" {
			cleaned = append(cleaned, filepath.Clean(r))
		}
	}
	return &LocalSource{roots: cleaned}
}

// Fetch returns the archive's path without copying it.
func (s *LocalSource) Fetch(ctx context.Context, location, workDir string) (string, error) {
	location = strings.TrimPrefix(location, "file://")
	if location == "" {
		return "", invalid("archive not found")
	}
	if filepath.IsAbs(location) {
		if isRegularFile(location) {
			return location, nil
		}
		return "", invalid("archive not found").WithDetail("location", location)
	}

	rel := filepath.Clean(filepath.FromSlash(location))
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", invalid("archive not found").WithDetail("location", location)
	}
	for _, root := range s.roots {
		candidate := filepath.Join(root, rel)
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}
	return "", invalid("archive not found").WithDetail("location", location)
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// ObjectSource downloads archives from S3-compatible storage into the work dir.
type ObjectSource struct {
	storage  storage.ObjectStorage
	maxBytes int64
}

// NewObjectSource creates an ObjectSource. maxBytes bounds the compressed download.
func NewObjectSource(store storage.ObjectStorage, maxBytes int64) *ObjectSource {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &ObjectSource{storage: store, maxBytes: maxBytes}
}

// Fetch streams minio://bucket/key or s3://bucket/key into workDir.
func (s *ObjectSource) Fetch(ctx context.Context, location, workDir string) (string, error) {
	bucket, key, ok := parseObjectLocation(location)
	if !ok {
		return "", invalid("archive not found").WithDetail("location", location)
	}

	stat, err := s.storage.StatObject(ctx, bucket, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", invalid("archive not found").WithDetail("location", location)
		}
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "stat archive failed")
	}
	if stat.SizeBytes > s.maxBytes {
		return "", invalid("too large").WithDetail("size_bytes", stat.SizeBytes)
	}

	reader, err := s.storage.GetObject(ctx, bucket, key)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "download archive failed")
	}
	defer reader.Close()

	if err := os.MkdirAll(workDir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "create work dir failed")
	}
	dest := filepath.Join(workDir, "upload-"+path.Base(key))
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "create archive file failed")
	}
	n, copyErr := io.Copy(out, io.LimitReader(reader, s.maxBytes+1))
	closeErr := out.Close()
	if copyErr != nil {
		return "", appErr.Wrapf(copyErr, appErr.JudgeSystemError, "download archive failed")
	}
	if closeErr != nil {
		return "", appErr.Wrapf(closeErr, appErr.JudgeSystemError, "write archive failed")
	}
	if n > s.maxBytes {
		return "", invalid("too large").WithDetail("size_bytes", n)
	}
	return dest, nil
}

func parseObjectLocation(location string) (string, string, bool) {
	rest, ok := stripObjectScheme(location)
	if !ok {
		return "", "", false
	}
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", false
	}
	return bucket, key, true
}

func stripObjectScheme(location string) (string, bool) {
	for _, scheme := range []string{"minio://", "s3://"} {
		if strings.HasPrefix(location, scheme) {
			return strings.TrimPrefix(location, scheme), true
		}
	}
	return "", false
}

// MultiSource picks the object source for minio:// and s3:// locations and the local source otherwise.
type MultiSource struct {
	local  Source
	object Source
}

// NewMultiSource creates a MultiSource. object may be nil when no object storage is configured.
func NewMultiSource(local, object Source) *MultiSource {
	return &MultiSource{local: local, object: object}
}

func (s *MultiSource) Fetch(ctx context.Context, location, workDir string) (string, error) {
	if _, ok := stripObjectScheme(location); ok {
		if s.object == nil {
			return "", appErr.New(appErr.JudgeSystemError).WithMessage("object storage is not configured")
		}
		return s.object.Fetch(ctx, location, workDir)
	}
	if s.local == nil {
		return "", errors.New("local archive source is not configured")
	}
	return s.local.Fetch(ctx, location, workDir)
}
