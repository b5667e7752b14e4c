// Package archive unpacks contestant uploads into a sandbox work directory.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	appErr "smartsolution/pkg/errors"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const (
	defaultMaxEntries = 1000
	defaultMaxBytes   = 64 << 20
	defaultEntrypoint = "main.py"

	macOSMetadataDir = "__MACOSX"
)

var (
	zipMagic      = []byte("PK\x03\x04")
	zipEmptyMagic = []byte("PK\x05\x06")
	zstdMagic     = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Config controls extraction ceilings.
type Config struct {
	MaxEntries int   `yaml:"maxEntries"`
	MaxBytes   int64 `yaml:"maxBytes"`
	// Entrypoint must be a regular file at the archive root after flattening.
	Entrypoint string `yaml:"entrypoint"`
}

// Extractor validates and unpacks zip and tar.zst archives.
type Extractor struct {
	maxEntries int
	maxBytes   int64
	entrypoint string
}

// NewExtractor creates an Extractor, filling unset limits with defaults.
func NewExtractor(cfg Config) *Extractor {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Entrypoint == "" {
		cfg.Entrypoint = defaultEntrypoint
	}
	return &Extractor{
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
		entrypoint: cfg.Entrypoint,
	}
}

// Entrypoint is the file name the extractor requires at the root.
func (e *Extractor) Entrypoint() string {
	return e.entrypoint
}

// Extract unpacks archivePath into a freshly created destDir and returns the solution root.
// Any entry that could land outside destDir rejects the whole archive.
// The caller owns destDir cleanup, including after failures.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) (string, error) {
	if err := os.RemoveAll(destDir); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "reset extract dir failed")
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", appErr.Wrapf(err, appErr.JudgeSystemError, "create extract dir failed")
	}

	format, err := detectFormat(archivePath)
	if err != nil {
		return "", err
	}
	w := &writer{ctx: ctx, dest: destDir, maxEntries: e.maxEntries, maxBytes: e.maxBytes}
	switch format {
	case formatZip:
		err = w.extractZip(archivePath)
	case formatTarZstd:
		err = w.extractTarZstd(archivePath)
	}
	if err != nil {
		return "", err
	}

	if err := flatten(destDir); err != nil {
		return "", err
	}

	info, err := os.Lstat(filepath.Join(destDir, e.entrypoint))
	if err != nil || !info.Mode().IsRegular() {
		return "", invalid("missing entrypoint").WithDetail("entrypoint", e.entrypoint)
	}
	return destDir, nil
}

type format int

const (
	formatZip format = iota + 1
	formatTarZstd
)

func detectFormat(archivePath string) (format, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, invalid("archive not found")
		}
		return 0, appErr.Wrapf(err, appErr.JudgeSystemError, "open archive failed")
	}
	defer f.Close()

	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	switch {
	case bytes.Equal(head, zipMagic), bytes.Equal(head, zipEmptyMagic):
		return formatZip, nil
	case bytes.Equal(head, zstdMagic):
		return formatTarZstd, nil
	default:
		return 0, invalid("unsupported archive format")
	}
}

func invalid(msg string) *appErr.Error {
	return appErr.New(appErr.ArchiveInvalid).WithMessage(msg)
}

// writer materializes entries under dest while enforcing the ceilings.
type writer struct {
	ctx        context.Context
	dest       string
	maxEntries int
	maxBytes   int64
	entries    int
	written    int64
}

func (w *writer) extractZip(archivePath string) error {
	// A reader returned alongside an error only flags insecure names, which the entry checks below reject.
	r, err := zip.OpenReader(archivePath)
	if r == nil {
		return invalid("malformed archive").WithDetail("cause", fmt.Sprint(err))
	}
	defer r.Close()

	if len(r.File) > w.maxEntries {
		return invalid("too large").WithDetail("entries", len(r.File))
	}
	var declared uint64
	for _, f := range r.File {
		declared += f.UncompressedSize64
		if declared > uint64(w.maxBytes) {
			return invalid("too large").WithDetail("declared_bytes", declared)
		}
	}

	for _, f := range r.File {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := w.dir(f.Name); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := w.zipFile(f); err != nil {
				return err
			}
		default:
			if isMetadata(f.Name) {
				continue
			}
			return invalid("unsafe path").WithDetail("entry", f.Name)
		}
	}
	return nil
}

func (w *writer) zipFile(f *zip.File) error {
	target, skip, err := w.target(f.Name)
	if err != nil || skip {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return invalid("malformed archive").WithDetail("entry", f.Name)
	}
	defer rc.Close()
	return w.file(f.Name, target, rc)
}

func (w *writer) extractTarZstd(archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "open archive failed")
	}
	defer f.Close()

	zr, err := zstd.NewReader(bufio.NewReader(f))
	if err != nil {
		return invalid("malformed archive")
	}
	defer zr.Close()

	var declared int64
	tr := tar.NewReader(zr)
	for {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return invalid("malformed archive")
		}
		switch hdr.Typeflag {
		case tar.TypeXGlobalHeader, tar.TypeXHeader:
			continue
		}

		w.entries++
		if w.entries > w.maxEntries {
			return invalid("too large").WithDetail("entries", w.entries)
		}
		declared += hdr.Size
		if hdr.Size < 0 || declared > w.maxBytes {
			return invalid("too large").WithDetail("declared_bytes", declared)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := w.dir(hdr.Name); err != nil {
				return err
			}
		case tar.TypeReg, tar.TypeRegA:
			target, skip, err := w.target(hdr.Name)
			if err != nil {
				return err
			}
			if skip {
				continue
			}
			if err := w.file(hdr.Name, target, tr); err != nil {
				return err
			}
		default:
			if isMetadata(hdr.Name) {
				continue
			}
			return invalid("unsafe path").WithDetail("entry", hdr.Name)
		}
	}
}

func (w *writer) dir(name string) error {
	target, skip, err := w.target(name)
	if err != nil || skip {
		return err
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return placeError(err, name, "create dir failed")
	}
	return nil
}

// placeError separates entries that clash with earlier ones, such as a file
// "lib" followed by "lib/util.py", from host I/O failures.
func placeError(err error, name, msg string) error {
	if errors.Is(err, syscall.ENOTDIR) || errors.Is(err, syscall.EISDIR) || errors.Is(err, os.ErrExist) {
		return invalid("malformed archive").WithDetail("entry", name)
	}
	return appErr.Wrapf(err, appErr.JudgeSystemError, msg)
}

// file copies at most the remaining byte budget; one byte more proves the archive lied about sizes.
func (w *writer) file(name, target string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return placeError(err, name, "create parent dir failed")
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return placeError(err, name, "create file failed")
	}
	remaining := w.maxBytes - w.written
	n, copyErr := io.Copy(out, io.LimitReader(src, remaining+1))
	closeErr := out.Close()
	w.written += n
	if w.written > w.maxBytes {
		return invalid("too large").WithDetail("written_bytes", w.written)
	}
	if copyErr != nil {
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) {
			return appErr.Wrapf(copyErr, appErr.JudgeSystemError, "write file failed")
		}
		return invalid("malformed archive")
	}
	if closeErr != nil {
		return appErr.Wrapf(closeErr, appErr.JudgeSystemError, "write file failed")
	}
	return nil
}

// target maps an archive entry name to a path under dest.
// skip is set for metadata and empty names.
func (w *writer) target(name string) (string, bool, error) {
	clean, skip, err := cleanEntryName(name)
	if err != nil || skip {
		return "", skip, err
	}
	target := filepath.Join(w.dest, filepath.FromSlash(clean))
	rel, err := filepath.Rel(w.dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false, invalid("unsafe path").WithDetail("entry", name)
	}
	return target, false, nil
}

func cleanEntryName(name string) (string, bool, error) {
	slashed := strings.ReplaceAll(name, "\\", "/")
	if slashed == "" {
		return "", true, nil
	}
	if strings.HasPrefix(slashed, "/") || (len(slashed) >= 2 && slashed[1] == ':') {
		return "", false, invalid("unsafe path").WithDetail("entry", name)
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "", false, invalid("unsafe path").WithDetail("entry", name)
		}
	}
	clean := path.Clean(slashed)
	if clean == "." {
		return "", true, nil
	}
	if isMetadata(clean) {
		return "", true, nil
	}
	return clean, false, nil
}

func isMetadata(name string) bool {
	first := strings.SplitN(strings.ReplaceAll(name, "\\", "/"), "/", 2)[0]
	return first == macOSMetadataDir
}

// flatten hoists the children of a lone top-level directory into root.
func flatten(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "read extract dir failed")
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}

	// Move the wrapper aside first so a child sharing its name cannot collide.
	wrapper := filepath.Join(root, entries[0].Name())
	staging := filepath.Join(root, ".flatten-"+uuid.NewString())
	if err := os.Rename(wrapper, staging); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "flatten archive failed")
	}
	children, err := os.ReadDir(staging)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "flatten archive failed")
	}
	for _, child := range children {
		if err := os.Rename(filepath.Join(staging, child.Name()), filepath.Join(root, child.Name())); err != nil {
			return appErr.Wrapf(err, appErr.JudgeSystemError, "flatten archive failed")
		}
	}
	if err := os.Remove(staging); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "flatten archive failed")
	}
	return nil
}
