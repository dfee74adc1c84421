// Package storage keeps uploaded hero images on local disk.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/superhero-manager/backend/pkg/logger"
	"go.uber.org/zap"
)

var (
	ErrNotAnImage    = errors.New("uploaded file is not an image")
	ErrImageTooLarge = errors.New("uploaded image exceeds size limit")
	ErrEmptyUpload   = errors.New("uploaded file is empty")
)

// StoredImage is one file found in the upload directory
type StoredImage struct {
	Ref     string
	ModTime time.Time
}

type ImageStore struct {
	dir       string
	urlPrefix string
	maxSize   int64
}

// NewImageStore creates dir if needed. urlPrefix is the public path the
// directory is served under, e.g. "/uploads".
func NewImageStore(dir, urlPrefix string, maxSize int64) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &ImageStore{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		maxSize:   maxSize,
	}, nil
}

func (s *ImageStore) Dir() string    { return s.dir }
func (s *ImageStore) MaxSize() int64 { return s.maxSize }

// Save sniffs the content type, then writes the bytes under a fresh
// random name. Only image/* content other than SVG is accepted.
func (s *ImageStore) Save(r io.Reader) (string, error) {
	start := time.Now()

	limit := s.maxSize
	if limit <= 0 {
		limit = 1 << 62
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return "", ErrImageTooLarge
	}
	if len(data) == 0 {
		return "", ErrEmptyUpload
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") || mtype.Is("image/svg+xml") {
		logger.Log.Warn("Rejected upload",
			zap.String("detected", mtype.String()),
		)
		return "", ErrNotAnImage
	}

	name := uuid.New().String() + mtype.Extension()
	dst := filepath.Join(s.dir, name)

	// Write next to the target and rename so readers never see a partial file
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store image: %w", err)
	}

	ref := s.urlPrefix + "/" + name
	logger.Log.Debug("Image stored",
		zap.String("ref", ref),
		zap.String("mime", mtype.String()),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)
	return ref, nil
}

// Path maps a reference to its file. ok is false for references that do
// not point into this store (external URLs, other prefixes).
func (s *ImageStore) Path(ref string) (path string, ok bool) {
	name, found := strings.CutPrefix(ref, s.urlPrefix+"/")
	if !found || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}

// Owns reports whether ref points into this store
func (s *ImageStore) Owns(ref string) bool {
	_, ok := s.Path(ref)
	return ok
}

// Remove deletes the file behind ref. Missing files and foreign
// references are not errors.
func (s *ImageStore) Remove(ref string) error {
	path, ok := s.Path(ref)
	if !ok {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image %s: %w", ref, err)
	}
	return nil
}

// Exists reports whether the file behind ref is present
func (s *ImageStore) Exists(ref string) bool {
	path, ok := s.Path(ref)
	if !ok {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// List returns the stored images sorted by reference
func (s *ImageStore) List() ([]StoredImage, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}

	var images []StoredImage
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		images = append(images, StoredImage{
			Ref:     s.urlPrefix + "/" + e.Name(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Ref < images[j].Ref })
	return images, nil
}
