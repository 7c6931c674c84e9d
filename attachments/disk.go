// Package attachments stores uploaded task files.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"kanban-sync/domain"
)

// URLPrefix is the public path files are served under.
const URLPrefix = "/uploads/"

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = fmt.Errorf("%w: attachment exceeds size limit", domain.ErrValidation)

type Store interface {
	Save(ctx context.Context, name, mediaType string, r io.Reader) (domain.Attachment, error)
	Remove(ctx context.Context, att domain.Attachment) error
}

// DiskStore keeps uploads as flat files in one directory, named by attachment id.
type DiskStore struct {
	dir      string
	maxBytes int64
}

func NewDiskStore(dir string, maxBytes int64) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("uploads directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &DiskStore{dir: dir, maxBytes: maxBytes}, nil
}

// Dir is the directory served at URLPrefix.
func (s *DiskStore) Dir() string { return s.dir }

func (s *DiskStore) Save(ctx context.Context, name, mediaType string, r io.Reader) (domain.Attachment, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || strings.TrimSpace(base) == "" {
		return domain.Attachment{}, domain.Validationf("file name is required")
	}
	if err := ctx.Err(); err != nil {
		return domain.Attachment{}, err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("create upload: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	size, err := io.Copy(tmp, src)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("write upload: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return domain.Attachment{}, ErrTooLarge
	}
	if err := tmp.Close(); err != nil {
		return domain.Attachment{}, fmt.Errorf("close upload: %w", err)
	}

	id := uuid.NewString()
	file := id + strings.ToLower(filepath.Ext(base))
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, file)); err != nil {
		return domain.Attachment{}, fmt.Errorf("store upload: %w", err)
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return domain.Attachment{
		ID:        id,
		Name:      base,
		MediaType: mediaType,
		Size:      size,
		URL:       URLPrefix + file,
	}, nil
}

// Remove deletes the stored file. Missing files are not an error.
func (s *DiskStore) Remove(_ context.Context, att domain.Attachment) error {
	file := path.Base(att.URL)
	if !strings.HasPrefix(att.URL, URLPrefix) || file == "." || file == "/" {
		return domain.Validationf("attachment %s has no stored file", att.ID)
	}
	if err := os.Remove(filepath.Join(s.dir, file)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload: %w", err)
	}
	return nil
}
