// Package evidence persists photographic evidence attached to flagged
// checklist items and hands back opaque references for the inspection log.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrEmptyImage is returned when a save is attempted with no image bytes.
var ErrEmptyImage = errors.New("empty image")

// Store writes evidence images to a directory on the local filesystem.
// References returned by Save are file names relative to the directory.
type Store struct {
	dir string
}

// Photo describes one stored evidence image.
type Photo struct {
	Name  string    `json:"name"`
	Size  int64     `json:"size"`
	Taken time.Time `json:"taken"`
}

// NewStore creates the evidence directory if needed and returns a store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save persists an image and returns its reference. File names embed the
// capture time, asset, operator and a short unique suffix so photos sort
// chronologically and stay traceable without a database lookup.
func (s *Store) Save(ctx context.Context, operatorID, asset string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s_%s_%s.jpg",
		time.Now().Format("20060102_150405"),
		sanitize(asset),
		sanitize(operatorID),
		uuid.NewString()[:8],
	)

	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, image, 0o640); err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}

	log.Info().
		Str("ref", name).
		Str("asset", asset).
		Int("bytes", len(image)).
		Msg("Evidence saved")
	return name, nil
}

// Recent returns the n newest photos, newest first.
func (s *Store) Recent(n int) ([]Photo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}

	photos := make([]Photo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jpg") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		photos = append(photos, Photo{
			Name:  entry.Name(),
			Size:  info.Size(),
			Taken: info.ModTime(),
		})
	}

	// Timestamp prefix makes name order chronological.
	sort.Slice(photos, func(i, j int) bool { return photos[i].Name > photos[j].Name })

	if n > 0 && len(photos) > n {
		photos = photos[:n]
	}
	return photos, nil
}

// Count returns the number of stored photos.
func (s *Store) Count() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list evidence: %w", err)
	}
	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".jpg") {
			count++
		}
	}
	return count, nil
}

// sanitize keeps a name filesystem-safe: alphanumerics, dash and underscore
// survive, spaces become underscores, everything else is dropped.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == ' ':
			b.WriteRune('_')
		case r == '-' || r == '_':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
