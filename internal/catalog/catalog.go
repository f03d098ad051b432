// Package catalog stores the per-asset checklist templates that drive
// inspections. The catalog is backed by a single JSON or YAML file and can be
// edited both through the admin commands and externally; external edits are
// picked up by the file watcher.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

var (
	// ErrAssetNotFound is returned when an asset has no checklist template.
	ErrAssetNotFound = errors.New("asset not found in catalog")

	// ErrAssetExists is returned when adding an asset that is already configured.
	ErrAssetExists = errors.New("asset already exists in catalog")

	// ErrTooFewItems is returned when a template has fewer than MinItems entries.
	ErrTooFewItems = errors.New("checklist needs at least two items")
)

// MinItems is the minimum number of items a checklist template must have.
const MinItems = 2

// Catalog is a file-backed map from asset name to its ordered checklist items.
type Catalog struct {
	path   string
	mu     sync.RWMutex
	assets map[string][]string
}

// Load reads the catalog file at path. A missing file yields an empty catalog;
// the file is created on the first mutation.
func Load(path string) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		assets: make(map[string][]string),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog file, replacing the in-memory contents.
// Checklist snapshots already handed to sessions are unaffected.
func (c *Catalog) Reload() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		c.mu.Lock()
		c.assets = make(map[string][]string)
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}

	assets := make(map[string][]string)
	if isYAML(c.path) {
		err = yaml.Unmarshal(data, &assets)
	} else {
		err = json.Unmarshal(data, &assets)
	}
	if err != nil {
		return fmt.Errorf("parse catalog %s: %w", filepath.Base(c.path), err)
	}

	c.mu.Lock()
	c.assets = assets
	c.mu.Unlock()
	return nil
}

// Items returns a copy of the checklist template for the asset. Sessions take
// this copy as their immutable snapshot; later catalog mutations never reach
// an in-flight session.
func (c *Catalog) Items(asset string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	items, ok := c.assets[asset]
	if !ok {
		return nil, ErrAssetNotFound
	}
	out := make([]string, len(items))
	copy(out, items)
	return out, nil
}

// Assets returns the configured asset names in sorted order.
func (c *Catalog) Assets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.assets))
	for name := range c.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured assets.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}

// Add registers a new asset template. It fails if the asset already exists.
func (c *Catalog) Add(asset string, items []string) error {
	asset = strings.TrimSpace(asset)
	if asset == "" {
		return fmt.Errorf("empty asset name")
	}
	items = cleanItems(items)
	if len(items) < MinItems {
		return ErrTooFewItems
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.assets[asset]; ok {
		return ErrAssetExists
	}
	c.assets[asset] = items
	return c.saveLocked()
}

// Replace installs a template for the asset, overwriting any existing one.
// Used by the dashboard import endpoint.
func (c *Catalog) Replace(asset string, items []string) error {
	asset = strings.TrimSpace(asset)
	if asset == "" {
		return fmt.Errorf("empty asset name")
	}
	items = cleanItems(items)
	if len(items) < MinItems {
		return ErrTooFewItems
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.assets[asset] = items
	return c.saveLocked()
}

// Remove deletes an asset template.
func (c *Catalog) Remove(asset string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.assets[asset]; !ok {
		return ErrAssetNotFound
	}
	delete(c.assets, asset)
	return c.saveLocked()
}

// saveLocked writes the catalog file atomically. Callers hold c.mu.
func (c *Catalog) saveLocked() error {
	var (
		data []byte
		err  error
	)
	if isYAML(c.path) {
		data, err = yaml.Marshal(c.assets)
	} else {
		data, err = json.MarshalIndent(c.assets, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}

// cleanItems trims whitespace and list bullets and drops empty lines.
func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		item = strings.TrimLeft(item, "•-* ")
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
