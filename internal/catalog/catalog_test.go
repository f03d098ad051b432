package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// CatalogSuite is a test suite for catalog operations.
type CatalogSuite struct {
	suite.Suite
	tempDir string
	path    string
	catalog *Catalog
}

func (s *CatalogSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "catalog-test-*")
	s.Require().NoError(err)

	s.path = filepath.Join(s.tempDir, "checklists.json")
	s.catalog, err = Load(s.path)
	s.Require().NoError(err)
}

func (s *CatalogSuite) TearDownTest() {
	os.RemoveAll(s.tempDir)
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

// TestLoadMissingFile tests that a missing file yields an empty catalog.
func (s *CatalogSuite) TestLoadMissingFile() {
	s.Equal(0, s.catalog.Len())
	s.Empty(s.catalog.Assets())
}

// TestAddAndItems tests asset registration and retrieval.
func (s *CatalogSuite) TestAddAndItems() {
	err := s.catalog.Add("Pump-1", []string{"Check oil", "Check noise"})
	s.Require().NoError(err)

	items, err := s.catalog.Items("Pump-1")
	s.Require().NoError(err)
	s.Equal([]string{"Check oil", "Check noise"}, items)
}

// TestAddDuplicate tests that adding an existing asset fails.
func (s *CatalogSuite) TestAddDuplicate() {
	s.Require().NoError(s.catalog.Add("Pump-1", []string{"a", "b"}))

	err := s.catalog.Add("Pump-1", []string{"c", "d"})
	s.ErrorIs(err, ErrAssetExists)

	// Original template untouched.
	items, err := s.catalog.Items("Pump-1")
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, items)
}

// TestAddTooFewItems tests the minimum item count.
func (s *CatalogSuite) TestAddTooFewItems() {
	err := s.catalog.Add("Pump-1", []string{"only one"})
	s.ErrorIs(err, ErrTooFewItems)

	// Empty lines do not count.
	err = s.catalog.Add("Pump-1", []string{"one", "", "   "})
	s.ErrorIs(err, ErrTooFewItems)
}

// TestItemsCleaned tests bullet and whitespace stripping.
func (s *CatalogSuite) TestItemsCleaned() {
	err := s.catalog.Add("Press-2", []string{"• Check guards ", "- Check belt", "* Check temp"})
	s.Require().NoError(err)

	items, err := s.catalog.Items("Press-2")
	s.Require().NoError(err)
	s.Equal([]string{"Check guards", "Check belt", "Check temp"}, items)
}

// TestItemsNotFound tests lookup of an unknown asset.
func (s *CatalogSuite) TestItemsNotFound() {
	_, err := s.catalog.Items("ghost")
	s.ErrorIs(err, ErrAssetNotFound)
}

// TestSnapshotImmutable tests that returned item slices are copies.
func (s *CatalogSuite) TestSnapshotImmutable() {
	s.Require().NoError(s.catalog.Add("Pump-1", []string{"Check oil", "Check noise"}))

	snapshot, err := s.catalog.Items("Pump-1")
	s.Require().NoError(err)
	snapshot[0] = "mutated"

	again, err := s.catalog.Items("Pump-1")
	s.Require().NoError(err)
	s.Equal("Check oil", again[0])

	// Removing the asset does not invalidate earlier snapshots.
	s.Require().NoError(s.catalog.Remove("Pump-1"))
	s.Equal("Check noise", again[1])
}

// TestRemove tests asset deletion.
func (s *CatalogSuite) TestRemove() {
	s.Require().NoError(s.catalog.Add("Pump-1", []string{"a", "b"}))
	s.Require().NoError(s.catalog.Remove("Pump-1"))

	_, err := s.catalog.Items("Pump-1")
	s.ErrorIs(err, ErrAssetNotFound)

	s.ErrorIs(s.catalog.Remove("Pump-1"), ErrAssetNotFound)
}

// TestReplace tests import-style overwrite.
func (s *CatalogSuite) TestReplace() {
	s.Require().NoError(s.catalog.Add("Pump-1", []string{"a", "b"}))
	s.Require().NoError(s.catalog.Replace("Pump-1", []string{"x", "y", "z"}))

	items, err := s.catalog.Items("Pump-1")
	s.Require().NoError(err)
	s.Len(items, 3)
}

// TestPersistence tests that mutations survive a reload from disk.
func (s *CatalogSuite) TestPersistence() {
	s.Require().NoError(s.catalog.Add("Pump-1", []string{"a", "b"}))
	s.Require().NoError(s.catalog.Add("Press-2", []string{"c", "d"}))

	reopened, err := Load(s.path)
	s.Require().NoError(err)
	s.Equal([]string{"Press-2", "Pump-1"}, reopened.Assets())
}

// TestReloadExternalEdit tests picking up an externally written file.
func (s *CatalogSuite) TestReloadExternalEdit() {
	content := `{"Lathe-3": ["Check chuck", "Check coolant"]}`
	s.Require().NoError(os.WriteFile(s.path, []byte(content), 0o600))

	s.Require().NoError(s.catalog.Reload())

	items, err := s.catalog.Items("Lathe-3")
	s.Require().NoError(err)
	s.Equal([]string{"Check chuck", "Check coolant"}, items)
}

// TestYAMLCatalog tests the YAML backing format.
func TestYAMLCatalog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "catalog-yaml-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "machines.yaml")
	content := "Pump-1:\n  - Check oil\n  - Check noise\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	items, err := c.Items("Pump-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Check oil", "Check noise"}, items)

	// Mutations round-trip through YAML.
	require.NoError(t, c.Add("Press-2", []string{"a", "b"}))
	reopened, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
}

// TestBadCatalogFile tests that a corrupt file fails loudly.
func TestBadCatalogFile(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "catalog-bad-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "checklists.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err = Load(path)
	assert.Error(t, err)
}

// TestConcurrentAccess tests thread-safe catalog operations.
func TestConcurrentAccess(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "catalog-conc-*")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	c, err := Load(filepath.Join(tempDir, "checklists.json"))
	require.NoError(t, err)
	require.NoError(t, c.Add("Pump-1", []string{"a", "b"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Items("Pump-1")
			_ = c.Assets()
			_ = c.Len()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c.Len())
}
