// Package auth answers the "is this operator an administrator" question for
// the command layer. The admin list lives in a JSON file in the data
// directory so it survives restarts and can be edited by hand.
package auth

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	json "github.com/goccy/go-json"
)

// ErrAlreadyAdmin is returned when adding an operator that is already listed.
var ErrAlreadyAdmin = errors.New("operator is already an administrator")

// Oracle is the file-backed administrator registry.
type Oracle struct {
	path   string
	mu     sync.RWMutex
	admins map[string]struct{}
}

type adminsFile struct {
	AdminIDs []string `json:"admin_ids"`
}

// Load reads the admin list at path. A missing file yields the seed list,
// which is written on the first mutation.
func Load(path string, seed []string) (*Oracle, error) {
	o := &Oracle{
		path:   path,
		admins: make(map[string]struct{}),
	}
	for _, id := range seed {
		o.admins[id] = struct{}{}
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return o, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read admins: %w", err)
	}

	var file adminsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse admins: %w", err)
	}
	for _, id := range file.AdminIDs {
		o.admins[id] = struct{}{}
	}
	return o, nil
}

// IsAdmin reports whether the operator is an administrator.
func (o *Oracle) IsAdmin(operatorID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.admins[operatorID]
	return ok
}

// Add registers a new administrator and persists the list.
func (o *Oracle) Add(operatorID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.admins[operatorID]; ok {
		return ErrAlreadyAdmin
	}
	o.admins[operatorID] = struct{}{}
	return o.saveLocked()
}

// Count returns the number of administrators.
func (o *Oracle) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.admins)
}

// saveLocked writes the admin file. Callers hold o.mu.
func (o *Oracle) saveLocked() error {
	ids := make([]string, 0, len(o.admins))
	for id := range o.admins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(adminsFile{AdminIDs: ids}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode admins: %w", err)
	}
	if err := os.WriteFile(o.path, data, 0o600); err != nil {
		return fmt.Errorf("write admins: %w", err)
	}
	return nil
}
