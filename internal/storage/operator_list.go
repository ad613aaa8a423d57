package storage

import (
	"fmt"
	"os"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

// OperatorList is the set of usernames allowed to run privileged commands,
// loaded from a YAML file.
type OperatorList struct {
	path string

	mu    sync.RWMutex
	names map[string]struct{}
}

// NewOperatorList loads the list from path. A missing file yields an empty
// list.
func NewOperatorList(path string) (*OperatorList, error) {
	ol := &OperatorList{path: path, names: make(map[string]struct{})}
	if err := ol.Reload(); err != nil {
		return nil, err
	}
	return ol, nil
}

// Reload re-reads the operator file.
func (ol *OperatorList) Reload() error {
	data, err := os.ReadFile(ol.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read operator list %s: %w", ol.path, err)
	}

	var names []string
	if err := yaml.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("parse operator list %s: %w", ol.path, err)
	}

	ol.mu.Lock()
	defer ol.mu.Unlock()
	ol.names = make(map[string]struct{}, len(names))
	for _, n := range names {
		ol.names[n] = struct{}{}
	}
	return nil
}

// IsOperator reports whether the username is on the list.
func (ol *OperatorList) IsOperator(name string) bool {
	ol.mu.RLock()
	defer ol.mu.RUnlock()
	_, ok := ol.names[name]
	return ok
}
