// Package dispatch resolves named API operations to concrete request
// targets. A Table is a simple YAML-declared lookup from operation name to
// method and path; it implements batch.Resolver so work items can name an
// operation instead of spelling out a URL.
//
// Example table:
//
//	base_url: https://api.example.com
//	operations:
//	  getConfig:
//	    method: get
//	    path: /api/v1/config
//	  sendReport:
//	    method: post
//	    path: /api/v1/reports
package dispatch

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nomis52/fetchkit/batch"
)

var (
	// ErrUnknownOperation is returned when a name is not in the table.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrEmptyPath is returned when an operation declares no path.
	ErrEmptyPath = errors.New("operation has no path")
)

// Operation is one named entry in the table.
type Operation struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

// Table maps operation names to request targets.
type Table struct {
	BaseURL    string               `yaml:"base_url"`
	Operations map[string]Operation `yaml:"operations"`
}

// Load reads and validates a table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses and validates a table from YAML bytes. Missing methods
// default to get; unsupported methods and empty paths are rejected.
func Parse(data []byte) (*Table, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing dispatch table: %w", err)
	}

	for name, op := range table.Operations {
		op.Method = strings.ToLower(op.Method)
		if op.Method == "" {
			op.Method = batch.MethodGet
		}
		if op.Method != batch.MethodGet && op.Method != batch.MethodPost {
			return nil, fmt.Errorf("operation %q: %w: %q", name, batch.ErrBadMethod, op.Method)
		}
		if op.Path == "" {
			return nil, fmt.Errorf("operation %q: %w", name, ErrEmptyPath)
		}
		table.Operations[name] = op
	}
	return &table, nil
}

// Resolve returns the operation for name.
func (t *Table) Resolve(name string) (Operation, error) {
	op, ok := t.Operations[name]
	if !ok {
		return Operation{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return op, nil
}

// Apply fills in the request target for an item that names an operation.
// The operation's path (joined to the table's base URL when set) becomes
// the item URL; the operation's method fills the item method only when the
// item left it empty. Items with no Op are left untouched.
func (t *Table) Apply(item *batch.Item) error {
	if item.Op == "" {
		return nil
	}
	op, err := t.Resolve(item.Op)
	if err != nil {
		return err
	}

	item.URL = op.Path
	if t.BaseURL != "" {
		item.URL = strings.TrimRight(t.BaseURL, "/") + "/" + strings.TrimLeft(op.Path, "/")
	}
	if item.Method == "" {
		item.Method = op.Method
	}
	return nil
}
