// Package plugins implements the plugin registry: immutable manifest
// validation, transactional (capability,method) operation registration,
// and per-operation starlark policy hooks.
package plugins

import (
	"fmt"
	"regexp"
)

var manifestIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{2,63}$`)

// Manifest describes a plugin's immutable identity. It is validated once,
// at RegisterPlugin time, and never mutated afterward.
type Manifest struct {
	ID         string
	Name       string
	Version    string
	Entrypoint string
}

// Validate checks the manifest's required fields and id shape.
func (m Manifest) Validate() error {
	if !manifestIDPattern.MatchString(m.ID) {
		return fmt.Errorf("plugin id %q must match %s", m.ID, manifestIDPattern.String())
	}
	if m.Name == "" {
		return fmt.Errorf("plugin %q: name is required", m.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("plugin %q: version is required", m.ID)
	}
	if m.Entrypoint == "" {
		return fmt.Errorf("plugin %q: entrypoint is required", m.ID)
	}
	return nil
}
