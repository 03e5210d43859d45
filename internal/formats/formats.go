// Package formats decodes authored diagrams from their wire formats and
// exports compiled models. Decoders register in a registry keyed by format
// name so the CLI, server and regression harness resolve formats the same
// way.
package formats

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/simforge/simforge/internal/diagram"
)

// Decoder decodes one diagram wire format into the export envelope.
type Decoder interface {
	// Format returns the format identifier (e.g. "json").
	Format() string
	// Extensions lists the file extensions the format claims, with dots.
	Extensions() []string
	// Decode parses raw bytes into an envelope. Name is the input's path
	// or label, used only in error messages.
	Decode(name string, data []byte) (*diagram.Envelope, error)
}

// Registry stores available diagram decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry creates an empty format registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Default returns a registry with every built-in format registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(JSON{})
	r.Register(YAML{})
	r.Register(HCL{})
	return r
}

func (r *Registry) Register(d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[d.Format()] = d
}

// Decoder returns the decoder registered under the format name.
func (r *Registry) Decoder(format string) (Decoder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.decoders[format]
	if !ok {
		return nil, fmt.Errorf("no decoder for format %q", format)
	}
	return d, nil
}

// ForPath resolves a decoder from a file path's extension.
func (r *Registry) ForPath(path string) (Decoder, error) {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.decoders {
		for _, e := range d.Extensions() {
			if e == ext {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("no decoder claims extension %q", ext)
}

// Formats returns the registered format names, sorted.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.decoders))
	for name := range r.decoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
