// Package preset loads named model presets and scenario files.
//
// Presets only carry model fields: applying one never touches the system or
// conversation part of the inputs.
package preset

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/inference-sim/kvcache-calc/kvcache"
)

//go:embed defaults.yaml
var builtinDefaults []byte

// ModelPreset is a named model configuration.
type ModelPreset struct {
	Description         string `yaml:"description" json:"description"`
	kvcache.ModelConfig `yaml:",inline"`
}

// Defaults represents the full defaults.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Defaults struct {
	Version      string                      `yaml:"version"`
	Presets      map[string]ModelPreset      `yaml:"presets"`
	System       kvcache.SystemConfig        `yaml:"system"`
	Conversation kvcache.ConversationPattern `yaml:"conversation"`
}

// Inputs bundles the three calculator inputs.
type Inputs struct {
	Model        kvcache.ModelConfig
	System       kvcache.SystemConfig
	Conversation kvcache.ConversationPattern
}

// decodeStrict parses YAML rejecting unknown fields, so typos are errors.
func decodeStrict(data []byte, out any) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Builtin returns the defaults compiled into the binary.
func Builtin() (*Defaults, error) {
	return ParseDefaults(builtinDefaults)
}

// ParseDefaults decodes a defaults document.
func ParseDefaults(data []byte) (*Defaults, error) {
	var d Defaults
	if err := decodeStrict(data, &d); err != nil {
		return nil, fmt.Errorf("parsing defaults: %w", err)
	}
	for name, p := range d.Presets {
		if err := p.ModelConfig.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
	}
	return &d, nil
}

// LoadDefaults reads a defaults.yaml file from disk.
func LoadDefaults(path string) (*Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading defaults file: %w", err)
	}
	return ParseDefaults(data)
}

// Names returns the preset names in sorted order.
func (d *Defaults) Names() []string {
	names := make([]string, 0, len(d.Presets))
	for name := range d.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the preset with the given name.
func (d *Defaults) Lookup(name string) (ModelPreset, error) {
	p, ok := d.Presets[name]
	if !ok {
		return ModelPreset{}, fmt.Errorf("unknown preset %q (available: %v)", name, d.Names())
	}
	return p, nil
}

// Inputs returns the default inputs with the model taken from the named
// preset, or a zero model when name is empty.
func (d *Defaults) Inputs(name string) (Inputs, error) {
	in := Inputs{System: d.System, Conversation: d.Conversation}
	if name == "" {
		return in, nil
	}
	p, err := d.Lookup(name)
	if err != nil {
		return Inputs{}, err
	}
	return Apply(p, in), nil
}

// Apply replaces the model of in with the preset's model.
func Apply(p ModelPreset, in Inputs) Inputs {
	in.Model = p.ModelConfig
	return in
}
