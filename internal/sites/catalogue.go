// Package sites loads the site catalogue: the per-site extraction scripts
// and the presets they may reference.
package sites

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/C0sCube/selenium-scrape/api/schemas"
	"github.com/C0sCube/selenium-scrape/internal/runner"
)

// ErrUnknownSite is returned when a selected code is not in the catalogue.
var ErrUnknownSite = errors.New("unknown site code")

// Site is the extraction script of one target website.
type Site struct {
	Code     string                        `yaml:"-"`
	BankName string                        `yaml:"bank_name"`
	BankCode string                        `yaml:"bank_type_code"`
	BaseURL  string                        `yaml:"base_url"`
	Headers  map[string]string             `yaml:"headers"`
	Presets  map[string]schemas.ActionSpec `yaml:"presets"`
	Blocks   []schemas.Block               `yaml:"blocks"`
}

// Catalogue is the full site configuration file.
type Catalogue struct {
	Presets map[string]schemas.ActionSpec `yaml:"presets"`
	Sites   map[string]*Site              `yaml:"sites"`
}

// Load reads and validates the catalogue at path.
func Load(fs afero.Fs, path string) (*Catalogue, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site catalogue %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("site catalogue %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalogue document. Unknown catalogue and
// site keys are rejected.
func Parse(data []byte) (*Catalogue, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalogue
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	for code, s := range c.Sites {
		if s == nil {
			return nil, fmt.Errorf("site %s: empty definition", code)
		}
		s.Code = code
		if s.BankCode == "" {
			s.BankCode = code
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every preset and inline action. Preset references are
// resolved at run time and only warned about there.
func (c *Catalogue) Validate() error {
	for name, spec := range c.Presets {
		if err := spec.WithDefaults().Validate(); err != nil {
			return fmt.Errorf("preset %s: %w", name, err)
		}
	}
	for _, code := range c.Codes() {
		s := c.Sites[code]
		if strings.TrimSpace(s.BaseURL) == "" {
			return fmt.Errorf("site %s: %w: base_url is required", code, schemas.ErrInvalidSpec)
		}
		for name, spec := range s.Presets {
			if err := spec.WithDefaults().Validate(); err != nil {
				return fmt.Errorf("site %s preset %s: %w", code, name, err)
			}
		}
		for bi, block := range s.Blocks {
			for si, step := range block {
				if step.Action == nil {
					continue
				}
				if err := step.Action.WithDefaults().Validate(); err != nil {
					return fmt.Errorf("site %s block %d step %d: %w", code, bi, si, err)
				}
			}
		}
	}
	return nil
}

// Codes returns every site code in sorted order.
func (c *Catalogue) Codes() []string {
	codes := make([]string, 0, len(c.Sites))
	for code := range c.Sites {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Select returns the sites for codes in the given order, or every site in
// code order when codes is empty.
func (c *Catalogue) Select(codes []string) ([]*Site, error) {
	if len(codes) == 0 {
		codes = c.Codes()
	}
	out := make([]*Site, 0, len(codes))
	for _, code := range codes {
		s, ok := c.Sites[code]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSite, code)
		}
		out = append(out, s)
	}
	return out, nil
}

// Registry returns the presets visible to s: the global ones overridden by
// the site's own.
func (c *Catalogue) Registry(s *Site) runner.Registry {
	return runner.Merge(c.Presets, s.Presets)
}
