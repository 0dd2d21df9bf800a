// Package catalog provides the read-only surgery templates that new records
// copy their steps and OSAT rubric from.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/okian/surgilog/internal/domain/model"
)

// ErrInvalidCatalog is returned when the catalog document cannot be used.
var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed default.yaml
var defaultCatalog []byte

// Catalog is an immutable surgery id -> template index.
type Catalog struct {
	templates map[string]model.SurgeryTemplate
	ids       []string
}

type document struct {
	Surgeries []model.SurgeryTemplate `koanf:"surgeries"`
}

// Load reads a catalog from a YAML file at path. An empty path loads the
// built-in catalog.
func Load(_ context.Context, path string) (*Catalog, error) {
	k := koanf.New(".")
	var err error
	if path == "" {
		err = k.Load(rawbytes.Provider(defaultCatalog), yaml.Parser())
	} else {
		err = k.Load(file.Provider(path), yaml.Parser())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return fromKoanf(k)
}

// Parse reads a catalog from an in-memory YAML document.
func Parse(_ context.Context, doc []byte) (*Catalog, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(doc), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Catalog, error) {
	var doc document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return New(doc.Surgeries...)
}

// New builds a Catalog from templates. Ids must be unique and non-empty.
func New(templates ...model.SurgeryTemplate) (*Catalog, error) {
	c := &Catalog{templates: make(map[string]model.SurgeryTemplate, len(templates))}
	for i, t := range templates {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, fmt.Errorf("%w: surgery %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := c.templates[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate surgery id %q", ErrInvalidCatalog, t.ID)
		}
		c.templates[t.ID] = t
		c.ids = append(c.ids, t.ID)
	}
	slices.Sort(c.ids)
	return c, nil
}

// Template returns the template for surgeryID, or ErrNotFound.
func (c *Catalog) Template(_ context.Context, surgeryID string) (model.SurgeryTemplate, error) {
	t, ok := c.templates[strings.TrimSpace(surgeryID)]
	if !ok {
		return model.SurgeryTemplate{}, model.WrapKind("catalog.template", model.ErrNotFound,
			fmt.Errorf("surgery %q", surgeryID))
	}
	out := t
	out.Steps = slices.Clone(t.Steps)
	out.Osats = make([]model.OsatTemplate, len(t.Osats))
	for i, o := range t.Osats {
		out.Osats[i] = model.OsatTemplate{Item: o.Item, Scale: slices.Clone(o.Scale)}
	}
	return out, nil
}

// IDs lists surgery ids in ascending order.
func (c *Catalog) IDs() []string {
	return slices.Clone(c.ids)
}

// Len returns the number of surgeries.
func (c *Catalog) Len() int {
	return len(c.templates)
}
