package regions

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/liamcoop/fairprice/advisor"
	"github.com/liamcoop/fairprice/rules"
)

// Source supplies region definitions and the rule store for each region.
type Source interface {
	Load(ctx context.Context) ([]Definition, error)
	RuleStore(regionID string) rules.RuleStore
}

// FareWriter is implemented by sources that persist fare changes.
type FareWriter interface {
	SaveFare(ctx context.Context, regionID string, fare advisor.FareConfig) error
}

// RegionWriter is implemented by sources that persist whole regions.
type RegionWriter interface {
	Save(ctx context.Context, def Definition) error
	Delete(ctx context.Context, regionID string) error
}

//go:embed defaults/regions.yaml
var defaultRegionsYAML []byte

type document struct {
	Regions []Definition `yaml:"regions"`
}

// DecodeDefinitions reads a YAML document of the form "regions: [...]".
// Unknown keys are rejected.
func DecodeDefinitions(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.SetStrict(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	if len(doc.Regions) == 0 {
		return nil, fmt.Errorf("decode regions: %w: no regions defined", ErrInvalidDefinition)
	}
	return doc.Regions, nil
}

// DefaultDefinitions returns the built-in Rabat and Casablanca regions.
func DefaultDefinitions() ([]Definition, error) {
	return DecodeDefinitions(bytes.NewReader(defaultRegionsYAML))
}

// StaticSource serves fixed definitions. Rules live in memory and start from
// the rules listed in each definition.
type StaticSource struct {
	defs map[string]Definition
	list []Definition
}

// NewStaticSource wraps defs.
func NewStaticSource(defs []Definition) *StaticSource {
	s := &StaticSource{defs: make(map[string]Definition, len(defs)), list: defs}
	for _, d := range defs {
		s.defs[d.ID] = d
	}
	return s
}

// NewDefaultSource serves the embedded defaults.
func NewDefaultSource() (*StaticSource, error) {
	defs, err := DefaultDefinitions()
	if err != nil {
		return nil, err
	}
	return NewStaticSource(defs), nil
}

// NewFileSource serves the regions of a YAML file.
func NewFileSource(path string) (*StaticSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open regions file: %w", err)
	}
	defer f.Close()

	defs, err := DecodeDefinitions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewStaticSource(defs), nil
}

func (s *StaticSource) Load(context.Context) ([]Definition, error) {
	out := make([]Definition, len(s.list))
	copy(out, s.list)
	return out, nil
}

// RuleStore returns a fresh in-memory store seeded with the definition's rules.
func (s *StaticSource) RuleStore(regionID string) rules.RuleStore {
	store := rules.NewInMemoryRuleStore()
	for _, r := range s.defs[regionID].Rules {
		rule := *r
		// duplicates were rejected by ValidateDefinition
		_ = store.Add(context.Background(), &rule)
	}
	return store
}
