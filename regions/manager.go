package regions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/fairprice/advisor"
	"github.com/liamcoop/fairprice/catalog"
	"github.com/liamcoop/fairprice/internal/logger"
	"github.com/liamcoop/fairprice/rules"
)

var (
	ErrRegionNotFound = errors.New("region not found")
	ErrNoRegions      = errors.New("no regions configured")
)

// Manager holds every loaded region. Reads take the read lock only; updates
// build a new Region and swap it in.
type Manager struct {
	source  Source
	env     *cel.Env
	regions map[string]*Region
	mu      sync.RWMutex
}

// NewManager creates an empty manager backed by source.
func NewManager(source Source) (*Manager, error) {
	env, err := rules.NewEnv()
	if err != nil {
		return nil, err
	}
	return &Manager{
		source:  source,
		env:     env,
		regions: make(map[string]*Region),
	}, nil
}

// LoadAll builds every region of the source. Nothing is replaced unless all
// regions load.
func (m *Manager) LoadAll(ctx context.Context) error {
	defs, err := m.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load regions: %w", err)
	}
	if len(defs) == 0 {
		return ErrNoRegions
	}

	loaded := make(map[string]*Region, len(defs))
	for _, def := range defs {
		if _, dup := loaded[def.ID]; dup {
			return fmt.Errorf("%w: region %q is defined twice", ErrInvalidDefinition, def.ID)
		}
		region, err := m.build(ctx, def)
		if err != nil {
			return fmt.Errorf("failed to initialize region %s: %w", def.ID, err)
		}
		loaded[def.ID] = region
		logger.Info("region loaded",
			"region", def.ID,
			"items", region.Items.Len(),
			"places", region.Places.Len(),
		)
	}

	m.mu.Lock()
	m.regions = loaded
	m.mu.Unlock()
	return nil
}

// Create validates def, persists it when the source can, and adds or
// replaces the region. Rules already stored for a replaced region are kept.
func (m *Manager) Create(ctx context.Context, def Definition) (*Region, error) {
	if err := m.check(ctx, def); err != nil {
		return nil, err
	}

	w, persistent := m.source.(RegionWriter)
	if persistent {
		if err := w.Save(ctx, def); err != nil {
			return nil, fmt.Errorf("failed to save region: %w", err)
		}
	}

	region, err := m.build(ctx, def)
	if err != nil {
		return nil, err
	}
	if !persistent {
		// in-memory stores only know the rules of the definitions they were built from
		for _, r := range def.Rules {
			rule := *r
			if err := region.Rules.AddRule(ctx, &rule); err != nil && !errors.Is(err, rules.ErrRuleExists) {
				return nil, err
			}
		}
	}

	m.mu.Lock()
	m.regions[def.ID] = region
	m.mu.Unlock()

	logger.From(ctx).Info("region created",
		"region", def.ID,
		"items", region.Items.Len(),
		"places", region.Places.Len(),
		"persisted", persistent,
	)
	return region, nil
}

// check validates def and compiles its rules without touching any store, so
// nothing is saved that LoadAll would later refuse.
func (m *Manager) check(ctx context.Context, def Definition) error {
	if err := ValidateDefinition(def); err != nil {
		return err
	}
	scratch, err := rules.NewEngineWithEnv(ctx, m.env, rules.NewInMemoryRuleStore())
	if err != nil {
		return err
	}
	for _, r := range def.Rules {
		if _, err := scratch.Compile(r.Expression); err != nil {
			return fmt.Errorf("%w: region %s: rule %q: %v", ErrInvalidDefinition, def.ID, r.ID, err)
		}
	}
	return nil
}

func (m *Manager) build(ctx context.Context, def Definition) (*Region, error) {
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}

	items, err := catalog.NewItemCatalog(def.Items)
	if err != nil {
		return nil, err
	}
	places, err := catalog.NewPlaceCatalog(def.Places)
	if err != nil {
		return nil, err
	}

	engine, err := rules.NewEngineWithEnv(ctx, m.env, m.source.RuleStore(def.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to create rule engine: %w", err)
	}

	return &Region{Profile: def.Profile, Items: items, Places: places, Rules: engine}, nil
}

// Get returns the region with id.
func (m *Manager) Get(id string) (*Region, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.regions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, id)
	}
	return r, nil
}

// List returns the loaded regions sorted by id.
func (m *Manager) List() []*Region {
	m.mu.RLock()
	out := make([]*Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Profile.ID < out[j].Profile.ID })
	return out
}

// UpdateFare validates fare, persists it when the source can, and swaps in a
// region carrying the new constants. In-flight checks keep the old value.
func (m *Manager) UpdateFare(ctx context.Context, id string, fare advisor.FareConfig) (*Region, error) {
	if err := fare.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.regions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, id)
	}

	if w, ok := m.source.(FareWriter); ok {
		if err := w.SaveFare(ctx, id, fare); err != nil {
			return nil, fmt.Errorf("failed to save fare: %w", err)
		}
	}

	next := *current
	next.Profile.Fare = fare
	m.regions[id] = &next

	logger.From(ctx).Info("fare updated", "region", id,
		"min_fare", fare.MinFare,
		"fixed_charge", fare.FixedCharge,
		"rate_per_km", fare.RatePerKm,
		"night_multiplier", fare.NightMultiplier,
	)
	return &next, nil
}

// Delete unloads a region and removes it from the source when the source
// persists regions.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.regions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRegionNotFound, id)
	}
	if w, ok := m.source.(RegionWriter); ok {
		if err := w.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete region: %w", err)
		}
	}
	delete(m.regions, id)

	logger.From(ctx).Info("region deleted", "region", id)
	return nil
}
