package regions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/liamcoop/fairprice/advisor"
	"github.com/liamcoop/fairprice/catalog"
	"github.com/liamcoop/fairprice/rules"
)

// PostgresSource reads regions from the regions, items and places tables.
// Profiles are stored as JSONB; rules are read through rules.PostgresRuleStore.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) RuleStore(regionID string) rules.RuleStore {
	return rules.NewPostgresRuleStore(s.db, regionID)
}

func (s *PostgresSource) Load(ctx context.Context) ([]Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, profile FROM regions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch regions: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var id string
		var profileJSON []byte
		if err := rows.Scan(&id, &profileJSON); err != nil {
			return nil, fmt.Errorf("failed to scan region row: %w", err)
		}

		var def Definition
		if err := json.Unmarshal(profileJSON, &def.Profile); err != nil {
			return nil, fmt.Errorf("invalid profile for region %s: %w", id, err)
		}
		def.ID = id
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating region rows: %w", err)
	}

	for i := range defs {
		if defs[i].Items, err = s.items(ctx, defs[i].ID); err != nil {
			return nil, err
		}
		if defs[i].Places, err = s.places(ctx, defs[i].ID); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func (s *PostgresSource) items(ctx context.Context, regionID string) ([]catalog.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_en, item_ar, min_price, max_price
		FROM items
		WHERE region_id = $1
		ORDER BY position
	`, regionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch items for %s: %w", regionID, err)
	}
	defer rows.Close()

	var out []catalog.Item
	for rows.Next() {
		var it catalog.Item
		if err := rows.Scan(&it.NameEN, &it.NameAR, &it.MinPrice, &it.MaxPrice); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PostgresSource) places(ctx context.Context, regionID string) ([]catalog.Place, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, lat, lon
		FROM places
		WHERE region_id = $1
		ORDER BY position
	`, regionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch places for %s: %w", regionID, err)
	}
	defer rows.Close()

	var out []catalog.Place
	for rows.Next() {
		var p catalog.Place
		if err := rows.Scan(&p.Name, &p.Location.Lat, &p.Location.Lon); err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveFare replaces the fare block of a stored profile.
func (s *PostgresSource) SaveFare(ctx context.Context, regionID string, fare advisor.FareConfig) error {
	fareJSON, err := json.Marshal(fare)
	if err != nil {
		return fmt.Errorf("failed to marshal fare: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE regions
		SET profile = jsonb_set(profile, '{fare}', $2::jsonb), updated_at = NOW()
		WHERE id = $1
	`, regionID, string(fareJSON))
	if err != nil {
		return fmt.Errorf("failed to update fare: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRegionNotFound, regionID)
	}
	return nil
}

// Save writes a whole definition, replacing any stored region with the same
// id. Its catalogs are rewritten; rules are only added when missing.
func (s *PostgresSource) Save(ctx context.Context, def Definition) (err error) {
	if err := ValidateDefinition(def); err != nil {
		return err
	}
	profileJSON, err := json.Marshal(def.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO regions (id, name, profile)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, profile = EXCLUDED.profile, updated_at = NOW()
	`, def.ID, def.Name, string(profileJSON)); err != nil {
		return fmt.Errorf("failed to upsert region: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM items WHERE region_id = $1`, def.ID); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}
	for i, it := range def.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO items (region_id, position, item_en, item_ar, min_price, max_price)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, def.ID, i, it.NameEN, it.NameAR, it.MinPrice, it.MaxPrice); err != nil {
			return fmt.Errorf("failed to insert item %q: %w", it.NameEN, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM places WHERE region_id = $1`, def.ID); err != nil {
		return fmt.Errorf("failed to clear places: %w", err)
	}
	for i, p := range def.Places {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO places (region_id, position, name, lat, lon)
			VALUES ($1, $2, $3, $4, $5)
		`, def.ID, i, p.Name, p.Location.Lat, p.Location.Lon); err != nil {
			return fmt.Errorf("failed to insert place %q: %w", p.Name, err)
		}
	}

	for _, r := range def.Rules {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO advisory_rules (id, region_id, name, scope, expression, message, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (region_id, id) DO NOTHING
		`, r.ID, def.ID, r.Name, string(r.Scope), r.Expression, r.Message, r.Active); err != nil {
			return fmt.Errorf("failed to insert rule %q: %w", r.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit region %s: %w", def.ID, err)
	}
	return nil
}

// Delete removes a region; its items, places and rules go with it.
func (s *PostgresSource) Delete(ctx context.Context, regionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM regions WHERE id = $1`, regionID)
	if err != nil {
		return fmt.Errorf("failed to delete region: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRegionNotFound, regionID)
	}
	return nil
}

// Seed saves defs when the regions table is empty. It reports whether
// anything was written.
func (s *PostgresSource) Seed(ctx context.Context, defs []Definition) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM regions`).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count regions: %w", err)
	}
	if count > 0 {
		return false, nil
	}
	for _, d := range defs {
		if err := s.Save(ctx, d); err != nil {
			return false, err
		}
	}
	return len(defs) > 0, nil
}

var (
	_ FareWriter   = (*PostgresSource)(nil)
	_ RegionWriter = (*PostgresSource)(nil)
)
