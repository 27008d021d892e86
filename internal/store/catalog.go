package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/xkilldash9x/sdsbook/internal/vehicle"
)

// OilType is one oil candidate of a vehicle.
type OilType struct {
	Oil string
	SUV bool
}

// hybridEngine is the engine_type of hybrid rows in oil_lookup.
const hybridEngine = "HV"

// OilTypes returns the oil candidates for a vehicle. Hybrids only match
// hybrid engine rows.
func (s *Store) OilTypes(ctx context.Context, model string, year int, hybrid bool, cylinders int) ([]OilType, error) {
	query := `
        SELECT oil_type, is_suv
        FROM oil_lookup
        WHERE model = $1 AND year = $2 AND cylinders = $3
    `
	args := []any{strings.ToUpper(model), year, cylinders}
	if hybrid {
		query += ` AND engine_type = $4`
		args = append(args, hybridEngine)
	}
	query += ` ORDER BY id;`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query oil types: %w", err)
	}
	defer rows.Close()

	var out []OilType
	for rows.Next() {
		var o OilType
		if err := rows.Scan(&o.Oil, &o.SUV); err != nil {
			return nil, fmt.Errorf("failed to scan oil type row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// ServiceFor returns the service mapped to an oil type, or ErrNotFound.
func (s *Store) ServiceFor(ctx context.Context, oil string, suv bool, cylinders int) (vehicle.Service, error) {
	query := `
        SELECT service_id, processing_time_min, description
        FROM service_mapping
        WHERE oil_type = $1 AND is_suv = $2 AND cylinders = $3
        ORDER BY id
        LIMIT 1;
    `
	var svc vehicle.Service
	err := s.pool.QueryRow(ctx, query, strings.ToUpper(oil), suv, cylinders).Scan(&svc.Code, &svc.Minutes, &svc.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return vehicle.Service{}, fmt.Errorf("service for %s oil: %w", oil, ErrNotFound)
	}
	if err != nil {
		return vehicle.Service{}, fmt.Errorf("failed to query service mapping: %w", err)
	}
	return svc, nil
}

// TierServices returns the services of a maintenance tier for a vehicle.
func (s *Store) TierServices(ctx context.Context, model string, cylinders, year int, tier string) ([]vehicle.Service, error) {
	query := `
        SELECT service_id, processing_time_min, description
        FROM tier_services
        WHERE model = $1 AND cylinders = $2 AND year = $3 AND tier = $4
        ORDER BY id;
    `
	rows, err := s.pool.Query(ctx, query, strings.ToUpper(model), cylinders, year, strings.ToLower(tier))
	if err != nil {
		return nil, fmt.Errorf("failed to query tier services: %w", err)
	}
	defer rows.Close()

	var out []vehicle.Service
	for rows.Next() {
		var svc vehicle.Service
		if err := rows.Scan(&svc.Code, &svc.Minutes, &svc.Description); err != nil {
			return nil, fmt.Errorf("failed to scan tier service row: %w", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
