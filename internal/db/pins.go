package db

import (
	"context"
	"fmt"

	"fleetmetrics/internal/models"
)

// CreatePin stores a pinned KPI for a user's summary view.
func (d *DB) CreatePin(ctx context.Context, pin models.PinnedKPI) error {
	query := `
    INSERT INTO pinned_kpi (id, user_id, kpi_key, dashboard_id, created_at)
    VALUES ($1, $2, $3, $4, $5)`

	_, err := d.Pool.Exec(ctx, query, pin.ID, pin.UserID, pin.KPIKey, pin.DashboardID, pin.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pinned kpi: %w", err)
	}
	return nil
}

// GetPinsByUserID fetches all pins for a user, newest first.
func (d *DB) GetPinsByUserID(ctx context.Context, userID int) ([]models.PinnedKPI, error) {
	query := `
	SELECT id, user_id, kpi_key, dashboard_id, created_at
	FROM pinned_kpi
	WHERE user_id = $1
	ORDER BY created_at DESC`

	rows, err := d.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get pinned kpis: %w", err)
	}
	defer rows.Close()

	var list []models.PinnedKPI
	for rows.Next() {
		var pin models.PinnedKPI
		if err := rows.Scan(&pin.ID, &pin.UserID, &pin.KPIKey, &pin.DashboardID, &pin.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pinned kpi: %w", err)
		}
		list = append(list, pin)
	}
	return list, nil
}

// DeletePin removes a pin by id.
func (d *DB) DeletePin(ctx context.Context, id string) error {
	_, err := d.Pool.Exec(ctx, `DELETE FROM pinned_kpi WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pinned kpi: %w", err)
	}
	return nil
}
