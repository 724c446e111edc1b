package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fleetmetrics/internal/models"
)

// Insert stores a new alert rule row.
func (d *DB) Insert(ctx context.Context, rule models.AlertRule) error {
	query := `
    INSERT INTO alert_rule (
        id, kpi_key, dashboard_id, operator, threshold, notify_email, notify_in_app,
        frequency, is_active, last_triggered_at, created_at, updated_at
    ) VALUES (
        $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
    )`

	_, err := d.Pool.Exec(ctx, query,
		rule.ID,
		rule.KPIKey,
		rule.DashboardID,
		string(rule.Operator),
		rule.Threshold,
		rule.NotifyEmail,
		rule.NotifyInApp,
		string(rule.Frequency),
		rule.IsActive,
		rule.LastTriggeredAt,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert rule: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing rule row.
func (d *DB) Update(ctx context.Context, rule models.AlertRule) error {
	query := `
	UPDATE alert_rule SET
		operator = $2, threshold = $3, notify_email = $4, notify_in_app = $5,
		frequency = $6, is_active = $7, last_triggered_at = $8, updated_at = $9
	WHERE id = $1`

	tag, err := d.Pool.Exec(ctx, query,
		rule.ID,
		string(rule.Operator),
		rule.Threshold,
		rule.NotifyEmail,
		rule.NotifyInApp,
		string(rule.Frequency),
		rule.IsActive,
		rule.LastTriggeredAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

// GetByID fetches one rule by its id.
func (d *DB) GetByID(ctx context.Context, id string) (models.AlertRule, error) {
	query := `
	SELECT id, kpi_key, dashboard_id, operator, threshold, notify_email, notify_in_app,
		frequency, is_active, last_triggered_at, created_at, updated_at
	FROM alert_rule
	WHERE id = $1`

	var rule models.AlertRule
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&rule.ID,
		&rule.KPIKey,
		&rule.DashboardID,
		&rule.Operator,
		&rule.Threshold,
		&rule.NotifyEmail,
		&rule.NotifyInApp,
		&rule.Frequency,
		&rule.IsActive,
		&rule.LastTriggeredAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AlertRule{}, models.ErrRuleNotFound
	}
	if err != nil {
		return models.AlertRule{}, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return rule, nil
}

// ListByKPI fetches all rules for a (kpi, dashboard) pair in creation order.
func (d *DB) ListByKPI(ctx context.Context, kpiKey, dashboardID string) ([]models.AlertRule, error) {
	query := `
	SELECT id, kpi_key, dashboard_id, operator, threshold, notify_email, notify_in_app,
		frequency, is_active, last_triggered_at, created_at, updated_at
	FROM alert_rule
	WHERE kpi_key = $1 AND dashboard_id = $2
	ORDER BY created_at ASC`

	rows, err := d.Pool.Query(ctx, query, kpiKey, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	defer rows.Close()

	var list []models.AlertRule
	for rows.Next() {
		var rule models.AlertRule
		err := rows.Scan(
			&rule.ID,
			&rule.KPIKey,
			&rule.DashboardID,
			&rule.Operator,
			&rule.Threshold,
			&rule.NotifyEmail,
			&rule.NotifyInApp,
			&rule.Frequency,
			&rule.IsActive,
			&rule.LastTriggeredAt,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		list = append(list, rule)
	}
	return list, nil
}
