package alerts

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fleetmetrics/internal/models"
)

// RuleStore persists alert rules. The pgx-backed implementation lives in
// internal/db; tests use an in-memory one.
type RuleStore interface {
	Insert(ctx context.Context, rule models.AlertRule) error
	Update(ctx context.Context, rule models.AlertRule) error
	GetByID(ctx context.Context, id string) (models.AlertRule, error)
	ListByKPI(ctx context.Context, kpiKey, dashboardID string) ([]models.AlertRule, error)
}

// Manager validates and persists threshold rules. It never touches the
// payload cache: rules and payload caching share a key namespace but are
// independent concerns.
type Manager struct {
	store  RuleStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewManager constructs a Manager over the given store.
func NewManager(store RuleStore, logger *logrus.Logger) *Manager {
	return &Manager{store: store, logger: logger, now: time.Now}
}

// Create validates and stores a new rule. The stored rule is returned with
// its generated id and timestamps, active by default. Validation failure
// blocks persistence entirely; no partial rule is ever stored.
func (m *Manager) Create(ctx context.Context, in models.AlertRuleCreate) (models.AlertRule, error) {
	rule := models.AlertRule{
		ID:          uuid.New().String(),
		KPIKey:      in.KPIKey,
		DashboardID: in.DashboardID,
		Operator:    in.Operator,
		Threshold:   in.Threshold.Float64(),
		NotifyEmail: in.NotifyEmail,
		NotifyInApp: in.NotifyInApp,
		Frequency:   in.Frequency,
		IsActive:    true,
		CreatedAt:   m.now(),
		UpdatedAt:   m.now(),
	}
	if rule.Frequency == "" {
		rule.Frequency = models.FrequencyRealtime
	}
	if err := validate(rule); err != nil {
		return models.AlertRule{}, err
	}
	if err := m.store.Insert(ctx, rule); err != nil {
		return models.AlertRule{}, fmt.Errorf("failed to insert alert rule: %w", err)
	}
	m.logger.Infof("Created alert rule %s for kpi=%s dashboard=%s", rule.ID, rule.KPIKey, rule.DashboardID)
	return rule, nil
}

// Update merges patch over the stored rule, re-validates the merged state,
// and persists it. KPIKey and DashboardID in the patch are ignored so that
// callers resending the full object do not error.
func (m *Manager) Update(ctx context.Context, id string, patch models.AlertRulePatch) (models.AlertRule, error) {
	rule, err := m.store.GetByID(ctx, id)
	if err != nil {
		return models.AlertRule{}, err
	}

	if patch.Operator != nil {
		rule.Operator = *patch.Operator
	}
	if patch.Threshold != nil {
		rule.Threshold = patch.Threshold.Float64()
	}
	if patch.NotifyEmail != nil {
		rule.NotifyEmail = *patch.NotifyEmail
	}
	if patch.NotifyInApp != nil {
		rule.NotifyInApp = *patch.NotifyInApp
	}
	if patch.Frequency != nil {
		rule.Frequency = *patch.Frequency
	}
	if patch.IsActive != nil {
		rule.IsActive = *patch.IsActive
	}
	rule.UpdatedAt = m.now()

	if err := validate(rule); err != nil {
		return models.AlertRule{}, err
	}
	if err := m.store.Update(ctx, rule); err != nil {
		return models.AlertRule{}, fmt.Errorf("failed to update alert rule: %w", err)
	}
	m.logger.Infof("Updated alert rule %s", rule.ID)
	return rule, nil
}

// List returns all rules for a (kpi, dashboard) pair in creation order.
// Uniqueness is not enforced; callers expecting a single rule read the
// first element as authoritative.
func (m *Manager) List(ctx context.Context, kpiKey, dashboardID string) ([]models.AlertRule, error) {
	rules, err := m.store.ListByKPI(ctx, kpiKey, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}
	return rules, nil
}

func validate(rule models.AlertRule) error {
	if math.IsNaN(rule.Threshold) || math.IsInf(rule.Threshold, 0) {
		return models.ErrInvalidThreshold
	}
	if !models.ValidOperator(rule.Operator) {
		return fmt.Errorf("unknown operator %q", rule.Operator)
	}
	if !models.ValidFrequency(rule.Frequency) {
		return fmt.Errorf("unknown frequency %q", rule.Frequency)
	}
	if rule.IsActive && !rule.NotifyEmail && !rule.NotifyInApp {
		return models.ErrNoNotificationChannel
	}
	return nil
}
