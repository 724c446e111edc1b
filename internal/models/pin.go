package models

import "time"

// PinnedKPI is a KPI a user surfaced on their personal summary view.
// Payload reads for a pinned KPI go through the same cache entries as the
// dashboard it was pinned from.
type PinnedKPI struct {
	ID          string    `json:"id"`
	UserID      int       `json:"user_id"`
	KPIKey      string    `json:"kpi_key"`
	DashboardID string    `json:"dashboard_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PinnedKPICreate is the input structure for pinning a KPI.
type PinnedKPICreate struct {
	UserID      int    `json:"user_id" binding:"required"`
	KPIKey      string `json:"kpi_key" binding:"required"`
	DashboardID string `json:"dashboard_id" binding:"required"`
}
