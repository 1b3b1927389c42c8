// Package reporting serves the read-only statistics queries: per-analysis
// aggregates over a period, recent out-of-range alerts, and patient history.
// Reads run on pool connections outside any transaction and add no new
// invariants.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnalysisStats aggregates posted results of one analysis type over a period.
type AnalysisStats struct {
	AnalysisName      string   `json:"analysis_name"`
	Total             int      `json:"total"`
	Average           *float64 `json:"average"`
	Min               *float64 `json:"min"`
	Max               *float64 `json:"max"`
	OutOfRangeCount   int      `json:"out_of_range_count"`
	OutOfRangePercent float64  `json:"out_of_range_percent"`
}

// Alert is a recently posted out-of-range result needing attention.
type Alert struct {
	ResultID     uuid.UUID `json:"result_id"`
	OrderID      uuid.UUID `json:"order_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	AnalysisName string    `json:"analysis_name"`
	Value        float64   `json:"value"`
	RefMin       *float64  `json:"ref_min"`
	RefMax       *float64  `json:"ref_max"`
	Unit         string    `json:"unit"`
	ResultedAt   time.Time `json:"resulted_at"`
	Direction    string    `json:"direction"` // LOW or HIGH
}

// HistoryRow is one result in a patient's order history.
type HistoryRow struct {
	OrderID      uuid.UUID  `json:"order_id"`
	OrderedAt    time.Time  `json:"ordered_at"`
	OrderStatus  string     `json:"order_status"`
	AnalysisName string     `json:"analysis_name"`
	Value        *float64   `json:"value"`
	ResultedAt   *time.Time `json:"resulted_at"`
	OutOfRange   bool       `json:"out_of_range"`
	RefMin       *float64   `json:"ref_min"`
	RefMax       *float64   `json:"ref_max"`
	Unit         string     `json:"unit"`
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// PeriodStats aggregates posted results per analysis type between from and to.
func (s *Service) PeriodStats(ctx context.Context, from, to time.Time) ([]*AnalysisStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			at.name,
			COUNT(*) AS total,
			ROUND(AVG(r.value)::numeric, 2) AS average,
			MIN(r.value),
			MAX(r.value),
			SUM(CASE WHEN r.out_of_range THEN 1 ELSE 0 END) AS out_of_range_count,
			ROUND(SUM(CASE WHEN r.out_of_range THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2)
		FROM results r
		JOIN analysis_types at ON r.analysis_type_id = at.id
		WHERE r.resulted_at BETWEEN $1 AND $2
		AND r.value IS NOT NULL
		GROUP BY at.id, at.name
		ORDER BY total DESC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("reporting: period stats: %w", err)
	}
	defer rows.Close()

	var stats []*AnalysisStats
	for rows.Next() {
		var st AnalysisStats
		if err := rows.Scan(&st.AnalysisName, &st.Total, &st.Average, &st.Min, &st.Max,
			&st.OutOfRangeCount, &st.OutOfRangePercent); err != nil {
			return nil, fmt.Errorf("reporting: scan period stats: %w", err)
		}
		stats = append(stats, &st)
	}
	return stats, rows.Err()
}

// RecentAlerts returns out-of-range results posted within the window,
// newest first, capped at limit.
func (s *Service) RecentAlerts(ctx context.Context, window time.Duration, limit int) ([]*Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			r.id, o.id, o.patient_id, at.name, r.value, at.ref_min, at.ref_max, at.unit,
			r.resulted_at,
			CASE WHEN r.value < at.ref_min THEN 'LOW' ELSE 'HIGH' END
		FROM results r
		JOIN orders o ON r.order_id = o.id
		JOIN analysis_types at ON r.analysis_type_id = at.id
		WHERE r.out_of_range = TRUE
		AND r.resulted_at >= NOW() - make_interval(hours => $1)
		ORDER BY r.resulted_at DESC
		LIMIT $2`, int(window.Hours()), limit)
	if err != nil {
		return nil, fmt.Errorf("reporting: recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ResultID, &a.OrderID, &a.PatientID, &a.AnalysisName, &a.Value,
			&a.RefMin, &a.RefMax, &a.Unit, &a.ResultedAt, &a.Direction); err != nil {
			return nil, fmt.Errorf("reporting: scan alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// PatientHistory returns every result of every order of a patient, newest
// order first, results ordered by analysis name within an order.
func (s *Service) PatientHistory(ctx context.Context, patientID uuid.UUID) ([]*HistoryRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT
			o.id, o.created_at, o.status,
			at.name, r.value, r.resulted_at, r.out_of_range,
			at.ref_min, at.ref_max, at.unit
		FROM orders o
		JOIN results r ON o.id = r.order_id
		JOIN analysis_types at ON r.analysis_type_id = at.id
		WHERE o.patient_id = $1
		ORDER BY o.created_at DESC, at.name`, patientID)
	if err != nil {
		return nil, fmt.Errorf("reporting: patient history: %w", err)
	}
	defer rows.Close()

	var history []*HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.OrderID, &h.OrderedAt, &h.OrderStatus,
			&h.AnalysisName, &h.Value, &h.ResultedAt, &h.OutOfRange,
			&h.RefMin, &h.RefMax, &h.Unit); err != nil {
			return nil, fmt.Errorf("reporting: scan history row: %w", err)
		}
		history = append(history, &h)
	}
	return history, rows.Err()
}
