package sqlite

import (
	"context"
	"time"

	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// HOLIDAY CALENDAR (generic.HolidayCalendar interface)
// =============================================================================

// SaveHoliday saves a holiday. An empty TenantID makes it global.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	if h.ID == "" {
		h.ID = generic.NewID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO holidays (id, tenant_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.TenantID,
		dateText(h.Date),
		h.Name,
		h.Recurring,
		timestamp(time.Now()),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// IsHoliday checks the tenant's holidays and the global ones. Lookup
// errors count as a working day.
func (s *Store) IsHoliday(tenantID generic.TenantID, date generic.TimePoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (tenant_id = ? OR tenant_id = '')
		  AND (
			(recurring = FALSE AND date = ?)
			OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
		  )
	`

	var count int
	err := s.db.QueryRow(query, tenantID, dateText(date), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Holidays lists the tenant's holidays and the global ones by date.
func (s *Store) Holidays(ctx context.Context, tenantID generic.TenantID) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, date, name, recurring
		FROM holidays
		WHERE tenant_id = ? OR tenant_id = ''
		ORDER BY date ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &h.TenantID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		t, _ := time.Parse("2006-01-02", dateStr)
		h.Date = generic.DateOf(t)
		holidays = append(holidays, h)
	}

	return holidays, rows.Err()
}
