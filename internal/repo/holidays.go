package repo

import (
	"context"

	"batchline/internal/domain"
)

func (r Repo) UpsertHoliday(ctx context.Context, h domain.Holiday) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO holidays(day,description) VALUES (?,?)
ON CONFLICT(day) DO UPDATE SET description=excluded.description`, h.Day, nullable(h.Description))
	return err
}

func (r Repo) DeleteHoliday(ctx context.Context, day string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM holidays WHERE day=?`, day)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListHolidays(ctx context.Context) ([]domain.Holiday, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT day, COALESCE(description,'') FROM holidays ORDER BY day ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Holiday
	for rows.Next() {
		var h domain.Holiday
		if err := rows.Scan(&h.Day, &h.Description); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// HolidaySet returns holiday days keyed by their YYYY-MM-DD form for the
// calendar policy.
func (r Repo) HolidaySet(ctx context.Context) (map[string]bool, error) {
	days, err := r.ListHolidays(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(days))
	for _, h := range days {
		set[h.Day] = true
	}
	return set, nil
}
