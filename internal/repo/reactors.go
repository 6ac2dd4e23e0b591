package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"batchline/internal/domain"
)

func scanReactor(sc rowScanner) (domain.Reactor, error) {
	var re domain.Reactor
	var capacity string
	var active int
	err := sc.Scan(&re.ID, &re.Name, &capacity, &active, &re.CreatedAt)
	if err == sql.ErrNoRows {
		return re, ErrNotFound
	}
	if err != nil {
		return re, err
	}
	if re.CapacityKg, err = decimal.NewFromString(capacity); err != nil {
		return re, fmt.Errorf("reactor %s capacity_kg: %w", re.ID, err)
	}
	re.Active = active != 0
	return re, nil
}

func (r Repo) InsertReactor(ctx context.Context, re domain.Reactor) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO reactors(id,name,capacity_kg,active,created_at) VALUES (?,?,?,?,?)`,
		re.ID, re.Name, re.CapacityKg.String(), boolInt(re.Active), re.CreatedAt)
	return err
}

func (r Repo) GetReactor(ctx context.Context, id string) (domain.Reactor, error) {
	return scanReactor(r.DB.QueryRowContext(ctx, `SELECT id,name,capacity_kg,active,created_at FROM reactors WHERE id=?`, id))
}

// ListReactors returns reactors ascending by capacity, the order the
// best-fit selector wants them in.
func (r Repo) ListReactors(ctx context.Context, activeOnly bool) ([]domain.Reactor, error) {
	query := `SELECT id,name,capacity_kg,active,created_at FROM reactors`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY CAST(capacity_kg AS REAL) ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reactor
	for rows.Next() {
		re, err := scanReactor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, re)
	}
	return res, rows.Err()
}

func (r Repo) SetReactorActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE reactors SET active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
