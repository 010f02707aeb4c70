package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"placemap/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
func valNonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) UpsertLocation(ctx context.Context, l domain.Location) error {
	cats, _ := json.Marshal(nonNil(l.Categories))
	imgs, _ := json.Marshal(nonNil(l.Images))
	_, err := r.db.ExecContext(ctx, upsertLocationSQL,
		l.ID,
		l.Source,
		l.SourceID,
		l.Name,
		l.Latitude,
		l.Longitude,
		valNonEmpty(l.Category()),
		string(cats),
		valF64(l.Rating),
		string(imgs),
		valStr(l.Description),
		valStr(l.Address),
		valJSON(l.RawJSON),
	)
	return err
}

func (r *Repo) LogMiss(ctx context.Context, source, ref string, status int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, source, ref, status, reason)
	return err
}

func (r *Repo) GetLocation(ctx context.Context, id string) (domain.Location, error) {
	row := r.db.QueryRowContext(ctx, getLocationSQL, id)
	l, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Location{}, domain.ErrNotFound
	}
	return l, err
}

func (r *Repo) ListLocations(ctx context.Context, q domain.LocationsQuery) (domain.LocationsPage, error) {
	query, args := buildListQuery(q)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.LocationsPage{}, err
	}
	defer rows.Close()

	var out []domain.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return domain.LocationsPage{}, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return domain.LocationsPage{}, err
	}
	return domain.LocationsPage{Items: out}, nil
}

func buildListQuery(q domain.LocationsQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if b := q.Bounds; b != nil {
		where = append(where, "lat BETWEEN ? AND ?")
		args = append(args, b.South, b.North)
		if b.West <= b.East {
			where = append(where, "lng BETWEEN ? AND ?")
			args = append(args, b.West, b.East)
		} else {
			// antimeridian crossing
			where = append(where, "(lng >= ? OR lng <= ?)")
			args = append(args, b.West, b.East)
		}
	}
	if q.Category != nil && *q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, *q.Category)
	}
	if q.Q != nil && *q.Q != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+escapeLike(*q.Q)+"%")
	}

	var sb strings.Builder
	sb.WriteString(listLocationsBase)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY id")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return sb.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLocation(s scanner) (domain.Location, error) {
	var (
		l                 domain.Location
		catsRaw, imgsRaw  []byte
		rating            sql.NullFloat64
		description, addr sql.NullString
	)
	if err := s.Scan(
		&l.ID, &l.Source, &l.SourceID, &l.Name,
		&l.Latitude, &l.Longitude,
		&catsRaw, &rating, &imgsRaw,
		&description, &addr,
	); err != nil {
		return domain.Location{}, err
	}
	_ = json.Unmarshal(catsRaw, &l.Categories)
	_ = json.Unmarshal(imgsRaw, &l.Images)
	if rating.Valid {
		f := rating.Float64
		l.Rating = &f
	}
	if description.Valid {
		d := description.String
		l.Description = &d
	}
	if addr.Valid && strings.TrimSpace(addr.String) != "" {
		a := addr.String
		l.Address = &a
	}
	return l, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
