package mysql

import (
	"strings"
	"testing"

	"placemap/internal/domain"
)

func TestBuildListQuery(t *testing.T) {
	cat, q := "Cafe", "50%_off"
	cases := []struct {
		name      string
		in        domain.LocationsQuery
		wantParts []string
		wantArgs  int
	}{
		{"bare", domain.LocationsQuery{}, []string{"FROM locations ORDER BY id"}, 0},
		{
			"bbox",
			domain.LocationsQuery{Bounds: &domain.Bounds{West: -1, South: -2, East: 3, North: 4}, Limit: 10},
			[]string{"lat BETWEEN ? AND ?", "lng BETWEEN ? AND ?", "LIMIT ?"},
			5,
		},
		{
			"antimeridian",
			domain.LocationsQuery{Bounds: &domain.Bounds{West: 170, South: -20, East: -170, North: 0}},
			[]string{"(lng >= ? OR lng <= ?)"},
			4,
		},
		{
			"filters",
			domain.LocationsQuery{Category: &cat, Q: &q, Limit: 5},
			[]string{"category = ?", "name LIKE ?", " AND "},
			3,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sqlStr, args := buildListQuery(tc.in)
			for _, p := range tc.wantParts {
				if !strings.Contains(sqlStr, p) {
					t.Fatalf("query %q missing %q", sqlStr, p)
				}
			}
			if len(args) != tc.wantArgs {
				t.Fatalf("args = %v, want %d", args, tc.wantArgs)
			}
		})
	}

	_, args := buildListQuery(domain.LocationsQuery{Q: &q})
	if args[0] != `%50\%\_off%` {
		t.Fatalf("LIKE pattern not escaped: %v", args[0])
	}
}
