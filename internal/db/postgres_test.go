package db_test

import (
	"testing"

	"github.com/shopcast/social-publisher/internal/db"
)

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@localhost:5432/posts", "pgx5://u:p@localhost:5432/posts"},
		{"postgresql://u:p@db/posts?sslmode=disable", "pgx5://u:p@db/posts?sslmode=disable"},
		{"u:p@db/posts", "pgx5://u:p@db/posts"},
	}
	for _, tc := range tests {
		if got := db.MigrationURL(tc.in); got != tc.want {
			t.Fatalf("MigrationURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
