package database

import "strings"

// Open selects the store backend from the database URL: postgres URLs use
// pgx, anything else is a buntdb file path (":memory:" for ephemeral).
func Open(url string) (Store, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return NewPostgresDB(url)
	}
	return NewBuntStore(url)
}
