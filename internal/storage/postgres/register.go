package postgres

import "tablesql/internal/storage"

func init() {
	// registers the postgres backend factory
	storage.Register("postgres", New)
}
