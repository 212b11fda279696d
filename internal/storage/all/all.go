// Package all registers every storage backend. Import it for side effects.
package all

import (
	_ "tablesql/internal/storage/mssql"
	_ "tablesql/internal/storage/mysql"
	_ "tablesql/internal/storage/postgres"
	_ "tablesql/internal/storage/sqlite"
)
