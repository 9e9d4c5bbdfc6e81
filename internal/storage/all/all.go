// Package all registers every storage backend with the storage registry.
package all

import (
	_ "htmlextract/internal/storage/mssql"
	_ "htmlextract/internal/storage/postgres"
	_ "htmlextract/internal/storage/sqlite"
)
