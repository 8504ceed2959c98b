// Package all registers every storage backend with the storage factory.
package all

import (
	_ "filmetl/internal/storage/mongo"
	_ "filmetl/internal/storage/mssql"
	_ "filmetl/internal/storage/mysql"
	_ "filmetl/internal/storage/postgres"
	_ "filmetl/internal/storage/sqlite"
)
