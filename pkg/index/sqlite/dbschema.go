package sqlite

// requiredSchemaVersion is bumped whenever the table layout below
// changes incompatibly; Open returns ErrSchemaMismatch for an on-disk
// index stamped with any other version, and callers rebuild it.
const requiredSchemaVersion = 1

func sqlCreateTables(unique bool) []string {
	rowsIndex := `CREATE INDEX idx_rows_key_text ON rows (key_text)`
	if unique {
		rowsIndex = `CREATE UNIQUE INDEX idx_rows_key_text ON rows (key_text)`
	}
	return []string{
		`CREATE TABLE rows (
 key_text TEXT NOT NULL,
 file_pos INTEGER NOT NULL,
 compressed_size INTEGER NOT NULL,
 decompressed_size INTEGER NOT NULL,
 record_block_type INTEGER NOT NULL,
 record_start INTEGER NOT NULL,
 record_end INTEGER NOT NULL,
 offset INTEGER NOT NULL)`,
		rowsIndex,
		`CREATE TABLE meta (
 metakey VARCHAR(255) NOT NULL PRIMARY KEY,
 value TEXT NOT NULL)`,
	}
}
