package store

const schemaVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL PRIMARY KEY);
`

// migrations is applied in order, each wrapped in its own transaction. New
// migrations are appended here, never rewritten in place.
var migrations = []string{
	initSchemaSQL,
	seedDefaultTokenSQL,
}

// migrate runs any migration whose index has not yet been recorded in
// schema_migrations. Grounded on original_source/src-tauri/src/db/mod.rs,
// which runs its embedded migrations and seeds a default token on first
// startup.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return err
	}

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for i, stmt := range migrations {
		if applied[i] {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(stmt); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
