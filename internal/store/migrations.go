package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Runs table - one row per controller session
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			method TEXT NOT NULL CHECK(method IN ('classifier', 'neuralnet', 'contour')),
			source TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		// Detections table - one row per processed frame
		`CREATE TABLE IF NOT EXISTS detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			found INTEGER NOT NULL,
			xmin INTEGER NOT NULL DEFAULT 0,
			xmax INTEGER NOT NULL DEFAULT 0,
			ymin INTEGER NOT NULL DEFAULT 0,
			ymax INTEGER NOT NULL DEFAULT 0,
			elapsed_us INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_detections_run_id ON detections(run_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
