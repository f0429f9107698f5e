package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per still image accepted by the service
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL DEFAULT '',
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			resized INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			cleared_at DATETIME
		)`,

		// Requests table - every processing request and what became of it
		`CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			lane TEXT NOT NULL CHECK(lane IN ('upload', 'webcam')),
			epoch INTEGER NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			algorithm TEXT NOT NULL,
			params TEXT NOT NULL DEFAULT '{}',
			outcome TEXT NOT NULL CHECK(outcome IN ('applied', 'discarded', 'failed')),
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_requests_lane ON requests(lane)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_created_at ON requests(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
