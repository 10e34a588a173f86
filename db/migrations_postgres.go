package db

// PostgreSQL schema for discovery runs and their items.

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_discovery_runs_table",
		Up: `
			CREATE TABLE IF NOT EXISTS discovery_runs (
				id TEXT PRIMARY KEY,
				page_url TEXT NOT NULL,
				method TEXT NOT NULL,
				confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
				result TEXT NOT NULL,
				created_at TIMESTAMPTZ DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_discovery_runs_page_url ON discovery_runs(page_url);
			CREATE INDEX IF NOT EXISTS idx_discovery_runs_created_at ON discovery_runs(created_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_discovery_runs_created_at;
			DROP INDEX IF EXISTS idx_discovery_runs_page_url;
			DROP TABLE IF EXISTS discovery_runs;
		`,
	},
	{
		Version: 2,
		Name:    "create_discovery_items_table",
		Up: `
			CREATE TABLE IF NOT EXISTS discovery_items (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL,
				source_url TEXT NOT NULL,
				full_size_url TEXT,
				alt_text TEXT,
				title TEXT,
				container_path TEXT,
				pattern_id TEXT,
				mime_type TEXT,
				file_size_bytes BIGINT,
				width INTEGER,
				height INTEGER,
				perceptual_hash TEXT,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				FOREIGN KEY (run_id) REFERENCES discovery_runs(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_discovery_items_run_id ON discovery_items(run_id);
			CREATE INDEX IF NOT EXISTS idx_discovery_items_source_url ON discovery_items(source_url);
			CREATE INDEX IF NOT EXISTS idx_discovery_items_perceptual_hash ON discovery_items(perceptual_hash);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_discovery_items_perceptual_hash;
			DROP INDEX IF EXISTS idx_discovery_items_source_url;
			DROP INDEX IF EXISTS idx_discovery_items_run_id;
			DROP TABLE IF EXISTS discovery_items;
		`,
	},
	{
		Version: 3,
		Name:    "create_archived_media_table",
		Up: `
			CREATE TABLE IF NOT EXISTS archived_media (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL,
				item_url TEXT NOT NULL,
				file_path TEXT NOT NULL,
				content_type TEXT,
				size_bytes BIGINT,
				camera_model TEXT,
				taken_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ DEFAULT NOW(),
				FOREIGN KEY (run_id) REFERENCES discovery_runs(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_archived_media_run_id ON archived_media(run_id);
			CREATE INDEX IF NOT EXISTS idx_archived_media_item_url ON archived_media(item_url);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_archived_media_item_url;
			DROP INDEX IF EXISTS idx_archived_media_run_id;
			DROP TABLE IF EXISTS archived_media;
		`,
	},
}
