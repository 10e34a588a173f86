// Package db persists discovery runs, their items, and archived media in
// PostgreSQL.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pixsift/discovery/models"
)

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// DB wraps the database connection and provides data access methods
type DB struct {
	conn *sql.DB
}

// New opens a connection, configures the pool and runs pending migrations.
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection for metrics collection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// SaveDiscovery stores one run and its items atomically. The full result is
// kept as JSON on the run row; items are flattened into their own table for
// querying by URL or hash.
func (db *DB) SaveDiscovery(record *models.DiscoveryRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO discovery_runs (id, page_url, method, confidence, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		record.ID,
		record.PageURL,
		record.Result.Method,
		record.Result.Confidence,
		string(resultJSON),
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	for _, item := range record.Result.Items {
		if item.ID == "" {
			continue
		}
		var width, height sql.NullInt64
		if item.Dimensions != nil {
			width = sql.NullInt64{Int64: int64(item.Dimensions.Width), Valid: true}
			height = sql.NullInt64{Int64: int64(item.Dimensions.Height), Valid: true}
		}

		_, err = tx.Exec(`
			INSERT INTO discovery_items
				(id, run_id, source_url, full_size_url, alt_text, title, container_path,
				 pattern_id, mime_type, file_size_bytes, width, height, perceptual_hash, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`,
			item.ID,
			record.ID,
			item.SourceURL,
			item.FullSizeURL,
			item.AltText,
			item.Title,
			item.ContainerPath,
			item.PatternID,
			item.MimeType,
			item.FileSizeBytes,
			width,
			height,
			item.PerceptualHash,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to save item %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// GetDiscovery loads one run by id. Returns nil without error when absent.
func (db *DB) GetDiscovery(id string) (*models.DiscoveryRecord, error) {
	var (
		record     models.DiscoveryRecord
		resultJSON string
	)
	err := db.conn.QueryRow(`
		SELECT id, page_url, result, created_at FROM discovery_runs WHERE id = $1
	`, id).Scan(&record.ID, &record.PageURL, &resultJSON, &record.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	if err := json.Unmarshal([]byte(resultJSON), &record.Result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &record, nil
}

// ListDiscoveries returns runs in reverse chronological order.
func (db *DB) ListDiscoveries(limit, offset int) ([]*models.DiscoveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, page_url, result, created_at
		FROM discovery_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []*models.DiscoveryRecord
	for rows.Next() {
		var (
			record     models.DiscoveryRecord
			resultJSON string
		)
		if err := rows.Scan(&record.ID, &record.PageURL, &resultJSON, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(resultJSON), &record.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}

// DeleteDiscovery removes a run; its items and archived media cascade.
func (db *DB) DeleteDiscovery(id string) error {
	result, err := db.conn.Exec("DELETE FROM discovery_runs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SearchItemsByHash finds stored items sharing a perceptual hash, the
// cross-run duplicate lookup.
func (db *DB) SearchItemsByHash(hash string) ([]models.CandidateItem, error) {
	rows, err := db.conn.Query(`
		SELECT id, source_url, full_size_url, alt_text, title, container_path,
		       pattern_id, mime_type, file_size_bytes, width, height, perceptual_hash
		FROM discovery_items
		WHERE perceptual_hash = $1
		ORDER BY created_at DESC
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	defer rows.Close()

	var items []models.CandidateItem
	for rows.Next() {
		var (
			item          models.CandidateItem
			width, height sql.NullInt64
		)
		err := rows.Scan(&item.ID, &item.SourceURL, &item.FullSizeURL, &item.AltText,
			&item.Title, &item.ContainerPath, &item.PatternID, &item.MimeType,
			&item.FileSizeBytes, &width, &height, &item.PerceptualHash)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		if width.Valid && height.Valid {
			item.Dimensions = &models.Dimensions{Width: int(width.Int64), Height: int(height.Int64)}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveArchivedMedia records media files written to archive storage.
func (db *DB) SaveArchivedMedia(runID string, media []models.ArchivedMedia) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range media {
		var takenAt sql.NullTime
		if !m.TakenAt.IsZero() {
			takenAt = sql.NullTime{Time: m.TakenAt, Valid: true}
		}
		_, err = tx.Exec(`
			INSERT INTO archived_media
				(id, run_id, item_url, file_path, content_type, size_bytes, camera_model, taken_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, m.ID, runID, m.ItemURL, m.FilePath, m.ContentType, m.SizeBytes, m.CameraModel, takenAt, time.Now())
		if err != nil {
			return fmt.Errorf("failed to save archived media %s: %w", m.ItemURL, err)
		}
	}
	return tx.Commit()
}

// ListArchivedMedia returns the archive rows for one run.
func (db *DB) ListArchivedMedia(runID string) ([]models.ArchivedMedia, error) {
	rows, err := db.conn.Query(`
		SELECT id, item_url, file_path, content_type, size_bytes, camera_model, taken_at
		FROM archived_media
		WHERE run_id = $1
		ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived media: %w", err)
	}
	defer rows.Close()

	var media []models.ArchivedMedia
	for rows.Next() {
		var (
			m       models.ArchivedMedia
			takenAt sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.ItemURL, &m.FilePath, &m.ContentType, &m.SizeBytes, &m.CameraModel, &takenAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived media: %w", err)
		}
		if takenAt.Valid {
			m.TakenAt = takenAt.Time
		}
		m.RunID = runID
		media = append(media, m)
	}
	return media, rows.Err()
}

// Count returns the number of stored discovery runs.
func (db *DB) Count() (int, error) {
	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM discovery_runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}
