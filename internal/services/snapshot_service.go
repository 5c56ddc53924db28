package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"pulseboard/internal/models"
)

// ErrNoSnapshot is returned when no snapshot has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot found")

// SnapshotService persists a best-effort local snapshot of the dashboard
// state in a SQLite database. The snapshot is an explicit, versioned value
// type (models.Snapshot) serialized as JSON. This is not a wire
// format; it only survives restarts of the same installation.
type SnapshotService struct {
	db  *sql.DB
	now func() time.Time
}

// NewSnapshotService opens (or creates) the snapshot database at path.
func NewSnapshotService(path string) (*SnapshotService, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	svc := &SnapshotService{db: db, now: time.Now}
	if err := svc.initTable(); err != nil {
		db.Close()
		return nil, err
	}
	return svc, nil
}

func (s *SnapshotService) initTable() error {
	createTableSQL := `
		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			schema_version INTEGER NOT NULL,
			data TEXT NOT NULL,
			saved_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SnapshotService) Close() error {
	return s.db.Close()
}

// Save serializes and stores a snapshot. Only the latest row matters; older
// rows are pruned to keep the file small.
func (s *SnapshotService) Save(ctx context.Context, snapshot models.Snapshot) error {
	snapshot.SchemaVersion = models.SnapshotSchemaVersion
	snapshot.SavedAt = s.now()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO snapshots (schema_version, data, saved_at) VALUES (?, ?, ?)",
		snapshot.SchemaVersion, string(data), snapshot.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	// Keep only the most recent few rows
	_, err = s.db.ExecContext(ctx,
		"DELETE FROM snapshots WHERE id NOT IN (SELECT id FROM snapshots ORDER BY id DESC LIMIT 5)",
	)
	if err != nil {
		log.Printf("⚠️ Failed to prune old snapshots: %v", err)
	}

	log.Printf("💾 Snapshot saved (%d widgets, %d subscriptions)", len(snapshot.Widgets), len(snapshot.Subscriptions))
	return nil
}

// Load deserializes the most recent snapshot. Snapshots with a newer schema
// version than this build understands are rejected. Restored subscriptions
// always come back inactive.
func (s *SnapshotService) Load(ctx context.Context) (*models.Snapshot, error) {
	var version int
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT schema_version, data FROM snapshots ORDER BY id DESC LIMIT 1",
	).Scan(&version, &data)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	if version > models.SnapshotSchemaVersion {
		return nil, fmt.Errorf("snapshot schema version %d is newer than supported version %d", version, models.SnapshotSchemaVersion)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}

	// Subscriptions are never assumed live across restarts.
	for i := range snapshot.Subscriptions {
		snapshot.Subscriptions[i].IsActive = false
	}

	return &snapshot, nil
}
