package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/facecurator/internal/presence"
	"github.com/andresmejia3/facecurator/internal/types"
	"github.com/jackc/pgx/v5"
)

// Store manages the PostgreSQL connection holding curation history.
type Store struct {
	conn *pgx.Conn
}

// Batch is one curation run.
type Batch struct {
	ID        string
	StartedAt time.Time
	Policy    presence.Config
	Accepted  int
}

// CuratedClip is an accepted clip as stored in the database.
type CuratedClip struct {
	BatchID     string
	Fingerprint string
	CuratedAt   time.Time
	types.ClipRecord
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS curation_batches (
			id TEXT PRIMARY KEY,
			policy JSONB NOT NULL,
			started_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS curated_clips (
			id BIGSERIAL PRIMARY KEY,
			batch_id TEXT NOT NULL REFERENCES curation_batches(id) ON DELETE CASCADE,
			clip_id TEXT NOT NULL,
			face_prob DOUBLE PRECISION NOT NULL,
			avg_num_faces DOUBLE PRECISION NOT NULL,
			face_clusters DOUBLE PRECISION[] NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			curated_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (batch_id, clip_id)
		);
		CREATE INDEX IF NOT EXISTS curated_clips_clip_id_idx ON curated_clips (clip_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// BeginBatch registers a curation run with the policy it was evaluated under.
// Re-using an id clears the clips recorded for it, so a re-run is idempotent.
func (s *Store) BeginBatch(ctx context.Context, batchID string, policy presence.Config) error {
	raw, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM curated_clips WHERE batch_id = $1", batchID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO curation_batches (id, policy, started_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE SET policy = EXCLUDED.policy, started_at = NOW()
	`, batchID, string(raw))
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// InsertClip saves one accepted clip of a batch.
func (s *Store) InsertClip(ctx context.Context, batchID string, rec types.ClipRecord, fingerprint string) error {
	clusters := rec.FaceClusters
	if clusters == nil {
		clusters = []float64{}
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO curated_clips (batch_id, clip_id, face_prob, avg_num_faces, face_clusters, fingerprint)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (batch_id, clip_id) DO UPDATE SET
			face_prob = EXCLUDED.face_prob,
			avg_num_faces = EXCLUDED.avg_num_faces,
			face_clusters = EXCLUDED.face_clusters,
			fingerprint = EXCLUDED.fingerprint,
			curated_at = NOW()
	`, batchID, rec.ClipID, rec.FaceProb, rec.AvgNumFaces, clusters, fingerprint)
	if err != nil {
		return fmt.Errorf("insert clip %s: %w", rec.ClipID, err)
	}
	return nil
}

// ListBatches returns all batches, newest first, with their accepted clip count.
func (s *Store) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT b.id, b.started_at, b.policy::text, COUNT(c.id)
		FROM curation_batches b
		LEFT JOIN curated_clips c ON c.batch_id = b.id
		GROUP BY b.id
		ORDER BY b.started_at DESC, b.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		var policy string
		if err := rows.Scan(&b.ID, &b.StartedAt, &policy, &b.Accepted); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(policy), &b.Policy); err != nil {
			return nil, fmt.Errorf("decode policy of batch %s: %w", b.ID, err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListClips returns the accepted clips of one batch, or of every batch when
// batchID is empty, ordered by clip id.
func (s *Store) ListClips(ctx context.Context, batchID string) ([]CuratedClip, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT batch_id, clip_id, face_prob, avg_num_faces, face_clusters, fingerprint, curated_at
		FROM curated_clips
		WHERE $1 = '' OR batch_id = $1
		ORDER BY clip_id, curated_at
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []CuratedClip
	for rows.Next() {
		var c CuratedClip
		if err := rows.Scan(&c.BatchID, &c.ClipID, &c.FaceProb, &c.AvgNumFaces, &c.FaceClusters, &c.Fingerprint, &c.CuratedAt); err != nil {
			return nil, err
		}
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

// LatestBatch returns the id of the most recent batch, or "" if none exist.
func (s *Store) LatestBatch(ctx context.Context) (string, error) {
	var id string
	err := s.conn.QueryRow(ctx, "SELECT id FROM curation_batches ORDER BY started_at DESC LIMIT 1").Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS curated_clips CASCADE;
		DROP TABLE IF EXISTS curation_batches CASCADE;
	`)
	return err
}
