package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/person-matcher/internal/database"
)

// sightingColumns is the SELECT list shared by all sighting queries.
const sightingColumns = `id, group_id, description, clarity, image_hash, image_ref, created_at`

// SightingRepository provides PostgreSQL-backed sighting storage.
type SightingRepository struct {
	pool *Pool
}

// NewSightingRepository creates a new PostgreSQL sighting repository.
func NewSightingRepository(pool *Pool) *SightingRepository {
	return &SightingRepository{pool: pool}
}

func scanSightingRow(scanner interface{ Scan(...any) error }) (database.StoredSighting, error) {
	var sighting database.StoredSighting
	var descJSON []byte
	var imageHash, imageRef sql.NullString

	err := scanner.Scan(
		&sighting.ID,
		&sighting.GroupID,
		&descJSON,
		&sighting.Clarity,
		&imageHash,
		&imageRef,
		&sighting.CreatedAt,
	)
	if err != nil {
		return sighting, fmt.Errorf("scan sighting: %w", err)
	}

	if err := json.Unmarshal(descJSON, &sighting.Description); err != nil {
		return sighting, fmt.Errorf("unmarshal sighting description: %w", err)
	}
	if imageHash.Valid {
		sighting.ImageHash = imageHash.String
	}
	if imageRef.Valid {
		sighting.ImageRef = imageRef.String
	}

	return sighting, nil
}

func scanSightings(rows *sql.Rows) ([]database.StoredSighting, error) {
	var sightings []database.StoredSighting
	for rows.Next() {
		sighting, err := scanSightingRow(rows)
		if err != nil {
			return nil, err
		}
		sightings = append(sightings, sighting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sightings: %w", err)
	}
	return sightings, nil
}

// Create stores a sighting without touching the group's canonical description
// or member count. Most callers want GroupWriter.AttachSighting instead.
func (r *SightingRepository) Create(ctx context.Context, sighting *database.StoredSighting) error {
	descJSON, err := marshalDescription(sighting.Description)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO sightings (group_id, description, clarity, image_hash, image_ref)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at
	`,
		sighting.GroupID,
		descJSON,
		sighting.Clarity,
		sighting.ImageHash,
		sighting.ImageRef,
	).Scan(&sighting.ID, &sighting.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sighting: %w", err)
	}
	return nil
}

// ListByGroup returns a group's sightings in arrival order, oldest first.
func (r *SightingRepository) ListByGroup(
	ctx context.Context, groupID string, limit, offset int,
) ([]database.StoredSighting, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM sightings
		WHERE group_id = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`, sightingColumns)

	rows, err := r.pool.Query(ctx, query, groupID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query sightings: %w", err)
	}
	defer rows.Close()

	return scanSightings(rows)
}

// CountByGroup returns the number of sightings attached to a group.
func (r *SightingRepository) CountByGroup(ctx context.Context, groupID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sightings WHERE group_id = $1", groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sightings: %w", err)
	}
	return count, nil
}

// Count returns the total number of sightings stored.
func (r *SightingRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sightings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count sightings: %w", err)
	}
	return count, nil
}

// FindByHash returns sightings whose perceptual image hash matches exactly.
// Near-duplicate detection (Hamming distance) happens in the caller.
func (r *SightingRepository) FindByHash(ctx context.Context, hash string) ([]database.StoredSighting, error) {
	if hash == "" {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM sightings WHERE image_hash = $1 ORDER BY id", sightingColumns)

	rows, err := r.pool.Query(ctx, query, hash)
	if err != nil {
		return nil, fmt.Errorf("query sightings by hash: %w", err)
	}
	defer rows.Close()

	return scanSightings(rows)
}

// ListAll retrieves every sighting in the database, ordered by ID.
func (r *SightingRepository) ListAll(ctx context.Context) ([]database.StoredSighting, error) {
	query := fmt.Sprintf("SELECT %s FROM sightings ORDER BY id", sightingColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all sightings: %w", err)
	}
	defer rows.Close()

	return scanSightings(rows)
}

// Move reassigns a sighting to another group in a single transaction, adjusting
// member counts and recomputing the canonical description of both groups from
// their remaining sightings. A source group left with zero members keeps its
// stale canonical until DeleteEmpty prunes it. Callers running batch moves
// should rebuild the HNSW index afterwards.
func (r *SightingRepository) Move(ctx context.Context, sightingID int64, toGroupID string) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fromGroupID string
	err = tx.QueryRowContext(ctx,
		"SELECT group_id FROM sightings WHERE id = $1 FOR UPDATE", sightingID,
	).Scan(&fromGroupID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sighting %d not found", sightingID)
	}
	if err != nil {
		return fmt.Errorf("query sighting group: %w", err)
	}

	if fromGroupID == toGroupID {
		return nil
	}

	_, err = tx.ExecContext(ctx, "UPDATE sightings SET group_id = $2 WHERE id = $1", sightingID, toGroupID)
	if err != nil {
		return fmt.Errorf("move sighting: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE person_groups
		SET member_count = member_count - 1, updated_at = NOW()
		WHERE id = $1
	`, fromGroupID)
	if err != nil {
		return fmt.Errorf("decrement member count: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE person_groups
		SET member_count = member_count + 1, updated_at = NOW()
		WHERE id = $1
	`, toGroupID)
	if err != nil {
		return fmt.Errorf("increment member count: %w", err)
	}

	for _, groupID := range []string{fromGroupID, toGroupID} {
		if err := recomputeCanonical(ctx, tx, groupID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// recomputeCanonical resets a group's canonical description to its sharpest
// remaining sighting. Ties break toward the earlier sighting. No-op when the
// group has no sightings left.
func recomputeCanonical(ctx context.Context, tx *sql.Tx, groupID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE person_groups g
		SET canonical_description = s.description,
		    canonical_clarity = s.clarity,
		    representative_image = s.image_ref,
		    updated_at = NOW()
		FROM (
			SELECT description, clarity, image_ref
			FROM sightings
			WHERE group_id = $1
			ORDER BY clarity DESC, id
			LIMIT 1
		) s
		WHERE g.id = $1
	`, groupID)
	if err != nil {
		return fmt.Errorf("recompute canonical for group %s: %w", groupID, err)
	}
	return nil
}

// Verify interface compliance.
var _ database.SightingReader = (*SightingRepository)(nil)
var _ database.SightingWriter = (*SightingRepository)(nil)
