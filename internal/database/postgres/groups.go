package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kozaktomas/person-matcher/internal/constants"
	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/pgvector/pgvector-go"
)

// groupColumns is the SELECT list shared by all group queries.
const groupColumns = `id, canonical_description, canonical_clarity, member_count,
       embedding, representative_image, created_at, updated_at`

// GroupRepository provides PostgreSQL-backed group storage with optional in-memory HNSW index.
type GroupRepository struct {
	pool          *Pool
	hnswIndex     *database.HNSWIndex
	hnswEnabled   bool
	hnswIndexPath string // Path to persist HNSW index (optional)
	indexDirty    int    // Index writes since the last save
	hnswMu        sync.RWMutex
}

// NewGroupRepository creates a new PostgreSQL group repository.
func NewGroupRepository(pool *Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// embeddingParam converts an embedding to a SQL parameter, NULL when empty.
func embeddingParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// marshalDescription serializes a description for a JSONB column.
func marshalDescription(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal description: %w", err)
	}
	return data, nil
}

// scanGroupRow scans a single row into a StoredGroup, with optional extra scan
// destinations appended after the standard 8 group columns (e.g., a distance column).
func scanGroupRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredGroup, error) {
	var group database.StoredGroup
	var descJSON []byte
	var vec sql.Null[pgvector.Vector]
	var repImage sql.NullString

	dest := make([]any, 0, 8+len(extraDest))
	dest = append(dest,
		&group.ID,
		&descJSON,
		&group.CanonicalClarity,
		&group.MemberCount,
		&vec,
		&repImage,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return group, fmt.Errorf("scan group: %w", err)
	}

	if err := json.Unmarshal(descJSON, &group.CanonicalDescription); err != nil {
		return group, fmt.Errorf("unmarshal canonical description: %w", err)
	}
	if vec.Valid {
		group.Embedding = vec.V.Slice()
	}
	if repImage.Valid {
		group.RepresentativeImage = repImage.String
	}

	return group, nil
}

func scanGroups(rows *sql.Rows) ([]database.StoredGroup, error) {
	var groups []database.StoredGroup
	for rows.Next() {
		group, err := scanGroupRow(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// Get retrieves a group by ID, returns nil if not found.
func (r *GroupRepository) Get(ctx context.Context, id string) (*database.StoredGroup, error) {
	query := fmt.Sprintf("SELECT %s FROM person_groups WHERE id = $1", groupColumns)

	group, err := scanGroupRow(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query group: %w", err)
	}
	return &group, nil
}

// List returns groups ordered by most recent update, newest first.
func (r *GroupRepository) List(ctx context.Context, limit, offset int) ([]database.StoredGroup, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM person_groups
		ORDER BY updated_at DESC, id
		LIMIT $1 OFFSET $2
	`, groupColumns)

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	return scanGroups(rows)
}

// Count returns the total number of groups stored.
func (r *GroupRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM person_groups").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count groups: %w", err)
	}
	return count, nil
}

// GetAllGroups retrieves all groups from the database.
func (r *GroupRepository) GetAllGroups(ctx context.Context) ([]database.StoredGroup, error) {
	query := fmt.Sprintf("SELECT %s FROM person_groups ORDER BY id", groupColumns)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all groups: %w", err)
	}
	defer rows.Close()

	return scanGroups(rows)
}

// Create stores a new group seeded with its first sighting in a single transaction.
// The group ID is assigned when empty, and the sighting ID is filled in on return.
func (r *GroupRepository) Create(ctx context.Context, group *database.StoredGroup, first *database.StoredSighting) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}

	descJSON, err := marshalDescription(group.CanonicalDescription)
	if err != nil {
		return err
	}
	sightingJSON, err := marshalDescription(first.Description)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO person_groups (id, canonical_description, canonical_clarity, member_count,
		                           embedding, representative_image)
		VALUES ($1, $2, $3, 1, $4::vector, NULLIF($5, ''))
	`,
		group.ID,
		descJSON,
		group.CanonicalClarity,
		embeddingParam(group.Embedding),
		group.RepresentativeImage,
	)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sightings (group_id, description, clarity, image_hash, image_ref)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at
	`,
		group.ID,
		sightingJSON,
		first.Clarity,
		first.ImageHash,
		first.ImageRef,
	).Scan(&first.ID, &first.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert first sighting: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	group.MemberCount = 1
	first.GroupID = group.ID

	if r.isHNSWEnabled() && len(group.Embedding) > 0 {
		g := *group
		r.hnswMu.Lock()
		_ = r.hnswIndex.Add(&g)
		r.hnswMu.Unlock()
		r.noteIndexWrite()
	}
	return nil
}

// AttachSighting adds a sighting to an existing group in a single transaction:
// the sighting row is inserted, member_count is incremented, and the canonical
// description is replaced only when the new clarity is strictly higher.
func (r *GroupRepository) AttachSighting(ctx context.Context, groupID string, sighting *database.StoredSighting) error {
	descJSON, err := marshalDescription(sighting.Description)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sightings (group_id, description, clarity, image_hash, image_ref)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))
		RETURNING id, created_at
	`,
		groupID,
		descJSON,
		sighting.Clarity,
		sighting.ImageHash,
		sighting.ImageRef,
	).Scan(&sighting.ID, &sighting.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sighting: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE person_groups
		SET member_count = member_count + 1, updated_at = NOW()
		WHERE id = $1
	`, groupID)
	if err != nil {
		return fmt.Errorf("increment member count: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("group %s not found", groupID)
	}

	// Swap the canonical description only when the new sighting is sharper.
	_, err = tx.ExecContext(ctx, `
		UPDATE person_groups
		SET canonical_description = $2,
		    canonical_clarity = $3,
		    representative_image = COALESCE(NULLIF($4, ''), representative_image)
		WHERE id = $1 AND canonical_clarity < $3
	`,
		groupID,
		descJSON,
		sighting.Clarity,
		sighting.ImageRef,
	)
	if err != nil {
		return fmt.Errorf("update canonical description: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	sighting.GroupID = groupID
	r.refreshHNSWGroup(ctx, groupID)
	return nil
}

// UpdateEmbedding replaces the group's appearance embedding.
func (r *GroupRepository) UpdateEmbedding(ctx context.Context, groupID string, embedding []float32) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE person_groups
		SET embedding = $2::vector, updated_at = NOW()
		WHERE id = $1
	`, groupID, embeddingParam(embedding))
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}

	r.refreshHNSWGroup(ctx, groupID)
	return nil
}

// DeleteEmpty removes groups whose member_count has dropped to zero and
// returns how many were removed.
func (r *GroupRepository) DeleteEmpty(ctx context.Context) (int64, error) {
	rows, err := r.pool.Query(ctx, "DELETE FROM person_groups WHERE member_count <= 0 RETURNING id")
	if err != nil {
		return 0, fmt.Errorf("delete empty groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan group ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate group IDs: %w", err)
	}

	if r.isHNSWEnabled() && len(ids) > 0 {
		r.hnswMu.Lock()
		for _, id := range ids {
			r.hnswIndex.Delete(id)
		}
		r.hnswMu.Unlock()
		r.noteIndexWrite()
	}

	return int64(len(ids)), nil
}

// FindSimilarWithDistance finds similar groups and returns distances,
// dropping groups at or beyond maxDistance. Uses the in-memory HNSW index
// if enabled, otherwise falls back to PostgreSQL.
func (r *GroupRepository) FindSimilarWithDistance(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.StoredGroup, []float64, error) {
	if r.isHNSWEnabled() {
		return r.findSimilarWithDistanceHNSW(embedding, limit, maxDistance)
	}

	// Fallback to PostgreSQL with ef_search optimization.
	return r.findSimilarWithDistancePostgres(ctx, embedding, limit, maxDistance)
}

// findSimilarWithDistanceHNSW uses the in-memory HNSW index for similarity search.
func (r *GroupRepository) findSimilarWithDistanceHNSW(
	embedding []float32, limit int, maxDistance float64,
) ([]database.StoredGroup, []float64, error) {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndex == nil {
		return nil, nil, errors.New("HNSW index not initialized")
	}

	// Request more candidates to ensure we have enough after distance filtering.
	searchK := limit * database.HNSWSearchMultiplier
	searchK = max(searchK, 100) // Minimum search size for better recall

	ids, distances, err := r.hnswIndex.Search(embedding, searchK)
	if err != nil {
		return nil, nil, fmt.Errorf("HNSW search: %w", err)
	}

	// Filter by distance and collect results.
	results := make([]database.StoredGroup, 0, limit)
	distancesOut := make([]float64, 0, limit)

	for i, id := range ids {
		if distances[i] >= maxDistance {
			continue
		}
		group := r.hnswIndex.GetGroup(id)
		if group == nil {
			continue
		}
		results = append(results, *group)
		distancesOut = append(distancesOut, distances[i])
		if len(results) >= limit {
			break
		}
	}

	return results, distancesOut, nil
}

// findSimilarWithDistancePostgres uses PostgreSQL for similarity search with ef_search optimization.
func (r *GroupRepository) findSimilarWithDistancePostgres(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]database.StoredGroup, []float64, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s, embedding <=> $1::vector AS distance
		FROM person_groups
		WHERE embedding IS NOT NULL AND embedding <=> $1::vector < $2
		ORDER BY distance
		LIMIT $3
	`, groupColumns)

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, query, vec, maxDistance, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar groups: %w", err)
	}
	defer rows.Close()

	var groups []database.StoredGroup
	var distances []float64

	for rows.Next() {
		var dist float64
		group, err := scanGroupRow(rows, &dist)
		if err != nil {
			return nil, nil, err
		}
		groups = append(groups, group)
		distances = append(distances, dist)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate groups: %w", err)
	}

	return groups, distances, nil
}

// isHNSWEnabled checks whether the HNSW index is active.
func (r *GroupRepository) isHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// refreshHNSWGroup re-reads a group from the database and updates its index entry.
func (r *GroupRepository) refreshHNSWGroup(ctx context.Context, groupID string) {
	if !r.isHNSWEnabled() {
		return
	}

	group, err := r.Get(ctx, groupID)
	if err != nil {
		return
	}

	r.hnswMu.Lock()
	if group == nil {
		r.hnswIndex.Delete(groupID)
	} else if !r.hnswIndex.UpdateGroup(group) && len(group.Embedding) > 0 {
		_ = r.hnswIndex.Add(group)
	}
	r.hnswMu.Unlock()

	r.noteIndexWrite()
}

// noteIndexWrite counts index mutations and persists the index every
// IndexSaveInterval writes, so a crash during a long ingest run loses at
// most one interval of work. Callers must not hold hnswMu.
func (r *GroupRepository) noteIndexWrite() {
	r.hnswMu.Lock()
	r.indexDirty++
	due := r.hnswIndexPath != "" && r.indexDirty >= constants.IndexSaveInterval
	if due {
		r.indexDirty = 0
	}
	r.hnswMu.Unlock()

	if due {
		if err := r.SaveHNSWIndex(); err != nil {
			fmt.Printf("Warning: periodic index save failed: %v\n", err)
		}
	}
}

// tryLoadGroupIndex attempts to load the group HNSW index from disk.
// Returns true if the index was loaded successfully and is not stale.
func (r *GroupRepository) tryLoadGroupIndex(indexPath string, dbGroupCount int64) bool {
	metadata, metaErr := database.LoadHNSWMetadata(indexPath)
	if metaErr != nil {
		fmt.Printf("Group index: metadata file error: %v (will rebuild)\n", metaErr)
		return false
	}
	if metadata.GroupCount != dbGroupCount {
		fmt.Printf("Group index: stale (db: count=%d, cached: count=%d) (will rebuild)\n",
			dbGroupCount, metadata.GroupCount)
		return false
	}

	r.hnswIndex = database.NewHNSWIndex()
	if err := r.hnswIndex.LoadWithGroupMetadata(indexPath); err != nil {
		fmt.Printf("Group index: failed to load: %v (will rebuild)\n", err)
		return false
	}
	if r.hnswIndex.IsEmpty() {
		fmt.Printf("Group index: loaded graph is empty (will rebuild)\n")
		return false
	}
	fmt.Printf("Group index: loaded from disk\n")
	return true
}

// EnableHNSW loads or builds an in-memory HNSW index for O(log N) candidate search.
// If indexPath is provided, it will try to load from disk first and save after building.
// This should be called once at startup.
func (r *GroupRepository) EnableHNSW(ctx context.Context, indexPath string) error {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()

	r.hnswIndexPath = indexPath

	var dbGroupCount int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM person_groups WHERE embedding IS NOT NULL").Scan(&dbGroupCount)
	if err != nil {
		return fmt.Errorf("failed to get group count: %w", err)
	}

	if indexPath != "" && r.tryLoadGroupIndex(indexPath, dbGroupCount) {
		r.hnswEnabled = true
		return nil
	}

	groups, err := r.GetAllGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}

	r.hnswIndex = database.NewHNSWIndex()
	if err := r.hnswIndex.BuildFromGroups(groups); err != nil {
		return fmt.Errorf("failed to build HNSW index: %w", err)
	}

	if indexPath != "" && dbGroupCount > 0 {
		metadata := database.HNSWIndexMetadata{GroupCount: dbGroupCount}
		if err := r.hnswIndex.SaveWithGroupMetadata(indexPath, metadata); err != nil {
			fmt.Printf("Warning: failed to save HNSW index to disk: %v\n", err)
		}
	}

	r.hnswEnabled = true
	return nil
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries.
func (r *GroupRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *GroupRepository) IsHNSWEnabled() bool {
	return r.isHNSWEnabled()
}

// HNSWCount returns the number of groups in the HNSW index.
func (r *GroupRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// RebuildHNSW rebuilds the HNSW index from PostgreSQL data.
func (r *GroupRepository) RebuildHNSW(ctx context.Context) error {
	r.hnswMu.RLock()
	indexPath := r.hnswIndexPath
	r.hnswMu.RUnlock()
	return r.EnableHNSW(ctx, indexPath)
}

// SaveHNSWIndex saves the current HNSW index to disk (if path configured).
func (r *GroupRepository) SaveHNSWIndex() error {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()

	if r.hnswIndexPath == "" {
		return nil // No path configured, nothing to save
	}
	if r.hnswIndex == nil {
		return nil // No index to save
	}

	var groupCount int64
	err := r.pool.QueryRow(
		context.Background(), "SELECT COUNT(*) FROM person_groups WHERE embedding IS NOT NULL",
	).Scan(&groupCount)
	if err != nil {
		return fmt.Errorf("failed to get group count: %w", err)
	}

	metadata := database.HNSWIndexMetadata{GroupCount: groupCount}
	if err := r.hnswIndex.SaveWithGroupMetadata(r.hnswIndexPath, metadata); err != nil {
		return fmt.Errorf("saving HNSW group index: %w", err)
	}

	return nil
}

// Verify interface compliance.
var _ database.GroupReader = (*GroupRepository)(nil)
var _ database.GroupWriter = (*GroupRepository)(nil)
var _ database.HNSWRebuilder = (*GroupRepository)(nil)
