// Package mariadb reads the legacy MariaDB sighting archive that predates
// the PostgreSQL store. It is only used by the import command.
package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LegacySighting is one row of the legacy archive. The description is kept as
// raw JSON; the importer parses and validates it.
type LegacySighting struct {
	ID          int64
	Description []byte
	ImagePath   string
	CapturedAt  time.Time
}

// CountSightings returns the total number of rows in the legacy archive.
func (p *Pool) CountSightings(ctx context.Context) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM legacy_sightings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count legacy sightings: %w", err)
	}
	return count, nil
}

// FetchSightings returns a page of legacy sightings ordered by ID, so an
// interrupted import can resume at a known offset.
func (p *Pool) FetchSightings(ctx context.Context, offset, limit int) ([]LegacySighting, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, description_json, image_path, captured_at
		FROM legacy_sightings
		ORDER BY id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query legacy sightings: %w", err)
	}
	defer rows.Close()

	var sightings []LegacySighting
	for rows.Next() {
		var s LegacySighting
		var imagePath sql.NullString
		var capturedAt sql.NullTime

		if err := rows.Scan(&s.ID, &s.Description, &imagePath, &capturedAt); err != nil {
			return nil, fmt.Errorf("scan legacy sighting: %w", err)
		}
		if imagePath.Valid {
			s.ImagePath = imagePath.String
		}
		if capturedAt.Valid {
			s.CapturedAt = capturedAt.Time
		}
		sightings = append(sightings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy sightings: %w", err)
	}

	return sightings, nil
}
