package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"muniapi/pkg/domain"
	"muniapi/pkg/platform/sentinel"
)

// PostgresStore persists identifier mappings in the identifiers table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Find(ctx context.Context, ext domain.ExternalID) (domain.CanonicalID, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT canonical_id FROM identifiers
		WHERE entity_type = $1 AND source = $2 AND source_id = $3
	`, string(ext.Type), ext.Source, ext.LocalID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find identifier: %w", err)
	}
	return domain.ParseCanonicalID(raw)
}

// CreateIfAbsent relies on the primary key to pick a single winner. The
// loser's follow-up SELECT runs in a fresh statement so it sees the winner's
// committed row under READ COMMITTED.
func (s *PostgresStore) CreateIfAbsent(ctx context.Context, ext domain.ExternalID, candidate domain.CanonicalID) (domain.CanonicalID, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO identifiers (entity_type, source, source_id, canonical_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (entity_type, source, source_id) DO NOTHING
	`, string(ext.Type), ext.Source, ext.LocalID, candidate.String())
	if err != nil {
		return "", false, fmt.Errorf("insert identifier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("insert identifier rows: %w", err)
	}
	if n == 1 {
		return candidate, true, nil
	}
	id, err := s.Find(ctx, ext)
	if err != nil {
		return "", false, err
	}
	return id, false, nil
}

func (s *PostgresStore) FindExternal(ctx context.Context, id domain.CanonicalID) (domain.ExternalID, error) {
	var t, source, localID string
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_type, source, source_id FROM identifiers WHERE canonical_id = $1
	`, id.String()).Scan(&t, &source, &localID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExternalID{}, sentinel.ErrNotFound
	}
	if err != nil {
		return domain.ExternalID{}, fmt.Errorf("find external id: %w", err)
	}
	return domain.NewExternalID(domain.EntityType(t), source, localID)
}

// FindExternalMany batches the reverse lookup into one round trip.
func (s *PostgresStore) FindExternalMany(ctx context.Context, ids []domain.CanonicalID) (map[domain.CanonicalID]domain.ExternalID, error) {
	out := make(map[domain.CanonicalID]domain.ExternalID, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT canonical_id, entity_type, source, source_id
		FROM identifiers
		WHERE canonical_id = ANY($1::uuid[])
	`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find external ids batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, t, source, localID string
		if err := rows.Scan(&cid, &t, &source, &localID); err != nil {
			return nil, fmt.Errorf("scan external id: %w", err)
		}
		ext, err := domain.NewExternalID(domain.EntityType(t), source, localID)
		if err != nil {
			return nil, err
		}
		parsed, err := domain.ParseCanonicalID(cid)
		if err != nil {
			return nil, err
		}
		out[parsed] = ext
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate external ids: %w", err)
	}
	return out, nil
}
