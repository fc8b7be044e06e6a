package ruleset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rulegov/internal/approval"
)

// VersionStore adapts rule set versions to the approval workflow.
type VersionStore struct {
	repo Repository
}

func NewVersionStore(repo Repository) *VersionStore {
	return &VersionStore{repo: repo}
}

func (s *VersionStore) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*approval.EntityState, error) {
	version, err := s.repo.GetVersionForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, nil
	}

	snapshot, err := json.Marshal(version)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot rule set version: %w", err)
	}
	return &approval.EntityState{ID: version.ID, Status: version.Status, Snapshot: snapshot}, nil
}

func (s *VersionStore) SetStatus(ctx context.Context, tx *sql.Tx, id string, status approval.LifecycleStatus, actor string, at time.Time) error {
	return s.repo.SetVersionStatus(ctx, tx, id, status, actor, at)
}
