package audit

import (
	"context"

	pkgerrors "rulegov/pkg/errors"
	"rulegov/pkg/pagination"
)

type Service interface {
	ListAuditLogs(ctx context.Context, filter Filter, p pagination.Params) (pagination.Page[Entry], error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) ListAuditLogs(ctx context.Context, filter Filter, p pagination.Params) (pagination.Page[Entry], error) {
	entries, err := s.repo.ListEntries(ctx, filter, p)
	if err != nil {
		return pagination.Page[Entry]{}, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return pagination.BuildPage(entries, p, func(e Entry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.PerformedAt, ID: e.ID}
	}), nil
}
