package service

import (
	"context"

	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/domain/entity"
	"github.com/garyjia/travel-approval/internal/domain/workflow"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// RequestQueryService serves read-only views of requests
type RequestQueryService interface {
	Get(ctx context.Context, id int64) (*entity.Request, error)
	ListByStatus(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Request, error)
	History(ctx context.Context, id int64) ([]*entity.ApprovalHistory, error)
}

type requestQueryServiceImpl struct {
	requestRepo port.RequestRepository
	historyRepo port.HistoryRepository
	logger      Logger
}

// NewRequestQueryService creates a new RequestQueryService
func NewRequestQueryService(requestRepo port.RequestRepository, historyRepo port.HistoryRepository, logger Logger) RequestQueryService {
	return &requestQueryServiceImpl{
		requestRepo: requestRepo,
		historyRepo: historyRepo,
		logger:      logger,
	}
}

// Get retrieves a request by ID
func (s *requestQueryServiceImpl) Get(ctx context.Context, id int64) (*entity.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get request", "error", err, "id", id)
		return nil, newError(CodePersistence, err, "get request %d", id)
	}
	if req == nil {
		return nil, newError(CodeNotFound, nil, "request %d not found", id)
	}
	return req, nil
}

// ListByStatus lists requests in a status, oldest first, for approver inboxes
func (s *requestQueryServiceImpl) ListByStatus(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Request, error) {
	if !status.IsValid() {
		return nil, newError(CodeInvalidInput, nil, "unknown status %q", status)
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.requestRepo.ListByStatus(ctx, status, clampLimit(limit), offset)
	if err != nil {
		s.logger.Error("Failed to list requests", "error", err, "status", status)
		return nil, newError(CodePersistence, err, "list requests in %s", status)
	}
	return items, nil
}

// History returns the decision trail of a request
func (s *requestQueryServiceImpl) History(ctx context.Context, id int64) ([]*entity.ApprovalHistory, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	items, err := s.historyRepo.GetByRequestID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get history", "error", err, "id", id)
		return nil, newError(CodePersistence, err, "get history of request %d", id)
	}
	return items, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
