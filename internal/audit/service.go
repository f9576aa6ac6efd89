package audit

import (
	"context"
	"fmt"
	"strings"
)

// TimelineRepository menyediakan akses baca audit_logs.
type TimelineRepository interface {
	Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
	All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo TimelineRepository
}

// NewService membuat service audit timeline baru.
func NewService(repo TimelineRepository) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil data audit dengan paging.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.Window(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// History mengembalikan riwayat lengkap satu entitas, urut kronologis.
// Untuk dokumen, riwayat ini memperlihatkan setiap perpindahan custody.
func (s *Service) History(ctx context.Context, entity, entityID string) ([]TimelineRow, error) {
	entity, entityID = strings.TrimSpace(entity), strings.TrimSpace(entityID)
	if entity == "" || entityID == "" {
		return nil, fmt.Errorf("audit: entity and entity id required")
	}
	return s.Export(ctx, TimelineFilters{Entity: entity, EntityID: entityID})
}

// Export mengambil seluruh data timeline tanpa paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.All(ctx, filters)
}
