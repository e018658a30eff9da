package api

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"uttervault/internal/catalog"
	"uttervault/internal/utterance"
)

// DefaultPageSize matches the page size of the browsing view.
const DefaultPageSize = 25

// ErrInvalidPage is returned for page numbers below 1.
var ErrInvalidPage = errors.New("page must be a positive integer")

// CatalogService exposes paged utterance listings as API DTOs.
type CatalogService struct {
	repo     catalog.Repository
	pageSize int
}

// NewCatalogService constructs a CatalogService around repo.
func NewCatalogService(repo catalog.Repository, pageSize int) *CatalogService {
	if repo == nil {
		return nil
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &CatalogService{repo: repo, pageSize: pageSize}
}

// PageSize returns the number of rows per page.
func (s *CatalogService) PageSize() int {
	if s == nil {
		return DefaultPageSize
	}
	return s.pageSize
}

// List returns the 1-based page of rows matching language.
func (s *CatalogService) List(ctx context.Context, page int, language string) (UtteranceListResponse, error) {
	if page < 1 {
		return UtteranceListResponse{}, ErrInvalidPage
	}
	filter := catalog.Filter{Language: language}.Normalized()
	resp := UtteranceListResponse{
		Items:      []Utterance{},
		Page:       page,
		PageSize:   s.PageSize(),
		TotalPages: 1,
		Language:   filter.Language,
	}
	if s == nil || s.repo == nil {
		return resp, nil
	}
	result, err := s.repo.Page(ctx, filter, (page-1)*s.pageSize, s.pageSize)
	if err != nil {
		return UtteranceListResponse{}, err
	}
	resp.Items = FromRecords(utterance.Normalize(result.Records))
	resp.Total = result.Total
	resp.TotalPages = TotalPages(result.Total, s.pageSize)
	return resp, nil
}

// TotalPages returns max(1, ceil(total/pageSize)).
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

// ParsePage parses a 1-based page query value; blank means the first page.
func ParsePage(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(value)
	if err != nil || page < 1 {
		return 0, ErrInvalidPage
	}
	return page, nil
}
