package profile

import "context"

// Reader abstracts repository operations for the service.
type Reader interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	ListByRole(ctx context.Context, role string, limit int) ([]Profile, error)
}

// Service exposes business-level profile operations.
type Service struct {
	repo Reader
}

// NewService builds a Service using the provided repository.
func NewService(repo Reader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the profile for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// ListFarmers returns up to limit farmer profiles.
func (s *Service) ListFarmers(ctx context.Context, limit int) ([]Profile, error) {
	return s.repo.ListByRole(ctx, "farmer", limit)
}
