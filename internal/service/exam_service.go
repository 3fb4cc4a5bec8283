package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/liftlabs/liftapp-backend/internal/catalog"
)

// ErrUnknownExam is returned for codes missing from the catalog or the
// remote exam table.
var ErrUnknownExam = errors.New("unknown exam code")

// ExamCodeResolver resolves catalog codes against the exam table.
type ExamCodeResolver interface {
	GetIDByCode(ctx context.Context, code string) (int, error)
}

// ExamService pairs the static catalog with lazily resolved database keys.
// A code's numeric key is fetched once and cached for the process
// lifetime; the catalog itself never changes at runtime.
type ExamService struct {
	resolver ExamCodeResolver

	mu  sync.Mutex
	ids map[string]int
}

// NewExamService creates a new ExamService.
func NewExamService(resolver ExamCodeResolver) *ExamService {
	return &ExamService{
		resolver: resolver,
		ids:      make(map[string]int),
	}
}

// Catalog returns the full exam catalog in display order.
func (s *ExamService) Catalog() []catalog.Exam {
	return catalog.All()
}

// ByCode looks up a catalog entry.
func (s *ExamService) ByCode(code string) (catalog.Exam, error) {
	e, err := catalog.ByCode(code)
	if err != nil {
		return catalog.Exam{}, fmt.Errorf("%w: %s", ErrUnknownExam, code)
	}
	return e, nil
}

// ResolveID returns the database key for a catalog code, resolving and
// caching it on first use.
func (s *ExamService) ResolveID(ctx context.Context, code string) (int, error) {
	if _, err := catalog.ByCode(code); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownExam, code)
	}

	s.mu.Lock()
	if id, ok := s.ids[code]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	id, err := s.resolver.GetIDByCode(ctx, code)
	if err != nil {
		return 0, fmt.Errorf("resolve exam %q: %w", code, err)
	}

	s.mu.Lock()
	s.ids[code] = id
	s.mu.Unlock()

	return id, nil
}
