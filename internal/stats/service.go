package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/KaramelBytes/nutrilens-cli/internal/record"
	"github.com/KaramelBytes/nutrilens-cli/internal/session"
)

// ErrNoSession is returned by ForSession when the context carries no patient.
var ErrNoSession = errors.New("no patient in session")

// Service answers statistics questions against a record store. Nothing is
// cached; every call reads a fresh snapshot.
type Service struct {
	store record.Reader
}

func NewService(store record.Reader) *Service {
	return &Service{store: store}
}

// ForRecord ranks the record with the given id against the whole population.
func (s *Service) ForRecord(ctx context.Context, id string) (ScoreStatistics, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return ScoreStatistics{}, err
	}
	all, err := s.store.All(ctx)
	if err != nil {
		return ScoreStatistics{}, fmt.Errorf("load population: %w", err)
	}
	return Compute(all, r.HEITotal)
}

// ForSession ranks the patient carried by ctx.
func (s *Service) ForSession(ctx context.Context) (ScoreStatistics, error) {
	sess, ok := session.FromContext(ctx)
	if !ok || sess.PatientID == "" {
		return ScoreStatistics{}, ErrNoSession
	}
	return s.ForRecord(ctx, sess.PatientID)
}

// AverageBy is the mean HEI total of a subpopulation, 0 when it is empty.
func (s *Service) AverageBy(ctx context.Context, pred record.Predicate) (float64, error) {
	return s.store.AverageScore(ctx, pred)
}
