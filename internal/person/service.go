// Package person implements the use cases of the person service: listing, reading, creating,
// updating and deleting persons, and assigning their personal ids.
package person

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/dirk.krummacker/person-service/internal/clock"
	"gitlab.com/dirk.krummacker/person-service/internal/model"
	"gitlab.com/dirk.krummacker/person-service/internal/personalid"
	"gitlab.com/dirk.krummacker/person-service/internal/store"
)

var (
	// ErrNotFound is returned when the requested person does not exist.
	ErrNotFound = errors.New("person not found")

	// ErrInvalidArgument is returned when the client supplied inconsistent identifiers.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict is returned when the store rejected a new person on every attempt.
	ErrConflict = errors.New("person could not be stored")

	// ErrConcurrency is returned when a person changed while it was being written and still
	// exists afterwards.
	ErrConcurrency = errors.New("person was modified concurrently")
)

// Store is the persistence the service needs. store.Store implements it.
type Store interface {
	GetAll(ctx context.Context) ([]model.Person, error)
	GetById(ctx context.Context, id int64) (model.Person, error)
	GetByPersonalId(ctx context.Context, personalId string) (model.Person, error)
	ExistsByPersonalId(ctx context.Context, personalId string) (bool, error)
	Insert(ctx context.Context, p model.Person) (model.Person, error)
	Update(ctx context.Context, p model.Person) (model.Person, error)
	Delete(ctx context.Context, p model.Person) error
}

// Recorder counts the outcomes of the use cases. metrics.Metrics implements it.
type Recorder interface {
	IncrementPersonsCreated()
	IncrementPersonsUpdated()
	IncrementPersonsDeleted()
	IncrementPersonalIdConflicts()
}

type noopRecorder struct{}

func (noopRecorder) IncrementPersonsCreated()      {}
func (noopRecorder) IncrementPersonsUpdated()      {}
func (noopRecorder) IncrementPersonsDeleted()      {}
func (noopRecorder) IncrementPersonalIdConflicts() {}

// Service implements the person use cases on top of a Store.
type Service struct {
	store    Store
	ids      *personalid.Generator
	clock    clock.Clock
	recorder Recorder
	logger   logrus.FieldLogger
	attempts int
}

// Option configures a Service.
type Option func(*Service)

// WithAttempts sets how often Create generates a new personal id after the store rejected
// the previous one. The default of 1 never retries.
func WithAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithRecorder reports use case outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger; the default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService returns a service storing persons in st, drawing personal ids from ids and
// taking the current time from clk.
func NewService(st Store, ids *personalid.Generator, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		store:    st,
		ids:      ids,
		clock:    clk,
		recorder: noopRecorder{},
		logger:   logrus.StandardLogger(),
		attempts: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all persons.
func (s *Service) List(ctx context.Context) ([]model.Person, error) {
	persons, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, translate(err)
	}
	for i := range persons {
		persons[i] = persons[i].In(s.clock.Location())
	}
	return persons, nil
}

// Get returns the person with the internal id or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (model.Person, error) {
	p, err := s.store.GetById(ctx, id)
	if err != nil {
		return model.Person{}, translate(err)
	}
	return p.In(s.clock.Location()), nil
}

// GetByPersonalId returns the person with the personal id or ErrNotFound.
func (s *Service) GetByPersonalId(ctx context.Context, personalId string) (model.Person, error) {
	p, err := s.store.GetByPersonalId(ctx, personalId)
	if err != nil {
		return model.Person{}, translate(err)
	}
	return p.In(s.clock.Location()), nil
}

// Create stores a new person built from the names and gender of draft. Id, personal id and
// timestamps of draft are ignored and assigned here.
func (s *Service) Create(ctx context.Context, draft model.Person) (model.Person, error) {
	now := s.clock.Now()
	gender := model.ParseGender(draft.Gender)
	p := model.Person{
		FirstName: draft.FirstName,
		LastName:  draft.LastName,
		Gender:    draft.Gender,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for attempt := 1; ; attempt++ {
		p.PersonalId = s.ids.Generate(gender, now)
		stored, err := s.store.Insert(ctx, p)
		if err == nil {
			s.recorder.IncrementPersonsCreated()
			return stored.In(s.clock.Location()), nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Person{}, translate(err)
		}
		s.recorder.IncrementPersonalIdConflicts()
		if attempt >= s.attempts {
			return model.Person{}, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		s.logger.WithFields(logrus.Fields{
			"personal_id": p.PersonalId,
			"attempt":     attempt,
		}).Warn("personal id rejected by store, generating another one")
	}
}

// Update replaces first and last name of the person with the personal id. The personal id in
// patch must equal personalId since personal ids never change.
func (s *Service) Update(ctx context.Context, personalId string, patch model.Person) error {
	if patch.PersonalId != personalId {
		return fmt.Errorf("%w: personalId cannot be changed", ErrInvalidArgument)
	}
	existing, err := s.store.GetByPersonalId(ctx, personalId)
	if err != nil {
		return translate(err)
	}

	now := s.clock.Now()
	if now.Before(existing.CreatedAt) {
		now = existing.CreatedAt
	}
	existing.FirstName = patch.FirstName
	existing.LastName = patch.LastName
	existing.UpdatedAt = now

	if _, err := s.store.Update(ctx, existing); err != nil {
		if errors.Is(err, store.ErrConcurrency) {
			return s.recheck(ctx, personalId, err)
		}
		return translate(err)
	}
	s.recorder.IncrementPersonsUpdated()
	return nil
}

// Delete removes the person with the personal id.
func (s *Service) Delete(ctx context.Context, personalId string) error {
	existing, err := s.store.GetByPersonalId(ctx, personalId)
	if err != nil {
		return translate(err)
	}
	if err := s.store.Delete(ctx, existing); err != nil {
		if errors.Is(err, store.ErrConcurrency) {
			return s.recheck(ctx, personalId, err)
		}
		return translate(err)
	}
	s.recorder.IncrementPersonsDeleted()
	return nil
}

// recheck decides the outcome of a write that lost a race: ErrNotFound if the person is gone
// by now, ErrConcurrency otherwise. There is no retry.
func (s *Service) recheck(ctx context.Context, personalId string, cause error) error {
	exists, err := s.store.ExistsByPersonalId(ctx, personalId)
	if err != nil {
		return fmt.Errorf("recheck person %s: %w", personalId, translate(err))
	}
	if !exists {
		return fmt.Errorf("%w: %w", ErrNotFound, cause)
	}
	return fmt.Errorf("%w: %w", ErrConcurrency, cause)
}

// translate maps store errors onto the errors of this package.
func translate(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, store.ErrConcurrency):
		return fmt.Errorf("%w: %w", ErrConcurrency, err)
	}
	return err
}
