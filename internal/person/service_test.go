package person

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/dirk.krummacker/person-service/internal/clock"
	"gitlab.com/dirk.krummacker/person-service/internal/model"
	"gitlab.com/dirk.krummacker/person-service/internal/personalid"
	"gitlab.com/dirk.krummacker/person-service/internal/store"
)

// mockStore is a testify mock of the Store interface.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetAll(ctx context.Context) ([]model.Person, error) {
	args := m.Called(ctx)
	persons, _ := args.Get(0).([]model.Person)
	return persons, args.Error(1)
}

func (m *mockStore) GetById(ctx context.Context, id int64) (model.Person, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.Person), args.Error(1)
}

func (m *mockStore) GetByPersonalId(ctx context.Context, personalId string) (model.Person, error) {
	args := m.Called(ctx, personalId)
	return args.Get(0).(model.Person), args.Error(1)
}

func (m *mockStore) ExistsByPersonalId(ctx context.Context, personalId string) (bool, error) {
	args := m.Called(ctx, personalId)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Insert(ctx context.Context, p model.Person) (model.Person, error) {
	args := m.Called(ctx, p)
	if fn, ok := args.Get(0).(func(context.Context, model.Person) model.Person); ok {
		return fn(ctx, p), args.Error(1)
	}
	return args.Get(0).(model.Person), args.Error(1)
}

func (m *mockStore) Update(ctx context.Context, p model.Person) (model.Person, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(model.Person), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, p model.Person) error {
	return m.Called(ctx, p).Error(0)
}

// countingRecorder records how often each outcome was reported.
type countingRecorder struct {
	created, updated, deleted, conflicts int
}

func (r *countingRecorder) IncrementPersonsCreated()      { r.created++ }
func (r *countingRecorder) IncrementPersonsUpdated()      { r.updated++ }
func (r *countingRecorder) IncrementPersonsDeleted()      { r.deleted++ }
func (r *countingRecorder) IncrementPersonalIdConflicts() { r.conflicts++ }

var (
	ctx = context.Background()
	// mayDay is 2024-05-01 08:00 at the legacy offset.
	mayDay   = time.Date(2024, time.May, 1, 6, 0, 0, 0, time.UTC)
	zone     = time.FixedZone("UTC+2", 7200)
	femaleId = regexp.MustCompile(`^010524(?:[0-9][02468]){2}$`)
	maleId   = regexp.MustCompile(`^010524(?:[0-9][13579]){2}$`)
)

func newTestService(st Store, opts ...Option) (*Service, *countingRecorder) {
	rec := &countingRecorder{}
	opts = append([]Option{WithRecorder(rec)}, opts...)
	svc := NewService(st, personalid.NewGenerator(personalid.NewSource(7, 11)),
		clock.Frozen(mayDay, clock.LegacyFixedOffset), opts...)
	return svc, rec
}

func storedPerson() model.Person {
	t := mayDay.Add(-24 * time.Hour)
	return model.Person{
		Id: 12, PersonalId: "0105241234", FirstName: "Anna", LastName: "Hansen",
		Gender: "female", CreatedAt: t, UpdatedAt: t, Version: 1,
	}
}

// TestCreateFemale covers the Anna Hansen scenario: a female person created on 2024-05-01.
func TestCreateFemale(t *testing.T) {
	st := &mockStore{}
	svc, rec := newTestService(st)

	var inserted model.Person
	st.On("Insert", ctx, mock.AnythingOfType("model.Person")).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(model.Person) }).
		Return(func(_ context.Context, p model.Person) model.Person { p.Id = 1; p.Version = 1; return p }, nil).
		Once()

	p, err := svc.Create(ctx, model.Person{FirstName: "Anna", LastName: "Hansen", Gender: "female"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.Id)
	assert.Regexp(t, femaleId, p.PersonalId)
	assert.Equal(t, inserted.PersonalId, p.PersonalId)
	assert.Equal(t, "Anna", p.FirstName)
	assert.Equal(t, "Hansen", p.LastName)
	assert.Equal(t, "female", p.Gender)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
	assert.Equal(t, "2024-05-01T08:00:00+02:00", p.CreatedAt.Format(time.RFC3339))
	assert.Equal(t, 1, rec.created)
	st.AssertExpectations(t)
}

func TestCreateMale(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("Insert", ctx, mock.AnythingOfType("model.Person")).
		Return(func(_ context.Context, p model.Person) model.Person { return p }, nil)

	for i := 0; i < 50; i++ {
		p, err := svc.Create(ctx, model.Person{FirstName: "Bo", Gender: "MALE"})
		require.NoError(t, err)
		assert.Regexp(t, maleId, p.PersonalId)
	}
}

// TestCreateIgnoresClientFields verifies that id, personal id and timestamps of the draft are
// never passed to the store.
func TestCreateIgnoresClientFields(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("Insert", ctx, mock.MatchedBy(func(p model.Person) bool {
		return p.Id == 0 && p.PersonalId != "9999999999" && p.Version == 0 &&
			p.CreatedAt.Equal(mayDay) && p.UpdatedAt.Equal(mayDay)
	})).Return(func(_ context.Context, p model.Person) model.Person { return p }, nil).Once()

	_, err := svc.Create(ctx, model.Person{
		Id: 77, PersonalId: "9999999999", Gender: "other",
		CreatedAt: time.Unix(0, 0), UpdatedAt: time.Unix(0, 0), Version: 9,
	})
	require.NoError(t, err)
	st.AssertExpectations(t)
}

func TestCreateConflictNotRetriedByDefault(t *testing.T) {
	st := &mockStore{}
	svc, rec := newTestService(st)
	st.On("Insert", ctx, mock.Anything).
		Return(model.Person{}, fmt.Errorf("insert: %w", store.ErrConflict)).Once()

	_, err := svc.Create(ctx, model.Person{Gender: "female"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, rec.conflicts)
	assert.Equal(t, 0, rec.created)
	st.AssertNumberOfCalls(t, "Insert", 1)
}

func TestCreateConflictRetried(t *testing.T) {
	st := &mockStore{}
	svc, rec := newTestService(st, WithAttempts(3))
	var ids []string
	st.On("Insert", ctx, mock.Anything).
		Run(func(args mock.Arguments) { ids = append(ids, args.Get(1).(model.Person).PersonalId) }).
		Return(model.Person{}, store.ErrConflict).Twice()
	st.On("Insert", ctx, mock.Anything).
		Return(func(_ context.Context, p model.Person) model.Person { p.Id = 3; return p }, nil).Once()

	p, err := svc.Create(ctx, model.Person{Gender: "male"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Id)
	assert.Equal(t, 2, rec.conflicts)
	assert.Equal(t, 1, rec.created)
	assert.Len(t, ids, 2)
	st.AssertExpectations(t)
}

func TestCreateStoreFailure(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st, WithAttempts(3))
	boom := errors.New("connection refused")
	st.On("Insert", ctx, mock.Anything).Return(model.Person{}, boom).Once()

	_, err := svc.Create(ctx, model.Person{})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrConflict)
	st.AssertNumberOfCalls(t, "Insert", 1)
}

func TestListLocalizesTimestamps(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("GetAll", ctx).Return([]model.Person{storedPerson(), storedPerson()}, nil)

	persons, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, persons, 2)
	_, offset := persons[0].CreatedAt.Zone()
	assert.Equal(t, 7200, offset)
}

func TestGet(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("GetById", ctx, int64(12)).Return(storedPerson(), nil)
	st.On("GetById", ctx, int64(13)).Return(model.Person{}, fmt.Errorf("select: %w", store.ErrNotFound))

	p, err := svc.Get(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, "0105241234", p.PersonalId)

	_, err = svc.Get(ctx, 13)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByPersonalId(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("GetByPersonalId", ctx, "0105241234").Return(storedPerson(), nil)
	st.On("GetByPersonalId", ctx, "0000000000").Return(model.Person{}, store.ErrNotFound)

	p, err := svc.GetByPersonalId(ctx, "0105241234")
	require.NoError(t, err)
	assert.Equal(t, int64(12), p.Id)

	_, err = svc.GetByPersonalId(ctx, "0000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	st := &mockStore{}
	svc, rec := newTestService(st)
	existing := storedPerson()
	st.On("GetByPersonalId", ctx, "0105241234").Return(existing, nil)
	st.On("Update", ctx, mock.MatchedBy(func(p model.Person) bool {
		return p.Id == 12 && p.PersonalId == "0105241234" && p.FirstName == "Anne" &&
			p.LastName == "Berg" && p.Gender == "female" && p.Version == 1 &&
			p.CreatedAt.Equal(existing.CreatedAt) && p.UpdatedAt.Equal(mayDay)
	})).Return(model.Person{}, nil).Once()

	err := svc.Update(ctx, "0105241234", model.Person{
		PersonalId: "0105241234", FirstName: "Anne", LastName: "Berg", Gender: "male",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.updated)
	st.AssertExpectations(t)
}

// TestUpdatePersonalIdMismatch covers the scenario of a patch carrying another personal id: no
// store access at all.
func TestUpdatePersonalIdMismatch(t *testing.T) {
	st := &mockStore{}
	svc, rec := newTestService(st)

	err := svc.Update(ctx, "0105241234", model.Person{PersonalId: "9999999999", FirstName: "X"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorContains(t, err, "personalId cannot be changed")
	assert.Equal(t, 0, rec.updated)
	st.AssertNotCalled(t, "GetByPersonalId", mock.Anything, mock.Anything)
	st.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateNotFound(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("GetByPersonalId", ctx, "0105241234").Return(model.Person{}, store.ErrNotFound)

	err := svc.Update(ctx, "0105241234", model.Person{PersonalId: "0105241234"})
	assert.ErrorIs(t, err, ErrNotFound)
	st.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestUpdateConcurrentDelete(t *testing.T) {
	st := &mockStore{}
	svc, rec := newTestService(st)
	st.On("GetByPersonalId", ctx, "0105241234").Return(storedPerson(), nil)
	st.On("Update", ctx, mock.Anything).Return(model.Person{}, store.ErrConcurrency).Once()
	st.On("ExistsByPersonalId", ctx, "0105241234").Return(false, nil).Once()

	err := svc.Update(ctx, "0105241234", model.Person{PersonalId: "0105241234"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConcurrency)
	assert.Equal(t, 0, rec.updated)
	st.AssertExpectations(t)
}

func TestUpdateConcurrentModification(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("GetByPersonalId", ctx, "0105241234").Return(storedPerson(), nil)
	st.On("Update", ctx, mock.Anything).Return(model.Person{}, store.ErrConcurrency).Once()
	st.On("ExistsByPersonalId", ctx, "0105241234").Return(true, nil).Once()

	err := svc.Update(ctx, "0105241234", model.Person{PersonalId: "0105241234"})
	assert.ErrorIs(t, err, ErrConcurrency)
	assert.NotErrorIs(t, err, ErrNotFound)
	st.AssertNumberOfCalls(t, "Update", 1)
}

func TestUpdateRecheckFailure(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	boom := errors.New("connection reset")
	st.On("GetByPersonalId", ctx, "0105241234").Return(storedPerson(), nil)
	st.On("Update", ctx, mock.Anything).Return(model.Person{}, store.ErrConcurrency)
	st.On("ExistsByPersonalId", ctx, "0105241234").Return(false, boom)

	err := svc.Update(ctx, "0105241234", model.Person{PersonalId: "0105241234"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

// TestUpdateKeepsUpdatedAtAfterCreatedAt verifies that updatedAt never precedes createdAt,
// even when the clock is behind the stored creation time.
func TestUpdateKeepsUpdatedAtAfterCreatedAt(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	existing := storedPerson()
	existing.CreatedAt = mayDay.Add(time.Hour)
	st.On("GetByPersonalId", ctx, "0105241234").Return(existing, nil)
	st.On("Update", ctx, mock.MatchedBy(func(p model.Person) bool {
		return !p.UpdatedAt.Before(p.CreatedAt)
	})).Return(model.Person{}, nil).Once()

	require.NoError(t, svc.Update(ctx, "0105241234", model.Person{PersonalId: "0105241234"}))
	st.AssertExpectations(t)
}

func TestDelete(t *testing.T) {
	st := &mockStore{}
	svc, rec := newTestService(st)
	existing := storedPerson()
	st.On("GetByPersonalId", ctx, "0105241234").Return(existing, nil)
	st.On("Delete", ctx, existing).Return(nil).Once()

	require.NoError(t, svc.Delete(ctx, "0105241234"))
	assert.Equal(t, 1, rec.deleted)
	st.AssertExpectations(t)
}

// TestDeleteNotFound verifies that deleting an unknown personal id leaves the store untouched.
func TestDeleteNotFound(t *testing.T) {
	st := &mockStore{}
	svc, rec := newTestService(st)
	st.On("GetByPersonalId", ctx, "0105241234").Return(model.Person{}, store.ErrNotFound)

	err := svc.Delete(ctx, "0105241234")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, rec.deleted)
	st.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDeleteConcurrentDelete(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("GetByPersonalId", ctx, "0105241234").Return(storedPerson(), nil)
	st.On("Delete", ctx, mock.Anything).Return(store.ErrConcurrency)
	st.On("ExistsByPersonalId", ctx, "0105241234").Return(false, nil)

	assert.ErrorIs(t, svc.Delete(ctx, "0105241234"), ErrNotFound)
}

func TestDeleteConcurrentModification(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("GetByPersonalId", ctx, "0105241234").Return(storedPerson(), nil)
	st.On("Delete", ctx, mock.Anything).Return(store.ErrConcurrency)
	st.On("ExistsByPersonalId", ctx, "0105241234").Return(true, nil)

	assert.ErrorIs(t, svc.Delete(ctx, "0105241234"), ErrConcurrency)
}

func TestListStoreFailure(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	boom := errors.New("timeout")
	st.On("GetAll", ctx).Return(nil, boom)

	_, err := svc.List(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestZoneOfCreatedPerson(t *testing.T) {
	st := &mockStore{}
	svc, _ := newTestService(st)
	st.On("Insert", ctx, mock.Anything).
		Return(func(_ context.Context, p model.Person) model.Person { p.CreatedAt = p.CreatedAt.UTC(); return p }, nil)

	p, err := svc.Create(ctx, model.Person{})
	require.NoError(t, err)
	assert.Equal(t, zone.String(), p.CreatedAt.Location().String())
}
