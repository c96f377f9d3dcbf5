package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/permission"
)

// MockBackend implements Backend for testing
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Fetch(ctx context.Context, imageID string) ([]models.Annotation, error) {
	args := m.Called(ctx, imageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Annotation), args.Error(1)
}

func (m *MockBackend) Create(ctx context.Context, req models.CreateAnnotationRequest) (*models.Annotation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Annotation), args.Error(1)
}

func (m *MockBackend) Update(ctx context.Context, id string, req models.UpdateAnnotationRequest) (*models.Annotation, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Annotation), args.Error(1)
}

func (m *MockBackend) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var (
	author = &models.Actor{ID: "3", Role: models.RoleUser}
	other  = &models.Actor{ID: "4", Role: models.RoleUser}
	image  = models.Image{ID: "7", OwnerID: "3", IsPublic: true}
)

func seed() []models.Annotation {
	return []models.Annotation{
		{ID: "1", Type: models.AnnotationDot, X: 10, Y: 10, Label: "First", ImageID: "7", UserID: "3"},
		{ID: "2", Type: models.AnnotationArrow, X: 20, Y: 20, EndX: models.Float(30), EndY: models.Float(30), Label: "Second", ImageID: "7", UserID: "9"},
	}
}

type recorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *recorder) Notify(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func setupStore(t *testing.T, actor *models.Actor) (*Store, *MockBackend, *recorder) {
	t.Helper()

	backend := new(MockBackend)
	notes := &recorder{}
	logger, _ := zap.NewDevelopment()

	backend.On("Fetch", mock.Anything, "7").Return(seed(), nil).Once()

	s := New(backend, image, actor, WithLogger(logger), WithNotifier(notes))
	require.NoError(t, s.Load(context.Background()))
	return s, backend, notes
}

func ids(items []models.Annotation) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.ID
	}
	return out
}

func TestCreate_DotScenario(t *testing.T) {
	s, backend, _ := setupStore(t, author)

	req := models.CreateAnnotationRequest{Type: models.AnnotationDot, X: 52.3, Y: 10.1, Label: "Nest"}
	expected := models.CreateAnnotationRequest{Type: models.AnnotationDot, X: 52.3, Y: 10.1, Label: "Nest", ImageID: "7"}
	stored := &models.Annotation{
		ID: "101", Type: models.AnnotationDot, X: 52.3, Y: 10.1,
		Label: "Nest", ImageID: "7", UserID: "3", IsHidden: false,
	}
	backend.On("Create", mock.Anything, expected).Return(stored, nil)

	created, err := s.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "101", created.ID)
	assert.Nil(t, created.EndX)
	assert.Nil(t, created.EndY)

	list := s.List()
	assert.Len(t, list, 3)
	assert.Equal(t, []string{"1", "2", "101"}, ids(list))

	backend.AssertExpectations(t)
}

func TestCreate_ValidationFailsBeforeNetwork(t *testing.T) {
	s, backend, notes := setupStore(t, author)

	_, err := s.Create(context.Background(), models.CreateAnnotationRequest{Type: models.AnnotationArrow, X: 1, Y: 1, EndX: models.Float(2), Label: "half"})

	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Len(t, s.List(), 2)
	assert.Len(t, notes.errs, 1)
	backend.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_RejectsOtherImage(t *testing.T) {
	s, backend, _ := setupStore(t, author)

	_, err := s.Create(context.Background(), models.NewDot("8", geometry.Pt(1, 1), "Elsewhere"))

	assert.ErrorIs(t, err, models.ErrValidation)
	backend.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_AnonymousDenied(t *testing.T) {
	s, backend, _ := setupStore(t, nil)

	_, err := s.Create(context.Background(), models.NewDot("7", geometry.Pt(1, 1), "Nest"))

	assert.ErrorIs(t, err, models.ErrPermission)
	backend.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_TransportFailureLeavesListUnchanged(t *testing.T) {
	s, backend, notes := setupStore(t, author)

	backend.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := s.Create(context.Background(), models.NewDot("7", geometry.Pt(5, 5), "Nest"))

	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Equal(t, []string{"1", "2"}, ids(s.List()))
	assert.Len(t, notes.errs, 1)
}

func TestUpdate_ReplacesWithServerRecord(t *testing.T) {
	s, backend, _ := setupStore(t, author)

	req := models.UpdateAnnotationRequest{Label: models.String("Renamed")}
	stored := &models.Annotation{ID: "1", Type: models.AnnotationDot, X: 10, Y: 10, Label: "Renamed", Description: "server side", ImageID: "7", UserID: "3"}
	backend.On("Update", mock.Anything, "1", req).Return(stored, nil)

	updated, err := s.Update(context.Background(), "1", req)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Label)

	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "server side", got.Description, "local record must be the server's, not a merge")
	assert.Equal(t, []string{"1", "2"}, ids(s.List()))
}

func TestUpdate_FailureLeavesListUnchanged(t *testing.T) {
	s, backend, _ := setupStore(t, author)
	before := s.List()

	backend.On("Update", mock.Anything, "1", mock.Anything).Return(nil, errors.New("503"))

	_, err := s.Update(context.Background(), "1", models.UpdateAnnotationRequest{Label: models.String("x")})

	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Equal(t, before, s.List())
}

func TestUpdate_UnknownID(t *testing.T) {
	s, backend, _ := setupStore(t, author)

	_, err := s.Update(context.Background(), "nope", models.UpdateAnnotationRequest{Label: models.String("x")})

	assert.ErrorIs(t, err, models.ErrNotFound)
	backend.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdate_OtherAuthorDenied(t *testing.T) {
	s, backend, _ := setupStore(t, author)

	_, err := s.Update(context.Background(), "2", models.UpdateAnnotationRequest{Label: models.String("mine now")})

	assert.ErrorIs(t, err, models.ErrPermission)
	backend.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdate_RemoteNotFoundDropsStaleRecord(t *testing.T) {
	s, backend, _ := setupStore(t, author)
	s.Select("1")

	backend.On("Update", mock.Anything, "1", mock.Anything).Return(nil, models.ErrNotFound)

	_, err := s.Update(context.Background(), "1", models.UpdateAnnotationRequest{Label: models.String("x")})

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, []string{"2"}, ids(s.List()))
	_, selected := s.Selected()
	assert.False(t, selected)
}

func TestUpdate_OutOfRangeRejected(t *testing.T) {
	s, backend, _ := setupStore(t, &models.Actor{ID: "1", Role: models.RoleAdmin})

	_, err := s.Update(context.Background(), "2", models.UpdateAnnotationRequest{EndX: models.Float(150)})

	assert.ErrorIs(t, err, models.ErrValidation)
	backend.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestDelete_Success(t *testing.T) {
	s, backend, _ := setupStore(t, author)
	require.True(t, s.Select("1"))

	backend.On("Delete", mock.Anything, "1").Return(nil)

	require.NoError(t, s.Delete(context.Background(), "1"))

	assert.Equal(t, []string{"2"}, ids(s.List()))
	_, selected := s.Selected()
	assert.False(t, selected)
}

func TestDelete_PermissionDenied(t *testing.T) {
	s, backend, notes := setupStore(t, other)
	before := s.List()

	err := s.Delete(context.Background(), "1")

	assert.ErrorIs(t, err, models.ErrPermission)
	assert.False(t, permission.CanPerform(other, permission.DeleteAnnotation, permission.ForAnnotation(before[0])))
	assert.Equal(t, before, s.List())
	assert.Len(t, notes.errs, 1)
	backend.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDelete_FailureKeepsItem(t *testing.T) {
	s, backend, _ := setupStore(t, author)

	backend.On("Delete", mock.Anything, "1").Return(errors.New("timeout"))

	err := s.Delete(context.Background(), "1")

	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Equal(t, []string{"1", "2"}, ids(s.List()))
}

func TestDelete_RemoteNotFoundDropsStaleRecord(t *testing.T) {
	s, backend, _ := setupStore(t, author)
	require.True(t, s.Select("1"))

	backend.On("Delete", mock.Anything, "1").Return(models.ErrNotFound)

	err := s.Delete(context.Background(), "1")

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, []string{"2"}, ids(s.List()))
	_, selected := s.Selected()
	assert.False(t, selected)
}

func TestDelete_AdminMayDeleteAnyone(t *testing.T) {
	s, backend, _ := setupStore(t, &models.Actor{ID: "1", Role: models.RoleAdmin})

	backend.On("Delete", mock.Anything, "2").Return(nil)

	require.NoError(t, s.Delete(context.Background(), "2"))
	assert.Equal(t, []string{"1"}, ids(s.List()))
}

func TestToggleVisibility(t *testing.T) {
	s, backend, _ := setupStore(t, author)

	req := models.UpdateAnnotationRequest{IsHidden: models.Bool(true)}
	stored := &models.Annotation{ID: "1", Type: models.AnnotationDot, X: 10, Y: 10, Label: "First", ImageID: "7", UserID: "3", IsHidden: true}
	backend.On("Update", mock.Anything, "1", req).Return(stored, nil)

	require.NoError(t, s.ToggleVisibility(context.Background(), "1"))

	got, _ := s.Get("1")
	assert.True(t, got.IsHidden)
}

func TestToggleVisibility_UnknownIsNoop(t *testing.T) {
	s, backend, notes := setupStore(t, author)

	assert.NoError(t, s.ToggleVisibility(context.Background(), "gone"))

	assert.Empty(t, notes.errs)
	backend.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestList_ReturnsCopies(t *testing.T) {
	s, _, _ := setupStore(t, author)

	list := s.List()
	list[0].Label = "mutated"
	*list[1].EndX = 99

	got, _ := s.Get("1")
	assert.Equal(t, "First", got.Label)
	arrow, _ := s.Get("2")
	assert.Equal(t, 30.0, *arrow.EndX)
}

func TestLoad_FailureIsTransport(t *testing.T) {
	backend := new(MockBackend)
	backend.On("Fetch", mock.Anything, "7").Return(nil, errors.New("dial tcp: refused"))

	s := New(backend, image, author)
	err := s.Load(context.Background())

	assert.ErrorIs(t, err, models.ErrTransport)
	assert.Empty(t, s.List())
}

func TestSelect(t *testing.T) {
	s, _, _ := setupStore(t, author)

	assert.True(t, s.Select("2"))
	sel, ok := s.Selected()
	assert.True(t, ok)
	assert.Equal(t, "2", sel.ID)

	assert.False(t, s.Select("unknown"))
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestSetActor_ReevaluatesPermissions(t *testing.T) {
	s, _, _ := setupStore(t, nil)
	first := s.List()[0]

	assert.False(t, s.Can(permission.UpdateAnnotation, first))
	s.SetActor(author)
	assert.True(t, s.Can(permission.UpdateAnnotation, first))
}

// orderedBackend lets a test control when each update response arrives.
type orderedBackend struct {
	MockBackend
	release map[string]chan struct{}
}

func (b *orderedBackend) Update(ctx context.Context, id string, req models.UpdateAnnotationRequest) (*models.Annotation, error) {
	<-b.release[*req.Label]
	return &models.Annotation{ID: id, Type: models.AnnotationDot, Label: *req.Label, ImageID: "7", UserID: "3"}, nil
}

func TestUpdate_LastResponseWins(t *testing.T) {
	backend := &orderedBackend{release: map[string]chan struct{}{
		"first":  make(chan struct{}),
		"second": make(chan struct{}),
	}}
	backend.On("Fetch", mock.Anything, "7").Return(seed(), nil)

	s := New(backend, image, author)
	require.NoError(t, s.Load(context.Background()))

	var wg sync.WaitGroup
	for _, label := range []string{"first", "second"} {
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			_, _ = s.Update(context.Background(), "1", models.UpdateAnnotationRequest{Label: models.String(label)})
		}(label)
	}

	// the later request resolves first; the earlier one lands last
	close(backend.release["second"])
	require.Eventually(t, func() bool {
		got, _ := s.Get("1")
		return got.Label == "second"
	}, timeout, tick)
	close(backend.release["first"])
	wg.Wait()

	got, _ := s.Get("1")
	assert.Equal(t, "first", got.Label)
}
