package interaction

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/permission"
	"github.com/image-annotator/backend/internal/render"
	"github.com/image-annotator/backend/internal/store"
)

// Labels are the default labels given to newly drawn annotations.
type Labels struct {
	Dot   string
	Arrow string
}

// DefaultLabels returns the labels used when none are configured.
func DefaultLabels() Labels {
	return Labels{Dot: "New annotation", Arrow: "New arrow"}
}

// Controller drives one image's editor: it reduces input into State and
// performs the resulting effects against the store.
type Controller struct {
	store  *store.Store
	labels Labels
	style  render.Style
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// NewController creates a controller for s.
func NewController(s *store.Store, labels Labels, style render.Style, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		store:  s,
		labels: labels,
		style:  style,
		logger: logger,
		state:  Initial(),
	}
}

// State returns the current editor state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SelectTool picks tool for the store's current actor. Anonymous actors end
// in idle with SignInRequired set.
func (c *Controller) SelectTool(tool Tool) State {
	authenticated, canCreate := c.capabilities()
	state, _ := c.reduce(SelectTool{Tool: tool, Authenticated: authenticated, CanCreate: canCreate})
	return state
}

// SetActor swaps the session actor, disarming any tool it may not use.
func (c *Controller) SetActor(actor *models.Actor) State {
	c.store.SetActor(actor)
	authenticated, canCreate := c.capabilities()
	state, _ := c.reduce(ActorChanged{Authenticated: authenticated, CanCreate: canCreate})
	return state
}

// ToggleShowAnnotations flips overlay visibility.
func (c *Controller) ToggleShowAnnotations() State {
	state, _ := c.reduce(ToggleShowAnnotations{})
	return state
}

// Cancel discards a half-drawn arrow.
func (c *Controller) Cancel() State {
	state, _ := c.reduce(Cancel{})
	return state
}

// Click handles a click at e inside container.
func (c *Controller) Click(ctx context.Context, e geometry.PointerEvent, container geometry.Container) error {
	return c.pointer(ctx, e, container, func(at geometry.Point) Action { return Click{At: at} })
}

// Press handles the start of a drag.
func (c *Controller) Press(ctx context.Context, e geometry.PointerEvent, container geometry.Container) error {
	return c.pointer(ctx, e, container, func(at geometry.Point) Action { return Press{At: at} })
}

// Release handles the end of a drag.
func (c *Controller) Release(ctx context.Context, e geometry.PointerEvent, container geometry.Container) error {
	return c.pointer(ctx, e, container, func(at geometry.Point) Action { return Release{At: at} })
}

// Scene returns the overlay for the current store contents and state.
func (c *Controller) Scene() render.Scene {
	state := c.State()
	in := render.Input{
		Annotations:     c.store.List(),
		ShowAnnotations: state.ShowAnnotations,
		Drawing:         state.Drawing(),
	}
	if selected, ok := c.store.Selected(); ok {
		in.SelectedID = selected.ID
	}
	return render.Build(in, c.style)
}

func (c *Controller) pointer(ctx context.Context, e geometry.PointerEvent, container geometry.Container, action func(geometry.Point) Action) error {
	if container == nil || container.BoundingRect().Size().Empty() {
		c.logger.Debug("Ignoring pointer input without a laid out container")
		return nil
	}
	dims := container.BoundingRect().Size()

	_, effect := c.reduce(action(geometry.ToNormalized(e, container)))
	return c.perform(ctx, effect, dims)
}

func (c *Controller) reduce(action Action) (State, Effect) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, effect := Reduce(c.state, action)
	if next.Phase != c.state.Phase {
		c.logger.Debug("Editor phase changed",
			zap.String("from", string(c.state.Phase)),
			zap.String("to", string(next.Phase)),
		)
	}
	c.state = next
	return next, effect
}

func (c *Controller) perform(ctx context.Context, effect Effect, dims geometry.Size) error {
	imageID := c.store.Image().ID

	switch e := effect.(type) {
	case CreateDot:
		_, err := c.store.Create(ctx, models.NewDot(imageID, e.At, c.labels.Dot))
		return err

	case CreateArrow:
		_, err := c.store.Create(ctx, models.NewArrow(imageID, e.Start, e.End, c.labels.Arrow))
		return err

	case Pick:
		c.Scene().Click(e.At, dims, func(a *models.Annotation) {
			if a == nil {
				c.store.ClearSelection()
				return
			}
			c.store.Select(a.ID)
		})
	}
	return nil
}

func (c *Controller) capabilities() (authenticated, canCreate bool) {
	actor := c.store.Actor()
	if actor == nil {
		return false, false
	}
	image := c.store.Image()
	return true, c.store.Can(permission.CreateAnnotation, models.Annotation{ImageID: image.ID})
}
