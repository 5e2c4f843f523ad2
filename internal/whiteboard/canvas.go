package whiteboard

import (
	"fmt"
	"math"
	"strings"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
)

// Board is what the canvas controller draws onto.
type Board interface {
	Create(d element.Draft) (element.Element, error)
	Update(id string, p element.Patch) (element.Element, error)
}

// Bound couples a Store with the moderation config that is current at call time.
type Bound struct {
	Store  *Store
	Config func() policy.Config
}

func (b Bound) Create(d element.Draft) (element.Element, error) {
	return b.Store.Create(d, b.Config())
}

func (b Bound) Update(id string, p element.Patch) (element.Element, error) {
	return b.Store.Update(id, p, b.Config())
}

type State uint8

const (
	StateIdle State = iota
	StateDrawing
	StateTextEntry
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDrawing:
		return "drawing"
	case StateTextEntry:
		return "text_entry"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Controller turns one user's pointer input into element writes. It keeps at
// most one in-progress element and is not safe for concurrent use.
type Controller struct {
	board     Board
	sessionID string
	authorID  string

	tool  element.Type
	style element.Style
	state State

	start        element.Point
	shapePending bool
	textAt       element.Point

	current string
	origin  element.Point
	points  []element.Point

	selected string
}

func NewController(board Board, sessionID, authorID string) *Controller {
	return &Controller{
		board:     board,
		sessionID: sessionID,
		authorID:  authorID,
		tool:      element.TypePencil,
		style:     element.DefaultStyle,
	}
}

func (c *Controller) State() State       { return c.state }
func (c *Controller) Tool() element.Type { return c.tool }
func (c *Controller) Selected() string   { return c.selected }

// Current is the id of the stroke being drawn, empty when Idle.
func (c *Controller) Current() string { return c.current }

// SetTool switches tools and abandons anything in progress.
func (c *Controller) SetTool(t element.Type) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown tool %d", apperr.ErrValidation, uint8(t))
	}
	c.reset()
	c.tool = t
	return nil
}

func (c *Controller) SetStyle(s element.Style) { c.style = s }

// PointerDown starts a stroke, a text entry or a shape drag depending on the tool.
func (c *Controller) PointerDown(x, y float64) (*element.Element, error) {
	if c.state != StateIdle {
		// a lost pointer-up must not wedge the controller
		c.reset()
	}

	switch c.tool {
	case element.TypeText:
		c.state = StateTextEntry
		c.textAt = element.Point{X: x, Y: y}
		return nil, nil
	case element.TypePencil:
		style := c.style
		el, err := c.board.Create(element.Draft{
			SessionID: c.sessionID,
			AuthorID:  c.authorID,
			Type:      element.TypePencil,
			X:         x,
			Y:         y,
			Points:    []element.Point{{X: 0, Y: 0}},
			Style:     &style,
		})
		if err != nil {
			return nil, err
		}
		c.state = StateDrawing
		c.current = el.ID
		c.origin = element.Point{X: x, Y: y}
		c.points = []element.Point{{X: 0, Y: 0}}
		return &el, nil
	case element.TypeRectangle, element.TypeEllipse, element.TypeLine:
		c.start = element.Point{X: x, Y: y}
		c.shapePending = true
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool %d", apperr.ErrInvalidState, uint8(c.tool))
	}
}

// PointerMove appends to the active pencil stroke. Other tools ignore it.
func (c *Controller) PointerMove(x, y float64) (*element.Element, error) {
	if c.state != StateDrawing || c.tool != element.TypePencil || c.current == "" {
		return nil, nil
	}
	c.points = append(c.points, element.Point{X: x - c.origin.X, Y: y - c.origin.Y})
	pts := append([]element.Point(nil), c.points...)
	el, err := c.board.Update(c.current, element.Patch{Points: pts})
	if err != nil {
		c.points = c.points[:len(c.points)-1]
		return nil, err
	}
	return &el, nil
}

// PointerUp finishes a stroke or creates the dragged shape with a normalized box.
func (c *Controller) PointerUp(x, y float64) (*element.Element, error) {
	switch {
	case c.state == StateDrawing:
		c.reset()
		return nil, nil
	case c.shapePending:
		minX, minY := math.Min(c.start.X, x), math.Min(c.start.Y, y)
		w, h := math.Abs(x-c.start.X), math.Abs(y-c.start.Y)
		style := c.style
		tool := c.tool
		c.reset()
		el, err := c.board.Create(element.Draft{
			SessionID: c.sessionID,
			AuthorID:  c.authorID,
			Type:      tool,
			X:         minX,
			Y:         minY,
			Width:     &w,
			Height:    &h,
			Style:     &style,
		})
		if err != nil {
			return nil, err
		}
		return &el, nil
	default:
		return nil, nil
	}
}

// CommitText is the blur of the text input. Blank input creates nothing.
func (c *Controller) CommitText(text string) (*element.Element, error) {
	if c.state != StateTextEntry {
		return nil, nil
	}
	at := c.textAt
	c.reset()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	style := c.style
	el, err := c.board.Create(element.Draft{
		SessionID: c.sessionID,
		AuthorID:  c.authorID,
		Type:      element.TypeText,
		X:         at.X,
		Y:         at.Y,
		Text:      text,
		Style:     &style,
	})
	if err != nil {
		return nil, err
	}
	return &el, nil
}

// Click handles a click that hit elementID, or the background when elementID is
// empty. Selecting an element consumes the click so the background handler,
// which clears the selection, does not also run. It reports whether the click
// was consumed.
func (c *Controller) Click(elementID string) bool {
	if elementID != "" {
		c.selected = elementID
		return true
	}
	c.selected = ""
	return false
}

func (c *Controller) ClearSelection() { c.selected = "" }

func (c *Controller) reset() {
	c.state = StateIdle
	c.shapePending = false
	c.current = ""
	c.points = nil
}
