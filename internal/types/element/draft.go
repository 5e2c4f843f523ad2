package element

import (
	"fmt"
)

// Draft is the caller-supplied part of a new element.
type Draft struct {
	SessionID string   `json:"sessionId"`
	AuthorID  string   `json:"authorId"`
	Type      Type     `json:"type"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Width     *float64 `json:"width,omitempty"`
	Height    *float64 `json:"height,omitempty"`
	Points    []Point  `json:"points,omitempty"`
	Text      string   `json:"text,omitempty"`
	Style     *Style   `json:"style,omitempty"`
}

// Validate enforces the per-type shape invariants.
func (d Draft) Validate() error {
	switch d.Type {
	case TypePencil:
		if len(d.Points) == 0 {
			return fmt.Errorf("pencil element requires at least one point")
		}
	case TypeText:
		if len(d.Points) > 0 {
			return fmt.Errorf("text element cannot carry points")
		}
	case TypeRectangle, TypeEllipse, TypeLine:
		if len(d.Points) > 0 {
			return fmt.Errorf("%s element cannot carry points", d.Type)
		}
	default:
		return fmt.Errorf("unknown element type %d", uint8(d.Type))
	}
	if d.Width != nil && *d.Width < 0 {
		return fmt.Errorf("width must be non-negative")
	}
	if d.Height != nil && *d.Height < 0 {
		return fmt.Errorf("height must be non-negative")
	}
	return nil
}

// Patch is a partial update. Nil fields are left unchanged. Points, when set,
// replaces the whole list.
type Patch struct {
	X               *float64 `json:"x,omitempty"`
	Y               *float64 `json:"y,omitempty"`
	Width           *float64 `json:"width,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	Points          []Point  `json:"points,omitempty"`
	Text            *string  `json:"text,omitempty"`
	StrokeColor     *string  `json:"strokeColor,omitempty"`
	BackgroundColor *string  `json:"backgroundColor,omitempty"`
	FontSize        *float64 `json:"fontSize,omitempty"`
	FontFamily      *string  `json:"fontFamily,omitempty"`
	Roughness       *float64 `json:"roughness,omitempty"`
}

// Apply merges p into e and reports whether the text payload changed.
func (p Patch) Apply(e *Element) (textChanged bool, err error) {
	if p.Points != nil {
		if e.Type != TypePencil {
			return false, fmt.Errorf("points only apply to pencil elements, got %s", e.Type)
		}
		if len(p.Points) == 0 {
			return false, fmt.Errorf("pencil element requires at least one point")
		}
	}
	if p.Width != nil && *p.Width < 0 {
		return false, fmt.Errorf("width must be non-negative")
	}
	if p.Height != nil && *p.Height < 0 {
		return false, fmt.Errorf("height must be non-negative")
	}

	if p.X != nil {
		e.X = *p.X
	}
	if p.Y != nil {
		e.Y = *p.Y
	}
	if p.Width != nil {
		w := *p.Width
		e.Width = &w
	}
	if p.Height != nil {
		h := *p.Height
		e.Height = &h
	}
	if p.Points != nil {
		e.Points = append([]Point(nil), p.Points...)
	}
	if p.Text != nil && *p.Text != e.Text {
		e.Text = *p.Text
		textChanged = true
	}
	if p.StrokeColor != nil {
		e.StrokeColor = *p.StrokeColor
	}
	if p.BackgroundColor != nil {
		e.BackgroundColor = *p.BackgroundColor
	}
	if p.FontSize != nil {
		e.FontSize = *p.FontSize
	}
	if p.FontFamily != nil {
		e.FontFamily = *p.FontFamily
	}
	if p.Roughness != nil {
		e.Roughness = *p.Roughness
	}
	return textChanged, nil
}
