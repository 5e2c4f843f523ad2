package element

import (
	"fmt"
	"time"
)

// Type is the closed set of drawable element kinds.
type Type uint8

const (
	TypeText Type = iota + 1
	TypeRectangle
	TypeEllipse
	TypeLine
	TypePencil
)

var typeNames = map[Type]string{
	TypeText:      "text",
	TypeRectangle: "rectangle",
	TypeEllipse:   "ellipse",
	TypeLine:      "line",
	TypePencil:    "pencil",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// ParseType resolves the wire name of an element type.
func ParseType(s string) (Type, error) {
	for t, name := range typeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown element type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ModerationStatus is the classification state of an element's content.
type ModerationStatus uint8

const (
	StatusUnmoderated ModerationStatus = iota + 1
	StatusPending
	StatusApproved
	StatusFlagged
	StatusRejected
)

var statusNames = map[ModerationStatus]string{
	StatusUnmoderated: "unmoderated",
	StatusPending:     "pending",
	StatusApproved:    "approved",
	StatusFlagged:     "flagged",
	StatusRejected:    "rejected",
}

func (s ModerationStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ModerationStatus(%d)", uint8(s))
}

func (s ModerationStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func ParseStatus(s string) (ModerationStatus, error) {
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown moderation status %q", s)
}

func (s ModerationStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown moderation status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *ModerationStatus) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ModerationReason details why an element was Flagged or Rejected.
// The zero value means no reason.
type ModerationReason uint8

const (
	ReasonNone ModerationReason = iota
	ReasonProfaneLanguage
	ReasonOffensiveContent
	ReasonUnwantedSymbols
	ReasonOther
)

var reasonNames = map[ModerationReason]string{
	ReasonNone:             "",
	ReasonProfaneLanguage:  "profane_language",
	ReasonOffensiveContent: "offensive_content",
	ReasonUnwantedSymbols:  "unwanted_symbols",
	ReasonOther:            "other",
}

func (r ModerationReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ModerationReason(%d)", uint8(r))
}

func ParseReason(s string) (ModerationReason, error) {
	for r, name := range reasonNames {
		if name == s {
			return r, nil
		}
	}
	return ReasonNone, fmt.Errorf("unknown moderation reason %q", s)
}

func (r ModerationReason) MarshalText() ([]byte, error) {
	if _, ok := reasonNames[r]; !ok {
		return nil, fmt.Errorf("unknown moderation reason %d", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *ModerationReason) UnmarshalText(b []byte) error {
	parsed, err := ParseReason(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Point is an offset relative to the element origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Style struct {
	StrokeColor     string  `json:"strokeColor"`
	BackgroundColor string  `json:"backgroundColor"`
	FontSize        float64 `json:"fontSize"`
	FontFamily      string  `json:"fontFamily"`
	Roughness       float64 `json:"roughness"`
}

var DefaultStyle = Style{
	StrokeColor:     "#000000",
	BackgroundColor: "transparent",
	FontSize:        20,
	FontFamily:      "Virgil",
	Roughness:       1,
}

type Element struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionId"`
	AuthorID  string   `json:"authorId"`
	Type      Type     `json:"type"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Width     *float64 `json:"width,omitempty"`
	Height    *float64 `json:"height,omitempty"`
	Points    []Point  `json:"points,omitempty"`
	Text      string   `json:"text,omitempty"`
	Style

	ModerationStatus ModerationStatus `json:"moderationStatus"`
	ModerationReason ModerationReason `json:"moderationReason,omitempty"`
	// ModerationEpoch increases whenever the status changes or the content is
	// sent back for review. Geometry and style edits leave it alone.
	ModerationEpoch int64     `json:"moderationEpoch"`
	ModeratedAt     time.Time `json:"moderatedAt"`

	// Version increases by one on every mutation, moderation changes included.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share the points slice or size pointers.
func (e Element) Clone() Element {
	out := e
	if e.Points != nil {
		out.Points = append([]Point(nil), e.Points...)
	}
	if e.Width != nil {
		w := *e.Width
		out.Width = &w
	}
	if e.Height != nil {
		h := *e.Height
		out.Height = &h
	}
	return out
}

// NewerThan reports whether e's content should replace other's under
// last-write-wins.
func (e Element) NewerThan(other Element) bool {
	if e.Version != other.Version {
		return e.Version > other.Version
	}
	return e.UpdatedAt.After(other.UpdatedAt)
}

// ModeratedAfter reports whether e carries the more recent moderation state.
func (e Element) ModeratedAfter(other Element) bool {
	if e.ModerationEpoch != other.ModerationEpoch {
		return e.ModerationEpoch > other.ModerationEpoch
	}
	if !e.ModeratedAt.Equal(other.ModeratedAt) {
		return e.ModeratedAt.After(other.ModeratedAt)
	}
	return e.ModerationStatus > other.ModerationStatus
}

// Merge reconciles two replicas of the same element. Content and moderation
// state are resolved separately, so an edit made against a stale Pending copy
// keeps its geometry but not its status. The result is the same whichever
// side calls it. changed reports whether the result differs from local.
func Merge(local, remote Element) (merged Element, changed bool) {
	merged = local.Clone()
	if remote.NewerThan(local) {
		merged = remote.Clone()
		merged.copyModeration(local)
		changed = true
	}
	if remote.ModeratedAfter(local) {
		merged.copyModeration(remote)
		changed = true
	}
	return merged, changed
}

func (e *Element) copyModeration(from Element) {
	e.ModerationStatus = from.ModerationStatus
	e.ModerationReason = from.ModerationReason
	e.ModerationEpoch = from.ModerationEpoch
	e.ModeratedAt = from.ModeratedAt
}
