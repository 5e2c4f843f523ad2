package whiteboard

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
)

// Scheduler receives elements that entered Pending and need a moderation pass.
// Schedule must not block.
type Scheduler interface {
	Schedule(el element.Element, cfg policy.Config)
}

// Store is the canonical element set of one session. Every method returns copies.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	elements  map[string]*element.Element
	order     []string
	scheduler Scheduler
	now       func() time.Time
}

type Option func(*Store)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(sessionID string, opts ...Option) *Store {
	s := &Store{
		sessionID: sessionID,
		elements:  make(map[string]*element.Element),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SetScheduler(sch Scheduler) {
	s.mu.Lock()
	s.scheduler = sch
	s.mu.Unlock()
}

// Create assigns id, timestamps and the initial moderation status, then
// schedules moderation when the element starts Pending.
func (s *Store) Create(d element.Draft, cfg policy.Config) (element.Element, error) {
	if err := d.Validate(); err != nil {
		return element.Element{}, fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}

	now := s.now()
	style := element.DefaultStyle
	if d.Style != nil {
		style = *d.Style
	}
	el := element.Element{
		ID:        uuid.New().String(),
		SessionID: s.sessionID,
		AuthorID:  d.AuthorID,
		Type:      d.Type,
		X:         d.X,
		Y:         d.Y,
		Text:      d.Text,
		Style:     style,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,

		ModerationEpoch: 1,
		ModeratedAt:     now,
	}
	if d.Width != nil {
		w := *d.Width
		el.Width = &w
	}
	if d.Height != nil {
		h := *d.Height
		el.Height = &h
	}
	if d.Type == element.TypePencil {
		el.Points = append([]element.Point(nil), d.Points...)
	}
	if cfg.Enabled {
		el.ModerationStatus = element.StatusPending
	} else {
		el.ModerationStatus = element.StatusUnmoderated
	}

	s.mu.Lock()
	stored := el.Clone()
	s.elements[el.ID] = &stored
	s.order = append(s.order, el.ID)
	sch := s.scheduler
	s.mu.Unlock()

	if el.ModerationStatus == element.StatusPending && sch != nil {
		sch.Schedule(el.Clone(), cfg)
	}
	return el, nil
}

// Update merges patch into an existing element. A text change on a moderated
// board sends the element back through moderation.
func (s *Store) Update(id string, p element.Patch, cfg policy.Config) (element.Element, error) {
	s.mu.Lock()
	cur, ok := s.elements[id]
	if !ok {
		s.mu.Unlock()
		return element.Element{}, fmt.Errorf("element %s: %w", id, apperr.ErrNotFound)
	}

	next := cur.Clone()
	textChanged, err := p.Apply(&next)
	if err != nil {
		s.mu.Unlock()
		return element.Element{}, fmt.Errorf("%w: %v", apperr.ErrInvalidState, err)
	}
	rescheduled := false
	if textChanged && cfg.Enabled {
		s.moderate(&next, element.StatusPending, element.ReasonNone)
		rescheduled = true
	}
	s.touch(&next)
	*cur = next
	out := next.Clone()
	sch := s.scheduler
	s.mu.Unlock()

	if rescheduled && sch != nil {
		sch.Schedule(out.Clone(), cfg)
	}
	return out, nil
}

func (s *Store) Get(id string) (element.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.elements[id]
	if !ok {
		return element.Element{}, fmt.Errorf("element %s: %w", id, apperr.ErrNotFound)
	}
	return el.Clone(), nil
}

// ListAll returns every element in creation order, which is also z-order.
func (s *Store) ListAll() []element.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]element.Element, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.elements[id].Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// CompareAndSetModeration applies an automatic verdict only when the element is
// still Pending at the moderation epoch the classifier saw. Geometry and style
// edits made meanwhile do not invalidate the verdict. It reports whether it applied.
func (s *Store) CompareAndSetModeration(id string, epoch int64, status element.ModerationStatus, reason element.ModerationReason) (element.Element, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.elements[id]
	if !ok {
		return element.Element{}, false, fmt.Errorf("element %s: %w", id, apperr.ErrNotFound)
	}
	if cur.ModerationEpoch != epoch || cur.ModerationStatus != element.StatusPending {
		return cur.Clone(), false, nil
	}
	s.moderate(cur, status, reason)
	s.touch(cur)
	return cur.Clone(), true, nil
}

// ForceModeration is the reviewer path. It always wins and bumps the moderation
// epoch so that any in-flight automatic verdict is discarded.
func (s *Store) ForceModeration(id string, status element.ModerationStatus, reason element.ModerationReason) (element.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.elements[id]
	if !ok {
		return element.Element{}, fmt.Errorf("element %s: %w", id, apperr.ErrNotFound)
	}
	s.moderate(cur, status, reason)
	s.touch(cur)
	return cur.Clone(), nil
}

// ApplyRemote merges an element replicated from another instance with
// element.Merge. It returns the resulting local element and whether it changed.
func (s *Store) ApplyRemote(el element.Element) (element.Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.elements[el.ID]; ok {
		merged, changed := element.Merge(*cur, el)
		if !changed {
			return cur.Clone(), false
		}
		*cur = merged
		return merged.Clone(), true
	}

	stored := el.Clone()
	s.elements[el.ID] = &stored
	// keep creation order across replicas
	idx := sort.Search(len(s.order), func(i int) bool {
		other := s.elements[s.order[i]]
		if other.CreatedAt.Equal(el.CreatedAt) {
			return other.ID > el.ID
		}
		return other.CreatedAt.After(el.CreatedAt)
	})
	s.order = append(s.order, "")
	copy(s.order[idx+1:], s.order[idx:])
	s.order[idx] = el.ID
	return stored.Clone(), true
}

// Load replaces the store content with persisted elements, sorted by creation time.
func (s *Store) Load(elements []element.Element) {
	sorted := make([]element.Element, len(elements))
	copy(sorted, elements)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = make(map[string]*element.Element, len(sorted))
	s.order = s.order[:0]
	for _, el := range sorted {
		stored := el.Clone()
		s.elements[el.ID] = &stored
		s.order = append(s.order, el.ID)
	}
}

func (s *Store) touch(el *element.Element) {
	el.Version++
	el.UpdatedAt = s.after(el.UpdatedAt)
}

func (s *Store) moderate(el *element.Element, status element.ModerationStatus, reason element.ModerationReason) {
	el.ModerationStatus = status
	if status == element.StatusFlagged || status == element.StatusRejected {
		el.ModerationReason = reason
	} else {
		el.ModerationReason = element.ReasonNone
	}
	el.ModerationEpoch++
	el.ModeratedAt = s.after(el.ModeratedAt)
}

// after returns the current time, nudged past prev so stamps stay monotonic.
func (s *Store) after(prev time.Time) time.Time {
	now := s.now()
	if !now.After(prev) {
		now = prev.Add(time.Nanosecond)
	}
	return now
}
