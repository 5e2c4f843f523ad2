package voting

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"whiteboardAPI/internal/apperr"
	"whiteboardAPI/internal/metrics"
)

// Filter is the read-only view of one catalog entry.
type Filter struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Strength    float64  `json:"strength"`
	Votes       int      `json:"votes"`
	Voters      []string `json:"voters"`
	Active      bool     `json:"active"`
	VotePercent float64  `json:"votePercentage"`
}

type Snapshot struct {
	Filters      []Filter `json:"filters"`
	Participants int      `json:"participants"`
	Threshold    float64  `json:"voteThreshold"`
	ActiveFilter string   `json:"activeFilter,omitempty"`
}

type filterState struct {
	spec   FilterSpec
	voters map[string]struct{}
}

// Engine tracks participant votes for session-wide filters and keeps at most
// one filter active. Given the same sequence of operations every replica
// reaches the same active filter.
type Engine struct {
	mu sync.Mutex

	filters []*filterState
	byID    map[string]*filterState

	participants map[string]Stream
	ballots      map[string]string // participant -> filter
	threshold    float64
	active       string

	effects MediaEffects
	log     *zap.Logger
}

func NewEngine(catalog []FilterSpec, threshold float64, effects MediaEffects, log *zap.Logger) (*Engine, error) {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	if err := validateCatalog(catalog); err != nil {
		return nil, err
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: vote threshold %.2f outside (0, 1]", apperr.ErrValidation, threshold)
	}
	if effects == nil {
		effects = NoEffects{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		byID:         make(map[string]*filterState, len(catalog)),
		participants: make(map[string]Stream),
		ballots:      make(map[string]string),
		threshold:    threshold,
		effects:      effects,
		log:          log.With(zap.String("module", "voting")),
	}
	for _, spec := range catalog {
		fs := &filterState{spec: spec, voters: make(map[string]struct{})}
		e.filters = append(e.filters, fs)
		e.byID[spec.ID] = fs
	}
	return e, nil
}

// AddParticipant registers a participant and its media stream. A filter that is
// already active is applied to the newcomer straight away.
func (e *Engine) AddParticipant(id string, stream Stream) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.participants[id]; ok {
		return fmt.Errorf("participant %s: %w", id, apperr.ErrConflict)
	}
	e.participants[id] = stream

	if e.active != "" {
		e.applyTo(id, stream, e.byID[e.active].spec)
	}
	// a larger room can push the active filter under the threshold
	e.recompute()
	return nil
}

// RemoveParticipant drops the participant and every vote it cast.
func (e *Engine) RemoveParticipant(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.participants[id]; !ok {
		return fmt.Errorf("participant %s: %w", id, apperr.ErrNotFound)
	}
	e.retract(id)
	delete(e.participants, id)
	e.recompute()
	return nil
}

// Vote moves the participant's single vote to filterID. Voting again for the
// same filter is a no-op and reports false.
func (e *Engine) Vote(participantID, filterID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.participants[participantID]; !ok {
		return false, fmt.Errorf("participant %s is not in the session: %w", participantID, apperr.ErrInvalidState)
	}
	fs, ok := e.byID[filterID]
	if !ok {
		return false, fmt.Errorf("filter %s: %w", filterID, apperr.ErrNotFound)
	}
	if e.ballots[participantID] == filterID {
		return false, nil
	}

	e.retract(participantID)
	fs.voters[participantID] = struct{}{}
	e.ballots[participantID] = filterID
	metrics.VotesCast.WithLabelValues(filterID).Inc()

	e.recompute()
	return true, nil
}

// Unvote withdraws the participant's vote, if any.
func (e *Engine) Unvote(participantID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.participants[participantID]; !ok {
		return false, fmt.Errorf("participant %s is not in the session: %w", participantID, apperr.ErrInvalidState)
	}
	if _, voted := e.ballots[participantID]; !voted {
		return false, nil
	}
	e.retract(participantID)
	e.recompute()
	return true, nil
}

func (e *Engine) HasParticipant(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.participants[id]
	return ok
}

// Ballots returns a copy of the current votes keyed by participant.
func (e *Engine) Ballots() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.ballots))
	for id, filterID := range e.ballots {
		out[id] = filterID
	}
	return out
}

func (e *Engine) ActiveFilter() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Filters:      make([]Filter, 0, len(e.filters)),
		Participants: len(e.participants),
		Threshold:    e.threshold,
		ActiveFilter: e.active,
	}
	for _, fs := range e.filters {
		voters := make([]string, 0, len(fs.voters))
		for id := range fs.voters {
			voters = append(voters, id)
		}
		sort.Strings(voters)
		snap.Filters = append(snap.Filters, Filter{
			ID:          fs.spec.ID,
			Name:        fs.spec.Name,
			Strength:    fs.spec.Strength,
			Votes:       len(voters),
			Voters:      voters,
			Active:      fs.spec.ID == e.active,
			VotePercent: e.percentage(fs),
		})
	}
	return snap
}

func (e *Engine) retract(participantID string) {
	prev, ok := e.ballots[participantID]
	if !ok {
		return
	}
	delete(e.byID[prev].voters, participantID)
	delete(e.ballots, participantID)
}

func (e *Engine) percentage(fs *filterState) float64 {
	if len(e.participants) == 0 {
		return 0
	}
	return float64(len(fs.voters)) / float64(len(e.participants))
}

// recompute picks the filter with strictly the most votes. On a tie the active
// filter stays if it is one of the leaders, otherwise nothing wins. The winner
// is activated only if its share reaches the threshold.
func (e *Engine) recompute() {
	var (
		leaders []*filterState
		best    int
	)
	for _, fs := range e.filters {
		n := len(fs.voters)
		switch {
		case n > best:
			best = n
			leaders = []*filterState{fs}
		case n == best && n > 0:
			leaders = append(leaders, fs)
		}
	}

	var candidate *filterState
	switch len(leaders) {
	case 0:
	case 1:
		candidate = leaders[0]
	default:
		for _, fs := range leaders {
			if fs.spec.ID == e.active {
				candidate = fs
			}
		}
	}

	next := ""
	if candidate != nil && e.percentage(candidate) >= e.threshold {
		next = candidate.spec.ID
	}
	if next == e.active {
		return
	}

	if e.active != "" {
		metrics.ActiveFilterChanges.WithLabelValues(e.active, "deactivated").Inc()
	}
	e.active = next
	if next == "" {
		e.removeAllFilters()
		e.log.Info("session filter deactivated")
		return
	}
	metrics.ActiveFilterChanges.WithLabelValues(next, "activated").Inc()
	e.applyFilter(e.byID[next].spec)
	e.log.Info("session filter activated", zap.String("filter_id", next), zap.Float64("votes", e.percentage(e.byID[next])))
}

// applyFilter clears every stream before applying spec so effects never stack.
func (e *Engine) applyFilter(spec FilterSpec) {
	for _, id := range e.participantIDs() {
		e.applyTo(id, e.participants[id], spec)
	}
}

func (e *Engine) applyTo(id string, stream Stream, spec FilterSpec) {
	if err := e.effects.RemoveFilters(stream); err != nil {
		e.log.Warn("failed to clear filters", zap.String("participant_id", id), zap.Error(err))
	}
	if err := e.effects.ApplyFilter(stream, spec.ID, spec.Strength); err != nil {
		e.log.Warn("failed to apply filter", zap.String("participant_id", id), zap.String("filter_id", spec.ID), zap.Error(err))
	}
}

func (e *Engine) removeAllFilters() {
	for _, id := range e.participantIDs() {
		if err := e.effects.RemoveFilters(e.participants[id]); err != nil {
			e.log.Warn("failed to clear filters", zap.String("participant_id", id), zap.Error(err))
		}
	}
}

func (e *Engine) participantIDs() []string {
	ids := make([]string, 0, len(e.participants))
	for id := range e.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
