package voting

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboardAPI/internal/apperr"
)

// recordingEffects tracks which filters are currently applied on each stream.
type recordingEffects struct {
	mu      sync.Mutex
	applied map[Stream][]string
}

func newRecordingEffects() *recordingEffects {
	return &recordingEffects{applied: make(map[Stream][]string)}
}

func (r *recordingEffects) ApplyFilter(stream Stream, filterID string, _ float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[stream] = append(r.applied[stream], filterID)
	return nil
}

func (r *recordingEffects) RemoveFilters(stream Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied[stream] = nil
	return nil
}

func (r *recordingEffects) on(stream Stream) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.applied[stream]...)
}

func newTestEngine(t *testing.T, threshold float64, participants ...string) (*Engine, *recordingEffects) {
	t.Helper()
	fx := newRecordingEffects()
	e, err := NewEngine(nil, threshold, fx, nil)
	require.NoError(t, err)
	for _, p := range participants {
		require.NoError(t, e.AddParticipant(p, "stream-"+p))
	}
	return e, fx
}

func assertInvariants(t *testing.T, e *Engine) {
	t.Helper()
	snap := e.Snapshot()
	active := 0
	voters := map[string]string{}
	for _, f := range snap.Filters {
		assert.Equal(t, len(f.Voters), f.Votes, "filter %s", f.ID)
		if f.Active {
			active++
			assert.Equal(t, snap.ActiveFilter, f.ID)
		}
		for _, v := range f.Voters {
			prev, dup := voters[v]
			assert.False(t, dup, "participant %s voted for %s and %s", v, prev, f.ID)
			voters[v] = f.ID
		}
	}
	assert.LessOrEqual(t, active, 1)
}

func TestEngine_QuorumActivatesFilter(t *testing.T) {
	e, fx := newTestEngine(t, 0.5, "p1", "p2", "p3", "p4")

	changed, err := e.Vote("p1", "sepia")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, e.ActiveFilter(), "one vote of four is below the threshold")

	_, err = e.Vote("p2", "sepia")
	require.NoError(t, err)
	assert.Equal(t, "sepia", e.ActiveFilter())
	for _, p := range []string{"p1", "p2", "p3", "p4"} {
		assert.Equal(t, []string{"sepia"}, fx.on("stream-"+p))
	}
	assertInvariants(t, e)
}

func TestEngine_BallotsIsACopy(t *testing.T) {
	e, _ := newTestEngine(t, 0.5, "p1", "p2")
	_, err := e.Vote("p1", "sepia")
	require.NoError(t, err)

	ballots := e.Ballots()
	assert.Equal(t, map[string]string{"p1": "sepia"}, ballots)
	ballots["p2"] = "blur"
	assert.Equal(t, map[string]string{"p1": "sepia"}, e.Ballots())
}

func TestEngine_TieKeepsActiveLeader(t *testing.T) {
	e, fx := newTestEngine(t, 0.5, "p1", "p2", "p3", "p4")

	for _, v := range [][2]string{{"p1", "sepia"}, {"p2", "sepia"}, {"p3", "grayscale"}, {"p4", "grayscale"}} {
		_, err := e.Vote(v[0], v[1])
		require.NoError(t, err)
		assertInvariants(t, e)
	}
	assert.Equal(t, "sepia", e.ActiveFilter())

	// p1 switches sides: the vote for sepia is retracted automatically
	_, err := e.Vote("p1", "grayscale")
	require.NoError(t, err)
	assert.Equal(t, "grayscale", e.ActiveFilter())
	assert.Equal(t, []string{"grayscale"}, fx.on("stream-p3"))

	snap := e.Snapshot()
	assert.Equal(t, 1, snap.Filters[0].Votes)
	assert.Equal(t, []string{"p2"}, snap.Filters[0].Voters)
	assert.Equal(t, 3, snap.Filters[1].Votes)
	assertInvariants(t, e)
}

func TestEngine_TieKeepsActiveFilter(t *testing.T) {
	e, _ := newTestEngine(t, 0.25, "p1", "p2", "p3", "p4")

	_, err := e.Vote("p1", "sepia")
	require.NoError(t, err)
	assert.Equal(t, "sepia", e.ActiveFilter())

	_, err = e.Unvote("p1")
	require.NoError(t, err)
	assert.Empty(t, e.ActiveFilter())

	_, err = e.Vote("p1", "sepia")
	require.NoError(t, err)
	_, err = e.Vote("p2", "blur")
	require.NoError(t, err)
	assert.Equal(t, "sepia", e.ActiveFilter(), "active filter survives a tie")

	_, err = e.Unvote("p1")
	require.NoError(t, err)
	_, err = e.Vote("p3", "sepia")
	require.NoError(t, err)
	assert.Equal(t, "blur", e.ActiveFilter())
}

func TestEngine_TieAmongOtherFiltersDeactivates(t *testing.T) {
	e, fx := newTestEngine(t, 0.2, "p1", "p2", "p3", "p4", "p5")

	for _, v := range [][2]string{{"p1", "sepia"}, {"p2", "sepia"}, {"p3", "blur"}, {"p4", "blur"}, {"p5", "contrast"}} {
		_, err := e.Vote(v[0], v[1])
		require.NoError(t, err)
	}
	assert.Equal(t, "sepia", e.ActiveFilter())

	// blur and contrast now lead 2-2 and sepia is not among them
	_, err := e.Vote("p1", "contrast")
	require.NoError(t, err)
	assert.Empty(t, e.ActiveFilter())
	assert.Empty(t, fx.on("stream-p1"))
	assertInvariants(t, e)
}

func TestEngine_DuplicateVoteIsNoop(t *testing.T) {
	e, _ := newTestEngine(t, 0.5, "p1", "p2")

	changed, err := e.Vote("p1", "blur")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = e.Vote("p1", "blur")
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, 1, e.Snapshot().Filters[3].Votes)
}

func TestEngine_VoteErrors(t *testing.T) {
	e, _ := newTestEngine(t, 0.5, "p1")

	_, err := e.Vote("ghost", "sepia")
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = e.Vote("p1", "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.Unvote("ghost")
	require.ErrorIs(t, err, apperr.ErrInvalidState)

	for _, f := range e.Snapshot().Filters {
		assert.Zero(t, f.Votes)
	}
}

func TestEngine_ParticipantLifecycle(t *testing.T) {
	e, fx := newTestEngine(t, 0.5, "p1", "p2")

	require.ErrorIs(t, e.AddParticipant("p1", "other"), apperr.ErrConflict)
	require.ErrorIs(t, e.RemoveParticipant("ghost"), apperr.ErrNotFound)

	_, err := e.Vote("p1", "vintage")
	require.NoError(t, err)
	assert.Equal(t, "vintage", e.ActiveFilter())

	// joining a room with an active filter applies it without a vote; 1 of 3 is
	// then below the threshold, so the filter is switched off again
	require.NoError(t, e.AddParticipant("p3", "stream-p3"))
	assert.Empty(t, e.ActiveFilter())
	assert.Empty(t, fx.on("stream-p3"))

	_, err = e.Vote("p2", "vintage")
	require.NoError(t, err)
	assert.Equal(t, "vintage", e.ActiveFilter())

	require.NoError(t, e.AddParticipant("p4", "stream-p4"))
	assert.Equal(t, "vintage", e.ActiveFilter())
	assert.Equal(t, []string{"vintage"}, fx.on("stream-p4"))

	// leaving retracts the vote: 1 of 3 is below 50%
	require.NoError(t, e.RemoveParticipant("p1"))
	assert.Empty(t, e.ActiveFilter())
	assert.Empty(t, fx.on("stream-p2"))
	assert.Empty(t, fx.on("stream-p4"))
	assertInvariants(t, e)
}

func TestEngine_LastParticipantLeaving(t *testing.T) {
	e, _ := newTestEngine(t, 0.5, "p1")

	_, err := e.Vote("p1", "contrast")
	require.NoError(t, err)
	assert.Equal(t, "contrast", e.ActiveFilter())

	require.NoError(t, e.RemoveParticipant("p1"))
	snap := e.Snapshot()
	assert.Empty(t, snap.ActiveFilter)
	assert.Zero(t, snap.Participants)
}

func TestEngine_RejectsBadConfig(t *testing.T) {
	_, err := NewEngine(nil, 0, nil, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = NewEngine([]FilterSpec{{ID: "a", Strength: 1}, {ID: "a", Strength: 1}}, 0.5, nil, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = NewEngine([]FilterSpec{{ID: "a", Strength: 2}}, 0.5, nil, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEngine_RandomOperationsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	filterIDs := []string{"sepia", "grayscale", "contrast", "blur", "vintage"}

	type op struct {
		kind        int
		participant string
		filter      string
	}
	ops := make([]op, 500)
	for i := range ops {
		ops[i] = op{
			kind:        rng.Intn(4),
			participant: fmt.Sprintf("p%d", rng.Intn(6)),
			filter:      filterIDs[rng.Intn(len(filterIDs))],
		}
	}

	run := func() (*Engine, *recordingEffects) {
		e, fx := newTestEngine(t, 0.4)
		for _, o := range ops {
			switch o.kind {
			case 0:
				_ = e.AddParticipant(o.participant, "stream-"+o.participant)
			case 1:
				_ = e.RemoveParticipant(o.participant)
			case 2:
				_, _ = e.Vote(o.participant, o.filter)
			case 3:
				_, _ = e.Unvote(o.participant)
			}
			assertInvariants(t, e)
			for i := 0; i < 6; i++ {
				assert.LessOrEqual(t, len(fx.on(fmt.Sprintf("stream-p%d", i))), 1, "filters stacked")
			}
		}
		return e, fx
	}

	a, _ := run()
	b, _ := run()
	assert.Equal(t, a.Snapshot(), b.Snapshot(), "replaying the same operations converges")
}
