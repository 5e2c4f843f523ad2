package element

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementJSONUsesWireNames(t *testing.T) {
	el := Element{
		ID:               "e1",
		Type:             TypePencil,
		Points:           []Point{{0, 0}},
		ModerationStatus: StatusFlagged,
		ModerationReason: ReasonProfaneLanguage,
	}

	raw, err := json.Marshal(el)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"pencil"`)
	assert.Contains(t, string(raw), `"moderationStatus":"flagged"`)
	assert.Contains(t, string(raw), `"moderationReason":"profane_language"`)

	var back Element
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, TypePencil, back.Type)
	assert.Equal(t, StatusFlagged, back.ModerationStatus)
}

func TestUnknownTypeIsRejected(t *testing.T) {
	var d Draft
	err := json.Unmarshal([]byte(`{"type":"triangle"}`), &d)
	assert.Error(t, err)
}

func TestDraftValidate(t *testing.T) {
	neg := -1.0

	assert.NoError(t, Draft{Type: TypePencil, Points: []Point{{0, 0}}}.Validate())
	assert.Error(t, Draft{Type: TypePencil}.Validate())
	assert.Error(t, Draft{Type: TypeRectangle, Points: []Point{{1, 1}}}.Validate())
	assert.Error(t, Draft{Type: TypeEllipse, Width: &neg}.Validate())
	assert.Error(t, Draft{}.Validate())
}

func TestPatchApply(t *testing.T) {
	el := Element{Type: TypeText, Text: "hello"}
	text := "hello world"
	x := 12.5

	changed, err := Patch{Text: &text, X: &x}.Apply(&el)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "hello world", el.Text)
	assert.Equal(t, 12.5, el.X)

	changed, err = Patch{Text: &text}.Apply(&el)
	require.NoError(t, err)
	assert.False(t, changed, "same text is not a change")

	_, err = Patch{Points: []Point{{1, 1}}}.Apply(&el)
	assert.Error(t, err, "points on a text element")
}

func TestNewerThan(t *testing.T) {
	a := Element{Version: 2}
	b := Element{Version: 3}
	assert.True(t, b.NewerThan(a))
	assert.False(t, a.NewerThan(b))
}

func TestMergeResolvesContentAndModerationSeparately(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	pending := Element{
		ID: "e1", Type: TypeText, Text: "hi",
		ModerationStatus: StatusPending, ModerationEpoch: 1, ModeratedAt: base,
		Version: 1, CreatedAt: base, UpdatedAt: base,
	}

	// a moderator approved on one replica
	approved := pending.Clone()
	approved.ModerationStatus = StatusApproved
	approved.ModerationEpoch = 2
	approved.ModeratedAt = base.Add(time.Second)
	approved.Version = 2
	approved.UpdatedAt = base.Add(time.Second)

	// someone moved the stale pending copy on another replica, a bit later
	moved := pending.Clone()
	moved.X = 40
	moved.Version = 2
	moved.UpdatedAt = base.Add(2 * time.Second)

	onApprover, changed := Merge(approved, moved)
	assert.True(t, changed)
	onMover, changed := Merge(moved, approved)
	assert.True(t, changed)

	assert.Equal(t, onApprover, onMover)
	assert.Equal(t, StatusApproved, onMover.ModerationStatus)
	assert.Equal(t, int64(2), onMover.ModerationEpoch)
	assert.Equal(t, 40.0, onMover.X)

	_, changed = Merge(onMover, pending)
	assert.False(t, changed, "an older copy changes nothing")
}

func TestModeratedAfter(t *testing.T) {
	now := time.Now()
	a := Element{ModerationEpoch: 2, ModeratedAt: now}
	b := Element{ModerationEpoch: 3, ModeratedAt: now.Add(-time.Hour)}
	assert.True(t, b.ModeratedAfter(a))
	assert.False(t, a.ModeratedAfter(b))

	c := Element{ModerationEpoch: 2, ModeratedAt: now.Add(time.Millisecond)}
	assert.True(t, c.ModeratedAfter(a))
}
