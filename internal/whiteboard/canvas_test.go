package whiteboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
)

func newTestController(t *testing.T) (*Controller, *Store) {
	t.Helper()
	s := NewStore("s1", WithClock(fixedClock()))
	board := Bound{Store: s, Config: func() policy.Config { return policy.Config{} }}
	return NewController(board, "s1", "alice"), s
}

func TestPencilStroke(t *testing.T) {
	c, s := newTestController(t)
	require.NoError(t, c.SetTool(element.TypePencil))

	el, err := c.PointerDown(10, 10)
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, []element.Point{{X: 0, Y: 0}}, el.Points)
	assert.Equal(t, StateDrawing, c.State())

	for i, p := range []element.Point{{X: 11, Y: 12}, {X: 13, Y: 15}, {X: 20, Y: 20}} {
		updated, err := c.PointerMove(p.X, p.Y)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Len(t, updated.Points, i+2)
		assert.Equal(t, element.TypePencil, updated.Type)
	}

	done, err := c.PointerUp(20, 20)
	require.NoError(t, err)
	assert.Nil(t, done)
	assert.Equal(t, StateIdle, c.State())

	final, err := s.Get(el.ID)
	require.NoError(t, err)
	assert.Equal(t, element.TypePencil, final.Type)
	assert.Equal(t, []element.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 3, Y: 5}, {X: 10, Y: 10}}, final.Points)
	assert.Equal(t, 1, s.Len())
}

func TestShapeBoxIsNormalizedForAnyDragDirection(t *testing.T) {
	c, s := newTestController(t)
	require.NoError(t, c.SetTool(element.TypeRectangle))

	el, err := c.PointerDown(100, 80)
	require.NoError(t, err)
	assert.Nil(t, el, "no element before pointer-up")
	assert.Equal(t, 0, s.Len())

	moved, err := c.PointerMove(50, 50)
	require.NoError(t, err)
	assert.Nil(t, moved)

	el, err = c.PointerUp(40, 30)
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, element.TypeRectangle, el.Type)
	assert.Equal(t, 40.0, el.X)
	assert.Equal(t, 30.0, el.Y)
	assert.Equal(t, 60.0, *el.Width)
	assert.Equal(t, 50.0, *el.Height)
	assert.Equal(t, StateIdle, c.State())
}

func TestTextCommitsOnlyNonEmptyInput(t *testing.T) {
	c, s := newTestController(t)
	require.NoError(t, c.SetTool(element.TypeText))

	_, err := c.PointerDown(5, 6)
	require.NoError(t, err)
	assert.Equal(t, StateTextEntry, c.State())

	el, err := c.CommitText("   ")
	require.NoError(t, err)
	assert.Nil(t, el)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, StateIdle, c.State())

	_, err = c.PointerDown(5, 6)
	require.NoError(t, err)
	el, err = c.CommitText("hello")
	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Equal(t, "hello", el.Text)
	assert.Equal(t, 5.0, el.X)
	assert.Empty(t, el.Points)
}

func TestPointerDownWhileDrawingStartsFreshStroke(t *testing.T) {
	c, s := newTestController(t)

	first, err := c.PointerDown(0, 0)
	require.NoError(t, err)
	second, err := c.PointerDown(10, 10)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, second.ID, c.Current())
	assert.Equal(t, 2, s.Len())
}

func TestClickSelectionStopsPropagation(t *testing.T) {
	c, _ := newTestController(t)

	consumed := c.Click("e1")
	assert.True(t, consumed)
	assert.Equal(t, "e1", c.Selected())

	consumed = c.Click("")
	assert.False(t, consumed)
	assert.Empty(t, c.Selected())
}

func TestSetToolRejectsUnknown(t *testing.T) {
	c, _ := newTestController(t)
	assert.Error(t, c.SetTool(element.Type(42)))
	assert.Equal(t, element.TypePencil, c.Tool())
}
