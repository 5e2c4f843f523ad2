package whiteboard

import (
	"whiteboardAPI/internal/types/element"
	"whiteboardAPI/internal/types/policy"
)

// Viewer is whoever a render or broadcast is evaluated for.
type Viewer struct {
	ID          string
	IsModerator bool
}

// Badge is the indicator drawn next to an element for a given viewer.
type Badge string

const (
	BadgeNone          Badge = ""
	BadgePendingReview Badge = "pending_review"
	BadgeFlagged       Badge = "flagged"
	BadgeRejected      Badge = "rejected"
)

// IsVisible decides whether viewer may see el under cfg. It holds no state and
// is re-evaluated on every render and on every moderation change.
func IsVisible(el element.Element, cfg policy.Config, viewer Viewer) bool {
	if !cfg.Enabled {
		return true
	}
	switch el.ModerationStatus {
	case element.StatusApproved, element.StatusUnmoderated:
		return true
	case element.StatusPending:
		return viewer.IsModerator || (viewer.ID != "" && viewer.ID == el.AuthorID)
	case element.StatusFlagged, element.StatusRejected:
		return viewer.IsModerator
	default:
		return false
	}
}

// BadgeFor returns the marker a visible element carries for viewer.
func BadgeFor(el element.Element, cfg policy.Config, viewer Viewer) Badge {
	if !cfg.Enabled || !IsVisible(el, cfg, viewer) {
		return BadgeNone
	}
	switch el.ModerationStatus {
	case element.StatusPending:
		return BadgePendingReview
	case element.StatusFlagged:
		return BadgeFlagged
	case element.StatusRejected:
		return BadgeRejected
	case element.StatusApproved, element.StatusUnmoderated:
		return BadgeNone
	default:
		return BadgeNone
	}
}

// VisibleTo filters a z-ordered element list for one viewer.
func VisibleTo(elements []element.Element, cfg policy.Config, viewer Viewer) []element.Element {
	out := make([]element.Element, 0, len(elements))
	for _, el := range elements {
		if IsVisible(el, cfg, viewer) {
			out = append(out, el)
		}
	}
	return out
}
