package conflict

import (
	"fmt"

	"github.com/ringsideapp/ringside/internal/models"
)

// Presentation helpers for the conflict UI. They describe a conflict and
// carry no state; the formatting here also documents the conflict-type
// taxonomy precisely.

// Summary renders a one-line human description of a conflict.
func Summary(c models.Conflict) string {
	switch c.Type {
	case models.ConflictTypeScore:
		return fmt.Sprintf("Score conflict on entry %d: yours %s, server %s",
			c.EntryID, FormatScore(c.Local), FormatScore(c.Remote))
	case models.ConflictTypeStatus:
		return fmt.Sprintf("Status conflict on entry %d: yours %q, server %q",
			c.EntryID, FormatStatus(c.Local), FormatStatus(c.Remote))
	default:
		return fmt.Sprintf("Entry data conflict on entry %d: your copy and the server copy were edited at nearly the same time",
			c.EntryID)
	}
}

// FormatScore renders the scoring fields of a snapshot for display.
func FormatScore(snapshot map[string]any) string {
	score, hasScore := snapshot["score"]
	faults, hasFaults := snapshot["faults"]
	switch {
	case hasScore && hasFaults:
		return fmt.Sprintf("%v (%v faults)", score, faults)
	case hasScore:
		return fmt.Sprintf("%v", score)
	default:
		return "no score"
	}
}

// FormatStatus renders the progression status of a snapshot for display.
func FormatStatus(snapshot map[string]any) string {
	s, _ := snapshot[models.FieldStatus].(string)
	return models.EntryStatus(s).Label()
}
