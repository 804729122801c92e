package script

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/fabula/pkg/locale"
)

// suggestionThreshold is the minimum Jaro-Winkler similarity for an
// unresolved reference to earn a "did you mean" hint.
const suggestionThreshold = 0.80

// Issue is a single problem found by [Validate]. Severity is either
// "error" (the script will misbehave at runtime) or "warning" (suspicious
// but playable).
type Issue struct {
	Severity   string
	DialogueID string
	Message    string
}

// String formats the issue for CLI output.
func (i Issue) String() string {
	if i.DialogueID == "" {
		return fmt.Sprintf("%s: %s", i.Severity, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.DialogueID, i.Message)
}

// Validate checks a library for authoring mistakes: empty dialogues,
// out-of-range phases, holes in the fallback language, and prerequisite
// references to dialogue ids that do not exist. Unresolved references get a
// closest-match suggestion so a typo is a one-glance fix.
//
// Validation never mutates the library. An empty result means the script
// is clean.
func Validate(lib *Library, fallback string) []Issue {
	var issues []Issue

	known := lib.IDs()
	maxPhase := lib.Meta().MaxPhase

	if _, err := lib.PhaseDialogues(); err != nil {
		issues = append(issues, Issue{Severity: "error", Message: err.Error()})
	}

	for _, id := range known {
		d, _ := lib.Dialogue(id)

		if !d.HasLines() {
			issues = append(issues, Issue{Severity: "error", DialogueID: id, Message: "dialogue has no lines"})
		}
		if d.Phase != PhaseNone && (d.Phase < 0 || d.Phase > maxPhase) {
			issues = append(issues, Issue{
				Severity:   "error",
				DialogueID: id,
				Message:    fmt.Sprintf("phase %d out of range (want -1 or 0..%d)", d.Phase, maxPhase),
			})
		}
		if strings.Contains(id, ",") {
			issues = append(issues, Issue{
				Severity:   "error",
				DialogueID: id,
				Message:    "id contains a comma, which the save encoding reserves as delimiter",
			})
		}

		for li, line := range d.Lines {
			if line.ID == "" {
				issues = append(issues, Issue{
					Severity:   "error",
					DialogueID: id,
					Message:    fmt.Sprintf("line %d has no id", li),
				})
			}
			if fallback != "" && !line.Message.Has(locale.Language(fallback)) {
				issues = append(issues, Issue{
					Severity:   "warning",
					DialogueID: id,
					Message:    fmt.Sprintf("line %q has no %s message (players will see %s)", line.ID, fallback, MissingTranslation),
				})
			}
		}

		for _, ref := range d.RequiredDialogues {
			if _, err := lib.Dialogue(ref); err != nil {
				issues = append(issues, Issue{
					Severity:   "error",
					DialogueID: id,
					Message:    unresolvedMessage("required dialogue", ref, known),
				})
			}
		}
	}

	return issues
}

// unresolvedMessage builds the error text for a dangling reference,
// appending the closest known id when one is similar enough.
func unresolvedMessage(kind, ref string, known []string) string {
	msg := fmt.Sprintf("%s %q does not exist", kind, ref)
	if best, ok := closestID(ref, known); ok {
		msg += fmt.Sprintf(" (did you mean %q?)", best)
	}
	return msg
}

// closestID returns the known id most similar to ref by Jaro-Winkler
// distance, provided the score clears [suggestionThreshold].
func closestID(ref string, known []string) (string, bool) {
	var best string
	var bestScore float64
	for _, id := range known {
		if score := matchr.JaroWinkler(ref, id, true); score > bestScore {
			best, bestScore = id, score
		}
	}
	return best, bestScore >= suggestionThreshold
}
