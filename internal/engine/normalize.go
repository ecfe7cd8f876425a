package engine

import "github.com/vigilstack/vigil-healer/internal/models"

// actionAliases maps the verbs the reasoner is known to emit onto the
// canonical set. Matching is exact and case-sensitive; the prompt only
// weakly constrains the vocabulary, so this table absorbs the drift we
// have actually observed rather than guessing at fuzzier matching.
var actionAliases = map[string]models.Action{
	"scale_out":       models.ActionScaleUp,
	"scale":           models.ActionScaleUp,
	"restart_service": models.ActionRestart,
	"alert":           models.ActionEscalateHuman,
}

// NormalizeAction maps a free-form recommended action onto a canonical
// action. Unknown verbs pass through unchanged and are rejected later by
// the healer, never silently coerced.
func NormalizeAction(action string) models.Action {
	if canonical, ok := actionAliases[action]; ok {
		return canonical
	}
	return models.Action(action)
}
