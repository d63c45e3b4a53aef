package cleaning

import (
	"strings"

	"datacleanse/pkg/tabular"
)

// Engine suggests per-field replacement values for one row. It must be free
// of side effects; an empty map means no change is suggested. Implementations
// plug in here: Rules is the built-in heuristic engine, a model-backed
// engine would satisfy the same interface.
type Engine interface {
	Suggest(row tabular.Row) map[string]string
}

// Rules is the default heuristic engine.
type Rules struct{}

func NewRules() Rules {
	return Rules{}
}

// Suggest applies the built-in heuristics: name fields that are entirely
// lower or upper case are re-capitalized, and email fields missing a domain
// get a placeholder one appended.
func (Rules) Suggest(row tabular.Row) map[string]string {
	changes := map[string]string{}

	if name, ok := row["name"]; ok && name != "" {
		if name == strings.ToLower(name) || name == strings.ToUpper(name) {
			runes := []rune(name)
			fixed := strings.ToUpper(string(runes[:1])) + strings.ToLower(string(runes[1:]))
			if fixed != name {
				changes["name"] = fixed
			}
		}
	}

	if email, ok := row["email"]; ok && email != "" && !strings.Contains(email, "@") {
		changes["email"] = email + "@example.com"
	}

	return changes
}
