package chat

import "strings"

type Intent string

const (
	IntentSearch      Intent = "search"
	IntentConnections Intent = "connections"
	IntentOverview    Intent = "overview"
	IntentAsk         Intent = "ask"
)

// Route picks the handler for a user message. Rules are checked in order,
// by substring.
func Route(text string) Intent {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "search", "find"):
		return IntentSearch
	case containsAny(lower, "connect", "link", "relate"):
		return IntentConnections
	case containsAny(lower, "summary", "overview"):
		return IntentOverview
	default:
		return IntentAsk
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var searchFillers = map[string]struct{}{
	"search": {}, "find": {}, "for": {}, "about": {}, "what": {},
	"where": {}, "when": {}, "how": {}, "me": {}, "pages": {}, "page": {},
}

// searchTerms drops the routing keywords and filler words from a search
// request.
func searchTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '?' || r == '!' || r == ',' || r == '.'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := searchFillers[f]; skip {
			continue
		}
		out = append(out, f)
	}
	return out
}
