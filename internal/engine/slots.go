package engine

import (
	"regexp"
	"strings"

	"github.com/supertedai/memgate/internal/store"
)

// slot is a recognized key-like assertion inside free text, e.g.
// "my name is Morten" -> {user_name, Morten}. Slots drive the fast
// contradiction check and give promoted chunks a stable fact key.
type slot struct {
	Key      string
	Value    string
	FactType string
}

type slotPattern struct {
	re       *regexp.Regexp
	key      string
	factType string
}

var slotPatterns = []slotPattern{
	{regexp.MustCompile(`(?i)\b(?:my|your|the user'?s?) name is ([A-Za-z][\w-]*)`), "user_name", store.FactIdentity},
	{regexp.MustCompile(`(?i)\bcall me ([A-Za-z][\w-]*)`), "user_name", store.FactIdentity},
	{regexp.MustCompile(`(?i)\bi(?:'| a)m called ([A-Za-z][\w-]*)`), "user_name", store.FactIdentity},
	{regexp.MustCompile(`(?i)\b(?:i|you) live in ([A-Za-z][\w -]*\w)`), "user_location", store.FactIdentity},
	{regexp.MustCompile(`(?i)\b(?:i|you) work (?:at|for) ([A-Za-z][\w -]*\w)`), "user_employer", store.FactIdentity},
	{regexp.MustCompile(`(?i)\b(?:i|you) work as an? ([A-Za-z][\w -]*\w)`), "user_occupation", store.FactIdentity},
	{regexp.MustCompile(`(?i)\bmy (?:wife|husband|partner)(?:'s name)? is ([A-Za-z][\w-]*)`), "partner_name", store.FactRelationship},
	{regexp.MustCompile(`(?i)\bmy birthday is ([\w ]+\w)`), "user_birthday", store.FactIdentity},
	{regexp.MustCompile(`(?i)\bmy favou?rite (\w+) is ([A-Za-z][\w -]*\w)`), "", store.FactPreference},
}

// extractSlots scans text for slot assertions. The favourite-X pattern
// derives its key from the captured category ("favorite_color").
func extractSlots(text string) []slot {
	var slots []slot
	for _, p := range slotPatterns {
		matches := p.re.FindAllStringSubmatch(text, -1)
		for _, m := range matches {
			s := slot{Key: p.key, FactType: p.factType}
			if p.key == "" && len(m) > 2 {
				s.Key = "favorite_" + strings.ToLower(m[1])
				s.Value = strings.TrimSpace(m[2])
			} else {
				s.Value = strings.TrimSpace(m[1])
			}
			if s.Value != "" {
				slots = append(slots, s)
			}
		}
	}
	return slots
}

// slotsConflict reports whether two slot sets assert different values for
// the same key. Returns the conflicting key.
func slotsConflict(a, b []slot) (string, bool) {
	for _, sa := range a {
		for _, sb := range b {
			if sa.Key == sb.Key && !strings.EqualFold(sa.Value, sb.Value) {
				return sa.Key, true
			}
		}
	}
	return "", false
}

var smallTalkPhrases = []string{
	"hi", "hey", "hello", "yo", "howdy",
	"good morning", "good afternoon", "good evening", "good night",
	"how are you", "how's it going", "what's up", "sup",
	"thanks", "thank you", "ok", "okay", "cool", "nice", "great",
	"bye", "goodbye", "see you", "later",
}

// isSmallTalk detects greetings and pleasantries. Small talk never triggers
// enforcement: dumping stored facts into a reply to "hello" is exactly the
// failure mode the guard exists to prevent.
func isSmallTalk(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.Trim(t, ".!?,")
	if t == "" {
		return true
	}
	if len(t) > 40 {
		return false
	}
	for _, phrase := range smallTalkPhrases {
		if t == phrase || strings.HasPrefix(t, phrase+" ") || strings.HasPrefix(t, phrase+",") {
			return true
		}
	}
	return false
}
