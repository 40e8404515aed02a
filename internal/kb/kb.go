package kb

import "strings"

// Result is one retrieved answer: response text plus metadata about where it
// came from.
type Result struct {
	Text string            `json:"text"`
	Meta map[string]string `json:"meta,omitempty"`
}

type entry struct {
	keywords []string
	topic    string
	text     string
}

// Store is a keyword-matched snippet store. Entries whose keywords appear in
// the query answer directly, letting the session skip the LLM for scripted
// topics.
type Store struct {
	entries []entry
}

// New seeds the store with the scripted dialog rules.
func New() *Store {
	return &Store{entries: []entry{
		{
			keywords: []string{"refund"},
			topic:    "refund_policy",
			text:     "Our refund policy is 30 days no questions asked.",
		},
		{
			keywords: []string{"hello", "hi there"},
			topic:    "greeting",
			text:     "Hello! How can I help you today?",
		},
		{
			keywords: []string{"opening hours", "open"},
			topic:    "hours",
			text:     "We are open Monday through Friday, nine to five.",
		},
	}}
}

// Add registers an extra scripted entry.
func (s *Store) Add(topic, text string, keywords ...string) {
	s.entries = append(s.entries, entry{keywords: keywords, topic: topic, text: text})
}

// Search returns the first entry whose keyword appears in the query. The
// second return is false when nothing matched and the caller should fall
// back to the LLM.
func (s *Store) Search(query string) (Result, bool) {
	q := strings.ToLower(query)
	for _, e := range s.entries {
		for _, kw := range e.keywords {
			if strings.Contains(q, kw) {
				return Result{
					Text: e.text,
					Meta: map[string]string{"topic": e.topic, "source": "scripted"},
				}, true
			}
		}
	}
	return Result{}, false
}
