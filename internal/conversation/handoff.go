package conversation

import "strings"

// handoffPhrases are matched as plain substrings of the lowercased message.
// Short words such as "staff" also match unrelated sentences; that coarseness is accepted.
var handoffPhrases = []string{
	"human",
	"agent",
	"representative",
	"real person",
	"live person",
	"talk to someone",
	"speak to someone",
	"talk to a person",
	"speak to a person",
	"live chat",
	"customer service",
	"customer support",
	"support team",
	"staff",
	"operator",
}

// Classifier detects requests to be connected to a person.
type Classifier struct {
	phrases []string
}

// NewClassifier builds a classifier. With no phrases the built-in set is used.
func NewClassifier(phrases ...string) *Classifier {
	if len(phrases) == 0 {
		phrases = handoffPhrases
	}
	normalised := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			normalised = append(normalised, p)
		}
	}
	return &Classifier{phrases: normalised}
}

// IsHandoff reports whether message asks for a person.
func (c *Classifier) IsHandoff(message string) bool {
	_, ok := c.Match(message)
	return ok
}

// Match returns the first phrase found in message.
func (c *Classifier) Match(message string) (string, bool) {
	normalised := strings.ToLower(strings.TrimSpace(message))
	if normalised == "" {
		return "", false
	}
	for _, phrase := range c.phrases {
		if strings.Contains(normalised, phrase) {
			return phrase, true
		}
	}
	return "", false
}
