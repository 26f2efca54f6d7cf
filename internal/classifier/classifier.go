// Package classifier assigns free-text messages to software engineering
// topics by keyword and pattern scoring.
package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/liliang-cn/ragmentor/internal/domain"
)

//go:embed topics.yaml
var defaultTopics []byte

const (
	patternWeight  = 10
	keywordWeight  = 1
	priorityFactor = 0.1

	defaultSuggestionLimit = 5
)

// Topic is one entry of the topic table
type Topic struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Patterns    []string `yaml:"patterns"`
	Priority    int      `yaml:"priority"`

	compiled []*regexp.Regexp
}

// TopicSummary is the listing view of a topic
type TopicSummary struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	KeywordsCount int    `json:"keywords_count"`
	PatternsCount int    `json:"patterns_count"`
}

// TopicDetails is the full view of a topic
type TopicDetails struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Patterns    []string `json:"patterns"`
	Priority    int      `json:"priority"`
}

// Classifier scores messages against a fixed topic table. It is safe for
// concurrent use; the table is read-only after construction.
type Classifier struct {
	topics []Topic
	logger *zap.Logger
}

// New builds a classifier from topics, ordered by descending priority.
// Names must be unique and every pattern must compile.
func New(topics []Topic, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := make(map[string]struct{}, len(topics))
	table := make([]Topic, 0, len(topics))
	for _, t := range topics {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("topic without a name")
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("duplicate topic %q", t.Name)
		}
		seen[t.Name] = struct{}{}

		t.compiled = make([]*regexp.Regexp, 0, len(t.Patterns))
		for _, p := range t.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("topic %q: invalid pattern %q: %w", t.Name, p, err)
			}
			t.compiled = append(t.compiled, re)
		}
		table = append(table, t)
	}

	sort.SliceStable(table, func(i, j int) bool {
		return table[i].Priority > table[j].Priority
	})

	logger.Info("topic classifier initialized", zap.Int("topics", len(table)))
	return &Classifier{topics: table, logger: logger}, nil
}

// Default builds a classifier from the built-in topic table
func Default(logger *zap.Logger) (*Classifier, error) {
	return Parse(defaultTopics, logger)
}

// LoadFile builds a classifier from a YAML topic table on disk
func LoadFile(path string, logger *zap.Logger) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic table: %w", err)
	}
	return Parse(data, logger)
}

// Parse builds a classifier from a YAML topic table
func Parse(data []byte, logger *zap.Logger) (*Classifier, error) {
	var topics []Topic
	if err := yaml.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("parse topic table: %w", err)
	}
	return New(topics, logger)
}

// Classify returns the best scoring topic for message and context, or
// domain.OtherTopic when nothing matches.
//
// Every matching pattern adds 10 and every keyword found as a substring
// adds 1. A topic that scored adds priority*0.1. Equal final scores keep
// the first topic in priority order.
func (c *Classifier) Classify(message, context string) string {
	text := strings.ToLower(message + " " + context)

	best := ""
	bestScore := 0.0
	for i := range c.topics {
		t := &c.topics[i]
		score := c.score(t, text)
		if score == 0 {
			continue
		}
		total := float64(score) + float64(t.Priority)*priorityFactor
		if total > bestScore {
			best, bestScore = t.Name, total
		}
	}

	if best == "" {
		c.logger.Debug("no topic matched", zap.String("topic", domain.OtherTopic))
		return domain.OtherTopic
	}
	c.logger.Debug("topic classified", zap.String("topic", best), zap.Float64("score", bestScore))
	return best
}

func (c *Classifier) score(t *Topic, text string) int {
	score := 0
	for _, re := range t.compiled {
		if re.MatchString(text) {
			score += patternWeight
		}
	}
	for _, kw := range t.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			score += keywordWeight
		}
	}
	return score
}

// Suggest returns up to limit topic names having a keyword that contains partial
func (c *Classifier) Suggest(partial string, limit int) []string {
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}
	partial = strings.ToLower(partial)

	suggestions := []string{}
	for _, t := range c.topics {
		if len(suggestions) == limit {
			break
		}
		for _, kw := range t.Keywords {
			if strings.Contains(strings.ToLower(kw), partial) {
				suggestions = append(suggestions, t.Name)
				break
			}
		}
	}
	return suggestions
}

// Topics lists every topic in priority order
func (c *Classifier) Topics() []TopicSummary {
	out := make([]TopicSummary, 0, len(c.topics))
	for _, t := range c.topics {
		out = append(out, TopicSummary{
			Name:          t.Name,
			Description:   t.Description,
			KeywordsCount: len(t.Keywords),
			PatternsCount: len(t.Patterns),
		})
	}
	return out
}

// Names returns the topic names in priority order
func (c *Classifier) Names() []string {
	names := make([]string, 0, len(c.topics))
	for _, t := range c.topics {
		names = append(names, t.Name)
	}
	return names
}

// Details returns the full definition of the named topic
func (c *Classifier) Details(name string) (TopicDetails, bool) {
	for _, t := range c.topics {
		if t.Name == name {
			return TopicDetails{
				Name:        t.Name,
				Description: t.Description,
				Keywords:    append([]string(nil), t.Keywords...),
				Patterns:    append([]string(nil), t.Patterns...),
				Priority:    t.Priority,
			}, true
		}
	}
	return TopicDetails{}, false
}
