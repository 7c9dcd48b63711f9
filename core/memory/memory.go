// Package memory keeps a long-term log of conversation turns and a small
// user profile in Redis, and retrieves the parts relevant to a new query.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPrefix          = "levial"
	DefaultMaxInteractions = 500
	DefaultResults         = 3
)

var ErrInvalidInteraction = errors.New("interaction needs a role and text")

type Interaction struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RedisStore stores interactions newest first in a capped list and the
// profile as a hash.
type RedisStore struct {
	client          *redis.Client
	prefix          string
	maxInteractions int
	results         int
}

type RedisOption func(*RedisStore)

func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithMaxInteractions caps the interaction log; older entries are trimmed.
func WithMaxInteractions(max int) RedisOption {
	return func(s *RedisStore) {
		if max > 0 {
			s.maxInteractions = max
		}
	}
}

// WithResults sets how many past interactions RelevantContext returns.
func WithResults(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.results = n
		}
	}
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client:          client,
		prefix:          DefaultPrefix,
		maxInteractions: DefaultMaxInteractions,
		results:         DefaultResults,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) AddInteraction(ctx context.Context, role, text string) error {
	text = strings.TrimSpace(text)
	if role == "" || text == "" {
		return ErrInvalidInteraction
	}

	data, err := json.Marshal(Interaction{Role: role, Text: text, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal interaction: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.interactionsKey(), data)
	pipe.LTrim(ctx, s.interactionsKey(), 0, int64(s.maxInteractions-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Interactions returns the stored interactions, newest first.
func (s *RedisStore) Interactions(ctx context.Context) ([]Interaction, error) {
	values, err := s.client.LRange(ctx, s.interactionsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	interactions := make([]Interaction, 0, len(values))
	for _, value := range values {
		var interaction Interaction
		if err := json.Unmarshal([]byte(value), &interaction); err != nil {
			logger.Warn("skipping malformed interaction", "error", err)
			continue
		}
		interactions = append(interactions, interaction)
	}
	return interactions, nil
}

func (s *RedisStore) SetProfileField(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.profileKey(), key, value).Err(); err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

// Profile returns the user profile; an empty profile defaults to the name
// "User".
func (s *RedisStore) Profile(ctx context.Context) (map[string]string, error) {
	profile, err := s.client.HGetAll(ctx, s.profileKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if _, ok := profile["name"]; !ok {
		profile["name"] = "User"
	}
	return profile, nil
}

// RelevantContext renders the profile followed by the past interactions that
// share the most words with query.
func (s *RedisStore) RelevantContext(ctx context.Context, query string) (string, error) {
	ctx, span := tracer.Start(ctx, "relevant context")
	defer span.End()

	profile, err := s.Profile(ctx)
	if err != nil {
		return "", err
	}
	interactions, err := s.Interactions(ctx)
	if err != nil {
		return "", err
	}
	relevant := rank(query, interactions, s.results)
	span.SetAttributes(attribute.Int("memory.candidates", len(interactions)), attribute.Int("memory.results", len(relevant)))

	var b strings.Builder
	b.WriteString("User Profile: ")
	for i, key := range slices.Sorted(maps.Keys(profile)) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%s", key, profile[key])
	}
	if len(relevant) > 0 {
		b.WriteString("\nRelevant Past Conversations:")
		for _, interaction := range relevant {
			fmt.Fprintf(&b, "\n- %s: %s", interaction.Role, interaction.Text)
		}
	}
	return b.String(), nil
}

// rank orders interactions by the number of distinct query words they share,
// newest first on ties, and drops those sharing none.
func rank(query string, interactions []Interaction, limit int) []Interaction {
	queryWords := words(query)
	if len(queryWords) == 0 {
		return nil
	}

	type scored struct {
		interaction Interaction
		score       int
		index       int
	}
	var candidates []scored
	for i, interaction := range interactions {
		score := 0
		for word := range words(interaction.Text) {
			if _, ok := queryWords[word]; ok {
				score++
			}
		}
		if score > 0 {
			candidates = append(candidates, scored{interaction: interaction, score: score, index: i})
		}
	}
	slices.SortFunc(candidates, func(a, b scored) int {
		return cmp.Or(cmp.Compare(b.score, a.score), cmp.Compare(a.index, b.index))
	})

	result := make([]Interaction, 0, min(limit, len(candidates)))
	for _, candidate := range candidates[:min(limit, len(candidates))] {
		result = append(result, candidate.interaction)
	}
	return result
}

func words(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if len(field) > 2 {
			set[field] = struct{}{}
		}
	}
	return set
}

func (s *RedisStore) interactionsKey() string { return s.prefix + ":interactions" }
func (s *RedisStore) profileKey() string      { return s.prefix + ":profile" }
