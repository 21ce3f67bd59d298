// Package playbook implements the strategy store an adapting agent accumulates:
// sections of bullets with usage counters, mutated exclusively through delta
// batches applied by a Merger.
package playbook

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tag classifies how a bullet contributed to one outcome.
type Tag string

const (
	TagHelpful Tag = "helpful"
	TagHarmful Tag = "harmful"
	TagNeutral Tag = "neutral"
)

// ParseTag normalizes a tag string from model output.
func ParseTag(s string) (Tag, bool) {
	switch Tag(strings.ToLower(strings.TrimSpace(s))) {
	case TagHelpful:
		return TagHelpful, true
	case TagHarmful:
		return TagHarmful, true
	case TagNeutral:
		return TagNeutral, true
	default:
		return "", false
	}
}

// Counters holds a bullet's usage counts. All counts are monotonically
// non-negative: tagging only ever increments.
type Counters struct {
	Helpful int `json:"helpful"`
	Harmful int `json:"harmful"`
	Neutral int `json:"neutral"`
}

// Total returns the evidence accumulated across all three counters.
func (c Counters) Total() int {
	return c.Helpful + c.Harmful + c.Neutral
}

// Bullet is a single strategy entry. Bullets are exclusively owned by the
// Playbook that contains them; accessors hand out copies, never aliases.
type Bullet struct {
	ID        string         `json:"id"`
	Section   string         `json:"section"`
	Content   string         `json:"content"`
	Helpful   int            `json:"helpful"`
	Harmful   int            `json:"harmful"`
	Neutral   int            `json:"neutral"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Counters returns the bullet's usage counts.
func (b *Bullet) Counters() Counters {
	return Counters{Helpful: b.Helpful, Harmful: b.Harmful, Neutral: b.Neutral}
}

// TotalUses returns the total number of times this bullet has been tagged.
func (b *Bullet) TotalUses() int {
	return b.Helpful + b.Harmful + b.Neutral
}

// String formats the bullet the way it appears in prompts and logs.
func (b *Bullet) String() string {
	return fmt.Sprintf("[%s] %s (helpful=%d, harmful=%d, neutral=%d)",
		b.ID, b.Content, b.Helpful, b.Harmful, b.Neutral)
}

// ShortCode returns a compact reference for log lines: first letter of the
// section plus the sequence number.
func (b *Bullet) ShortCode() string {
	prefix := "B"
	if b.Section != "" {
		prefix = strings.ToUpper(b.Section[:1])
	}
	var num int
	if i := strings.LastIndex(b.ID, "-"); i != -1 && i < len(b.ID)-1 {
		num, _ = strconv.Atoi(b.ID[i+1:])
	}
	return fmt.Sprintf("%s%03d", prefix, num)
}

// clone returns a deep copy safe to hand outside the store.
func (b *Bullet) clone() Bullet {
	out := *b
	if b.Metadata != nil {
		out.Metadata = make(map[string]any, len(b.Metadata))
		for k, v := range b.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
