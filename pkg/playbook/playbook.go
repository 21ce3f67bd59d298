package playbook

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EmptyPrompt is what AsPrompt renders when the playbook has no bullets.
const EmptyPrompt = "(empty playbook)"

// Playbook holds ordered sections of strategy bullets. Reads take the read
// lock and return copies; all mutation flows through a Merger, which holds
// the write lock for a whole delta batch so readers never observe a
// partially applied one.
type Playbook struct {
	mu sync.RWMutex

	sectionOrder []string
	sections     map[string][]*Bullet
	byID         map[string]*Bullet

	// nextSeq only ever increments, so removed ids are never reused. It is
	// persisted alongside the bullets.
	nextSeq int
}

// Stats summarizes the playbook for prompts and maintenance decisions.
type Stats struct {
	SectionCount int `json:"sections"`
	BulletCount  int `json:"bullets"`
	Helpful      int `json:"helpful"`
	Harmful      int `json:"harmful"`
	Neutral      int `json:"neutral"`
}

// New creates an empty playbook.
func New() *Playbook {
	return &Playbook{
		sections: make(map[string][]*Bullet),
		byID:     make(map[string]*Bullet),
		nextSeq:  1,
	}
}

// Get returns a copy of the bullet with the given id. The second return is
// false when the id is absent; absence is a typed result, not an error.
func (p *Playbook) Get(id string) (Bullet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.byID[id]
	if !ok {
		return Bullet{}, false
	}
	return b.clone(), true
}

// List returns copies of all bullets in stable order: section insertion
// order, then bullet insertion order within each section.
func (p *Playbook) List() []Bullet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.listLocked()
}

func (p *Playbook) listLocked() []Bullet {
	out := make([]Bullet, 0, len(p.byID))
	for _, name := range p.sectionOrder {
		for _, b := range p.sections[name] {
			out = append(out, b.clone())
		}
	}
	return out
}

// Sections returns section names in insertion order.
func (p *Playbook) Sections() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.sectionOrder))
	copy(out, p.sectionOrder)
	return out
}

// Section returns copies of one section's bullets in insertion order.
func (p *Playbook) Section(name string) []Bullet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	bullets := p.sections[name]
	out := make([]Bullet, 0, len(bullets))
	for _, b := range bullets {
		out = append(out, b.clone())
	}
	return out
}

// Len returns the total bullet count.
func (p *Playbook) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}

// Stats returns section/bullet counts and counter totals.
func (p *Playbook) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.statsLocked()
}

func (p *Playbook) statsLocked() Stats {
	s := Stats{BulletCount: len(p.byID)}
	for _, name := range p.sectionOrder {
		if len(p.sections[name]) > 0 {
			s.SectionCount++
		}
	}
	for _, b := range p.byID {
		s.Helpful += b.Helpful
		s.Harmful += b.Harmful
		s.Neutral += b.Neutral
	}
	return s
}

var sectionTitle = cases.Title(language.English)

// AsPrompt renders the playbook as markdown for inclusion in role prompts.
func (p *Playbook) AsPrompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.promptLocked()
}

func (p *Playbook) promptLocked() string {
	if len(p.byID) == 0 {
		return EmptyPrompt
	}
	var sb strings.Builder
	for i, name := range p.sectionOrder {
		if len(p.sections[name]) == 0 {
			continue
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "## %s\n", sectionTitle.String(name))
		for _, b := range p.sections[name] {
			sb.WriteString("- " + b.String() + "\n")
		}
	}
	return sb.String()
}

// Snapshot is a consistent point-in-time copy of the playbook for concurrent
// readers: the roles work from snapshots so no LLM call ever runs under the
// store's lock.
type Snapshot struct {
	Bullets []Bullet
	Stats   Stats
	Prompt  string

	byID map[string]int
}

// Snapshot captures bullets, stats, and the rendered prompt under one read
// lock acquisition.
func (p *Playbook) Snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := &Snapshot{
		Bullets: p.listLocked(),
		Stats:   p.statsLocked(),
		Prompt:  p.promptLocked(),
	}
	s.byID = make(map[string]int, len(s.Bullets))
	for i, b := range s.Bullets {
		s.byID[b.ID] = i
	}
	return s
}

// Get returns the snapshot's copy of a bullet.
func (s *Snapshot) Get(id string) (Bullet, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Bullet{}, false
	}
	return s.Bullets[i], true
}

// Excerpt renders the cited bullets, deduplicated, as "[id] content" lines.
// Unknown ids are skipped.
func (s *Snapshot) Excerpt(ids []string) string {
	var lines []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if b, ok := s.Get(id); ok {
			seen[id] = true
			lines = append(lines, fmt.Sprintf("[%s] %s", b.ID, b.Content))
		}
	}
	return strings.Join(lines, "\n")
}

// slugify turns a section name into the id prefix: lowercase letters and
// digits, runs of anything else collapsed to a single dash.
func slugify(section string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(section)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
		} else if !dash && sb.Len() > 0 {
			sb.WriteRune('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(sb.String(), "-")
	if out == "" {
		return "general"
	}
	return out
}

// The mutators below assume the caller holds p.mu; the Merger is the only
// caller, which is what keeps merges deterministic.

func (p *Playbook) addLocked(section, content string, counters Counters, metadata map[string]any) *Bullet {
	if section == "" {
		section = "general"
	}
	id := fmt.Sprintf("%s-%05d", slugify(section), p.nextSeq)
	p.nextSeq++

	now := time.Now().UTC()
	b := &Bullet{
		ID:        id,
		Section:   section,
		Content:   content,
		Helpful:   counters.Helpful,
		Harmful:   counters.Harmful,
		Neutral:   counters.Neutral,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, ok := p.sections[section]; !ok {
		p.sectionOrder = append(p.sectionOrder, section)
	}
	p.sections[section] = append(p.sections[section], b)
	p.byID[id] = b
	return b
}

func (p *Playbook) updateLocked(id, content string) bool {
	b, ok := p.byID[id]
	if !ok {
		return false
	}
	b.Content = content
	b.UpdatedAt = time.Now().UTC()
	return true
}

func (p *Playbook) tagLocked(id string, tag Tag, amount int) bool {
	b, ok := p.byID[id]
	if !ok {
		return false
	}
	switch tag {
	case TagHelpful:
		b.Helpful += amount
	case TagHarmful:
		b.Harmful += amount
	case TagNeutral:
		b.Neutral += amount
	default:
		return false
	}
	b.UpdatedAt = time.Now().UTC()
	return true
}

func (p *Playbook) removeLocked(id string) bool {
	b, ok := p.byID[id]
	if !ok {
		return false
	}
	delete(p.byID, id)
	bullets := p.sections[b.Section]
	for i, candidate := range bullets {
		if candidate.ID == id {
			p.sections[b.Section] = append(bullets[:i], bullets[i+1:]...)
			break
		}
	}
	return true
}
