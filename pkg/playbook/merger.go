package playbook

import (
	"context"
	"fmt"
	"sync"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// MergerConfig tunes deduplication and grow-and-refine maintenance.
type MergerConfig struct {
	// MaxBullets is the cap that triggers maintenance after a batch. Zero
	// disables maintenance.
	MaxBullets int
	// PruneMargin: a bullet is prune-eligible when harmful exceeds helpful
	// by more than this margin.
	PruneMargin int
	// MinEvidence: bullets with at least this much total usage are exempt
	// from pruning regardless of their counters.
	MinEvidence int
	// SimilarityThreshold configures the default lexical matcher; ignored
	// when a custom Matcher is supplied.
	SimilarityThreshold float64
}

// DefaultMergerConfig returns the defaults used by the adaptation drivers.
func DefaultMergerConfig() MergerConfig {
	return MergerConfig{
		MaxBullets:          150,
		PruneMargin:         2,
		MinEvidence:         5,
		SimilarityThreshold: DefaultSimilarityThreshold,
	}
}

// Anomaly records a delta operation that referenced a missing bullet or
// carried an invalid argument. Anomalies never abort a batch: the operation
// is skipped and the rest applies.
type Anomaly struct {
	Op       OpType `json:"op"`
	BulletID string `json:"bullet_id,omitempty"`
	Reason   string `json:"reason"`
}

// Err converts the anomaly into a MergeAnomaly-coded error for callers that
// want to surface it.
func (a Anomaly) Err() error {
	return errors.WithFields(
		errors.New(errors.MergeAnomaly, a.Reason),
		errors.Fields{"op": string(a.Op), "bullet_id": a.BulletID})
}

// MergeReport describes the net effect of one applied batch.
type MergeReport struct {
	Added        []string  `json:"added,omitempty"`
	Updated      []string  `json:"updated,omitempty"`
	Tagged       []string  `json:"tagged,omitempty"`
	Removed      []string  `json:"removed,omitempty"`
	Deduplicated []string  `json:"deduplicated,omitempty"`
	Merged       int       `json:"merged,omitempty"`
	Pruned       int       `json:"pruned,omitempty"`
	Anomalies    []Anomaly `json:"anomalies,omitempty"`
}

// Merger applies delta batches to one playbook. Apply is the single
// serialization point for playbook mutation: batches are applied one at a
// time in submission order, and the store's write lock is held for a whole
// batch so concurrent readers see either none or all of it.
type Merger struct {
	pb      *Playbook
	matcher Matcher
	config  MergerConfig

	// Ticket queue: first submitted, first applied. A bare mutex gives
	// exclusion but not ordering.
	queueMu sync.Mutex
	queue   *sync.Cond
	next    uint64
	serving uint64
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

// WithMatcher replaces the default lexical similarity matcher.
func WithMatcher(m Matcher) MergerOption {
	return func(mg *Merger) { mg.matcher = m }
}

// WithMergerConfig replaces the default maintenance configuration.
func WithMergerConfig(cfg MergerConfig) MergerOption {
	return func(mg *Merger) { mg.config = cfg }
}

// NewMerger creates the merger for a playbook. Construct exactly one merger
// per playbook; a second one would break the single-writer guarantee.
func NewMerger(pb *Playbook, opts ...MergerOption) *Merger {
	m := &Merger{
		pb:     pb,
		config: DefaultMergerConfig(),
	}
	m.queue = sync.NewCond(&m.queueMu)
	for _, opt := range opts {
		opt(m)
	}
	if m.matcher == nil {
		m.matcher = NewLexicalMatcher(m.config.SimilarityThreshold)
	}
	return m
}

// Playbook returns the playbook this merger owns mutation for.
func (m *Merger) Playbook() *Playbook {
	return m.pb
}

func (m *Merger) acquire() uint64 {
	m.queueMu.Lock()
	ticket := m.next
	m.next++
	for ticket != m.serving {
		m.queue.Wait()
	}
	m.queueMu.Unlock()
	return ticket
}

func (m *Merger) release() {
	m.queueMu.Lock()
	m.serving++
	m.queue.Broadcast()
	m.queueMu.Unlock()
}

// Apply applies the batch as a single logical transaction and runs
// grow-and-refine maintenance when the playbook exceeds its cap. It returns
// a report of everything that happened, including non-fatal anomalies.
//
// A canceled context prevents the batch from starting; once application has
// begun it always runs to completion, so the playbook is never left between
// states. The merger performs no I/O, so the write lock is held only for
// in-memory work.
func (m *Merger) Apply(ctx context.Context, batch *DeltaBatch) (*MergeReport, error) {
	if batch == nil {
		return nil, errors.New(errors.InvalidInput, "nil delta batch")
	}

	ticket := m.acquire()
	defer m.release()

	if err := errors.CheckContext(ctx, "delta merge"); err != nil {
		return nil, err
	}

	logger := logging.GetLogger()
	report := &MergeReport{}
	touched := make(map[string]bool)

	m.pb.mu.Lock()
	defer m.pb.mu.Unlock()

	for i := range batch.Operations {
		op := &batch.Operations[i]
		switch op.Type {
		case OpAdd:
			m.applyAdd(ctx, op, report, touched)
		case OpUpdate:
			m.applyUpdate(ctx, op, report, touched)
		case OpTag:
			m.applyTag(ctx, op, report, touched)
		case OpRemove:
			m.applyRemove(ctx, op, report, touched)
		default:
			report.Anomalies = append(report.Anomalies, Anomaly{
				Op:     op.Type,
				Reason: fmt.Sprintf("unknown operation type %q", op.Type),
			})
		}
	}

	if m.config.MaxBullets > 0 && len(m.pb.byID) > m.config.MaxBullets {
		m.growAndRefine(ctx, report, touched)
	}

	for _, a := range report.Anomalies {
		logger.Warn(ctx, "merge anomaly: %s (op=%s id=%s)", a.Reason, a.Op, a.BulletID)
	}
	logger.Info(ctx, "merge ticket %d applied: added=%d updated=%d tagged=%d removed=%d deduplicated=%d merged=%d pruned=%d anomalies=%d",
		ticket, len(report.Added), len(report.Updated), len(report.Tagged), len(report.Removed),
		len(report.Deduplicated), report.Merged, report.Pruned, len(report.Anomalies))

	return report, nil
}

func (m *Merger) applyAdd(ctx context.Context, op *DeltaOperation, report *MergeReport, touched map[string]bool) {
	section := op.Section
	if section == "" {
		section = "general"
	}

	// Reproposed content does not create a new bullet; the existing one
	// gains a neutral count instead.
	for _, existing := range m.pb.sections[section] {
		if m.matcher.Match(op.Content, existing.Content) {
			existing.Neutral++
			report.Deduplicated = append(report.Deduplicated, existing.ID)
			touched[existing.ID] = true
			logging.GetLogger().Debug(ctx, "merge ADD deduplicated into %s", existing.ID)
			return
		}
	}

	counters := Counters{}
	for _, inc := range op.counterIncrements() {
		if inc.amount < 0 {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Op:     OpAdd,
				Reason: fmt.Sprintf("negative initial %s count", inc.tag),
			})
			continue
		}
		switch inc.tag {
		case TagHelpful:
			counters.Helpful = inc.amount
		case TagHarmful:
			counters.Harmful = inc.amount
		case TagNeutral:
			counters.Neutral = inc.amount
		}
	}

	b := m.pb.addLocked(section, op.Content, counters, nil)
	report.Added = append(report.Added, b.ID)
	touched[b.ID] = true
	logging.GetLogger().Debug(ctx, "merge ADD %s in section %q", b.ID, section)
}

func (m *Merger) applyUpdate(ctx context.Context, op *DeltaOperation, report *MergeReport, touched map[string]bool) {
	if !m.pb.updateLocked(op.BulletID, op.Content) {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Op:       OpUpdate,
			BulletID: op.BulletID,
			Reason:   "update referenced a missing bullet",
		})
		return
	}
	report.Updated = append(report.Updated, op.BulletID)
	touched[op.BulletID] = true
	logging.GetLogger().Debug(ctx, "merge UPDATE %s", op.BulletID)
}

func (m *Merger) applyTag(ctx context.Context, op *DeltaOperation, report *MergeReport, touched map[string]bool) {
	if _, ok := m.pb.byID[op.BulletID]; !ok {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Op:       OpTag,
			BulletID: op.BulletID,
			Reason:   "tag referenced a missing bullet",
		})
		return
	}

	increments := op.counterIncrements()
	if len(increments) == 0 {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Op:       OpTag,
			BulletID: op.BulletID,
			Reason:   "tag carried no counter increment",
		})
		return
	}

	applied := false
	for _, inc := range increments {
		// Counters only ever increment; a negative amount would let them
		// decrement below zero.
		if inc.amount < 0 {
			report.Anomalies = append(report.Anomalies, Anomaly{
				Op:       OpTag,
				BulletID: op.BulletID,
				Reason:   fmt.Sprintf("negative %s amount", inc.tag),
			})
			continue
		}
		amount := inc.amount
		if amount == 0 {
			amount = 1
		}
		m.pb.tagLocked(op.BulletID, inc.tag, amount)
		applied = true
	}
	if applied {
		report.Tagged = append(report.Tagged, op.BulletID)
		touched[op.BulletID] = true
		logging.GetLogger().Debug(ctx, "merge TAG %s", op.BulletID)
	}
}

func (m *Merger) applyRemove(ctx context.Context, op *DeltaOperation, report *MergeReport, touched map[string]bool) {
	if !m.pb.removeLocked(op.BulletID) {
		report.Anomalies = append(report.Anomalies, Anomaly{
			Op:       OpRemove,
			BulletID: op.BulletID,
			Reason:   "remove referenced a missing bullet",
		})
		return
	}
	report.Removed = append(report.Removed, op.BulletID)
	logging.GetLogger().Debug(ctx, "merge REMOVE %s", op.BulletID)
}

// growAndRefine bounds playbook growth: near-duplicate bullets within each
// section are merged (the earlier bullet survives with summed counters), and
// weakly-evidenced net-harmful bullets are pruned. Bullets touched by the
// batch that triggered maintenance are never removed by it.
func (m *Merger) growAndRefine(ctx context.Context, report *MergeReport, touched map[string]bool) {
	logger := logging.GetLogger()

	for _, section := range m.pb.sectionOrder {
		bullets := m.pb.sections[section]
		for i := 0; i < len(bullets); i++ {
			for j := i + 1; j < len(bullets); j++ {
				later := bullets[j]
				if touched[later.ID] {
					continue
				}
				if !m.matcher.Match(bullets[i].Content, later.Content) {
					continue
				}
				survivor := bullets[i]
				survivor.Helpful += later.Helpful
				survivor.Harmful += later.Harmful
				survivor.Neutral += later.Neutral
				m.pb.removeLocked(later.ID)
				bullets = m.pb.sections[section]
				report.Merged++
				logger.Debug(ctx, "maintenance merged %s into %s", later.ID, survivor.ID)
				j--
			}
		}
	}

	for _, section := range m.pb.sectionOrder {
		bullets := m.pb.sections[section]
		for i := 0; i < len(bullets); i++ {
			b := bullets[i]
			if touched[b.ID] {
				continue
			}
			if b.Harmful > b.Helpful+m.config.PruneMargin && b.TotalUses() < m.config.MinEvidence {
				m.pb.removeLocked(b.ID)
				bullets = m.pb.sections[section]
				report.Pruned++
				logger.Debug(ctx, "maintenance pruned %s (helpful=%d harmful=%d)", b.ID, b.Helpful, b.Harmful)
				i--
			}
		}
	}
}
