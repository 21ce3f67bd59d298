package playbook

import (
	"encoding/json"
	"strings"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// OpType identifies a delta operation variant.
type OpType string

const (
	OpAdd    OpType = "ADD"
	OpUpdate OpType = "UPDATE"
	OpTag    OpType = "TAG"
	OpRemove OpType = "REMOVE"
)

// DeltaOperation is one proposed edit. The JSON shape matches what the
// curator prompt asks the model to emit; models sometimes express counter
// increments as a metadata object instead of a tag/amount pair, so both
// forms are accepted.
type DeltaOperation struct {
	Type     OpType         `json:"type"`
	Section  string         `json:"section,omitempty"`
	Content  string         `json:"content,omitempty"`
	BulletID string         `json:"bullet_id,omitempty"`
	Tag      Tag            `json:"tag,omitempty"`
	Amount   int            `json:"amount,omitempty"`
	Metadata map[string]int `json:"metadata,omitempty"`
}

// DeltaBatch is an ordered sequence of operations produced by one curator
// invocation and applied as a unit.
type DeltaBatch struct {
	Reasoning  string           `json:"reasoning,omitempty"`
	Operations []DeltaOperation `json:"operations"`
}

// AddOp builds an ADD operation.
func AddOp(section, content string) DeltaOperation {
	return DeltaOperation{Type: OpAdd, Section: section, Content: content}
}

// UpdateOp builds an UPDATE operation.
func UpdateOp(bulletID, content string) DeltaOperation {
	return DeltaOperation{Type: OpUpdate, BulletID: bulletID, Content: content}
}

// TagOp builds a TAG operation with the default amount of 1.
func TagOp(bulletID string, tag Tag) DeltaOperation {
	return DeltaOperation{Type: OpTag, BulletID: bulletID, Tag: tag, Amount: 1}
}

// RemoveOp builds a REMOVE operation.
func RemoveOp(bulletID string) DeltaOperation {
	return DeltaOperation{Type: OpRemove, BulletID: bulletID}
}

// normalize canonicalizes an operation decoded from model output: the type
// is upcased, a missing TAG amount becomes the default 1, and a metadata
// counter object on a TAG without an explicit tag is preserved for the
// merger to expand.
func (op *DeltaOperation) normalize() error {
	op.Type = OpType(strings.ToUpper(strings.TrimSpace(string(op.Type))))
	switch op.Type {
	case OpAdd, OpUpdate, OpTag, OpRemove:
	default:
		return errors.WithFields(
			errors.New(errors.InvalidInput, "unknown delta operation type"),
			errors.Fields{"type": string(op.Type)})
	}
	if op.Tag != "" {
		tag, ok := ParseTag(string(op.Tag))
		if !ok {
			return errors.WithFields(
				errors.New(errors.InvalidInput, "unknown bullet tag"),
				errors.Fields{"tag": string(op.Tag)})
		}
		op.Tag = tag
	}
	if op.Type == OpTag && op.Tag != "" && op.Amount == 0 {
		op.Amount = 1
	}
	return nil
}

// ParseDeltaBatch decodes a curator response object into a DeltaBatch and
// normalizes every operation. The input is the generic JSON object the LLM
// produced.
func ParseDeltaBatch(data map[string]any) (*DeltaBatch, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "failed to re-encode curator output")
	}
	var batch DeltaBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "curator output does not match the delta schema")
	}
	for i := range batch.Operations {
		if err := batch.Operations[i].normalize(); err != nil {
			return nil, err
		}
	}
	return &batch, nil
}

type counterIncrement struct {
	tag    Tag
	amount int
}

// counterIncrements expands a TAG operation into (tag, amount) pairs. An
// explicit tag wins; otherwise the metadata counter object is used. Negative
// amounts pass through so the merger can report them as anomalies.
func (op *DeltaOperation) counterIncrements() []counterIncrement {
	if op.Tag != "" {
		amount := op.Amount
		if amount == 0 {
			amount = 1
		}
		return []counterIncrement{{op.Tag, amount}}
	}
	var out []counterIncrement
	for _, tag := range []Tag{TagHelpful, TagHarmful, TagNeutral} {
		if amount, ok := op.Metadata[string(tag)]; ok && amount != 0 {
			out = append(out, counterIncrement{tag, amount})
		}
	}
	return out
}
