package playbook

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// FormatVersion identifies the persisted schema.
const FormatVersion = 1

type playbookDoc struct {
	Version  int          `json:"version"`
	NextSeq  int          `json:"next_seq"`
	Sections []sectionDoc `json:"sections"`
}

type sectionDoc struct {
	Name    string   `json:"name"`
	Bullets []Bullet `json:"bullets"`
}

// Dump serializes the playbook to a JSON document. Section order, bullet
// order, counters, and the id sequence all round-trip exactly.
func (p *Playbook) Dump() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	doc := playbookDoc{Version: FormatVersion, NextSeq: p.nextSeq}
	for _, name := range p.sectionOrder {
		bullets := p.sections[name]
		if len(bullets) == 0 {
			continue
		}
		sec := sectionDoc{Name: name, Bullets: make([]Bullet, 0, len(bullets))}
		for _, b := range bullets {
			sec.Bullets = append(sec.Bullets, b.clone())
		}
		doc.Sections = append(doc.Sections, sec)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.Unknown, "failed to serialize playbook")
	}
	return string(data), nil
}

// Parse reconstructs a playbook from a document produced by Dump.
func Parse(data string) (*Playbook, error) {
	var doc playbookDoc
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "malformed playbook document")
	}

	p := New()
	maxSeq := 0
	for _, sec := range doc.Sections {
		if sec.Name == "" {
			return nil, errors.New(errors.InvalidInput, "playbook document has an unnamed section")
		}
		for i := range sec.Bullets {
			b := sec.Bullets[i]
			if b.ID == "" {
				return nil, errors.WithFields(
					errors.New(errors.InvalidInput, "playbook document has a bullet without an id"),
					errors.Fields{"section": sec.Name})
			}
			if _, dup := p.byID[b.ID]; dup {
				return nil, errors.WithFields(
					errors.New(errors.InvalidInput, "playbook document has a duplicate bullet id"),
					errors.Fields{"id": b.ID})
			}
			if b.Helpful < 0 || b.Harmful < 0 || b.Neutral < 0 {
				return nil, errors.WithFields(
					errors.New(errors.InvalidInput, "playbook document has a negative counter"),
					errors.Fields{"id": b.ID})
			}
			b.Section = sec.Name
			stored := b
			if _, ok := p.sections[sec.Name]; !ok {
				p.sectionOrder = append(p.sectionOrder, sec.Name)
			}
			p.sections[sec.Name] = append(p.sections[sec.Name], &stored)
			p.byID[b.ID] = &stored
			if seq := trailingSeq(b.ID); seq > maxSeq {
				maxSeq = seq
			}
		}
	}

	// The persisted sequence wins as long as it never hands out an id that
	// is already in use.
	p.nextSeq = doc.NextSeq
	if p.nextSeq <= maxSeq {
		p.nextSeq = maxSeq + 1
	}
	if p.nextSeq < 1 {
		p.nextSeq = 1
	}
	return p, nil
}

func trailingSeq(id string) int {
	seq := 0
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) || i == 0 || id[i-1] != '-' {
		return 0
	}
	for _, c := range id[i:] {
		seq = seq*10 + int(c-'0')
	}
	return seq
}

// Save writes the playbook to a file. The write is atomic (temp file +
// rename) under an exclusive advisory lock, so a concurrent Load from
// another process sees either the old document or the new one.
func (p *Playbook) Save(path string) error {
	data, err := p.Dump()
	if err != nil {
		return err
	}

	lock, err := acquireFileLock(path, lockExclusive)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to lock playbook file")
	}
	defer releaseFileLock(lock)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to create playbook directory")
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(data), 0644); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to write playbook file")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.Unknown, "failed to replace playbook file")
	}
	return nil
}

// Load reads a playbook saved by Save. A missing file is a NotFound-coded
// error so callers can distinguish first-run from corruption.
func Load(path string) (*Playbook, error) {
	lock, err := acquireFileLock(path, lockShared)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to lock playbook file")
	}
	defer releaseFileLock(lock)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.WithFields(
			errors.New(errors.NotFound, "playbook file does not exist"),
			errors.Fields{"path": path})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to read playbook file")
	}
	return Parse(string(data))
}
