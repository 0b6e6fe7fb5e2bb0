package catalog

import (
	"encoding/json"
	"fmt"
	"sync"
)

// LeafRecord is the durable form of a leaf. Live handles never go in here;
// they are rebuilt by Attach after loading.
type LeafRecord struct {
	Type    LeafType        `json:"type"`
	Name    string          `json:"name"`
	Key     string          `json:"key"`
	Aliases []string        `json:"aliases,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Durable leaves can be written to the source cache.
type Durable interface {
	Record() (LeafRecord, error)
}

// DecodeFunc rebuilds a leaf from its record.
type DecodeFunc func(rec LeafRecord) (Leaf, error)

// Codecs maps leaf types to decoders.
type Codecs struct {
	mu       sync.RWMutex
	decoders map[LeafType]DecodeFunc
}

// NewCodecs creates an empty codec table.
func NewCodecs() *Codecs {
	return &Codecs{decoders: make(map[LeafType]DecodeFunc)}
}

// Register installs the decoder for typ.
func (c *Codecs) Register(typ LeafType, fn DecodeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoders[typ] = fn
}

// Encode turns leaves into records. It fails on the first leaf that is not
// Durable, since a partial snapshot would silently lose items.
func (c *Codecs) Encode(leaves []Leaf) ([]LeafRecord, error) {
	records := make([]LeafRecord, 0, len(leaves))
	for _, leaf := range leaves {
		d, ok := leaf.(Durable)
		if !ok {
			return nil, fmt.Errorf("leaf %q of type %q is not durable", leaf.Name(), leaf.Type())
		}
		rec, err := d.Record()
		if err != nil {
			return nil, fmt.Errorf("encode leaf %q: %w", leaf.Name(), err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Decode rebuilds leaves from records.
func (c *Codecs) Decode(records []LeafRecord) ([]Leaf, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	leaves := make([]Leaf, 0, len(records))
	for _, rec := range records {
		fn, ok := c.decoders[rec.Type]
		if !ok {
			return nil, fmt.Errorf("no decoder for leaf type %q", rec.Type)
		}
		leaf, err := fn(rec)
		if err != nil {
			return nil, fmt.Errorf("decode leaf %q: %w", rec.Name, err)
		}
		if b, ok := leaf.(interface{ AddAlias(string) }); ok {
			for _, alias := range rec.Aliases {
				b.AddAlias(alias)
			}
		}
		leaves = append(leaves, leaf)
	}
	return leaves, nil
}

// RecordOf builds the common part of a record for l, marshaling data.
func RecordOf(l Leaf, data any) (LeafRecord, error) {
	rec := LeafRecord{
		Type:    l.Type(),
		Name:    l.Name(),
		Key:     l.Key(),
		Aliases: l.Aliases(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return LeafRecord{}, err
		}
		rec.Data = raw
	}
	return rec, nil
}
