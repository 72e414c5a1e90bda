package types

import (
	"bytes"
	"encoding/json"
)

// Document is an ordered JSON object used for schemaless provenance,
// layout fragments, and version change manifests. A plain
// map[string]interface{} does not preserve key insertion order when
// re-marshaled, so provenance and manifest builders append through
// Set instead of constructing map literals.
type Document struct {
	keys   []string
	values map[string]interface{}
}

// NewDocument returns an empty ordered document.
func NewDocument() *Document {
	return &Document{values: make(map[string]interface{})}
}

// Set assigns key to value, preserving first-seen key order.
func (d *Document) Set(key string, value interface{}) *Document {
	if d.values == nil {
		d.values = make(map[string]interface{})
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
	return d
}

// Get returns the value for key and whether it was present.
func (d *Document) Get(key string) (interface{}, bool) {
	v, ok := d.values[key]
	return v, ok
}

// MarshalJSON renders the document as a JSON object in insertion order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON populates the document from a JSON object, preserving
// the order keys appear in the source bytes.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &json.UnmarshalTypeError{Value: "non-object", Type: nil}
	}
	d.keys = nil
	d.values = make(map[string]interface{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var val interface{}
		if err := dec.Decode(&val); err != nil {
			return err
		}
		d.Set(key, val)
	}
	return nil
}

// Keys returns the document's keys in insertion order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}
