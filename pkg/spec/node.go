package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Node is a read-only view of a YAML value that keeps mapping keys in
// declared order. The zero Node represents an absent value.
type Node struct {
	n *yaml.Node
}

// Pair is one key/value entry of a mapping node.
type Pair struct {
	Key   string
	Value Node
}

// wrap unwraps document and alias nodes.
func wrap(n *yaml.Node) Node {
	for depth := 0; n != nil && depth < 32; depth++ {
		switch n.Kind {
		case yaml.AliasNode:
			n = n.Alias
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return Node{}
			}

			n = n.Content[0]
		default:
			return Node{n: n}
		}
	}

	return Node{}
}

// Exists reports whether the value is present in the document.
func (n Node) Exists() bool {
	return n.n != nil
}

// IsNull reports whether the value is absent or an explicit null.
func (n Node) IsNull() bool {
	return n.n == nil || (n.n.Kind == yaml.ScalarNode && n.n.ShortTag() == "!!null")
}

// Present reports whether the value exists and is not null.
func (n Node) Present() bool {
	return !n.IsNull()
}

// IsMap reports whether the value is a mapping.
func (n Node) IsMap() bool {
	return n.n != nil && n.n.Kind == yaml.MappingNode
}

// IsList reports whether the value is a sequence.
func (n Node) IsList() bool {
	return n.n != nil && n.n.Kind == yaml.SequenceNode
}

// Get returns the value stored under key, or the zero Node.
func (n Node) Get(key string) Node {
	if !n.IsMap() {
		return Node{}
	}

	for i := 0; i+1 < len(n.n.Content); i += 2 {
		if n.n.Content[i].Value == key {
			return wrap(n.n.Content[i+1])
		}
	}

	return Node{}
}

// Lookup follows a chain of keys.
func (n Node) Lookup(keys ...string) Node {
	for _, key := range keys {
		n = n.Get(key)
	}

	return n
}

// Pairs returns the entries of a mapping in declared order.
func (n Node) Pairs() []Pair {
	if !n.IsMap() {
		return nil
	}

	pairs := make([]Pair, 0, len(n.n.Content)/2)

	for i := 0; i+1 < len(n.n.Content); i += 2 {
		pairs = append(pairs, Pair{Key: n.n.Content[i].Value, Value: wrap(n.n.Content[i+1])})
	}

	return pairs
}

// Keys returns the keys of a mapping in declared order.
func (n Node) Keys() []string {
	pairs := n.Pairs()
	keys := make([]string, 0, len(pairs))

	for _, p := range pairs {
		keys = append(keys, p.Key)
	}

	return keys
}

// Len returns the number of entries of a mapping or sequence.
func (n Node) Len() int {
	switch {
	case n.IsMap():
		return len(n.n.Content) / 2
	case n.IsList():
		return len(n.n.Content)
	default:
		return 0
	}
}

// Items returns the elements of a sequence.
func (n Node) Items() []Node {
	if !n.IsList() {
		return nil
	}

	items := make([]Node, 0, len(n.n.Content))
	for _, c := range n.n.Content {
		items = append(items, wrap(c))
	}

	return items
}

// Index returns the i-th element of a sequence.
func (n Node) Index(i int) Node {
	if !n.IsList() || i < 0 || i >= len(n.n.Content) {
		return Node{}
	}

	return wrap(n.n.Content[i])
}

// String returns the scalar text of the value, or "" for non-scalars and nulls.
func (n Node) String() string {
	if n.n == nil || n.n.Kind != yaml.ScalarNode || n.IsNull() {
		return ""
	}

	return n.n.Value
}

// Bool returns the value as a boolean; anything but a true scalar is false.
func (n Node) Bool() bool {
	if n.n == nil || n.n.Kind != yaml.ScalarNode {
		return false
	}

	var b bool
	if err := n.n.Decode(&b); err != nil {
		return false
	}

	return b
}

// Line returns the source line of the value, or 0 when absent.
func (n Node) Line() int {
	if n.n == nil {
		return 0
	}

	return n.n.Line
}

// Value converts the node into plain Go values: map[string]any, []any and
// scalars. Mapping order is lost; use MarshalJSON to keep it.
func (n Node) Value() any {
	switch {
	case n.n == nil:
		return nil
	case n.IsMap():
		m := make(map[string]any, n.Len())
		for _, p := range n.Pairs() {
			m[p.Key] = p.Value.Value()
		}

		return m
	case n.IsList():
		items := n.Items()
		list := make([]any, 0, len(items))

		for _, item := range items {
			list = append(list, item.Value())
		}

		return list
	default:
		return n.scalar()
	}
}

func (n Node) scalar() any {
	var v any
	if err := n.n.Decode(&v); err != nil {
		return n.n.Value
	}

	// Keep timestamps as written.
	if _, ok := v.(time.Time); ok {
		return n.n.Value
	}

	return v
}

// MarshalJSON encodes the value as JSON, keeping mapping keys in declared
// order.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encodeJSON(&buf, 0); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// IndentJSON returns the value as indented JSON, or "" when it cannot be
// encoded.
func (n Node) IndentJSON() string {
	raw, err := n.MarshalJSON()
	if err != nil {
		return ""
	}

	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}

	return out.String()
}

const maxJSONDepth = 256

func (n Node) encodeJSON(buf *bytes.Buffer, depth int) error {
	if depth > maxJSONDepth {
		return fmt.Errorf("document nesting exceeds %d levels", maxJSONDepth)
	}

	switch {
	case n.n == nil:
		buf.WriteString("null")
	case n.IsMap():
		buf.WriteByte('{')

		for i, p := range n.Pairs() {
			if i > 0 {
				buf.WriteByte(',')
			}

			key, err := json.Marshal(p.Key)
			if err != nil {
				return err
			}

			buf.Write(key)
			buf.WriteByte(':')

			if err := p.Value.encodeJSON(buf, depth+1); err != nil {
				return err
			}
		}

		buf.WriteByte('}')
	case n.IsList():
		buf.WriteByte('[')

		for i, item := range n.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := item.encodeJSON(buf, depth+1); err != nil {
				return err
			}
		}

		buf.WriteByte(']')
	default:
		raw, err := json.Marshal(n.scalar())
		if err != nil {
			return fmt.Errorf("encoding scalar at line %d: %w", n.n.Line, err)
		}

		buf.Write(raw)
	}

	return nil
}
