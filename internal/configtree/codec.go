package configtree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotDocument is returned when a file does not hold a top-level mapping.
var ErrNotDocument = errors.New("document is not a mapping")

// FromNode converts a decoded YAML node into tree values: mappings become
// *Map, sequences []any, scalars their natural Go type.
func FromNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return FromNode(n.Content[0])
	case yaml.AliasNode:
		return FromNode(n.Alias)
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping key must be a scalar", k.Line)
			}
			val, err := FromNode(v)
			if err != nil {
				return nil, err
			}
			m.Set(k.Value, val)
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := FromNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	case 0:
		return nil, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind %d", n.Line, n.Kind)
	}
}

// ToNode converts a tree value back into a YAML node.
func ToNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case *Map:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range t.keys {
			vn, err := ToNode(t.vals[k])
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, vn)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range t {
			en, err := ToNode(e)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, en)
		}
		return n, nil
	case float64:
		if !math.IsInf(t, 0) && !math.IsNaN(t) {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: floatLiteral(strconv.FormatFloat(t, 'g', -1, 64))}, nil
		}
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, err
		}
		return n, nil
	default:
		n := &yaml.Node{}
		if err := n.Encode(v); err != nil {
			return nil, err
		}
		return n, nil
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *Map) UnmarshalYAML(n *yaml.Node) error {
	v, err := FromNode(n)
	if err != nil {
		return err
	}
	decoded, ok := v.(*Map)
	if !ok {
		return fmt.Errorf("line %d: %w", n.Line, ErrNotDocument)
	}
	*m = *decoded
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (m *Map) MarshalYAML() (any, error) {
	return ToNode(m)
}

// MarshalJSON writes keys in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := encodeJSON(m.vals[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeJSON is json.Marshal except that floats always carry a decimal
// point, so 1.0 in a document is written back as 1.0 and not as the int 1.
func encodeJSON(v any) ([]byte, error) {
	switch t := v.(type) {
	case *Map:
		return t.MarshalJSON()
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			eb, err := encodeJSON(e)
			if err != nil {
				return nil, err
			}
			buf.Write(eb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case float64:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return []byte(floatLiteral(string(b))), nil
	default:
		return json.Marshal(v)
	}
}

func floatLiteral(s string) string {
	if strings.ContainsAny(s, ".eE") {
		return s
	}
	return s + ".0"
}

// ExtraFields decodes the mapping node n and returns the keys not listed in
// known, in document order. It returns nil when there are none.
func ExtraFields(n *yaml.Node, known ...string) (*Map, error) {
	var m Map
	if err := n.Decode(&m); err != nil {
		return nil, err
	}
	extra := m.Without(known...)
	if extra.Len() == 0 {
		return nil, nil
	}
	return extra, nil
}

// AppendJSONFields adds the entries of extra to the encoded JSON object obj.
func AppendJSONFields(obj []byte, extra *Map) ([]byte, error) {
	if extra.Len() == 0 {
		return obj, nil
	}
	obj = bytes.TrimSpace(obj)
	if len(obj) < 2 || obj[0] != '{' || obj[len(obj)-1] != '}' {
		return nil, fmt.Errorf("append fields: %w", ErrNotDocument)
	}
	eb, err := extra.MarshalJSON()
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), obj[:len(obj)-1]...)
	if len(bytes.TrimSpace(out)) > 1 {
		out = append(out, ',')
	}
	out = append(out, eb[1:]...)
	return out, nil
}

// Parse decodes a JSON or YAML document into a tree.
func Parse(data []byte) (*Tree, error) {
	var n yaml.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	v, err := FromNode(&n)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*Map)
	if !ok {
		return nil, ErrNotDocument
	}
	return FromMap(m), nil
}

// Load reads and parses the document at path.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

// Marshal encodes the tree as indented JSON, or YAML when asYAML is set.
func (t *Tree) Marshal(asYAML bool) ([]byte, error) {
	if asYAML {
		n, err := ToNode(t.root)
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(n)
	}
	data, err := json.MarshalIndent(t.root, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteFile writes the tree to path, creating parent directories. Files with
// a .yaml or .yml extension are written as YAML, everything else as JSON.
func (t *Tree) WriteFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	data, err := t.Marshal(ext == ".yaml" || ext == ".yml")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
