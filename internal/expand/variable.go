package expand

import (
	"fmt"

	"github.com/sbenjam1n/gridrun/internal/configtree"
	"gopkg.in/yaml.v3"
)

// Random is the marker value that asks for a freshly drawn seed.
const Random = "RANDOM"

// Variable is one axis of an experiment outline. FieldPath is a dotted path
// or a comma-joined group of paths set together from one composite value.
// Values holds a list for axes that join the cross product; any other value
// (including Random) is withheld and applied to every combination.
type Variable struct {
	Nickname  string `yaml:"nickname,omitempty" json:"nickname,omitempty"`
	FieldPath string `yaml:"fieldPath" json:"fieldPath"`
	Values    any    `yaml:"values" json:"values"`
}

// IsList reports whether the variable contributes an axis to the product.
func (v Variable) IsList() bool {
	_, ok := v.Values.([]any)
	return ok
}

// List returns the variable's value list, or nil for withheld variables.
func (v Variable) List() []any {
	l, _ := v.Values.([]any)
	return l
}

// IsRandom reports whether the variable is the Random marker.
func (v Variable) IsRandom() bool {
	s, ok := v.Values.(string)
	return ok && s == Random
}

// UnmarshalYAML keeps mapping order inside composite values.
func (v *Variable) UnmarshalYAML(n *yaml.Node) error {
	var raw struct {
		Nickname  string    `yaml:"nickname"`
		FieldPath string    `yaml:"fieldPath"`
		Values    yaml.Node `yaml:"values"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	vals, err := configtree.FromNode(&raw.Values)
	if err != nil {
		return fmt.Errorf("variable %q values: %w", raw.FieldPath, err)
	}
	*v = Variable{Nickname: raw.Nickname, FieldPath: raw.FieldPath, Values: vals}
	return nil
}
