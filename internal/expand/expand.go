// Package expand turns experiment variables into concrete model
// configurations: the cross product of every list-valued variable applied to
// a clone of the baseline, plus the withheld variables on every clone.
package expand

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/sbenjam1n/gridrun/internal/configtree"
)

// DefaultComboName names the single combination of an outline that has no
// list-valued variables.
const DefaultComboName = "baseline"

var (
	// ErrCombinationSize means a combination does not assign exactly one value
	// to every list-valued variable.
	ErrCombinationSize = errors.New("combination size mismatch")
	// ErrGroupedValue means a comma-joined field was given a value that is
	// not a mapping keyed by each sub-path.
	ErrGroupedValue = errors.New("grouped field needs a mapping keyed by sub-path")
	// ErrEmptyValues means a list-valued variable has no values to choose.
	ErrEmptyValues = errors.New("variable has an empty value list")
)

// Combination is one element of the cross product.
type Combination struct {
	Name    string
	Indices []int
	Values  []any
}

// Generated is a combination together with its derived configuration.
type Generated struct {
	Combination
	Config *configtree.Tree
}

// Expander applies variables to configurations. Random draws the value
// substituted for RANDOM seed fields.
type Expander struct {
	Random func() uint32
}

// New returns an Expander drawing seeds from math/rand/v2.
func New() *Expander {
	return &Expander{Random: rand.Uint32}
}

// Partition splits variables into list-valued axes and withheld variables,
// both in declaration order.
func Partition(vars []Variable) (list, withheld []Variable) {
	for _, v := range vars {
		if v.IsList() {
			list = append(list, v)
		} else {
			withheld = append(withheld, v)
		}
	}
	return list, withheld
}

// Combinations returns the cross product of the list-valued variables in
// product order: the last declared variable varies fastest. With no
// list-valued variables there is exactly one empty combination.
func Combinations(vars []Variable) ([]Combination, error) {
	list, _ := Partition(vars)
	total := 1
	for _, v := range list {
		n := len(v.List())
		if n == 0 {
			return nil, fmt.Errorf("%w: %s", ErrEmptyValues, v.FieldPath)
		}
		total *= n
	}

	combos := make([]Combination, 0, total)
	idx := make([]int, len(list))
	for c := 0; c < total; c++ {
		combo := Combination{Indices: make([]int, len(list)), Values: make([]any, len(list))}
		copy(combo.Indices, idx)
		for i, v := range list {
			combo.Values[i] = v.List()[idx[i]]
		}
		combo.Name = ComboName(list, combo.Indices)
		combos = append(combos, combo)

		for i := len(list) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(list[i].List()) {
				break
			}
			idx[i] = 0
		}
	}
	return combos, nil
}

// ComboName builds the positional name of a combination: for each list
// variable its nickname (when set) and the index of the chosen value, all
// joined with underscores.
func ComboName(list []Variable, indices []int) string {
	var parts []string
	for i, v := range list {
		if v.Nickname != "" {
			parts = append(parts, v.Nickname)
		}
		if i < len(indices) {
			parts = append(parts, strconv.Itoa(indices[i]))
		}
	}
	if len(parts) == 0 {
		return DefaultComboName
	}
	return strings.Join(parts, "_")
}

// Expand produces one configuration per combination. Nothing is returned if
// any combination fails; callers persist only complete results.
func (e *Expander) Expand(baseline *configtree.Tree, vars []Variable) ([]Generated, error) {
	list, withheld := Partition(vars)
	combos, err := Combinations(vars)
	if err != nil {
		return nil, err
	}

	out := make([]Generated, 0, len(combos))
	for _, combo := range combos {
		if len(combo.Values) != len(list) || len(combo.Indices) != len(list) {
			return nil, fmt.Errorf("%w: %q has %d values for %d variables",
				ErrCombinationSize, combo.Name, len(combo.Values), len(list))
		}

		cfg := baseline.Clone()
		for i, v := range list {
			if err := e.ApplyParameter(cfg, v.FieldPath, combo.Values[i]); err != nil {
				return nil, fmt.Errorf("combination %s: %w", combo.Name, err)
			}
		}
		for _, v := range withheld {
			if err := e.ApplyParameter(cfg, v.FieldPath, v.Values); err != nil {
				return nil, fmt.Errorf("combination %s: %w", combo.Name, err)
			}
		}
		out = append(out, Generated{Combination: combo, Config: cfg})
	}
	return out, nil
}

// ApplyParameter sets value at fieldPath in cfg. A comma-joined fieldPath
// takes a mapping keyed by each sub-path and applies all of them or none. A
// RANDOM value on a path containing "seed" is replaced by a fresh draw on
// every call.
func (e *Expander) ApplyParameter(cfg *configtree.Tree, fieldPath string, value any) error {
	if strings.Contains(fieldPath, ",") {
		return e.applyGroup(cfg, fieldPath, value)
	}

	if s, ok := value.(string); ok && s == Random && strings.Contains(fieldPath, "seed") {
		value = int64(e.Random())
	}

	p, err := configtree.ParsePath(fieldPath)
	if err != nil {
		return err
	}
	if err := cfg.Set(p, configtree.CloneValue(value)); err != nil {
		return fmt.Errorf("set %s: %w", fieldPath, err)
	}
	return nil
}

func (e *Expander) applyGroup(cfg *configtree.Tree, fieldPath string, value any) error {
	group, ok := value.(*configtree.Map)
	if !ok {
		return fmt.Errorf("%w: %q got %T", ErrGroupedValue, fieldPath, value)
	}

	var subs []string
	for _, s := range strings.Split(fieldPath, ",") {
		s = strings.TrimSpace(s)
		if _, ok := group.Get(s); !ok {
			return fmt.Errorf("%w: %q has no value for %q", ErrGroupedValue, fieldPath, s)
		}
		subs = append(subs, s)
	}

	work := cfg.Clone()
	for _, s := range subs {
		v, _ := group.Get(s)
		if err := e.ApplyParameter(work, s, v); err != nil {
			return err
		}
	}
	*cfg = *work
	return nil
}
