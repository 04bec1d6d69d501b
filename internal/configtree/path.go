package configtree

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSegmentNotFound is returned when an intermediate path segment is
	// absent from the tree.
	ErrSegmentNotFound = errors.New("path segment not found")
	// ErrNotMapping is returned when an intermediate path segment exists but
	// holds a scalar or list instead of a mapping.
	ErrNotMapping = errors.New("path segment is not a mapping")
	// ErrEmptyPath is returned when a path has no segments or an empty one.
	ErrEmptyPath = errors.New("empty path segment")
)

// Path is a parsed dotted field path such as "pytorch.lrScheduleArgs.gamma".
type Path []string

// ParsePath splits a dotted field path into its segments.
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("parse path %q: %w", s, ErrEmptyPath)
	}
	segs := strings.Split(s, ".")
	for i, seg := range segs {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, fmt.Errorf("parse path %q: segment %d: %w", s, i, ErrEmptyPath)
		}
		segs[i] = seg
	}
	return Path(segs), nil
}

// MustParsePath is ParsePath for literals known to be valid.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// PathError reports a traversal failure at a specific segment.
type PathError struct {
	Path    Path
	Segment int
	Err     error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: at %q of %q", e.Err, e.Path[e.Segment], e.Path.String())
}

func (e *PathError) Unwrap() error {
	return e.Err
}
