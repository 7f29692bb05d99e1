package model

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxFieldPathDepth is the deepest nesting a field path may address.
	MaxFieldPathDepth = 100
	// MaxFieldNameLength is the byte limit of a single segment.
	MaxFieldNameLength = 1500

	docIDField = "__name__"
)

var (
	ErrEmptyFieldPath    = errors.New("field path cannot be empty")
	ErrFieldPathTooDeep  = errors.New("field path exceeds maximum depth")
	ErrInvalidFieldName  = errors.New("invalid field name")
	ErrDocIDInUpdatePath = errors.New("document id cannot be updated")
)

// FieldPath addresses a possibly nested field as a list of segments.
type FieldPath []string

// Path builds a field path from segments. Segments are taken literally, a dot inside
// a segment does not split it.
func Path(segments ...string) FieldPath {
	return FieldPath(segments)
}

// ParseFieldPath splits a dotted string ("address.city").
func ParseFieldPath(dotted string) FieldPath {
	if dotted == "" {
		return nil
	}
	return FieldPath(strings.Split(dotted, "."))
}

// DocID addresses the document id in queries.
var DocID = FieldPath{docIDField}

// IsDocID reports whether the path is the document id pseudo field.
func (fp FieldPath) IsDocID() bool {
	return len(fp) == 1 && fp[0] == docIDField
}

// String joins the segments with dots.
func (fp FieldPath) String() string {
	return strings.Join(fp, ".")
}

// Set pairs the path with a value for field-wise updates.
func (fp FieldPath) Set(value any) Field {
	return Field{Path: fp, Value: value}
}

// Validate checks segment names and depth.
func (fp FieldPath) Validate() error {
	if len(fp) == 0 {
		return ErrEmptyFieldPath
	}
	if fp.IsDocID() {
		return nil
	}
	if len(fp) > MaxFieldPathDepth {
		return fmt.Errorf("%w: depth %d exceeds maximum %d", ErrFieldPathTooDeep, len(fp), MaxFieldPathDepth)
	}
	for _, segment := range fp {
		if !isValidFieldName(segment) {
			return fmt.Errorf("%w: invalid segment '%s'", ErrInvalidFieldName, segment)
		}
	}
	return nil
}

func isValidFieldName(name string) bool {
	if name == "" || len(name) > MaxFieldNameLength {
		return false
	}
	return !(strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"))
}

// Field is a single field-path update.
type Field struct {
	Path  FieldPath
	Value any
}

// F is shorthand for Path(segments...).Set(value).
func F(value any, segments ...string) Field {
	return Path(segments...).Set(value)
}

// Data is a partial, untyped document body. Values may be update sentinels, and
// nested maps address nested fields.
type Data map[string]any
