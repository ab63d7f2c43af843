// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

package query

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"time"

	rberrors "rowbase/cli/pkg/errors"
)

// maxDepth bounds group nesting. It also stops a group that contains itself.
const maxDepth = 32

// identifier is the column-name grammar shared with the schema layer.
var identifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidField reports whether name is a legal column name.
func ValidField(name string) bool { return identifier.MatchString(name) }

func checkField(name, op string) error {
	if name == "" {
		return rberrors.Invalid(name, op, "field name is empty")
	}
	if !ValidField(name) {
		return rberrors.Invalid(name, op, "field name must contain only letters, digits and underscores")
	}
	return nil
}

// scalar converts v to the canonical JSON value for a scalar: string, bool,
// int64, uint64, float64 or json.Number. Named types are reduced to their
// underlying kind so they encode identically to the builtin type.
func scalar(v any) (any, bool) {
	switch x := v.(type) {
	case json.Number:
		return x, true
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	}
	return nil, false
}

// list converts a slice or array of scalars to []any.
func list(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// []byte is a blob, not a list of numbers.
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		s, ok := scalar(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// conditionValue validates c and returns the value to put on the wire.
func conditionValue(c Condition) (any, error) {
	op := string(c.Operator)
	if err := checkField(c.Field, op); err != nil {
		return nil, err
	}
	if !c.Operator.Valid() {
		return nil, rberrors.Invalid(c.Field, op, "unknown operator")
	}

	switch {
	case c.Operator.takesNoValue():
		if c.Value != nil {
			return nil, rberrors.Invalid(c.Field, op, "operator takes no value")
		}
		return nil, nil

	case c.Operator.takesList():
		if c.Value == nil {
			return nil, rberrors.Invalid(c.Field, op, "operator requires an array value")
		}
		vals, ok := list(c.Value)
		if !ok {
			return nil, rberrors.Invalid(c.Field, op, "operator requires an array of scalar values")
		}
		if len(vals) == 0 {
			return nil, rberrors.Invalid(c.Field, op, "array value is empty")
		}
		return vals, nil

	case c.Operator == Like:
		s, ok := c.Value.(string)
		if !ok {
			return nil, rberrors.Invalid(c.Field, op, "operator requires a string pattern")
		}
		return s, nil
	}

	if c.Value == nil {
		return nil, rberrors.Invalid(c.Field, op, "null value; use isNull or isNotNull")
	}
	v, ok := scalar(c.Value)
	if !ok {
		return nil, rberrors.Invalid(c.Field, op, "operator requires a scalar value")
	}
	return v, nil
}

// Validate checks req without encoding it.
func Validate(req Request) error {
	_, err := Encode(req)
	return err
}
