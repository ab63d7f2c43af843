// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package query models table queries and encodes them into the single canonical
// wire form the rowbase REST API accepts.
//
// A Request is built from a Group of conditions, a sort order, a field
// selection and optional pagination. Encode validates the request and renders
// where, orderBy and select as one JSON text each, carried in one query
// parameter each, in a fixed order. Two logically identical requests always
// encode to the same bytes.
package query

// Operator is a comparison operator in a Condition.
type Operator string

const (
	Eq        Operator = "eq"
	Neq       Operator = "neq"
	Gt        Operator = "gt"
	Gte       Operator = "gte"
	Lt        Operator = "lt"
	Lte       Operator = "lte"
	In        Operator = "in"
	NotIn     Operator = "notIn"
	Like      Operator = "like"
	IsNull    Operator = "isNull"
	IsNotNull Operator = "isNotNull"
)

var operators = map[Operator]struct{}{
	Eq: {}, Neq: {}, Gt: {}, Gte: {}, Lt: {}, Lte: {},
	In: {}, NotIn: {}, Like: {}, IsNull: {}, IsNotNull: {},
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	_, ok := operators[op]
	return ok
}

// takesList reports whether op compares against an array value.
func (op Operator) takesList() bool { return op == In || op == NotIn }

// takesNoValue reports whether op must be given no value.
func (op Operator) takesNoValue() bool { return op == IsNull || op == IsNotNull }

// Term is either a Condition or a nested *Group.
type Term interface {
	isTerm()
}

// Condition compares one field against a value.
// Value is a scalar (string, bool, integer or float kinds), a slice or array of
// scalars for In and NotIn, or nil for IsNull and IsNotNull.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func (Condition) isTerm() {}

// Connective joins the terms of a Group.
type Connective string

const (
	And Connective = "and"
	Or  Connective = "or"
)

// Group combines terms under a single connective. Mixing AND and OR is done
// by nesting groups.
type Group struct {
	Connective Connective
	Terms      []Term
}

func (*Group) isTerm() {}

// AllOf returns an AND group of the given terms.
func AllOf(terms ...Term) *Group { return &Group{Connective: And, Terms: terms} }

// AnyOf returns an OR group of the given terms.
func AnyOf(terms ...Term) *Group { return &Group{Connective: Or, Terms: terms} }

// Where is shorthand for a Condition.
func Where(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders results by one field. Earlier entries in a sort order take
// precedence over later ones.
type Sort struct {
	Field     string
	Direction Direction
}

// Selection is the set of fields to project. A nil or empty Selection means
// all fields.
type Selection []string

// AllFields is the all-fields selection.
var AllFields Selection

// Request is one table query. Nil fields are omitted from the wire form and
// fall back to server defaults. Encode never modifies a Request.
type Request struct {
	Where   *Group
	OrderBy []Sort
	Select  Selection
	Limit   *int
	Offset  *int
}

// Int returns a pointer to n, for Request.Limit and Request.Offset.
func Int(n int) *int { return &n }
