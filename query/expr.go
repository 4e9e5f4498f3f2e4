// Copyright 2025 The OpenCohort Community
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package query

import (
	"strconv"
	"time"
)

// BoolExpr is a boolean column expression.
type BoolExpr func(r *PatientRecord, iv Interval) bool

// IntExpr is an integer column expression. The second return value is
// false when the value is absent.
type IntExpr func(r *PatientRecord, iv Interval) (int, bool)

// FloatExpr is a numeric column expression.
type FloatExpr func(r *PatientRecord, iv Interval) (float64, bool)

// DateExpr is a date-valued column expression.
type DateExpr func(r *PatientRecord, iv Interval) (time.Time, bool)

// StrExpr is a categorical column expression.
type StrExpr func(r *PatientRecord, iv Interval) (string, bool)

// And combines expressions by conjunction.
func And(exprs ...BoolExpr) BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		for _, e := range exprs {
			if !e(r, iv) {
				return false
			}
		}
		return true
	}
}

// Or combines expressions by disjunction.
func Or(exprs ...BoolExpr) BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		for _, e := range exprs {
			if e(r, iv) {
				return true
			}
		}
		return false
	}
}

// Not negates an expression.
func Not(e BoolExpr) BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		return !e(r, iv)
	}
}

// LT compares against n. Absent values compare false.
func (e IntExpr) LT(n int) BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		v, ok := e(r, iv)
		return ok && v < n
	}
}

// GTE compares against n. Absent values compare false.
func (e IntExpr) GTE(n int) BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		v, ok := e(r, iv)
		return ok && v >= n
	}
}

// AsCategory renders the integer value as a categorical label. Absence is
// preserved.
func (e IntExpr) AsCategory() StrExpr {
	return func(r *PatientRecord, iv Interval) (string, bool) {
		v, ok := e(r, iv)
		if !ok {
			return "", false
		}
		return strconv.Itoa(v), true
	}
}

// After reports whether e is strictly after o. An absent left operand
// makes the comparison false; an absent right operand is treated as the
// earliest possible date and so never defeats a present left operand.
func (e DateExpr) After(o DateExpr) BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		left, leftOK := e(r, iv)
		if !leftOK {
			return false
		}
		right, rightOK := o(r, iv)
		if !rightOK {
			return true
		}
		return left.After(right)
	}
}

// In reports whether the value equals one of the given labels. Absent
// values are in no set.
func (e StrExpr) In(labels ...string) BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		v, ok := e(r, iv)
		if !ok {
			return false
		}
		for _, label := range labels {
			if v == label {
				return true
			}
		}
		return false
	}
}

// A WhenClause pairs a predicate with the label it selects.
type WhenClause struct {
	cond  BoolExpr
	label string
}

// When builds one clause of a Case mapping.
func When(cond BoolExpr, label string) WhenClause {
	return WhenClause{cond: cond, label: label}
}

// A CaseExpr is an ordered first-match-wins categorical mapping. Clause
// order is significant: overlapping predicates resolve to the first match.
type CaseExpr struct {
	clauses []WhenClause
}

// Case builds a categorical mapping from ordered clauses.
func Case(clauses ...WhenClause) CaseExpr {
	return CaseExpr{clauses: clauses}
}

// Otherwise closes the mapping with a default label.
func (c CaseExpr) Otherwise(label string) StrExpr {
	return func(r *PatientRecord, iv Interval) (string, bool) {
		for _, clause := range c.clauses {
			if clause.cond(r, iv) {
				return clause.label, true
			}
		}
		return label, true
	}
}

// End closes the mapping without a default; unmatched patients get an
// absent value.
func (c CaseExpr) End() StrExpr {
	return func(r *PatientRecord, iv Interval) (string, bool) {
		for _, clause := range c.clauses {
			if clause.cond(r, iv) {
				return clause.label, true
			}
		}
		return "", false
	}
}
