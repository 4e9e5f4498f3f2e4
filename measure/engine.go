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

package measure

import (
	"sort"
	"strings"
	"time"

	"github.com/opencohort/cohortctl/query"
)

// UnknownCategory is the group label used when a dimension has no value
// for a patient.
const UnknownCategory = "unknown"

// A GroupValue is one dimension value of a result row's group key.
type GroupValue struct {
	Name  string
	Value string
}

// A ResultRow is one aggregated output row: the counts and rate of one
// measure for one interval and one group key.
type ResultRow struct {
	Measure     string
	Interval    query.Interval
	Groups      []GroupValue
	Numerator   int
	Denominator int
	Ratio       float64
}

// Options control one evaluation run.
type Options struct {
	// Now closes every interval series: only complete intervals ending
	// before Now are evaluated. Zero means time.Now().
	Now time.Time
	// MaxIntervals caps the number of intervals per measure. Zero means
	// no cap.
	MaxIntervals int
	// OnInterval, if set, is called once per evaluated measure interval.
	OnInterval func()
}

func (o Options) intervals(s query.Series) []query.Interval {
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}
	intervals := s.Until(now)
	if o.MaxIntervals > 0 && len(intervals) > o.MaxIntervals {
		intervals = intervals[:o.MaxIntervals]
	}
	return intervals
}

// TotalIntervals returns the number of measure intervals an evaluation
// with the given options will visit.
func TotalIntervals(r *Registry, opts Options) int {
	total := 0
	for _, m := range r.Measures() {
		total += len(opts.intervals(m.Intervals))
	}
	return total
}

type counts struct {
	groups      []GroupValue
	numerator   int
	denominator int
}

// Evaluate runs every registered measure against the dataset. Numerator
// and denominator predicates are evaluated independently per patient per
// interval; the numerator is counted among denominator members so the
// ratio is a rate. Rows are ordered by measure definition order, interval,
// then group key.
func Evaluate(r *Registry, ds *query.Dataset, opts Options) []ResultRow {
	var rows []ResultRow
	for _, m := range r.Measures() {
		for _, iv := range opts.intervals(m.Intervals) {
			rows = append(rows, evaluateInterval(m, ds, iv)...)
			if opts.OnInterval != nil {
				opts.OnInterval()
			}
		}
	}
	return rows
}

func evaluateInterval(m Measure, ds *query.Dataset, iv query.Interval) []ResultRow {
	byKey := make(map[string]*counts)
	for _, record := range ds.Patients {
		inDenominator := m.Denominator(record, iv)
		inNumerator := m.Numerator(record, iv)
		if !inDenominator {
			continue
		}

		groups := groupValues(m.GroupBy, record, iv)
		key := groupKey(groups)
		c, ok := byKey[key]
		if !ok {
			c = &counts{groups: groups}
			byKey[key] = c
		}
		c.denominator++
		if inNumerator {
			c.numerator++
		}
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]ResultRow, 0, len(keys))
	for _, key := range keys {
		c := byKey[key]
		ratio := 0.0
		if c.denominator > 0 {
			ratio = float64(c.numerator) / float64(c.denominator)
		}
		rows = append(rows, ResultRow{
			Measure:     m.Name,
			Interval:    iv,
			Groups:      c.groups,
			Numerator:   c.numerator,
			Denominator: c.denominator,
			Ratio:       ratio,
		})
	}
	return rows
}

func groupValues(dims []Dimension, record *query.PatientRecord, iv query.Interval) []GroupValue {
	groups := make([]GroupValue, 0, len(dims))
	for _, dim := range dims {
		value, ok := dim.Column(record, iv)
		if !ok {
			value = UnknownCategory
		}
		groups = append(groups, GroupValue{Name: dim.Name, Value: value})
	}
	return groups
}

func groupKey(groups []GroupValue) string {
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		parts = append(parts, g.Value)
	}
	return strings.Join(parts, "\x1f")
}
