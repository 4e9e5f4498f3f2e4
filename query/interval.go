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

import "time"

// An Interval is one reporting period. Both bounds are inclusive.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls within the interval.
func (iv Interval) Contains(d time.Time) bool {
	return !d.Before(iv.Start) && !d.After(iv.End)
}

// A Series generates consecutive intervals of a fixed number of months,
// the first one starting at Start.
type Series struct {
	Start  time.Time
	Months int
}

func (s Series) interval(i int) Interval {
	start := s.Start.AddDate(0, i*s.Months, 0)
	end := s.Start.AddDate(0, (i+1)*s.Months, 0).AddDate(0, 0, -1)
	return Interval{Start: start, End: end}
}

// Take returns the first n intervals of the series.
func (s Series) Take(n int) []Interval {
	intervals := make([]Interval, 0, n)
	for i := 0; i < n; i++ {
		intervals = append(intervals, s.interval(i))
	}
	return intervals
}

// Until returns every complete interval whose end falls before now.
func (s Series) Until(now time.Time) []Interval {
	var intervals []Interval
	for i := 0; ; i++ {
		iv := s.interval(i)
		if !iv.End.Before(now) {
			return intervals
		}
		intervals = append(intervals, iv)
	}
}

// An Anchor resolves an interval-relative reference date.
type Anchor func(iv Interval) time.Time

// IntervalStart anchors at the first day of the interval.
func IntervalStart() Anchor {
	return func(iv Interval) time.Time { return iv.Start }
}

// IntervalEnd anchors at the last day of the interval.
func IntervalEnd() Anchor {
	return func(iv Interval) time.Time { return iv.End }
}

// IntervalStartMinusMonths anchors n months before the interval start.
func IntervalStartMinusMonths(n int) Anchor {
	return func(iv Interval) time.Time { return iv.Start.AddDate(0, -n, 0) }
}
