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

// Package measure holds measure definitions and the engine that aggregates
// them into per-interval per-group counts and rates.
package measure

import (
	"fmt"

	"github.com/opencohort/cohortctl/query"
)

// A Dimension is one named group-by column.
type Dimension struct {
	Name   string
	Column query.StrExpr
}

// A Measure binds a numerator and denominator predicate to an interval
// series and an ordered set of group-by dimensions.
type Measure struct {
	Name        string
	Numerator   query.BoolExpr
	Denominator query.BoolExpr
	Intervals   query.Series
	GroupBy     []Dimension
}

// A Registry collects the measures of one study together with the dummy
// data configuration.
type Registry struct {
	measures            []Measure
	dummyPopulationSize int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// ConfigureDummyData sets the population size used when generating a dummy
// dataset for the study.
func (r *Registry) ConfigureDummyData(populationSize int) {
	r.dummyPopulationSize = populationSize
}

// DummyPopulationSize returns the configured dummy population size, or 0
// if none was configured.
func (r *Registry) DummyPopulationSize() int {
	return r.dummyPopulationSize
}

// Define registers a measure. Names must be unique and non-empty, both
// predicates must be present, the interval series must have a positive
// month step and dimension names must be unique.
func (r *Registry) Define(m Measure) error {
	if m.Name == "" {
		return fmt.Errorf("measure without a name")
	}
	for _, existing := range r.measures {
		if existing.Name == m.Name {
			return fmt.Errorf("measure %q defined twice", m.Name)
		}
	}
	if m.Numerator == nil {
		return fmt.Errorf("measure %q: missing numerator", m.Name)
	}
	if m.Denominator == nil {
		return fmt.Errorf("measure %q: missing denominator", m.Name)
	}
	if m.Intervals.Months <= 0 {
		return fmt.Errorf("measure %q: interval step must be positive", m.Name)
	}
	seen := make(map[string]struct{}, len(m.GroupBy))
	for _, dim := range m.GroupBy {
		if dim.Name == "" || dim.Column == nil {
			return fmt.Errorf("measure %q: group-by dimensions need a name and a column", m.Name)
		}
		if _, ok := seen[dim.Name]; ok {
			return fmt.Errorf("measure %q: group-by dimension %q listed twice", m.Name, dim.Name)
		}
		seen[dim.Name] = struct{}{}
	}
	r.measures = append(r.measures, m)
	return nil
}

// Measures returns the registered measures in definition order.
func (r *Registry) Measures() []Measure {
	return r.measures
}
