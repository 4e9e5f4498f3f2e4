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

// Package fhir renders evaluation results as FHIR MeasureReport resources
// so they can be consumed by standard tooling.
package fhir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"

	"github.com/opencohort/cohortctl/measure"
)

const (
	measureURLBase          = "https://opencohort.github.io/cohortctl/Measure/"
	measurePopulationSystem = "http://terminology.hl7.org/CodeSystem/measure-population"
	dateLayout              = "2006-01-02"
)

// BuildReports converts result rows into one summary MeasureReport per
// measure per interval. Row order is preserved: reports appear in measure
// then interval order, and strata in group-key order.
func BuildReports(rows []measure.ResultRow, now time.Time) []fm.MeasureReport {
	var reports []fm.MeasureReport
	var current *fm.MeasureReport
	currentKey := ""

	for _, row := range rows {
		key := row.Measure + "\x1f" + row.Interval.Start.Format(dateLayout)
		if current == nil || key != currentKey {
			reports = append(reports, newReport(row, now))
			current = &reports[len(reports)-1]
			currentKey = key
		}
		addStratum(current, row)

		group := &current.Group[0]
		*group.Population[0].Count += row.Numerator
		*group.Population[1].Count += row.Denominator
	}

	for i := range reports {
		group := &reports[i].Group[0]
		num := *group.Population[0].Count
		denom := *group.Population[1].Count
		if denom > 0 {
			group.MeasureScore = ratioQuantity(float64(num) / float64(denom))
		}
	}
	return reports
}

func newReport(row measure.ResultRow, now time.Time) fm.MeasureReport {
	id := uuid.NewSHA1(uuid.NameSpaceURL,
		[]byte(measureURLBase+row.Measure+"/"+row.Interval.Start.Format(dateLayout))).String()
	date := now.UTC().Format(time.RFC3339)
	periodStart := row.Interval.Start.Format(dateLayout)
	periodEnd := row.Interval.End.Format(dateLayout)

	numeratorCount := 0
	denominatorCount := 0
	group := fm.MeasureReportGroup{
		Population: []fm.MeasureReportGroupPopulation{
			{
				Code:  populationCode("numerator"),
				Count: &numeratorCount,
			},
			{
				Code:  populationCode("denominator"),
				Count: &denominatorCount,
			},
		},
	}
	if len(row.Groups) > 0 {
		code := stratifierCode(row)
		group.Stratifier = []fm.MeasureReportGroupStratifier{
			{Code: []fm.CodeableConcept{code}},
		}
	}

	return fm.MeasureReport{
		Id:      &id,
		Status:  fm.MeasureReportStatusComplete,
		Type:    fm.MeasureReportTypeSummary,
		Measure: measureURLBase + row.Measure,
		Date:    &date,
		Period: fm.Period{
			Start: &periodStart,
			End:   &periodEnd,
		},
		Group: []fm.MeasureReportGroup{group},
	}
}

func stratifierCode(row measure.ResultRow) fm.CodeableConcept {
	text := ""
	for i, g := range row.Groups {
		if i > 0 {
			text += ", "
		}
		text += g.Name
	}
	return fm.CodeableConcept{Text: &text}
}

func addStratum(report *fm.MeasureReport, row measure.ResultRow) {
	if len(row.Groups) == 0 {
		return
	}

	numerator := row.Numerator
	denominator := row.Denominator
	stratum := fm.MeasureReportGroupStratifierStratum{
		Population: []fm.MeasureReportGroupStratifierStratumPopulation{
			{
				Code:  populationCode("numerator"),
				Count: &numerator,
			},
			{
				Code:  populationCode("denominator"),
				Count: &denominator,
			},
		},
		MeasureScore: ratioQuantity(row.Ratio),
	}

	if len(row.Groups) == 1 {
		value := row.Groups[0].Value
		stratum.Value = &fm.CodeableConcept{Text: &value}
	} else {
		for _, g := range row.Groups {
			name := g.Name
			value := g.Value
			stratum.Component = append(stratum.Component, fm.MeasureReportGroupStratifierStratumComponent{
				Code:  fm.CodeableConcept{Text: &name},
				Value: fm.CodeableConcept{Text: &value},
			})
		}
	}

	group := &report.Group[0]
	group.Stratifier[0].Stratum = append(group.Stratifier[0].Stratum, stratum)
}

func populationCode(code string) *fm.CodeableConcept {
	system := measurePopulationSystem
	c := code
	return &fm.CodeableConcept{
		Coding: []fm.Coding{{System: &system, Code: &c}},
	}
}

func ratioQuantity(ratio float64) *fm.Quantity {
	value := json.Number(strconv.FormatFloat(ratio, 'f', -1, 64))
	return &fm.Quantity{Value: &value}
}

// BuildBundle wraps the reports in a collection Bundle.
func BuildBundle(reports []fm.MeasureReport) (fm.Bundle, error) {
	bundle := fm.Bundle{
		Type:  fm.BundleTypeCollection,
		Entry: make([]fm.BundleEntry, 0, len(reports)),
	}
	for _, report := range reports {
		raw, err := json.Marshal(report)
		if err != nil {
			return fm.Bundle{}, fmt.Errorf("marshalling report for %s: %w", report.Measure, err)
		}
		bundle.Entry = append(bundle.Entry, fm.BundleEntry{Resource: raw})
	}
	return bundle, nil
}
