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

// Package study defines the atorvastatin 20mg prescribing measure: monthly
// counts and rates of atorvastatin 20mg prescribing in patients aged 40-84
// at intermediate cardiovascular risk with no history of cardiovascular
// events, stratified by practice.
package study

import (
	"fmt"
	"time"

	"github.com/opencohort/cohortctl/codelist"
	"github.com/opencohort/cohortctl/measure"
	"github.com/opencohort/cohortctl/query"
)

// Codelist names the definition expects in the manifest.
const (
	CodelistAtorvastatin20 = "atorvastatin_20"
	CodelistQRISKScores    = "qrisk_scores"
	CodelistEthnicity5     = "ethnicity5"
	CodelistCHD            = "chd_cod"
	CodelistStroke         = "estrk_cod"
	CodelistTIA            = "tia_cod"
	CodelistPAD            = "pad_cod"
	CodelistDMType1        = "dmtype1_cod"
	CodelistCKD12          = "ckd12_cod"
	CodelistCKD            = "ckd_cod"
	CodelistCKDResolved    = "ckdres_cod"
	CodelistClassFH        = "classfh_cod"
	CodelistFamHypGen      = "famhypgen_cod"
	CodelistPossFH         = "possfh_cod"
	CodelistFamHypRef      = "famhypref_cod"
)

// MeasureName is the name of the active measure.
const MeasureName = "primary_atorvastatin_20"

// imdCeiling is the number of small areas the deprivation rank runs over.
const imdCeiling = 32844

// RequiredCodelists returns the names of every codelist the definition
// needs, in manifest order.
func RequiredCodelists() []string {
	return []string{
		CodelistAtorvastatin20, CodelistQRISKScores, CodelistEthnicity5,
		CodelistCHD, CodelistStroke, CodelistTIA, CodelistPAD,
		CodelistDMType1, CodelistCKD12, CodelistCKD, CodelistCKDResolved,
		CodelistClassFH, CodelistFamHypGen, CodelistPossFH, CodelistFamHypRef,
	}
}

// A Definition is the fully built cohort and measure definition.
type Definition struct {
	// Numerator: at least one atorvastatin 20mg dispensing during the
	// interval.
	Numerator query.BoolExpr
	// Denominator: registered for 3+ months, aged 40-84, recorded sex
	// male or female, and none of the six exclusion registers.
	Denominator query.BoolExpr
	// QualifyingRiskScore is the last QRISK score in the open interval
	// (5, 10) recorded in the 3 months up to the interval start. It is
	// derived but not part of the denominator, matching the source
	// study; see DESIGN.md before wiring it in.
	QualifyingRiskScore query.FloatExpr
	// IsAlive is derived but not part of the denominator either.
	IsAlive query.BoolExpr
	// Registry holds the active measures.
	Registry *measure.Registry

	dimensions []measure.Dimension
	practice   measure.Dimension
}

// hasEventBefore is the shared register shape: a coded event in the
// codelist dated on or before the interval start.
func hasEventBefore(cl *codelist.Codelist) query.BoolExpr {
	return query.ClinicalEvents().
		CodeIn(cl).
		OnOrBefore(query.IntervalStart()).
		Exists()
}

func latestEventDateBefore(cl *codelist.Codelist) query.DateExpr {
	return query.ClinicalEvents().
		CodeIn(cl).
		OnOrBefore(query.IntervalStart()).
		LatestDate()
}

// Define builds the definition from resolved codelists.
func Define(cls codelist.Set) (*Definition, error) {
	resolved := make(map[string]*codelist.Codelist, len(RequiredCodelists()))
	for _, name := range RequiredCodelists() {
		cl, err := cls.Get(name)
		if err != nil {
			return nil, fmt.Errorf("study definition: %w", err)
		}
		resolved[name] = cl
	}
	if !resolved[CodelistEthnicity5].HasCategories() {
		return nil, fmt.Errorf("study definition: codelist %q needs a category column", CodelistEthnicity5)
	}

	// Numerator: patients with a dispensing of atorvastatin 20mg during
	// the interval.
	atorvastatin20 := query.Medications().
		CodeIn(resolved[CodelistAtorvastatin20]).
		During().
		Exists()

	isAlive := query.IsAliveOn(query.IntervalStart())

	// Last QRISK score between 5 and 10, recorded in the 3 months up to
	// the interval start.
	qrisk510 := query.ClinicalEvents().
		CodeIn(resolved[CodelistQRISKScores]).
		NumericGreaterThan(5).
		NumericLessThan(10).
		OnOrBetween(query.IntervalStartMinusMonths(3), query.IntervalStart()).
		LastNumericValue()

	// Registered with a practice for at least 3 months.
	isRegistered := query.Registrations().
		StartedOnOrBefore(query.IntervalStartMinusMonths(3)).
		ExceptEndedOnOrBefore(query.IntervalStart()).
		Exists()

	age := query.AgeOn(query.IntervalStart())
	hasPossibleAge := query.And(age.GTE(40), age.LT(85))

	// Sexes other than male or female carry a disclosure risk.
	nonDisclosiveSex := query.Sex().In("male", "female")

	// Exclusion registers, each as of the interval start.
	chdReg := hasEventBefore(resolved[CodelistCHD])

	strokeReg := query.Or(
		hasEventBefore(resolved[CodelistStroke]),
		hasEventBefore(resolved[CodelistTIA]),
	)

	padReg := hasEventBefore(resolved[CodelistPAD])

	dmType1Reg := hasEventBefore(resolved[CodelistDMType1])

	// Active CKD 3-5: a CKD 3-5 code exists and its latest date is
	// strictly after both the latest CKD 1-2 code and the latest
	// CKD-resolved code. No CKD 3-5 code means no register membership
	// whatever the other two dates say.
	ckd := hasEventBefore(resolved[CodelistCKD])
	ckdDate := latestEventDateBefore(resolved[CodelistCKD])
	ckd12Date := latestEventDateBefore(resolved[CodelistCKD12])
	ckdResolvedDate := latestEventDateBefore(resolved[CodelistCKDResolved])
	ckdReg := query.And(
		ckd,
		ckdDate.After(ckd12Date),
		ckdDate.After(ckdResolvedDate),
	)

	famHypReg := query.Or(
		hasEventBefore(resolved[CodelistFamHypGen]),
		hasEventBefore(resolved[CodelistClassFH]),
		hasEventBefore(resolved[CodelistPossFH]),
		hasEventBefore(resolved[CodelistFamHypRef]),
	)

	denominator := query.And(
		isRegistered,
		hasPossibleAge,
		nonDisclosiveSex,
		query.Not(query.Or(
			chdReg,
			strokeReg,
			padReg,
			dmType1Reg,
			ckdReg,
			famHypReg,
		)),
	)

	def := &Definition{
		Numerator:           atorvastatin20,
		Denominator:         denominator,
		QualifyingRiskScore: qrisk510,
		IsAlive:             isAlive,
		Registry:            measure.NewRegistry(),
	}
	def.buildDimensions(resolved[CodelistEthnicity5])

	def.Registry.ConfigureDummyData(1000)

	if err := def.Registry.Define(measure.Measure{
		Name:        MeasureName,
		Numerator:   def.Numerator,
		Denominator: def.Denominator,
		Intervals:   Intervals(),
		GroupBy:     []measure.Dimension{def.practice},
	}); err != nil {
		return nil, err
	}

	return def, nil
}

// Intervals returns the reporting interval series: consecutive 2-month
// windows starting 2018-01-01. The series end is left to the engine.
func Intervals() query.Series {
	return query.Series{
		Start:  time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC),
		Months: 2,
	}
}

func (d *Definition) buildDimensions(ethnicity5 *codelist.Codelist) {
	age := query.AgeOn(query.IntervalStart())
	ageBand := query.Case(
		query.When(age.LT(45), "0-44"),
		query.When(query.And(age.GTE(45), age.LT(65)), "45-64"),
		query.When(query.And(age.GTE(65), age.LT(75)), "65-74"),
		query.When(query.And(age.GTE(75), age.LT(85)), "75-84"),
		query.When(age.GTE(85), "85+"),
	).End()

	registration := query.Registrations().ForPatientOn(query.IntervalStart())
	practice := registration.PracticePseudoID().AsCategory()
	region := registration.Region()

	address := query.AddressForPatientOn(query.IntervalStart())
	ruralUrban := address.RuralUrbanClassification().AsCategory()

	imd := address.IMDRounded()
	imdQ10 := query.Case(
		query.When(query.And(imd.GTE(0), imd.LT(imdCeiling*1/10)), "1 (most deprived)"),
		query.When(imd.LT(imdCeiling*2/10), "2"),
		query.When(imd.LT(imdCeiling*3/10), "3"),
		query.When(imd.LT(imdCeiling*4/10), "4"),
		query.When(imd.LT(imdCeiling*5/10), "5"),
		query.When(imd.LT(imdCeiling*6/10), "6"),
		query.When(imd.LT(imdCeiling*7/10), "7"),
		query.When(imd.LT(imdCeiling*8/10), "8"),
		query.When(imd.LT(imdCeiling*9/10), "9"),
		query.When(imd.GTE(imdCeiling*9/10), "10 (least deprived)"),
	).Otherwise(measure.UnknownCategory)

	// Last recorded ethnicity code wins; no code means no category, the
	// "not stated" group has no code of its own.
	ethnicity := query.ClinicalEvents().
		CodeIn(ethnicity5).
		LastCategory(ethnicity5)

	sex := query.Sex()

	d.practice = measure.Dimension{Name: "practice", Column: practice}
	d.dimensions = []measure.Dimension{
		{Name: "age_band", Column: ageBand},
		{Name: "sex", Column: sex},
		d.practice,
		{Name: "region", Column: region},
		{Name: "rural_urban", Column: ruralUrban},
		{Name: "imd_q10", Column: imdQ10},
		{Name: "ethnicity", Column: ethnicity},
	}
}

// Dimensions returns the names of every stratification dimension the
// definition offers, active or not.
func (d *Definition) Dimensions() []string {
	names := make([]string, 0, len(d.dimensions))
	for _, dim := range d.dimensions {
		names = append(names, dim.Name)
	}
	return names
}

// ActivateDimension registers an additional measure stratified by the
// named dimension. Patient-level dimensions keep practice as a companion
// group-by; practice-level dimensions (region, rurality) stand alone.
func (d *Definition) ActivateDimension(name string) error {
	if name == d.practice.Name {
		return fmt.Errorf("dimension %q is already active", name)
	}
	var dim measure.Dimension
	found := false
	for _, candidate := range d.dimensions {
		if candidate.Name == name {
			dim = candidate
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown dimension %q", name)
	}

	groupBy := []measure.Dimension{dim}
	if name != "region" && name != "rural_urban" {
		groupBy = append(groupBy, d.practice)
	}

	return d.Registry.Define(measure.Measure{
		Name:        MeasureName + "_" + name,
		Numerator:   d.Numerator,
		Denominator: d.Denominator,
		Intervals:   Intervals(),
		GroupBy:     groupBy,
	})
}
