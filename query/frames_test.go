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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opencohort/cohortctl/codelist"
)

var chd = codelist.New("chd", []string{"chd1", "chd2"}, nil)

func eventOn(code string, d time.Time) ClinicalEvent {
	return ClinicalEvent{PatientID: "p", Date: d, SNOMEDCTCode: code}
}

func TestEventFrameExists(t *testing.T) {
	iv := Interval{Start: date(2018, time.March, 1), End: date(2018, time.April, 30)}
	frame := ClinicalEvents().CodeIn(chd).OnOrBefore(IntervalStart())

	t.Run("event before interval start", func(t *testing.T) {
		r := &PatientRecord{Events: []ClinicalEvent{eventOn("chd1", date(2017, time.June, 1))}}
		assert.True(t, frame.Exists()(r, iv))
	})

	t.Run("event on interval start", func(t *testing.T) {
		r := &PatientRecord{Events: []ClinicalEvent{eventOn("chd1", date(2018, time.March, 1))}}
		assert.True(t, frame.Exists()(r, iv))
	})

	t.Run("event after interval start", func(t *testing.T) {
		r := &PatientRecord{Events: []ClinicalEvent{eventOn("chd1", date(2018, time.March, 2))}}
		assert.False(t, frame.Exists()(r, iv))
	})

	t.Run("code not in codelist", func(t *testing.T) {
		r := &PatientRecord{Events: []ClinicalEvent{eventOn("other", date(2017, time.June, 1))}}
		assert.False(t, frame.Exists()(r, iv))
	})

	t.Run("no events at all", func(t *testing.T) {
		assert.False(t, frame.Exists()(&PatientRecord{}, iv))
	})
}

func TestEventFrameLatestDate(t *testing.T) {
	iv := Interval{Start: date(2018, time.March, 1), End: date(2018, time.April, 30)}
	frame := ClinicalEvents().CodeIn(chd).OnOrBefore(IntervalStart())

	r := &PatientRecord{Events: []ClinicalEvent{
		eventOn("chd1", date(2016, time.June, 1)),
		eventOn("chd2", date(2017, time.June, 1)),
		eventOn("chd1", date(2019, time.June, 1)), // after the interval start
	}}

	latest, ok := frame.LatestDate()(r, iv)
	assert.True(t, ok)
	assert.Equal(t, date(2017, time.June, 1), latest)

	_, ok = frame.LatestDate()(&PatientRecord{}, iv)
	assert.False(t, ok)
}

func TestEventFrameNumericWindow(t *testing.T) {
	iv := Interval{Start: date(2018, time.April, 1), End: date(2018, time.May, 31)}
	qrisk := codelist.New("qrisk", []string{"q1"}, nil)
	frame := ClinicalEvents().
		CodeIn(qrisk).
		NumericGreaterThan(5).
		NumericLessThan(10).
		OnOrBetween(IntervalStartMinusMonths(3), IntervalStart())

	value := func(v float64, d time.Time) ClinicalEvent {
		return ClinicalEvent{PatientID: "p", Date: d, SNOMEDCTCode: "q1", NumericValue: &v}
	}

	t.Run("keeps the last qualifying observation", func(t *testing.T) {
		r := &PatientRecord{Events: []ClinicalEvent{
			value(7, date(2018, time.February, 1)),
			value(8, date(2018, time.March, 1)),
			value(9, date(2017, time.June, 1)), // outside the lookback
		}}
		v, ok := frame.LastNumericValue()(r, iv)
		assert.True(t, ok)
		assert.Equal(t, 8.0, v)
	})

	t.Run("bounds are exclusive", func(t *testing.T) {
		r := &PatientRecord{Events: []ClinicalEvent{
			value(5, date(2018, time.March, 1)),
			value(10, date(2018, time.March, 1)),
		}}
		_, ok := frame.LastNumericValue()(r, iv)
		assert.False(t, ok)
	})

	t.Run("events without a value never match", func(t *testing.T) {
		r := &PatientRecord{Events: []ClinicalEvent{eventOn("q1", date(2018, time.March, 1))}}
		_, ok := frame.LastNumericValue()(r, iv)
		assert.False(t, ok)
	})
}

func TestEventFrameLastCategory(t *testing.T) {
	iv := someInterval
	ethnicity := codelist.New("ethnicity", []string{"e1", "e2"}, map[string]string{"e1": "White", "e2": "Asian"})
	frame := ClinicalEvents().CodeIn(ethnicity)

	r := &PatientRecord{Events: []ClinicalEvent{
		eventOn("e1", date(2015, time.June, 1)),
		eventOn("e2", date(2019, time.June, 1)),
	}}

	category, ok := frame.LastCategory(ethnicity)(r, iv)
	assert.True(t, ok)
	assert.Equal(t, "Asian", category)

	_, ok = frame.LastCategory(ethnicity)(&PatientRecord{}, iv)
	assert.False(t, ok)
}

func TestMedicationFrame(t *testing.T) {
	iv := Interval{Start: date(2018, time.January, 1), End: date(2018, time.February, 28)}
	atorvastatin := codelist.New("atorvastatin", []string{"a1"}, nil)
	frame := Medications().CodeIn(atorvastatin).During()

	t.Run("dispensing during the interval", func(t *testing.T) {
		r := &PatientRecord{Medications: []Medication{{Date: date(2018, time.January, 15), DMDCode: "a1"}}}
		assert.True(t, frame.Exists()(r, iv))
	})

	t.Run("dispensing on the interval bounds", func(t *testing.T) {
		r := &PatientRecord{Medications: []Medication{
			{Date: date(2018, time.January, 1), DMDCode: "a1"},
			{Date: date(2018, time.February, 28), DMDCode: "a1"},
		}}
		assert.True(t, frame.Exists()(r, iv))
	})

	t.Run("dispensing outside the interval", func(t *testing.T) {
		r := &PatientRecord{Medications: []Medication{{Date: date(2018, time.March, 1), DMDCode: "a1"}}}
		assert.False(t, frame.Exists()(r, iv))
	})

	t.Run("other product", func(t *testing.T) {
		r := &PatientRecord{Medications: []Medication{{Date: date(2018, time.January, 15), DMDCode: "b1"}}}
		assert.False(t, frame.Exists()(r, iv))
	})
}

func TestRegistrationFrame(t *testing.T) {
	iv := Interval{Start: date(2018, time.May, 1), End: date(2018, time.June, 30)}
	registered := Registrations().
		StartedOnOrBefore(IntervalStartMinusMonths(3)).
		ExceptEndedOnOrBefore(IntervalStart()).
		Exists()

	end := date(2018, time.April, 1)

	t.Run("open registration older than 3 months", func(t *testing.T) {
		r := &PatientRecord{Registrations: []PracticeRegistration{{StartDate: date(2017, time.January, 1)}}}
		assert.True(t, registered(r, iv))
	})

	t.Run("registration too recent", func(t *testing.T) {
		r := &PatientRecord{Registrations: []PracticeRegistration{{StartDate: date(2018, time.March, 1)}}}
		assert.False(t, registered(r, iv))
	})

	t.Run("registration ended before interval start", func(t *testing.T) {
		r := &PatientRecord{Registrations: []PracticeRegistration{{StartDate: date(2017, time.January, 1), EndDate: &end}}}
		assert.False(t, registered(r, iv))
	})

	t.Run("no registrations", func(t *testing.T) {
		assert.False(t, registered(&PatientRecord{}, iv))
	})
}

func TestCurrentRegistration(t *testing.T) {
	iv := Interval{Start: date(2018, time.May, 1), End: date(2018, time.June, 30)}
	current := Registrations().ForPatientOn(IntervalStart())

	t.Run("latest overlapping registration wins", func(t *testing.T) {
		r := &PatientRecord{Registrations: []PracticeRegistration{
			{StartDate: date(2010, time.January, 1), PracticePseudoID: 1, PracticeRegion: "London"},
			{StartDate: date(2017, time.January, 1), PracticePseudoID: 2, PracticeRegion: "South East"},
		}}
		id, ok := current.PracticePseudoID()(r, iv)
		assert.True(t, ok)
		assert.Equal(t, 2, id)

		region, ok := current.Region()(r, iv)
		assert.True(t, ok)
		assert.Equal(t, "South East", region)
	})

	t.Run("ended registration is skipped", func(t *testing.T) {
		end := date(2018, time.January, 1)
		r := &PatientRecord{Registrations: []PracticeRegistration{
			{StartDate: date(2010, time.January, 1), EndDate: &end, PracticePseudoID: 1},
		}}
		_, ok := current.PracticePseudoID()(r, iv)
		assert.False(t, ok)
	})
}

func TestCurrentAddress(t *testing.T) {
	iv := Interval{Start: date(2018, time.May, 1), End: date(2018, time.June, 30)}
	address := AddressForPatientOn(IntervalStart())

	imd := 15000
	ruralUrban := 3

	t.Run("values of the current address", func(t *testing.T) {
		r := &PatientRecord{Addresses: []Address{{IMDRounded: &imd, RuralUrbanClassification: &ruralUrban}}}

		v, ok := address.IMDRounded()(r, iv)
		assert.True(t, ok)
		assert.Equal(t, 15000, v)

		c, ok := address.RuralUrbanClassification()(r, iv)
		assert.True(t, ok)
		assert.Equal(t, 3, c)
	})

	t.Run("absent values stay absent", func(t *testing.T) {
		r := &PatientRecord{Addresses: []Address{{}}}
		_, ok := address.IMDRounded()(r, iv)
		assert.False(t, ok)
	})

	t.Run("no address", func(t *testing.T) {
		_, ok := address.IMDRounded()(&PatientRecord{}, iv)
		assert.False(t, ok)
	})
}

func TestAgeOn(t *testing.T) {
	iv := Interval{Start: date(2018, time.May, 1), End: date(2018, time.June, 30)}
	age := AgeOn(IntervalStart())

	tests := []struct {
		name string
		dob  time.Time
		want int
	}{
		{"birthday already passed", date(1978, time.March, 15), 40},
		{"birthday on the anchor", date(1978, time.May, 1), 40},
		{"birthday still to come", date(1978, time.June, 15), 39},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &PatientRecord{Patient: Patient{DateOfBirth: tt.dob}}
			v, ok := age(r, iv)
			assert.True(t, ok)
			assert.Equal(t, tt.want, v)
		})
	}

	t.Run("missing date of birth", func(t *testing.T) {
		_, ok := age(&PatientRecord{}, iv)
		assert.False(t, ok)
	})
}

func TestIsAliveOn(t *testing.T) {
	iv := Interval{Start: date(2018, time.May, 1), End: date(2018, time.June, 30)}
	alive := IsAliveOn(IntervalStart())

	death := date(2018, time.April, 1)

	assert.True(t, alive(&PatientRecord{}, iv), "no death date")
	assert.False(t, alive(&PatientRecord{Patient: Patient{DateOfDeath: &death}}, iv))

	laterDeath := date(2018, time.June, 1)
	assert.True(t, alive(&PatientRecord{Patient: Patient{DateOfDeath: &laterDeath}}, iv))
}

func TestBuildDataset(t *testing.T) {
	tables := Tables{
		Patients: []Patient{
			{ID: "b", Sex: "male", DateOfBirth: date(1970, time.January, 1)},
			{ID: "a", Sex: "female", DateOfBirth: date(1980, time.January, 1)},
		},
		Events: []ClinicalEvent{
			{PatientID: "a", Date: date(2018, time.January, 1), SNOMEDCTCode: "x"},
			{PatientID: "ghost", Date: date(2018, time.January, 1), SNOMEDCTCode: "y"},
		},
		Medications: []Medication{{PatientID: "b", Date: date(2018, time.January, 1), DMDCode: "m"}},
	}

	ds := BuildDataset(tables)

	assert.Len(t, ds.Patients, 2)
	assert.Equal(t, "a", ds.Patients[0].Patient.ID, "patients ordered by id")
	assert.Len(t, ds.Patients[0].Events, 1)
	assert.Len(t, ds.Patients[1].Medications, 1)
}
