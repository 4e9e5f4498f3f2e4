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
	"time"

	"github.com/opencohort/cohortctl/codelist"
)

type eventPred func(e ClinicalEvent, iv Interval) bool

// An EventFrame is a filtered view over a patient's coded clinical events.
// Frames are value types; every filter returns a new frame.
type EventFrame struct {
	preds []eventPred
}

// ClinicalEvents starts an unfiltered frame.
func ClinicalEvents() EventFrame { return EventFrame{} }

func (f EventFrame) where(p eventPred) EventFrame {
	preds := make([]eventPred, len(f.preds), len(f.preds)+1)
	copy(preds, f.preds)
	return EventFrame{preds: append(preds, p)}
}

// CodeIn keeps events whose code is a member of the codelist.
func (f EventFrame) CodeIn(cl *codelist.Codelist) EventFrame {
	return f.where(func(e ClinicalEvent, iv Interval) bool {
		return cl.Contains(e.SNOMEDCTCode)
	})
}

// OnOrBefore keeps events dated on or before the anchor date.
func (f EventFrame) OnOrBefore(a Anchor) EventFrame {
	return f.where(func(e ClinicalEvent, iv Interval) bool {
		return !e.Date.After(a(iv))
	})
}

// OnOrBetween keeps events dated within [from, to], both inclusive.
func (f EventFrame) OnOrBetween(from, to Anchor) EventFrame {
	return f.where(func(e ClinicalEvent, iv Interval) bool {
		return !e.Date.Before(from(iv)) && !e.Date.After(to(iv))
	})
}

// During keeps events dated within the evaluation interval.
func (f EventFrame) During() EventFrame {
	return f.where(func(e ClinicalEvent, iv Interval) bool {
		return iv.Contains(e.Date)
	})
}

// NumericGreaterThan keeps events with a present numeric value above v.
func (f EventFrame) NumericGreaterThan(v float64) EventFrame {
	return f.where(func(e ClinicalEvent, iv Interval) bool {
		return e.NumericValue != nil && *e.NumericValue > v
	})
}

// NumericLessThan keeps events with a present numeric value below v.
func (f EventFrame) NumericLessThan(v float64) EventFrame {
	return f.where(func(e ClinicalEvent, iv Interval) bool {
		return e.NumericValue != nil && *e.NumericValue < v
	})
}

func (f EventFrame) matches(e ClinicalEvent, iv Interval) bool {
	for _, p := range f.preds {
		if !p(e, iv) {
			return false
		}
	}
	return true
}

// last returns the chronologically last matching event. Ties on the date
// resolve to the later row, so load order decides only between same-day
// duplicates.
func (f EventFrame) last(r *PatientRecord, iv Interval) (ClinicalEvent, bool) {
	var last ClinicalEvent
	found := false
	for _, e := range r.Events {
		if !f.matches(e, iv) {
			continue
		}
		if !found || !e.Date.Before(last.Date) {
			last = e
			found = true
		}
	}
	return last, found
}

// Exists reports whether any matching event exists.
func (f EventFrame) Exists() BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		for _, e := range r.Events {
			if f.matches(e, iv) {
				return true
			}
		}
		return false
	}
}

// LatestDate returns the maximum date over matching events.
func (f EventFrame) LatestDate() DateExpr {
	return func(r *PatientRecord, iv Interval) (time.Time, bool) {
		e, ok := f.last(r, iv)
		return e.Date, ok
	}
}

// LastNumericValue returns the numeric value of the chronologically last
// matching event.
func (f EventFrame) LastNumericValue() FloatExpr {
	return func(r *PatientRecord, iv Interval) (float64, bool) {
		e, ok := f.last(r, iv)
		if !ok || e.NumericValue == nil {
			return 0, false
		}
		return *e.NumericValue, true
	}
}

// LastCategory maps the code of the chronologically last matching event
// through the codelist's category column.
func (f EventFrame) LastCategory(cl *codelist.Codelist) StrExpr {
	return func(r *PatientRecord, iv Interval) (string, bool) {
		e, ok := f.last(r, iv)
		if !ok {
			return "", false
		}
		return cl.CategoryOf(e.SNOMEDCTCode)
	}
}

type medicationPred func(m Medication, iv Interval) bool

// A MedicationFrame is a filtered view over a patient's dispensings.
type MedicationFrame struct {
	preds []medicationPred
}

// Medications starts an unfiltered frame.
func Medications() MedicationFrame { return MedicationFrame{} }

func (f MedicationFrame) where(p medicationPred) MedicationFrame {
	preds := make([]medicationPred, len(f.preds), len(f.preds)+1)
	copy(preds, f.preds)
	return MedicationFrame{preds: append(preds, p)}
}

// CodeIn keeps dispensings whose product code is in the codelist.
func (f MedicationFrame) CodeIn(cl *codelist.Codelist) MedicationFrame {
	return f.where(func(m Medication, iv Interval) bool {
		return cl.Contains(m.DMDCode)
	})
}

// During keeps dispensings dated within the evaluation interval.
func (f MedicationFrame) During() MedicationFrame {
	return f.where(func(m Medication, iv Interval) bool {
		return iv.Contains(m.Date)
	})
}

// Exists reports whether any matching dispensing exists.
func (f MedicationFrame) Exists() BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		for _, m := range r.Medications {
			match := true
			for _, p := range f.preds {
				if !p(m, iv) {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
		return false
	}
}

type registrationPred func(pr PracticeRegistration, iv Interval) bool

// A RegistrationFrame is a filtered view over the registration history.
type RegistrationFrame struct {
	preds []registrationPred
}

// Registrations starts an unfiltered frame.
func Registrations() RegistrationFrame { return RegistrationFrame{} }

func (f RegistrationFrame) where(p registrationPred) RegistrationFrame {
	preds := make([]registrationPred, len(f.preds), len(f.preds)+1)
	copy(preds, f.preds)
	return RegistrationFrame{preds: append(preds, p)}
}

// StartedOnOrBefore keeps registrations that began on or before the anchor.
func (f RegistrationFrame) StartedOnOrBefore(a Anchor) RegistrationFrame {
	return f.where(func(pr PracticeRegistration, iv Interval) bool {
		return !pr.StartDate.After(a(iv))
	})
}

// ExceptEndedOnOrBefore drops registrations that ended on or before the
// anchor. Open-ended registrations are never dropped.
func (f RegistrationFrame) ExceptEndedOnOrBefore(a Anchor) RegistrationFrame {
	return f.where(func(pr PracticeRegistration, iv Interval) bool {
		return pr.EndDate == nil || pr.EndDate.After(a(iv))
	})
}

// Exists reports whether any matching registration exists.
func (f RegistrationFrame) Exists() BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		for _, pr := range r.Registrations {
			match := true
			for _, p := range f.preds {
				if !p(pr, iv) {
					match = false
					break
				}
			}
			if match {
				return true
			}
		}
		return false
	}
}

// A CurrentRegistration selects the registration covering an anchor date.
// With overlapping registrations the most recently started one wins, ties
// broken by the higher practice id.
type CurrentRegistration struct {
	anchor Anchor
}

// ForPatientOn selects the registration in effect on the anchor date.
func (f RegistrationFrame) ForPatientOn(a Anchor) CurrentRegistration {
	return CurrentRegistration{anchor: a}
}

func (c CurrentRegistration) on(r *PatientRecord, iv Interval) (PracticeRegistration, bool) {
	date := c.anchor(iv)
	var current PracticeRegistration
	found := false
	for _, pr := range r.Registrations {
		if pr.StartDate.After(date) {
			continue
		}
		if pr.EndDate != nil && pr.EndDate.Before(date) {
			continue
		}
		if !found ||
			pr.StartDate.After(current.StartDate) ||
			(pr.StartDate.Equal(current.StartDate) && pr.PracticePseudoID > current.PracticePseudoID) {
			current = pr
			found = true
		}
	}
	return current, found
}

// PracticePseudoID returns the pseudonymised practice id.
func (c CurrentRegistration) PracticePseudoID() IntExpr {
	return func(r *PatientRecord, iv Interval) (int, bool) {
		pr, ok := c.on(r, iv)
		return pr.PracticePseudoID, ok
	}
}

// Region returns the practice's NUTS1 region name.
func (c CurrentRegistration) Region() StrExpr {
	return func(r *PatientRecord, iv Interval) (string, bool) {
		pr, ok := c.on(r, iv)
		if !ok || pr.PracticeRegion == "" {
			return "", false
		}
		return pr.PracticeRegion, true
	}
}

// A CurrentAddress selects the address in effect on an anchor date.
type CurrentAddress struct {
	anchor Anchor
}

// AddressForPatientOn selects the address covering the anchor date. With
// overlapping addresses the most recently started one wins.
func AddressForPatientOn(a Anchor) CurrentAddress {
	return CurrentAddress{anchor: a}
}

func (c CurrentAddress) on(r *PatientRecord, iv Interval) (Address, bool) {
	date := c.anchor(iv)
	var current Address
	found := false
	for _, addr := range r.Addresses {
		if addr.StartDate != nil && addr.StartDate.After(date) {
			continue
		}
		if addr.EndDate != nil && addr.EndDate.Before(date) {
			continue
		}
		if !found || laterStart(addr.StartDate, current.StartDate) {
			current = addr
			found = true
		}
	}
	return current, found
}

func laterStart(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

// IMDRounded returns the rounded deprivation rank of the current address.
func (c CurrentAddress) IMDRounded() IntExpr {
	return func(r *PatientRecord, iv Interval) (int, bool) {
		addr, ok := c.on(r, iv)
		if !ok || addr.IMDRounded == nil {
			return 0, false
		}
		return *addr.IMDRounded, true
	}
}

// RuralUrbanClassification returns the rural/urban class of the current
// address.
func (c CurrentAddress) RuralUrbanClassification() IntExpr {
	return func(r *PatientRecord, iv Interval) (int, bool) {
		addr, ok := c.on(r, iv)
		if !ok || addr.RuralUrbanClassification == nil {
			return 0, false
		}
		return *addr.RuralUrbanClassification, true
	}
}

// AgeOn returns the patient's age in whole years on the anchor date.
func AgeOn(a Anchor) IntExpr {
	return func(r *PatientRecord, iv Interval) (int, bool) {
		dob := r.Patient.DateOfBirth
		if dob.IsZero() {
			return 0, false
		}
		date := a(iv)
		if date.Before(dob) {
			return 0, false
		}
		years := date.Year() - dob.Year()
		if date.Month() < dob.Month() ||
			(date.Month() == dob.Month() && date.Day() < dob.Day()) {
			years--
		}
		return years, true
	}
}

// Sex returns the recorded sex.
func Sex() StrExpr {
	return func(r *PatientRecord, iv Interval) (string, bool) {
		if r.Patient.Sex == "" {
			return "", false
		}
		return r.Patient.Sex, true
	}
}

// IsAliveOn reports whether the patient has no death date on or before the
// anchor date.
func IsAliveOn(a Anchor) BoolExpr {
	return func(r *PatientRecord, iv Interval) bool {
		return r.Patient.DateOfDeath == nil || r.Patient.DateOfDeath.After(a(iv))
	}
}
