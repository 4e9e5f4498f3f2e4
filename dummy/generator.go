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

// Package dummy generates a synthetic dataset for local runs of the study.
// Generation is deterministic for a given seed.
package dummy

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/opencohort/cohortctl/codelist"
	"github.com/opencohort/cohortctl/query"
	"github.com/opencohort/cohortctl/study"
)

// Config controls one generation run.
type Config struct {
	// PopulationSize is the number of patients to generate.
	PopulationSize int
	// Seed makes runs reproducible.
	Seed int64
	// OnPatient, if set, is called once per generated patient.
	OnPatient func()
}

var regions = []string{
	"North East", "North West", "Yorkshire and The Humber",
	"East Midlands", "West Midlands", "East",
	"London", "South East", "South West",
}

const practiceCount = 20

var studyStart = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

// Generate builds a synthetic snapshot sized per the config. Every
// codelist the study needs must be present and non-empty, since event and
// dispensing codes are drawn from them.
func Generate(cfg Config, cls codelist.Set) (query.Tables, error) {
	if cfg.PopulationSize <= 0 {
		return query.Tables{}, fmt.Errorf("dummy data: population size must be positive")
	}
	for _, name := range study.RequiredCodelists() {
		cl, err := cls.Get(name)
		if err != nil {
			return query.Tables{}, fmt.Errorf("dummy data: %w", err)
		}
		if cl.Len() == 0 {
			return query.Tables{}, fmt.Errorf("dummy data: codelist %q is empty", name)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	t := query.Tables{}

	for i := 0; i < cfg.PopulationSize; i++ {
		id := patientID(cfg.Seed, i)

		age := rng.Intn(101)
		if rng.Float64() < 0.6 {
			// Bias towards the study age range so rates are not
			// dominated by excluded patients.
			age = 40 + rng.Intn(45)
		}
		dob := studyStart.AddDate(-age, 0, -rng.Intn(365))

		sex := "female"
		switch r := rng.Float64(); {
		case r < 0.49:
			sex = "male"
		case r < 0.98:
			sex = "female"
		case r < 0.99:
			sex = "intersex"
		default:
			sex = "unknown"
		}

		var death *time.Time
		if rng.Float64() < 0.05 {
			d := studyStart.AddDate(0, rng.Intn(60), rng.Intn(28))
			death = &d
		}

		t.Patients = append(t.Patients, query.Patient{
			ID:          id,
			Sex:         sex,
			DateOfBirth: dob,
			DateOfDeath: death,
		})

		if rng.Float64() < 0.9 {
			start := studyStart.AddDate(-rng.Intn(18), -rng.Intn(12), 0)
			var end *time.Time
			if rng.Float64() < 0.1 {
				e := start.AddDate(rng.Intn(10)+1, 0, 0)
				end = &e
			}
			t.Registrations = append(t.Registrations, query.PracticeRegistration{
				PatientID:        id,
				StartDate:        start,
				EndDate:          end,
				PracticePseudoID: 1 + rng.Intn(practiceCount),
				PracticeRegion:   regions[rng.Intn(len(regions))],
			})
		}

		if rng.Float64() < 0.9 {
			addr := query.Address{PatientID: id}
			if rng.Float64() < 0.9 {
				imd := (rng.Intn(32844) / 100) * 100
				addr.IMDRounded = &imd
			}
			if rng.Float64() < 0.9 {
				ruralUrban := 1 + rng.Intn(8)
				addr.RuralUrbanClassification = &ruralUrban
			}
			t.Addresses = append(t.Addresses, addr)
		}

		if rng.Float64() < 0.4 {
			score := 2 + rng.Float64()*13
			t.Events = append(t.Events, query.ClinicalEvent{
				PatientID:    id,
				Date:         studyStart.AddDate(0, rng.Intn(60)-3, rng.Intn(28)),
				SNOMEDCTCode: randomCode(rng, cls, study.CodelistQRISKScores),
				NumericValue: &score,
			})
		}

		for _, register := range []struct {
			codelist   string
			prevalence float64
		}{
			{study.CodelistCHD, 0.04},
			{study.CodelistStroke, 0.02},
			{study.CodelistTIA, 0.02},
			{study.CodelistPAD, 0.02},
			{study.CodelistDMType1, 0.01},
			{study.CodelistCKD, 0.03},
			{study.CodelistCKD12, 0.02},
			{study.CodelistCKDResolved, 0.01},
			{study.CodelistClassFH, 0.005},
			{study.CodelistFamHypGen, 0.005},
			{study.CodelistPossFH, 0.005},
			{study.CodelistFamHypRef, 0.005},
		} {
			if rng.Float64() < register.prevalence {
				t.Events = append(t.Events, query.ClinicalEvent{
					PatientID:    id,
					Date:         studyStart.AddDate(-rng.Intn(10), rng.Intn(12), rng.Intn(28)),
					SNOMEDCTCode: randomCode(rng, cls, register.codelist),
				})
			}
		}

		if rng.Float64() < 0.8 {
			t.Events = append(t.Events, query.ClinicalEvent{
				PatientID:    id,
				Date:         studyStart.AddDate(-rng.Intn(15), rng.Intn(12), rng.Intn(28)),
				SNOMEDCTCode: randomCode(rng, cls, study.CodelistEthnicity5),
			})
		}

		if rng.Float64() < 0.25 {
			dispensings := 1 + rng.Intn(8)
			for j := 0; j < dispensings; j++ {
				t.Medications = append(t.Medications, query.Medication{
					PatientID: id,
					Date:      studyStart.AddDate(0, rng.Intn(72), rng.Intn(28)),
					DMDCode:   randomCode(rng, cls, study.CodelistAtorvastatin20),
				})
			}
		}

		if cfg.OnPatient != nil {
			cfg.OnPatient()
		}
	}

	return t, nil
}

// patientID derives a stable pseudonymous id from the seed and index.
func patientID(seed int64, i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("cohortctl-%d-%d", seed, i))).String()
}

func randomCode(rng *rand.Rand, cls codelist.Set, name string) string {
	cl := cls[name]
	codes := cl.Codes()
	return codes[rng.Intn(len(codes))]
}
