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

package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/opencohort/cohortctl/query"
)

const dateLayout = "2006-01-02"

// CSVDir stores the dataset as five CSV files in one directory.
type CSVDir struct {
	dir string
}

// NewCSVDir creates a CSV-directory store rooted at dir.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{dir: dir}
}

// Close is a no-op; the backend holds no open handles between calls.
func (s *CSVDir) Close() error { return nil }

var csvHeaders = map[string][]string{
	"patients.csv":               {"patient_id", "sex", "date_of_birth", "date_of_death"},
	"practice_registrations.csv": {"patient_id", "start_date", "end_date", "practice_pseudo_id", "practice_nuts1_region_name"},
	"addresses.csv":              {"patient_id", "start_date", "end_date", "imd_rounded", "rural_urban_classification"},
	"clinical_events.csv":        {"patient_id", "date", "snomedct_code", "numeric_value"},
	"medications.csv":            {"patient_id", "date", "dmd_code"},
}

// Read loads all five tables. Every file must exist and parse; blank cells
// become nil values.
func (s *CSVDir) Read() (query.Tables, error) {
	t := query.Tables{}

	err := s.readFile("patients.csv", func(record []string) error {
		dob, err := parseDate(record[2])
		if err != nil {
			return err
		}
		if dob == nil {
			return fmt.Errorf("missing date_of_birth")
		}
		dod, err := parseDate(record[3])
		if err != nil {
			return err
		}
		t.Patients = append(t.Patients, query.Patient{
			ID:          record[0],
			Sex:         record[1],
			DateOfBirth: *dob,
			DateOfDeath: dod,
		})
		return nil
	})
	if err != nil {
		return query.Tables{}, err
	}

	err = s.readFile("practice_registrations.csv", func(record []string) error {
		start, err := parseDate(record[1])
		if err != nil {
			return err
		}
		if start == nil {
			return fmt.Errorf("missing start_date")
		}
		end, err := parseDate(record[2])
		if err != nil {
			return err
		}
		practiceID, err := strconv.Atoi(record[3])
		if err != nil {
			return fmt.Errorf("practice_pseudo_id: %w", err)
		}
		t.Registrations = append(t.Registrations, query.PracticeRegistration{
			PatientID:        record[0],
			StartDate:        *start,
			EndDate:          end,
			PracticePseudoID: practiceID,
			PracticeRegion:   record[4],
		})
		return nil
	})
	if err != nil {
		return query.Tables{}, err
	}

	err = s.readFile("addresses.csv", func(record []string) error {
		start, err := parseDate(record[1])
		if err != nil {
			return err
		}
		end, err := parseDate(record[2])
		if err != nil {
			return err
		}
		imd, err := parseInt(record[3])
		if err != nil {
			return fmt.Errorf("imd_rounded: %w", err)
		}
		ruralUrban, err := parseInt(record[4])
		if err != nil {
			return fmt.Errorf("rural_urban_classification: %w", err)
		}
		t.Addresses = append(t.Addresses, query.Address{
			PatientID:                record[0],
			StartDate:                start,
			EndDate:                  end,
			IMDRounded:               imd,
			RuralUrbanClassification: ruralUrban,
		})
		return nil
	})
	if err != nil {
		return query.Tables{}, err
	}

	err = s.readFile("clinical_events.csv", func(record []string) error {
		date, err := parseDate(record[1])
		if err != nil {
			return err
		}
		if date == nil {
			return fmt.Errorf("missing date")
		}
		value, err := parseFloat(record[3])
		if err != nil {
			return fmt.Errorf("numeric_value: %w", err)
		}
		t.Events = append(t.Events, query.ClinicalEvent{
			PatientID:    record[0],
			Date:         *date,
			SNOMEDCTCode: record[2],
			NumericValue: value,
		})
		return nil
	})
	if err != nil {
		return query.Tables{}, err
	}

	err = s.readFile("medications.csv", func(record []string) error {
		date, err := parseDate(record[1])
		if err != nil {
			return err
		}
		if date == nil {
			return fmt.Errorf("missing date")
		}
		t.Medications = append(t.Medications, query.Medication{
			PatientID: record[0],
			Date:      *date,
			DMDCode:   record[2],
		})
		return nil
	})
	if err != nil {
		return query.Tables{}, err
	}

	return t, nil
}

func (s *CSVDir) readFile(name string, row func(record []string) error) error {
	path := filepath.Join(s.dir, name)
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("dataset %s: reading header: %w", path, err)
	}
	expected := csvHeaders[name]
	if len(header) != len(expected) {
		return fmt.Errorf("dataset %s: expected columns %v, got %v", path, expected, header)
	}
	for i, column := range expected {
		if header[i] != column {
			return fmt.Errorf("dataset %s: expected columns %v, got %v", path, expected, header)
		}
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("dataset %s line %d: %w", path, line, err)
		}
		if err := row(record); err != nil {
			return fmt.Errorf("dataset %s line %d: %w", path, line, err)
		}
	}
	return nil
}

// Write replaces the directory contents with the given tables.
func (s *CSVDir) Write(t query.Tables) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}

	err := s.writeFile("patients.csv", len(t.Patients), func(i int) []string {
		p := t.Patients[i]
		return []string{p.ID, p.Sex, formatDate(&p.DateOfBirth), formatDate(p.DateOfDeath)}
	})
	if err != nil {
		return err
	}

	err = s.writeFile("practice_registrations.csv", len(t.Registrations), func(i int) []string {
		r := t.Registrations[i]
		return []string{
			r.PatientID, formatDate(&r.StartDate), formatDate(r.EndDate),
			strconv.Itoa(r.PracticePseudoID), r.PracticeRegion,
		}
	})
	if err != nil {
		return err
	}

	err = s.writeFile("addresses.csv", len(t.Addresses), func(i int) []string {
		a := t.Addresses[i]
		return []string{
			a.PatientID, formatDate(a.StartDate), formatDate(a.EndDate),
			formatInt(a.IMDRounded), formatInt(a.RuralUrbanClassification),
		}
	})
	if err != nil {
		return err
	}

	err = s.writeFile("clinical_events.csv", len(t.Events), func(i int) []string {
		e := t.Events[i]
		return []string{e.PatientID, formatDate(&e.Date), e.SNOMEDCTCode, formatFloat(e.NumericValue)}
	})
	if err != nil {
		return err
	}

	return s.writeFile("medications.csv", len(t.Medications), func(i int) []string {
		m := t.Medications[i]
		return []string{m.PatientID, formatDate(&m.Date), m.DMDCode}
	})
}

func (s *CSVDir) writeFile(name string, rows int, record func(i int) []string) error {
	path := filepath.Join(s.dir, name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeaders[name]); err != nil {
		return fmt.Errorf("dataset %s: %w", path, err)
	}
	for i := 0; i < rows; i++ {
		if err := writer.Write(record(i)); err != nil {
			return fmt.Errorf("dataset %s: %w", path, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("dataset %s: %w", path, err)
	}
	return file.Close()
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func formatDate(d *time.Time) string {
	if d == nil {
		return ""
	}
	return d.Format(dateLayout)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
