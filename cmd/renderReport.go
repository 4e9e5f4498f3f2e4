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

package cmd

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"html/template"

	fm "github.com/samply/golang-fhir-models/fhir-models/fhir"
	"github.com/spf13/cobra"
)

//go:embed report-template.gohtml
var reportTemplate string

func populationCount(populations []fm.MeasureReportGroupPopulation, code string) int {
	for _, population := range populations {
		if population.Code == nil || population.Count == nil {
			continue
		}
		for _, coding := range population.Code.Coding {
			if coding.Code != nil && *coding.Code == code {
				return *population.Count
			}
		}
	}
	return 0
}

func stratumPopulationCount(populations []fm.MeasureReportGroupStratifierStratumPopulation, code string) int {
	for _, population := range populations {
		if population.Code == nil || population.Count == nil {
			continue
		}
		for _, coding := range population.Code.Coding {
			if coding.Code != nil && *coding.Code == code {
				return *population.Count
			}
		}
	}
	return 0
}

func renderReports(wr io.Writer, reports []fm.MeasureReport) error {
	funcMap := template.FuncMap{
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"score": func(q *fm.Quantity) string {
			if q == nil || q.Value == nil {
				return ""
			}
			return q.Value.String()
		},
		"populationCount": func(g fm.MeasureReportGroup, code string) int {
			return populationCount(g.Population, code)
		},
		"stratumCount": func(s fm.MeasureReportGroupStratifierStratum, code string) int {
			return stratumPopulationCount(s.Population, code)
		},
		"stratumLabel": func(s fm.MeasureReportGroupStratifierStratum) string {
			if s.Value != nil && s.Value.Text != nil {
				return *s.Value.Text
			}
			parts := make([]string, 0, len(s.Component))
			for _, component := range s.Component {
				name := ""
				value := ""
				if component.Code.Text != nil {
					name = *component.Code.Text
				}
				if component.Value.Text != nil {
					value = *component.Value.Text
				}
				parts = append(parts, name+"="+value)
			}
			return strings.Join(parts, ", ")
		},
	}

	tmpl := template.Must(template.New("report").Funcs(funcMap).Parse(reportTemplate))

	return tmpl.Execute(wr, reports)
}

// decodeReports accepts either a Bundle of MeasureReports or one bare
// MeasureReport.
func decodeReports(data []byte) ([]fm.MeasureReport, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.ResourceType {
	case "Bundle":
		bundle, err := fm.UnmarshalBundle(data)
		if err != nil {
			return nil, err
		}
		reports := make([]fm.MeasureReport, 0, len(bundle.Entry))
		for _, entry := range bundle.Entry {
			report, err := fm.UnmarshalMeasureReport(entry.Resource)
			if err != nil {
				return nil, err
			}
			reports = append(reports, report)
		}
		return reports, nil
	case "MeasureReport":
		report, err := fm.UnmarshalMeasureReport(data)
		if err != nil {
			return nil, err
		}
		return []fm.MeasureReport{report}, nil
	default:
		return nil, fmt.Errorf("expected a Bundle or MeasureReport, got %q", probe.ResourceType)
	}
}

var renderReportCmd = &cobra.Command{
	Use:   "render-report",
	Short: "Renders MeasureReports as HTML",
	Long:  `Reads a Bundle of FHIR MeasureReports (or a single report) from stdin and writes an HTML table to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}

		reports, err := decodeReports(data)
		if err != nil {
			return err
		}

		return renderReports(os.Stdout, reports)
	},
}

func init() {
	rootCmd.AddCommand(renderReportCmd)
}
