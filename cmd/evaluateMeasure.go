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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/opencohort/cohortctl/fhir"
	"github.com/opencohort/cohortctl/measure"
	"github.com/opencohort/cohortctl/query"
	"github.com/opencohort/cohortctl/store"
	"github.com/opencohort/cohortctl/study"
	"github.com/opencohort/cohortctl/util"
)

var datasetPath string
var outputFile string
var fhirOutputFile string
var maxIntervals int
var extraGroupBy []string

func newProgress() *mpb.Progress {
	if noProgress {
		return mpb.New(mpb.WithOutput(io.Discard))
	}
	return mpb.New(mpb.WithOutput(os.Stderr))
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluates the prescribing measure against a dataset",
	Long: `Loads the codelists and the dataset snapshot, builds the cohort and
measure definition, evaluates every complete 2-month interval and writes
per-interval per-group counts and rates as CSV.

The dataset is either a directory of CSV files or a SQLite file. Optional
stratification dimensions can be activated by name with --group-by;
available names are listed by passing an unknown one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		codelists, err := loadCodelists()
		if err != nil {
			return err
		}

		definition, err := study.Define(codelists)
		if err != nil {
			return err
		}
		for _, name := range extraGroupBy {
			if err := definition.ActivateDimension(name); err != nil {
				return fmt.Errorf("%w (available: %v)", err, definition.Dimensions())
			}
		}

		st, err := store.Open(datasetPath)
		if err != nil {
			return err
		}
		defer st.Close()

		tables, err := st.Read()
		if err != nil {
			return err
		}
		dataset := query.BuildDataset(tables)

		opts := measure.Options{MaxIntervals: maxIntervals}

		progress := newProgress()
		bar := progress.AddBar(int64(measure.TotalIntervals(definition.Registry, opts)),
			mpb.BarRemoveOnComplete(),
			mpb.PrependDecorators(
				decor.Name("evaluate"),
				decor.CountersNoUnit(" %d / %d"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)
		opts.OnInterval = bar.Increment

		rows := measure.Evaluate(definition.Registry, dataset, opts)
		progress.Wait()

		out := os.Stdout
		if outputFile != "" {
			out = util.CreateOutputFileOrDie(outputFile)
			defer out.Close()
		}
		if err := measure.WriteCSV(out, rows); err != nil {
			return err
		}

		if fhirOutputFile != "" {
			if err := writeFHIRBundle(fhirOutputFile, rows); err != nil {
				return err
			}
		}

		printRateStatistics(rows)
		return nil
	},
}

func writeFHIRBundle(path string, rows []measure.ResultRow) error {
	reports := fhir.BuildReports(rows, time.Now())
	bundle, err := fhir.BuildBundle(reports)
	if err != nil {
		return err
	}
	bundleBytes, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	out := util.CreateOutputFileOrDie(path)
	defer out.Close()
	_, err = out.Write(bundleBytes)
	return err
}

// printRateStatistics prints one summary block per measure over the rates
// of its most recent interval.
func printRateStatistics(rows []measure.ResultRow) {
	type lastInterval struct {
		start time.Time
		rates []float64
	}
	order := make([]string, 0)
	byMeasure := make(map[string]*lastInterval)
	for _, row := range rows {
		li, ok := byMeasure[row.Measure]
		if !ok {
			li = &lastInterval{}
			byMeasure[row.Measure] = li
			order = append(order, row.Measure)
		}
		if row.Interval.Start.After(li.start) {
			li.start = row.Interval.Start
			li.rates = li.rates[:0]
		}
		li.rates = append(li.rates, row.Ratio)
	}

	for _, name := range order {
		li := byMeasure[name]
		fmt.Fprintf(os.Stderr, "\n%s (interval starting %s):\n%s",
			name, li.start.Format("2006-01-02"),
			util.CalculateRateStatistics(li.rates))
	}
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&datasetPath, "dataset", "", "dataset snapshot: CSV directory or SQLite file")
	evaluateCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "write the CSV report here instead of stdout")
	evaluateCmd.Flags().StringVar(&fhirOutputFile, "fhir", "", "also write a Bundle of FHIR MeasureReports here")
	evaluateCmd.Flags().IntVar(&maxIntervals, "intervals", 0, "cap the number of evaluated intervals (0 = all complete ones)")
	evaluateCmd.Flags().StringSliceVar(&extraGroupBy, "group-by", nil, "activate additional stratification dimensions by name")

	_ = evaluateCmd.MarkFlagRequired("dataset")
}
