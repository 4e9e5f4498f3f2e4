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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/opencohort/cohortctl/dummy"
	"github.com/opencohort/cohortctl/store"
	"github.com/opencohort/cohortctl/study"
)

var dummyDatasetPath string
var populationSize int
var seed int64

var generateDummyDataCmd = &cobra.Command{
	Use:   "generate-dummy-data",
	Short: "Generates a dummy dataset for local runs",
	Long: `Generates a synthetic dataset snapshot sized by the study's dummy data
configuration and writes it to a CSV directory or a SQLite file. The same
seed reproduces the same dataset.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		codelists, err := loadCodelists()
		if err != nil {
			return err
		}

		definition, err := study.Define(codelists)
		if err != nil {
			return err
		}

		size := populationSize
		if size == 0 {
			size = definition.Registry.DummyPopulationSize()
		}

		progress := newProgress()
		bar := progress.AddBar(int64(size),
			mpb.BarRemoveOnComplete(),
			mpb.PrependDecorators(
				decor.Name("generate"),
				decor.CountersNoUnit(" %d / %d"),
			),
			mpb.AppendDecorators(decor.Percentage()),
		)

		tables, err := dummy.Generate(dummy.Config{
			PopulationSize: size,
			Seed:           seed,
			OnPatient:      bar.Increment,
		}, codelists)
		if err != nil {
			bar.Abort(true)
			progress.Wait()
			return err
		}
		progress.Wait()

		st, err := store.Open(dummyDatasetPath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Write(tables); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Generated %d patients, %d registrations, %d clinical events, %d dispensings into %s\n",
			len(tables.Patients), len(tables.Registrations), len(tables.Events), len(tables.Medications),
			dummyDatasetPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateDummyDataCmd)

	generateDummyDataCmd.Flags().StringVar(&dummyDatasetPath, "dataset", "", "where to write the snapshot: CSV directory or SQLite file")
	generateDummyDataCmd.Flags().IntVar(&populationSize, "population", 0, "override the configured population size")
	generateDummyDataCmd.Flags().Int64Var(&seed, "seed", 0, "random seed")

	_ = generateDummyDataCmd.MarkFlagRequired("dataset")
}
