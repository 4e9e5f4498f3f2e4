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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opencohort/cohortctl/codelist"
)

var codelistManifest string
var noProgress bool

// loadCodelists resolves every codelist listed in the manifest, with
// relative file paths resolved against the manifest's directory.
func loadCodelists() (codelist.Set, error) {
	manifest, err := codelist.LoadManifest(codelistManifest)
	if err != nil {
		return nil, err
	}
	return manifest.Resolve(filepath.Dir(codelistManifest))
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cohortctl",
	Short: "Define and evaluate EHR cohort measures from the command line",
	Long: `cohortctl evaluates the atorvastatin 20mg prescribing measure: counts
and rates of atorvastatin 20mg prescribing in patients aged 40-84 at
intermediate cardiovascular risk with no history of cardiovascular
events, stratified by practice.

You can generate a dummy dataset, evaluate the measure against a local
dataset snapshot and render the resulting report.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&codelistManifest, "codelists", "codelists.yaml", "path to the codelist manifest")
	rootCmd.PersistentFlags().BoolVarP(&noProgress, "no-progress", "", false, "don't show progress bar")
}
