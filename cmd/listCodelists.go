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
	"os"
	"sort"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/opencohort/cohortctl/codelist"
	"github.com/opencohort/cohortctl/study"
)

var codelistTemplate = template.Must(template.New("codelists").Parse(
	`{{ range . -}}
{{ printf "%-20s" .Name }} {{ printf "%6d" .Len }} codes{{ if .HasCategories }}, categorised{{ end }}{{ if .Required }} (required){{ end }}
{{ end -}}
`))

type codelistInfo struct {
	Name          string
	Len           int
	HasCategories bool
	Required      bool
}

func codelistInfos(set codelist.Set) []codelistInfo {
	required := make(map[string]bool)
	for _, name := range study.RequiredCodelists() {
		required[name] = true
	}

	infos := make([]codelistInfo, 0, len(set))
	for name, cl := range set {
		infos = append(infos, codelistInfo{
			Name:          name,
			Len:           cl.Len(),
			HasCategories: cl.HasCategories(),
			Required:      required[name],
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

var listCodelistsCmd = &cobra.Command{
	Use:   "codelists",
	Short: "Loads and lists the codelists of the manifest",
	Long: `Resolves every codelist listed in the manifest and prints its size.
Any missing file or malformed column fails the whole command, so this
doubles as a validity check of the manifest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		set, err := loadCodelists()
		if err != nil {
			return err
		}
		return codelistTemplate.Execute(os.Stdout, codelistInfos(set))
	},
}

func init() {
	rootCmd.AddCommand(listCodelistsCmd)
}
