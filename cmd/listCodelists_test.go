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
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencohort/cohortctl/codelist"
	"github.com/opencohort/cohortctl/study"
)

func TestCodelistInfos(t *testing.T) {
	set := codelist.Set{
		study.CodelistCHD: codelist.New(study.CodelistCHD, []string{"1", "2"}, nil),
		"local_extras":    codelist.New("local_extras", []string{"9"}, nil),
		study.CodelistEthnicity5: codelist.New(study.CodelistEthnicity5,
			[]string{"5"}, map[string]string{"5": "White"}),
	}

	infos := codelistInfos(set)

	require.Len(t, infos, 3)
	assert.Equal(t, codelistInfo{Name: study.CodelistCHD, Len: 2, Required: true}, infos[0])
	assert.Equal(t, codelistInfo{Name: study.CodelistEthnicity5, Len: 1, HasCategories: true, Required: true}, infos[1])
	assert.Equal(t, codelistInfo{Name: "local_extras", Len: 1}, infos[2])
}

func TestCodelistTemplate(t *testing.T) {
	infos := []codelistInfo{
		{Name: "chd_cod", Len: 42, Required: true},
		{Name: "ethnicity5", Len: 5, HasCategories: true, Required: true},
		{Name: "local_extras", Len: 1},
	}

	var buf bytes.Buffer
	require.NoError(t, codelistTemplate.Execute(&buf, infos))

	out := buf.String()
	assert.Contains(t, out, "42 codes (required)")
	assert.Contains(t, out, "codes, categorised (required)")

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "local_extras") {
			assert.NotContains(t, line, "(required)")
		}
	}
}
