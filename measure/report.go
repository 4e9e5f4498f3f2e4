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

package measure

import (
	"encoding/csv"
	"io"
	"strconv"
)

const dateLayout = "2006-01-02"

// WriteCSV writes result rows as one CSV table. The fixed columns are
// followed by the union of all group-by dimension names in first-seen
// order; cells of dimensions a measure does not group by stay empty.
func WriteCSV(w io.Writer, rows []ResultRow) error {
	var dimNames []string
	seen := make(map[string]int)
	for _, row := range rows {
		for _, g := range row.Groups {
			if _, ok := seen[g.Name]; !ok {
				seen[g.Name] = len(dimNames)
				dimNames = append(dimNames, g.Name)
			}
		}
	}

	writer := csv.NewWriter(w)
	header := append([]string{
		"measure", "interval_start", "interval_end",
		"ratio", "numerator", "denominator",
	}, dimNames...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Measure,
			row.Interval.Start.Format(dateLayout),
			row.Interval.End.Format(dateLayout),
			strconv.FormatFloat(row.Ratio, 'f', -1, 64),
			strconv.Itoa(row.Numerator),
			strconv.Itoa(row.Denominator),
		}
		cells := make([]string, len(dimNames))
		for _, g := range row.Groups {
			cells[seen[g.Name]] = g.Value
		}
		record = append(record, cells...)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
