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

package util

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// RateStatistics summarises the distribution of per-group rates of one
// measure. Comprises the min, mean and max as well as different
// percentiles (50, 95 and 99).
type RateStatistics struct {
	Groups                        int
	Min, Mean, Q50, Q95, Q99, Max float64
}

// CalculateRateStatistics calculates the RateStatistics for a set of
// given rates.
func CalculateRateStatistics(rates []float64) RateStatistics {
	if len(rates) == 0 {
		return RateStatistics{}
	}

	sorted := make([]float64, len(rates))
	copy(sorted, rates)
	sort.Float64s(sorted)
	return RateStatistics{
		Groups: len(sorted),
		Min:    sorted[0],
		Mean:   floats.Sum(sorted) / float64(len(sorted)),
		Q50:    sorted[len(sorted)/2],
		Q95:    sorted[int(float32(len(sorted))*0.95)],
		Q99:    sorted[int(float32(len(sorted))*0.99)],
		Max:    sorted[len(sorted)-1],
	}
}

// String returns the statistics formatted as a summary block.
func (rs RateStatistics) String() string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("Groups\t[total]\t\t\t%d\n", rs.Groups))
	builder.WriteString(fmt.Sprintf("Rates\t[min, mean, max]\t%.4f, %.4f, %.4f\n", rs.Min, rs.Mean, rs.Max))
	builder.WriteString(fmt.Sprintf("Rates\t[50, 95, 99]\t\t%.4f, %.4f, %.4f\n", rs.Q50, rs.Q95, rs.Q99))
	return builder.String()
}
