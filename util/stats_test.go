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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateRateStatistics(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, RateStatistics{}, CalculateRateStatistics(nil))
	})

	t.Run("single rate", func(t *testing.T) {
		stats := CalculateRateStatistics([]float64{0.25})

		assert.Equal(t, 1, stats.Groups)
		assert.Equal(t, 0.25, stats.Min)
		assert.Equal(t, 0.25, stats.Mean)
		assert.Equal(t, 0.25, stats.Q50)
		assert.Equal(t, 0.25, stats.Max)
	})

	t.Run("unsorted input", func(t *testing.T) {
		stats := CalculateRateStatistics([]float64{0.4, 0.1, 0.3, 0.2})

		assert.Equal(t, 4, stats.Groups)
		assert.Equal(t, 0.1, stats.Min)
		assert.InDelta(t, 0.25, stats.Mean, 1e-12)
		assert.Equal(t, 0.3, stats.Q50)
		assert.Equal(t, 0.4, stats.Max)
	})

	t.Run("input left untouched", func(t *testing.T) {
		rates := []float64{0.4, 0.1, 0.3}

		CalculateRateStatistics(rates)

		assert.Equal(t, []float64{0.4, 0.1, 0.3}, rates)
	})
}

func TestRateStatisticsString(t *testing.T) {
	stats := CalculateRateStatistics([]float64{0.1, 0.2, 0.3, 0.4})

	s := stats.String()

	assert.Contains(t, s, "Groups\t[total]\t\t\t4\n")
	assert.Contains(t, s, "Rates\t[min, mean, max]\t0.1000, 0.2500, 0.4000\n")
}
