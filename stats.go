// seehuhn.de/go/zonal - zonal statistics of raster data over vector geometries
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package zonal

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// validStats lists the built-in statistic names, in addition to the
// percentile_N family.
var validStats = []string{
	"count", "min", "max", "mean", "sum", "std", "median",
	"majority", "minority", "unique", "range", "nodata",
	"weighted_mean", "weighted_count", "weighted_sum",
}

// defaultStats is the selection used when Options.Stats is empty.
var defaultStats = []string{"count", "min", "max", "mean"}

// StatNames splits a whitespace-delimited statistics selection, e.g.
// "count mean percentile_90", into the form Options.Stats expects.
func StatNames(spec string) []string {
	return strings.Fields(spec)
}

// statsPlan is the validated statistics selection together with the
// derived requirements of the aggregation loop.
type statsPlan struct {
	stats       []string            // resolved selection, in request order
	has         map[string]bool     // membership in stats
	percentiles map[string]float64  // percentile_N name -> N
	runHist     bool                // a per-value histogram is needed
	runWeights  bool                // coverage weights are needed
}

// newStatsPlan validates and resolves a statistics selection. Unknown
// names fail with ErrInvalidStat, malformed percentile specs with
// ErrInvalidPercentile; both before any raster access happens.
func newStatsPlan(stats []string, categorical bool) (*statsPlan, error) {
	if len(stats) == 0 {
		stats = defaultStats
	}
	p := &statsPlan{
		stats:       make([]string, 0, len(stats)),
		has:         make(map[string]bool, len(stats)),
		percentiles: make(map[string]float64),
	}
	for _, s := range stats {
		if strings.HasPrefix(s, "percentile_") {
			q, err := parsePercentile(s)
			if err != nil {
				return nil, err
			}
			p.percentiles[s] = q
		} else if !slices.Contains(validStats, s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStat, s)
		}
		if !p.has[s] {
			p.stats = append(p.stats, s)
			p.has[s] = true
		}
	}

	p.runHist = categorical || p.has["majority"] || p.has["minority"] || p.has["unique"]
	p.runWeights = p.has["weighted_mean"] || p.has["weighted_count"] || p.has["weighted_sum"]
	return p, nil
}

// parsePercentile extracts N from a "percentile_N" statistic name.
// N must be numeric and within [0, 100].
func parsePercentile(s string) (float64, error) {
	q, err := strconv.ParseFloat(strings.TrimPrefix(s, "percentile_"), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPercentile, s)
	}
	if math.IsNaN(q) || q < 0 || q > 100 {
		return 0, fmt.Errorf("%w: %q not in [0, 100]", ErrInvalidPercentile, s)
	}
	return q, nil
}

// empty fills fs with the result for a feature with no surviving cells:
// every requested statistic is nil, except count, which is 0.
func (p *statsPlan) empty(fs FeatureStats) {
	for _, s := range p.stats {
		fs[s] = nil
	}
	if p.has["count"] {
		fs["count"] = 0
	}
}

// populate computes the requested statistics over the surviving values
// and stores them in fs. weights is the per-cell coverage weight grid
// aligned with masked, or nil when weights are unavailable for this
// feature (weighted statistics then resolve to nil).
func (p *statsPlan) populate(fs FeatureStats, masked *Masked, compressed []float64, weights []float64, categorical bool, catMap map[float64]string) {
	var keys []float64
	var counts map[float64]int
	if p.runHist {
		keys, counts = histogram(compressed)
		if categorical {
			for _, k := range keys {
				label, ok := catMap[k]
				if !ok {
					label = formatKey(k)
				}
				fs[label] = counts[k]
			}
		}
	}

	if p.runWeights {
		p.populateWeighted(fs, masked, weights)
	}

	if p.has["mean"] {
		fs["mean"] = sum(compressed) / float64(len(compressed))
	}
	if p.has["count"] {
		fs["count"] = len(compressed)
	}
	if p.has["sum"] {
		fs["sum"] = sum(compressed)
	}

	var minVal, maxVal float64
	if p.has["min"] || p.has["max"] || p.has["range"] {
		minVal, maxVal = minMax(compressed)
	}
	if p.has["min"] {
		fs["min"] = minVal
	}
	if p.has["max"] {
		fs["max"] = maxVal
	}
	if p.has["range"] {
		fs["range"] = maxVal - minVal
	}

	if p.has["std"] {
		fs["std"] = stdPop(compressed)
	}

	if p.has["majority"] {
		fs["majority"] = extremeKey(keys, counts, true)
	}
	if p.has["minority"] {
		fs["minority"] = extremeKey(keys, counts, false)
	}
	if p.has["unique"] {
		fs["unique"] = len(keys)
	}

	if p.has["median"] || len(p.percentiles) > 0 {
		sorted := make([]float64, len(compressed))
		copy(sorted, compressed)
		slices.Sort(sorted)
		if p.has["median"] {
			fs["median"] = percentile(sorted, 50)
		}
		for name, q := range p.percentiles {
			fs[name] = percentile(sorted, q)
		}
	}
}

// populateWeighted computes the coverage-weighted statistics over the
// surviving cells of the masked grid.
func (p *statsPlan) populateWeighted(fs FeatureStats, masked *Masked, weights []float64) {
	if weights == nil {
		// zero-area geometry: sub-cell coverage is undefined
		for _, s := range []string{"weighted_mean", "weighted_count", "weighted_sum"} {
			if p.has[s] {
				fs[s] = nil
			}
		}
		return
	}

	var wSum, vwSum float64
	for i, excluded := range masked.Mask {
		if excluded {
			continue
		}
		wSum += weights[i]
		vwSum += masked.Values[i] * weights[i]
	}

	if p.has["weighted_mean"] {
		if wSum > 0 {
			fs["weighted_mean"] = vwSum / wSum
		} else {
			fs["weighted_mean"] = nil
		}
	}
	if p.has["weighted_count"] {
		fs["weighted_count"] = wSum
	}
	if p.has["weighted_sum"] {
		fs["weighted_sum"] = vwSum
	}
}

// histogram returns the distinct surviving values in ascending order
// and their occurrence counts.
func histogram(values []float64) ([]float64, map[float64]int) {
	counts := make(map[float64]int)
	for _, v := range values {
		counts[v]++
	}
	keys := make([]float64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, counts
}

// extremeKey returns the histogram key with the highest (most=true) or
// lowest count. Ties break towards the smallest value: keys are scanned
// in ascending order and a later key must be strictly better to win.
func extremeKey(keys []float64, counts map[float64]int, most bool) float64 {
	best := keys[0]
	for _, k := range keys[1:] {
		if most && counts[k] > counts[best] {
			best = k
		} else if !most && counts[k] < counts[best] {
			best = k
		}
	}
	return best
}

// formatKey renders a histogram key for use as a statistic name, so
// that integral cell values come out as "1", "2", ...
func formatKey(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// percentile computes the linear-interpolation percentile q over
// already-sorted values. q must be in [0, 100] and values non-empty.
func percentile(sorted []float64, q float64) float64 {
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// sum returns the sum of values.
func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

// minMax returns the smallest and largest value. values must be
// non-empty.
func minMax(values []float64) (minVal, maxVal float64) {
	minVal = values[0]
	maxVal = values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}

// stdPop returns the population standard deviation (not the sample
// standard deviation). values must be non-empty.
func stdPop(values []float64) float64 {
	mean := sum(values) / float64(len(values))
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}
