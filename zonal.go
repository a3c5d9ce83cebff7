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

// Package zonal computes zonal statistics: aggregate measures of raster
// cell values restricted to the footprint of vector geometries. For
// each feature the raster window covering the geometry's bounding box
// is read, the geometry is rasterised to a coverage mask on that
// window's grid, nodata and uncovered cells are excluded, and the
// requested statistics are computed over the surviving values.
//
// Features are processed one at a time; peak memory scales with the
// largest single geometry's bounding box, never with the full raster.
package zonal

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/paulmach/orb/geojson"

	"seehuhn.de/go/geom/matrix"
)

// Errors reported by this package. Validation errors surface before any
// feature is processed; ErrTooLarge is handled internally by skipping
// the offending feature; ErrMaskShape signals a rasteriser defect and
// stops iteration.
var (
	ErrInvalidStat       = errors.New("zonal: unknown statistic")
	ErrInvalidPercentile = errors.New("zonal: malformed percentile")
	ErrGeometryType      = errors.New("zonal: unsupported geometry type")
	ErrMaskShape         = errors.New("zonal: coverage mask shape disagrees with window")
	ErrTooLarge          = errors.New("zonal: cell budget exceeded")
	ErrRotated           = errors.New("zonal: rotated transforms are not supported")
)

// DefaultMaxCells is the per-feature cell budget used when
// Options.MaxCells is zero. It bounds the window read for one feature
// and the supersampled grid of the coverage-weight estimate.
const DefaultMaxCells = 1 << 26

// defaultPointBoxWidth is the footprint width, in cells, used for
// Point and MultiPoint geometries when Options.PointBoxWidth is zero.
const defaultPointBoxWidth = 3

// FeatureStats maps statistic names to computed values. Values are
// float64, or int for count and unique and for categorical histogram
// counts, or nil for statistics that are undefined on the feature
// (no surviving cells, or weighted statistics on a point feature).
type FeatureStats map[string]any

// StatFunc is a caller-supplied statistic over the full masked window.
// A non-nil error aborts the whole run; correctness of custom
// statistics is the caller's responsibility and failures are not
// isolated per feature.
type StatFunc func(*Masked) (float64, error)

// Options configures a zonal statistics run. The zero value requests
// the default statistics (count, min, max, mean) with center-in-polygon
// masking.
type Options struct {
	// Stats selects the statistics to compute. Valid names are count,
	// min, max, mean, sum, std, median, majority, minority, unique,
	// range, nodata, weighted_mean, weighted_count, weighted_sum, and
	// percentile_N with N in [0, 100]. Empty means the default subset.
	Stats []string

	// AllTouched includes every cell touched by the geometry instead of
	// only cells whose center lies inside it. Forced on when any
	// weighted statistic is requested, since center masking is
	// incompatible with fractional coverage weighting.
	AllTouched bool

	// Categorical emits the per-value histogram of surviving cells as
	// the feature's statistics.
	Categorical bool

	// CategoryMap relabels histogram keys in categorical mode. Unmapped
	// values keep their numeric key.
	CategoryMap map[float64]string

	// AddStats holds custom statistics, computed per feature over the
	// masked window and stored under their map key.
	AddStats map[string]StatFunc

	// RasterOut attaches the masked sub-raster, its transform and its
	// nodata value to each result.
	RasterOut bool

	// Prefix is prepended to every statistic key.
	Prefix string

	// SaveProperties merges the statistics into the feature's
	// properties and returns those.
	SaveProperties bool

	// GeoJSONOut returns the full input feature with the statistics
	// merged into its properties. Use together with Prefix to keep
	// property names unique.
	GeoJSONOut bool

	// PointBoxWidth is the footprint width, in cells, given to Point
	// and MultiPoint geometries. Must be odd; 0 means 3.
	PointBoxWidth int

	// MaxCells is the per-feature cell budget. Features needing more
	// are skipped. 0 means DefaultMaxCells; negative means no limit.
	MaxCells int

	// Log receives skipped-feature diagnostics. Nil means
	// slog.Default().
	Log *slog.Logger
}

// ZoneResult is the outcome for one feature. Stats is always set;
// Properties and Feature are set in the properties-preserving output
// modes, and the MiniRaster fields when raster output is requested.
type ZoneResult struct {
	Stats FeatureStats

	// Properties are the feature's properties with the statistics
	// merged in (SaveProperties or GeoJSONOut).
	Properties geojson.Properties

	// Feature is the input feature carrying the merged properties
	// (GeoJSONOut).
	Feature *geojson.Feature

	// MiniRaster is the masked window of this feature (RasterOut),
	// with its pixel-to-world transform and nodata value.
	MiniRaster          *Masked
	MiniRasterTransform matrix.Matrix
	MiniRasterNodata    *float64
}

// normalize validates opt and resolves the statistics plan. This is the
// single place where the weighted-statistics selection forces the
// all-touched policy on.
func normalize(opt *Options) (Options, *statsPlan, error) {
	var o Options
	if opt != nil {
		o = *opt
	}

	plan, err := newStatsPlan(o.Stats, o.Categorical)
	if err != nil {
		return o, nil, err
	}
	if plan.runWeights {
		o.AllTouched = true
	}

	if o.PointBoxWidth == 0 {
		o.PointBoxWidth = defaultPointBoxWidth
	}
	if o.PointBoxWidth < 1 || o.PointBoxWidth%2 == 0 {
		return o, nil, fmt.Errorf("zonal: point box width must be odd and positive, got %d", o.PointBoxWidth)
	}
	if o.MaxCells == 0 {
		o.MaxCells = DefaultMaxCells
	}
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o, plan, nil
}

// ZonalStats computes statistics for every feature and returns them as
// a slice, one result per feature in input order. Features whose cell
// budget is exceeded are skipped and absent from the result.
func ZonalStats(src FeatureSource, raster Raster, opt *Options) ([]*ZoneResult, error) {
	seq, err := Generate(src, raster, opt)
	if err != nil {
		return nil, err
	}
	var results []*ZoneResult
	for res, err := range seq {
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Generate returns a lazily-produced, one-pass sequence of results, one
// per input feature in input order. Invalid options are reported
// immediately, before any feature is touched. Stopping iteration early
// acquires no further raster windows.
//
// Features that exceed the cell budget are logged together with their
// properties and silently omitted from the sequence; any other error
// ends the sequence.
func Generate(src FeatureSource, raster Raster, opt *Options) (iter.Seq2[*ZoneResult, error], error) {
	o, plan, err := normalize(opt)
	if err != nil {
		return nil, err
	}

	seq := func(yield func(*ZoneResult, error) bool) {
		for feat, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}

			out, err := processFeature(raster, feat, plan, &o)
			if err != nil {
				yield(nil, err)
				return
			}
			if out.skip != nil {
				o.Log.Warn("skipping feature",
					slog.Any("reason", out.skip),
					slog.Any("properties", feat.Properties))
				continue
			}
			if !yield(out.result, nil) {
				return
			}
		}
	}
	return seq, nil
}

// outcome is the per-feature result of the aggregation pipeline: either
// a computed result or a skip reason. Fatal conditions are returned as
// errors by processFeature instead.
type outcome struct {
	result *ZoneResult
	skip   error
}

// processFeature runs the per-feature pipeline: window acquisition,
// rasterisation, masking, compression, and statistics.
func processFeature(raster Raster, feat *geojson.Feature, plan *statsPlan, o *Options) (outcome, error) {
	geom := feat.Geometry
	if geom == nil {
		return outcome{}, fmt.Errorf("%w: feature has no geometry", ErrGeometryType)
	}

	// Zero-area geometries get a box footprint, and sub-cell coverage
	// is undefined for them.
	weights := plan.runWeights
	if isPointKind(geom) {
		weights = false
		var err error
		geom, err = boxifyPoints(geom, raster.Transform(), o.PointBoxWidth)
		if err != nil {
			return outcome{}, err
		}
	}

	w, err := raster.Read(geom.Bound(), o.MaxCells)
	if errors.Is(err, ErrTooLarge) {
		return outcome{skip: err}, nil
	}
	if err != nil {
		return outcome{}, err
	}

	mask, err := rasterizeMask(geom, w.Transform, w.Rows, w.Cols, o.AllTouched)
	if err != nil {
		return outcome{}, err
	}
	if len(mask) != w.Cells() {
		return outcome{}, fmt.Errorf("%w: mask has %d cells, window %d×%d",
			ErrMaskShape, len(mask), w.Rows, w.Cols)
	}

	fs := FeatureStats{}

	// nodata counting uses only the coverage mask, independent of the
	// main exclusion mask
	if plan.has["nodata"] {
		n := 0
		for i, covered := range mask {
			if covered && w.isNodata(w.Data[i]) {
				n++
			}
		}
		fs["nodata"] = float64(n)
	}

	// main exclusion: not covered, or nodata
	excluded := make([]bool, len(mask))
	for i, covered := range mask {
		excluded[i] = !covered || w.isNodata(w.Data[i])
	}
	masked := &Masked{Values: w.Data, Mask: excluded, Rows: w.Rows, Cols: w.Cols}

	compressed := masked.Compressed()
	if len(compressed) == 0 {
		fs = FeatureStats{}
		plan.empty(fs)
	} else {
		var wts []float64
		if weights {
			wts, err = coverageWeights(geom, w.Transform, w.Rows, w.Cols, o.MaxCells)
			if errors.Is(err, ErrTooLarge) {
				return outcome{skip: err}, nil
			}
			if err != nil {
				return outcome{}, err
			}
		}
		plan.populate(fs, masked, compressed, wts, o.Categorical, o.CategoryMap)
	}

	for name, fn := range o.AddStats {
		v, err := fn(masked)
		if err != nil {
			return outcome{}, fmt.Errorf("zonal: custom statistic %q: %w", name, err)
		}
		fs[name] = v
	}

	if o.Prefix != "" {
		prefixed := make(FeatureStats, len(fs))
		for k, v := range fs {
			prefixed[o.Prefix+k] = v
		}
		fs = prefixed
	}

	res := &ZoneResult{Stats: fs}
	if o.RasterOut {
		res.MiniRaster = masked
		res.MiniRasterTransform = w.Transform
		res.MiniRasterNodata = w.Nodata
	}
	if o.SaveProperties || o.GeoJSONOut {
		if feat.Properties == nil {
			feat.Properties = geojson.Properties{}
		}
		for k, v := range fs {
			feat.Properties[k] = v
		}
		res.Properties = feat.Properties
		if o.GeoJSONOut {
			res.Feature = feat
		}
	}
	return outcome{result: res}, nil
}
