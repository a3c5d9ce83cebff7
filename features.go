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
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureSource is a lazy, single-pass sequence of vector features.
// Iteration stops at the first non-nil error. Sources obtained from the
// constructors below can be ranged over directly.
type FeatureSource func(yield func(*geojson.Feature, error) bool)

// Features returns a FeatureSource over already-constructed features.
func Features(feats ...*geojson.Feature) FeatureSource {
	return func(yield func(*geojson.Feature, error) bool) {
		for _, f := range feats {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Geometries returns a FeatureSource over bare geometries, each wrapped
// in a feature without properties.
func Geometries(geoms ...orb.Geometry) FeatureSource {
	return func(yield func(*geojson.Feature, error) bool) {
		for _, g := range geoms {
			if !yield(geojson.NewFeature(g), nil) {
				return
			}
		}
	}
}

// Collection returns a FeatureSource over a feature collection.
func Collection(fc *geojson.FeatureCollection) FeatureSource {
	return Features(fc.Features...)
}

// GeoJSONFile returns a FeatureSource reading a GeoJSON file. The file
// may hold a FeatureCollection, a single Feature, or a bare geometry;
// it is read and parsed when iteration starts, not when the source is
// constructed.
func GeoJSONFile(path string) FeatureSource {
	return func(yield func(*geojson.Feature, error) bool) {
		data, err := os.ReadFile(path)
		if err != nil {
			yield(nil, err)
			return
		}
		feats, err := parseGeoJSON(data)
		if err != nil {
			yield(nil, fmt.Errorf("zonal: parsing %s: %w", path, err))
			return
		}
		for _, f := range feats {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// parseGeoJSON decodes a FeatureCollection, single Feature, or bare
// geometry document into a feature list.
func parseGeoJSON(data []byte) ([]*geojson.Feature, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		return fc.Features, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil {
		return []*geojson.Feature{f}, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
}
