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
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func collectFeatures(t *testing.T, src FeatureSource) []*geojson.Feature {
	t.Helper()
	var feats []*geojson.Feature
	for f, err := range src {
		if err != nil {
			t.Fatal(err)
		}
		feats = append(feats, f)
	}
	return feats
}

func TestFeatureSources(t *testing.T) {
	g := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}

	t.Run("geometries", func(t *testing.T) {
		feats := collectFeatures(t, Geometries(g, g))
		if len(feats) != 2 {
			t.Fatalf("got %d features, want 2", len(feats))
		}
		if feats[0].Geometry == nil {
			t.Error("geometry not wrapped")
		}
	})

	t.Run("collection", func(t *testing.T) {
		fc := geojson.NewFeatureCollection()
		fc.Append(geojson.NewFeature(g))
		feats := collectFeatures(t, Collection(fc))
		if len(feats) != 1 {
			t.Fatalf("got %d features, want 1", len(feats))
		}
	})

	t.Run("early stop", func(t *testing.T) {
		n := 0
		for range Geometries(g, g, g) {
			n++
			break
		}
		if n != 1 {
			t.Errorf("iterated %d features after break, want 1", n)
		}
	})
}

func TestGeoJSONFile(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name string
		doc  string
		want int
	}{
		{
			"collection",
			`{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[1,2]}},
				{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Point","coordinates":[3,4]}}]}`,
			2,
		},
		{
			"feature",
			`{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}`,
			1,
		},
		{
			"geometry",
			`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`,
			1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".geojson")
			if err := os.WriteFile(path, []byte(tc.doc), 0o666); err != nil {
				t.Fatal(err)
			}
			feats := collectFeatures(t, GeoJSONFile(path))
			if len(feats) != tc.want {
				t.Errorf("got %d features, want %d", len(feats), tc.want)
			}
		})
	}

	t.Run("missing", func(t *testing.T) {
		var last error
		for _, err := range GeoJSONFile(filepath.Join(dir, "does-not-exist.geojson")) {
			last = err
		}
		if last == nil {
			t.Error("missing file did not report an error")
		}
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.geojson")
		if err := os.WriteFile(path, []byte("not json"), 0o666); err != nil {
			t.Fatal(err)
		}
		var last error
		for _, err := range GeoJSONFile(path) {
			last = err
		}
		if last == nil {
			t.Error("malformed file did not report an error")
		}
	})
}
