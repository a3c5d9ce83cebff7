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
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestCoverageWeightsRange(t *testing.T) {
	tr := NewAffine(0, 4, 1, 1)
	poly := orb.Polygon{{{0.3, 0.7}, {3.2, 1.1}, {1.7, 3.4}, {0.3, 0.7}}}

	w, err := coverageWeights(poly, tr, 4, 4, DefaultMaxCells)
	if err != nil {
		t.Fatal(err)
	}
	if len(w) != 16 {
		t.Fatalf("got %d weights, want 16", len(w))
	}
	for i, wi := range w {
		if wi < 0 || wi > 1 {
			t.Errorf("weight[%d] = %g out of [0,1]", i, wi)
		}
	}
}

func TestCoverageWeightsAlignedRect(t *testing.T) {
	// a 2×2 rectangle aligned to cell boundaries: exactly four cells
	// with weight 1, everything else 0
	tr := NewAffine(0, 4, 1, 1)
	rect := orb.Polygon{{{0, 1}, {2, 1}, {2, 3}, {0, 3}, {0, 1}}}

	w, err := coverageWeights(rect, tr, 4, 4, DefaultMaxCells)
	if err != nil {
		t.Fatal(err)
	}
	total := 0.0
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			wi := w[row*4+col]
			total += wi
			inside := row >= 1 && row < 3 && col < 2
			if inside && wi != 1 {
				t.Errorf("cell (%d,%d) weight = %g, want exactly 1", row, col, wi)
			}
			if !inside && wi != 0 {
				t.Errorf("cell (%d,%d) weight = %g, want exactly 0", row, col, wi)
			}
		}
	}
	if total != 4 {
		t.Errorf("total weight = %g, want exactly 4", total)
	}
}

func TestCoverageWeightsHalfPixel(t *testing.T) {
	// a rectangle covering the left half of a single column of cells
	tr := NewAffine(0, 2, 1, 1)
	rect := orb.Polygon{{{0, 0}, {0.5, 0}, {0.5, 2}, {0, 2}, {0, 0}}}

	w, err := coverageWeights(rect, tr, 2, 2, DefaultMaxCells)
	if err != nil {
		t.Fatal(err)
	}
	for row := 0; row < 2; row++ {
		if got := w[row*2+0]; got != 0.5 {
			t.Errorf("cell (%d,0) weight = %g, want 0.5", row, got)
		}
		if got := w[row*2+1]; got != 0 {
			t.Errorf("cell (%d,1) weight = %g, want 0", row, got)
		}
	}
}

func TestCoverageWeightsTriangleArea(t *testing.T) {
	// total weight approximates the triangle's area in cell units
	tr := NewAffine(0, 8, 1, 1)
	tri := orb.Polygon{{{1, 1}, {7, 1}, {1, 7}, {1, 1}}}
	area := 18.0

	w, err := coverageWeights(tri, tr, 8, 8, DefaultMaxCells)
	if err != nil {
		t.Fatal(err)
	}
	total := 0.0
	for _, wi := range w {
		total += wi
	}
	// supersampling quantises each fine cell to 1/coverScale² of a cell
	if math.Abs(total-area) > 0.5 {
		t.Errorf("total weight = %g, want ~%g", total, area)
	}
}

func TestCoverageWeightsOverlap(t *testing.T) {
	// two aligned rectangles sharing a column of cells: the union is
	// [0,3]×[2,4] and every covered cell keeps weight exactly 1
	tr := NewAffine(0, 4, 1, 1)
	a := orb.Polygon{{{0, 2}, {2, 2}, {2, 4}, {0, 4}, {0, 2}}}
	b := orb.Polygon{{{1, 2}, {3, 2}, {3, 4}, {1, 4}, {1, 2}}}

	w, err := coverageWeights(orb.MultiPolygon{a, b}, tr, 4, 4, DefaultMaxCells)
	if err != nil {
		t.Fatal(err)
	}
	total := 0.0
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			wi := w[row*4+col]
			total += wi
			inside := row < 2 && col < 3
			if inside && wi != 1 {
				t.Errorf("cell (%d,%d) weight = %g, want exactly 1", row, col, wi)
			}
			if !inside && wi != 0 {
				t.Errorf("cell (%d,%d) weight = %g, want exactly 0", row, col, wi)
			}
		}
	}
	if total != 6 {
		t.Errorf("total weight = %g, want exactly 6", total)
	}
}

func TestCoverageWeightsBudget(t *testing.T) {
	tr := NewAffine(0, 4, 1, 1)
	poly := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}

	// the fine grid is coverScale² times larger than the window
	_, err := coverageWeights(poly, tr, 4, 4, 4*4*coverScale*coverScale-1)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("got error %v, want ErrTooLarge", err)
	}

	if _, err := coverageWeights(poly, tr, 4, 4, 4*4*coverScale*coverScale); err != nil {
		t.Errorf("budget exactly met: unexpected error %v", err)
	}
}

func TestCoverageWeightsEmpty(t *testing.T) {
	tr := NewAffine(0, 4, 1, 1)
	far := orb.Polygon{{{10, 10}, {12, 10}, {12, 12}, {10, 12}, {10, 10}}}

	w, err := coverageWeights(far, tr, 4, 4, DefaultMaxCells)
	if err != nil {
		t.Fatal(err)
	}
	for i, wi := range w {
		if wi != 0 {
			t.Errorf("weight[%d] = %g, want 0", i, wi)
		}
	}
}
