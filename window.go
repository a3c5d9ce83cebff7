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

	"github.com/paulmach/orb"

	"seehuhn.de/go/geom/matrix"
)

// The pixel-to-world transform is a matrix.Matrix in the usual affine
// layout: worldX = m[0]*col + m[2]*row + m[4], worldY = m[1]*col +
// m[3]*row + m[5]. Pixel coordinates are continuous, with (0, 0) the
// outer corner of the top-left cell and cell (row, col) spanning
// [col, col+1) × [row, row+1).

// NewAffine returns the pixel-to-world transform for a north-up raster
// with the given top-left corner and cell size. pixelHeight is given as
// a positive length; rows advance towards smaller world y.
func NewAffine(originX, originY, pixelWidth, pixelHeight float64) matrix.Matrix {
	return matrix.Matrix{pixelWidth, 0, 0, -pixelHeight, originX, originY}
}

// applyAffine maps continuous pixel coordinates to world coordinates.
func applyAffine(m matrix.Matrix, col, row float64) (x, y float64) {
	x = m[0]*col + m[2]*row + m[4]
	y = m[1]*col + m[3]*row + m[5]
	return x, y
}

// invertAffine returns the world-to-pixel transform.
func invertAffine(m matrix.Matrix) (matrix.Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 {
		return matrix.Matrix{}, fmt.Errorf("zonal: singular transform %v", m)
	}
	inv := matrix.Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}
	return inv, nil
}

// Window is a raster sub-region materialised for one feature: cell
// values in row-major order, the pixel-to-world transform of the
// sub-region, and the nodata sentinel (nil if the raster has none).
type Window struct {
	Data       []float64
	Rows, Cols int
	Transform  matrix.Matrix
	Nodata     *float64
}

// Cells returns the number of cells in the window.
func (w *Window) Cells() int {
	return w.Rows * w.Cols
}

// isNodata reports whether v matches the window's nodata sentinel.
// A NaN sentinel matches NaN cell values.
func (w *Window) isNodata(v float64) bool {
	if w.Nodata == nil {
		return false
	}
	if math.IsNaN(*w.Nodata) {
		return math.IsNaN(v)
	}
	return v == *w.Nodata
}

// Raster provides windowed access to a raster dataset. Implementations
// own the underlying dataset for the lifetime of the value.
type Raster interface {
	// Transform returns the pixel-to-world transform of the full dataset.
	Transform() matrix.Matrix

	// Read returns the window covering bounds, clamped to the dataset
	// extent. A window of more than maxCells cells is not materialised;
	// Read reports ErrTooLarge instead. maxCells <= 0 means no limit.
	Read(bounds orb.Bound, maxCells int) (*Window, error)
}

// MemRaster is a Raster backed by an in-memory row-major array,
// corresponding to array input in GIS tooling where the caller supplies
// the transform alongside the data.
type MemRaster struct {
	data       []float64
	rows, cols int
	transform  matrix.Matrix
	nodata     *float64
}

// NewMemRaster wraps a row-major array as a Raster. The transform must
// be non-rotated (no shear terms); nodata may be nil.
func NewMemRaster(data []float64, rows, cols int, transform matrix.Matrix, nodata *float64) (*MemRaster, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("zonal: data length %d does not match %d×%d", len(data), rows, cols)
	}
	if transform[1] != 0 || transform[2] != 0 {
		return nil, fmt.Errorf("%w: %v", ErrRotated, transform)
	}
	if transform[0] == 0 || transform[3] == 0 {
		return nil, fmt.Errorf("zonal: degenerate cell size in transform %v", transform)
	}
	return &MemRaster{
		data:      data,
		rows:      rows,
		cols:      cols,
		transform: transform,
		nodata:    nodata,
	}, nil
}

// Transform returns the pixel-to-world transform of the full raster.
func (r *MemRaster) Transform() matrix.Matrix {
	return r.transform
}

// Read extracts the window covering bounds. Bounds are expanded outward
// to whole cells and clamped to the raster extent; a bounding box with
// no overlap yields an empty (0-cell) window.
func (r *MemRaster) Read(bounds orb.Bound, maxCells int) (*Window, error) {
	a := r.transform[0]
	d := r.transform[3]
	e := r.transform[4]
	f := r.transform[5]

	// pixel-space extent of the bounding box
	c0f := (bounds.Min.X() - e) / a
	c1f := (bounds.Max.X() - e) / a
	if c0f > c1f {
		c0f, c1f = c1f, c0f
	}
	r0f := (bounds.Min.Y() - f) / d
	r1f := (bounds.Max.Y() - f) / d
	if r0f > r1f {
		r0f, r1f = r1f, r0f
	}

	// expand outward to whole cells, clamp to the raster
	c0 := max(int(math.Floor(c0f)), 0)
	c1 := min(int(math.Ceil(c1f)), r.cols)
	r0 := max(int(math.Floor(r0f)), 0)
	r1 := min(int(math.Ceil(r1f)), r.rows)

	w := &Window{Transform: r.windowTransform(c0, r0), Nodata: r.nodata}
	if c0 >= c1 || r0 >= r1 {
		return w, nil
	}

	w.Rows = r1 - r0
	w.Cols = c1 - c0
	if maxCells > 0 && w.Cells() > maxCells {
		return nil, fmt.Errorf("%w: %d×%d window needs %d cells, budget is %d",
			ErrTooLarge, w.Rows, w.Cols, w.Cells(), maxCells)
	}

	w.Data = make([]float64, w.Cells())
	for row := r0; row < r1; row++ {
		src := r.data[row*r.cols+c0 : row*r.cols+c1]
		copy(w.Data[(row-r0)*w.Cols:], src)
	}
	return w, nil
}

// windowTransform translates the raster transform to the window origin.
func (r *MemRaster) windowTransform(c0, r0 int) matrix.Matrix {
	m := r.transform
	x, y := applyAffine(m, float64(c0), float64(r0))
	m[4] = x
	m[5] = y
	return m
}
