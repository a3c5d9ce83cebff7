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

// Masked is a raster window combined with an exclusion mask. A cell is
// excluded when it lies outside the feature's coverage mask or holds
// the nodata value. Custom statistic functions receive the full Masked
// grid rather than the compressed value list.
type Masked struct {
	Values     []float64
	Mask       []bool // true = excluded
	Rows, Cols int
}

// At returns the value of cell (row, col) and whether it is excluded.
func (m *Masked) At(row, col int) (v float64, excluded bool) {
	i := row*m.Cols + col
	return m.Values[i], m.Mask[i]
}

// Compressed returns the surviving (non-excluded) values in row-major
// order. The result is a fresh slice.
func (m *Masked) Compressed() []float64 {
	n := 0
	for _, excluded := range m.Mask {
		if !excluded {
			n++
		}
	}
	out := make([]float64, 0, n)
	for i, excluded := range m.Mask {
		if !excluded {
			out = append(out, m.Values[i])
		}
	}
	return out
}
