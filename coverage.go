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

	"github.com/paulmach/orb"

	"seehuhn.de/go/geom/matrix"
)

// coverScale is the supersampling factor per axis used to estimate
// fractional cell coverage: the window grid is rasterised at
// coverScale× resolution and the fine cells are averaged within each
// window cell. Larger factors trade time and memory for accuracy; at
// 10× the estimate is exact for shapes aligned to whole cells and
// accurate to about 1% of a cell otherwise.
const coverScale = 10

// coverageWeights estimates, for every cell of a rows×cols window with
// the given pixel-to-world transform, the fraction of the cell's area
// covered by the geometry. Values are in [0, 1]. Only polygonal parts
// carry area; lines and points contribute nothing. Overlapping
// polygonal parts combine by union.
//
// The supersampled fine grid needs coverScale² times the window's cell
// count; if that exceeds maxCells the grid is not materialised and
// ErrTooLarge is reported.
func coverageWeights(g orb.Geometry, transform matrix.Matrix, rows, cols, maxCells int) ([]float64, error) {
	weights := make([]float64, rows*cols)
	if rows == 0 || cols == 0 {
		return weights, nil
	}

	fineRows := rows * coverScale
	fineCols := cols * coverScale
	if maxCells > 0 && fineRows*fineCols > maxCells {
		return nil, fmt.Errorf("%w: %d×%d supersampled grid needs %d cells, budget is %d",
			ErrTooLarge, fineRows, fineCols, fineRows*fineCols, maxCells)
	}

	inv, err := invertAffine(transform)
	if err != nil {
		return nil, err
	}
	// fine pixel coordinates are window pixel coordinates scaled up
	for i := range inv {
		inv[i] *= coverScale
	}

	var parts geomParts
	if err := parts.split(g); err != nil {
		return nil, err
	}
	if len(parts.polys) == 0 {
		return weights, nil
	}

	// fold each polygon separately and union the boolean fine grids, so
	// overlapping parts cannot cancel
	r := newRasteriser(inv, fineRows, fineCols)
	covered := make([]bool, fineRows*fineCols)
	for i := range parts.polys {
		yMin, yMax, ok := r.collectEdges(&parts.polys[i])
		if !ok {
			continue
		}
		cov := r.coverage(yMin, yMax)
		for j := yMin * fineCols; j < yMax*fineCols; j++ {
			if cov[j] > coverEps {
				covered[j] = true
			}
		}
	}

	// average the boolean fine-grid values within each window cell,
	// counting in integers so fully covered cells come out as exactly 1
	hits := make([]int, rows*cols)
	for fy := 0; fy < fineRows; fy++ {
		row := fy / coverScale
		fineRow := covered[fy*fineCols : (fy+1)*fineCols]
		for fx, c := range fineRow {
			if c {
				hits[row*cols+fx/coverScale]++
			}
		}
	}
	for i, n := range hits {
		weights[i] = float64(n) / (coverScale * coverScale)
	}
	return weights, nil
}
