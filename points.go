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
	"math"

	"github.com/paulmach/orb"

	"seehuhn.de/go/geom/matrix"
)

// isPointKind reports whether g is a degenerate point geometry that
// needs a box footprint before rasterisation.
func isPointKind(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return true
	}
	return false
}

// boxifyPoints replaces a Point or MultiPoint geometry with square
// polygons of width×width cells centered on each point's cell in the
// grid of transform. width must be odd so the box is pixel-aligned and
// selects a deterministic, non-empty set of cells even for points lying
// exactly on a cell boundary (such points belong to the cell at their
// lower right in pixel space, by the floor convention).
func boxifyPoints(g orb.Geometry, transform matrix.Matrix, width int) (orb.Geometry, error) {
	inv, err := invertAffine(transform)
	if err != nil {
		return nil, err
	}

	var pts []orb.Point
	switch g := g.(type) {
	case orb.Point:
		pts = []orb.Point{g}
	case orb.MultiPoint:
		pts = g
	default:
		return g, nil
	}

	half := width / 2
	boxes := make(orb.MultiPolygon, 0, len(pts))
	for _, pt := range pts {
		px := inv[0]*pt.X() + inv[2]*pt.Y() + inv[4]
		py := inv[1]*pt.X() + inv[3]*pt.Y() + inv[5]
		col := int(math.Floor(px))
		row := int(math.Floor(py))

		// pixel-aligned corners of the box
		c0 := float64(col - half)
		r0 := float64(row - half)
		c1 := float64(col + half + 1)
		r1 := float64(row + half + 1)

		x00, y00 := applyAffine(transform, c0, r0)
		x10, y10 := applyAffine(transform, c1, r0)
		x11, y11 := applyAffine(transform, c1, r1)
		x01, y01 := applyAffine(transform, c0, r1)
		ring := orb.Ring{{x00, y00}, {x10, y10}, {x11, y11}, {x01, y01}, {x00, y00}}
		boxes = append(boxes, orb.Polygon{ring})
	}

	if len(boxes) == 1 {
		return boxes[0], nil
	}
	return boxes, nil
}
