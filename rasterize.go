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

	"github.com/paulmach/orb"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/path"
	"seehuhn.de/go/geom/rect"
	"seehuhn.de/go/geom/vec"
)

// edge represents a polygon boundary segment in pixel coordinates.
type edge struct {
	x0, y0 float64 // start point
	x1, y1 float64 // end point
	dxdy   float64 // (x1-x0)/(y1-y0), precomputed for x-intercept calculation
}

// rasteriser converts geometry outlines on a window's pixel grid to
// per-cell area coverage and to cell-center parity. The CTM transforms
// world coordinates to pixel coordinates (the inverted raster affine).
// Create one instance per window; internal buffers grow as needed.
//
// A rasteriser is not safe for concurrent use.
type rasteriser struct {
	ctm        matrix.Matrix // world space to pixel space
	clip       rect.Rect     // window extent in pixel space
	rows, cols int

	// Internal buffers (reused across calls)
	cover     []float32 // coverage accumulation: cover change per pixel; reused as output
	area      []float32 // coverage accumulation: area within pixel
	edges     []edge    // edge list for current geometry (pixel coordinates)
	crossings []float64 // y values where an edge crosses pixel boundaries
	xs        []float64 // x intercepts for one center scanline

	// Edge collection state (used by collectEdges/addEdge)
	edgeBBoxFirst bool    // true if no edges added yet
	edgeXMin      float64 // bounding box in pixel space
	edgeXMax      float64
	edgeYMin      float64
	edgeYMax      float64
}

// newRasteriser returns a rasteriser for a rows×cols window whose
// world-to-pixel transform is ctm.
func newRasteriser(ctm matrix.Matrix, rows, cols int) *rasteriser {
	return &rasteriser{
		ctm:  ctm,
		clip: rect.Rect{LLx: 0, LLy: 0, URx: float64(cols), URy: float64(rows)},
		rows: rows,
		cols: cols,
	}
}

// collectEdges walks the path, transforms to pixel space, and builds
// the edge list. Returns the scanline range touched by any edge,
// clamped to the window, and ok=false for a degenerate outline.
func (r *rasteriser) collectEdges(p *path.Data) (yMin, yMax int, ok bool) {
	r.edges = r.edges[:0]
	r.edgeBBoxFirst = true

	// Path state
	var current vec.Vec2 // current point (world space)
	var subpath vec.Vec2 // subpath start (world space)

	// Walk the path using direct field access (no iterator allocation).
	// Geometries are piecewise linear, so only the line commands occur.
	coordIdx := 0
	for _, cmd := range p.Cmds {
		switch cmd {
		case path.CmdMoveTo:
			current = p.Coords[coordIdx]
			subpath = current
			coordIdx++

		case path.CmdLineTo:
			r.addEdge(current, p.Coords[coordIdx])
			current = p.Coords[coordIdx]
			coordIdx++

		case path.CmdClose:
			if current != subpath {
				r.addEdge(current, subpath)
			}
			current = subpath
		}
	}

	if len(r.edges) == 0 {
		return 0, 0, false
	}

	yMin = max(int(math.Floor(r.edgeYMin)), int(r.clip.LLy))
	yMax = min(int(math.Floor(r.edgeYMax))+1, int(r.clip.URy))
	if yMin >= yMax {
		return 0, 0, false
	}
	return yMin, yMax, true
}

// addEdge adds an edge from world space coordinates, transforming to
// pixel space.
func (r *rasteriser) addEdge(p0, p1 vec.Vec2) {
	px0 := r.ctm[0]*p0.X + r.ctm[2]*p0.Y + r.ctm[4]
	py0 := r.ctm[1]*p0.X + r.ctm[3]*p0.Y + r.ctm[5]
	px1 := r.ctm[0]*p1.X + r.ctm[2]*p1.Y + r.ctm[4]
	py1 := r.ctm[1]*p1.X + r.ctm[3]*p1.Y + r.ctm[5]

	// Skip horizontal edges
	dy := py1 - py0
	if dy > -horizontalEdgeThreshold && dy < horizontalEdgeThreshold {
		return
	}

	r.edges = append(r.edges, edge{
		x0: px0, y0: py0,
		x1: px1, y1: py1,
		dxdy: (px1 - px0) / dy,
	})

	// Update bounding box
	if r.edgeBBoxFirst {
		r.edgeXMin = min(px0, px1)
		r.edgeXMax = max(px0, px1)
		r.edgeYMin = min(py0, py1)
		r.edgeYMax = max(py0, py1)
		r.edgeBBoxFirst = false
	} else {
		r.edgeXMin = min(r.edgeXMin, min(px0, px1))
		r.edgeXMax = max(r.edgeXMax, max(px0, px1))
		r.edgeYMin = min(r.edgeYMin, min(py0, py1))
		r.edgeYMax = max(r.edgeYMax, max(py0, py1))
	}
}

// Coverage accumulation model:
//
// For each cell, we track two values:
//   cover: signed vertical extent of edges crossing this cell column
//   area:  horizontal position weighting (how far right the crossing is)
//
// An edge crossing a cell contributes:
//   cover = sign * dy   (where sign is +1 for downward, -1 for upward)
//   area  = cover * (1 - xFrac)   (where xFrac is the horizontal position within the cell)
//
// Final coverage is computed by integrating left to right:
//   cell_coverage = accumulated_cover + area[i]
//   accumulated_cover += cover[i]   (carry forward for next cell)
//
// This computes the signed area of the outline within each cell. The
// even-odd fold makes interior rings subtract coverage, which is how
// polygon holes work. Each polygon of a multipart geometry is folded
// separately and the per-polygon results combine by union, so
// overlapping parts cannot cancel each other.

// coverage rasterises the collected edges into a full rows×cols grid of
// fractional coverage values in [0, 1], using the even-odd rule. The
// returned slice is an internal buffer, valid until the next call.
func (r *rasteriser) coverage(yMin, yMax int) []float32 {
	size := r.rows * r.cols
	r.cover = slices.Grow(r.cover[:0], size)[:size]
	r.area = slices.Grow(r.area[:0], size)[:size]
	clear(r.cover)
	clear(r.area)

	// Process all edges into the 2D buffers
	for i := range r.edges {
		e := &r.edges[i]

		// Determine scanline range for this edge
		var edgeYMin, edgeYMax int
		if e.y0 < e.y1 {
			edgeYMin = int(math.Floor(e.y0))
			edgeYMax = int(math.Floor(e.y1)) + 1
		} else {
			edgeYMin = int(math.Floor(e.y1))
			edgeYMax = int(math.Floor(e.y0)) + 1
		}
		edgeYMin = max(edgeYMin, yMin)
		edgeYMax = min(edgeYMax, yMax)

		// Accumulate into each scanline
		for y := edgeYMin; y < edgeYMax; y++ {
			rowOffset := y * r.cols
			r.accumulateEdge(e, y, r.cover[rowOffset:rowOffset+r.cols], r.area[rowOffset:rowOffset+r.cols])
		}
	}

	// Integrate each touched row
	for y := yMin; y < yMax; y++ {
		rowOffset := y * r.cols
		integrateScanlineEvenOdd(r.cover[rowOffset:rowOffset+r.cols], r.area[rowOffset:rowOffset+r.cols])
	}

	return r.cover
}

// accumulateEdge adds a single edge's contribution to the cover and
// area buffers of scanline y. For edges spanning multiple cells
// horizontally, the edge is split at cell boundaries and each crossed
// cell receives a separate contribution.
func (r *rasteriser) accumulateEdge(e *edge, y int, cover, area []float32) {
	// Compute the portion of the edge within this scanline [y, y+1)
	yTop := float64(y)
	yBot := float64(y + 1)

	// Clamp to edge's actual y extent
	edgeYMin := min(e.y0, e.y1)
	edgeYMax := max(e.y0, e.y1)
	yTop = max(yTop, edgeYMin)
	yBot = min(yBot, edgeYMax)

	if yBot <= yTop {
		return
	}

	// Sign based on edge direction: +1 for downward (y1 > y0), -1 for upward
	sign := float32(1)
	if e.y1 < e.y0 {
		sign = -1
	}

	// Compute x at the y boundaries of the edge segment within this scanline
	xAtYTop := e.x0 + e.dxdy*(yTop-e.y0)
	xAtYBot := e.x0 + e.dxdy*(yBot-e.y0)

	// Determine cell range the edge spans (ensure left <= right)
	xLeft, xRight := xAtYTop, xAtYBot
	if xLeft > xRight {
		xLeft, xRight = xRight, xLeft
	}

	pixLeft := int(math.Floor(xLeft))
	pixRight := int(math.Floor(xRight))

	// Edge entirely left of the window: full crossing charged to column 0
	if pixRight < 0 {
		coverVal := sign * float32(yBot-yTop)
		cover[0] += coverVal
		area[0] += coverVal
		return
	}

	// Edge entirely right of the window: no contribution
	if pixLeft >= r.cols {
		return
	}

	// Vertical edges or edges within a single cell column
	if pixLeft == pixRight {
		r.accumulateEdgeInColumn(e, yTop, yBot, sign, pixLeft, cover, area)
		return
	}

	// Edge spans multiple cells - split at each cell boundary.
	// Collect the y values where the edge crosses integer x boundaries,
	// then process each piece between consecutive crossings.
	dydx := 1 / e.dxdy

	r.crossings = r.crossings[:0]
	r.crossings = append(r.crossings, yTop, yBot)
	for x := pixLeft + 1; x <= pixRight; x++ {
		yAtX := e.y0 + dydx*(float64(x)-e.x0)
		if yAtX > yTop && yAtX < yBot {
			r.crossings = append(r.crossings, yAtX)
		}
	}
	slices.Sort(r.crossings)

	for i := range len(r.crossings) - 1 {
		y0 := r.crossings[i]
		y1 := r.crossings[i+1]
		segDy := y1 - y0
		if segDy <= 0 {
			continue
		}

		coverVal := sign * float32(segDy)

		// Find which cell this piece is in (use midpoint x)
		yMid := (y0 + y1) / 2
		xMid := e.x0 + e.dxdy*(yMid-e.y0)
		pix := int(math.Floor(xMid))

		xFrac := xMid - float64(pix)
		areaVal := coverVal * float32(1-xFrac)

		if pix < 0 {
			cover[0] += coverVal
			area[0] += coverVal
		} else if pix < r.cols {
			cover[pix] += coverVal
			area[pix] += areaVal
		}
		// pix >= cols: no contribution
	}
}

// accumulateEdgeInColumn handles an edge segment that falls within a
// single cell column.
func (r *rasteriser) accumulateEdgeInColumn(e *edge, yTop, yBot float64, sign float32, pix int, cover, area []float32) {
	coverVal := sign * float32(yBot-yTop)

	if pix < 0 {
		cover[0] += coverVal
		area[0] += coverVal
		return
	}
	if pix >= r.cols {
		return
	}

	// Compute average x within this cell
	yMid := (yTop + yBot) / 2
	xMid := e.x0 + e.dxdy*(yMid-e.y0)
	xFrac := xMid - float64(pix)
	areaVal := coverVal * float32(1-xFrac)

	cover[pix] += coverVal
	area[pix] += areaVal
}

// integrateScanlineEvenOdd converts accumulated cover/area to final
// coverage values using the even-odd fill rule. The cover slice is
// modified in place.
func integrateScanlineEvenOdd(cover, area []float32) {
	var accum float32
	for i := range cover {
		raw := accum + area[i]
		accum += cover[i]

		// 1 - abs(1 - mod(abs(raw), 2))
		if raw < 0 {
			raw = -raw
		}
		// mod(raw, 2) using floor
		mod := raw - 2*float32(int(raw/2))
		cov := 1 - abs32(1-mod)
		cover[i] = cov
	}
}

// abs32 returns the absolute value of a float32.
func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// markCenters sets mask[row*cols+col] for every cell whose center lies
// inside the filled outline, by even-odd parity of x intercepts along
// the scanline through the cell centers. A center exactly on a boundary
// falls to the right-hand side of the boundary.
func (r *rasteriser) markCenters(mask []bool) {
	for row := 0; row < r.rows; row++ {
		yc := float64(row) + 0.5

		r.xs = r.xs[:0]
		for i := range r.edges {
			e := &r.edges[i]
			yMin := min(e.y0, e.y1)
			yMax := max(e.y0, e.y1)
			// half-open [yMin, yMax) so shared vertices count once
			if yMin <= yc && yc < yMax {
				r.xs = append(r.xs, e.x0+e.dxdy*(yc-e.y0))
			}
		}
		if len(r.xs) == 0 {
			continue
		}
		slices.Sort(r.xs)

		idx := 0
		inside := false
		rowOffset := row * r.cols
		for col := 0; col < r.cols; col++ {
			xc := float64(col) + 0.5
			for idx < len(r.xs) && r.xs[idx] <= xc {
				inside = !inside
				idx++
			}
			if inside {
				mask[rowOffset+col] = true
			}
		}
	}
}

// geomParts is a geometry decomposed by dimension: polygons go through
// the area rasteriser, line strings and bare points are burned by cell
// traversal. Each polygon keeps its own path so that holes subtract
// within a polygon while separate polygons combine by union.
type geomParts struct {
	polys  []path.Data
	lines  []orb.LineString
	points []orb.Point
}

// split decomposes g into parts, recursing into collections.
func (gp *geomParts) split(g orb.Geometry) error {
	switch g := g.(type) {
	case orb.Point:
		gp.points = append(gp.points, g)
	case orb.MultiPoint:
		gp.points = append(gp.points, g...)
	case orb.LineString:
		gp.lines = append(gp.lines, g)
	case orb.MultiLineString:
		gp.lines = append(gp.lines, g...)
	case orb.Ring:
		gp.addPolygon(g)
	case orb.Polygon:
		gp.addPolygon(g...)
	case orb.MultiPolygon:
		for _, poly := range g {
			gp.addPolygon(poly...)
		}
	case orb.Bound:
		gp.addPolygon(orb.Ring{g.Min, {g.Max.X(), g.Min.Y()}, g.Max, {g.Min.X(), g.Max.Y()}, g.Min})
	case orb.Collection:
		for _, sub := range g {
			if err := gp.split(sub); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %T", ErrGeometryType, g)
	}
	return nil
}

// addPolygon appends one polygon (outer ring followed by its holes) as
// a separate even-odd path.
func (gp *geomParts) addPolygon(rings ...orb.Ring) {
	var d path.Data
	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		d.Cmds = append(d.Cmds, path.CmdMoveTo)
		d.Coords = append(d.Coords, vec.Vec2{X: ring[0].X(), Y: ring[0].Y()})
		for _, pt := range ring[1:] {
			d.Cmds = append(d.Cmds, path.CmdLineTo)
			d.Coords = append(d.Coords, vec.Vec2{X: pt.X(), Y: pt.Y()})
		}
		d.Cmds = append(d.Cmds, path.CmdClose)
	}
	if len(d.Cmds) > 0 {
		gp.polys = append(gp.polys, d)
	}
}

// ringSegments calls fn for every boundary segment of the collected
// polygons, in world coordinates, including the implicit closing
// segments.
func (gp *geomParts) ringSegments(fn func(a, b vec.Vec2)) {
	for i := range gp.polys {
		d := &gp.polys[i]
		var current, subpath vec.Vec2
		coordIdx := 0
		for _, cmd := range d.Cmds {
			switch cmd {
			case path.CmdMoveTo:
				current = d.Coords[coordIdx]
				subpath = current
				coordIdx++
			case path.CmdLineTo:
				fn(current, d.Coords[coordIdx])
				current = d.Coords[coordIdx]
				coordIdx++
			case path.CmdClose:
				if current != subpath {
					fn(current, subpath)
				}
				current = subpath
			}
		}
	}
}

// rasterizeMask converts a geometry on the window grid given by
// transform and rows×cols into a boolean coverage mask.
//
// Under the default policy a cell is covered iff its center lies inside
// the filled region; under the all-touched policy a cell is covered iff
// any part of it intersects the region, including cells merely
// traversed by the boundary. Line strings burn the traversed cells
// (every crossed cell when allTouched, a Bresenham walk otherwise), and
// bare points burn their containing cell.
func rasterizeMask(g orb.Geometry, transform matrix.Matrix, rows, cols int, allTouched bool) ([]bool, error) {
	mask := make([]bool, rows*cols)
	if rows == 0 || cols == 0 {
		return mask, nil
	}

	inv, err := invertAffine(transform)
	if err != nil {
		return nil, err
	}

	var parts geomParts
	if err := parts.split(g); err != nil {
		return nil, err
	}

	toPixel := func(pt orb.Point) (x, y float64) {
		return inv[0]*pt.X() + inv[2]*pt.Y() + inv[4],
			inv[1]*pt.X() + inv[3]*pt.Y() + inv[5]
	}
	mark := func(col, row int) {
		if col >= 0 && col < cols && row >= 0 && row < rows {
			mask[row*cols+col] = true
		}
	}

	if len(parts.polys) > 0 {
		r := newRasteriser(inv, rows, cols)
		for i := range parts.polys {
			yMin, yMax, ok := r.collectEdges(&parts.polys[i])
			if !ok {
				continue
			}
			if allTouched {
				cov := r.coverage(yMin, yMax)
				for j, c := range cov {
					if c > coverEps {
						mask[j] = true
					}
				}
			} else {
				r.markCenters(mask)
			}
		}
		if allTouched {
			// boundary-only touches carry no area; traverse the outlines
			parts.ringSegments(func(a, b vec.Vec2) {
				ax, ay := toPixel(orb.Point{a.X, a.Y})
				bx, by := toPixel(orb.Point{b.X, b.Y})
				superCover(ax, ay, bx, by, mark)
			})
		}
	}

	for _, line := range parts.lines {
		for i := 0; i+1 < len(line); i++ {
			ax, ay := toPixel(line[i])
			bx, by := toPixel(line[i+1])
			if allTouched {
				superCover(ax, ay, bx, by, mark)
			} else {
				bresenham(int(math.Floor(ax)), int(math.Floor(ay)),
					int(math.Floor(bx)), int(math.Floor(by)), mark)
			}
		}
	}

	for _, pt := range parts.points {
		px, py := toPixel(pt)
		mark(int(math.Floor(px)), int(math.Floor(py)))
	}

	return mask, nil
}

// superCover marks every cell a segment passes through, by stepping
// from cell to cell at the nearest pixel-boundary crossing
// (Amanatides-Woo grid traversal).
func superCover(x0, y0, x1, y1 float64, mark func(col, row int)) {
	col := int(math.Floor(x0))
	row := int(math.Floor(y0))
	endCol := int(math.Floor(x1))
	endRow := int(math.Floor(y1))

	stepX, tMaxX, tDeltaX := traversalAxis(x0, x1, col)
	stepY, tMaxY, tDeltaY := traversalAxis(y0, y1, row)

	mark(col, row)
	n := abs(endCol-col) + abs(endRow-row)
	for range n {
		if tMaxX < tMaxY {
			col += stepX
			tMaxX += tDeltaX
		} else {
			row += stepY
			tMaxY += tDeltaY
		}
		mark(col, row)
	}
}

// traversalAxis returns the per-axis stepping state for superCover:
// the step direction, the segment parameter of the first boundary
// crossing, and the parameter advance per cell.
func traversalAxis(p0, p1 float64, cell int) (step int, tMax, tDelta float64) {
	d := p1 - p0
	switch {
	case d > 0:
		return 1, (float64(cell+1) - p0) / d, 1 / d
	case d < 0:
		return -1, (p0 - float64(cell)) / -d, 1 / -d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

// bresenham marks the cells of an integer line walk between two cells.
func bresenham(c0, r0, c1, r1 int, mark func(col, row int)) {
	dc := abs(c1 - c0)
	dr := -abs(r1 - r0)
	sc := 1
	if c0 > c1 {
		sc = -1
	}
	sr := 1
	if r0 > r1 {
		sr = -1
	}
	err := dc + dr

	for {
		mark(c0, r0)
		if c0 == c1 && r0 == r1 {
			return
		}
		e2 := 2 * err
		if e2 >= dr {
			err += dr
			c0 += sc
		}
		if e2 <= dc {
			err += dc
			r0 += sr
		}
	}
}

// abs returns the absolute value of an int.
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Numerical tolerances for the rasteriser.
const (
	// horizontalEdgeThreshold is the minimum vertical extent for an edge
	// to contribute to coverage. Edges with |y1 - y0| below this threshold
	// are skipped as horizontal.
	horizontalEdgeThreshold = 1e-10

	// coverEps is the coverage fraction below which a cell counts as
	// untouched, filtering float32 accumulation noise on cells the
	// outline only grazes.
	coverEps = 1e-6
)
