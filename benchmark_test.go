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
	"image"
	"image/color"
	"math"
	"testing"

	"golang.org/x/image/vector"

	"github.com/paulmach/orb"
)

// donutZone returns a ring-shaped polygon (outer ring with a hole)
// centered in a size×size world square, approximated by 64-gons.
func donutZone(size float64) orb.Polygon {
	center := size / 2
	outer := donutRing(center, center, size*0.45, false)
	inner := donutRing(center, center, size*0.30, true)
	return orb.Polygon{outer, inner}
}

func donutRing(cx, cy, r float64, clockwise bool) orb.Ring {
	const n = 64
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i <= n; i++ {
		phi := 2 * math.Pi * float64(i) / n
		if clockwise {
			phi = -phi
		}
		ring = append(ring, orb.Point{cx + r*math.Cos(phi), cy + r*math.Sin(phi)})
	}
	return ring
}

// BenchmarkRasterizeMask benchmarks the coverage-mask rasterisation of
// a ring-shaped zone.
func BenchmarkRasterizeMask(b *testing.B) {
	sizes := []int{20, 200, 2000}

	for _, size := range sizes {
		for _, allTouched := range []bool{false, true} {
			name := fmt.Sprintf("%dx%d", size, size)
			if allTouched {
				name += "/allTouched"
			}
			b.Run(name, func(b *testing.B) {
				tr := NewAffine(0, float64(size), 1, 1)
				zone := donutZone(float64(size))

				b.ResetTimer()
				b.ReportAllocs()

				for b.Loop() {
					_, err := rasterizeMask(zone, tr, size, size, allTouched)
					if err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkCoverageWeights benchmarks the supersampled coverage-weight
// estimate. Sizes are smaller than for the boolean mask since the fine
// grid is coverScale² times larger.
func BenchmarkCoverageWeights(b *testing.B) {
	sizes := []int{20, 200}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%dx%d", size, size), func(b *testing.B) {
			tr := NewAffine(0, float64(size), 1, 1)
			zone := donutZone(float64(size))

			b.ResetTimer()
			b.ReportAllocs()

			for b.Loop() {
				_, err := coverageWeights(zone, tr, size, size, 0)
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkVectorMask benchmarks x/image/vector producing an alpha mask
// of the same zone, as a baseline for the mask rasterisation.
func BenchmarkVectorMask(b *testing.B) {
	sizes := []int{20, 200, 2000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("%dx%d", size, size), func(b *testing.B) {
			r := vector.NewRasterizer(size, size)
			dst := image.NewAlpha(image.Rect(0, 0, size, size))
			src := image.NewUniform(color.Alpha{255})
			zone := donutZone(float64(size))

			b.ResetTimer()
			b.ReportAllocs()

			for b.Loop() {
				r.Reset(size, size)
				for _, ring := range zone {
					r.MoveTo(float32(ring[0].X()), float32(ring[0].Y()))
					for _, pt := range ring[1:] {
						r.LineTo(float32(pt.X()), float32(pt.Y()))
					}
					r.ClosePath()
				}
				r.Draw(dst, dst.Bounds(), src, image.Point{})
			}
		})
	}
}

// BenchmarkZonalStats benchmarks the full per-feature pipeline on an
// in-memory raster.
func BenchmarkZonalStats(b *testing.B) {
	const size = 200
	data := make([]float64, size*size)
	for i := range data {
		data[i] = float64(i % 97)
	}
	raster, err := NewMemRaster(data, size, size, NewAffine(0, size, 1, 1), nil)
	if err != nil {
		b.Fatal(err)
	}
	zone := donutZone(size)
	opt := &Options{Stats: StatNames("count min max mean std median")}

	b.ResetTimer()
	b.ReportAllocs()

	for b.Loop() {
		if _, err := ZonalStats(Geometries(zone), raster, opt); err != nil {
			b.Fatal(err)
		}
	}
}
