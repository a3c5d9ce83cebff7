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
	"os"

	"golang.org/x/image/tiff"

	"seehuhn.de/go/geom/matrix"
)

// OpenTIFF reads a TIFF file into a MemRaster. The transform maps pixel
// to world coordinates (TIFF carries no georeferencing on its own, so
// the caller supplies it, as with world files). band selects the sample
// channel, counting from 1; grayscale images have a single band. nodata
// overrides the dataset's nodata value and may be nil.
//
// Cell values are the raw sample values: 0-255 for 8-bit images, 0-65535
// for 16-bit grayscale.
func OpenTIFF(path string, transform matrix.Matrix, band int, nodata *float64) (*MemRaster, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	img, err := tiff.Decode(fd)
	if err != nil {
		return nil, fmt.Errorf("zonal: decoding %s: %w", path, err)
	}

	bounds := img.Bounds()
	rows := bounds.Dy()
	cols := bounds.Dx()
	data := make([]float64, rows*cols)

	switch img := img.(type) {
	case *image.Gray:
		if band != 1 {
			return nil, fmt.Errorf("zonal: %s has 1 band, band %d requested", path, band)
		}
		for row := 0; row < rows; row++ {
			pix := img.Pix[row*img.Stride : row*img.Stride+cols]
			for col, v := range pix {
				data[row*cols+col] = float64(v)
			}
		}
	case *image.Gray16:
		if band != 1 {
			return nil, fmt.Errorf("zonal: %s has 1 band, band %d requested", path, band)
		}
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				off := row*img.Stride + 2*col
				data[row*cols+col] = float64(uint16(img.Pix[off])<<8 | uint16(img.Pix[off+1]))
			}
		}
	default:
		if band < 1 || band > 3 {
			return nil, fmt.Errorf("zonal: %s has 3 bands, band %d requested", path, band)
		}
		for row := 0; row < rows; row++ {
			for col := 0; col < cols; col++ {
				r, g, b, _ := img.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
				channels := [3]uint32{r, g, b}
				data[row*cols+col] = float64(channels[band-1] >> 8)
			}
		}
	}

	return NewMemRaster(data, rows, cols, transform, nodata)
}
