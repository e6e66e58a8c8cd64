package cleangrid

import (
	"image"
	_ "image/jpeg" // satellite images are usually JPEG or PNG
	_ "image/png"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	ts "github.com/sweeprl/sweeper/timestep"
	xdraw "golang.org/x/image/draw"
)

// DefaultResolution is the default side length that satellite images
// are resized to before masking
const DefaultResolution int = 64

// Contamination heuristic thresholds. Hue windows approximate the
// reddish-brown terrain of contaminated ground; saturation and value
// floors reject washed-out and near-black pixels.
const (
	hueLowMax     float64 = 40  // degrees
	hueHighMin    float64 = 320 // degrees
	minSaturation float64 = 70.0 / 255.0
	minValue      float64 = 40.0 / 255.0
)

// ImageDecoder loads an image from disk and scales it to a size x size
// square. It is an explicit capability of satellite-derived grids:
// constructing a satellite environment without one is a configuration
// error.
type ImageDecoder interface {
	Decode(path string, size int) (image.Image, error)
}

// FileDecoder decodes JPEG and PNG files and resizes them with
// bilinear interpolation
type FileDecoder struct{}

// Decode implements the ImageDecoder interface
func (FileDecoder) Decode(path string, size int) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open image %v", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode image %v", path)
	}

	resized := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(),
		xdraw.Over, nil)
	return resized, nil
}

// NewSatellite creates a new CleanGrid whose contaminated cells are
// derived from a satellite image. The image is resized to size x size
// and each pixel becomes one grid cell, contaminated when its colour
// falls in the reddish-brown hue windows of the contamination
// heuristic.
//
// The decoder is a required capability: passing a nil decoder or an
// unreadable image is a configuration error raised before any
// environment state is built.
func NewSatellite(path string, size int, discount float64,
	decoder ImageDecoder) (*CleanGrid, ts.TimeStep, error) {
	if decoder == nil {
		return nil, ts.TimeStep{}, errors.New("newsatellite: satellite " +
			"grids need an image decoder: pass cleangrid.FileDecoder{}")
	}
	if size < 1 {
		return nil, ts.TimeStep{}, errors.Errorf("newsatellite: image "+
			"resolution must be positive \n\thave(%v)", size)
	}

	rgb, err := decoder.Decode(path, size)
	if err != nil {
		return nil, ts.TimeStep{}, errors.Wrap(err, "newsatellite: could "+
			"not load satellite image")
	}

	grid := contaminationMask(rgb, size)

	dirty := 0
	for _, cell := range grid {
		if cell == CellContaminated {
			dirty++
		}
	}
	glog.V(1).Infof("satellite mask: %v of %v cells contaminated", dirty,
		size*size)

	return newCleanGrid(grid, size, discount, rgb)
}

// contaminationMask converts pixels to a binary grid of cell labels
func contaminationMask(rgb image.Image, size int) []float64 {
	grid := make([]float64, size*size)
	bounds := rgb.Bounds()

	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			r, g, b, _ := rgb.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
			h, s, v := rgbToHSV(float64(r)/65535.0, float64(g)/65535.0,
				float64(b)/65535.0)

			if (h <= hueLowMax || h >= hueHighMin) && s >= minSaturation &&
				v >= minValue {
				grid[row*size+col] = CellContaminated
			}
		}
	}
	return grid
}

// rgbToHSV converts r, g, b in [0, 1] to hue in degrees [0, 360) and
// saturation and value in [0, 1]
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	max := r
	if g > max {
		max = g
	}
	if b > max {
		max = b
	}
	min := r
	if g < min {
		min = g
	}
	if b < min {
		min = b
	}

	v = max
	delta := max - min

	if max > 0 {
		s = delta / max
	}
	if delta == 0 {
		return 0, s, v
	}

	switch max {
	case r:
		h = 60 * ((g - b) / delta)
	case g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}
