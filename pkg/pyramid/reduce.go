// Package pyramid implements the block-mean 2x reduction used to build the
// resolution pyramid attached to every full-resolution plane in the output
// container.
package pyramid

import (
	"fmt"

	"channelpyramid/internal/models"
)

// DefaultLevels is the number of reduced-resolution sub-levels written per
// channel (2x, 4x, 8x, 16x, 32x), giving 6 stored levels in total.
const DefaultLevels = 5

// Reduce returns a half-resolution copy of the plane.
//
// The last row is trimmed if the height is odd, as is the last column if the
// width is odd (trimmed samples are discarded, not wrapped or padded). The
// trimmed grid is then partitioned into non-overlapping 2x2 blocks and each
// block is replaced by its arithmetic mean, accumulated in uint32 to avoid
// overflow and truncated back to uint16.
//
// Deeper pyramid levels are produced by calling Reduce again on the previous
// result, so rounding error accumulates level by level exactly as repeated 2x
// reduction would; a single-pass Nx decimation would give different values.
//
// A dimension that falls below 2 after trimming cannot be reduced further and
// yields an error.
func Reduce(p *models.PixelPlane) (*models.PixelPlane, error) {
	h2 := p.Height &^ 1
	w2 := p.Width &^ 1
	if h2 == 0 || w2 == 0 {
		return nil, fmt.Errorf("cannot reduce %dx%d plane: pyramid exhausted", p.Width, p.Height)
	}

	nw := w2 / 2
	nh := h2 / 2
	out := models.NewPixelPlane(nw, nh)

	for y := 0; y < nh; y++ {
		top := p.Pix[(2*y)*p.Width : (2*y)*p.Width+w2]
		bot := p.Pix[(2*y+1)*p.Width : (2*y+1)*p.Width+w2]
		row := out.Pix[y*nw : (y+1)*nw]
		for x := 0; x < nw; x++ {
			sum := uint32(top[2*x]) + uint32(top[2*x+1]) +
				uint32(bot[2*x]) + uint32(bot[2*x+1])
			row[x] = uint16(sum / 4)
		}
	}

	return out, nil
}
