package models

// Channel represents a single imaging marker discovered in the input directory
type Channel struct {
	// Name is the display identifier derived from the source filename,
	// after normalization (e.g. "DAPI-01" becomes "DAPI")
	Name string

	// SourcePath is the location of the single-plane source image
	SourcePath string
}

// PixelPlane is a 2-D grid of unsigned 16-bit samples stored in row-major order.
// It is the unit of data handed between the loader, the pyramid reducer and the
// container writer. Ownership passes along with the value: once a plane has been
// written or reduced, the previous holder must drop its reference so that peak
// memory stays proportional to a single channel.
type PixelPlane struct {
	// Pix holds Width*Height samples in row-major order
	Pix []uint16

	// Width and Height are the plane dimensions in pixels
	Width  int
	Height int
}

// NewPixelPlane allocates a zeroed plane with the given dimensions
func NewPixelPlane(width, height int) *PixelPlane {
	return &PixelPlane{
		Pix:    make([]uint16, width*height),
		Width:  width,
		Height: height,
	}
}

// At returns the sample at (x, y). No bounds checking is performed beyond
// what the underlying slice provides.
func (p *PixelPlane) At(x, y int) uint16 {
	return p.Pix[y*p.Width+x]
}

// Set stores a sample at (x, y)
func (p *PixelPlane) Set(x, y int, v uint16) {
	p.Pix[y*p.Width+x] = v
}

// Fill sets every sample of the plane to v
func (p *PixelPlane) Fill(v uint16) {
	for i := range p.Pix {
		p.Pix[i] = v
	}
}
