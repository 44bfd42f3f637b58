// Package convert orchestrates the conversion pipeline: channel resolution,
// dimension probing, metadata construction and the per-channel write loop
// that emits one pyramidal container file.
package convert

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"channelpyramid/internal/models"
	"channelpyramid/pkg/bigtiff"
	"channelpyramid/pkg/channels"
	"channelpyramid/pkg/omexml"
	"channelpyramid/pkg/pyramid"
)

// softwareTag identifies the writer to consuming readers; some branch on the
// Bio-Formats name when deciding how to interpret pyramidal layout.
const softwareTag = "OME Bio-Formats 8.2.0"

// Params holds the conversion configuration.
type Params struct {
	// InputDir is the directory containing one single-plane TIF per channel
	InputDir string

	// OutputPath is where the pyramidal container will be written
	OutputPath string

	// PixelSizeMicrons is the isotropic physical pixel size in µm/pixel
	PixelSizeMicrons float64

	// PyramidLevels is the number of reduced-resolution sub-planes per
	// channel; pyramid.DefaultLevels if zero
	PyramidLevels int

	// TileSize is the tile edge length in samples; bigtiff.DefaultTileSize
	// if zero
	TileSize int

	// Verbose enables progress output
	Verbose bool
}

// Converter runs the conversion pipeline. The pipeline is strictly sequential
// per channel so that peak memory stays proportional to one channel's
// full-resolution plane plus the level currently being reduced, never to the
// whole multi-channel set.
type Converter struct {
	params *Params

	// channels is the resolved, ordered channel list
	channels []models.Channel

	// width and height are the shared full-resolution dimensions
	width  int
	height int
}

// NewConverter creates a converter instance with the provided parameters
func NewConverter(params *Params) *Converter {
	return &Converter{params: params}
}

// Channels returns the resolved channel list. Valid after Process.
func (c *Converter) Channels() []models.Channel {
	return c.channels
}

// Dimensions returns the shared full-resolution extent. Valid after Process.
func (c *Converter) Dimensions() (width, height int) {
	return c.width, c.height
}

// Process runs the complete conversion pipeline. Any failure aborts the run;
// an output file left behind by a failed run is invalid and must be discarded
// by the caller.
func (c *Converter) Process() error {
	levels := c.params.PyramidLevels
	if levels == 0 {
		levels = pyramid.DefaultLevels
	}
	tileSize := c.params.TileSize
	if tileSize == 0 {
		tileSize = bigtiff.DefaultTileSize
	}

	// Step 1: resolve and order the channel set.
	chs, err := channels.Resolve(c.params.InputDir)
	if err != nil {
		return err
	}
	c.channels = chs
	c.logf("Found %d channels: %s\n", len(chs), strings.Join(channels.Names(chs), ", "))

	// Step 2: probe every channel's dimensions before any output is opened.
	// A missing file or a dimension mismatch must fail the run while the
	// output path is still untouched.
	if err := c.probeDimensions(); err != nil {
		return err
	}
	c.logf("Image dimensions: %d x %d\n", c.height, c.width)

	// Step 3: build the metadata document describing the channel-to-plane
	// mapping. It is immutable from here on.
	omeXML := omexml.Build(omexml.Params{
		ChannelNames:     channels.Names(chs),
		SizeX:            c.width,
		SizeY:            c.height,
		PixelSizeMicrons: c.params.PixelSizeMicrons,
		Filename:         filepath.Base(c.params.OutputPath),
	})

	// Step 4: write the container, one channel at a time.
	c.logf("Writing %s ...\n", c.params.OutputPath)
	f, err := os.Create(c.params.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %v", err)
	}
	defer f.Close()

	w, err := bigtiff.NewWriter(f)
	if err != nil {
		return err
	}

	pixelsPerCM := 1e4 / c.params.PixelSizeMicrons // µm/pixel to pixels/cm

	for i, ch := range chs {
		c.logf("  [%d/%d] %s\n", i+1, len(chs), ch.Name)

		plane, err := loadPlane(ch.SourcePath)
		if err != nil {
			return fmt.Errorf("channel %s: %v", ch.Name, err)
		}
		if plane.Width != c.width || plane.Height != c.height {
			return fmt.Errorf("channel %s: dimensions %dx%d do not match %dx%d",
				ch.Name, plane.Width, plane.Height, c.width, c.height)
		}

		opts := bigtiff.PlaneOptions{
			TileSize:    tileSize,
			SubIFDCount: levels,
			PixelsPerCM: pixelsPerCM,
			Software:    softwareTag,
		}
		if i == 0 {
			opts.Description = omeXML
		}
		if err := w.WritePlane(plane, opts); err != nil {
			return fmt.Errorf("channel %s: %v", ch.Name, err)
		}

		// Reduce level by level. Reassigning sub drops the previous level,
		// so only one full-resolution plane and one reduced level are ever
		// resident; source images can be gigapixel-scale.
		sub := plane
		plane = nil // full-resolution reference now lives only in sub
		for level := 0; level < levels; level++ {
			next, err := pyramid.Reduce(sub)
			if err != nil {
				return fmt.Errorf("channel %s level %d: %v", ch.Name, level+1, err)
			}
			sub = next
			if err := w.WritePlane(sub, bigtiff.PlaneOptions{TileSize: tileSize, Reduced: true}); err != nil {
				return fmt.Errorf("channel %s level %d: %v", ch.Name, level+1, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to finalize output file: %v", err)
	}

	if info, err := os.Stat(c.params.OutputPath); err == nil {
		c.logf("Wrote %s (%.2f GB)\n", c.params.OutputPath, float64(info.Size())/1e9)
	}
	return nil
}

// probeDimensions reads each channel's header and records the shared extent.
// Mismatched channels are rejected here, before the container is opened.
func (c *Converter) probeDimensions() error {
	for i, ch := range c.channels {
		f, err := os.Open(ch.SourcePath)
		if err != nil {
			return fmt.Errorf("channel %s: %v", ch.Name, err)
		}
		cfg, err := tiff.DecodeConfig(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("channel %s: failed to read image header: %v", ch.Name, err)
		}
		if i == 0 {
			c.width = cfg.Width
			c.height = cfg.Height
			continue
		}
		if cfg.Width != c.width || cfg.Height != c.height {
			return fmt.Errorf("channel %s: dimensions %dx%d do not match %dx%d",
				ch.Name, cfg.Width, cfg.Height, c.width, c.height)
		}
	}
	return nil
}

// loadPlane decodes a single-plane TIF into a 16-bit sample grid. 8-bit
// grayscale sources are widened value-for-value, not rescaled.
func loadPlane(path string) (*models.PixelPlane, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %v", err)
	}

	switch im := img.(type) {
	case *image.Gray16:
		b := im.Bounds()
		plane := models.NewPixelPlane(b.Dx(), b.Dy())
		for y := 0; y < plane.Height; y++ {
			row := im.Pix[y*im.Stride:]
			for x := 0; x < plane.Width; x++ {
				// Gray16 stores samples big-endian
				plane.Pix[y*plane.Width+x] = uint16(row[2*x])<<8 | uint16(row[2*x+1])
			}
		}
		return plane, nil
	case *image.Gray:
		b := im.Bounds()
		plane := models.NewPixelPlane(b.Dx(), b.Dy())
		for y := 0; y < plane.Height; y++ {
			row := im.Pix[y*im.Stride:]
			for x := 0; x < plane.Width; x++ {
				plane.Pix[y*plane.Width+x] = uint16(row[x])
			}
		}
		return plane, nil
	default:
		return nil, fmt.Errorf("expected single-channel grayscale image, got %T", img)
	}
}

func (c *Converter) logf(format string, args ...interface{}) {
	if c.params.Verbose {
		fmt.Printf(format, args...)
	}
}
