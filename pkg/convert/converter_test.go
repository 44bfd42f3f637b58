package convert

import (
	"encoding/xml"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"

	"channelpyramid/pkg/bigtiff"
)

// writeChannelTIF writes a uniform-value 16-bit grayscale channel fixture
func writeChannelTIF(t *testing.T, dir, name string, width, height int, value uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("Failed to create fixture %s: %v", name, err)
	}
	defer f.Close()
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatalf("Failed to encode fixture %s: %v", name, err)
	}
}

type omePixels struct {
	Image struct {
		Pixels struct {
			SizeC         int     `xml:"SizeC,attr"`
			PhysicalSizeX float64 `xml:"PhysicalSizeX,attr"`
			PhysicalSizeY float64 `xml:"PhysicalSizeY,attr"`
			Channels      []struct {
				Name string `xml:"Name,attr"`
			} `xml:"Channel"`
			TiffData []struct {
				FirstC int `xml:"FirstC,attr"`
				IFD    int `xml:"IFD,attr"`
			} `xml:"TiffData"`
		} `xml:"Pixels"`
	} `xml:"Image"`
}

// TestEndToEndConversion runs the full pipeline on the three-channel
// reference scenario and validates the container plane by plane
func TestEndToEndConversion(t *testing.T) {
	inputDir := t.TempDir()
	writeChannelTIF(t, inputDir, "DAPI-01.tif", 200, 200, 1000)
	writeChannelTIF(t, inputDir, "CD3e.tif", 200, 200, 500)
	writeChannelTIF(t, inputDir, "CD45.tif", 200, 200, 250)
	writeChannelTIF(t, inputDir, "BLANK1a.tif", 200, 200, 77)

	outputPath := filepath.Join(t.TempDir(), "sample.ome.tiff")
	c := NewConverter(&Params{
		InputDir:         inputDir,
		OutputPath:       outputPath,
		PixelSizeMicrons: 0.5,
	})
	if err := c.Process(); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	wantNames := []string{"DAPI", "CD3e", "CD45"}
	chs := c.Channels()
	if len(chs) != 3 {
		t.Fatalf("Expected 3 channels, got %d", len(chs))
	}
	for i, ch := range chs {
		if ch.Name != wantNames[i] {
			t.Errorf("Channel %d: expected %s, got %s", i, wantNames[i], ch.Name)
		}
	}

	parsed, err := bigtiff.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to parse container: %v", err)
	}
	if len(parsed.Planes) != 3 {
		t.Fatalf("Expected 3 top-level planes, got %d", len(parsed.Planes))
	}

	// 6 planes per channel: 200, 100, 50, 25, 12, 6 (odd remainders trimmed)
	wantDims := []int{200, 100, 50, 25, 12, 6}
	wantValues := []uint16{1000, 500, 250}
	for i, d := range parsed.Planes {
		if len(d.SubIFDs) != 5 {
			t.Fatalf("Plane %d: expected 5 sub-planes, got %d", i, len(d.SubIFDs))
		}
		levels := append([]*bigtiff.Directory{d}, d.SubIFDs...)
		for lvl, ld := range levels {
			if ld.Width() != wantDims[lvl] || ld.Height() != wantDims[lvl] {
				t.Errorf("Plane %d level %d: expected %dx%d, got %dx%d",
					i, lvl, wantDims[lvl], wantDims[lvl], ld.Width(), ld.Height())
			}
			pix, err := parsed.DecodePlane(ld)
			if err != nil {
				t.Fatalf("Plane %d level %d: decode failed: %v", i, lvl, err)
			}
			for _, v := range pix {
				if v != wantValues[i] {
					t.Fatalf("Plane %d level %d: expected uniform %d, got %d",
						i, lvl, wantValues[i], v)
				}
			}
		}
	}

	// Metadata is attached to the first plane only and must report the
	// channel mapping supplied at conversion time
	desc, ok := parsed.Planes[0].Tags[270]
	if !ok {
		t.Fatal("First plane carries no metadata document")
	}
	var ome omePixels
	if err := xml.Unmarshal([]byte(desc.ASCII()), &ome); err != nil {
		t.Fatalf("Embedded metadata is not well-formed XML: %v", err)
	}
	px := ome.Image.Pixels
	if px.SizeC != 3 {
		t.Errorf("Expected SizeC=3, got %d", px.SizeC)
	}
	if px.PhysicalSizeX != 0.5 || px.PhysicalSizeY != 0.5 {
		t.Errorf("Expected physical pixel size 0.5, got %f x %f", px.PhysicalSizeX, px.PhysicalSizeY)
	}
	for i, ch := range px.Channels {
		if ch.Name != wantNames[i] {
			t.Errorf("Metadata channel %d: expected %s, got %s", i, wantNames[i], ch.Name)
		}
	}
	for i, td := range px.TiffData {
		if td.FirstC != i || td.IFD != i {
			t.Errorf("Metadata TiffData %d: expected FirstC=IFD=%d, got %d/%d", i, i, td.FirstC, td.IFD)
		}
	}
	for _, d := range parsed.Planes[1:] {
		if _, ok := d.Tags[270]; ok {
			t.Error("Metadata document attached to a non-first plane")
		}
	}

	// Resolution in pixels per centimeter consistent with 0.5 µm/pixel
	wantRes := 1e4 / 0.5
	num, den := parsed.Planes[0].Tags[282].Rational()
	if den == 0 {
		t.Fatal("Zero resolution denominator")
	}
	if got := float64(num) / float64(den); got < wantRes-1 || got > wantRes+1 {
		t.Errorf("Expected resolution %.0f px/cm, got %.2f", wantRes, got)
	}
}

// TestDimensionMismatchRejectedBeforeOutput verifies mismatched channels
// abort the run before any output bytes are written
func TestDimensionMismatchRejectedBeforeOutput(t *testing.T) {
	inputDir := t.TempDir()
	writeChannelTIF(t, inputDir, "DAPI.tif", 200, 200, 1000)
	writeChannelTIF(t, inputDir, "CD3e.tif", 100, 100, 500)

	outputPath := filepath.Join(t.TempDir(), "bad.ome.tiff")
	c := NewConverter(&Params{
		InputDir:         inputDir,
		OutputPath:       outputPath,
		PixelSizeMicrons: 0.5,
	})
	if err := c.Process(); err == nil {
		t.Fatal("Expected dimension-mismatch error")
	}
	if _, err := os.Stat(outputPath); !os.IsNotExist(err) {
		t.Error("Output file must not exist after a pre-write rejection")
	}
}

// TestEmptyInputDirectory verifies the "no channels" error propagates
func TestEmptyInputDirectory(t *testing.T) {
	c := NewConverter(&Params{
		InputDir:         t.TempDir(),
		OutputPath:       filepath.Join(t.TempDir(), "out.ome.tiff"),
		PixelSizeMicrons: 0.5,
	})
	if err := c.Process(); err == nil {
		t.Fatal("Expected error for empty input directory")
	}
}

// TestMissingInputDirectory verifies a nonexistent directory is an error
func TestMissingInputDirectory(t *testing.T) {
	c := NewConverter(&Params{
		InputDir:         filepath.Join(t.TempDir(), "nope"),
		OutputPath:       filepath.Join(t.TempDir(), "out.ome.tiff"),
		PixelSizeMicrons: 0.5,
	})
	if err := c.Process(); err == nil {
		t.Fatal("Expected error for missing input directory")
	}
}
