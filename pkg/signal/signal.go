// Package signal holds the interface to the autofluorescence-subtraction
// collaborator and the static acquisition-layout knowledge it needs: which
// blank cycle position each marker was imaged at, how matched blank pairs are
// averaged, and how per-channel intensity summaries are reported.
//
// The subtraction algorithm itself is external; this package only defines the
// contract it is consumed through.
package signal

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"

	"channelpyramid/internal/models"
)

// Position is the blank cycle position (a, b or c) a marker was imaged at.
// The matched blank for a marker is the blank acquired at the same position.
type Position string

const (
	PositionA Position = "a"
	PositionB Position = "b"
	PositionC Position = "c"
)

// channelPositions maps marker name to blank cycle position. Derived from the
// acquisition cycle layout; built once and never mutated.
var channelPositions = buildPositionTable()

func buildPositionTable() map[string]Position {
	table := make(map[string]Position)
	for _, m := range []string{"CD20", "CD31", "CD34", "CD35", "Lyve1", "PanCK", "SMActin"} {
		table[m] = PositionA
	}
	for _, m := range []string{"CD8", "CD15", "CD21", "CD44", "CD45RO", "CD5", "CollagenIV",
		"ECAD", "FoxP3", "Ki67", "Podoplanin"} {
		table[m] = PositionB
	}
	for _, m := range []string{"CD3e", "CD4", "CD11c", "CD107a", "CD163", "CD1c", "CD45",
		"CD68", "HLADR", "Vimentin"} {
		table[m] = PositionC
	}
	return table
}

// PositionFor returns the blank cycle position for a marker, and whether the
// marker is a known signal channel at all.
func PositionFor(marker string) (Position, bool) {
	p, ok := channelPositions[marker]
	return p, ok
}

// SignalChannels returns every known signal marker in ascending order.
func SignalChannels() []string {
	names := make([]string, 0, len(channelPositions))
	for m := range channelPositions {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// BlankAverage returns the pixel-wise mean of a matched blank pair, computed
// in float32 and truncated back to uint16.
func BlankAverage(a, b *models.PixelPlane) (*models.PixelPlane, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return nil, fmt.Errorf("blank dimensions %dx%d do not match %dx%d",
			a.Width, a.Height, b.Width, b.Height)
	}
	out := models.NewPixelPlane(a.Width, a.Height)
	for i := range out.Pix {
		out.Pix[i] = uint16((float32(a.Pix[i]) + float32(b.Pix[i])) / 2.0)
	}
	return out, nil
}

// Params are the numeric knobs of the subtraction collaborator.
type Params struct {
	// BlankClipFactor clips the blank before scaling
	BlankClipFactor int

	// BlankScaleFactor scales the blank before subtraction
	BlankScaleFactor float64
}

// Quality holds the scalar metrics the collaborator reports for one channel.
type Quality struct {
	QualityScore       float64
	SignalPreservation float64
	AFRemoval          float64
	SNRImprovement     float64
}

// Subtractor is the opaque autofluorescence-subtraction collaborator: given a
// signal plane, its matched blank average and tuning parameters, it returns
// the corrected plane plus quality metrics. Implementations live outside this
// repository.
type Subtractor func(signal, blank *models.PixelPlane, p Params) (*models.PixelPlane, Quality, error)

// ParseParamFile reads a per-marker parameter file of "key: value" lines.
// It returns nil without error when the file does not exist or does not carry
// both subtraction parameters, mirroring how tuned parameters are optional.
func ParseParamFile(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file: %v", err)
	}

	var p Params
	haveClip, haveScale := false, false
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "blank_clip_factor:"):
			v, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(line, ":", 2)[1]))
			if err == nil {
				p.BlankClipFactor = v
				haveClip = true
			}
		case strings.HasPrefix(line, "background_scale_factor:"):
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.SplitN(line, ":", 2)[1]), 64)
			if err == nil {
				p.BlankScaleFactor = v
				haveScale = true
			}
		}
	}
	if !haveClip || !haveScale {
		return nil, nil
	}
	return &p, nil
}

// Summary reports robust intensity percentiles of a plane, used to sanity
// check channels before and after subtraction.
type Summary struct {
	P1  float64
	P99 float64
}

// Summarize computes the 1st and 99th intensity percentiles of a plane.
func Summarize(p *models.PixelPlane) Summary {
	vals := make([]float64, len(p.Pix))
	for i, v := range p.Pix {
		vals[i] = float64(v)
	}
	sort.Float64s(vals)
	return Summary{
		P1:  stat.Quantile(0.01, stat.LinInterp, vals, nil),
		P99: stat.Quantile(0.99, stat.LinInterp, vals, nil),
	}
}
