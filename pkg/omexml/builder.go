// Package omexml builds the OME-XML metadata document embedded in the first
// plane of the output container.
//
// The document layout is a strict serialization contract with the Bio-Formats
// reader ecosystem, not generic templating: attribute order, element order and
// character encoding must match what Bio-Formats itself emits. In particular
// the physical-size unit carries a real UTF-8 micro sign (µ), so the result is
// returned as raw bytes and callers must hand it to the container writer
// without any ASCII-only sanitation.
package omexml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Params collects everything the document describes about one conversion.
type Params struct {
	// ChannelNames are the display names in stored (logical) channel order
	ChannelNames []string

	// SizeX and SizeY are the full-resolution image extent in pixels
	SizeX int
	SizeY int

	// PixelSizeMicrons is the isotropic physical pixel size in µm/pixel
	PixelSizeMicrons float64

	// Filename is the base name of the output container, referenced by every
	// per-channel TiffData block
	Filename string
}

// Build produces the document with a freshly generated document UUID.
func Build(p Params) []byte {
	return BuildWithUUID(p, uuid.New())
}

// BuildWithUUID produces the document with an explicit UUID, which keeps the
// output fully deterministic for golden-file comparison.
//
// Each channel gets a Channel element (stable identifier, display name, one
// sample per pixel) and a TiffData block mapping logical coordinates
// (FirstC=c, FirstT=0, FirstZ=0) to the physical IFD holding that channel's
// full-resolution samples. The explicit mapping is what lets a reader resolve
// "channel 3" to "physical plane 3" without relying on storage order, which
// is ambiguous for multi-plane files.
func BuildWithUUID(p Params, id uuid.UUID) []byte {
	imageUUID := "urn:uuid:" + id.String()
	pixelSize := formatFloat(p.PixelSizeMicrons)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<OME xmlns="http://www.openmicroscopy.org/Schemas/OME/2016-06" `)
	b.WriteString(`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" `)
	fmt.Fprintf(&b, `UUID="%s" `, imageUUID)
	b.WriteString(`xsi:schemaLocation="http://www.openmicroscopy.org/Schemas/OME/2016-06 `)
	b.WriteString(`http://www.openmicroscopy.org/Schemas/OME/2016-06/ome.xsd">`)
	fmt.Fprintf(&b, `<Image ID="Image:0" Name="%s">`, p.Filename)
	b.WriteString(`<Pixels BigEndian="true" DimensionOrder="XYCZT" `)
	b.WriteString(`ID="Pixels:0" Interleaved="false" `)
	fmt.Fprintf(&b, `PhysicalSizeX="%s" PhysicalSizeXUnit="µm" `, pixelSize)
	fmt.Fprintf(&b, `PhysicalSizeY="%s" PhysicalSizeYUnit="µm" `, pixelSize)
	fmt.Fprintf(&b, `SizeC="%d" SizeT="1" SizeX="%d" `, len(p.ChannelNames), p.SizeX)
	fmt.Fprintf(&b, `SizeY="%d" SizeZ="1" Type="uint16">`, p.SizeY)

	for c, name := range p.ChannelNames {
		fmt.Fprintf(&b, `<Channel ID="Channel:0:%d" Name="%s" SamplesPerPixel="1">`, c, name)
		b.WriteString(`<LightPath/></Channel>`)
	}

	for c := range p.ChannelNames {
		fmt.Fprintf(&b, `<TiffData FirstC="%d" FirstT="0" FirstZ="0" IFD="%d" PlaneCount="1">`, c, c)
		fmt.Fprintf(&b, `<UUID FileName="%s">%s</UUID>`, p.Filename, imageUUID)
		b.WriteString(`</TiffData>`)
	}

	b.WriteString(`</Pixels></Image></OME>`)
	return []byte(b.String())
}

// formatFloat renders a pixel size the way the reference documents do:
// shortest decimal representation that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
