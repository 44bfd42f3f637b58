// Package bigtiff writes the tiled, pyramidal, big-endian BigTIFF container
// consumed by downstream viewers.
//
// The file is assembled append-only: tile data is compressed and written as
// each plane arrives, while the directory structures are queued in memory.
// Close lays every IFD out after the data and performs the single backward
// seek the format requires, patching the first-IFD offset in the header.
package bigtiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zlib"

	"channelpyramid/internal/models"
)

// enc is the byte order of every integer in the file, including samples.
// The container is always written big-endian ("MM").
var enc = binary.BigEndian

// entry is one IFD field. value holds the already-encoded payload; payloads
// longer than 8 bytes are relocated to the IFD's pointer area at layout time.
type entry struct {
	tag   uint16
	typ   uint16
	count uint64
	value []byte
}

// ifd is one queued directory plus its attached sub-resolution directories.
type ifd struct {
	entries []entry
	subs    []*ifd
	subIFDs int // declared sub-plane count, full-resolution planes only

	offset uint64 // assigned when Close lays the directories out
	next   uint64
}

func (d *ifd) add(tag, typ uint16, count uint64, value []byte) {
	d.entries = append(d.entries, entry{tag: tag, typ: typ, count: count, value: value})
}

func (d *ifd) addShort(tag uint16, v uint16) {
	b := make([]byte, 2)
	enc.PutUint16(b, v)
	d.add(tag, typeShort, 1, b)
}

func (d *ifd) addLong(tag uint16, v uint32) {
	b := make([]byte, 4)
	enc.PutUint32(b, v)
	d.add(tag, typeLong, 1, b)
}

func (d *ifd) addLong8Slice(tag uint16, typ uint16, vs []uint64) {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[8*i:], v)
	}
	d.add(tag, typ, uint64(len(vs)), b)
}

func (d *ifd) addASCII(tag uint16, s []byte) {
	// ASCII fields are NUL terminated; UTF-8 payloads pass through untouched.
	b := make([]byte, len(s)+1)
	copy(b, s)
	d.add(tag, typeASCII, uint64(len(b)), b)
}

func (d *ifd) addRational(tag uint16, num, den uint32) {
	b := make([]byte, 8)
	enc.PutUint32(b, num)
	enc.PutUint32(b[4:], den)
	d.add(tag, typeRational, 1, b)
}

// setValue overwrites the payload of an existing same-sized entry.
func (d *ifd) setValue(tag uint16, value []byte) {
	for i := range d.entries {
		if d.entries[i].tag == tag {
			if len(value) != len(d.entries[i].value) {
				panic("bigtiff: entry payload size changed after layout")
			}
			d.entries[i].value = value
			return
		}
	}
	panic("bigtiff: no such entry")
}

// size returns the encoded length of the directory: entry table, next-IFD
// pointer and the pointer area holding payloads wider than 8 bytes.
func (d *ifd) size() uint64 {
	n := uint64(8 + entrySize*len(d.entries) + 8)
	for _, e := range d.entries {
		if len(e.value) > 8 {
			n += uint64(len(e.value) + len(e.value)%2)
		}
	}
	return n
}

// encode serializes the directory at its assigned offset.
func (d *ifd) encode(buf *bytes.Buffer) {
	sort.Slice(d.entries, func(i, j int) bool { return d.entries[i].tag < d.entries[j].tag })

	overflowOff := d.offset + uint64(8+entrySize*len(d.entries)+8)
	var overflow bytes.Buffer

	var b8 [8]byte
	enc.PutUint64(b8[:], uint64(len(d.entries)))
	buf.Write(b8[:])

	for _, e := range d.entries {
		var eb [entrySize]byte
		enc.PutUint16(eb[0:], e.tag)
		enc.PutUint16(eb[2:], e.typ)
		enc.PutUint64(eb[4:], e.count)
		if len(e.value) <= 8 {
			copy(eb[12:], e.value)
		} else {
			enc.PutUint64(eb[12:], overflowOff+uint64(overflow.Len()))
			overflow.Write(e.value)
			if len(e.value)%2 == 1 {
				overflow.WriteByte(0)
			}
		}
		buf.Write(eb[:])
	}

	enc.PutUint64(b8[:], d.next)
	buf.Write(b8[:])
	buf.Write(overflow.Bytes())
}

// PlaneOptions controls how one plane is written.
type PlaneOptions struct {
	// TileSize is the tile edge length in samples; DefaultTileSize if zero
	TileSize int

	// Description is embedded in the plane's ImageDescription field. Only the
	// very first plane of the file may carry it. The bytes are written
	// verbatim (the OME document contains a UTF-8 µ).
	Description []byte

	// SubIFDCount declares how many reduced-resolution sub-planes will follow
	// this full-resolution plane
	SubIFDCount int

	// Reduced marks the plane as a reduced-resolution variant attached to the
	// immediately preceding full-resolution plane
	Reduced bool

	// PixelsPerCM is the resolution declared on full-resolution planes
	PixelsPerCM float64

	// Software is the writer identification string on full-resolution planes
	Software string
}

// Writer emits one container. Planes must be written in display order, each
// full-resolution plane followed by its sub-planes from largest to smallest.
type Writer struct {
	w      io.WriteSeeker
	off    uint64
	planes []*ifd
	cur    *ifd
	closed bool

	zbuf bytes.Buffer
	zw   *zlib.Writer
}

// NewWriter writes the BigTIFF header and returns a writer positioned for the
// first plane's tile data. The first-IFD offset in the header is patched on
// Close.
func NewWriter(w io.WriteSeeker) (*Writer, error) {
	var hdr [headerSize]byte
	copy(hdr[0:], "MM")
	enc.PutUint16(hdr[2:], bigTIFFVersion)
	enc.PutUint16(hdr[4:], bigTIFFOffsetSize)
	enc.PutUint16(hdr[6:], 0)
	enc.PutUint64(hdr[8:], 0) // first IFD offset, patched on Close
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to write container header: %v", err)
	}
	bw := &Writer{w: w, off: headerSize}
	bw.zw = zlib.NewWriter(&bw.zbuf)
	return bw, nil
}

// WritePlane compresses the plane into fixed-geometry tiles, appends them to
// the file and queues the plane's directory for Close.
func (bw *Writer) WritePlane(p *models.PixelPlane, opts PlaneOptions) error {
	if bw.closed {
		return fmt.Errorf("container already closed")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("invalid plane dimensions %dx%d", p.Width, p.Height)
	}
	ts := opts.TileSize
	if ts == 0 {
		ts = DefaultTileSize
	}

	if opts.Reduced {
		if bw.cur == nil {
			return fmt.Errorf("reduced plane written before any full-resolution plane")
		}
		if len(bw.cur.subs) >= bw.cur.subIFDs {
			return fmt.Errorf("plane declared %d sub-planes, got more", bw.cur.subIFDs)
		}
	} else if len(opts.Description) > 0 && len(bw.planes) > 0 {
		return fmt.Errorf("metadata document may only be attached to the first plane")
	}

	offsets, counts, err := bw.writeTiles(p, ts)
	if err != nil {
		return err
	}

	d := &ifd{subIFDs: opts.SubIFDCount}
	if opts.Reduced {
		d.addLong(tagNewSubfileType, SubfileReducedImage)
	}
	d.addLong(tagImageWidth, uint32(p.Width))
	d.addLong(tagImageLength, uint32(p.Height))
	d.addShort(tagBitsPerSample, 16)
	d.addShort(tagCompression, CompressionAdobeDeflate)
	d.addShort(tagPhotometricInterpretation, PhotometricMinIsBlack)
	if len(opts.Description) > 0 {
		d.addASCII(tagImageDescription, opts.Description)
	}
	d.addShort(tagSamplesPerPixel, 1)
	if opts.PixelsPerCM > 0 {
		num := uint32(opts.PixelsPerCM*1000 + 0.5)
		d.addRational(tagXResolution, num, 1000)
		d.addRational(tagYResolution, num, 1000)
	}
	d.addShort(tagPlanarConfiguration, PlanarConfigContiguous)
	if opts.PixelsPerCM > 0 {
		d.addShort(tagResolutionUnit, ResolutionUnitCentimeter)
	}
	if opts.Software != "" {
		d.addASCII(tagSoftware, []byte(opts.Software))
	}
	d.addLong(tagTileWidth, uint32(ts))
	d.addLong(tagTileLength, uint32(ts))
	d.addLong8Slice(tagTileOffsets, typeLong8, offsets)
	d.addLong8Slice(tagTileByteCounts, typeLong8, counts)
	if opts.SubIFDCount > 0 {
		// Placeholder offsets, filled in once Close assigns directory layout.
		d.addLong8Slice(tagSubIFDs, typeIFD8, make([]uint64, opts.SubIFDCount))
	}
	d.addShort(tagSampleFormat, SampleFormatUnsigned)

	if opts.Reduced {
		bw.cur.subs = append(bw.cur.subs, d)
	} else {
		bw.planes = append(bw.planes, d)
		bw.cur = d
	}
	return nil
}

// writeTiles chops the plane into ts x ts tiles in row-major order, deflates
// each one and appends it to the file. Edge tiles are zero-padded to the full
// tile geometry, as the format requires.
func (bw *Writer) writeTiles(p *models.PixelPlane, ts int) (offsets, counts []uint64, err error) {
	ntx := (p.Width + ts - 1) / ts
	nty := (p.Height + ts - 1) / ts
	raw := make([]byte, ts*ts*2)

	for ty := 0; ty < nty; ty++ {
		for tx := 0; tx < ntx; tx++ {
			tw := min(ts, p.Width-tx*ts)
			th := min(ts, p.Height-ty*ts)
			if tw < ts || th < ts {
				for i := range raw {
					raw[i] = 0
				}
			}
			for row := 0; row < th; row++ {
				src := p.Pix[(ty*ts+row)*p.Width+tx*ts:]
				dst := raw[row*ts*2:]
				for x := 0; x < tw; x++ {
					enc.PutUint16(dst[2*x:], src[x])
				}
			}

			bw.zbuf.Reset()
			bw.zw.Reset(&bw.zbuf)
			if _, err := bw.zw.Write(raw); err != nil {
				return nil, nil, fmt.Errorf("failed to compress tile: %v", err)
			}
			if err := bw.zw.Close(); err != nil {
				return nil, nil, fmt.Errorf("failed to compress tile: %v", err)
			}

			n, err := bw.w.Write(bw.zbuf.Bytes())
			if err != nil {
				return nil, nil, fmt.Errorf("failed to write tile data: %v", err)
			}
			offsets = append(offsets, bw.off)
			counts = append(counts, uint64(n))
			bw.off += uint64(n)
		}
	}
	return offsets, counts, nil
}

// Close lays out every queued directory after the tile data, links the
// full-resolution chain and the SubIFD references, writes the directory block
// and patches the header's first-IFD offset.
func (bw *Writer) Close() error {
	if bw.closed {
		return nil
	}
	bw.closed = true

	if len(bw.planes) == 0 {
		return fmt.Errorf("no planes written")
	}
	for i, d := range bw.planes {
		if len(d.subs) != d.subIFDs {
			return fmt.Errorf("plane %d declared %d sub-planes, got %d", i, d.subIFDs, len(d.subs))
		}
	}

	// Pass 1: assign offsets in file order (each full plane followed by its
	// sub-planes, largest to smallest).
	off := bw.off
	for _, d := range bw.planes {
		d.offset = off
		off += d.size()
		for _, s := range d.subs {
			s.offset = off
			off += s.size()
		}
	}

	// Pass 2: link and serialize.
	var block bytes.Buffer
	for i, d := range bw.planes {
		if i+1 < len(bw.planes) {
			d.next = bw.planes[i+1].offset
		}
		if d.subIFDs > 0 {
			subOffs := make([]byte, 8*len(d.subs))
			for j, s := range d.subs {
				enc.PutUint64(subOffs[8*j:], s.offset)
			}
			d.setValue(tagSubIFDs, subOffs)
		}
		d.encode(&block)
		for _, s := range d.subs {
			s.encode(&block)
		}
	}

	if _, err := bw.w.Write(block.Bytes()); err != nil {
		return fmt.Errorf("failed to write directory block: %v", err)
	}

	// The single backward seek the format needs: point the header at the
	// first directory.
	if _, err := bw.w.Seek(8, io.SeekStart); err != nil {
		return fmt.Errorf("failed to finalize container: %v", err)
	}
	var b8 [8]byte
	enc.PutUint64(b8[:], bw.planes[0].offset)
	if _, err := bw.w.Write(b8[:]); err != nil {
		return fmt.Errorf("failed to finalize container: %v", err)
	}
	return nil
}
