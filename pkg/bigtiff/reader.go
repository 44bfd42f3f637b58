package bigtiff

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
)

// The reader walks the directory structure of a container written by this
// package (or any big-endian BigTIFF with the same tag subset). It exists so
// that conversions can be verified plane by plane without an external viewer;
// the whole file is held in memory.

// Tag is one decoded IFD field.
type Tag struct {
	Type  uint16
	Count uint64
	raw   []byte
}

// Uints returns the field values widened to uint64. Valid for the BYTE,
// SHORT, LONG, LONG8 and IFD8 types.
func (t Tag) Uints() []uint64 {
	out := make([]uint64, t.Count)
	for i := range out {
		switch t.Type {
		case typeByte:
			out[i] = uint64(t.raw[i])
		case typeShort:
			out[i] = uint64(enc.Uint16(t.raw[2*i:]))
		case typeLong:
			out[i] = uint64(enc.Uint32(t.raw[4*i:]))
		case typeLong8, typeIFD8:
			out[i] = enc.Uint64(t.raw[8*i:])
		}
	}
	return out
}

// Uint returns the first value of the field.
func (t Tag) Uint() uint64 {
	vs := t.Uints()
	if len(vs) == 0 {
		return 0
	}
	return vs[0]
}

// ASCII returns the field payload as a string without the trailing NUL.
func (t Tag) ASCII() string {
	return string(bytes.TrimRight(t.raw, "\x00"))
}

// Rational returns the first value of a RATIONAL field.
func (t Tag) Rational() (num, den uint32) {
	return enc.Uint32(t.raw), enc.Uint32(t.raw[4:])
}

// Directory is one decoded IFD plus its attached sub-resolution directories.
type Directory struct {
	Tags    map[uint16]Tag
	SubIFDs []*Directory
}

// Width and Height return the plane extent in pixels.
func (d *Directory) Width() int  { return int(d.Tags[tagImageWidth].Uint()) }
func (d *Directory) Height() int { return int(d.Tags[tagImageLength].Uint()) }

// File is a fully parsed container.
type File struct {
	data []byte

	// Planes holds the top-level (full-resolution) directories in file order
	Planes []*Directory
}

// ReadFile parses the container at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read container: %v", err)
	}
	return Parse(data)
}

// Parse decodes an in-memory container.
func Parse(data []byte) (*File, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("truncated header")
	}
	if string(data[0:2]) != "MM" {
		return nil, fmt.Errorf("unexpected byte-order mark %q", data[0:2])
	}
	if v := enc.Uint16(data[2:]); v != bigTIFFVersion {
		return nil, fmt.Errorf("unexpected version %d, want %d", v, bigTIFFVersion)
	}
	if s := enc.Uint16(data[4:]); s != bigTIFFOffsetSize {
		return nil, fmt.Errorf("unexpected offset size %d", s)
	}

	f := &File{data: data}
	off := enc.Uint64(data[8:])
	for off != 0 {
		d, next, err := f.parseIFD(off)
		if err != nil {
			return nil, err
		}
		if sub, ok := d.Tags[tagSubIFDs]; ok {
			for _, so := range sub.Uints() {
				sd, _, err := f.parseIFD(so)
				if err != nil {
					return nil, fmt.Errorf("sub-plane: %v", err)
				}
				d.SubIFDs = append(d.SubIFDs, sd)
			}
		}
		f.Planes = append(f.Planes, d)
		off = next
	}
	if len(f.Planes) == 0 {
		return nil, fmt.Errorf("container has no planes")
	}
	return f, nil
}

func typeSize(typ uint16) uint64 {
	switch typ {
	case typeByte, typeASCII:
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeRational, typeLong8, typeIFD8:
		return 8
	default:
		return 0
	}
}

func (f *File) parseIFD(off uint64) (*Directory, uint64, error) {
	if off+8 > uint64(len(f.data)) {
		return nil, 0, fmt.Errorf("directory offset %d out of range", off)
	}
	n := enc.Uint64(f.data[off:])
	end := off + 8 + n*entrySize + 8
	if end > uint64(len(f.data)) {
		return nil, 0, fmt.Errorf("directory at %d overruns file", off)
	}

	d := &Directory{Tags: make(map[uint16]Tag, n)}
	for i := uint64(0); i < n; i++ {
		e := f.data[off+8+i*entrySize:]
		tag := enc.Uint16(e)
		typ := enc.Uint16(e[2:])
		count := enc.Uint64(e[4:])
		size := typeSize(typ) * count
		if size == 0 {
			continue
		}
		var raw []byte
		if size <= 8 {
			raw = e[12 : 12+size]
		} else {
			voff := enc.Uint64(e[12:])
			if voff+size > uint64(len(f.data)) {
				return nil, 0, fmt.Errorf("tag %d payload out of range", tag)
			}
			raw = f.data[voff : voff+size]
		}
		d.Tags[tag] = Tag{Type: typ, Count: count, raw: raw}
	}
	return d, enc.Uint64(f.data[off+8+n*entrySize:]), nil
}

// DecodeTile inflates tile idx of the directory and returns its samples in
// row-major order, one full tile's worth (edge tiles include padding).
func (f *File) DecodeTile(d *Directory, idx int) ([]uint16, error) {
	offs := d.Tags[tagTileOffsets].Uints()
	counts := d.Tags[tagTileByteCounts].Uints()
	if idx < 0 || idx >= len(offs) {
		return nil, fmt.Errorf("tile %d out of range (%d tiles)", idx, len(offs))
	}
	if c := d.Tags[tagCompression].Uint(); c != CompressionAdobeDeflate {
		return nil, fmt.Errorf("unexpected compression code %d", c)
	}

	zr, err := zlib.NewReader(bytes.NewReader(f.data[offs[idx] : offs[idx]+counts[idx]]))
	if err != nil {
		return nil, fmt.Errorf("failed to open tile stream: %v", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to inflate tile: %v", err)
	}

	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = enc.Uint16(raw[2*i:])
	}
	return out, nil
}

// DecodePlane reassembles the full sample grid of one directory from its
// tiles, dropping edge-tile padding.
func (f *File) DecodePlane(d *Directory) ([]uint16, error) {
	w, h := d.Width(), d.Height()
	ts := int(d.Tags[tagTileWidth].Uint())
	if ts == 0 || ts != int(d.Tags[tagTileLength].Uint()) {
		return nil, fmt.Errorf("unexpected tile geometry")
	}
	ntx := (w + ts - 1) / ts

	out := make([]uint16, w*h)
	nTiles := len(d.Tags[tagTileOffsets].Uints())
	for idx := 0; idx < nTiles; idx++ {
		tile, err := f.DecodeTile(d, idx)
		if err != nil {
			return nil, err
		}
		tx, ty := idx%ntx, idx/ntx
		for row := 0; row < min(ts, h-ty*ts); row++ {
			for col := 0; col < min(ts, w-tx*ts); col++ {
				out[(ty*ts+row)*w+tx*ts+col] = tile[row*ts+col]
			}
		}
	}
	return out, nil
}
