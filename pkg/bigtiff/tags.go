package bigtiff

// TIFF tag identifiers used by the container. Tags must appear in ascending
// order inside an IFD; the writer sorts entries before encoding.
const (
	tagNewSubfileType            = 254
	tagImageWidth                = 256
	tagImageLength               = 257
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagImageDescription          = 270
	tagSamplesPerPixel           = 277
	tagXResolution               = 282
	tagYResolution               = 283
	tagPlanarConfiguration       = 284
	tagResolutionUnit            = 296
	tagSoftware                  = 305
	tagTileWidth                 = 322
	tagTileLength                = 323
	tagTileOffsets               = 324
	tagTileByteCounts            = 325
	tagSubIFDs                   = 330
	tagSampleFormat              = 339
)

// TIFF field data types
const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeLong8    = 16
	typeIFD8     = 18
)

// Tag values the reader ecosystem branches on. CompressionAdobeDeflate is the
// zlib-stream deflate variant (code 8); readers treat it differently from the
// legacy code 32946, so the exact identifier matters.
const (
	CompressionAdobeDeflate  = 8
	PhotometricMinIsBlack    = 1
	PlanarConfigContiguous   = 1
	ResolutionUnitCentimeter = 3
	SampleFormatUnsigned     = 1
	SubfileReducedImage      = 1
)

// DefaultTileSize is the tile edge length, in samples, expected by the
// consuming viewers.
const DefaultTileSize = 512

const (
	bigTIFFVersion    = 43
	bigTIFFOffsetSize = 8
	headerSize        = 16
	entrySize         = 20
)
