package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
)

// TIFF container constants: magic bytes identify byte order, version is
// always 42 for classic (non-BigTIFF) files.
const (
	containerMagicLE = 0x4949 // "II" little-endian
	containerMagicBE = 0x4D4D // "MM" big-endian
	containerVersion = 42
)

// Compression codes found in a directory's Compression tag (259).
const (
	CompressionNone    = 1
	CompressionLZW     = 5
	CompressionJPEG    = 6
	CompressionDeflate = 8
)

// SampleType is a directory entry's declared on-disk encoding, per the TIFF
// field-type enumeration.
type SampleType uint16

const (
	SampleUint8     SampleType = 1  // 8-bit unsigned integer
	SampleASCII     SampleType = 2  // 8-bit ASCII, NUL-terminated
	SampleUint16    SampleType = 3  // 16-bit unsigned integer
	SampleUint32    SampleType = 4  // 32-bit unsigned integer
	SampleRational  SampleType = 5  // two uint32: numerator, denominator
	SampleInt8      SampleType = 6  // 8-bit signed integer
	SampleUndefined SampleType = 7  // 8-bit opaque byte
	SampleInt16     SampleType = 8  // 16-bit signed integer
	SampleInt32     SampleType = 9  // 32-bit signed integer
	SampleSRational SampleType = 10 // two int32: numerator, denominator
	SampleFloat32   SampleType = 11 // IEEE single precision
	SampleFloat64   SampleType = 12 // IEEE double precision
)

// typeSize returns the on-disk byte width of one sample of SampleType.
func (s SampleType) typeSize() uint32 {
	switch s {
	case SampleUint8, SampleASCII, SampleInt8, SampleUndefined:
		return 1
	case SampleUint16, SampleInt16:
		return 2
	case SampleUint32, SampleInt32, SampleFloat32:
		return 4
	case SampleRational, SampleSRational, SampleFloat64:
		return 8
	default:
		return 1
	}
}

// tagEntry is one directory entry: a tag ID, its declared type/count, and
// either the decoded value or, for values too large to hold inline, the
// file offset it can be fetched from lazily via container.loadTagValue.
type tagEntry struct {
	ID       uint16
	Type     SampleType
	Count    uint32
	Offset   uint32
	Value    interface{}
	IsOffset bool
}

// directory is one Image File Directory: the tag table describing a single
// resolution level (the main image, or one reduced-resolution overview) of
// a TIFF/COG container, plus the file offset of the next level.
type directory struct {
	Tags      map[uint16]*tagEntry
	NextIFD   uint32
	ByteOrder binary.ByteOrder
}

// Tag IDs for the large per-block arrays that back tiled or stripped pixel
// data. These can run to thousands of entries on a multi-gigabyte COG, so
// metadata parsing never reads them eagerly; Handle.readPixelRegion loads
// them on demand via container.loadTagValue once a read actually needs them.
const (
	TagStripOffsets    = 273
	TagStripByteCounts = 279
	TagTileOffsets     = 324
	TagTileByteCounts  = 325
)

// container is the low-level reader for a TIFF/COG's directory chain: it
// walks the linked list of IFDs starting at the header's first-IFD offset
// and, for each, decodes the tag table plus (when metadataOnly is set) every
// tag value except the large block-offset arrays above.
type container struct {
	r         io.ReadSeeker
	byteOrder binary.ByteOrder
	dirs      []*directory
}

// openContainer parses a TIFF/COG's header and full directory chain.
// metadataOnly skips reading StripOffsets/TileOffsets-family tag values
// (they are loaded lazily later); allowedTags is passed down but not
// consulted by either read path, which both defer purely by tag ID.
func openContainer(r io.ReadSeeker, metadataOnly bool, allowedTags map[uint16]bool) (*container, error) {
	c := &container{r: r}

	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read container header: %w", err)
	}

	magic := binary.LittleEndian.Uint16(header[0:2])
	switch magic {
	case containerMagicLE:
		c.byteOrder = binary.LittleEndian
	case containerMagicBE:
		c.byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("invalid container magic: 0x%04x", magic)
	}

	version := c.byteOrder.Uint16(header[2:4])
	if version != containerVersion {
		return nil, fmt.Errorf("invalid container version: %d", version)
	}

	firstIFD := c.byteOrder.Uint32(header[4:8])
	if err := c.readDirectories(firstIFD, metadataOnly, allowedTags); err != nil {
		return nil, fmt.Errorf("read directories: %w", err)
	}
	return c, nil
}

func (c *container) readDirectories(offset uint32, metadataOnly bool, allowedTags map[uint16]bool) error {
	for offset != 0 {
		dir, err := c.readDirectory(offset, metadataOnly, allowedTags)
		if err != nil {
			return err
		}
		c.dirs = append(c.dirs, dir)
		offset = dir.NextIFD
	}
	return nil
}

// readDirectory reads one IFD's tag table in a single buffered read (tag
// count + all 12-byte tag entries + next-IFD offset), to keep a remote COG
// read to one HTTP range request per directory instead of one per tag.
func (c *container) readDirectory(offset uint32, metadataOnly bool, allowedTags map[uint16]bool) (*directory, error) {
	if _, err := c.r.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to directory: %w", err)
	}

	var tagCount uint16
	if err := binary.Read(c.r, c.byteOrder, &tagCount); err != nil {
		return nil, fmt.Errorf("read tag count: %w", err)
	}

	dirSize := 2 + int(tagCount)*12 + 4
	dirBuf := make([]byte, dirSize-2)
	if _, err := io.ReadFull(c.r, dirBuf); err != nil {
		return nil, fmt.Errorf("read directory body: %w", err)
	}

	buf := &bytesReader{data: dirBuf, byteOrder: c.byteOrder}
	dir := &directory{Tags: make(map[uint16]*tagEntry), ByteOrder: c.byteOrder}

	for i := uint16(0); i < tagCount; i++ {
		tag, err := readTagFromBuffer(buf)
		if err != nil {
			return nil, fmt.Errorf("read tag %d: %w", i, err)
		}
		dir.Tags[tag.ID] = tag
	}

	nextOff := len(dirBuf) - 4
	dir.NextIFD = c.byteOrder.Uint32(dirBuf[nextOff : nextOff+4])

	if metadataOnly {
		if err := c.readTagValuesBuffered(dir, offset); err != nil {
			return nil, err
		}
	} else {
		if err := c.readTagValuesEager(dir); err != nil {
			return nil, err
		}
	}
	return dir, nil
}

// bytesReader decodes fixed-size values out of an in-memory directory body.
type bytesReader struct {
	data      []byte
	offset    int
	byteOrder binary.ByteOrder
}

func readTagFromBuffer(br *bytesReader) (*tagEntry, error) {
	if br.offset+12 > len(br.data) {
		return nil, fmt.Errorf("buffer too small for tag entry")
	}
	tag := &tagEntry{
		ID:     br.byteOrder.Uint16(br.data[br.offset : br.offset+2]),
		Type:   SampleType(br.byteOrder.Uint16(br.data[br.offset+2 : br.offset+4])),
		Count:  br.byteOrder.Uint32(br.data[br.offset+4 : br.offset+8]),
		Offset: br.byteOrder.Uint32(br.data[br.offset+8 : br.offset+12]),
	}
	br.offset += 12
	return tag, nil
}

func isLargeArrayTag(id uint16) bool {
	return id == TagStripOffsets || id == TagStripByteCounts || id == TagTileOffsets || id == TagTileByteCounts
}

// readTagValuesEager decodes every tag's value from the live stream,
// deferring only the block-offset arrays for later on-demand loading. Used
// for non-metadata-only opens (currently unexercised by Handle.Open, which
// always opens metadata-only, but kept for callers that want a fully
// resolved directory up front).
func (c *container) readTagValuesEager(dir *directory) error {
	for _, tag := range dir.Tags {
		if isLargeArrayTag(tag.ID) {
			tag.IsOffset = true
			continue
		}
		valueSize := tag.Type.typeSize() * tag.Count
		if valueSize <= 4 {
			tag.Value = c.readInlineValue(tag)
			tag.IsOffset = false
			continue
		}
		tag.IsOffset = true
		oldPos, _ := c.r.Seek(0, io.SeekCurrent)
		if _, err := c.r.Seek(int64(tag.Offset), io.SeekStart); err != nil {
			return fmt.Errorf("seek to tag value: %w", err)
		}
		tag.Value = c.readValueAtOffset(tag)
		c.r.Seek(oldPos, io.SeekStart)
	}
	return nil
}

// bufferedReader decodes tag values out of a fixed window of the file
// fetched in one read, used to resolve small tag values near the directory
// itself without a second round trip.
type bufferedReader struct {
	data       []byte
	baseOffset int64
	byteOrder  binary.ByteOrder
}

// readTagValuesBuffered reads a 16KB window starting at the directory's own
// offset and resolves every tag value that falls inside it from memory;
// tags whose value lies outside the window are left unresolved
// (tag.IsOffset=true) and fetched later through loadTagValue: ordinary tags
// by geoLevel.readMetadata, the block-offset arrays by
// Handle.ensureTagLoaded once a read needs them. This is
// the read path Handle.Open always takes, since metadata for a remote COG
// should cost at most one or two range requests regardless of file size.
func (c *container) readTagValuesBuffered(dir *directory, dirOffset uint32) error {
	const windowSize = 16 * 1024

	buffer := make([]byte, windowSize)
	originalPos, _ := c.r.Seek(0, io.SeekCurrent)

	if _, err := c.r.Seek(int64(dirOffset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to directory window: %w", err)
	}
	n, err := io.ReadFull(c.r, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		c.r.Seek(originalPos, io.SeekStart)
		return fmt.Errorf("read directory window: %w", err)
	}
	buffer = buffer[:n]
	c.r.Seek(originalPos, io.SeekStart)

	buf := &bufferedReader{data: buffer, baseOffset: int64(dirOffset), byteOrder: c.byteOrder}
	windowStart := int64(dirOffset)
	windowEnd := windowStart + int64(len(buffer))

	for _, tag := range dir.Tags {
		if isLargeArrayTag(tag.ID) {
			tag.IsOffset = true
			continue
		}

		valueSize := tag.Type.typeSize() * tag.Count
		if valueSize <= 4 {
			tag.Value = c.readInlineValue(tag)
			tag.IsOffset = false
			continue
		}

		tagOffset := int64(tag.Offset)
		if tagOffset >= windowStart && tagOffset+int64(valueSize) <= windowEnd {
			tag.Value = readValueFromBuffer(buf, tag, tagOffset-windowStart)
			tag.IsOffset = false
		} else {
			tag.IsOffset = true
		}
	}
	return nil
}

func readValueFromBuffer(br *bufferedReader, tag *tagEntry, relOffset int64) interface{} {
	off := relOffset
	switch tag.Type {
	case SampleUint8:
		if tag.Count == 1 {
			return br.data[off]
		}
		values := make([]uint8, tag.Count)
		copy(values, br.data[off:off+int64(tag.Count)])
		return values
	case SampleUint16:
		if tag.Count == 1 {
			return br.byteOrder.Uint16(br.data[off : off+2])
		}
		values := make([]uint16, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			values[i] = br.byteOrder.Uint16(br.data[off+int64(i*2) : off+int64(i*2)+2])
		}
		return values
	case SampleUint32:
		if tag.Count == 1 {
			return br.byteOrder.Uint32(br.data[off : off+4])
		}
		values := make([]uint32, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			values[i] = br.byteOrder.Uint32(br.data[off+int64(i*4) : off+int64(i*4)+4])
		}
		return values
	case SampleInt16:
		if tag.Count == 1 {
			return int16(br.byteOrder.Uint16(br.data[off : off+2]))
		}
		values := make([]int16, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			values[i] = int16(br.byteOrder.Uint16(br.data[off+int64(i*2) : off+int64(i*2)+2]))
		}
		return values
	case SampleInt32:
		if tag.Count == 1 {
			return int32(br.byteOrder.Uint32(br.data[off : off+4]))
		}
		values := make([]int32, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			values[i] = int32(br.byteOrder.Uint32(br.data[off+int64(i*4) : off+int64(i*4)+4]))
		}
		return values
	case SampleFloat32:
		if tag.Count == 1 {
			return math.Float32frombits(br.byteOrder.Uint32(br.data[off : off+4]))
		}
		values := make([]float32, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			values[i] = math.Float32frombits(br.byteOrder.Uint32(br.data[off+int64(i*4) : off+int64(i*4)+4]))
		}
		return values
	case SampleFloat64:
		if tag.Count == 1 {
			return math.Float64frombits(br.byteOrder.Uint64(br.data[off : off+8]))
		}
		values := make([]float64, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			values[i] = math.Float64frombits(br.byteOrder.Uint64(br.data[off+int64(i*8) : off+int64(i*8)+8]))
		}
		return values
	case SampleRational:
		if tag.Count == 1 {
			return [2]uint32{br.byteOrder.Uint32(br.data[off : off+4]), br.byteOrder.Uint32(br.data[off+4 : off+8])}
		}
		values := make([][2]uint32, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			o := off + int64(i*8)
			values[i] = [2]uint32{br.byteOrder.Uint32(br.data[o : o+4]), br.byteOrder.Uint32(br.data[o+4 : o+8])}
		}
		return values
	case SampleSRational:
		if tag.Count == 1 {
			return [2]int32{int32(br.byteOrder.Uint32(br.data[off : off+4])), int32(br.byteOrder.Uint32(br.data[off+4 : off+8]))}
		}
		values := make([][2]int32, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			o := off + int64(i*8)
			values[i] = [2]int32{int32(br.byteOrder.Uint32(br.data[o : o+4])), int32(br.byteOrder.Uint32(br.data[o+4 : o+8]))}
		}
		return values
	case SampleASCII:
		buf := make([]byte, tag.Count)
		copy(buf, br.data[off:off+int64(tag.Count)])
		if len(buf) > 0 && buf[len(buf)-1] == 0 {
			buf = buf[:len(buf)-1]
		}
		return string(buf)
	default:
		return nil
	}
}

// readInlineValue decodes a value small enough to be packed directly into
// the tag entry's 4-byte Offset field rather than stored elsewhere.
func (c *container) readInlineValue(tag *tagEntry) interface{} {
	switch tag.Type {
	case SampleUint8:
		if tag.Count == 1 {
			return uint8(tag.Offset)
		}
		return []uint8{uint8(tag.Offset)}
	case SampleUint16:
		if tag.Count == 1 {
			return uint16(tag.Offset)
		}
		return []uint16{uint16(tag.Offset)}
	case SampleUint32:
		if tag.Count == 1 {
			return tag.Offset
		}
		return []uint32{tag.Offset}
	case SampleInt16:
		if tag.Count == 1 {
			return int16(tag.Offset)
		}
		return []int16{int16(tag.Offset)}
	case SampleInt32:
		if tag.Count == 1 {
			return int32(tag.Offset)
		}
		return []int32{int32(tag.Offset)}
	default:
		return tag.Offset
	}
}

// readValueAtOffset decodes a value by seeking the live stream to tag.Offset,
// used when loadTagValue resolves a tag the buffered metadata read skipped.
func (c *container) readValueAtOffset(tag *tagEntry) interface{} {
	switch tag.Type {
	case SampleUint8:
		values := make([]uint8, tag.Count)
		binary.Read(c.r, c.byteOrder, values)
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleUint16:
		values := make([]uint16, tag.Count)
		binary.Read(c.r, c.byteOrder, values)
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleUint32:
		values := make([]uint32, tag.Count)
		binary.Read(c.r, c.byteOrder, values)
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleInt16:
		values := make([]int16, tag.Count)
		binary.Read(c.r, c.byteOrder, values)
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleInt32:
		values := make([]int32, tag.Count)
		binary.Read(c.r, c.byteOrder, values)
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleFloat32:
		values := make([]float32, tag.Count)
		binary.Read(c.r, c.byteOrder, values)
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleFloat64:
		values := make([]float64, tag.Count)
		binary.Read(c.r, c.byteOrder, values)
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleRational:
		values := make([][2]uint32, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			binary.Read(c.r, c.byteOrder, &values[i][0])
			binary.Read(c.r, c.byteOrder, &values[i][1])
		}
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleSRational:
		values := make([][2]int32, tag.Count)
		for i := uint32(0); i < tag.Count; i++ {
			binary.Read(c.r, c.byteOrder, &values[i][0])
			binary.Read(c.r, c.byteOrder, &values[i][1])
		}
		if tag.Count == 1 {
			return values[0]
		}
		return values
	case SampleASCII:
		buf := make([]byte, tag.Count)
		binary.Read(c.r, c.byteOrder, buf)
		if len(buf) > 0 && buf[len(buf)-1] == 0 {
			buf = buf[:len(buf)-1]
		}
		return string(buf)
	default:
		return nil
	}
}

// loadTagValue resolves a tag's value on demand, for tags the buffered
// metadata-only read deferred (block-offset arrays, or any value outside
// its 16KB window). A no-op if already resolved.
func (c *container) loadTagValue(dir *directory, tagID uint16) error {
	tag, ok := dir.Tags[tagID]
	if !ok {
		return fmt.Errorf("tag %d not found", tagID)
	}
	if tag.Value != nil {
		return nil
	}

	valueSize := tag.Type.typeSize() * tag.Count
	if valueSize <= 4 {
		tag.Value = c.readInlineValue(tag)
		tag.IsOffset = false
		return nil
	}

	oldPos, _ := c.r.Seek(0, io.SeekCurrent)
	if _, err := c.r.Seek(int64(tag.Offset), io.SeekStart); err != nil {
		return fmt.Errorf("seek to tag value: %w", err)
	}
	tag.Value = c.readValueAtOffset(tag)
	c.r.Seek(oldPos, io.SeekStart)
	return nil
}

func (c *container) directoryAt(index int) *directory {
	if index < 0 || index >= len(c.dirs) {
		return nil
	}
	return c.dirs[index]
}

func (c *container) directoryCount() int { return len(c.dirs) }

// GeoTIFF tag IDs, read out of a directory's tag table once it has been
// parsed by container.readDirectory.
const (
	TagModelPixelScale     = 33550
	TagModelTiepoint       = 33922
	TagModelTransformation = 34264
	TagGeoKeyDirectory     = 34735
	TagGeoDoubleParams     = 34736
	TagGeoAsciiParams      = 34737
)

// GeoKey IDs, trimmed to the ones either parsed here (ProjectedCSTypeGeoKey,
// GeographicTypeGeoKey) or written back out by format.GeoTIFF's encoder
// (GTModelTypeGeoKey, GTRasterTypeGeoKey and their values). GeoTIFF defines
// several dozen more (citation strings, datum/ellipsoid overrides, per-
// projection parameters); this reader only ever needs to recover a CRS, not
// reconstruct an arbitrary projected coordinate system, so the rest are
// never decoded.
const (
	GTModelTypeGeoKey     = 1024
	GTModelTypeGeographic = 1
	GTModelTypeProjected  = 2

	GTRasterTypeGeoKey      = 1025
	GTRasterTypePixelIsArea = 1

	GeographicTypeGeoKey = 2048
	ProjectedCSTypeGeoKey = 3072
)

// rasterMeta is the georeferencing and pixel-layout metadata of one
// directory, resolved by newGeoLevel from its tags.
type rasterMeta struct {
	PixelScale                [3]float64
	TiePoints                 []TiePoint
	Transformation            [16]float64
	GeoKeys                   map[uint16]interface{}
	GeoDoubleParams           []float64
	GeoAsciiParams            string
	CRS                       string
	Width                     int
	Height                    int
	BandCount                 int
	SampleType                SampleType
	PhotometricInterpretation uint16 // tag 262: 0=WhiteIsZero, 1=BlackIsZero, 2=RGB, 3=Palette
}

// TiePoint is one ModelTiepoint entry: a pixel coordinate and the
// geographic coordinate it maps to.
type TiePoint struct {
	PixelX, PixelY, PixelZ float64
	GeoX, GeoY, GeoZ       float64
}

// geoLevel wraps one directory with the georeferencing metadata derived
// from it, and knows how to map its own pixel coordinates to geographic
// ones. Handle keeps one geoLevel per resolution level (main image plus
// overviews).
type geoLevel struct {
	c    *container
	dir  *directory
	meta *rasterMeta
}

// newGeoLevel parses directory index from c into a geoLevel.
func newGeoLevel(c *container, index int) (*geoLevel, error) {
	dir := c.directoryAt(index)
	if dir == nil {
		return nil, fmt.Errorf("directory %d not found", index)
	}
	gl := &geoLevel{c: c, dir: dir, meta: &rasterMeta{GeoKeys: make(map[uint16]interface{})}}
	if err := gl.readMetadata(); err != nil {
		return nil, err
	}
	return gl, nil
}

func (gl *geoLevel) readMetadata() error {
	dir := gl.dir

	for id, tag := range dir.Tags {
		if tag.Value == nil && tag.IsOffset && !isLargeArrayTag(id) {
			if err := gl.c.loadTagValue(dir, id); err != nil {
				return fmt.Errorf("load tag %d: %w", id, err)
			}
		}
	}

	if tag := dir.Tags[256]; tag != nil { // ImageWidth
		gl.meta.Width = tagInt(tag)
	}
	if tag := dir.Tags[257]; tag != nil { // ImageLength
		gl.meta.Height = tagInt(tag)
	}

	gl.meta.BandCount = 1
	if tag := dir.Tags[277]; tag != nil { // SamplesPerPixel
		gl.meta.BandCount = tagInt(tag)
	}

	gl.meta.SampleType = gl.determineSampleType()

	gl.meta.PhotometricInterpretation = 2 // default RGB
	if tag := dir.Tags[262]; tag != nil {
		gl.meta.PhotometricInterpretation = uint16(tagInt(tag))
	}

	if tag := dir.Tags[TagModelPixelScale]; tag != nil {
		if values, ok := tag.Value.([]float64); ok && len(values) >= 3 {
			copy(gl.meta.PixelScale[:], values[:3])
		} else if values, ok := tag.Value.([]float32); ok && len(values) >= 3 {
			for i := 0; i < 3; i++ {
				gl.meta.PixelScale[i] = float64(values[i])
			}
		}
	}

	if tag := dir.Tags[TagModelTiepoint]; tag != nil {
		if values, ok := tag.Value.([]float64); ok {
			gl.meta.TiePoints = parseTiePoints(values)
		} else if values, ok := tag.Value.([]float32); ok {
			f64 := make([]float64, len(values))
			for i, v := range values {
				f64[i] = float64(v)
			}
			gl.meta.TiePoints = parseTiePoints(f64)
		}
	}

	if tag := dir.Tags[TagModelTransformation]; tag != nil {
		if values, ok := tag.Value.([]float64); ok && len(values) >= 16 {
			copy(gl.meta.Transformation[:], values[:16])
		} else if values, ok := tag.Value.([]float32); ok && len(values) >= 16 {
			for i := 0; i < 16; i++ {
				gl.meta.Transformation[i] = float64(values[i])
			}
		}
	}

	if err := gl.readGeoKeys(); err != nil {
		return fmt.Errorf("read GeoKeys: %w", err)
	}
	gl.meta.CRS = gl.determineCRS()
	return nil
}

// tagInt coerces a tag value holding any of the integer encodings a base
// TIFF tag might use (some encoders emit SHORT where LONG is expected) into
// an int, defaulting to 0.
func tagInt(tag *tagEntry) int {
	switch v := tag.Value.(type) {
	case uint32:
		return int(v)
	case []uint32:
		if len(v) > 0 {
			return int(v[0])
		}
	case uint16:
		return int(v)
	case []uint16:
		if len(v) > 0 {
			return int(v[0])
		}
	}
	return 0
}

func (gl *geoLevel) determineSampleType() SampleType {
	bitsPerSample := 8
	if tag := gl.dir.Tags[258]; tag != nil { // BitsPerSample
		if v := tagInt(tag); v != 0 {
			bitsPerSample = v
		}
	}
	sampleFormat := 1 // 1 = unsigned integer
	if tag := gl.dir.Tags[339]; tag != nil { // SampleFormat
		if v := tagInt(tag); v != 0 {
			sampleFormat = v
		}
	}

	switch {
	case bitsPerSample == 8 && sampleFormat == 1:
		return SampleUint8
	case bitsPerSample == 8 && sampleFormat == 2:
		return SampleInt8
	case bitsPerSample == 16 && sampleFormat == 1:
		return SampleUint16
	case bitsPerSample == 16 && sampleFormat == 2:
		return SampleInt16
	case bitsPerSample == 32 && sampleFormat == 1:
		return SampleUint32
	case bitsPerSample == 32 && sampleFormat == 2:
		return SampleInt32
	case bitsPerSample == 32 && sampleFormat == 3:
		return SampleFloat32
	case bitsPerSample == 64 && sampleFormat == 3:
		return SampleFloat64
	default:
		return SampleUint8
	}
}

func parseTiePoints(values []float64) []TiePoint {
	if len(values) < 6 {
		return nil
	}
	points := make([]TiePoint, 0, len(values)/6)
	for i := 0; i+5 < len(values); i += 6 {
		points = append(points, TiePoint{
			PixelX: values[i], PixelY: values[i+1], PixelZ: values[i+2],
			GeoX: values[i+3], GeoY: values[i+4], GeoZ: values[i+5],
		})
	}
	return points
}

func (gl *geoLevel) readGeoKeys() error {
	dirKeyTag := gl.dir.Tags[TagGeoKeyDirectory]
	if dirKeyTag == nil {
		return nil
	}

	var header []uint16
	if values, ok := dirKeyTag.Value.([]uint16); ok {
		header = values
	} else if val, ok := dirKeyTag.Value.(uint16); ok {
		header = []uint16{val}
	} else {
		return fmt.Errorf("invalid GeoKeyDirectory encoding")
	}
	if len(header) < 4 {
		return fmt.Errorf("GeoKeyDirectory too short")
	}
	numKeys := int(header[3])

	var doubleParams []float64
	if tag := gl.dir.Tags[TagGeoDoubleParams]; tag != nil {
		if tag.Value == nil && tag.IsOffset {
			gl.c.loadTagValue(gl.dir, TagGeoDoubleParams)
		}
		if values, ok := tag.Value.([]float64); ok {
			doubleParams = values
		} else if values, ok := tag.Value.([]float32); ok {
			doubleParams = make([]float64, len(values))
			for i, v := range values {
				doubleParams[i] = float64(v)
			}
		}
	}
	gl.meta.GeoDoubleParams = doubleParams

	if tag := gl.dir.Tags[TagGeoAsciiParams]; tag != nil {
		if tag.Value == nil && tag.IsOffset {
			gl.c.loadTagValue(gl.dir, TagGeoAsciiParams)
		}
		if str, ok := tag.Value.(string); ok {
			gl.meta.GeoAsciiParams = str
		}
	}

	for i := 4; i < len(header) && (i-4)/4 < numKeys; i += 4 {
		if i+3 >= len(header) {
			break
		}
		keyID := header[i]
		location := header[i+1]
		count := header[i+2]
		valueOrOffset := header[i+3]

		var keyValue interface{}
		switch location {
		case 0:
			keyValue = valueOrOffset
		case TagGeoDoubleParams:
			if int(valueOrOffset) < len(doubleParams) {
				if count == 1 {
					keyValue = doubleParams[valueOrOffset]
				} else if end := int(valueOrOffset) + int(count); end <= len(doubleParams) {
					keyValue = doubleParams[valueOrOffset:end]
				}
			}
		case TagGeoAsciiParams:
			ascii := gl.meta.GeoAsciiParams
			if int(valueOrOffset) < len(ascii) {
				end := int(valueOrOffset) + int(count) - 1 // exclude NUL terminator
				if end > len(ascii) {
					end = len(ascii)
				}
				keyValue = ascii[valueOrOffset:end]
			}
		}
		if keyValue != nil {
			gl.meta.GeoKeys[keyID] = keyValue
		}
	}
	return nil
}

func (gl *geoLevel) determineCRS() string {
	if v, ok := gl.meta.GeoKeys[ProjectedCSTypeGeoKey]; ok {
		if code, ok := v.(uint16); ok && code != 0 {
			return fmt.Sprintf("EPSG:%d", code)
		}
	}
	if v, ok := gl.meta.GeoKeys[GeographicTypeGeoKey]; ok {
		if code, ok := v.(uint16); ok && code != 0 {
			return fmt.Sprintf("EPSG:%d", code)
		}
	}
	return ""
}

// pixelToGeo maps a pixel coordinate of this level to a geographic point,
// preferring the affine ModelTransformation matrix when present and falling
// back to the tiepoint+pixel-scale form otherwise.
func (gl *geoLevel) pixelToGeo(pixelX, pixelY float64) (float64, float64) {
	if gl.hasTransformation() {
		return gl.transformPixel(pixelX, pixelY)
	}
	if len(gl.meta.TiePoints) > 0 && gl.meta.PixelScale[0] != 0 {
		tp := gl.meta.TiePoints[0]
		geoX := tp.GeoX + (pixelX-tp.PixelX)*gl.meta.PixelScale[0]
		geoY := tp.GeoY - (pixelY-tp.PixelY)*gl.meta.PixelScale[1] // Y axis is inverted
		return geoX, geoY
	}
	return 0, 0
}

func (gl *geoLevel) hasTransformation() bool {
	for _, v := range gl.meta.Transformation {
		if v != 0 {
			return true
		}
	}
	return false
}

func (gl *geoLevel) transformPixel(pixelX, pixelY float64) (float64, float64) {
	t := gl.meta.Transformation
	geoX := t[0]*pixelX + t[1]*pixelY + t[3]
	geoY := t[4]*pixelX + t[5]*pixelY + t[7]
	return geoX, geoY
}

// Bounds returns this level's geographic bounding box, computed from its
// four pixel corners so a rotated or sheared ModelTransformation is still
// handled correctly.
func (gl *geoLevel) Bounds() orb.Bound {
	if gl.meta.Width == 0 || gl.meta.Height == 0 {
		return orb.Bound{}
	}
	w, h := float64(gl.meta.Width), float64(gl.meta.Height)
	x0, y0 := gl.pixelToGeo(0, 0)
	x1, y1 := gl.pixelToGeo(w, 0)
	x2, y2 := gl.pixelToGeo(0, h)
	x3, y3 := gl.pixelToGeo(w, h)

	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))
	return orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
}
