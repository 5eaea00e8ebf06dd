package zcode

import "fmt"

// Header field offsets. The header is dynamic memory at address 0; every
// multi-byte field is big-endian.
const (
	hdrVersion     = 0x00
	hdrRelease     = 0x02
	hdrHighMemory  = 0x04
	hdrInitialPC   = 0x06
	hdrDictionary  = 0x08
	hdrObjectTable = 0x0A
	hdrGlobals     = 0x0C
	hdrStaticBase  = 0x0E
	hdrSerial      = 0x12 // 6 bytes
	hdrAbbrevs     = 0x18
	hdrFileLength  = 0x1A
	hdrChecksum    = 0x1C
	hdrStandardRev = 0x32
)

// writeHeader fills the header space once Layout has fixed every base.
// Static memory begins at the dictionary: everything below it (globals and
// the object table) stays writable at runtime. High memory begins at the
// strings space. The file-length and checksum fields cover the assembled
// image and are filled in by finishImage instead.
func (g *Generator) writeHeader() error {
	a := g.asm

	fields := []struct {
		name string
		off  int
		val  int
	}{
		{"high memory base", hdrHighMemory, a.Base(SpaceStrings)},
		{"initial PC", hdrInitialPC, a.Base(SpaceCode)},
		{"dictionary", hdrDictionary, a.Base(SpaceDictionary)},
		{"object table", hdrObjectTable, a.Base(SpaceObjects)},
		{"globals", hdrGlobals, a.Base(SpaceGlobals)},
		{"static memory base", hdrStaticBase, a.Base(SpaceDictionary)},
	}

	if err := a.PatchByte(SpaceHeader, hdrVersion, byte(g.version)); err != nil {
		return err
	}
	if err := a.PatchWord(SpaceHeader, hdrRelease, g.opts.Release); err != nil {
		return err
	}
	for _, f := range fields {
		if f.val > 0xFFFF {
			return fmt.Errorf("zcode: %s 0x%x does not fit the header field", f.name, f.val)
		}
		if err := a.PatchWord(SpaceHeader, f.off, uint16(f.val)); err != nil {
			return err
		}
	}
	for i := 0; i < 6; i++ {
		if err := a.PatchByte(SpaceHeader, hdrSerial+i, g.opts.Serial[i]); err != nil {
			return err
		}
	}
	// No abbreviations table. The string encoder never emits abbreviation
	// z-chars, so interpreters never dereference this field.
	if err := a.PatchWord(SpaceHeader, hdrAbbrevs, 0); err != nil {
		return err
	}
	return a.PatchWord(SpaceHeader, hdrStandardRev, 0x0101)
}

// finishImage writes the two header fields that depend on the assembled
// image: the scaled file length and the checksum over everything past the
// header. Both fields sit below 0x40 and are excluded from the sum.
func finishImage(img []byte, v Version) error {
	if len(img) < headerSize {
		return fmt.Errorf("zcode: image of %d bytes is shorter than the header", len(img))
	}
	if len(img) > v.MaxFileSize() {
		return fmt.Errorf("zcode: image of %d bytes exceeds the %s limit of %d", len(img), v, v.MaxFileSize())
	}

	length := len(img) / v.LengthDivisor()
	if length > 0xFFFF {
		return fmt.Errorf("zcode: scaled length 0x%x does not fit the header field", length)
	}
	img[hdrFileLength] = byte(length >> 8)
	img[hdrFileLength+1] = byte(length)

	var sum uint32
	for _, b := range img[headerSize:] {
		sum += uint32(b)
	}
	img[hdrChecksum] = byte(sum >> 8)
	img[hdrChecksum+1] = byte(sum)
	return nil
}

// Checksum recomputes the header checksum of a complete image, for
// verification tooling.
func Checksum(img []byte) uint16 {
	var sum uint32
	for _, b := range img[headerSize:] {
		sum += uint32(b)
	}
	return uint16(sum)
}
