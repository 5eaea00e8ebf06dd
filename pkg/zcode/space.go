package zcode

import "fmt"

// Space identifies one of the independently growing buffers that make up the
// story file. Content is appended to spaces during generation; final base
// addresses are assigned only once every space has its final length.
type Space uint8

const (
	SpaceHeader Space = iota
	SpaceGlobals
	SpaceObjects
	SpaceDictionary
	SpaceStrings
	SpaceCode

	numSpaces
)

func (s Space) String() string {
	switch s {
	case SpaceHeader:
		return "header"
	case SpaceGlobals:
		return "globals"
	case SpaceObjects:
		return "objects"
	case SpaceDictionary:
		return "dictionary"
	case SpaceStrings:
		return "strings"
	case SpaceCode:
		return "code"
	default:
		return fmt.Sprintf("Space(%d)", uint8(s))
	}
}

// headerSize is the fixed Z-machine header length.
const headerSize = 64

// globalSlots is the number of global variables; each is one word.
const globalSlots = 240

// Assembler owns the six memory spaces and, after Layout, their base
// addresses in the final image. Reading a base before Layout is an internal
// defect and panics.
type Assembler struct {
	version Version
	bufs    [numSpaces][]byte
	bases   [numSpaces]int
	sized   bool
}

// NewAssembler returns an Assembler with the fixed-size header and global
// spaces pre-allocated and zeroed.
func NewAssembler(v Version) *Assembler {
	a := &Assembler{version: v}
	a.bufs[SpaceHeader] = make([]byte, headerSize)
	a.bufs[SpaceGlobals] = make([]byte, globalSlots*2)
	return a
}

// Len is the current length of a space.
func (a *Assembler) Len(s Space) int { return len(a.bufs[s]) }

// Bytes exposes a space's buffer. The slice aliases internal state; callers
// must not grow it.
func (a *Assembler) Bytes(s Space) []byte { return a.bufs[s] }

// Allocate appends n zero bytes to a space and returns the offset of the
// first one.
func (a *Assembler) Allocate(s Space, n int) int {
	off := len(a.bufs[s])
	a.bufs[s] = append(a.bufs[s], make([]byte, n)...)
	return off
}

// AppendByte appends one byte and returns its offset within the space.
func (a *Assembler) AppendByte(s Space, b byte) int {
	off := len(a.bufs[s])
	a.bufs[s] = append(a.bufs[s], b)
	return off
}

// AppendWord appends one big-endian word and returns its offset.
func (a *Assembler) AppendWord(s Space, w uint16) int {
	off := len(a.bufs[s])
	a.bufs[s] = append(a.bufs[s], byte(w>>8), byte(w))
	return off
}

// Append appends raw bytes and returns the offset of the first one.
func (a *Assembler) Append(s Space, data []byte) int {
	off := len(a.bufs[s])
	a.bufs[s] = append(a.bufs[s], data...)
	return off
}

// PatchByte overwrites one byte at a known offset.
func (a *Assembler) PatchByte(s Space, off int, b byte) error {
	if off < 0 || off >= len(a.bufs[s]) {
		return fmt.Errorf("zcode: patch byte at %s+0x%04x out of range (len 0x%04x)", s, off, len(a.bufs[s]))
	}
	a.bufs[s][off] = b
	return nil
}

// PatchWord overwrites one big-endian word at a known offset.
func (a *Assembler) PatchWord(s Space, off int, w uint16) error {
	if off < 0 || off+1 >= len(a.bufs[s]) {
		return fmt.Errorf("zcode: patch word at %s+0x%04x out of range (len 0x%04x)", s, off, len(a.bufs[s]))
	}
	a.bufs[s][off] = byte(w >> 8)
	a.bufs[s][off+1] = byte(w)
	return nil
}

// AlignTo pads a space with zero bytes until its length is a multiple of n.
func (a *Assembler) AlignTo(s Space, n int) {
	for len(a.bufs[s])%n != 0 {
		a.bufs[s] = append(a.bufs[s], 0)
	}
}

// Layout fixes the base address of every space. Order is deterministic:
// header, globals, objects, dictionary, strings, code. The strings and code
// spaces are aligned to the version's packed-address scale so that packed
// addresses inside them stay exact.
func (a *Assembler) Layout() {
	scale := a.version.PackedScale()
	addr := 0
	for s := Space(0); s < numSpaces; s++ {
		if s == SpaceStrings || s == SpaceCode {
			addr = align(addr, scale)
		}
		a.bases[s] = addr
		addr += len(a.bufs[s])
	}
	a.sized = true
}

// Sized reports whether Layout has run.
func (a *Assembler) Sized() bool { return a.sized }

// Base returns a space's base address in the final image. Calling Base
// before Layout is a sequencing bug in the generator, not a recoverable
// condition, so it panics.
func (a *Assembler) Base(s Space) int {
	if !a.sized {
		panic(fmt.Sprintf("zcode: base of %s space read before layout", s))
	}
	return a.bases[s]
}

// Assemble concatenates all spaces, inserting alignment padding between
// them, and pads the tail to the version's file-length divisor.
func (a *Assembler) Assemble() []byte {
	if !a.sized {
		panic("zcode: assemble before layout")
	}
	last := numSpaces - 1
	total := a.bases[last] + len(a.bufs[last])
	total = align(total, a.version.LengthDivisor())
	img := make([]byte, total)
	for s := Space(0); s < numSpaces; s++ {
		copy(img[a.bases[s]:], a.bufs[s])
	}
	return img
}

func align(addr, n int) int {
	if r := addr % n; r != 0 {
		return addr + n - r
	}
	return addr
}
