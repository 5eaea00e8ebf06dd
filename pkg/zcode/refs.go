package zcode

import (
	"fmt"

	"github.com/chazu/grotto/pkg/zir"
)

// RefKind tags what an UnresolvedReference points at.
type RefKind uint8

const (
	// RefLabel is the absolute address of a code label.
	RefLabel RefKind = iota
	// RefJump is a signed word offset to a code label, relative to the
	// address just past the operand (the jump instruction's encoding).
	RefJump
	// RefFunction is a routine address, packed when Packed is set.
	RefFunction
	// RefString is a string address, packed when Packed is set.
	RefString
	// RefDictWord is the absolute address of a dictionary entry.
	RefDictWord
	// RefObject is a backend-assigned object number.
	RefObject
	// RefPropTable is the absolute address of an object's property table.
	RefPropTable
)

func (k RefKind) String() string {
	switch k {
	case RefLabel:
		return "label"
	case RefJump:
		return "jump"
	case RefFunction:
		return "function"
	case RefString:
		return "string"
	case RefDictWord:
		return "dict-word"
	case RefObject:
		return "object"
	case RefPropTable:
		return "prop-table"
	default:
		return fmt.Sprintf("RefKind(%d)", uint8(k))
	}
}

// UnresolvedReference is a recorded patch request: Width bytes at Location
// within Space hold a placeholder that must be overwritten with the target's
// final value before the image is produced. The location is captured at the
// exact moment the placeholder is written, never reconstructed later.
type UnresolvedReference struct {
	Kind     RefKind
	Space    Space
	Location int
	Width    int // 1 or 2
	Packed   bool

	Label    zir.LabelID
	Function zir.FuncID
	String   zir.StringID
	Object   zir.ObjectID
	Word     string

	// Site names the function or object that created the reference, for
	// diagnostics only.
	Site string
}

func (r *UnresolvedReference) targetName() string {
	switch r.Kind {
	case RefLabel, RefJump:
		return fmt.Sprintf("label %d", r.Label)
	case RefFunction:
		return fmt.Sprintf("function %d", r.Function)
	case RefString:
		return fmt.Sprintf("string %d", r.String)
	case RefDictWord:
		return fmt.Sprintf("word %q", r.Word)
	case RefObject:
		return fmt.Sprintf("object %d", r.Object)
	case RefPropTable:
		return fmt.Sprintf("object %d properties", r.Object)
	default:
		return "unknown"
	}
}

// placeholderByte fills bytes that a later patch must overwrite. The value
// is distinctive so that an unpatched placeholder is recognizable in hex
// dumps, but correctness never depends on it: every placeholder has a
// matching reference and finalization fails if one is left over.
const placeholderByte = 0xFF

const placeholderWord = uint16(placeholderByte)<<8 | uint16(placeholderByte)

// claimSet is the single registry of byte ranges claimed for patching. Both
// the generic resolver and the branch patcher register here, so overlapping
// patch targets are caught when recorded rather than silently double-written.
type claimSet struct {
	claimed [numSpaces]map[int]bool
}

func (c *claimSet) claim(s Space, off, width int) error {
	if c.claimed[s] == nil {
		c.claimed[s] = make(map[int]bool)
	}
	for i := 0; i < width; i++ {
		if c.claimed[s][off+i] {
			return &PatchOverlapError{Space: s, Offset: off, Width: width}
		}
	}
	for i := 0; i < width; i++ {
		c.claimed[s][off+i] = true
	}
	return nil
}

// symbols collects every id-to-address mapping produced during phase 1.
// All offsets are space-relative; bases are added during resolution.
type symbols struct {
	labels     map[zir.LabelID]int
	funcs      map[zir.FuncID]int
	objects    map[zir.ObjectID]uint16
	propTables map[zir.ObjectID]int
}

func newSymbols() *symbols {
	return &symbols{
		labels:     make(map[zir.LabelID]int),
		funcs:      make(map[zir.FuncID]int),
		objects:    make(map[zir.ObjectID]uint16),
		propTables: make(map[zir.ObjectID]int),
	}
}

func (sy *symbols) bindLabel(id zir.LabelID, off int, fn string) error {
	if _, dup := sy.labels[id]; dup {
		return &DuplicateLabelError{Label: id, Func: fn}
	}
	sy.labels[id] = off
	return nil
}

// Resolver is the two-phase forward-reference system. Phase 1: emitters
// record references (and branch patches) as they write placeholders.
// Phase 2: once Layout has fixed every base address, ResolveAll computes
// final values and patches them in place.
type Resolver struct {
	refs     []UnresolvedReference
	branches []DeferredBranchPatch
	claims   claimSet
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver { return &Resolver{} }

// Add records a reference. The claimed range is registered immediately so a
// colliding patch from any subsystem fails fast.
func (r *Resolver) Add(ref UnresolvedReference) error {
	if ref.Width != 1 && ref.Width != 2 {
		return fmt.Errorf("zcode: reference width %d (want 1 or 2)", ref.Width)
	}
	if err := r.claims.claim(ref.Space, ref.Location, ref.Width); err != nil {
		return err
	}
	r.refs = append(r.refs, ref)
	return nil
}

// AddBranch records a deferred branch patch against the same claim registry.
func (r *Resolver) AddBranch(p DeferredBranchPatch) error {
	if err := r.claims.claim(SpaceCode, p.FieldOffset, 2); err != nil {
		return err
	}
	r.branches = append(r.branches, p)
	return nil
}

// Pending is the number of references not yet resolved. After a successful
// ResolveAll it is zero.
func (r *Resolver) Pending() int { return len(r.refs) + len(r.branches) }

// ResolveAll patches every recorded reference and branch. It must run after
// Layout. On success no reference remains pending; any failure aborts the
// build with the offending reference identified.
func (r *Resolver) ResolveAll(a *Assembler, sy *symbols, strs *StringTable, dict *Dictionary) error {
	for i := range r.refs {
		if err := r.resolveOne(a, sy, strs, dict, &r.refs[i]); err != nil {
			return err
		}
	}
	r.refs = r.refs[:0]
	for i := range r.branches {
		if err := r.branches[i].apply(a, sy); err != nil {
			return err
		}
	}
	r.branches = r.branches[:0]
	return nil
}

func (r *Resolver) resolveOne(a *Assembler, sy *symbols, strs *StringTable, dict *Dictionary, ref *UnresolvedReference) error {
	var value int
	switch ref.Kind {
	case RefLabel:
		off, ok := sy.labels[ref.Label]
		if !ok {
			return &UnboundLabelError{Label: ref.Label}
		}
		value = a.Base(SpaceCode) + off

	case RefJump:
		off, ok := sy.labels[ref.Label]
		if !ok {
			return &UnboundLabelError{Label: ref.Label}
		}
		// Target = address-after-operand + offset - 2, with both ends in
		// the code space, so the base cancels out.
		value = off - ref.Location
		if value < -32768 || value > 32767 {
			return &JumpRangeError{Location: ref.Location, Target: ref.Label, Offset: value}
		}
		value &= 0xFFFF

	case RefFunction:
		off, ok := sy.funcs[ref.Function]
		if !ok {
			return &UnresolvedRefError{Ref: *ref}
		}
		abs := a.Base(SpaceCode) + off
		v, err := r.pack(a, abs, ref)
		if err != nil {
			return err
		}
		value = v

	case RefString:
		off, ok := strs.Offset(ref.String)
		if !ok {
			return &UnresolvedRefError{Ref: *ref}
		}
		abs := a.Base(SpaceStrings) + off
		v, err := r.pack(a, abs, ref)
		if err != nil {
			return err
		}
		value = v

	case RefDictWord:
		off, ok := dict.Lookup(ref.Word)
		if !ok {
			return &MissingWordError{Word: ref.Word, Site: ref.Site}
		}
		value = a.Base(SpaceDictionary) + off

	case RefObject:
		num, ok := sy.objects[ref.Object]
		if !ok {
			return &UnresolvedRefError{Ref: *ref}
		}
		value = int(num)

	case RefPropTable:
		off, ok := sy.propTables[ref.Object]
		if !ok {
			return &UnresolvedRefError{Ref: *ref}
		}
		value = a.Base(SpaceObjects) + off

	default:
		return fmt.Errorf("zcode: unknown reference kind %d", ref.Kind)
	}

	switch ref.Width {
	case 1:
		if value < 0 || value > 0xFF {
			return fmt.Errorf("zcode: %s reference value 0x%x does not fit one byte at %s+0x%04x",
				ref.Kind, value, ref.Space, ref.Location)
		}
		return a.PatchByte(ref.Space, ref.Location, byte(value))
	default:
		if value < 0 || value > 0xFFFF {
			return fmt.Errorf("zcode: %s reference value 0x%x does not fit one word at %s+0x%04x",
				ref.Kind, value, ref.Space, ref.Location)
		}
		return a.PatchWord(ref.Space, ref.Location, uint16(value))
	}
}

// pack scales an absolute address when the reference wants a packed one,
// checking alignment first: an unaligned packed address cannot round-trip
// and would silently point elsewhere at runtime.
func (r *Resolver) pack(a *Assembler, abs int, ref *UnresolvedReference) (int, error) {
	if !ref.Packed {
		return abs, nil
	}
	scale := a.version.PackedScale()
	if abs%scale != 0 {
		return 0, fmt.Errorf("zcode: %s address 0x%04x not aligned to packed scale %d", ref.Kind, abs, scale)
	}
	return abs / scale, nil
}
