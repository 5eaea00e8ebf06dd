package zcode

import (
	"fmt"
	"sort"

	"github.com/chazu/grotto/pkg/zir"
)

// Object table layout: a property-defaults table (one word per property
// number), then fixed-size object entries in numbering order, then each
// object's property table, all inside the objects space. The tree is a
// linked list: an entry stores only its first child, and containment walks
// sibling pointers one at a time.

// Property numbers reserved by the backend for the world model it
// materializes. User properties must stay clear of these.
const (
	// PropSynonyms holds dictionary addresses of the object's vocabulary
	// words, one word each.
	PropSynonyms uint8 = 19
	// PropExitDirections holds dictionary addresses of a room's exit
	// directions, one word each.
	PropExitDirections uint8 = 20
	// PropExitKinds holds one byte per exit: 0 normal, 1 blocked.
	PropExitKinds uint8 = 21
	// PropExitData holds one word per exit: the destination object number
	// for a normal exit, the packed message address for a blocked one.
	PropExitData uint8 = 22
)

// reservedProperty reports whether a property number belongs to the backend.
func reservedProperty(num uint8) bool {
	return num == PropSynonyms || num == PropExitDirections ||
		num == PropExitKinds || num == PropExitData
}

// ---------------------------------------------------------------------------
// Object tree
// ---------------------------------------------------------------------------

// Tree models the object containment hierarchy as first-child/next-sibling
// links. Inserting an object under a parent always makes it the parent's
// new FIRST child; the previous first child becomes its sibling. Traversal
// therefore visits children in reverse insertion order.
type Tree struct {
	parent  map[zir.ObjectID]zir.ObjectID
	sibling map[zir.ObjectID]zir.ObjectID
	child   map[zir.ObjectID]zir.ObjectID
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{
		parent:  make(map[zir.ObjectID]zir.ObjectID),
		sibling: make(map[zir.ObjectID]zir.ObjectID),
		child:   make(map[zir.ObjectID]zir.ObjectID),
	}
}

// Insert makes obj the first child of parent, detaching it from any current
// parent first.
func (t *Tree) Insert(obj, parent zir.ObjectID) {
	t.Remove(obj)
	t.sibling[obj] = t.child[parent]
	t.child[parent] = obj
	t.parent[obj] = parent
}

// Remove detaches obj from its parent's child chain.
func (t *Tree) Remove(obj zir.ObjectID) {
	p := t.parent[obj]
	if p == 0 {
		return
	}
	if t.child[p] == obj {
		t.child[p] = t.sibling[obj]
	} else {
		for c := t.child[p]; c != 0; c = t.sibling[c] {
			if t.sibling[c] == obj {
				t.sibling[c] = t.sibling[obj]
				break
			}
		}
	}
	t.parent[obj] = 0
	t.sibling[obj] = 0
}

// Parent returns obj's parent, 0 for none.
func (t *Tree) Parent(obj zir.ObjectID) zir.ObjectID { return t.parent[obj] }

// FirstChild returns obj's first child, 0 for none.
func (t *Tree) FirstChild(obj zir.ObjectID) zir.ObjectID { return t.child[obj] }

// Sibling returns obj's next sibling, 0 for none.
func (t *Tree) Sibling(obj zir.ObjectID) zir.ObjectID { return t.sibling[obj] }

// WalkChildren calls fn for each direct child of obj, first child onward,
// stopping early if fn returns false. It walks the sibling chain directly
// rather than materializing a slice, matching the runtime's own traversal.
func (t *Tree) WalkChildren(obj zir.ObjectID, fn func(zir.ObjectID) bool) {
	for c := t.child[obj]; c != 0; c = t.sibling[c] {
		if !fn(c) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Property headers
// ---------------------------------------------------------------------------

// encodePropHeader encodes a property block header. The two target formats
// are incompatible:
//
//   - V3: one byte, (length-1)<<5 | number. Payloads 1-8, numbers 1-31.
//   - V4+: numbers 1-63. Payload 1: one byte, just the number. Payload 2:
//     one byte with bit 6 set. Payload 3-64: TWO bytes, bit 7 set on both;
//     the first carries the number, the second the length (0 means 64).
//
// Writing a one-byte header for a long V4 payload desynchronizes the whole
// remaining table at runtime, so lengths are validated here, not assumed.
func encodePropHeader(v Version, num uint8, length int) ([]byte, error) {
	if num == 0 || int(num) > v.MaxProperty() {
		return nil, fmt.Errorf("property number %d out of range 1-%d", num, v.MaxProperty())
	}
	if length < 1 || length > v.MaxPropertyLen() {
		return nil, fmt.Errorf("property payload %d bytes out of range 1-%d", length, v.MaxPropertyLen())
	}
	if v == V3 {
		return []byte{byte(length-1)<<5 | num}, nil
	}
	switch length {
	case 1:
		return []byte{num}, nil
	case 2:
		return []byte{0x40 | num}, nil
	default:
		return []byte{0x80 | num, 0x80 | byte(length&0x3F)}, nil
	}
}

// DecodeProperty reads the property block at data[off]. It returns the
// property number, its payload (aliasing data), and the offset of the next
// block. A zero first byte is the table terminator, reported as num 0.
// Whether a second header byte follows is decided by bit 7 of the FIRST
// byte, never by guessing from the payload.
func DecodeProperty(v Version, data []byte, off int) (num uint8, payload []byte, next int, err error) {
	if off >= len(data) {
		return 0, nil, off, fmt.Errorf("property table truncated at 0x%04x", off)
	}
	b := data[off]
	if b == 0 {
		return 0, nil, off + 1, nil
	}
	var size, headerLen int
	if v == V3 {
		num = b & 0x1F
		size = int(b>>5) + 1
		headerLen = 1
	} else if b&0x80 != 0 {
		if off+1 >= len(data) {
			return 0, nil, off, fmt.Errorf("property table truncated at 0x%04x", off)
		}
		num = b & 0x3F
		size = int(data[off+1] & 0x3F)
		if size == 0 {
			size = 64
		}
		headerLen = 2
	} else {
		num = b & 0x3F
		size = 1
		if b&0x40 != 0 {
			size = 2
		}
		headerLen = 1
	}
	start := off + headerLen
	if start+size > len(data) {
		return 0, nil, off, fmt.Errorf("property %d payload runs past table end", num)
	}
	return num, data[start : start+size], start + size, nil
}

// ---------------------------------------------------------------------------
// Table generation
// ---------------------------------------------------------------------------

// propBlock pairs a property number with a sized emitter so blocks can be
// ordered before any byte is written.
type propBlock struct {
	num  uint8
	size int
	emit func() error
}

// generateObjects assigns object numbers, builds the containment tree, and
// emits the defaults table, object entries, and property tables.
func (g *Generator) generateObjects(prog *zir.Program) error {
	v := g.version
	if len(prog.Objects) > v.MaxObjects() {
		return &ObjectLimitError{Count: len(prog.Objects), Max: v.MaxObjects()}
	}

	// Backend numbering is authoritative: 1..N in declaration order.
	for i, obj := range prog.Objects {
		if obj.ID == 0 {
			return fmt.Errorf("zcode: object %q has reserved id 0", obj.Name)
		}
		if _, dup := g.syms.objects[obj.ID]; dup {
			return fmt.Errorf("zcode: duplicate object id %d (%q)", obj.ID, obj.Name)
		}
		g.syms.objects[obj.ID] = uint16(i + 1)
	}

	for _, obj := range prog.Objects {
		if obj.Parent == 0 {
			continue
		}
		if _, ok := g.syms.objects[obj.Parent]; !ok {
			return fmt.Errorf("zcode: object %q declares unknown parent %d", obj.Name, obj.Parent)
		}
		g.tree.Insert(obj.ID, obj.Parent)
	}

	// Property defaults. Slot i holds the default for property i+1.
	for i := 0; i < v.MaxProperty(); i++ {
		g.asm.AppendWord(SpaceObjects, prog.PropertyDefaults[uint8(i+1)])
	}

	for _, obj := range prog.Objects {
		if err := g.emitObjectEntry(obj); err != nil {
			return err
		}
	}
	for _, obj := range prog.Objects {
		if err := g.emitPropertyTable(prog, obj); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) emitObjectEntry(obj *zir.Object) error {
	v := g.version
	attrs := make([]byte, v.AttrBytes())
	for _, bit := range obj.Attributes {
		if int(bit) >= v.AttrCount() {
			return fmt.Errorf("zcode: object %q attribute %d out of range 0-%d", obj.Name, bit, v.AttrCount()-1)
		}
		attrs[bit/8] |= 0x80 >> (bit % 8)
	}
	g.asm.Append(SpaceObjects, attrs)

	links := [3]zir.ObjectID{g.tree.Parent(obj.ID), g.tree.Sibling(obj.ID), g.tree.FirstChild(obj.ID)}
	for _, link := range links {
		num := uint16(0)
		if link != 0 {
			num = g.syms.objects[link]
		}
		if v == V3 {
			g.asm.AppendByte(SpaceObjects, byte(num))
		} else {
			g.asm.AppendWord(SpaceObjects, num)
		}
	}

	loc := g.asm.AppendWord(SpaceObjects, placeholderWord)
	return g.res.Add(UnresolvedReference{
		Kind:     RefPropTable,
		Space:    SpaceObjects,
		Location: loc,
		Width:    2,
		Object:   obj.ID,
		Site:     obj.Name,
	})
}

func (g *Generator) emitPropertyTable(prog *zir.Program, obj *zir.Object) error {
	v := g.version
	g.syms.propTables[obj.ID] = g.asm.Len(SpaceObjects)

	name := EncodeString(obj.ShortName)
	if len(name)/2 > 0xFF {
		return fmt.Errorf("zcode: object %q short name too long", obj.Name)
	}
	g.asm.AppendByte(SpaceObjects, byte(len(name)/2))
	g.asm.Append(SpaceObjects, name)

	blocks, err := g.propertyBlocks(prog, obj)
	if err != nil {
		return err
	}
	// Strictly descending property numbers; the runtime's early-exit scan
	// depends on it.
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].num > blocks[j].num })
	for i := 1; i < len(blocks); i++ {
		if blocks[i].num == blocks[i-1].num {
			return &PropertyError{Object: obj.Name, Property: blocks[i].num, Reason: "declared twice"}
		}
	}

	for _, b := range blocks {
		header, err := encodePropHeader(v, b.num, b.size)
		if err != nil {
			return &PropertyError{Object: obj.Name, Property: b.num, Len: b.size, Max: v.MaxPropertyLen(), Reason: err.Error()}
		}
		g.asm.Append(SpaceObjects, header)
		before := g.asm.Len(SpaceObjects)
		if err := b.emit(); err != nil {
			return err
		}
		if got := g.asm.Len(SpaceObjects) - before; got != b.size {
			panic(fmt.Sprintf("zcode: property %d of %q emitted %d bytes, header promised %d", b.num, obj.Name, got, b.size))
		}
	}
	g.asm.AppendByte(SpaceObjects, 0)
	return nil
}

// propertyBlocks assembles user payloads plus the backend-materialized
// synonym and exit properties.
func (g *Generator) propertyBlocks(prog *zir.Program, obj *zir.Object) ([]propBlock, error) {
	var blocks []propBlock
	for _, p := range obj.Properties {
		if reservedProperty(p.Num) {
			return nil, &PropertyError{Object: obj.Name, Property: p.Num, Reason: "number reserved by the backend"}
		}
		data := p.Data
		blocks = append(blocks, propBlock{
			num:  p.Num,
			size: len(data),
			emit: func() error { g.asm.Append(SpaceObjects, data); return nil },
		})
	}

	if len(obj.Names) > 0 {
		names := obj.Names
		blocks = append(blocks, propBlock{
			num:  PropSynonyms,
			size: 2 * len(names),
			emit: func() error {
				for _, w := range names {
					loc := g.asm.AppendWord(SpaceObjects, placeholderWord)
					err := g.res.Add(UnresolvedReference{
						Kind: RefDictWord, Space: SpaceObjects, Location: loc,
						Width: 2, Word: w, Site: obj.Name,
					})
					if err != nil {
						return err
					}
				}
				return nil
			},
		})
	}

	if len(obj.Exits) > 0 {
		exits := obj.Exits
		site := obj.Name
		blocks = append(blocks,
			propBlock{
				num:  PropExitDirections,
				size: 2 * len(exits),
				emit: func() error {
					for _, x := range exits {
						loc := g.asm.AppendWord(SpaceObjects, placeholderWord)
						err := g.res.Add(UnresolvedReference{
							Kind: RefDictWord, Space: SpaceObjects, Location: loc,
							Width: 2, Word: x.Direction, Site: site,
						})
						if err != nil {
							return err
						}
					}
					return nil
				},
			},
			propBlock{
				num:  PropExitKinds,
				size: len(exits),
				emit: func() error {
					for _, x := range exits {
						g.asm.AppendByte(SpaceObjects, byte(x.Kind))
					}
					return nil
				},
			},
			propBlock{
				num:  PropExitData,
				size: 2 * len(exits),
				emit: func() error {
					for _, x := range exits {
						switch x.Kind {
						case zir.ExitNormal:
							loc := g.asm.AppendWord(SpaceObjects, placeholderWord)
							err := g.res.Add(UnresolvedReference{
								Kind: RefObject, Space: SpaceObjects, Location: loc,
								Width: 2, Object: x.Target, Site: site,
							})
							if err != nil {
								return err
							}
						case zir.ExitBlocked:
							loc := g.asm.AppendWord(SpaceObjects, placeholderWord)
							err := g.res.Add(UnresolvedReference{
								Kind: RefString, Space: SpaceObjects, Location: loc,
								Width: 2, Packed: true, String: x.Message, Site: site,
							})
							if err != nil {
								return err
							}
						default:
							return fmt.Errorf("zcode: room %q exit %q has unknown kind %d", site, x.Direction, x.Kind)
						}
					}
					return nil
				},
			},
		)
	}
	return blocks, nil
}
