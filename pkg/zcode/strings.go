package zcode

// StringTable deduplicates literal text by content and lays the encoded
// strings out in the strings space. Two StringIDs with identical text share
// one encoding. Each string starts on a packed-address boundary so its
// packed address is exact.

import "github.com/chazu/grotto/pkg/zir"

type stringEntry struct {
	text string
	ids  []zir.StringID
}

// StringTable is built in two stages like the dictionary: Intern during
// collection, Freeze once, then Offset during resolution.
type StringTable struct {
	version Version
	entries []stringEntry // first-appearance order
	byText  map[string]int
	offsets map[zir.StringID]int
	frozen  bool
}

// NewStringTable returns an empty table.
func NewStringTable(v Version) *StringTable {
	return &StringTable{
		version: v,
		byText:  make(map[string]int),
		offsets: make(map[zir.StringID]int),
	}
}

// Intern records a string. Repeated ids are fine as long as the text agrees;
// ids carrying different text for the same id would mean a corrupt IR.
func (t *StringTable) Intern(id zir.StringID, text string) {
	if t.frozen {
		panic("zcode: string intern after freeze")
	}
	i, ok := t.byText[text]
	if !ok {
		i = len(t.entries)
		t.entries = append(t.entries, stringEntry{text: text})
		t.byText[text] = i
	}
	for _, existing := range t.entries[i].ids {
		if existing == id {
			return
		}
	}
	t.entries[i].ids = append(t.entries[i].ids, id)
}

// Freeze encodes every distinct string into the strings space, recording
// each id's space offset. Order is first-appearance order, which is stable
// for identical programs.
func (t *StringTable) Freeze(a *Assembler) {
	if t.frozen {
		panic("zcode: string table frozen twice")
	}
	t.frozen = true
	scale := t.version.PackedScale()
	for _, e := range t.entries {
		a.AlignTo(SpaceStrings, scale)
		off := a.Append(SpaceStrings, EncodeString(e.text))
		for _, id := range e.ids {
			t.offsets[id] = off
		}
	}
}

// Offset returns the strings-space offset for a string id.
func (t *StringTable) Offset(id zir.StringID) (int, bool) {
	if !t.frozen {
		panic("zcode: string offset before freeze")
	}
	off, ok := t.offsets[id]
	return off, ok
}

// Count is the number of distinct encoded strings.
func (t *StringTable) Count() int { return len(t.entries) }
