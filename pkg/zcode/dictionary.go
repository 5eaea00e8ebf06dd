package zcode

import (
	"bytes"
	"fmt"
	"sort"
)

// Dictionary collects every vocabulary word the program references, encodes
// and sorts them, and assigns each entry's runtime address. The sort order
// (by encoded bytes) is required by the target machine's binary-search
// lookup; the resulting index also fixes the address embedded in object-name
// and exit properties, so the dictionary must be frozen before any of those
// references resolve.

// wordSeparators are the input-splitting characters listed in the
// dictionary header.
var wordSeparators = []byte{'.', ',', '"'}

// dictDataBytes is the per-entry payload after the encoded word (part of
// speech flags, left zero by this backend).
const dictDataBytes = 3

type dictEntry struct {
	word    string // normalized
	encoded []byte
}

// Dictionary is built in two stages: Add during collection, then Freeze
// once, after which Lookup returns stable space offsets.
type Dictionary struct {
	version Version
	words   map[string]bool
	entries []dictEntry
	index   map[string]int // normalized word -> entry index
	frozen  bool
}

// NewDictionary returns an empty dictionary for the given version.
func NewDictionary(v Version) *Dictionary {
	return &Dictionary{version: v, words: make(map[string]bool)}
}

// Add records a vocabulary word. Adding after Freeze is a sequencing bug.
func (d *Dictionary) Add(word string) {
	if d.frozen {
		panic("zcode: dictionary add after freeze")
	}
	if word == "" {
		return
	}
	d.words[lower(word)] = true
}

// EntrySize is the byte width of one dictionary entry.
func (d *Dictionary) EntrySize() int { return d.version.DictWordBytes() + dictDataBytes }

// headerLen is the dictionary header: separator count, separator codes,
// entry length, entry count word.
func (d *Dictionary) headerLen() int { return 1 + len(wordSeparators) + 1 + 2 }

// Count is the number of entries. Valid after Freeze.
func (d *Dictionary) Count() int { return len(d.entries) }

// Freeze encodes and sorts all collected words and writes the dictionary
// space. Two words that truncate to the same encoding share one entry, as
// they are indistinguishable to the runtime tokenizer.
func (d *Dictionary) Freeze(a *Assembler) error {
	if d.frozen {
		panic("zcode: dictionary frozen twice")
	}
	d.frozen = true

	ordered := make([]string, 0, len(d.words))
	for w := range d.words {
		ordered = append(ordered, w)
	}
	sort.Strings(ordered)

	seen := make(map[string]bool)
	for _, w := range ordered {
		enc := encodeDictWord(w, d.version)
		if !seen[string(enc)] {
			seen[string(enc)] = true
			d.entries = append(d.entries, dictEntry{word: w, encoded: enc})
		}
	}
	sort.SliceStable(d.entries, func(i, j int) bool {
		return bytes.Compare(d.entries[i].encoded, d.entries[j].encoded) < 0
	})

	d.index = make(map[string]int, len(ordered))
	byEncoding := make(map[string]int, len(d.entries))
	for i, e := range d.entries {
		byEncoding[string(e.encoded)] = i
	}
	for _, w := range ordered {
		d.index[w] = byEncoding[string(encodeDictWord(w, d.version))]
	}

	if len(d.entries) > 0xFFFF {
		return fmt.Errorf("zcode: %d dictionary entries exceed the entry-count field", len(d.entries))
	}

	a.AppendByte(SpaceDictionary, byte(len(wordSeparators)))
	a.Append(SpaceDictionary, wordSeparators)
	a.AppendByte(SpaceDictionary, byte(d.EntrySize()))
	a.AppendWord(SpaceDictionary, uint16(len(d.entries)))
	for _, e := range d.entries {
		a.Append(SpaceDictionary, e.encoded)
		a.Allocate(SpaceDictionary, dictDataBytes)
	}
	return nil
}

// Lookup returns the dictionary-space offset of a word's entry. The final
// runtime address is the dictionary base plus this offset; callers embed it
// through a RefDictWord reference, never directly.
func (d *Dictionary) Lookup(word string) (int, bool) {
	if !d.frozen {
		panic("zcode: dictionary lookup before freeze")
	}
	i, ok := d.index[lower(word)]
	if !ok {
		return 0, false
	}
	return d.headerLen() + i*d.EntrySize(), true
}
