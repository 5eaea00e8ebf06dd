package zcode

import "github.com/chazu/grotto/pkg/zir"

// Conditional-branch fields have a circular size/offset dependency: a short
// (1-byte) field changes the addresses of everything after it, which changes
// the offsets the fields must hold. This backend breaks the cycle by always
// emitting the 2-byte field form, trading roughly a percent of code size for
// single-pass layout. A computed offset that still exceeds the 14-bit field
// is a fatal error, never a truncation.

// Signed range of the 14-bit branch offset.
const (
	branchMin = -8192
	branchMax = 8191
)

// DeferredBranchPatch is a patch request for one branch field. It is kept
// apart from UnresolvedReference because the value written is not an address
// but an offset encoded together with the branch polarity, and because the
// polarity must travel as its own field: inferring it from the placeholder's
// sign would conflate "no value yet" with "branch sense".
type DeferredBranchPatch struct {
	// InstructionStart is the code offset of the instruction's first byte,
	// for diagnostics.
	InstructionStart int
	// FieldOffset is the code offset of the 2-byte branch field.
	FieldOffset int
	// Target is the label the branch transfers to.
	Target zir.LabelID
	// OnTrue selects branching when the condition holds (true) or fails.
	OnTrue bool
}

// apply computes the final offset and writes the field. Both the field and
// the target live in the code space, so space bases cancel.
func (p *DeferredBranchPatch) apply(a *Assembler, sy *symbols) error {
	target, ok := sy.labels[p.Target]
	if !ok {
		return &UnboundLabelError{Label: p.Target}
	}
	// Branch semantics: destination = address-after-field + offset - 2.
	offset := target - (p.FieldOffset + 2) + 2
	if offset < branchMin || offset > branchMax {
		return &BranchRangeError{InstructionStart: p.InstructionStart, Target: p.Target, Offset: offset}
	}
	hi, lo := encodeBranchField(offset, p.OnTrue)
	if err := a.PatchByte(SpaceCode, p.FieldOffset, hi); err != nil {
		return err
	}
	return a.PatchByte(SpaceCode, p.FieldOffset+1, lo)
}

// encodeBranchField packs a 14-bit signed offset and the polarity into the
// two-byte branch form: bit 7 of the first byte is the polarity, bit 6 clear
// marks the long form, and the remaining 14 bits hold the offset in two's
// complement.
func encodeBranchField(offset int, onTrue bool) (hi, lo byte) {
	u := uint16(offset) & 0x3FFF
	hi = byte(u >> 8)
	if onTrue {
		hi |= 0x80
	}
	return hi, byte(u)
}
