package zcode

import (
	"fmt"

	"github.com/chazu/grotto/pkg/zir"
)

// Errors in this package follow a strict taxonomy: anything that would
// require guessing an address or truncating a value is fatal and aborts the
// compilation before any output is written. There is no best-effort encoding
// of a forward reference.

// UnresolvedRefError reports a reference whose target never received an
// address. Left unpatched it would ship placeholder bytes as live data, so
// it always aborts the build.
type UnresolvedRefError struct {
	Ref UnresolvedReference
}

func (e *UnresolvedRefError) Error() string {
	return fmt.Sprintf("unresolved %s reference at %s+0x%04x (target %s)",
		e.Ref.Kind, e.Ref.Space, e.Ref.Location, e.Ref.targetName())
}

// BranchRangeError reports a conditional-branch offset that does not fit the
// fixed two-byte branch field.
type BranchRangeError struct {
	InstructionStart int
	Target           zir.LabelID
	Offset           int
}

func (e *BranchRangeError) Error() string {
	return fmt.Sprintf("branch at code+0x%04x to label %d: offset %d exceeds 14-bit field (%d..%d)",
		e.InstructionStart, e.Target, e.Offset, branchMin, branchMax)
}

// JumpRangeError reports an unconditional jump whose relative offset does
// not fit a signed word.
type JumpRangeError struct {
	Location int
	Target   zir.LabelID
	Offset   int
}

func (e *JumpRangeError) Error() string {
	return fmt.Sprintf("jump at code+0x%04x to label %d: offset %d exceeds signed 16-bit range",
		e.Location, e.Target, e.Offset)
}

// MissingWordError reports a vocabulary word that was referenced but never
// entered the dictionary. This is a front-end/backend mismatch; it must
// surface with the word and usage site rather than default to address 0.
type MissingWordError struct {
	Word string
	Site string
}

func (e *MissingWordError) Error() string {
	return fmt.Sprintf("vocabulary word %q not in dictionary (referenced by %s)", e.Word, e.Site)
}

// DuplicateLabelError reports a label bound at two positions.
type DuplicateLabelError struct {
	Label zir.LabelID
	Func  string
}

func (e *DuplicateLabelError) Error() string {
	return fmt.Sprintf("label %d bound twice in function %q", e.Label, e.Func)
}

// UnboundLabelError reports a label that was referenced but never bound.
type UnboundLabelError struct {
	Label zir.LabelID
}

func (e *UnboundLabelError) Error() string {
	return fmt.Sprintf("label %d referenced but never bound", e.Label)
}

// PropertyError reports an invalid property number or payload.
type PropertyError struct {
	Object   string
	Property uint8
	Len      int
	Max      int
	Reason   string
}

func (e *PropertyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("object %q property %d: %s", e.Object, e.Property, e.Reason)
	}
	return fmt.Sprintf("object %q property %d: payload %d bytes exceeds version limit %d",
		e.Object, e.Property, e.Len, e.Max)
}

// ObjectLimitError reports more objects than the version can number.
type ObjectLimitError struct {
	Count int
	Max   int
}

func (e *ObjectLimitError) Error() string {
	return fmt.Sprintf("%d objects exceed the version limit of %d", e.Count, e.Max)
}

// PatchOverlapError reports two patches claiming overlapping byte ranges.
// Overlapping patches mean two subsystems believe they own the same bytes;
// this is an internal consistency defect, never a user error.
type PatchOverlapError struct {
	Space  Space
	Offset int
	Width  int
}

func (e *PatchOverlapError) Error() string {
	return fmt.Sprintf("internal: patch range %s+0x%04x..0x%04x overlaps an existing claim",
		e.Space, e.Offset, e.Offset+e.Width)
}
