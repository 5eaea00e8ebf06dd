package zcode

import (
	"fmt"

	"github.com/chazu/grotto/pkg/zir"
)

// OperandMode is the 2-bit operand type used in instruction encodings.
type OperandMode uint8

const (
	// OperandLarge is a 16-bit constant (type bits 00).
	OperandLarge OperandMode = 0b00
	// OperandSmall is an 8-bit constant (type bits 01).
	OperandSmall OperandMode = 0b01
	// OperandVariable is a variable number (type bits 10).
	OperandVariable OperandMode = 0b10

	operandOmitted OperandMode = 0b11
)

// Operand is one encoded instruction operand. Operands whose final value is
// unknown at emission time carry a reference; they are always emitted as
// large constants holding a placeholder, and the resolver patches them once
// the layout is fixed.
type Operand struct {
	Mode  OperandMode
	Value uint16
	Ref   *UnresolvedReference
}

// ConstOperand picks the narrowest constant encoding for v.
func ConstOperand(v uint16) Operand {
	if v <= 0xFF {
		return Operand{Mode: OperandSmall, Value: v}
	}
	return Operand{Mode: OperandLarge, Value: v}
}

// LargeOperand forces the 16-bit constant encoding.
func LargeOperand(v uint16) Operand { return Operand{Mode: OperandLarge, Value: v} }

// VarOperand reads variable v (0 = stack, 1-15 = locals, 16+ = globals).
func VarOperand(v uint8) Operand { return Operand{Mode: OperandVariable, Value: uint16(v)} }

// RefOperand emits a placeholder word and queues the reference for phase 2.
func RefOperand(ref UnresolvedReference) Operand {
	ref.Width = 2
	return Operand{Mode: OperandLarge, Value: placeholderWord, Ref: &ref}
}

// FunctionOperand references a routine's packed address.
func FunctionOperand(id zir.FuncID, site string) Operand {
	return RefOperand(UnresolvedReference{Kind: RefFunction, Function: id, Packed: true, Site: site})
}

// StringOperand references a string's packed address.
func StringOperand(id zir.StringID, site string) Operand {
	return RefOperand(UnresolvedReference{Kind: RefString, String: id, Packed: true, Site: site})
}

// ObjectOperand references a backend-assigned object number.
func ObjectOperand(id zir.ObjectID, site string) Operand {
	return RefOperand(UnresolvedReference{Kind: RefObject, Object: id, Site: site})
}

// LabelOperand references a label as the jump instruction's signed relative
// word.
func LabelOperand(id zir.LabelID, site string) Operand {
	return RefOperand(UnresolvedReference{Kind: RefJump, Label: id, Site: site})
}

// BranchArg is a conditional branch argument: the target label and whether
// the branch fires on a true or false condition.
type BranchArg struct {
	Target zir.LabelID
	OnTrue bool
}

// Instruction is one instruction ready for encoding.
type Instruction struct {
	Op       Opcode
	Operands []Operand
	Store    uint8 // result variable, when HasStore
	HasStore bool
	Branch   *BranchArg
}

// InstructionLayout records where the parts of an emitted instruction
// landed, so references are created from observed offsets rather than
// recomputed ones.
type InstructionLayout struct {
	Start       int
	Size        int
	OperandLocs []int
	StoreLoc    int // -1 when absent
	BranchLoc   int // -1 when absent
}

// Encoder turns instructions into code-space bytes, queueing references and
// branch patches as a side effect.
type Encoder struct {
	version Version
	asm     *Assembler
	res     *Resolver
}

// NewEncoder returns an encoder writing to a's code space.
func NewEncoder(v Version, a *Assembler, r *Resolver) *Encoder {
	return &Encoder{version: v, asm: a, res: r}
}

// Emit encodes one instruction at the current end of the code space.
func (e *Encoder) Emit(in Instruction) (InstructionLayout, error) {
	layout := InstructionLayout{Start: e.asm.Len(SpaceCode), StoreLoc: -1, BranchLoc: -1}
	if !Known(in.Op) {
		return layout, fmt.Errorf("zcode: unknown opcode %s:0x%02x", in.Op.Family(), in.Op.Number())
	}
	if err := e.checkVersion(in.Op); err != nil {
		return layout, err
	}

	switch op := in.Op.(type) {
	case Op0:
		if len(in.Operands) != 0 {
			return layout, fmt.Errorf("zcode: %s takes no operands, got %d", op, len(in.Operands))
		}
		if op == OpPrint || op == OpPrintRet {
			// Inline literals would splice text into the instruction
			// stream; this backend always goes through the string table
			// and print_paddr instead.
			return layout, fmt.Errorf("zcode: %s carries inline text; emit print_paddr with a string reference", op)
		}
		e.asm.AppendByte(SpaceCode, 0xB0|op.Number())

	case Op1:
		if len(in.Operands) != 1 {
			return layout, fmt.Errorf("zcode: %s takes one operand, got %d", op, len(in.Operands))
		}
		e.asm.AppendByte(SpaceCode, 0x80|uint8(in.Operands[0].Mode)<<4|op.Number())

	case Op2:
		if err := e.emitOp2Opening(op, in.Operands); err != nil {
			return layout, err
		}

	case OpVar:
		max := 4
		if op == OpCallVS2 || op == OpCallVN2 {
			max = 8
		}
		if len(in.Operands) > max {
			return layout, fmt.Errorf("zcode: %s takes at most %d operands, got %d", op, max, len(in.Operands))
		}
		e.asm.AppendByte(SpaceCode, 0xE0|op.Number())
		e.emitTypeBytes(in.Operands, max/4)
	}

	for i := range in.Operands {
		loc, err := e.emitOperand(&in.Operands[i])
		if err != nil {
			return layout, err
		}
		layout.OperandLocs = append(layout.OperandLocs, loc)
	}

	if e.stores(in.Op) {
		if !in.HasStore {
			return layout, fmt.Errorf("zcode: %s requires a result destination", in.Op)
		}
		layout.StoreLoc = e.asm.AppendByte(SpaceCode, in.Store)
	} else if in.HasStore {
		return layout, fmt.Errorf("zcode: %s does not store a result", in.Op)
	}

	if Branches(in.Op) {
		if in.Branch == nil {
			return layout, fmt.Errorf("zcode: %s requires a branch target", in.Op)
		}
		layout.BranchLoc = e.asm.AppendWord(SpaceCode, placeholderWord)
		err := e.res.AddBranch(DeferredBranchPatch{
			InstructionStart: layout.Start,
			FieldOffset:      layout.BranchLoc,
			Target:           in.Branch.Target,
			OnTrue:           in.Branch.OnTrue,
		})
		if err != nil {
			return layout, err
		}
	} else if in.Branch != nil {
		return layout, fmt.Errorf("zcode: %s does not branch", in.Op)
	}

	layout.Size = e.asm.Len(SpaceCode) - layout.Start
	return layout, nil
}

// emitOp2Opening chooses long or variable form for a 2OP-family opcode.
// Long form holds exactly two operands, each a small constant or a
// variable; anything wider (a large constant, a forward reference, or je's
// extra operands) forces the variable form with the 2OP bank bit clear.
func (e *Encoder) emitOp2Opening(op Op2, operands []Operand) error {
	if op == OpJE {
		if len(operands) < 2 || len(operands) > 4 {
			return fmt.Errorf("zcode: je takes 2-4 operands, got %d", len(operands))
		}
	} else if len(operands) != 2 {
		return fmt.Errorf("zcode: %s takes two operands, got %d", op, len(operands))
	}

	long := len(operands) == 2
	for _, o := range operands {
		if o.Mode == OperandLarge {
			long = false
		}
	}
	if long {
		b := op.Number() & 0x1F
		if operands[0].Mode == OperandVariable {
			b |= 0x40
		}
		if operands[1].Mode == OperandVariable {
			b |= 0x20
		}
		e.asm.AppendByte(SpaceCode, b)
		return nil
	}
	e.asm.AppendByte(SpaceCode, 0xC0|op.Number())
	e.emitTypeBytes(operands, 1)
	return nil
}

// emitTypeBytes writes the operand-type byte(s): two bits per operand from
// the high end, unused slots marked omitted.
func (e *Encoder) emitTypeBytes(operands []Operand, nbytes int) {
	for b := 0; b < nbytes; b++ {
		var tb uint8
		for slot := 0; slot < 4; slot++ {
			mode := operandOmitted
			if i := b*4 + slot; i < len(operands) {
				mode = operands[i].Mode
			}
			tb = tb<<2 | uint8(mode)
		}
		e.asm.AppendByte(SpaceCode, tb)
	}
}

func (e *Encoder) emitOperand(o *Operand) (int, error) {
	switch o.Mode {
	case OperandLarge:
		loc := e.asm.AppendWord(SpaceCode, o.Value)
		if o.Ref != nil {
			ref := *o.Ref
			ref.Space = SpaceCode
			ref.Location = loc
			if err := e.res.Add(ref); err != nil {
				return loc, err
			}
		}
		return loc, nil
	case OperandSmall, OperandVariable:
		if o.Ref != nil {
			return 0, fmt.Errorf("zcode: reference operand must be a large constant")
		}
		if o.Value > 0xFF {
			return 0, fmt.Errorf("zcode: operand value 0x%x does not fit one byte", o.Value)
		}
		return e.asm.AppendByte(SpaceCode, byte(o.Value)), nil
	default:
		return 0, fmt.Errorf("zcode: cannot emit omitted operand")
	}
}

// stores is the version-aware variant of Stores: sread grows a result
// destination in v5.
func (e *Encoder) stores(op Opcode) bool {
	if op == OpSRead {
		return e.version >= V5
	}
	return Stores(op)
}

// checkVersion rejects opcodes outside the target version's instruction set.
func (e *Encoder) checkVersion(op Opcode) error {
	var min, max Version = V3, V5
	switch op {
	case OpCall1S, OpCall2S, OpCallVS2, OpEraseWindow, OpReadChar, OpScanTable:
		min = V4
	case OpCall2N, OpCallVN, OpCallVN2, OpTokenise, OpNotV:
		min = V5
	case OpNot1:
		max = V4
	case OpShowStatus:
		max = V3
	}
	if e.version < min || e.version > max {
		return fmt.Errorf("zcode: %s is not available in %s", op, e.version)
	}
	return nil
}
