package zcode

import (
	"bytes"
	"testing"
)

func newTestEncoder(v Version) (*Encoder, *Assembler, *Resolver) {
	a := NewAssembler(v)
	r := NewResolver()
	return NewEncoder(v, a, r), a, r
}

func TestEmitLongForm2OP(t *testing.T) {
	e, a, _ := newTestEncoder(V3)
	_, err := e.Emit(Instruction{
		Op:       OpAdd,
		Operands: []Operand{ConstOperand(5), VarOperand(1)},
		HasStore: true,
		Store:    0,
	})
	if err != nil {
		t.Fatal(err)
	}
	// long form: opcode 0x14, operand 2 is a variable (bit 5)
	want := []byte{0x34, 0x05, 0x01, 0x00}
	if got := a.Bytes(SpaceCode); !bytes.Equal(got, want) {
		t.Errorf("bytes = % x, want % x", got, want)
	}
}

func TestEmitVariableFormForLargeConstant(t *testing.T) {
	e, a, _ := newTestEncoder(V3)
	_, err := e.Emit(Instruction{
		Op:       OpAdd,
		Operands: []Operand{LargeOperand(300), ConstOperand(5)},
		HasStore: true,
		Store:    0,
	})
	if err != nil {
		t.Fatal(err)
	}
	// 0xC0|0x14, type byte large+small+omitted+omitted, word, byte, store
	want := []byte{0xD4, 0x1F, 0x01, 0x2C, 0x05, 0x00}
	if got := a.Bytes(SpaceCode); !bytes.Equal(got, want) {
		t.Errorf("bytes = % x, want % x", got, want)
	}
}

func TestEmitShortForms(t *testing.T) {
	e, a, _ := newTestEncoder(V3)
	if _, err := e.Emit(Instruction{Op: OpRTrue}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Emit(Instruction{
		Op:       OpJZ,
		Operands: []Operand{VarOperand(0)},
		Branch:   &BranchArg{Target: 1, OnTrue: true},
	}); err != nil {
		t.Fatal(err)
	}
	got := a.Bytes(SpaceCode)
	// rtrue; jz (1OP short form, variable operand) sp ?placeholder
	want := []byte{0xB0, 0xA0, 0x00, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("bytes = % x, want % x", got, want)
	}
}

func TestEmitVarForm(t *testing.T) {
	e, a, _ := newTestEncoder(V3)
	_, err := e.Emit(Instruction{
		Op:       OpCallVS,
		Operands: []Operand{FunctionOperand(7, "test"), ConstOperand(1)},
		HasStore: true,
		Store:    0,
	})
	if err != nil {
		t.Fatal(err)
	}
	got := a.Bytes(SpaceCode)
	// 0xE0, types large+small+omitted+omitted, placeholder word, 0x01, store
	want := []byte{0xE0, 0x1F, 0xFF, 0xFF, 0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("bytes = % x, want % x", got, want)
	}
}

func TestEmitCallVS2TwoTypeBytes(t *testing.T) {
	e, a, _ := newTestEncoder(V4)
	ops := []Operand{FunctionOperand(1, "test")}
	for i := 0; i < 5; i++ {
		ops = append(ops, ConstOperand(uint16(i)))
	}
	layout, err := e.Emit(Instruction{Op: OpCallVS2, Operands: ops, HasStore: true, Store: 0})
	if err != nil {
		t.Fatal(err)
	}
	got := a.Bytes(SpaceCode)
	if got[0] != 0xEC {
		t.Errorf("opening byte = 0x%02x, want 0xEC", got[0])
	}
	// large + 5 smalls + 2 omitted across two type bytes
	if got[1] != 0x15 || got[2] != 0x57 {
		t.Errorf("type bytes = 0x%02x 0x%02x, want 0x15 0x57", got[1], got[2])
	}
	// opcode + 2 type bytes + word + 5 bytes + store
	if layout.Size != 11 {
		t.Errorf("size = %d, want 11", layout.Size)
	}
}

func TestEmitJEVariableWithThreeOperands(t *testing.T) {
	e, a, _ := newTestEncoder(V3)
	_, err := e.Emit(Instruction{
		Op:       OpJE,
		Operands: []Operand{VarOperand(1), ConstOperand(2), ConstOperand(3)},
		Branch:   &BranchArg{Target: 1, OnTrue: false},
	})
	if err != nil {
		t.Fatal(err)
	}
	got := a.Bytes(SpaceCode)
	// 2OP bank in variable form keeps bit 5 clear
	if got[0] != 0xC1 {
		t.Errorf("opening byte = 0x%02x, want 0xC1", got[0])
	}
	if got[1] != 0x97 { // var, small, small, omitted
		t.Errorf("type byte = 0x%02x, want 0x97", got[1])
	}
}

func TestEmitLayoutOffsets(t *testing.T) {
	e, a, _ := newTestEncoder(V3)
	start := a.Len(SpaceCode)
	layout, err := e.Emit(Instruction{
		Op:       OpGetChild,
		Operands: []Operand{ConstOperand(4)},
		HasStore: true,
		Store:    3,
		Branch:   &BranchArg{Target: 9, OnTrue: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if layout.Start != start {
		t.Errorf("Start = %d, want %d", layout.Start, start)
	}
	if len(layout.OperandLocs) != 1 || layout.OperandLocs[0] != start+1 {
		t.Errorf("OperandLocs = %v", layout.OperandLocs)
	}
	if layout.StoreLoc != start+2 {
		t.Errorf("StoreLoc = %d, want %d", layout.StoreLoc, start+2)
	}
	if layout.BranchLoc != start+3 {
		t.Errorf("BranchLoc = %d, want %d", layout.BranchLoc, start+3)
	}
	if layout.Size != 5 {
		t.Errorf("Size = %d, want 5", layout.Size)
	}
}

func TestEmitValidation(t *testing.T) {
	cases := []struct {
		name string
		v    Version
		in   Instruction
	}{
		{"store missing", V3, Instruction{Op: OpAdd, Operands: []Operand{ConstOperand(1), ConstOperand(2)}}},
		{"store unexpected", V3, Instruction{Op: OpJZ, Operands: []Operand{ConstOperand(0)}, HasStore: true, Branch: &BranchArg{}}},
		{"branch missing", V3, Instruction{Op: OpJL, Operands: []Operand{ConstOperand(1), ConstOperand(2)}}},
		{"branch unexpected", V3, Instruction{Op: OpAdd, Operands: []Operand{ConstOperand(1), ConstOperand(2)}, HasStore: true, Branch: &BranchArg{}}},
		{"0OP with operand", V3, Instruction{Op: OpQuit, Operands: []Operand{ConstOperand(1)}}},
		{"inline print", V3, Instruction{Op: OpPrint}},
		{"inline print_ret", V3, Instruction{Op: OpPrintRet}},
		{"too many var operands", V3, Instruction{Op: OpCallVS, Operands: []Operand{ConstOperand(1), ConstOperand(2), ConstOperand(3), ConstOperand(4), ConstOperand(5)}, HasStore: true}},
		{"je five operands", V3, Instruction{Op: OpJE, Operands: []Operand{ConstOperand(1), ConstOperand(2), ConstOperand(3), ConstOperand(4), ConstOperand(5)}, Branch: &BranchArg{}}},
		{"call_vn before v5", V4, Instruction{Op: OpCallVN, Operands: []Operand{ConstOperand(1)}}},
		{"1OP not in v5", V5, Instruction{Op: OpNot1, Operands: []Operand{ConstOperand(1)}, HasStore: true}},
		{"show_status after v3", V4, Instruction{Op: OpShowStatus}},
		{"call_1s in v3", V3, Instruction{Op: OpCall1S, Operands: []Operand{ConstOperand(1)}, HasStore: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _, _ := newTestEncoder(tc.v)
			if _, err := e.Emit(tc.in); err == nil {
				t.Error("Emit accepted an invalid instruction")
			}
		})
	}
}

func TestSReadStoresOnlyInV5(t *testing.T) {
	e5, _, _ := newTestEncoder(V5)
	if _, err := e5.Emit(Instruction{
		Op:       OpSRead,
		Operands: []Operand{ConstOperand(0x100), ConstOperand(0x200)},
		HasStore: true,
		Store:    0,
	}); err != nil {
		t.Errorf("V5 sread with store: %v", err)
	}

	e3, _, _ := newTestEncoder(V3)
	if _, err := e3.Emit(Instruction{
		Op:       OpSRead,
		Operands: []Operand{ConstOperand(0x100), ConstOperand(0x200)},
		HasStore: true,
		Store:    0,
	}); err == nil {
		t.Error("V3 sread accepted a store")
	}
}
