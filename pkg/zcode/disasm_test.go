package zcode

import (
	"strings"
	"testing"
)

func TestDecodeInstructionRoundTrip(t *testing.T) {
	e, a, _ := newTestEncoder(V3)
	if _, err := e.Emit(Instruction{
		Op:       OpAdd,
		Operands: []Operand{VarOperand(1), ConstOperand(2)},
		HasStore: true,
		Store:    16,
	}); err != nil {
		t.Fatal(err)
	}

	d, err := DecodeInstruction(V3, a.Bytes(SpaceCode), 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Op != OpAdd {
		t.Errorf("op = %s, want add", d.Op)
	}
	if len(d.Operands) != 2 {
		t.Fatalf("operands = %v", d.Operands)
	}
	if d.Operands[0].Mode != OperandVariable || d.Operands[0].Value != 1 {
		t.Errorf("operand 0 = %+v", d.Operands[0])
	}
	if d.Operands[1].Mode != OperandSmall || d.Operands[1].Value != 2 {
		t.Errorf("operand 1 = %+v", d.Operands[1])
	}
	if !d.HasStore || d.Store != 16 {
		t.Errorf("store = %d (has=%v)", d.Store, d.HasStore)
	}
	if d.Next != a.Len(SpaceCode) {
		t.Errorf("Next = %d, want %d", d.Next, a.Len(SpaceCode))
	}
}

func TestDecodeInstructionVarForm(t *testing.T) {
	// storew 0x1000 3 sp
	mem := []byte{0xE1, 0x1B, 0x10, 0x00, 0x03, 0x00}
	d, err := DecodeInstruction(V3, mem, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Op != OpStoreW {
		t.Errorf("op = %s, want storew", d.Op)
	}
	if len(d.Operands) != 3 {
		t.Fatalf("operands = %v", d.Operands)
	}
	if d.Operands[0].Value != 0x1000 || d.Operands[1].Value != 3 || d.Operands[2].Value != 0 {
		t.Errorf("operands = %v", d.Operands)
	}
	if d.HasStore {
		t.Error("storew decoded with a store byte")
	}
}

func TestDecodeBranchShortForm(t *testing.T) {
	// jz sp, short branch on true, offset 5
	mem := []byte{0xA0, 0x00, 0xC5}
	d, err := DecodeInstruction(V3, mem, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Branch == nil || !d.Branch.OnTrue {
		t.Fatal("branch polarity lost")
	}
	if d.Branch.Target != 3+5-2 {
		t.Errorf("target = %d, want 6", d.Branch.Target)
	}
}

func TestDecodeBranchReturns(t *testing.T) {
	// jz sp, short branch on false, offset 1 (return true)
	mem := []byte{0xA0, 0x00, 0x41}
	d, err := DecodeInstruction(V3, mem, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d.Branch == nil || !d.Branch.Returns || d.Branch.Offset != 1 {
		t.Errorf("branch = %+v", d.Branch)
	}
}

func TestDecodedString(t *testing.T) {
	e, a, _ := newTestEncoder(V3)
	if _, err := e.Emit(Instruction{
		Op:       OpAdd,
		Operands: []Operand{VarOperand(0), ConstOperand(2)},
		HasStore: true,
		Store:    17,
	}); err != nil {
		t.Fatal(err)
	}
	d, err := DecodeInstruction(V3, a.Bytes(SpaceCode), 0)
	if err != nil {
		t.Fatal(err)
	}
	s := d.String()
	for _, frag := range []string{"add", "sp", "0x02", "-> g1"} {
		if !strings.Contains(s, frag) {
			t.Errorf("%q missing from %q", frag, s)
		}
	}
}

func TestDecodePastEndFails(t *testing.T) {
	if _, err := DecodeInstruction(V3, []byte{0xE0}, 0); err == nil {
		t.Error("truncated instruction decoded")
	}
	if _, err := DecodeInstruction(V3, []byte{0xB0}, 5); err == nil {
		t.Error("decode past end succeeded")
	}
}
