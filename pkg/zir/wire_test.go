package zir

import (
	"bytes"
	"testing"
)

func sampleProgram() *Program {
	return &Program{
		Entry: 1,
		Functions: []*Function{
			{
				ID:     1,
				Name:   "main",
				Locals: 2,
				Code: []Instr{
					{Op: OpAssign, Args: []Value{ConstVal(7)}, Dst: &Variable{Kind: Local, Index: 0}},
					{Op: OpJZ, Args: []Value{VarVal(LocalVar(0))}, Branch: &Branch{Target: 3, OnTrue: true}},
					{Op: OpRTrue},
					{Op: OpLabel, Label: 3},
					{Op: OpRFalse},
				},
			},
		},
		Objects: []*Object{
			{ID: 1, Name: "room", ShortName: "Room", Names: []string{"room"},
				Exits: []Exit{{Direction: "north", Kind: ExitBlocked, Message: 1}}},
		},
		Globals:          []Global{{Name: "turns", Initial: 3}},
		Strings:          []StringDecl{{ID: 1, Text: "No."}},
		Vocabulary:       []string{"look"},
		PropertyDefaults: map[uint8]uint16{7: 9},
	}
}

func TestWireRoundTrip(t *testing.T) {
	p := sampleProgram()
	data, err := MarshalProgram(p)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, WireMagic) {
		t.Error("wire form missing magic")
	}

	got, err := UnmarshalProgram(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Entry != p.Entry {
		t.Errorf("entry = %d, want %d", got.Entry, p.Entry)
	}
	if len(got.Functions) != 1 || got.Functions[0].Name != "main" {
		t.Fatalf("functions = %+v", got.Functions)
	}
	if len(got.Functions[0].Code) != 5 {
		t.Errorf("code length = %d, want 5", len(got.Functions[0].Code))
	}
	in := got.Functions[0].Code[1]
	if in.Op != OpJZ || in.Branch == nil || in.Branch.Target != 3 || !in.Branch.OnTrue {
		t.Errorf("jz instruction lost detail: %+v", in)
	}
	if got.Objects[0].Exits[0].Kind != ExitBlocked {
		t.Errorf("exit kind = %d", got.Objects[0].Exits[0].Kind)
	}
	if got.PropertyDefaults[7] != 9 {
		t.Errorf("property default = %d", got.PropertyDefaults[7])
	}
}

func TestWireDeterministic(t *testing.T) {
	a, err := MarshalProgram(sampleProgram())
	if err != nil {
		t.Fatal(err)
	}
	b, err := MarshalProgram(sampleProgram())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("canonical encoding produced different bytes for equal programs")
	}
}

func TestWireRejectsBadInput(t *testing.T) {
	if _, err := UnmarshalProgram([]byte{'Z', 'I'}); err == nil {
		t.Error("truncated input accepted")
	}
	if _, err := UnmarshalProgram([]byte("MAGIC-MISMATCH")); err == nil {
		t.Error("bad magic accepted")
	}
}

func TestStringTextLookup(t *testing.T) {
	p := sampleProgram()
	if text, ok := p.StringText(1); !ok || text != "No." {
		t.Errorf("StringText(1) = %q, %v", text, ok)
	}
	if _, ok := p.StringText(2); ok {
		t.Error("StringText found an undeclared id")
	}
	if f := p.Function(1); f == nil || f.Name != "main" {
		t.Errorf("Function(1) = %+v", f)
	}
	if p.Function(9) != nil {
		t.Error("Function(9) should be nil")
	}
}
