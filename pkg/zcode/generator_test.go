package zcode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chazu/grotto/pkg/zir"
)

func dst(v zir.Variable) *zir.Variable { return &v }

// testProgram is a small but complete world: two rooms joined by a north
// exit, a blocked east exit, a carryable object, one global, and an entry
// routine that prints a greeting.
func testProgram() *zir.Program {
	return &zir.Program{
		Entry: 1,
		Functions: []*zir.Function{
			{
				ID:     1,
				Name:   "main",
				Locals: 1,
				Code: []zir.Instr{
					{Op: zir.OpPrintPaddr, Args: []zir.Value{zir.StringVal(2)}},
					{Op: zir.OpNewLine},
					{Op: zir.OpAssign, Args: []zir.Value{zir.ConstVal(7)}, Dst: dst(zir.LocalVar(0))},
					{Op: zir.OpJZ, Args: []zir.Value{zir.VarVal(zir.LocalVar(0))}, Branch: &zir.Branch{Target: 1, OnTrue: false}},
					{Op: zir.OpRTrue},
					{Op: zir.OpLabel, Label: 1},
					{Op: zir.OpRFalse},
				},
			},
		},
		Objects: []*zir.Object{
			{
				ID:        1,
				Name:      "cave-mouth",
				ShortName: "Cave Mouth",
				Names:     []string{"cave"},
				Exits: []zir.Exit{
					{Direction: "north", Kind: zir.ExitNormal, Target: 2},
					{Direction: "east", Kind: zir.ExitBlocked, Message: 1},
				},
			},
			{ID: 2, Name: "tunnel", ShortName: "Dark Tunnel"},
			{
				ID:         3,
				Name:       "lantern",
				ShortName:  "brass lantern",
				Parent:     1,
				Attributes: []uint8{3},
				Properties: []zir.Property{{Num: 5, Data: []byte{0x12, 0x34}}},
				Names:      []string{"lantern", "lamp"},
			},
		},
		Globals: []zir.Global{{Name: "score", Initial: 0x1234}},
		Strings: []zir.StringDecl{
			{ID: 1, Text: "The door is locked."},
			{ID: 2, Text: "Hello, Cave!"},
		},
		Vocabulary:       []string{"take"},
		PropertyDefaults: map[uint8]uint16{4: 0x00AA},
	}
}

func word(img []byte, off int) int { return int(img[off])<<8 | int(img[off+1]) }

func compileTestProgram(t *testing.T, v Version) []byte {
	t.Helper()
	img, err := Compile(testProgram(), Options{Version: v, Release: 7, Serial: "260815"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return img
}

func TestCompileDeterministic(t *testing.T) {
	a := compileTestProgram(t, V3)
	b := compileTestProgram(t, V3)
	if !bytes.Equal(a, b) {
		t.Error("two compilations of the same program differ")
	}
}

func TestCompileHeader(t *testing.T) {
	img := compileTestProgram(t, V3)

	if img[0] != 3 {
		t.Errorf("version byte = %d", img[0])
	}
	if got := word(img, 0x02); got != 7 {
		t.Errorf("release = %d, want 7", got)
	}
	if got := string(img[0x12:0x18]); got != "260815" {
		t.Errorf("serial = %q", got)
	}
	if got := word(img, 0x1A) * V3.LengthDivisor(); got != len(img) {
		t.Errorf("scaled length = %d, file is %d", got, len(img))
	}
	if got, want := word(img, 0x1C), int(Checksum(img)); got != want {
		t.Errorf("checksum field = 0x%04x, computed 0x%04x", got, want)
	}
	if got := word(img, 0x0C); got != 64 {
		t.Errorf("globals base = 0x%04x, want 0x40", got)
	}
	if word(img, 0x0E) != word(img, 0x08) {
		t.Errorf("static base 0x%04x != dictionary base 0x%04x", word(img, 0x0E), word(img, 0x08))
	}
	// Dynamic memory holds the object table, static starts past it.
	if !(word(img, 0x0A) < word(img, 0x0E)) {
		t.Error("object table not in dynamic memory")
	}
	if got := word(img, 0x04); got > word(img, 0x06) {
		t.Errorf("high memory base 0x%04x above initial PC 0x%04x", got, word(img, 0x06))
	}
}

func TestCompileGlobalInitialValues(t *testing.T) {
	img := compileTestProgram(t, V3)
	base := word(img, 0x0C)
	if got := word(img, base); got != 0x1234 {
		t.Errorf("global 0 = 0x%04x, want 0x1234", got)
	}
	if got := word(img, base+2); got != 0 {
		t.Errorf("undeclared global = 0x%04x, want 0", got)
	}
}

func TestCompileBootstrap(t *testing.T) {
	img := compileTestProgram(t, V3)

	pc := word(img, 0x06)
	call, err := DecodeInstruction(V3, img, pc)
	if err != nil {
		t.Fatal(err)
	}
	if call.Op != OpCallVS {
		t.Fatalf("first instruction is %s, want call_vs", call.Op)
	}
	if !call.HasStore || call.Store != 0 {
		t.Error("bootstrap call does not discard to the stack")
	}

	quit, err := DecodeInstruction(V3, img, call.Next)
	if err != nil {
		t.Fatal(err)
	}
	if quit.Op != OpQuit {
		t.Errorf("second instruction is %s, want quit", quit.Op)
	}

	// The operand is the entry routine's packed address.
	routine := int(call.Operands[0].Value) * V3.PackedScale()
	if img[routine] != 1 {
		t.Errorf("entry routine declares %d locals, want 1", img[routine])
	}
	// V3 routine header carries one default word per local.
	body := routine + 1 + 2
	first, err := DecodeInstruction(V3, img, body)
	if err != nil {
		t.Fatal(err)
	}
	if first.Op != OpPrintPaddr {
		t.Errorf("first body instruction is %s, want print_paddr", first.Op)
	}
	text, _ := DecodeString(img, int(first.Operands[0].Value)*V3.PackedScale())
	if text != "Hello, Cave!" {
		t.Errorf("print_paddr operand decodes to %q", text)
	}
}

func TestCompileBranchTargets(t *testing.T) {
	img := compileTestProgram(t, V3)

	pc := word(img, 0x06)
	call, _ := DecodeInstruction(V3, img, pc)
	routine := int(call.Operands[0].Value) * V3.PackedScale()
	body, err := DecodeRoutine(V3, img, routine+3)
	if err != nil {
		t.Fatal(err)
	}

	var jz *Decoded
	for i := range body {
		if body[i].Op == OpJZ {
			jz = &body[i]
		}
	}
	if jz == nil {
		t.Fatal("no jz in entry routine")
	}
	if jz.Branch == nil || jz.Branch.OnTrue {
		t.Fatal("jz branch polarity lost")
	}
	target, err := DecodeInstruction(V3, img, jz.Branch.Target)
	if err != nil {
		t.Fatal(err)
	}
	if target.Op != OpRFalse {
		t.Errorf("branch target decodes as %s, want rfalse", target.Op)
	}
}

func TestCompileDictionary(t *testing.T) {
	img := compileTestProgram(t, V3)
	base := word(img, 0x08)

	if img[base] != 3 {
		t.Errorf("separator count = %d", img[base])
	}
	entrySize := int(img[base+4])
	count := word(img, base+5)
	// cave, east, lamp, lantern, north, take
	if count != 6 {
		t.Fatalf("entry count = %d, want 6", count)
	}

	entries := base + 7
	var prev []byte
	for i := 0; i < count; i++ {
		enc := img[entries+i*entrySize : entries+i*entrySize+V3.DictWordBytes()]
		if prev != nil && bytes.Compare(prev, enc) >= 0 {
			t.Errorf("entry %d out of order", i)
		}
		prev = enc
	}

	// "north" must be present at some entry.
	want := encodeDictWord("north", V3)
	found := false
	for i := 0; i < count; i++ {
		if bytes.Equal(img[entries+i*entrySize:entries+i*entrySize+4], want) {
			found = true
		}
	}
	if !found {
		t.Error("exit direction word missing from dictionary")
	}
}

// propTableAddr walks to object n's property table pointer.
func propTableAddr(img []byte, n int) int {
	objBase := word(img, 0x0A)
	entry := objBase + 31*2 + (n-1)*9
	return word(img, entry+7)
}

func TestCompileObjectEntries(t *testing.T) {
	img := compileTestProgram(t, V3)
	objBase := word(img, 0x0A)

	// Defaults: slot 3 holds property 4's default.
	if got := word(img, objBase+3*2); got != 0x00AA {
		t.Errorf("property 4 default = 0x%04x, want 0x00AA", got)
	}
	if got := word(img, objBase); got != 0 {
		t.Errorf("property 1 default = 0x%04x, want 0", got)
	}

	entry := func(n int) int { return objBase + 31*2 + (n-1)*9 }

	// Room 1 contains the lantern.
	e1 := entry(1)
	if img[e1+4] != 0 || img[e1+5] != 0 {
		t.Error("room 1 has a parent or sibling")
	}
	if img[e1+6] != 3 {
		t.Errorf("room 1 first child = %d, want 3", img[e1+6])
	}

	// Lantern: attribute 3 set, parent is room 1.
	e3 := entry(3)
	if img[e3] != 0x10 {
		t.Errorf("lantern attribute byte 0 = 0x%02x, want 0x10", img[e3])
	}
	if img[e3+4] != 1 {
		t.Errorf("lantern parent = %d, want 1", img[e3+4])
	}
}

func TestCompilePropertyTables(t *testing.T) {
	img := compileTestProgram(t, V3)
	dictBase := word(img, 0x08)

	addr := propTableAddr(img, 1)
	nameWords := int(img[addr])
	name, _ := DecodeString(img, addr+1)
	if name != "Cave Mouth" {
		t.Errorf("room short name = %q", name)
	}

	// Properties in strictly descending number order.
	off := addr + 1 + 2*nameWords
	var nums []uint8
	props := map[uint8][]byte{}
	for {
		num, payload, next, err := DecodeProperty(V3, img, off)
		if err != nil {
			t.Fatal(err)
		}
		if num == 0 {
			break
		}
		nums = append(nums, num)
		props[num] = payload
		off = next
	}
	for i := 1; i < len(nums); i++ {
		if nums[i] >= nums[i-1] {
			t.Fatalf("properties not descending: %v", nums)
		}
	}

	// Exit kinds: north is normal, east is blocked.
	if !bytes.Equal(props[PropExitKinds], []byte{0, 1}) {
		t.Errorf("exit kinds = % x", props[PropExitKinds])
	}

	// Exit directions hold dictionary entry addresses, in declaration order.
	dirs := props[PropExitDirections]
	if len(dirs) != 4 {
		t.Fatalf("exit directions payload = % x", dirs)
	}
	for i, wordText := range []string{"north", "east"} {
		a := int(dirs[2*i])<<8 | int(dirs[2*i+1])
		if a <= dictBase {
			t.Fatalf("direction %d address 0x%04x not in dictionary", i, a)
		}
		if got := img[a : a+4]; !bytes.Equal(got, encodeDictWord(wordText, V3)) {
			t.Errorf("direction %d = % x, want %q", i, got, wordText)
		}
	}

	// Exit data: destination object number, then packed message address.
	data := props[PropExitData]
	if len(data) != 4 {
		t.Fatalf("exit data payload = % x", data)
	}
	if got := int(data[0])<<8 | int(data[1]); got != 2 {
		t.Errorf("north destination = %d, want 2", got)
	}
	msg, _ := DecodeString(img, (int(data[2])<<8|int(data[3]))*V3.PackedScale())
	if msg != "The door is locked." {
		t.Errorf("blocked message = %q", msg)
	}

	// Synonyms are dictionary addresses too.
	syn := props[PropSynonyms]
	if len(syn) != 2 {
		t.Fatalf("synonyms payload = % x", syn)
	}
	a := int(syn[0])<<8 | int(syn[1])
	if got := img[a : a+4]; !bytes.Equal(got, encodeDictWord("cave", V3)) {
		t.Errorf("synonym entry = % x, want cave", got)
	}

	// The lantern's user property survives untouched.
	lantern := propTableAddr(img, 3)
	loff := lantern + 1 + 2*int(img[lantern])
	for {
		num, payload, next, err := DecodeProperty(V3, img, loff)
		if err != nil {
			t.Fatal(err)
		}
		if num == 0 {
			t.Fatal("lantern property 5 missing")
		}
		if num == 5 {
			if !bytes.Equal(payload, []byte{0x12, 0x34}) {
				t.Errorf("property 5 payload = % x", payload)
			}
			break
		}
		loff = next
	}
}

func TestCompileV5(t *testing.T) {
	img := compileTestProgram(t, V5)

	if img[0] != 5 {
		t.Fatalf("version byte = %d", img[0])
	}
	pc := word(img, 0x06)
	call, err := DecodeInstruction(V5, img, pc)
	if err != nil {
		t.Fatal(err)
	}
	routine := int(call.Operands[0].Value) * V5.PackedScale()
	if routine%4 != 0 {
		t.Errorf("routine address 0x%04x not aligned to 4", routine)
	}
	if img[routine] != 1 {
		t.Errorf("locals byte = %d", img[routine])
	}
	// V5 routine headers carry no local default words.
	first, err := DecodeInstruction(V5, img, routine+1)
	if err != nil {
		t.Fatal(err)
	}
	if first.Op != OpPrintPaddr {
		t.Errorf("first body instruction is %s, want print_paddr", first.Op)
	}
	text, _ := DecodeString(img, int(first.Operands[0].Value)*V5.PackedScale())
	if text != "Hello, Cave!" {
		t.Errorf("greeting decodes to %q", text)
	}

	// V4+ object entries are 14 bytes with word links.
	objBase := word(img, 0x0A)
	e1 := objBase + 63*2
	if got := word(img, e1+10); got != 3 {
		t.Errorf("room 1 first child = %d, want 3", got)
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*zir.Program)
	}{
		{"missing entry", func(p *zir.Program) { p.Entry = 99 }},
		{"too many globals", func(p *zir.Program) { p.Globals = make([]zir.Global, 241) }},
		{"duplicate object id", func(p *zir.Program) { p.Objects[1].ID = 1 }},
		{"unknown parent", func(p *zir.Program) { p.Objects[2].Parent = 50 }},
		{"reserved property", func(p *zir.Program) {
			p.Objects[2].Properties = append(p.Objects[2].Properties, zir.Property{Num: PropExitKinds, Data: []byte{1}})
		}},
		{"duplicate property", func(p *zir.Program) {
			p.Objects[2].Properties = append(p.Objects[2].Properties, zir.Property{Num: 5, Data: []byte{1}})
		}},
		{"undeclared string", func(p *zir.Program) {
			p.Functions[0].Code[0].Args[0] = zir.StringVal(77)
		}},
		{"local out of range", func(p *zir.Program) {
			p.Functions[0].Code[2].Dst = dst(zir.LocalVar(5))
		}},
		{"unbound branch label", func(p *zir.Program) {
			p.Functions[0].Code[3].Branch.Target = 99
		}},
		{"too many locals", func(p *zir.Program) { p.Functions[0].Locals = 16 }},
		{"attribute out of range", func(p *zir.Program) { p.Objects[2].Attributes = []uint8{40} }},
		{"oversized property", func(p *zir.Program) {
			p.Objects[2].Properties[0].Data = make([]byte, 9)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := testProgram()
			tc.mutate(p)
			if _, err := Compile(p, Options{Version: V3, Release: 1, Serial: "000001"}); err == nil {
				t.Error("Compile accepted an invalid program")
			}
		})
	}
}

func TestCompileObjectLimit(t *testing.T) {
	p := testProgram()
	for i := 0; i < 256; i++ {
		p.Objects = append(p.Objects, &zir.Object{ID: zir.ObjectID(100 + i), Name: "filler", ShortName: "x"})
	}
	_, err := Compile(p, Options{Version: V3, Release: 1, Serial: "000001"})
	var ole *ObjectLimitError
	if !errors.As(err, &ole) {
		t.Errorf("got %v, want ObjectLimitError", err)
	}
	// The same count is fine in V4.
	if _, err := Compile(p, Options{Version: V4, Release: 1, Serial: "000001"}); err != nil {
		t.Errorf("V4 rejected %d objects: %v", len(p.Objects), err)
	}
}

func TestCompileRejectsBadOptions(t *testing.T) {
	if _, err := Compile(testProgram(), Options{Version: 6}); err == nil {
		t.Error("version 6 accepted")
	}
	if _, err := Compile(testProgram(), Options{Version: V3, Serial: "26"}); err == nil {
		t.Error("short serial accepted")
	}
}
