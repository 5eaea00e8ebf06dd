package zcode

import (
	"fmt"
	"strings"
)

// Instruction decoder. Compile's counterpart for one instruction at a time:
// tests decode what the encoder emitted, and the CLI's dump mode renders
// routines for inspection. Decoding never consults symbol tables; it sees
// exactly what an interpreter would.

// DecodedOperand is one operand as read from memory.
type DecodedOperand struct {
	Mode  OperandMode
	Value uint16
}

func (o DecodedOperand) String() string {
	if o.Mode == OperandVariable {
		return varName(uint8(o.Value))
	}
	return fmt.Sprintf("0x%02x", o.Value)
}

// DecodedBranch is a decoded branch field. Offsets 0 and 1 encode return
// false/true instead of a transfer; Returns distinguishes them.
type DecodedBranch struct {
	OnTrue  bool
	Offset  int
	Target  int  // absolute address, when !Returns
	Returns bool // offset 0 or 1: return Offset as the routine result
}

// Decoded is one instruction read back from an image.
type Decoded struct {
	Addr     int
	Op       Opcode
	Operands []DecodedOperand
	Store    uint8
	HasStore bool
	Branch   *DecodedBranch
	Text     string // inline literal of print / print_ret
	Next     int    // address of the following instruction
}

// DecodeInstruction reads the instruction at addr. mem is the whole image,
// addresses are absolute.
func DecodeInstruction(v Version, mem []byte, addr int) (Decoded, error) {
	d := Decoded{Addr: addr}
	r := &reader{mem: mem, pos: addr}

	b, err := r.byte()
	if err != nil {
		return d, err
	}

	var modes []OperandMode
	switch {
	case b >= 0xC0: // variable form
		n := b & 0x1F
		typeBytes := 1
		if b&0x20 != 0 {
			d.Op = OpVar(n)
			if d.Op == OpCallVS2 || d.Op == OpCallVN2 {
				typeBytes = 2
			}
		} else {
			d.Op = Op2(n)
		}
		for i := 0; i < typeBytes; i++ {
			tb, err := r.byte()
			if err != nil {
				return d, err
			}
			for shift := 6; shift >= 0; shift -= 2 {
				m := OperandMode(tb >> shift & 3)
				if m == operandOmitted {
					continue
				}
				modes = append(modes, m)
			}
		}
	case b >= 0x80: // short form
		m := OperandMode(b >> 4 & 3)
		if m == operandOmitted {
			d.Op = Op0(b & 0x0F)
		} else {
			d.Op = Op1(b & 0x0F)
			modes = []OperandMode{m}
		}
	default: // long form, always 2OP
		d.Op = Op2(b & 0x1F)
		m1, m2 := OperandSmall, OperandSmall
		if b&0x40 != 0 {
			m1 = OperandVariable
		}
		if b&0x20 != 0 {
			m2 = OperandVariable
		}
		modes = []OperandMode{m1, m2}
	}
	if !Known(d.Op) {
		return d, fmt.Errorf("zcode: undecodable opcode byte 0x%02x at 0x%04x", b, addr)
	}

	for _, m := range modes {
		var val uint16
		if m == OperandLarge {
			w, err := r.word()
			if err != nil {
				return d, err
			}
			val = w
		} else {
			b, err := r.byte()
			if err != nil {
				return d, err
			}
			val = uint16(b)
		}
		d.Operands = append(d.Operands, DecodedOperand{Mode: m, Value: val})
	}

	if d.Op == OpPrint || d.Op == OpPrintRet {
		text, n := DecodeString(mem, r.pos)
		d.Text = text
		r.pos += n
	}

	if decodeStores(v, d.Op) {
		s, err := r.byte()
		if err != nil {
			return d, err
		}
		d.Store = s
		d.HasStore = true
	}

	if Branches(d.Op) {
		br, err := r.branch()
		if err != nil {
			return d, err
		}
		d.Branch = br
	}

	d.Next = r.pos
	return d, nil
}

// DecodeRoutine decodes instructions from addr until every return path is
// emitted: it stops after an unconditional control transfer (ret, rtrue,
// rfalse, ret_popped, quit, jump, print_ret) with no decoded instruction
// jumping past it. Good enough for straight-line inspection; it is not a
// full control-flow recovery.
func DecodeRoutine(v Version, mem []byte, addr int) ([]Decoded, error) {
	var out []Decoded
	maxSeen := addr
	for pos := addr; ; {
		d, err := DecodeInstruction(v, mem, pos)
		if err != nil {
			return out, err
		}
		out = append(out, d)
		if d.Branch != nil && !d.Branch.Returns && d.Branch.Target > maxSeen {
			maxSeen = d.Branch.Target
		}
		if d.Op == OpJumpOp && len(d.Operands) == 1 {
			if t := d.Addr + 1 + 2 + int(int16(d.Operands[0].Value)) - 2; t > maxSeen {
				maxSeen = t
			}
		}
		pos = d.Next
		if terminates(d.Op) && pos > maxSeen {
			return out, nil
		}
	}
}

func terminates(op Opcode) bool {
	switch op {
	case OpRet, OpRTrue, OpRFalse, OpRetPopped, OpQuit, OpJumpOp, OpPrintRet:
		return true
	}
	return false
}

// decodeStores mirrors the encoder's version-aware store decision.
func decodeStores(v Version, op Opcode) bool {
	if op == OpSRead {
		return v >= V5
	}
	return Stores(op)
}

func (d Decoded) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "0x%04x: %s", d.Addr, d.Op)
	for _, o := range d.Operands {
		sb.WriteByte(' ')
		sb.WriteString(o.String())
	}
	if d.Text != "" {
		fmt.Fprintf(&sb, " %q", d.Text)
	}
	if d.HasStore {
		fmt.Fprintf(&sb, " -> %s", varName(d.Store))
	}
	if d.Branch != nil {
		pol := "~"
		if d.Branch.OnTrue {
			pol = ""
		}
		if d.Branch.Returns {
			fmt.Fprintf(&sb, " ?%sret%d", pol, d.Branch.Offset)
		} else {
			fmt.Fprintf(&sb, " ?%s0x%04x", pol, d.Branch.Target)
		}
	}
	return sb.String()
}

// varName renders a variable number the way disassemblies conventionally do.
func varName(v uint8) string {
	switch {
	case v == 0:
		return "sp"
	case v < 16:
		return fmt.Sprintf("local%d", v-1)
	default:
		return fmt.Sprintf("g%d", v-16)
	}
}

type reader struct {
	mem []byte
	pos int
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.mem) {
		return 0, fmt.Errorf("zcode: decode past end of image at 0x%04x", r.pos)
	}
	b := r.mem[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) word() (uint16, error) {
	hi, err := r.byte()
	if err != nil {
		return 0, err
	}
	lo, err := r.byte()
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

func (r *reader) branch() (*DecodedBranch, error) {
	b1, err := r.byte()
	if err != nil {
		return nil, err
	}
	br := &DecodedBranch{OnTrue: b1&0x80 != 0}
	var off int
	if b1&0x40 != 0 { // short form, 6-bit unsigned
		off = int(b1 & 0x3F)
	} else {
		b2, err := r.byte()
		if err != nil {
			return nil, err
		}
		off = int(b1&0x3F)<<8 | int(b2)
		if off >= 1<<13 {
			off -= 1 << 14
		}
	}
	br.Offset = off
	if off == 0 || off == 1 {
		br.Returns = true
	} else {
		br.Target = r.pos + off - 2
	}
	return br, nil
}
