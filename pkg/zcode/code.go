package zcode

import (
	"fmt"

	"github.com/chazu/grotto/pkg/zir"
)

// IR lowering. Each zir instruction maps to exactly one target instruction;
// the encoder owns form selection and the resolver owns addresses, so the
// code here only chooses opcodes and converts operands.

const maxLocals = 15

// generateCode emits the bootstrap sequence and every routine body. The
// bootstrap is two raw instructions at the start of the code space (not a
// routine, so no header byte): call the entry routine, then quit when it
// returns. The initial PC in the header points at the first of them.
func (g *Generator) generateCode(prog *zir.Program) error {
	if prog.Function(prog.Entry) == nil {
		return fmt.Errorf("zcode: entry function %d is not declared", prog.Entry)
	}

	_, err := g.enc.Emit(Instruction{
		Op:       OpCallVS,
		Operands: []Operand{FunctionOperand(prog.Entry, "bootstrap")},
		HasStore: true,
		Store:    0, // result discarded on the stack; quit follows
	})
	if err != nil {
		return err
	}
	if _, err := g.enc.Emit(Instruction{Op: OpQuit}); err != nil {
		return err
	}

	for _, fn := range prog.Functions {
		if err := g.generateFunction(fn); err != nil {
			return fmt.Errorf("zcode: function %q: %w", fn.Name, err)
		}
	}
	return nil
}

// generateFunction emits one routine: aligned header, then the lowered body.
func (g *Generator) generateFunction(fn *zir.Function) error {
	if fn.Locals > maxLocals {
		return fmt.Errorf("%d locals exceed the limit of %d", fn.Locals, maxLocals)
	}
	g.asm.AlignTo(SpaceCode, g.version.PackedScale())
	off := g.asm.Len(SpaceCode)
	if _, dup := g.syms.funcs[fn.ID]; dup {
		return fmt.Errorf("duplicate function id %d", fn.ID)
	}
	g.syms.funcs[fn.ID] = off

	g.asm.AppendByte(SpaceCode, fn.Locals)
	if g.version.RoutineLocalDefaults() {
		for i := 0; i < int(fn.Locals); i++ {
			g.asm.AppendWord(SpaceCode, 0)
		}
	}

	for i := range fn.Code {
		if err := g.lower(fn, &fn.Code[i]); err != nil {
			return fmt.Errorf("instruction %d (%v): %w", i, fn.Code[i].Op, err)
		}
	}
	return nil
}

// lower translates one IR instruction. Argument counts and the presence of
// Dst/Branch are validated here; everything past that is the encoder's job.
func (g *Generator) lower(fn *zir.Function, in *zir.Instr) error {
	switch in.Op {
	case zir.OpLabel:
		return g.syms.bindLabel(in.Label, g.asm.Len(SpaceCode), fn.Name)

	case zir.OpJump:
		return g.emit(Instruction{
			Op:       OpJumpOp,
			Operands: []Operand{LabelOperand(in.Label, fn.Name)},
		})

	case zir.OpJZ:
		return g.emitBranching(fn, in, OpJZ, 1)
	case zir.OpJE:
		if len(in.Args) < 2 || len(in.Args) > 4 {
			return fmt.Errorf("want 2-4 args, got %d", len(in.Args))
		}
		return g.emitBranching(fn, in, OpJE, len(in.Args))
	case zir.OpJL:
		return g.emitBranching(fn, in, OpJL, 2)
	case zir.OpJG:
		return g.emitBranching(fn, in, OpJG, 2)
	case zir.OpJIn:
		return g.emitBranching(fn, in, OpJIn, 2)
	case zir.OpTestAttr:
		return g.emitBranching(fn, in, OpTestAttr, 2)

	case zir.OpAssign:
		// store's first operand is the destination's variable NUMBER as a
		// small constant, not a variable read.
		if in.Dst == nil {
			return fmt.Errorf("assign needs a destination")
		}
		dst, err := variableNumber(*in.Dst, fn)
		if err != nil {
			return err
		}
		ops, err := g.operands(fn, in.Args, 1)
		if err != nil {
			return err
		}
		return g.emit(Instruction{
			Op:       OpStore,
			Operands: []Operand{{Mode: OperandSmall, Value: uint16(dst)}, ops[0]},
		})

	case zir.OpPush:
		return g.emitPlain(fn, in, OpPush, 1)
	case zir.OpPull:
		if in.Dst == nil {
			return fmt.Errorf("pull needs a destination")
		}
		dst, err := variableNumber(*in.Dst, fn)
		if err != nil {
			return err
		}
		// pull takes the destination's variable number as its operand.
		return g.emit(Instruction{
			Op:       OpPull,
			Operands: []Operand{{Mode: OperandSmall, Value: uint16(dst)}},
		})

	case zir.OpAdd:
		return g.emitStoring(fn, in, OpAdd, 2)
	case zir.OpSub:
		return g.emitStoring(fn, in, OpSub, 2)
	case zir.OpMul:
		return g.emitStoring(fn, in, OpMul, 2)
	case zir.OpDiv:
		return g.emitStoring(fn, in, OpDiv, 2)
	case zir.OpMod:
		return g.emitStoring(fn, in, OpMod, 2)
	case zir.OpAnd:
		return g.emitStoring(fn, in, OpAnd, 2)
	case zir.OpOr:
		return g.emitStoring(fn, in, OpOr, 2)
	case zir.OpNot:
		if g.version >= V5 {
			return g.emitStoring(fn, in, OpNotV, 1)
		}
		return g.emitStoring(fn, in, OpNot1, 1)

	case zir.OpCall:
		return g.lowerCall(fn, in)

	case zir.OpReturn:
		return g.emitPlain(fn, in, OpRet, 1)
	case zir.OpRTrue:
		return g.emit(Instruction{Op: OpRTrue})
	case zir.OpRFalse:
		return g.emit(Instruction{Op: OpRFalse})
	case zir.OpQuit:
		return g.emit(Instruction{Op: OpQuit})

	case zir.OpLoadW:
		return g.emitStoring(fn, in, OpLoadW, 2)
	case zir.OpLoadB:
		return g.emitStoring(fn, in, OpLoadB, 2)
	case zir.OpStoreW:
		return g.emitPlain(fn, in, OpStoreW, 3)
	case zir.OpStoreB:
		return g.emitPlain(fn, in, OpStoreB, 3)

	case zir.OpGetProp:
		return g.emitStoring(fn, in, OpGetProp, 2)
	case zir.OpPutProp:
		return g.emitPlain(fn, in, OpPutProp, 3)
	case zir.OpGetPropAddr:
		return g.emitStoring(fn, in, OpGetPropAddr, 2)
	case zir.OpGetNextProp:
		return g.emitStoring(fn, in, OpGetNextProp, 2)
	case zir.OpGetParent:
		return g.emitStoring(fn, in, OpGetParent, 1)
	case zir.OpGetSibling, zir.OpGetChild:
		// Both store the result AND branch on it being non-zero; the IR must
		// supply both so neither effect is silently dropped.
		op := Opcode(OpGetSibling)
		if in.Op == zir.OpGetChild {
			op = OpGetChild
		}
		if in.Dst == nil || in.Branch == nil {
			return fmt.Errorf("%s needs both a destination and a branch", op)
		}
		dst, err := variableNumber(*in.Dst, fn)
		if err != nil {
			return err
		}
		ops, err := g.operands(fn, in.Args, 1)
		if err != nil {
			return err
		}
		return g.emit(Instruction{
			Op:       op,
			Operands: ops,
			HasStore: true,
			Store:    dst,
			Branch:   &BranchArg{Target: in.Branch.Target, OnTrue: in.Branch.OnTrue},
		})
	case zir.OpInsertObj:
		return g.emitPlain(fn, in, OpInsertObj, 2)
	case zir.OpRemoveObj:
		return g.emitPlain(fn, in, OpRemoveObj, 1)
	case zir.OpSetAttr:
		return g.emitPlain(fn, in, OpSetAttr, 2)
	case zir.OpClearAttr:
		return g.emitPlain(fn, in, OpClearAttr, 2)

	case zir.OpPrintPaddr:
		return g.emitPlain(fn, in, OpPrintPaddr, 1)
	case zir.OpPrintNum:
		return g.emitPlain(fn, in, OpPrintNum, 1)
	case zir.OpPrintChar:
		return g.emitPlain(fn, in, OpPrintChar, 1)
	case zir.OpPrintObj:
		return g.emitPlain(fn, in, OpPrintObj, 1)
	case zir.OpNewLine:
		return g.emit(Instruction{Op: OpNewLine})

	case zir.OpRead:
		if g.version >= V5 {
			return g.emitStoring(fn, in, OpSRead, 2)
		}
		return g.emitPlain(fn, in, OpSRead, 2)

	case zir.OpRandom:
		return g.emitStoring(fn, in, OpRandom, 1)

	default:
		return fmt.Errorf("unknown IR op %d", in.Op)
	}
}

// lowerCall selects among the call opcodes by argument count, version, and
// whether the result is wanted. V3 only has call (VAR, storing); discarded
// results are popped explicitly. V4 adds the 1- and 2-operand storing forms
// and call_vs2; V5 adds the non-storing forms.
func (g *Generator) lowerCall(fn *zir.Function, in *zir.Instr) error {
	if len(in.Args) < 1 {
		return fmt.Errorf("call needs a callee")
	}
	ops, err := g.operands(fn, in.Args, len(in.Args))
	if err != nil {
		return err
	}
	n := len(ops) // callee included

	var op Opcode
	switch {
	case n <= 4:
		op = OpCallVS
	case g.version >= V4 && n <= 8:
		op = OpCallVS2
	default:
		return fmt.Errorf("call with %d operands does not fit %s", n, g.version)
	}

	if in.Dst != nil {
		dst, err := variableNumber(*in.Dst, fn)
		if err != nil {
			return err
		}
		if g.version >= V4 && n == 1 {
			op = OpCall1S
		} else if g.version >= V4 && n == 2 {
			op = OpCall2S
		}
		return g.emit(Instruction{Op: op, Operands: ops, HasStore: true, Store: dst})
	}

	if g.version >= V5 {
		switch {
		case n == 2:
			op = OpCall2N
		case n <= 4:
			op = OpCallVN
		default:
			op = OpCallVN2
		}
		return g.emit(Instruction{Op: op, Operands: ops})
	}
	// Pre-v5 every call stores; park the result on the stack and drop it.
	if err := g.emit(Instruction{Op: op, Operands: ops, HasStore: true, Store: 0}); err != nil {
		return err
	}
	return g.emit(Instruction{Op: OpPop})
}

// emit funnels every lowered instruction through the encoder.
func (g *Generator) emit(in Instruction) error {
	_, err := g.enc.Emit(in)
	return err
}

// emitPlain lowers an instruction with a fixed argument count and no store
// or branch.
func (g *Generator) emitPlain(fn *zir.Function, in *zir.Instr, op Opcode, nargs int) error {
	if in.Dst != nil {
		return fmt.Errorf("%s does not store a result", op)
	}
	if in.Branch != nil {
		return fmt.Errorf("%s does not branch", op)
	}
	ops, err := g.operands(fn, in.Args, nargs)
	if err != nil {
		return err
	}
	return g.emit(Instruction{Op: op, Operands: ops})
}

// emitStoring lowers an instruction that writes its result to Dst.
func (g *Generator) emitStoring(fn *zir.Function, in *zir.Instr, op Opcode, nargs int) error {
	if in.Dst == nil {
		return fmt.Errorf("%s needs a destination", op)
	}
	dst, err := variableNumber(*in.Dst, fn)
	if err != nil {
		return err
	}
	ops, err := g.operands(fn, in.Args, nargs)
	if err != nil {
		return err
	}
	return g.emit(Instruction{Op: op, Operands: ops, HasStore: true, Store: dst})
}

// emitBranching lowers a conditional branch.
func (g *Generator) emitBranching(fn *zir.Function, in *zir.Instr, op Opcode, nargs int) error {
	if in.Branch == nil {
		return fmt.Errorf("%s needs a branch target", op)
	}
	ops, err := g.operands(fn, in.Args, nargs)
	if err != nil {
		return err
	}
	return g.emit(Instruction{
		Op:       op,
		Operands: ops,
		Branch:   &BranchArg{Target: in.Branch.Target, OnTrue: in.Branch.OnTrue},
	})
}

// operands converts IR values, enforcing the expected count.
func (g *Generator) operands(fn *zir.Function, args []zir.Value, want int) ([]Operand, error) {
	if len(args) != want {
		return nil, fmt.Errorf("want %d args, got %d", want, len(args))
	}
	out := make([]Operand, len(args))
	for i, a := range args {
		o, err := g.operand(fn, a)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = o
	}
	return out, nil
}

// operand converts one IR value to an encoder operand. Symbolic references
// become placeholder-carrying operands for phase 2; validation that the
// target exists happens here when possible, at resolve time otherwise.
func (g *Generator) operand(fn *zir.Function, v zir.Value) (Operand, error) {
	switch v.Kind {
	case zir.Const:
		return ConstOperand(v.Num), nil
	case zir.Var:
		num, err := variableNumber(v.Varia, fn)
		if err != nil {
			return Operand{}, err
		}
		return VarOperand(num), nil
	case zir.StringRef:
		if _, ok := g.strs.Offset(v.Str); !ok {
			return Operand{}, fmt.Errorf("string %d is not declared", v.Str)
		}
		return StringOperand(v.Str, fn.Name), nil
	case zir.FuncRef:
		return FunctionOperand(v.Fn, fn.Name), nil
	case zir.ObjectRef:
		if _, ok := g.syms.objects[v.Obj]; !ok {
			return Operand{}, fmt.Errorf("object %d is not declared", v.Obj)
		}
		return ObjectOperand(v.Obj, fn.Name), nil
	case zir.WordRef:
		return RefOperand(UnresolvedReference{Kind: RefDictWord, Word: v.Word, Site: fn.Name}), nil
	default:
		return Operand{}, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

// variableNumber maps an IR variable to the target's variable numbering:
// 0 is the stack, 1-15 the locals, 16-255 the globals.
func variableNumber(v zir.Variable, fn *zir.Function) (uint8, error) {
	switch v.Kind {
	case zir.Stack:
		return 0, nil
	case zir.Local:
		if v.Index >= fn.Locals {
			return 0, fmt.Errorf("local %d out of range (function declares %d)", v.Index, fn.Locals)
		}
		return 1 + v.Index, nil
	case zir.VarGlobal:
		if int(v.Index) >= globalSlots {
			return 0, fmt.Errorf("global %d out of range 0-%d", v.Index, globalSlots-1)
		}
		return 16 + v.Index, nil
	default:
		return 0, fmt.Errorf("unknown variable kind %d", v.Kind)
	}
}
