package zcode

import "fmt"

// Opcode identity is a closed tagged union over the four operand families.
// The same 5-bit number means different instructions in different families
// (0x01 is je in 2OP but storew in VAR), so a raw byte is never used as an
// identity anywhere in this package: form and aliasing decisions are
// exhaustive switches over the family types below.

// Family is the operand family of an opcode.
type Family uint8

const (
	Family0OP Family = iota
	Family1OP
	Family2OP
	FamilyVAR
)

func (f Family) String() string {
	switch f {
	case Family0OP:
		return "0OP"
	case Family1OP:
		return "1OP"
	case Family2OP:
		return "2OP"
	case FamilyVAR:
		return "VAR"
	default:
		return fmt.Sprintf("Family(%d)", uint8(f))
	}
}

// Opcode is implemented only by Op0, Op1, Op2 and OpVar.
type Opcode interface {
	Family() Family
	Number() uint8
	String() string

	isOpcode()
}

// Op0 is a zero-operand opcode.
type Op0 uint8

// Op1 is a one-operand opcode.
type Op1 uint8

// Op2 is a two-operand-family opcode (encodable in long or variable form).
type Op2 uint8

// OpVar is a variable-operand opcode.
type OpVar uint8

func (o Op0) Family() Family   { return Family0OP }
func (o Op1) Family() Family   { return Family1OP }
func (o Op2) Family() Family   { return Family2OP }
func (o OpVar) Family() Family { return FamilyVAR }

func (o Op0) Number() uint8   { return uint8(o) }
func (o Op1) Number() uint8   { return uint8(o) }
func (o Op2) Number() uint8   { return uint8(o) }
func (o OpVar) Number() uint8 { return uint8(o) }

func (o Op0) isOpcode()   {}
func (o Op1) isOpcode()   {}
func (o Op2) isOpcode()   {}
func (o OpVar) isOpcode() {}

const (
	// ========================================================================
	// 0OP (short form, 0xB0 | number)
	// ========================================================================

	OpRTrue     Op0 = 0x00 // return true
	OpRFalse    Op0 = 0x01 // return false
	OpPrint     Op0 = 0x02 // print inline literal (not emitted by this backend)
	OpPrintRet  Op0 = 0x03 // print inline literal, then return true
	OpNop       Op0 = 0x04
	OpSave      Op0 = 0x05 // branch in v3
	OpRestore   Op0 = 0x06 // branch in v3
	OpRestart   Op0 = 0x07
	OpRetPopped Op0 = 0x08 // return popped value
	OpPop       Op0 = 0x09
	OpQuit      Op0 = 0x0A
	OpNewLine   Op0 = 0x0B
	OpShowStatus Op0 = 0x0C // v3 only
	OpVerify    Op0 = 0x0D // checksum verify, branch

	// ========================================================================
	// 1OP (short form, 0x80 | type<<4 | number)
	// ========================================================================

	OpJZ         Op1 = 0x00 // branch if zero
	OpGetSibling Op1 = 0x01 // store + branch if non-zero
	OpGetChild   Op1 = 0x02 // store + branch if non-zero
	OpGetParent  Op1 = 0x03 // store
	OpGetPropLen Op1 = 0x04 // store
	OpInc        Op1 = 0x05
	OpDec        Op1 = 0x06
	OpPrintAddr  Op1 = 0x07 // print string at byte address
	OpCall1S     Op1 = 0x08 // v4+, store
	OpRemoveObj  Op1 = 0x09
	OpPrintObj   Op1 = 0x0A
	OpRet        Op1 = 0x0B
	OpJumpOp     Op1 = 0x0C // signed word offset operand
	OpPrintPaddr Op1 = 0x0D // print string at packed address
	OpLoad       Op1 = 0x0E // store
	OpNot1       Op1 = 0x0F // store; v1-4 only

	// ========================================================================
	// 2OP (long form 0x00-0x7F, or variable form 0xC0 | number)
	// ========================================================================

	OpJE          Op2 = 0x01 // branch; up to 4 operands in variable form
	OpJL          Op2 = 0x02 // branch
	OpJG          Op2 = 0x03 // branch
	OpDecChk      Op2 = 0x04 // branch
	OpIncChk      Op2 = 0x05 // branch
	OpJIn         Op2 = 0x06 // branch
	OpTest        Op2 = 0x07 // branch
	OpOr          Op2 = 0x08 // store
	OpAnd         Op2 = 0x09 // store
	OpTestAttr    Op2 = 0x0A // branch
	OpSetAttr     Op2 = 0x0B
	OpClearAttr   Op2 = 0x0C
	OpStore       Op2 = 0x0D
	OpInsertObj   Op2 = 0x0E
	OpLoadW       Op2 = 0x0F // store
	OpLoadB       Op2 = 0x10 // store
	OpGetProp     Op2 = 0x11 // store
	OpGetPropAddr Op2 = 0x12 // store
	OpGetNextProp Op2 = 0x13 // store
	OpAdd         Op2 = 0x14 // store
	OpSub         Op2 = 0x15 // store
	OpMul         Op2 = 0x16 // store
	OpDiv         Op2 = 0x17 // store
	OpMod         Op2 = 0x18 // store
	OpCall2S      Op2 = 0x19 // v4+, store
	OpCall2N      Op2 = 0x1A // v5+

	// ========================================================================
	// VAR (variable form, 0xE0 | number)
	// ========================================================================

	OpCallVS       OpVar = 0x00 // store ("call" in v3)
	OpStoreW       OpVar = 0x01
	OpStoreB       OpVar = 0x02
	OpPutProp      OpVar = 0x03
	OpSRead        OpVar = 0x04 // store in v5+
	OpPrintChar    OpVar = 0x05
	OpPrintNum     OpVar = 0x06
	OpRandom       OpVar = 0x07 // store
	OpPush         OpVar = 0x08
	OpPull         OpVar = 0x09
	OpSplitWindow  OpVar = 0x0A
	OpSetWindow    OpVar = 0x0B
	OpCallVS2      OpVar = 0x0C // v4+, store, up to 8 operands
	OpEraseWindow  OpVar = 0x0D // v4+
	OpOutputStream OpVar = 0x13
	OpInputStream  OpVar = 0x14
	OpSoundEffect  OpVar = 0x15
	OpReadChar     OpVar = 0x16 // v4+, store
	OpScanTable    OpVar = 0x17 // v4+, store + branch
	OpNotV         OpVar = 0x18 // v5+, store (replaces the 1OP form)
	OpCallVN       OpVar = 0x19 // v5+
	OpCallVN2      OpVar = 0x1A // v5+, up to 8 operands
	OpTokenise     OpVar = 0x1B // v5+
)

// opInfo is static metadata about one opcode.
type opInfo struct {
	name   string
	store  bool
	branch bool
}

var op0Info = map[Op0]opInfo{
	OpRTrue:      {name: "rtrue"},
	OpRFalse:     {name: "rfalse"},
	OpPrint:      {name: "print"},
	OpPrintRet:   {name: "print_ret"},
	OpNop:        {name: "nop"},
	OpSave:       {name: "save", branch: true},
	OpRestore:    {name: "restore", branch: true},
	OpRestart:    {name: "restart"},
	OpRetPopped:  {name: "ret_popped"},
	OpPop:        {name: "pop"},
	OpQuit:       {name: "quit"},
	OpNewLine:    {name: "new_line"},
	OpShowStatus: {name: "show_status"},
	OpVerify:     {name: "verify", branch: true},
}

var op1Info = map[Op1]opInfo{
	OpJZ:         {name: "jz", branch: true},
	OpGetSibling: {name: "get_sibling", store: true, branch: true},
	OpGetChild:   {name: "get_child", store: true, branch: true},
	OpGetParent:  {name: "get_parent", store: true},
	OpGetPropLen: {name: "get_prop_len", store: true},
	OpInc:        {name: "inc"},
	OpDec:        {name: "dec"},
	OpPrintAddr:  {name: "print_addr"},
	OpCall1S:     {name: "call_1s", store: true},
	OpRemoveObj:  {name: "remove_obj"},
	OpPrintObj:   {name: "print_obj"},
	OpRet:        {name: "ret"},
	OpJumpOp:     {name: "jump"},
	OpPrintPaddr: {name: "print_paddr"},
	OpLoad:       {name: "load", store: true},
	OpNot1:       {name: "not", store: true},
}

var op2Info = map[Op2]opInfo{
	OpJE:          {name: "je", branch: true},
	OpJL:          {name: "jl", branch: true},
	OpJG:          {name: "jg", branch: true},
	OpDecChk:      {name: "dec_chk", branch: true},
	OpIncChk:      {name: "inc_chk", branch: true},
	OpJIn:         {name: "jin", branch: true},
	OpTest:        {name: "test", branch: true},
	OpOr:          {name: "or", store: true},
	OpAnd:         {name: "and", store: true},
	OpTestAttr:    {name: "test_attr", branch: true},
	OpSetAttr:     {name: "set_attr"},
	OpClearAttr:   {name: "clear_attr"},
	OpStore:       {name: "store"},
	OpInsertObj:   {name: "insert_obj"},
	OpLoadW:       {name: "loadw", store: true},
	OpLoadB:       {name: "loadb", store: true},
	OpGetProp:     {name: "get_prop", store: true},
	OpGetPropAddr: {name: "get_prop_addr", store: true},
	OpGetNextProp: {name: "get_next_prop", store: true},
	OpAdd:         {name: "add", store: true},
	OpSub:         {name: "sub", store: true},
	OpMul:         {name: "mul", store: true},
	OpDiv:         {name: "div", store: true},
	OpMod:         {name: "mod", store: true},
	OpCall2S:      {name: "call_2s", store: true},
	OpCall2N:      {name: "call_2n"},
}

var opVarInfo = map[OpVar]opInfo{
	OpCallVS:       {name: "call_vs", store: true},
	OpStoreW:       {name: "storew"},
	OpStoreB:       {name: "storeb"},
	OpPutProp:      {name: "put_prop"},
	OpSRead:        {name: "sread"},
	OpPrintChar:    {name: "print_char"},
	OpPrintNum:     {name: "print_num"},
	OpRandom:       {name: "random", store: true},
	OpPush:         {name: "push"},
	OpPull:         {name: "pull"},
	OpSplitWindow:  {name: "split_window"},
	OpSetWindow:    {name: "set_window"},
	OpCallVS2:      {name: "call_vs2", store: true},
	OpEraseWindow:  {name: "erase_window"},
	OpOutputStream: {name: "output_stream"},
	OpInputStream:  {name: "input_stream"},
	OpSoundEffect:  {name: "sound_effect"},
	OpReadChar:     {name: "read_char", store: true},
	OpScanTable:    {name: "scan_table", store: true, branch: true},
	OpNotV:         {name: "not", store: true},
	OpCallVN:       {name: "call_vn"},
	OpCallVN2:      {name: "call_vn2"},
	OpTokenise:     {name: "tokenise"},
}

func infoFor(op Opcode) (opInfo, bool) {
	switch o := op.(type) {
	case Op0:
		info, ok := op0Info[o]
		return info, ok
	case Op1:
		info, ok := op1Info[o]
		return info, ok
	case Op2:
		info, ok := op2Info[o]
		return info, ok
	case OpVar:
		info, ok := opVarInfo[o]
		return info, ok
	default:
		return opInfo{}, false
	}
}

func (o Op0) String() string   { return opString(o) }
func (o Op1) String() string   { return opString(o) }
func (o Op2) String() string   { return opString(o) }
func (o OpVar) String() string { return opString(o) }

func opString(op Opcode) string {
	if info, ok := infoFor(op); ok {
		return info.name
	}
	return fmt.Sprintf("%s:0x%02x", op.Family(), op.Number())
}

// Stores reports whether op writes a result-destination byte.
func Stores(op Opcode) bool {
	info, _ := infoFor(op)
	return info.store
}

// Branches reports whether op carries a branch field.
func Branches(op Opcode) bool {
	info, _ := infoFor(op)
	return info.branch
}

// Known reports whether op is in the documented opcode table.
func Known(op Opcode) bool {
	_, ok := infoFor(op)
	return ok
}

// ResolveContextDependent maps a raw numeric opcode to its tagged identity
// for the small fixed set of codes whose meaning depends on context. The
// decision inspects operand count AND result-destination presence together;
// operand count alone is not sufficient (store takes one operand plus a
// destination, print_paddr takes one operand and no destination, both are
// number 0x0D).
func ResolveContextDependent(num uint8, operandCount int, hasStore bool) (Opcode, error) {
	switch num {
	case 0x00:
		// call is VAR regardless of how few arguments it gets.
		return OpCallVS, nil
	case 0x03:
		if operandCount == 2 {
			return OpJG, nil // jg, branch
		}
		if operandCount == 3 && !hasStore {
			return OpPutProp, nil
		}
	case 0x04:
		if operandCount == 1 && hasStore {
			return OpGetPropLen, nil
		}
		if operandCount >= 2 {
			return OpSRead, nil
		}
	case 0x05:
		if operandCount == 2 {
			return OpIncChk, nil
		}
		if operandCount == 1 && !hasStore {
			return OpPrintChar, nil
		}
	case 0x08:
		if operandCount == 2 && hasStore {
			return OpOr, nil
		}
		if operandCount == 1 && !hasStore {
			return OpPush, nil
		}
	case 0x09:
		if operandCount == 2 && hasStore {
			return OpAnd, nil
		}
		if operandCount == 1 && !hasStore {
			return OpPull, nil
		}
	case 0x0D:
		switch {
		case operandCount == 1 && !hasStore:
			return OpPrintPaddr, nil
		case operandCount <= 2:
			return OpStore, nil
		default:
			return OpOutputStream, nil
		}
	}
	return nil, fmt.Errorf("zcode: raw opcode 0x%02x with %d operands (store=%v) has no unambiguous identity; use a tagged opcode",
		num, operandCount, hasStore)
}
