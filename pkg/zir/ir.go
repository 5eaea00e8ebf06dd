// Package zir defines the linear intermediate representation consumed by the
// Z-machine code generator in pkg/zcode, together with its CBOR wire format.
//
// A Program is produced by a front end (lexer/parser/semantic analysis, not
// part of this repository) and describes ordered functions of typed
// instructions plus the world model: objects with attributes, properties and
// vocabulary synonyms, rooms with exits, literal strings, and extra
// vocabulary. The IR is machine-shaped but address-free: every cross
// reference (labels, strings, functions, objects, dictionary words) is
// symbolic and only becomes a concrete address inside the backend.
package zir

// Identifier types. IDs are assigned by the front end and must be unique
// within their kind for one Program. Zero is reserved as "none".
type (
	// FuncID identifies a function.
	FuncID uint32
	// LabelID identifies an instruction-stream position within a function.
	LabelID uint32
	// StringID identifies a literal string.
	StringID uint32
	// ObjectID identifies a world object (rooms included).
	ObjectID uint16
)

// Program is one complete compilation unit.
type Program struct {
	// Functions in emission order. The backend preserves this order.
	Functions []*Function

	// Entry is the function executed when the story file starts.
	Entry FuncID

	// Objects in declaration order. Object numbering in the output image is
	// assigned by the backend from this order; the front end must not assume
	// any particular numbering beyond "stable across identical programs".
	Objects []*Object

	// Globals in slot order. At most 240 globals are representable.
	Globals []Global

	// Strings declares every literal string the program references by ID.
	Strings []StringDecl

	// Vocabulary lists words that must be present in the dictionary even if
	// no object or exit references them (verbs, prepositions).
	Vocabulary []string

	// PropertyDefaults maps property number to the default value returned
	// when an object lacks the property. Unlisted properties default to 0.
	PropertyDefaults map[uint8]uint16
}

// Global is one global variable declaration.
type Global struct {
	Name    string
	Initial uint16
}

// StringDecl binds a StringID to its text.
type StringDecl struct {
	ID   StringID
	Text string
}

// Function is an ordered sequence of instructions.
type Function struct {
	ID     FuncID
	Name   string
	Locals uint8 // number of local variables (0-15)
	Code   []Instr
}

// Object describes one world object. An Object with a non-nil Exits slice is
// a room; the backend materializes the exit set as three parallel property
// arrays (directions, kinds, data).
type Object struct {
	ID        ObjectID
	Name      string // identifier, for diagnostics
	ShortName string // printed name, encoded into the property table header
	Parent    ObjectID

	// Attributes lists the attribute numbers that start set.
	Attributes []uint8

	// Properties carries raw property payloads, keyed by property number.
	// Property numbers must be within the target version's range and must
	// not collide with the backend-reserved numbers (see zcode).
	Properties []Property

	// Names lists vocabulary synonyms; the backend stores their dictionary
	// addresses in a reserved property for parser matching.
	Names []string

	// Exits is nil for non-rooms. Order is preserved in the emitted arrays.
	Exits []Exit
}

// Property is one raw property payload.
type Property struct {
	Num  uint8
	Data []byte
}

// ExitKind distinguishes traversable exits from blocked ones.
type ExitKind uint8

const (
	// ExitNormal leads to a destination room.
	ExitNormal ExitKind = 0
	// ExitBlocked prints a message instead of moving the player.
	ExitBlocked ExitKind = 1
)

// Exit is one direction leaving a room.
type Exit struct {
	Direction string   // vocabulary word ("north", "east", ...)
	Kind      ExitKind
	Target    ObjectID // destination room, ExitNormal only
	Message   StringID // refusal text, ExitBlocked only
}

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Op enumerates the IR instruction set. The set is deliberately close to the
// target machine's semantic operations; the backend owns all encoding
// decisions (instruction form, opcode aliasing, operand widths).
type Op uint8

const (
	// OpLabel binds Instr.Label to the current position. Not an instruction.
	OpLabel Op = iota

	// OpJump transfers control to Instr.Label unconditionally.
	OpJump

	// Conditional branches. All take a Branch target; polarity is carried in
	// Branch.OnTrue, never inferred from operand values.
	OpJZ       // arg0 == 0
	OpJE       // arg0 == any of args 1..3
	OpJL       // arg0 < arg1 (signed)
	OpJG       // arg0 > arg1 (signed)
	OpJIn      // object arg0 is a direct child of object arg1
	OpTestAttr // object arg0 has attribute arg1

	// Assignment and stack.
	OpAssign // Dst = arg0
	OpPush   // push arg0
	OpPull   // Dst = popped value

	// Arithmetic and bitwise. Dst required.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpNot // unary, arg0

	// Calls and returns.
	OpCall   // call args[0] with args[1:]; Dst optional
	OpReturn // return arg0
	OpRTrue
	OpRFalse
	OpQuit

	// Memory.
	OpLoadW  // Dst = word at arg0 + 2*arg1
	OpLoadB  // Dst = byte at arg0 + arg1
	OpStoreW // word at arg0 + 2*arg1 = arg2
	OpStoreB // byte at arg0 + arg1 = arg2

	// Object model.
	OpGetProp     // Dst = property arg1 of object arg0
	OpPutProp     // property arg1 of object arg0 = arg2
	OpGetPropAddr // Dst = address of property arg1 of object arg0
	OpGetNextProp // Dst = next property number after arg1 on object arg0
	OpGetParent   // Dst = parent of object arg0
	OpGetSibling  // Dst = sibling of object arg0; Branch taken if non-zero
	OpGetChild    // Dst = first child of object arg0; Branch taken if non-zero
	OpInsertObj   // make object arg0 the first child of object arg1
	OpRemoveObj   // detach object arg0 from its parent
	OpSetAttr     // set attribute arg1 on object arg0
	OpClearAttr   // clear attribute arg1 on object arg0

	// Output and input.
	OpPrintPaddr // print string arg0 (a StringRef)
	OpPrintNum   // print arg0 as a signed decimal
	OpPrintChar  // print ZSCII character arg0
	OpPrintObj   // print the short name of object arg0
	OpNewLine
	OpRead // read a command into text buffer arg0, parse buffer arg1

	// OpRandom stores a random number in 1..arg0 into Dst.
	OpRandom
)

// ValueKind tags an operand Value.
type ValueKind uint8

const (
	// Const is an immediate 16-bit constant.
	Const ValueKind = iota
	// Var reads a variable (stack, local, or global).
	Var
	// StringRef references a literal string by ID; the backend substitutes
	// the string's packed address.
	StringRef
	// FuncRef references a function by ID (packed routine address).
	FuncRef
	// ObjectRef references an object by ID (backend-assigned number).
	ObjectRef
	// WordRef references a dictionary word (absolute dictionary address).
	WordRef
)

// Value is one instruction operand.
type Value struct {
	Kind   ValueKind
	Num    uint16   // Const value
	Varia  Variable // Var
	Str    StringID // StringRef
	Fn     FuncID   // FuncRef
	Obj    ObjectID // ObjectRef
	Word   string   // WordRef
}

// VarKind selects the variable bank.
type VarKind uint8

const (
	// Stack is the evaluation stack top.
	Stack VarKind = iota
	// Local is a routine local, index 0-14.
	Local
	// VarGlobal is a global variable, index 0-239.
	VarGlobal
)

// Variable names a storage location.
type Variable struct {
	Kind  VarKind
	Index uint8
}

// Branch is a conditional-branch target. OnTrue selects whether the branch
// fires when the condition holds or when it fails.
type Branch struct {
	Target LabelID
	OnTrue bool
}

// Instr is one IR instruction.
type Instr struct {
	Op     Op
	Args   []Value
	Dst    *Variable // result destination, for storing operations
	Branch *Branch   // branch target, for branching operations
	Label  LabelID   // OpLabel binding or OpJump target
}

// Convenience constructors, used heavily by tests and front ends.

// ConstVal returns a constant operand.
func ConstVal(v uint16) Value { return Value{Kind: Const, Num: v} }

// VarVal returns a variable-read operand.
func VarVal(v Variable) Value { return Value{Kind: Var, Varia: v} }

// StringVal returns a string-reference operand.
func StringVal(id StringID) Value { return Value{Kind: StringRef, Str: id} }

// FuncVal returns a function-reference operand.
func FuncVal(id FuncID) Value { return Value{Kind: FuncRef, Fn: id} }

// ObjectVal returns an object-reference operand.
func ObjectVal(id ObjectID) Value { return Value{Kind: ObjectRef, Obj: id} }

// WordVal returns a dictionary-word operand.
func WordVal(w string) Value { return Value{Kind: WordRef, Word: w} }

// StackVar is the evaluation stack destination/source.
func StackVar() Variable { return Variable{Kind: Stack} }

// LocalVar names routine local i (0-based).
func LocalVar(i uint8) Variable { return Variable{Kind: Local, Index: i} }

// GlobalVar names global slot i (0-based).
func GlobalVar(i uint8) Variable { return Variable{Kind: VarGlobal, Index: i} }

// StringText returns the text for id, or ok=false if the program does not
// declare it.
func (p *Program) StringText(id StringID) (string, bool) {
	for _, s := range p.Strings {
		if s.ID == id {
			return s.Text, true
		}
	}
	return "", false
}

// Function returns the function with the given ID, or nil.
func (p *Program) Function(id FuncID) *Function {
	for _, f := range p.Functions {
		if f.ID == id {
			return f
		}
	}
	return nil
}
