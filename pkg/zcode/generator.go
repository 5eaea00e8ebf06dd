package zcode

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/grotto/pkg/zir"
)

var log = commonlog.GetLogger("grotto.zcode")

// Options selects the target format and the identity fields stamped into
// the header. Serial is six ASCII characters; it comes from configuration,
// never from the clock, so that identical inputs produce identical images.
type Options struct {
	Version Version
	Release uint16
	Serial  string
}

// DefaultSerial is used when Options.Serial is empty.
const DefaultSerial = "000001"

// Generator owns all mutable state for one compilation run: space buffers,
// reference lists, symbol tables, builders. Nothing is shared across runs
// and nothing survives past Compile.
type Generator struct {
	version Version
	opts    Options
	runID   string

	asm  *Assembler
	res  *Resolver
	enc  *Encoder
	dict *Dictionary
	strs *StringTable
	tree *Tree
	syms *symbols
}

// Compile transforms one IR program into a complete story file image. On
// any error no image is returned; there is no partial output mode.
func Compile(prog *zir.Program, opts Options) ([]byte, error) {
	if !opts.Version.Valid() {
		return nil, fmt.Errorf("zcode: unsupported target version %d", uint8(opts.Version))
	}
	if opts.Serial == "" {
		opts.Serial = DefaultSerial
	}
	if len(opts.Serial) != 6 {
		return nil, fmt.Errorf("zcode: serial %q must be 6 characters", opts.Serial)
	}

	g := &Generator{
		version: opts.Version,
		opts:    opts,
		runID:   uuid.NewString(),
		asm:     NewAssembler(opts.Version),
		res:     NewResolver(),
		dict:    NewDictionary(opts.Version),
		strs:    NewStringTable(opts.Version),
		tree:    NewTree(),
		syms:    newSymbols(),
	}
	g.enc = NewEncoder(opts.Version, g.asm, g.res)

	log.Infof("run %s: compiling %d functions, %d objects, %d strings for %s",
		g.runID, len(prog.Functions), len(prog.Objects), len(prog.Strings), g.version)

	// Phase 1: content emission into independently growing spaces.
	// Vocabulary and text come first because object tables embed their
	// addresses; code comes last and defers everything it cannot know.
	g.collectVocabulary(prog)
	if err := g.dict.Freeze(g.asm); err != nil {
		return nil, err
	}
	log.Debugf("run %s: dictionary frozen with %d entries", g.runID, g.dict.Count())

	for _, s := range prog.Strings {
		g.strs.Intern(s.ID, s.Text)
	}
	g.strs.Freeze(g.asm)
	log.Debugf("run %s: string table frozen with %d distinct strings", g.runID, g.strs.Count())

	if err := g.generateGlobals(prog); err != nil {
		return nil, err
	}
	if err := g.generateObjects(prog); err != nil {
		return nil, err
	}
	if err := g.generateCode(prog); err != nil {
		return nil, err
	}

	// Phase 2: sizes are final; fix bases, then patch every deferred
	// reference and branch in place.
	g.asm.Layout()
	if err := g.res.ResolveAll(g.asm, g.syms, g.strs, g.dict); err != nil {
		return nil, err
	}
	if n := g.res.Pending(); n != 0 {
		return nil, fmt.Errorf("zcode: %d references left unresolved after patching", n)
	}

	if err := g.writeHeader(); err != nil {
		return nil, err
	}
	img := g.asm.Assemble()
	if err := finishImage(img, g.version); err != nil {
		return nil, err
	}
	log.Infof("run %s: image complete, %d bytes", g.runID, len(img))
	return img, nil
}

// collectVocabulary gathers every word the dictionary must hold before it
// freezes: declared vocabulary, object synonyms, exit directions.
func (g *Generator) collectVocabulary(prog *zir.Program) {
	for _, w := range prog.Vocabulary {
		g.dict.Add(w)
	}
	for _, obj := range prog.Objects {
		for _, w := range obj.Names {
			g.dict.Add(w)
		}
		for _, x := range obj.Exits {
			g.dict.Add(x.Direction)
		}
	}
}

// generateGlobals writes declared initial values into the pre-allocated
// global slots. Slot order is declaration order.
func (g *Generator) generateGlobals(prog *zir.Program) error {
	if len(prog.Globals) > globalSlots {
		return fmt.Errorf("zcode: %d globals exceed the %d slots", len(prog.Globals), globalSlots)
	}
	for i, gl := range prog.Globals {
		if err := g.asm.PatchWord(SpaceGlobals, 2*i, gl.Initial); err != nil {
			return err
		}
	}
	return nil
}
