// Grotto CLI - compiles serialized IR programs into Z-machine story files.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/chazu/grotto/manifest"
	"github.com/chazu/grotto/pkg/zcode"
	"github.com/chazu/grotto/pkg/zir"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	projectDir := flag.String("C", ".", "Project directory (searched upward for grotto.toml)")
	output := flag.String("o", "", "Output path (overrides manifest)")
	zversion := flag.Int("zversion", 0, "Target version 3, 4 or 5 (overrides manifest)")
	release := flag.Int("release", -1, "Release number (overrides manifest)")
	serial := flag.String("serial", "", "Six-character serial (overrides manifest)")
	dump := flag.Bool("dump", false, "Disassemble the produced story file to stdout")
	verbose := flag.Bool("v", false, "Verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: grotto [options] [program.zir]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles an IR program into a Z-machine story file. Configuration comes\n")
		fmt.Fprintf(os.Stderr, "from grotto.toml in the project directory; flags override it, and a\n")
		fmt.Fprintf(os.Stderr, "positional IR path replaces the manifest's input.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  grotto                         # build per grotto.toml\n")
		fmt.Fprintf(os.Stderr, "  grotto -C game -zversion 5     # build game/ targeting z5\n")
		fmt.Fprintf(os.Stderr, "  grotto -dump program.zir       # build and disassemble\n")
	}
	flag.Parse()

	verbosity := 0
	if *verbose {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	if err := run(*projectDir, flag.Arg(0), *output, *zversion, *release, *serial, *dump); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(projectDir, irArg, output string, zversion, release int, serial string, dump bool) error {
	m, err := manifest.FindAndLoad(projectDir)
	if err != nil {
		return err
	}
	if m == nil {
		if irArg == "" {
			return fmt.Errorf("no %s found from %s and no IR file given", manifest.ManifestName, projectDir)
		}
		m = &manifest.Manifest{}
		m.Dir, err = filepath.Abs(projectDir)
		if err != nil {
			return err
		}
		m.Target.ZVersion = 3
		m.Target.Release = 1
	}

	irPath := m.IRPath()
	if irArg != "" {
		irPath = irArg
	}
	if zversion != 0 {
		m.Target.ZVersion = zversion
	}
	if release >= 0 {
		m.Target.Release = release
	}
	if serial != "" {
		m.Target.Serial = serial
	}
	if err := m.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(irPath)
	if err != nil {
		return fmt.Errorf("cannot read IR: %w", err)
	}
	prog, err := zir.UnmarshalProgram(data)
	if err != nil {
		return err
	}

	img, err := zcode.Compile(prog, zcode.Options{
		Version: zcode.Version(m.Target.ZVersion),
		Release: uint16(m.Target.Release),
		Serial:  m.Target.Serial,
	})
	if err != nil {
		return err
	}

	out := m.OutputPath()
	if output != "" {
		out = output
	}
	if err := writeAtomic(out, img); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes, z%d, release %d)\n", out, len(img), m.Target.ZVersion, m.Target.Release)

	if dump {
		return dumpImage(os.Stdout, img)
	}
	return nil
}

// writeAtomic writes the story file through a temp file and rename, so an
// interrupted build never leaves a half-written image at the output path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// dumpImage prints the header summary and a disassembly starting at the
// initial PC.
func dumpImage(w *os.File, img []byte) error {
	if len(img) < 0x40 {
		return fmt.Errorf("image too short to carry a header")
	}
	v := zcode.Version(img[0])
	word := func(off int) int { return int(img[off])<<8 | int(img[off+1]) }

	fmt.Fprintf(w, "version     %d\n", img[0])
	fmt.Fprintf(w, "release     %d\n", word(0x02))
	fmt.Fprintf(w, "serial      %s\n", img[0x12:0x18])
	fmt.Fprintf(w, "initial pc  0x%04x\n", word(0x06))
	fmt.Fprintf(w, "dictionary  0x%04x\n", word(0x08))
	fmt.Fprintf(w, "objects     0x%04x\n", word(0x0A))
	fmt.Fprintf(w, "globals     0x%04x\n", word(0x0C))
	fmt.Fprintf(w, "static base 0x%04x\n", word(0x0E))
	fmt.Fprintf(w, "checksum    0x%04x (computed 0x%04x)\n", word(0x1C), zcode.Checksum(img))
	fmt.Fprintln(w)

	code, err := zcode.DecodeRoutine(v, img, word(0x06))
	if err != nil {
		return err
	}
	for _, d := range code {
		fmt.Fprintln(w, d)
	}
	return nil
}
