// Package zcode assembles Z-machine story files from the zir intermediate
// representation. It is a miniature linker: content is generated into
// independent memory spaces, cross references are recorded symbolically, and
// a final resolution pass turns every placeholder into a concrete address.
//
// The output format targets versions 3, 4 and 5 of the Z-machine. The
// version decides object-table layout, property-header encoding, dictionary
// word width, and the packed-address scale; all of those decisions live on
// the Version type so nothing else in the package branches on raw version
// numbers.
//
// # Architecture Overview
//
// Compilation is strictly two-phase:
//
//   - Phase 1 (generation): the Assembler owns six append-only spaces
//     (header, globals, objects, dictionary, strings, code). The Dictionary
//     and StringTable freeze their content first, then object tables and
//     routine code are emitted. Anything whose final address is unknown is
//     written as a placeholder and recorded with the Resolver at the exact
//     offset where the placeholder landed.
//
//   - Phase 2 (resolution): Layout assigns every space its base address,
//     the Resolver patches every recorded reference and branch, and the
//     spaces are concatenated into the final image. A reference that cannot
//     be resolved fails the build; there is no partial output.
//
// The Resolver keeps a single registry of claimed byte ranges shared by
// ordinary references and branch patches, so two subsystems can never
// silently patch the same bytes.
//
// # Instruction Encoding
//
// Opcode identity is a tagged union over the four operand families (Op0,
// Op1, Op2, OpVar) rather than a raw byte, because the same number means
// different instructions in different families and a handful of numbers are
// only disambiguated by operand count and result-destination presence
// together. The Encoder owns all form selection: long versus variable form
// for 2OP opcodes, operand type bytes, store bytes, and branch fields.
// Branch fields are always emitted in the two-byte form; an offset outside
// the signed 14-bit range fails the build rather than being truncated.
//
// # Entry Point
//
// Compile is the package's public surface: it takes a zir.Program and
// Options (version, release, serial) and returns the complete image. The
// same program and options always produce byte-identical output.
//
// DecodeInstruction and DecodeRoutine read instructions back out of an
// image. They exist for tests and the CLI's dump mode and see only what an
// interpreter would.
package zcode
