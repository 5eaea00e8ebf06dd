package zir

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Wire format: a CBOR envelope around Program. Canonical encoding mode keeps
// the bytes deterministic for identical programs, which matters because the
// compiler's own output determinism is a tested property and IR files are
// content-addressed by some front ends.

// WireMagic identifies a serialized IR program: "ZIR" plus a format version.
var WireMagic = []byte{'Z', 'I', 'R', 1}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("zir: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalProgram serializes a Program to its wire form.
func MarshalProgram(p *Program) ([]byte, error) {
	body, err := cborEncMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("zir: marshal program: %w", err)
	}
	out := make([]byte, 0, len(WireMagic)+len(body))
	out = append(out, WireMagic...)
	out = append(out, body...)
	return out, nil
}

// UnmarshalProgram deserializes a Program from its wire form.
func UnmarshalProgram(data []byte) (*Program, error) {
	if len(data) < len(WireMagic) {
		return nil, fmt.Errorf("zir: truncated program (%d bytes)", len(data))
	}
	for i, b := range WireMagic {
		if data[i] != b {
			return nil, fmt.Errorf("zir: bad magic %q", data[:len(WireMagic)])
		}
	}
	var p Program
	if err := cbor.Unmarshal(data[len(WireMagic):], &p); err != nil {
		return nil, fmt.Errorf("zir: unmarshal program: %w", err)
	}
	return &p, nil
}
