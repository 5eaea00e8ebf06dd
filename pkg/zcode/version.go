package zcode

import "fmt"

// Version selects the target Z-machine format version. The version decides
// attribute-bitset width, object-entry layout, property-header format,
// dictionary word width, and the packed-address scale factor.
type Version uint8

const (
	// V3 is the baseline format: 255 objects, 32 attributes, 31 properties,
	// packed addresses scaled by 2.
	V3 Version = 3
	// V4 widens the object model: 65535 objects, 48 attributes, 63
	// properties, packed addresses scaled by 4.
	V4 Version = 4
	// V5 shares V4's object model and drops routine local defaults.
	V5 Version = 5
)

// Valid reports whether v is a supported target version.
func (v Version) Valid() bool {
	return v == V3 || v == V4 || v == V5
}

func (v Version) String() string {
	if v.Valid() {
		return fmt.Sprintf("z%d", uint8(v))
	}
	return fmt.Sprintf("Version(%d)", uint8(v))
}

// PackedScale is the divisor applied to string and routine addresses.
func (v Version) PackedScale() int {
	if v == V3 {
		return 2
	}
	return 4
}

// LengthDivisor scales the file-length header field.
func (v Version) LengthDivisor() int {
	if v == V3 {
		return 2
	}
	return 4
}

// AttrBytes is the width of the per-object attribute bitset.
func (v Version) AttrBytes() int {
	if v == V3 {
		return 4
	}
	return 6
}

// AttrCount is the number of attribute flags per object.
func (v Version) AttrCount() int { return v.AttrBytes() * 8 }

// ObjectEntrySize is the fixed size of one object-table entry.
func (v Version) ObjectEntrySize() int {
	if v == V3 {
		return 9
	}
	return 14
}

// MaxObjects is the largest representable object number.
func (v Version) MaxObjects() int {
	if v == V3 {
		return 255
	}
	return 65535
}

// MaxProperty is the largest property number.
func (v Version) MaxProperty() int {
	if v == V3 {
		return 31
	}
	return 63
}

// MaxPropertyLen is the largest property payload in bytes.
func (v Version) MaxPropertyLen() int {
	if v == V3 {
		return 8
	}
	return 64
}

// DictWordZChars is the number of Z-characters in an encoded dictionary word.
func (v Version) DictWordZChars() int {
	if v == V3 {
		return 6
	}
	return 9
}

// DictWordBytes is the byte width of an encoded dictionary word.
func (v Version) DictWordBytes() int { return v.DictWordZChars() / 3 * 2 }

// RoutineLocalDefaults reports whether routine headers carry a default word
// per local (true up to V4).
func (v Version) RoutineLocalDefaults() bool { return v <= V4 }

// MaxFileSize is the largest story file the version permits.
func (v Version) MaxFileSize() int {
	if v == V3 {
		return 128 * 1024
	}
	return 256 * 1024
}
