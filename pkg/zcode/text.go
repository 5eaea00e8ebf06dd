package zcode

// Z-character text encoding. Three 5-bit characters pack into each 16-bit
// word, high bit of the final word marks the end of the string. Alphabet A0
// is lowercase, A1 uppercase (shift 4), A2 punctuation and digits (shift 5).
// A2 character 6 escapes to a 10-bit ZSCII code spread over the next two
// Z-characters. Z-character 5 doubles as padding after the last real
// character.

const (
	alphabetA0 = "abcdefghijklmnopqrstuvwxyz"
	alphabetA1 = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// A2 positions 8..31; positions 6 (ZSCII escape) and 7 (newline) are
	// handled specially.
	alphabetA2 = "0123456789.,!?_#'\"/\\-:()"
)

const (
	zcharPad    = 5
	zshiftA1    = 4
	zshiftA2    = 5
	zcharEscape = 6 // in A2
)

// zchars converts text to a sequence of 5-bit Z-characters.
func zchars(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == ' ':
			out = append(out, 0)
		case r == '\n':
			out = append(out, zshiftA2, 7)
		case r >= 'a' && r <= 'z':
			out = append(out, byte(6+r-'a'))
		case r >= 'A' && r <= 'Z':
			out = append(out, zshiftA1, byte(6+r-'A'))
		default:
			if i := indexA2(r); i >= 0 {
				out = append(out, zshiftA2, byte(8+i))
				break
			}
			// ZSCII escape. Codes outside plain ASCII degrade to '?';
			// the front end is expected to normalize exotic input.
			code := r
			if code < 32 || code > 126 {
				code = '?'
			}
			out = append(out, zshiftA2, zcharEscape, byte(code>>5)&0x1F, byte(code)&0x1F)
		}
	}
	return out
}

func indexA2(r rune) int {
	for i, c := range alphabetA2 {
		if c == r {
			return i
		}
	}
	return -1
}

// packZChars groups Z-characters three to a word, padding the final group,
// and sets the terminator bit on the last word. Empty input still produces
// one padded, terminated word.
func packZChars(zc []byte) []byte {
	if len(zc) == 0 {
		zc = []byte{zcharPad}
	}
	out := make([]byte, 0, (len(zc)+2)/3*2)
	for i := 0; i < len(zc); i += 3 {
		var trio [3]byte
		for j := 0; j < 3; j++ {
			if i+j < len(zc) {
				trio[j] = zc[i+j] & 0x1F
			} else {
				trio[j] = zcharPad
			}
		}
		w := uint16(trio[0])<<10 | uint16(trio[1])<<5 | uint16(trio[2])
		if i+3 >= len(zc) {
			w |= 0x8000
		}
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}

// EncodeString encodes literal text to its in-image form.
func EncodeString(s string) []byte {
	return packZChars(zchars(s))
}

// encodeDictWord encodes a dictionary word to the version's fixed width:
// 6 Z-characters (4 bytes) in V3, 9 (6 bytes) in V4+. Words are lowercased
// first (dictionary matching is case-insensitive) and silently truncated at
// the Z-character level, exactly as the target machine's own tokenizer does.
func encodeDictWord(s string, v Version) []byte {
	zc := zchars(lower(s))
	n := v.DictWordZChars()
	if len(zc) > n {
		zc = zc[:n]
	}
	for len(zc) < n {
		zc = append(zc, zcharPad)
	}
	out := make([]byte, 0, v.DictWordBytes())
	for i := 0; i < n; i += 3 {
		w := uint16(zc[i])<<10 | uint16(zc[i+1])<<5 | uint16(zc[i+2])
		if i+3 >= n {
			w |= 0x8000
		}
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}

func lower(s string) string {
	b := []byte(s)
	changed := false
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
			changed = true
		}
	}
	if !changed {
		return s
	}
	return string(b)
}

// DecodeString decodes an encoded string starting at data[off], returning
// the text and the number of bytes consumed. Abbreviation Z-characters
// (1-3) decode as '?' since this backend never emits them.
func DecodeString(data []byte, off int) (string, int) {
	var out []rune
	shift := 0 // 0 = A0, 1 = A1, 2 = A2
	escape := -1
	var escAcc rune
	n := 0
	for off+n+1 < len(data) {
		w := uint16(data[off+n])<<8 | uint16(data[off+n+1])
		n += 2
		for _, zc := range [3]byte{byte(w >> 10 & 0x1F), byte(w >> 5 & 0x1F), byte(w & 0x1F)} {
			if escape >= 0 {
				escAcc = escAcc<<5 | rune(zc)
				escape++
				if escape == 2 {
					out = append(out, escAcc)
					escape = -1
					escAcc = 0
				}
				continue
			}
			switch {
			case zc == 0:
				out = append(out, ' ')
				shift = 0
			case zc <= 3:
				out = append(out, '?')
				shift = 0
			case zc == zshiftA1:
				shift = 1
			case zc == zshiftA2:
				shift = 2
			default:
				switch shift {
				case 0:
					out = append(out, rune(alphabetA0[zc-6]))
				case 1:
					out = append(out, rune(alphabetA1[zc-6]))
				default:
					switch {
					case zc == zcharEscape:
						escape = 0
					case zc == 7:
						out = append(out, '\n')
					default:
						out = append(out, rune(alphabetA2[zc-8]))
					}
				}
				shift = 0
			}
		}
		if w&0x8000 != 0 {
			break
		}
	}
	return string(out), n
}
