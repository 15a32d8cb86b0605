package fonts

import (
	"errors"
	"io"
	"unicode/utf16"

	"github.com/wudi/charterkit/scanner"
)

type codespace struct {
	low, high []byte
}

// CMap is a parsed ToUnicode map.
type CMap struct {
	spaces []codespace
	chars  map[string]string
}

// ParseCMap reads bfchar and bfrange sections from a ToUnicode stream.
// Operators it does not need are skipped.
func ParseCMap(data []byte) (*CMap, error) {
	cm := &CMap{chars: make(map[string]string)}
	s := scanner.New(data)
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return cm, err
		}
		if tok.Type != scanner.TokenKeyword {
			continue
		}
		switch tok.Str {
		case "begincodespacerange":
			cm.readCodespace(s)
		case "beginbfchar":
			cm.readBfChar(s)
		case "beginbfrange":
			if err := cm.readBfRange(s); err != nil {
				return cm, err
			}
		}
	}
	if len(cm.chars) == 0 {
		return cm, errors.New("cmap: no mappings")
	}
	return cm, nil
}

func (cm *CMap) readCodespace(s *scanner.Scanner) {
	for {
		lo, err := s.Next()
		if err != nil || lo.Type != scanner.TokenString {
			return
		}
		hi, err := s.Next()
		if err != nil || hi.Type != scanner.TokenString {
			return
		}
		cm.spaces = append(cm.spaces, codespace{low: lo.Bytes, high: hi.Bytes})
	}
}

func (cm *CMap) readBfChar(s *scanner.Scanner) {
	for {
		src, err := s.Next()
		if err != nil || src.Type != scanner.TokenString {
			return
		}
		dst, err := s.Next()
		if err != nil {
			return
		}
		switch dst.Type {
		case scanner.TokenString:
			cm.chars[string(src.Bytes)] = utf16Text(dst.Bytes)
		case scanner.TokenName:
			if r, ok := GlyphRune(dst.Str); ok {
				cm.chars[string(src.Bytes)] = string(r)
			}
		}
	}
}

func (cm *CMap) readBfRange(s *scanner.Scanner) error {
	for {
		lo, err := s.Next()
		if err != nil || lo.Type != scanner.TokenString {
			return nil
		}
		hi, err := s.Next()
		if err != nil || hi.Type != scanner.TokenString || len(hi.Bytes) != len(lo.Bytes) {
			return errors.New("cmap: malformed bfrange")
		}
		start, end := codeValue(lo.Bytes), codeValue(hi.Bytes)
		if end < start || end-start > 0xFFFF {
			return errors.New("cmap: bfrange out of bounds")
		}
		dst, err := s.Next()
		if err != nil {
			return err
		}
		switch dst.Type {
		case scanner.TokenString:
			base := append([]byte(nil), dst.Bytes...)
			for c := start; c <= end; c++ {
				cm.chars[string(codeBytes(c, len(lo.Bytes)))] = utf16Text(base)
				incrementLast(base)
			}
		case scanner.TokenArrayStart:
			c := start
			for {
				item, err := s.Next()
				if err != nil {
					return err
				}
				if item.Type == scanner.TokenArrayEnd {
					break
				}
				if item.Type == scanner.TokenString && c <= end {
					cm.chars[string(codeBytes(c, len(lo.Bytes)))] = utf16Text(item.Bytes)
				}
				c++
			}
		default:
			return errors.New("cmap: unexpected bfrange destination")
		}
	}
}

// Lookup maps a source code to Unicode text.
func (cm *CMap) Lookup(code []byte) (string, bool) {
	s, ok := cm.chars[string(code)]
	return s, ok
}

// Len returns the number of mapped codes.
func (cm *CMap) Len() int { return len(cm.chars) }

// CodeLength returns the byte length of the code at the start of b as
// given by the codespace ranges. Without ranges it returns fallback.
func (cm *CMap) CodeLength(b []byte, fallback int) int {
	for n := 1; n <= 4 && n <= len(b); n++ {
		for _, sp := range cm.spaces {
			if len(sp.low) == n && inRange(b[:n], sp.low, sp.high) {
				return n
			}
		}
	}
	if len(cm.spaces) == 0 {
		return fallback
	}
	return 1
}

func inRange(code, low, high []byte) bool {
	for i := range code {
		if code[i] < low[i] || code[i] > high[i] {
			return false
		}
	}
	return true
}

func codeValue(b []byte) uint32 {
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v
}

func codeBytes(v uint32, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

func incrementLast(b []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}

func utf16Text(b []byte) string {
	if len(b) == 1 {
		return string(rune(b[0]))
	}
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
	}
	return string(utf16.Decode(u))
}
