// Package scanner tokenizes PDF object syntax and content streams held in
// memory.
package scanner

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

type TokenType int

const (
	TokenEOF        TokenType = iota
	TokenDictStart            // '<<'
	TokenDictEnd              // '>>'
	TokenArrayStart           // '['
	TokenArrayEnd             // ']'
	TokenName                 // '/Name'
	TokenString               // literal or hex string
	TokenNumber               // numeric value
	TokenBoolean              // true/false
	TokenNull                 // null
	TokenKeyword              // obj, endobj, R, stream, operators, ...
)

// Token is one lexical item. Str carries names, keywords and string bytes;
// numbers use Int/Float with IsInt telling which one is exact.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Hex   bool
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Pos   int
}

// ErrUnexpectedEOF is returned when input ends inside a token.
var ErrUnexpectedEOF = errors.New("scanner: unexpected end of input")

// Scanner is a cursor over an in-memory PDF byte slice.
type Scanner struct {
	data []byte
	pos  int
}

func New(data []byte) *Scanner { return &Scanner{data: data} }

func (s *Scanner) Pos() int     { return s.pos }
func (s *Scanner) Len() int     { return len(s.data) }
func (s *Scanner) Data() []byte { return s.data }

func (s *Scanner) Seek(offset int) error {
	if offset < 0 || offset > len(s.data) {
		return fmt.Errorf("scanner: seek %d out of range", offset)
	}
	s.pos = offset
	return nil
}

// Next returns the next token, or a TokenEOF token with io.EOF.
func (s *Scanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= len(s.data) {
		return Token{Type: TokenEOF, Pos: s.pos}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch {
	case c == '<':
		if s.peek(1) == '<' {
			s.pos += 2
			return Token{Type: TokenDictStart, Pos: start}, nil
		}
		return s.scanHexString()
	case c == '>':
		if s.peek(1) == '>' {
			s.pos += 2
			return Token{Type: TokenDictEnd, Pos: start}, nil
		}
		s.pos++
		return Token{}, fmt.Errorf("scanner: stray '>' at %d", start)
	case c == '[':
		s.pos++
		return Token{Type: TokenArrayStart, Pos: start}, nil
	case c == ']':
		s.pos++
		return Token{Type: TokenArrayEnd, Pos: start}, nil
	case c == '{' || c == '}':
		s.pos++
		return Token{Type: TokenKeyword, Str: string(c), Pos: start}, nil
	case c == '/':
		return s.scanName()
	case c == '(':
		return s.scanLiteralString()
	case c == ')':
		s.pos++
		return Token{}, fmt.Errorf("scanner: stray ')' at %d", start)
	case isNumberStart(c):
		if tok, ok := s.scanNumber(); ok {
			return tok, nil
		}
		s.pos = start
	}
	return s.scanKeyword()
}

// Peek returns the next token without consuming it.
func (s *Scanner) Peek() (Token, error) {
	save := s.pos
	tok, err := s.Next()
	s.pos = save
	return tok, err
}

func (s *Scanner) peek(n int) byte {
	if s.pos+n < len(s.data) {
		return s.data[s.pos+n]
	}
	return 0
}

func (s *Scanner) skipWSAndComments() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < len(s.data) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func (s *Scanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // '/'
	var buf bytes.Buffer
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < len(s.data) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			buf.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		buf.WriteByte(c)
		s.pos++
	}
	return Token{Type: TokenName, Str: buf.String(), Pos: start}, nil
}

func (s *Scanner) scanLiteralString() (Token, error) {
	start := s.pos
	s.pos++ // '('
	depth := 1
	var buf bytes.Buffer
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start}, nil
			}
			buf.WriteByte(c)
		case '\\':
			if s.pos >= len(s.data) {
				return Token{}, ErrUnexpectedEOF
			}
			e := s.data[s.pos]
			s.pos++
			switch {
			case e == '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case e == '\n':
			case e >= '0' && e <= '7':
				v := int(e - '0')
				for i := 0; i < 2 && s.pos < len(s.data); i++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					v = v*8 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(v))
			default:
				buf.WriteByte(translateEscape(e))
			}
		case '\r':
			// A bare CR or CRLF inside a string is read as LF.
			if s.pos < len(s.data) && s.data[s.pos] == '\n' {
				s.pos++
			}
			buf.WriteByte('\n')
		default:
			buf.WriteByte(c)
		}
	}
	return Token{}, ErrUnexpectedEOF
}

func (s *Scanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // '<'
	var buf bytes.Buffer
	var hi byte
	half := false
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if half {
				buf.WriteByte(hi << 4)
			}
			return Token{Type: TokenString, Bytes: buf.Bytes(), Hex: true, Pos: start}, nil
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			return Token{}, fmt.Errorf("scanner: invalid hex digit %q at %d", c, s.pos-1)
		}
		if half {
			buf.WriteByte(hi<<4 | fromHex(c))
			half = false
		} else {
			hi = fromHex(c)
			half = true
		}
	}
	return Token{}, ErrUnexpectedEOF
}

func (s *Scanner) scanNumber() (Token, bool) {
	start := s.pos
	if c := s.data[s.pos]; c == '+' || c == '-' {
		s.pos++
	}
	digits, dot := 0, false
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c >= '0' && c <= '9' {
			digits++
		} else if c == '.' && !dot {
			dot = true
		} else {
			break
		}
		s.pos++
	}
	if digits == 0 {
		return Token{}, false
	}
	if s.pos < len(s.data) && !isWhitespace(s.data[s.pos]) && !isDelimiter(s.data[s.pos]) {
		// Malformed numbers like "1.2.3" or "12abc" are lexed as keywords.
		return Token{}, false
	}
	text := string(s.data[start:s.pos])
	if !dot {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Token{Type: TokenNumber, Int: i, Float: float64(i), IsInt: true, Pos: start}, true
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, false
	}
	return Token{Type: TokenNumber, Float: f, Int: int64(f), Pos: start}, true
}

func (s *Scanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isWhitespace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		s.pos++
		return Token{}, fmt.Errorf("scanner: unexpected byte %q at %d", s.data[start], start)
	}
	word := string(s.data[start:s.pos])
	switch word {
	case "true":
		return Token{Type: TokenBoolean, Bool: true, Str: word, Pos: start}, nil
	case "false":
		return Token{Type: TokenBoolean, Str: word, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: word, Pos: start}, nil
	}
	return Token{Type: TokenKeyword, Str: word, Pos: start}, nil
}

// ReadStream reads stream data after the "stream" keyword. length is the
// /Length value; a negative or implausible length triggers a scan for the
// "endstream" keyword.
func (s *Scanner) ReadStream(length int) ([]byte, error) {
	// Skip the EOL following "stream".
	if s.pos < len(s.data) && s.data[s.pos] == '\r' {
		s.pos++
	}
	if s.pos < len(s.data) && s.data[s.pos] == '\n' {
		s.pos++
	}
	start := s.pos
	if length >= 0 && start+length <= len(s.data) {
		rest := s.data[start+length:]
		trimmed := bytes.TrimLeft(rest, " \r\n\t\f\x00")
		if bytes.HasPrefix(trimmed, []byte("endstream")) {
			s.pos = start + length + (len(rest) - len(trimmed)) + len("endstream")
			return s.data[start : start+length], nil
		}
	}
	idx := bytes.Index(s.data[start:], []byte("endstream"))
	if idx < 0 {
		return nil, fmt.Errorf("scanner: endstream not found after %d", start)
	}
	end := start + idx
	s.pos = end + len("endstream")
	// Drop the EOL that precedes endstream.
	if end > start && s.data[end-1] == '\n' {
		end--
	}
	if end > start && s.data[end-1] == '\r' {
		end--
	}
	return s.data[start:end], nil
}

// ReadInlineImage reads inline image data after the "ID" operator up to the
// "EI" operator, which must be delimited by whitespace.
func (s *Scanner) ReadInlineImage() ([]byte, error) {
	if s.pos < len(s.data) && isWhitespace(s.data[s.pos]) {
		s.pos++
	}
	start := s.pos
	for i := start; i+1 < len(s.data); i++ {
		if s.data[i] != 'E' || s.data[i+1] != 'I' {
			continue
		}
		before := i == start || isWhitespace(s.data[i-1])
		after := i+2 >= len(s.data) || isWhitespace(s.data[i+2]) || isDelimiter(s.data[i+2])
		if before && after {
			end := i
			if end > start && isWhitespace(s.data[end-1]) {
				end--
			}
			s.pos = i + 2
			return s.data[start:end], nil
		}
	}
	return nil, fmt.Errorf("scanner: EI not found after %d", start)
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isEOL(c byte) bool { return c == '\r' || c == '\n' }

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isNumberStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	}
	return c
}

// IsWhitespace reports whether c is PDF whitespace.
func IsWhitespace(c byte) bool { return isWhitespace(c) }
