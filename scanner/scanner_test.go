package scanner

import (
	"errors"
	"io"
	"testing"

	"github.com/wudi/charterkit/ir/raw"
)

func nextToken(t *testing.T, s *Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := New([]byte("%PDF-1.7\n1 0 obj\n<< /Na#6De /Value /Nums [1 -2.5 .5] /Flag true /Null null >>\nendobj"))

	want := []struct {
		typ TokenType
		str string
	}{
		{TokenNumber, ""}, {TokenNumber, ""}, {TokenKeyword, "obj"}, {TokenDictStart, ""},
		{TokenName, "Name"}, {TokenName, "Value"}, {TokenName, "Nums"}, {TokenArrayStart, ""},
		{TokenNumber, ""}, {TokenNumber, ""}, {TokenNumber, ""}, {TokenArrayEnd, ""},
		{TokenName, "Flag"}, {TokenBoolean, "true"}, {TokenName, "Null"}, {TokenNull, "null"},
		{TokenDictEnd, ""}, {TokenKeyword, "endobj"},
	}
	var nums []Token
	for i, w := range want {
		tok := nextToken(t, s)
		if tok.Type != w.typ || (w.str != "" && tok.Str != w.str) {
			t.Fatalf("token %d = %+v, want %v %q", i, tok, w.typ, w.str)
		}
		if tok.Type == TokenNumber {
			nums = append(nums, tok)
		}
	}
	if !nums[0].IsInt || nums[0].Int != 1 || nums[3].IsInt || nums[3].Float != -2.5 || nums[4].Float != 0.5 {
		t.Fatalf("numbers = %+v", nums)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_LiteralStrings(t *testing.T) {
	cases := map[string]string{
		`(plain)`:              "plain",
		`(nested (parens) ok)`: "nested (parens) ok",
		`(esc\)aped\n\t)`:      "esc)aped\n\t",
		`(\101\102C)`:          "ABC",
		"(line\\\ncontinued)":  "linecontinued",
		"(cr\r\nlf)":           "cr\nlf",
	}
	for in, want := range cases {
		tok := nextToken(t, New([]byte(in)))
		if tok.Type != TokenString || string(tok.Bytes) != want {
			t.Fatalf("%q -> %q, want %q", in, tok.Bytes, want)
		}
	}
	if _, err := New([]byte("(open")).Next(); !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("expected unexpected EOF, got %v", err)
	}
}

func TestScanner_HexString(t *testing.T) {
	tok := nextToken(t, New([]byte("<48 65 6C6C 6F7>")))
	if !tok.Hex || string(tok.Bytes) != "Hellop" {
		t.Fatalf("hex = %q", tok.Bytes)
	}
	if _, err := New([]byte("<4G>")).Next(); err == nil {
		t.Fatalf("expected invalid hex error")
	}
}

func TestReadObjectWithRefs(t *testing.T) {
	s := New([]byte("<< /Kids [3 0 R 4 0 R] /Count 2 /Parent 1 0 R /Nums [1 2] >>"))
	obj, err := s.ReadObject()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	d := obj.(*raw.DictObj)
	kids, _ := d.Array("Kids")
	if kids.Len() != 2 {
		t.Fatalf("kids = %d", kids.Len())
	}
	if r, ok := kids.Items[1].(raw.RefObj); !ok || r.R.Num != 4 {
		t.Fatalf("kid ref = %#v", kids.Items[1])
	}
	if r, ok := d.KV["Parent"].(raw.RefObj); !ok || r.R.Num != 1 {
		t.Fatalf("parent = %#v", d.KV["Parent"])
	}
	nums, _ := d.Array("Nums")
	if _, ok := nums.Items[0].(raw.NumberObj); !ok || nums.Len() != 2 {
		t.Fatalf("nums = %#v", nums)
	}
}

func TestReadIndirectStream(t *testing.T) {
	src := "7 0 obj\n<< /Length 8 0 R >>\nstream\nhello world\nendstream\nendobj\n"
	s := New([]byte(src))
	ref, obj, err := s.ReadIndirect(func(r raw.ObjectRef) (int, bool) {
		if r.Num == 8 {
			return 11, true
		}
		return 0, false
	})
	if err != nil {
		t.Fatalf("read indirect: %v", err)
	}
	if ref.Num != 7 {
		t.Fatalf("ref = %v", ref)
	}
	st, ok := obj.(*raw.StreamObj)
	if !ok || string(st.Data) != "hello world" {
		t.Fatalf("stream = %#v", obj)
	}
}

func TestReadStreamWrongLengthFallsBack(t *testing.T) {
	s := New([]byte("<< /Length 3 >>\nstream\r\nabcdef\r\nendstream"))
	if _, err := s.ReadObject(); err != nil {
		t.Fatalf("dict: %v", err)
	}
	if tok := nextToken(t, s); tok.Str != "stream" {
		t.Fatalf("expected stream keyword, got %+v", tok)
	}
	data, err := s.ReadStream(3)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(data) != "abcdef" {
		t.Fatalf("data = %q", data)
	}
}

func TestReadInlineImage(t *testing.T) {
	s := New([]byte("BI /W 2 /H 1 /BPC 8 /CS /G ID \x00\xffEIx EI Q"))
	for {
		tok := nextToken(t, s)
		if tok.Type == TokenKeyword && tok.Str == "ID" {
			break
		}
	}
	data, err := s.ReadInlineImage()
	if err != nil {
		t.Fatalf("inline image: %v", err)
	}
	if string(data) != "\x00\xffEIx" {
		t.Fatalf("data = %q", data)
	}
	if tok := nextToken(t, s); tok.Str != "Q" {
		t.Fatalf("after EI = %+v", tok)
	}
}
