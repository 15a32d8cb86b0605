package fonts

import (
	"strconv"
	"strings"
)

// Encoding maps single-byte codes to runes; zero means undefined.
type Encoding [256]rune

var (
	WinAnsiEncoding  Encoding
	MacRomanEncoding Encoding
	StandardEncoding Encoding
)

var winAnsiHigh = [32]rune{
	'€', 0, '‚', 'ƒ', '„', '…', '†', '‡', 'ˆ', '‰', 'Š', '‹', 'Œ', 0, 'Ž', 0,
	0, '‘', '’', '“', '”', '•', '–', '—', '˜', '™', 'š', '›', 'œ', 0, 'ž', 'Ÿ',
}

var macRomanHigh = [128]rune{
	'Ä', 'Å', 'Ç', 'É', 'Ñ', 'Ö', 'Ü', 'á', 'à', 'â', 'ä', 'ã', 'å', 'ç', 'é', 'è',
	'ê', 'ë', 'í', 'ì', 'î', 'ï', 'ñ', 'ó', 'ò', 'ô', 'ö', 'õ', 'ú', 'ù', 'û', 'ü',
	'†', '°', '¢', '£', '§', '•', '¶', 'ß', '®', '©', '™', '´', '¨', '≠', 'Æ', 'Ø',
	'∞', '±', '≤', '≥', '¥', 'µ', '∂', '∑', '∏', 'π', '∫', 'ª', 'º', 'Ω', 'æ', 'ø',
	'¿', '¡', '¬', '√', 'ƒ', '≈', '∆', '«', '»', '…', '\u00a0', 'À', 'Ã', 'Õ', 'Œ', 'œ',
	'–', '—', '“', '”', '‘', '’', '÷', '◊', 'ÿ', 'Ÿ', '⁄', '€', '‹', '›', 'ﬁ', 'ﬂ',
	'‡', '·', '‚', '„', '‰', 'Â', 'Ê', 'Á', 'Ë', 'È', 'Í', 'Î', 'Ï', 'Ì', 'Ó', 'Ô',
	'\uf8ff', 'Ò', 'Ú', 'Û', 'Ù', 'ı', 'ˆ', '˜', '¯', '˘', '˙', '˚', '¸', '˝', '˛', 'ˇ',
}

var standardHigh = map[byte]rune{
	0xA1: '¡', 0xA2: '¢', 0xA3: '£', 0xA4: '⁄', 0xA5: '¥', 0xA6: 'ƒ', 0xA7: '§', 0xA8: '¤',
	0xA9: '\'', 0xAA: '“', 0xAB: '«', 0xAC: '‹', 0xAD: '›', 0xAE: 'ﬁ', 0xAF: 'ﬂ',
	0xB1: '–', 0xB2: '†', 0xB3: '‡', 0xB4: '·', 0xB6: '¶', 0xB7: '•', 0xB8: '‚', 0xB9: '„',
	0xBA: '”', 0xBB: '»', 0xBC: '…', 0xBD: '‰', 0xBF: '¿',
	0xC1: '`', 0xC2: '´', 0xC3: 'ˆ', 0xC4: '˜', 0xC5: '¯', 0xC6: '˘', 0xC7: '˙', 0xC8: '¨',
	0xCA: '˚', 0xCB: '¸', 0xCD: '˝', 0xCE: '˛', 0xCF: 'ˇ', 0xD0: '—',
	0xE1: 'Æ', 0xE3: 'ª', 0xE8: 'Ł', 0xE9: 'Ø', 0xEA: 'Œ', 0xEB: 'º',
	0xF1: 'æ', 0xF5: 'ı', 0xF8: 'ł', 0xF9: 'ø', 0xFA: 'œ', 0xFB: 'ß',
}

var asciiNames = []string{
	"space", "exclam", "quotedbl", "numbersign", "dollar", "percent", "ampersand", "quotesingle",
	"parenleft", "parenright", "asterisk", "plus", "comma", "hyphen", "period", "slash",
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"colon", "semicolon", "less", "equal", "greater", "question", "at",
}

var asciiPunctHigh = []string{
	"bracketleft", "backslash", "bracketright", "asciicircum", "underscore", "grave",
}

var asciiPunctTail = []string{"braceleft", "bar", "braceright", "asciitilde"}

var latin1Names = []string{
	"nbspace", "exclamdown", "cent", "sterling", "currency", "yen", "brokenbar", "section",
	"dieresis", "copyright", "ordfeminine", "guillemotleft", "logicalnot", "sfthyphen", "registered", "macron",
	"degree", "plusminus", "twosuperior", "threesuperior", "acute", "mu", "paragraph", "periodcentered",
	"cedilla", "onesuperior", "ordmasculine", "guillemotright", "onequarter", "onehalf", "threequarters", "questiondown",
	"Agrave", "Aacute", "Acircumflex", "Atilde", "Adieresis", "Aring", "AE", "Ccedilla",
	"Egrave", "Eacute", "Ecircumflex", "Edieresis", "Igrave", "Iacute", "Icircumflex", "Idieresis",
	"Eth", "Ntilde", "Ograve", "Oacute", "Ocircumflex", "Otilde", "Odieresis", "multiply",
	"Oslash", "Ugrave", "Uacute", "Ucircumflex", "Udieresis", "Yacute", "Thorn", "germandbls",
	"agrave", "aacute", "acircumflex", "atilde", "adieresis", "aring", "ae", "ccedilla",
	"egrave", "eacute", "ecircumflex", "edieresis", "igrave", "iacute", "icircumflex", "idieresis",
	"eth", "ntilde", "ograve", "oacute", "ocircumflex", "otilde", "odieresis", "divide",
	"oslash", "ugrave", "uacute", "ucircumflex", "udieresis", "yacute", "thorn", "ydieresis",
}

var extraNames = map[string]rune{
	"quoteright": '’', "quoteleft": '‘', "quotedblleft": '“', "quotedblright": '”',
	"quotesinglbase": '‚', "quotedblbase": '„', "bullet": '•', "endash": '–', "emdash": '—',
	"dagger": '†', "daggerdbl": '‡', "ellipsis": '…', "perthousand": '‰',
	"guilsinglleft": '‹', "guilsinglright": '›', "fi": 'ﬁ', "fl": 'ﬂ', "ff": 'ﬀ',
	"ffi": 'ﬃ', "ffl": 'ﬄ', "trademark": '™', "Euro": '€', "OE": 'Œ', "oe": 'œ',
	"Scaron": 'Š', "scaron": 'š', "Zcaron": 'Ž', "zcaron": 'ž', "Ydieresis": 'Ÿ',
	"florin": 'ƒ', "circumflex": 'ˆ', "tilde": '˜', "minus": '−', "fraction": '⁄',
	"dotlessi": 'ı', "Lslash": 'Ł', "lslash": 'ł', "breve": '˘', "dotaccent": '˙',
	"ring": '˚', "hungarumlaut": '˝', "ogonek": '˛', "caron": 'ˇ', "uni00A0": '\u00a0',
}

var glyphNames = map[string]rune{}

func init() {
	for i, n := range asciiNames {
		glyphNames[n] = rune(0x20 + i)
	}
	for c := 'A'; c <= 'Z'; c++ {
		glyphNames[string(c)] = c
		glyphNames[strings.ToLower(string(c))] = c + 32
	}
	for i, n := range asciiPunctHigh {
		glyphNames[n] = rune('[' + i)
	}
	for i, n := range asciiPunctTail {
		glyphNames[n] = rune('{' + i)
	}
	for i, n := range latin1Names {
		glyphNames[n] = rune(0xA0 + i)
	}
	for n, r := range extraNames {
		glyphNames[n] = r
	}

	for c := 0x20; c < 0x7F; c++ {
		WinAnsiEncoding[c] = rune(c)
		MacRomanEncoding[c] = rune(c)
		StandardEncoding[c] = rune(c)
	}
	StandardEncoding['\''] = '’'
	StandardEncoding['`'] = '‘'
	for i, r := range winAnsiHigh {
		WinAnsiEncoding[0x80+i] = r
	}
	for c := 0xA0; c <= 0xFF; c++ {
		WinAnsiEncoding[c] = rune(c)
	}
	// WinAnsi maps these to space and hyphen in practice.
	WinAnsiEncoding[0xA0] = ' '
	WinAnsiEncoding[0xAD] = '-'
	for i, r := range macRomanHigh {
		MacRomanEncoding[0x80+i] = r
	}
	for b, r := range standardHigh {
		StandardEncoding[b] = r
	}
}

// GlyphRune maps a glyph name to a rune, including the uniXXXX and uXXXX
// forms and suffixed variants such as "a.sc".
func GlyphRune(name string) (rune, bool) {
	if r, ok := glyphNames[name]; ok {
		return r, true
	}
	if i := strings.IndexByte(name, '.'); i > 0 {
		return GlyphRune(name[:i])
	}
	if strings.HasPrefix(name, "uni") && len(name) >= 7 {
		if v, err := strconv.ParseUint(name[3:7], 16, 32); err == nil {
			return rune(v), true
		}
	}
	if strings.HasPrefix(name, "u") && len(name) >= 5 && len(name) <= 7 {
		if v, err := strconv.ParseUint(name[1:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	return 0, false
}

// NamedEncoding returns the base encoding called name.
func NamedEncoding(name string) (Encoding, bool) {
	switch name {
	case "WinAnsiEncoding":
		return WinAnsiEncoding, true
	case "MacRomanEncoding":
		return MacRomanEncoding, true
	case "StandardEncoding":
		return StandardEncoding, true
	}
	return Encoding{}, false
}

var winAnsiReverse map[rune]byte

func init() {
	winAnsiReverse = make(map[rune]byte, 224)
	for c := 255; c >= 0x20; c-- {
		if r := WinAnsiEncoding[c]; r != 0 {
			winAnsiReverse[r] = byte(c)
		}
	}
	winAnsiReverse['\u00a0'] = 0xA0
	winAnsiReverse['\u00ad'] = 0xAD
}

// EncodeWinAnsi converts text for a simple font using WinAnsiEncoding.
// Runes outside the encoding become '?'.
func EncodeWinAnsi(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := winAnsiReverse[r]; ok {
			out = append(out, b)
			continue
		}
		out = append(out, '?')
	}
	return out
}
