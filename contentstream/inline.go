package contentstream

import (
	"fmt"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/filters"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/scanner"
)

var inlineKeys = map[string]string{
	"BPC": "BitsPerComponent",
	"CS":  "ColorSpace",
	"D":   "Decode",
	"DP":  "DecodeParms",
	"F":   "Filter",
	"H":   "Height",
	"W":   "Width",
	"IM":  "ImageMask",
	"I":   "Interpolate",
	"L":   "Length",
}

var inlineSpaces = map[string]string{
	"G":    "DeviceGray",
	"RGB":  "DeviceRGB",
	"CMYK": "DeviceCMYK",
	"I":    "Indexed",
}

// inlineImage reads "BI key value ... ID data EI" after BI was consumed.
func (r *run) inlineImage(s *scanner.Scanner) error {
	dict := raw.Dict()
	for {
		tok, err := s.Peek()
		if err != nil {
			return fmt.Errorf("inline image: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "ID" {
			s.Next()
			break
		}
		key, err := s.ReadObject()
		if err != nil {
			return fmt.Errorf("inline image key: %w", err)
		}
		val, err := s.ReadObject()
		if err != nil {
			return fmt.Errorf("inline image value: %w", err)
		}
		k, ok := key.(raw.NameObj)
		if !ok {
			continue
		}
		name := k.Val
		if full, ok := inlineKeys[name]; ok {
			name = full
		}
		dict.Set(name, expandInline(name, val))
	}
	data, err := s.ReadInlineImage()
	if err != nil {
		return err
	}
	r.h.Image(Image{
		Inline: true,
		Dict:   dict,
		Data:   data,
		Box:    coords.Rect{URX: 1, URY: 1}.Transform(r.st.cur.CTM),
	})
	return nil
}

func expandInline(key string, val raw.Object) raw.Object {
	switch key {
	case "ColorSpace":
		if n, ok := val.(raw.NameObj); ok {
			if full, ok := inlineSpaces[n.Val]; ok {
				return raw.Name(full)
			}
		}
	case "Filter":
		switch v := val.(type) {
		case raw.NameObj:
			return raw.Name(filters.Canonical(v.Val))
		case *raw.ArrayObj:
			out := raw.NewArray()
			for _, it := range v.Items {
				if n, ok := it.(raw.NameObj); ok {
					out.Append(raw.Name(filters.Canonical(n.Val)))
				}
			}
			return out
		}
	}
	return val
}
