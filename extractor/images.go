package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/wudi/charterkit/coords"
	"github.com/wudi/charterkit/ir/raw"
	"github.com/wudi/charterkit/observability"
)

// ImageAsset is an image painted on a page. Data is fully decoded unless
// Filter names an image codec (DCTDecode, JPXDecode, ...) left in place.
type ImageAsset struct {
	Page             int
	Name             string
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       string
	Filter           string
	Inline           bool
	Box              coords.Rect
	Data             []byte
}

// ExtractImages returns image XObjects and inline images in paint order.
// Images inside form XObjects are included.
func (e *Extractor) ExtractImages(ctx context.Context) ([]ImageAsset, error) {
	var out []ImageAsset
	for _, p := range e.pages {
		res, err := e.page(ctx, p.Number)
		if err != nil {
			return nil, err
		}
		for _, img := range res.images {
			asset := ImageAsset{Page: p.Number, Name: img.Name, Inline: img.Inline, Box: img.Box}
			dict := img.Dict
			if w, ok := e.doc.GetInt(dict, "Width"); ok {
				asset.Width = int(w)
			}
			if h, ok := e.doc.GetInt(dict, "Height"); ok {
				asset.Height = int(h)
			}
			if bpc, ok := e.doc.GetInt(dict, "BitsPerComponent"); ok {
				asset.BitsPerComponent = int(bpc)
			}
			if mask, ok := e.doc.Get(dict, "ImageMask"); ok {
				if b, isBool := mask.(raw.BoolObj); isBool && b.V {
					asset.BitsPerComponent, asset.ColorSpace = 1, "DeviceGray"
				}
			}
			if asset.ColorSpace == "" {
				asset.ColorSpace = e.colorSpaceName(dict)
			}
			var data []byte
			if img.Inline {
				names, params := e.doc.StreamFilters(dict)
				data, asset.Filter, err = e.doc.DecodeInline(ctx, img.Data, names, params)
			} else {
				data, asset.Filter, err = e.doc.Stream(ctx, img.Stream)
			}
			if err != nil {
				e.log.Warn("image undecodable", observability.Int("page", p.Number), observability.String("image", img.Name), observability.Err(err))
				continue
			}
			asset.Data = data
			out = append(out, asset)
		}
	}
	return out, nil
}

func (e *Extractor) colorSpaceName(dict *raw.DictObj) string {
	cs, ok := e.doc.Get(dict, "ColorSpace")
	if !ok {
		return ""
	}
	switch v := cs.(type) {
	case raw.NameObj:
		return v.Val
	case *raw.ArrayObj:
		if v.Len() > 0 {
			if n, ok := v.Items[0].(raw.NameObj); ok {
				if n.Val == "ICCBased" && v.Len() > 1 {
					if st, err := e.doc.Resolve(v.Items[1]); err == nil {
						if s, ok := st.(*raw.StreamObj); ok {
							switch c, _ := e.doc.GetInt(s.Dict, "N"); c {
							case 1:
								return "DeviceGray"
							case 4:
								return "DeviceCMYK"
							}
							return "DeviceRGB"
						}
					}
				}
				return n.Val
			}
		}
	}
	return ""
}

// ToImage converts the asset into an image.Image.
func (i ImageAsset) ToImage() (image.Image, error) {
	if len(i.Data) == 0 {
		return nil, errors.New("image data is empty")
	}
	switch i.Filter {
	case "DCTDecode":
		return jpeg.Decode(bytes.NewReader(i.Data))
	case "":
	default:
		return nil, fmt.Errorf("image codec %s not supported", i.Filter)
	}
	w, h := i.Width, i.Height
	if w <= 0 || h <= 0 {
		return nil, errors.New("invalid image dimensions")
	}
	rect := image.Rect(0, 0, w, h)
	if i.BitsPerComponent == 1 {
		stride := (w + 7) / 8
		if len(i.Data) < stride*h {
			return nil, fmt.Errorf("short 1-bit image data: %d bytes for %dx%d", len(i.Data), w, h)
		}
		g := image.NewGray(rect)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if i.Data[y*stride+x/8]&(0x80>>(x%8)) != 0 {
					g.Pix[y*g.Stride+x] = 0xFF
				}
			}
		}
		return g, nil
	}
	n := w * h
	switch {
	case len(i.Data) >= n*4 && i.ColorSpace == "DeviceCMYK":
		return &image.CMYK{Pix: i.Data[:n*4], Stride: w * 4, Rect: rect}, nil
	case len(i.Data) >= n*3:
		return &rgbImage{Pix: i.Data[:n*3], Stride: w * 3, Rect: rect}, nil
	case len(i.Data) >= n:
		return &image.Gray{Pix: i.Data[:n], Stride: w, Rect: rect}, nil
	}
	return nil, fmt.Errorf("unsupported image format: %d bytes for %dx%d image", len(i.Data), w, h)
}

// ToPNG encodes the asset as PNG.
func (i ImageAsset) ToPNG() ([]byte, error) {
	img, err := i.ToImage()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type rgbImage struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func (p *rgbImage) ColorModel() color.Model { return color.RGBAModel }
func (p *rgbImage) Bounds() image.Rectangle { return p.Rect }
func (p *rgbImage) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 255}
}
