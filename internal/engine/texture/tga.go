package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

const tgaHeaderSize = 18

// DecodeTGA decodes uncompressed (type 2) and run-length encoded (type 10)
// true-color TGA data with 24 or 32 bits per pixel.
func DecodeTGA(data []byte) (*image.RGBA, error) {
	if len(data) < tgaHeaderSize {
		return nil, errors.New("tga: header truncated")
	}
	if data[1] != 0 {
		return nil, errors.New("tga: color-mapped images are not supported")
	}
	kind := data[2]
	if kind != 2 && kind != 10 {
		return nil, fmt.Errorf("tga: unsupported image type %d", kind)
	}
	bpp := int(data[16])
	if bpp != 24 && bpp != 32 {
		return nil, fmt.Errorf("tga: unsupported depth %d", bpp)
	}

	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	start := tgaHeaderSize + int(data[0])
	if start > len(data) {
		return nil, errors.New("tga: image id truncated")
	}

	d := &tgaDecoder{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		src:         data[start:],
		size:        bpp / 8,
		topToBottom: data[17]&0x20 != 0,
	}
	var err error
	if kind == 2 {
		err = d.raw(width * height)
	} else {
		err = d.rle(width * height)
	}
	if err != nil {
		return nil, err
	}
	return d.img, nil
}

type tgaDecoder struct {
	img         *image.RGBA
	src         []byte
	pos         int
	size        int
	topToBottom bool
	n           int
}

// next reads one BGR(A) pixel.
func (d *tgaDecoder) next() (color.NRGBA, bool) {
	if d.pos+d.size > len(d.src) {
		return color.NRGBA{}, false
	}
	p := d.src[d.pos : d.pos+d.size]
	d.pos += d.size
	c := color.NRGBA{R: p[2], G: p[1], B: p[0], A: 255}
	if d.size == 4 {
		c.A = p[3]
	}
	return c, true
}

// put stores c at the next pixel in file order.
func (d *tgaDecoder) put(c color.NRGBA) {
	w := d.img.Rect.Dx()
	x, y := d.n%w, d.n/w
	if !d.topToBottom {
		y = d.img.Rect.Dy() - 1 - y
	}
	d.img.Set(x, y, c)
	d.n++
}

func (d *tgaDecoder) raw(total int) error {
	for d.n < total {
		c, ok := d.next()
		if !ok {
			return errors.New("tga: pixel data truncated")
		}
		d.put(c)
	}
	return nil
}

func (d *tgaDecoder) rle(total int) error {
	for d.n < total {
		if d.pos >= len(d.src) {
			return errors.New("tga: pixel data truncated")
		}
		packet := d.src[d.pos]
		d.pos++
		count := int(packet&0x7f) + 1

		if packet&0x80 != 0 {
			c, ok := d.next()
			if !ok {
				return errors.New("tga: run truncated")
			}
			for i := 0; i < count && d.n < total; i++ {
				d.put(c)
			}
			continue
		}
		for i := 0; i < count && d.n < total; i++ {
			c, ok := d.next()
			if !ok {
				return errors.New("tga: raw packet truncated")
			}
			d.put(c)
		}
	}
	return nil
}
