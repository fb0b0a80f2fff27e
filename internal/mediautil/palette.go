package mediautil

import (
	"bytes"
	"fmt"
	"image"
	"sort"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Dimensions decodes only the image header and returns width/height.
// Returns ok=false for non-image or unsupported payloads.
func Dimensions(data []byte) (width, height int, ok bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// Palette returns up to max dominant colors as #rrggbb hex strings.
// The image is downscaled to a small grid first and colors are bucketed to
// 4-bit channels so near-identical shades collapse into one entry.
func Palette(data []byte, max int) ([]string, error) {
	if max <= 0 {
		max = 5
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	const side = 32
	small := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	type bucket struct {
		key     uint16
		count   int
		r, g, b uint32
	}
	counts := map[uint16]*bucket{}
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			r, g, b, a := small.At(x, y).RGBA()
			if a < 0x8000 {
				continue
			}
			r >>= 8
			g >>= 8
			b >>= 8
			key := uint16(r>>4)<<8 | uint16(g>>4)<<4 | uint16(b>>4)
			bk := counts[key]
			if bk == nil {
				bk = &bucket{key: key}
				counts[key] = bk
			}
			bk.count++
			bk.r += r
			bk.g += g
			bk.b += b
		}
	}
	if len(counts) == 0 {
		return []string{}, nil
	}

	buckets := make([]*bucket, 0, len(counts))
	for _, bk := range counts {
		buckets = append(buckets, bk)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].key < buckets[j].key
	})

	if len(buckets) > max {
		buckets = buckets[:max]
	}
	out := make([]string, 0, len(buckets))
	for _, bk := range buckets {
		n := uint32(bk.count)
		out = append(out, fmt.Sprintf("#%02x%02x%02x", bk.r/n, bk.g/n, bk.b/n))
	}
	return out, nil
}
