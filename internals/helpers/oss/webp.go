package oss

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"
)

// WebPOptions bound the evidence images kept for manual payment proofs.
type WebPOptions struct {
	MaxW     int
	MaxH     int
	Quality  float32
	TargetKB int // 0 = pakai Quality saja
	MinQ     float32
}

var EvidenceWebP = WebPOptions{MaxW: 1600, MaxH: 1600, Quality: 80, TargetKB: 400, MinQ: 45}

// IsImage sniffs the first bytes; PDFs and other files are stored untouched.
func IsImage(all []byte) bool {
	return strings.HasPrefix(http.DetectContentType(head(all)), "image/")
}

func head(all []byte) []byte {
	if len(all) > 512 {
		return all[:512]
	}
	return all
}

func decodeImage(all []byte, filename string) (image.Image, error) {
	if len(all) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	ct := http.DetectContentType(head(all))
	r := bytes.NewReader(all)

	switch {
	case strings.Contains(ct, "jpeg"):
		return jpeg.Decode(r)
	case strings.Contains(ct, "png"):
		return png.Decode(r)
	case strings.Contains(ct, "webp"):
		return webp.Decode(r)
	}
	// fallback by extension
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return jpeg.Decode(r)
	case ".png":
		return png.Decode(r)
	case ".webp":
		return webp.Decode(r)
	}
	return nil, fmt.Errorf("format tidak didukung: %s", ct)
}

func downscaleIfNeeded(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return src
	}
	scale := 1.0
	if maxW > 0 {
		scale = math.Min(scale, float64(maxW)/float64(w))
	}
	if maxH > 0 {
		scale = math.Min(scale, float64(maxH)/float64(h))
	}
	nw := max(int(math.Round(float64(w)*scale)), 1)
	nh := max(int(math.Round(float64(h)*scale)), 1)
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encodeQ(img image.Image, q float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, &webp.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToWebP decodes jpeg/png/webp, downsizes to the bounds and re-encodes. With
// TargetKB set, quality is binary-searched down to MinQ.
func ToWebP(all []byte, filename string, opt WebPOptions) ([]byte, error) {
	img, err := decodeImage(all, filename)
	if err != nil {
		return nil, err
	}
	img = downscaleIfNeeded(img, opt.MaxW, opt.MaxH)

	q := opt.Quality
	if q <= 0 {
		q = 80
	}
	out, err := encodeQ(img, q)
	if err != nil || opt.TargetKB <= 0 || len(out) <= opt.TargetKB*1024 {
		return out, err
	}

	low, high := opt.MinQ, q
	if low <= 0 || low > high {
		low = 45
	}
	best := out
	for i := 0; i < 6; i++ {
		mid := (low + high) / 2
		data, err := encodeQ(img, mid)
		if err != nil {
			return nil, err
		}
		if len(data) <= opt.TargetKB*1024 {
			best = data
			low = mid
		} else {
			high = mid
			if len(data) < len(best) {
				best = data
			}
		}
	}
	return best, nil
}
