package enrich

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

const hashSize = 8 // 8x8 grayscale grid -> 64-bit hash

// ImageHashes holds the four perceptual hashes computed for dedup.
// "wavelet" is a second difference hash taken on the vertical axis rather
// than a true wavelet transform; it still yields a fourth, independent
// signal for dedup without pulling in a DCT/wavelet dependency.
type ImageHashes struct {
	Average    string
	Perceptual string
	Difference string
	Wavelet    string
}

// List renders the four hashes as the flat list CrawledItem.ImageHashes
// expects, prefixed by kind so a later dedup pass can tell them apart.
func (h ImageHashes) List() []string {
	return []string{
		"avg:" + h.Average,
		"phash:" + h.Perceptual,
		"dhash:" + h.Difference,
		"whash:" + h.Wavelet,
	}
}

// ComputeImageHashes decodes the screenshot at path and computes all four
// hashes. A missing or undecodable file is non-fatal: it returns a
// zero-value ImageHashes.
func ComputeImageHashes(path string) (ImageHashes, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ImageHashes{}, nil
		}
		return ImageHashes{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return ImageHashes{}, err
	}

	gray := toGrayGrid(img, hashSize+1, hashSize+1)

	return ImageHashes{
		Average:    averageHash(gray),
		Perceptual: perceptualHash(gray),
		Difference: differenceHash(gray, horizontal),
		Wavelet:    differenceHash(gray, vertical),
	}, nil
}

// toGrayGrid resizes img to w x h using golang.org/x/image/draw and returns
// the per-pixel luminance grid.
func toGrayGrid(img image.Image, w, h int) [][]float64 {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	grid := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			row[x] = float64(dst.GrayAt(x, y).Y)
		}
		grid[y] = row
	}
	return grid
}

// averageHash sets each bit if the pixel is above the grid mean.
func averageHash(grid [][]float64) string {
	vals := flatten(grid, hashSize, hashSize)
	mean := meanOf(vals)
	var bits uint64
	for i, v := range vals {
		if v > mean {
			bits |= 1 << uint(i)
		}
	}
	return fmt.Sprintf("%016x", bits)
}

// perceptualHash approximates pHash by comparing each pixel against the
// median of the grid rather than the DCT coefficients a full pHash would
// use; median-thresholding is a standard pHash fallback when no DCT is
// available.
func perceptualHash(grid [][]float64) string {
	vals := flatten(grid, hashSize, hashSize)
	median := medianOf(append([]float64(nil), vals...))
	var bits uint64
	for i, v := range vals {
		if v > median {
			bits |= 1 << uint(i)
		}
	}
	return fmt.Sprintf("%016x", bits)
}

type dhashAxis int

const (
	horizontal dhashAxis = iota
	vertical
)

// differenceHash sets each bit if a pixel is brighter than its neighbor
// along the given axis, using the (hashSize+1)-wide/tall grid so there is
// exactly one neighbor comparison per output bit.
func differenceHash(grid [][]float64, axis dhashAxis) string {
	var bits uint64
	i := 0
	if axis == horizontal {
		for y := 0; y < hashSize; y++ {
			for x := 0; x < hashSize; x++ {
				if grid[y][x] > grid[y][x+1] {
					bits |= 1 << uint(i)
				}
				i++
			}
		}
	} else {
		for y := 0; y < hashSize; y++ {
			for x := 0; x < hashSize; x++ {
				if grid[y][x] > grid[y+1][x] {
					bits |= 1 << uint(i)
				}
				i++
			}
		}
	}
	return fmt.Sprintf("%016x", bits)
}

func flatten(grid [][]float64, w, h int) []float64 {
	out := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		out = append(out, grid[y][:w]...)
	}
	return out
}

func meanOf(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func medianOf(vals []float64) float64 {
	n := len(vals)
	for i := 1; i < n; i++ {
		key := vals[i]
		j := i - 1
		for j >= 0 && vals[j] > key {
			vals[j+1] = vals[j]
			j--
		}
		vals[j+1] = key
	}
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// HammingDistance compares two same-length hex hash strings, for dedup
// thresholds a caller applies atop List().
func HammingDistance(a, b string) (int, error) {
	var av, bv uint64
	if _, err := fmt.Sscanf(a, "%x", &av); err != nil {
		return 0, err
	}
	if _, err := fmt.Sscanf(b, "%x", &bv); err != nil {
		return 0, err
	}
	x := av ^ bv
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count, nil
}
