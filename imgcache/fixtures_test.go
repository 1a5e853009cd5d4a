package imgcache

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	cellSize = 10
	gridW    = 9
	gridH    = 8
)

// gridImage paints a 9x8 grid of flat gray cells with the given levels.
func gridImage(level func(x, y int) uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, gridW*cellSize, gridH*cellSize))
	for y := 0; y < gridH*cellSize; y++ {
		for x := 0; x < gridW*cellSize; x++ {
			img.SetGray(x, y, color.Gray{Y: level(x/cellSize, y/cellSize)})
		}
	}

	return img
}

// stripesImage steps by 40 gray levels between every pair of neighbouring
// cells, so lossy re-encoding does not move its gradient hash.
func stripesImage() *image.Gray {
	row := [gridW]uint8{80, 120, 160, 120, 160, 120, 80, 120, 80}

	return gridImage(func(x, _ int) uint8 {
		return row[x]
	})
}

// numberedImage encodes n into the direction of the steps between cells,
// giving every n below 256 its own gradient hash.
func numberedImage(n int) *image.Gray {
	var row [gridW]uint8
	level := 128
	row[0] = uint8(level)
	for x := 1; x < gridW; x++ {
		if n&(1<<(x-1)) != 0 {
			level += 14
		} else {
			level -= 14
		}
		row[x] = uint8(level)
	}

	return gridImage(func(x, _ int) uint8 {
		return row[x]
	})
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))

	return buf.Bytes()
}
