package imgcache

import (
	"image"

	"github.com/corona10/goimagehash"
)

// Hasher computes a perceptual fingerprint of an image. Two images are treated
// as the same picture when their fingerprints are equal strings.
type Hasher interface {
	Hash(img image.Image) (string, error)
}

// HasherFunc adapts a plain function to the Hasher interface.
type HasherFunc func(img image.Image) (string, error)

func (f HasherFunc) Hash(img image.Image) (string, error) {
	return f(img)
}

// DifferenceHasher is a gradient-based hasher: it compares horizontally
// adjacent pixels of a downscaled grayscale copy, so re-encoded and resized
// copies of a picture collapse to the same value.
type DifferenceHasher struct{}

func (DifferenceHasher) Hash(img image.Image) (string, error) {
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", err
	}

	return hash.ToString(), nil
}
