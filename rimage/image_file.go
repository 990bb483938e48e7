package rimage

import (
	"image"
	// register decoders for the image formats the readers accept.
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	_ "golang.org/x/image/tiff"
)

// ReadImageFromFile decodes a png, jpeg or tiff image.
func ReadImageFromFile(path string) (image.Image, error) {
	//nolint:gosec
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open image %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode image %q", path)
	}
	return img, nil
}

// ReadDepthMapFromFile reads a 16 bit gray png or tiff into a normalized depth map.
func ReadDepthMapFromFile(path string) (*DepthMap, error) {
	img, err := ReadImageFromFile(path)
	if err != nil {
		return nil, err
	}
	return ConvertImageToDepthMap(img)
}

// WriteImageToFile encodes an image as a png.
func WriteImageToFile(path string, img image.Image) (err error) {
	//nolint:gosec
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return errors.Wrapf(err, "cannot create image %q", path)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return png.Encode(f, img)
}
