package manifest

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Image header values.
const (
	ImageMagic  = "RMOD"
	ImageFormat = 1
)

// Image is a compiled module: a validated manifest in canonical CBOR, so two
// compilations of the same manifest are byte-identical.
type Image struct {
	Magic  string `cbor:"1,keyasint"`
	Format int    `cbor:"2,keyasint"`
	Module Module `cbor:"3,keyasint"`
}

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("manifest: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// Compile validates m and wraps it in an image.
func Compile(m *Module) (*Image, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	mod := *m
	mod.Path = ""
	mod.Exports = append([]string(nil), m.Exports...)
	mod.Shared = append([]string(nil), m.Shared...)
	return &Image{Magic: ImageMagic, Format: ImageFormat, Module: mod}, nil
}

// EncodeImage serializes an image.
func EncodeImage(img *Image) ([]byte, error) {
	return imageEncMode.Marshal(img)
}

// DecodeImage deserializes and checks an image.
func DecodeImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("manifest: unmarshal image: %w", err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("manifest: not a module image (magic %q)", img.Magic)
	}
	if img.Format != ImageFormat {
		return nil, fmt.Errorf("manifest: unsupported image format %d", img.Format)
	}
	if err := Validate(&img.Module); err != nil {
		return nil, err
	}
	return &img, nil
}

// WriteImage compiles m and writes the image to path.
func WriteImage(path string, m *Module) error {
	img, err := Compile(m)
	if err != nil {
		return err
	}
	data, err := EncodeImage(img)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0644)
}

// ReadImage reads a compiled module from path.
func ReadImage(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	img, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img.Module.Path = path
	return &img.Module, nil
}

// looksLikeImage checks for a CBOR map header followed by the magic string.
func looksLikeImage(data []byte) bool {
	if len(data) == 0 || data[0] < 0xa0 || data[0] > 0xbb {
		return false
	}
	head := data
	if len(head) > 16 {
		head = head[:16]
	}
	return bytes.Contains(head, []byte(ImageMagic))
}
