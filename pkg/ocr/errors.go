package ocr

import "errors"

// ErrDecodeImage is returned when the input bytes are not a supported raster image.
var ErrDecodeImage = errors.New("image could not be decoded")

// ErrEmptyImage is returned for images without any pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// ErrRecognition marks a single recognition attempt that produced no usable text.
var ErrRecognition = errors.New("recognition failed")
