package dng

import "errors"

var (
	ErrInvalidHeader = errors.New("dng: invalid TIFF header")
	ErrTruncated     = errors.New("dng: truncated data")
	ErrCorrupt       = errors.New("dng: corrupt IFD structure")
	ErrNotDNG        = errors.New("dng: missing DNGVersion tag")
	ErrTagType       = errors.New("dng: unsupported tag type")
)
