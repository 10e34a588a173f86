package probe

import (
	"io"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ExifInfo is the subset of EXIF metadata worth keeping alongside archived
// media.
type ExifInfo struct {
	CameraMake  string    `json:"camera_make,omitempty"`
	CameraModel string    `json:"camera_model,omitempty"`
	TakenAt     time.Time `json:"taken_at,omitempty"`
	Orientation int       `json:"orientation,omitempty"`
}

// DecodeExif extracts EXIF metadata from an image stream. Images without an
// EXIF block return an error; callers treat that as "no metadata", not a
// failure.
func DecodeExif(r io.Reader) (ExifInfo, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return ExifInfo{}, err
	}

	var info ExifInfo
	if tag, err := x.Get(exif.Make); err == nil {
		info.CameraMake, _ = tag.StringVal()
	}
	if tag, err := x.Get(exif.Model); err == nil {
		info.CameraModel, _ = tag.StringVal()
	}
	if taken, err := x.DateTime(); err == nil {
		info.TakenAt = taken
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			info.Orientation = v
		}
	}
	return info, nil
}
