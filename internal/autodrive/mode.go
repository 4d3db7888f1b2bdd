package autodrive

import "fmt"

// Mode selects which loops run.
type Mode string

const (
	ModeDrive       Mode = "d"
	ModeRecord      Mode = "r"
	ModeDriveRecord Mode = "dr"
)

// ParseMode accepts d, r or dr.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeDrive, ModeRecord, ModeDriveRecord:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q: want d, r or dr", s)
	}
}

// Drives reports whether the perception and control loops run.
func (m Mode) Drives() bool { return m == ModeDrive || m == ModeDriveRecord }

// Records reports whether frames are written to video.
func (m Mode) Records() bool { return m == ModeRecord || m == ModeDriveRecord }
