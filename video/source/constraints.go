package source

import (
	"fmt"
	"strconv"
	"strings"
)

// FacingMode is the direction a camera faces relative to the user.
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// ParseFacingMode accepts "user" or "environment". The empty string means user.
func ParseFacingMode(s string) (FacingMode, error) {
	switch FacingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", FacingUser:
		return FacingUser, nil
	case FacingEnvironment:
		return FacingEnvironment, nil
	}
	return "", fmt.Errorf("unknown facing mode %q", s)
}

// Constraints describe which camera to open and how.
type Constraints struct {
	// DeviceID selects an exact device (a path such as /dev/video2, a numeric
	// index, or a stream URI). When empty, FacingMode selects the device.
	DeviceID   string
	FacingMode FacingMode

	// Ideal capture resolution. Zero values mean no resolution hint.
	IdealWidth  int
	IdealHeight int
	IdealAspect float64
}

// Default resolution hints, landscape 16:9 and 4:3.
var (
	Wide     = Constraints{IdealWidth: 1280, IdealHeight: 720, IdealAspect: 16.0 / 9.0}
	Standard = Constraints{IdealWidth: 1440, IdealHeight: 1080, IdealAspect: 4.0 / 3.0}
)

// WithDevice returns a copy of c that targets the given device.
func (c Constraints) WithDevice(id string) Constraints {
	c.DeviceID = id
	return c
}

// WithFacing returns a copy of c that targets the given facing mode.
func (c Constraints) WithFacing(m FacingMode) Constraints {
	c.FacingMode = m
	return c
}

// Relaxed keeps the device selection but drops every resolution hint.
func (c Constraints) Relaxed() Constraints {
	return Constraints{DeviceID: c.DeviceID, FacingMode: c.FacingMode}
}

// HasResolution reports whether a resolution hint is set.
func (c Constraints) HasResolution() bool {
	return c.IdealWidth > 0 && c.IdealHeight > 0
}

// Target resolves the device selection into something the capture backend
// can open: an integer index, or a path/URI string.
func (c Constraints) Target(devices []Device) interface{} {
	if c.DeviceID != "" {
		id := strings.TrimPrefix(c.DeviceID, "/dev/video")
		if i, err := strconv.Atoi(id); err == nil {
			return i
		}
		return c.DeviceID
	}
	cl := Classify(devices)
	var d *Device
	switch c.FacingMode {
	case FacingEnvironment:
		d = cl.Back
		if d == nil {
			d = cl.Wide
		}
	default:
		d = cl.Front
	}
	if d == nil && len(devices) > 0 {
		d = &devices[0]
	}
	if d == nil {
		return 0
	}
	return d.Index
}

func (c Constraints) String() string {
	target := c.DeviceID
	if target == "" {
		target = "facing=" + string(c.FacingMode)
	}
	if !c.HasResolution() {
		return target
	}
	return fmt.Sprintf("%s %dx%d", target, c.IdealWidth, c.IdealHeight)
}
