package source

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SysfsRoot is where the kernel lists video4linux devices.
const SysfsRoot = "/sys/class/video4linux"

// Device is a video input device.
type Device struct {
	ID     string
	Index  int
	Label  string
	Facing FacingMode `json:",omitempty"`
}

// Classification is the result of sorting devices by the lens they expose.
type Classification struct {
	Front *Device
	Back  *Device
	Wide  *Device
}

var (
	frontKeywords = []string{"front", "frontal", "user"}
	backKeywords  = []string{"back", "traseira", "environment"}
	wideKeywords  = []string{"wide", "grande angular"}
)

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Classify picks front, back and wide lenses by label keyword, then by the
// facing mode the device reports. The first match of each kind wins. When
// nothing is labelled as front-facing, the first unclassified device is
// assumed to face the user, which is what a plain webcam does.
func Classify(devices []Device) Classification {
	var c Classification
	used := make(map[int]bool)
	for i := range devices {
		d := &devices[i]
		label := strings.ToLower(d.Label)
		switch {
		case containsAny(label, frontKeywords):
			if c.Front == nil {
				c.Front = d
				used[i] = true
			}
		case containsAny(label, backKeywords):
			if containsAny(label, wideKeywords) {
				if c.Wide == nil {
					c.Wide = d
					used[i] = true
				}
			} else if c.Back == nil {
				c.Back = d
				used[i] = true
			}
		}
	}
	for i := range devices {
		d := &devices[i]
		if used[i] {
			continue
		}
		switch {
		case d.Facing == FacingUser && c.Front == nil:
			c.Front = d
			used[i] = true
		case d.Facing == FacingEnvironment && c.Back == nil:
			c.Back = d
			used[i] = true
		}
	}
	if c.Front == nil {
		for i := range devices {
			if !used[i] {
				c.Front = &devices[i]
				break
			}
		}
	}
	return c
}

// ListDevices enumerates the video input devices known to the kernel.
func ListDevices() ([]Device, error) {
	return ListDevicesIn(SysfsRoot)
}

// ListDevicesIn enumerates video4linux devices below root. Metadata nodes
// exposed by the same camera (index other than 0) are skipped. A missing
// root yields no devices.
func ListDevicesIn(root string) ([]Device, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var devices []Device
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "video") {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(name, "video"))
		if err != nil {
			continue
		}
		if b, err := os.ReadFile(filepath.Join(root, name, "index")); err == nil {
			if strings.TrimSpace(string(b)) != "0" {
				continue
			}
		}
		label := name
		if b, err := os.ReadFile(filepath.Join(root, name, "name")); err == nil {
			label = strings.TrimSpace(string(b))
		}
		devices = append(devices, Device{
			ID:    "/dev/" + name,
			Index: idx,
			Label: label,
		})
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Index < devices[j].Index
	})
	return devices, nil
}
