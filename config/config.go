package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"booth/collage"
	"booth/video/process"
	"booth/video/source"
)

type Config struct {
	Camera  CameraConfig  `yaml:"camera"`
	Preview PreviewConfig `yaml:"preview"`
	Still   StillConfig   `yaml:"still"`
	Store   StoreConfig   `yaml:"store"`
	Collage CollageConfig `yaml:"collage"`

	// StaticDir holds the kiosk front end. Empty disables static serving.
	StaticDir string `yaml:"static_dir"`
	LogLevel  string `yaml:"log_level"`

	// Push notifications are only sent within these hours, local time.
	NotificationHoursStart int `yaml:"notification_hours_start"`
	NotificationHoursEnd   int `yaml:"notification_hours_end"`
	// PushSubscriber is the contact address given to push services.
	PushSubscriber string `yaml:"push_subscriber"`
}

type CameraConfig struct {
	// Device is a /dev/videoN path, an index, or empty to pick by facing mode.
	Device     string `yaml:"device"`
	FacingMode string `yaml:"facing_mode"`
	// Resolution is "wide" (1280x720) or "standard" (1440x1080).
	Resolution string `yaml:"resolution"`
}

type PreviewConfig struct {
	Mirrored *bool  `yaml:"mirrored"`
	Filter   string `yaml:"filter"`
}

type StillConfig struct {
	MaxEdge int `yaml:"max_edge"`
	Quality int `yaml:"quality"`
}

type StoreConfig struct {
	Dir      string `yaml:"dir"`
	Key      string `yaml:"key"`
	Capacity int    `yaml:"capacity"`
	// DatabaseDSN selects the MySQL backend instead of the filesystem.
	DatabaseDSN string `yaml:"database_dsn"`
}

type CollageConfig struct {
	Colors       []string          `yaml:"colors"`
	Patterns     map[string]string `yaml:"patterns"`
	Background   string            `yaml:"background"`
	CaptionColor string            `yaml:"caption_color"`
}

var DefaultColors = []string{
	"#ffffff", "#ff0000", "#00ff00", "#0000ff", "#ffff00", "#ff00ff",
	"#00ffff", "#000000", "#808080", "#800000", "#008000",
}

func (c *Config) withDefaults() {
	if c.Camera.Resolution == "" {
		c.Camera.Resolution = "wide"
	}
	if c.Camera.FacingMode == "" {
		c.Camera.FacingMode = string(source.FacingUser)
	}
	if c.Preview.Mirrored == nil {
		m := true
		c.Preview.Mirrored = &m
	}
	if c.Preview.Filter == "" {
		c.Preview.Filter = string(process.None)
	}
	if c.Still.MaxEdge == 0 {
		c.Still.MaxEdge = process.DefaultStill.MaxEdge
	}
	if c.Still.Quality == 0 {
		c.Still.Quality = process.DefaultStill.Quality
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "photos"
	}
	if c.Store.Key == "" {
		c.Store.Key = "photos"
	}
	if c.Store.Capacity == 0 {
		c.Store.Capacity = 5 << 20
	}
	if len(c.Collage.Colors) == 0 {
		c.Collage.Colors = DefaultColors
	}
	if c.Collage.Background == "" {
		c.Collage.Background = "#F8F9FE"
	}
	if c.Collage.CaptionColor == "" {
		c.Collage.CaptionColor = "#000000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.NotificationHoursEnd == 0 {
		c.NotificationHoursEnd = 24
	}
	if c.PushSubscriber == "" {
		c.PushSubscriber = "booth@localhost"
	}
}

func (c *Config) validate() error {
	if _, err := source.ParseFacingMode(c.Camera.FacingMode); err != nil {
		return err
	}
	if _, err := c.Constraints(); err != nil {
		return err
	}
	if _, err := process.ParseFilter(c.Preview.Filter); err != nil {
		return err
	}
	if c.Still.Quality < 1 || c.Still.Quality > 100 {
		return fmt.Errorf("still quality %d out of range", c.Still.Quality)
	}
	for _, s := range append([]string{c.Collage.Background, c.Collage.CaptionColor}, c.Collage.Colors...) {
		if _, err := collage.ParseColor(s); err != nil {
			return err
		}
	}
	if c.NotificationHoursStart < 0 || c.NotificationHoursEnd > 24 || c.NotificationHoursStart >= c.NotificationHoursEnd {
		return fmt.Errorf("invalid notification hours %d-%d", c.NotificationHoursStart, c.NotificationHoursEnd)
	}
	return nil
}

// Constraints returns the camera request described by the config.
func (c *Config) Constraints() (source.Constraints, error) {
	var cons source.Constraints
	switch strings.ToLower(c.Camera.Resolution) {
	case "wide":
		cons = source.Wide
	case "standard":
		cons = source.Standard
	default:
		return cons, fmt.Errorf("unknown camera resolution %q", c.Camera.Resolution)
	}
	facing, err := source.ParseFacingMode(c.Camera.FacingMode)
	if err != nil {
		return cons, err
	}
	return cons.WithFacing(facing).WithDevice(c.Camera.Device), nil
}

// Settings returns the initial preview render settings.
func (c *Config) Settings() process.Settings {
	f, _ := process.ParseFilter(c.Preview.Filter)
	facing, _ := source.ParseFacingMode(c.Camera.FacingMode)
	return process.Settings{
		Mirrored:   c.Preview.Mirrored == nil || *c.Preview.Mirrored,
		Filter:     f,
		FacingMode: facing,
	}
}

func (c *Config) StillOptions() process.StillOptions {
	return process.StillOptions{MaxEdge: c.Still.MaxEdge, Quality: c.Still.Quality}
}

// PatternNames lists the configured pattern names.
func (c *Config) PatternNames() []string {
	names := make([]string, 0, len(c.Collage.Patterns))
	for name := range c.Collage.Patterns {
		names = append(names, name)
	}
	return names
}

// PatternPath resolves a named pattern to its file. Relative paths are
// taken relative to base, normally the config file's directory.
func (c *Config) PatternPath(base, name string) (string, bool) {
	p, ok := c.Collage.Patterns[name]
	if !ok {
		return "", false
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return p, true
}
