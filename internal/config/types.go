package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"localnotify/internal/content"
	"localnotify/internal/platform"
	logx "localnotify/pkg/logx"
)

type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Storage  StorageConfig   `json:"storage"`
	Center   CenterConfig    `json:"center"`
	Facade   FacadeConfig    `json:"facade"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Logx converts the section to the logger's own config.
func (l LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
	}
}

// StorageConfig selects where pending requests are kept.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/pending.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// CenterConfig drives the local notification center and location manager.
//
// Defaults (when fields are omitted/zero):
//   - timezone: process local time
//   - prompt: "grant"
//   - permission: "undetermined"
//   - location: "when_in_use"
//   - tick: "1s"
//   - rate_per_sec: 0 (unlimited)
//   - burst: 1
type CenterConfig struct {
	Timezone string `json:"timezone,omitempty"`

	// Prompt is how the simulated user answers a permission request:
	// "grant" or "deny".
	Prompt string `json:"prompt,omitempty"`

	// Permission is the state reported before the user has answered.
	Permission string `json:"permission,omitempty"`

	// Location is the location authorization status; hot-reloadable.
	Location string `json:"location,omitempty"`

	Tick       string  `json:"tick,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

// FacadeConfig tunes the scheduling facade.
type FacadeConfig struct {
	// AuthorizationOptions lists what to ask the user for:
	// any of "alert", "sound", "badge". Empty means all three.
	AuthorizationOptions []string `json:"authorization_options,omitempty"`

	// CancelRequiresPermission defaults to true when omitted.
	CancelRequiresPermission *bool `json:"cancel_requires_permission,omitempty"`

	Defaults ContentDefaults `json:"defaults"`
}

// ContentDefaults are the payload values optional fields fall back to.
type ContentDefaults struct {
	Sound       string `json:"sound,omitempty"`
	Category    string `json:"category,omitempty"`
	Thread      string `json:"thread,omitempty"`
	LaunchImage string `json:"launch_image,omitempty"`
}

func (d ContentDefaults) Payload() content.Payload {
	p := content.DefaultPayload()
	p.Sound = d.Sound
	p.Category = d.Category
	p.Thread = d.Thread
	p.LaunchImage = d.LaunchImage
	return p
}

// TelegramConfig enables the optional Telegram delivery sink.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// ---- resolved values ----

func (c CenterConfig) Zone() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("center.timezone: %w", err)
	}
	return loc, nil
}

func (c CenterConfig) Grants() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(c.Prompt)) {
	case "", "grant", "allow", "yes":
		return true, nil
	case "deny", "no":
		return false, nil
	}
	return false, fmt.Errorf("center.prompt: unknown answer %q", c.Prompt)
}

func (c CenterConfig) InitialPermission() (platform.PermissionState, error) {
	st, err := platform.ParsePermissionState(c.Permission)
	if err != nil {
		return st, fmt.Errorf("center.permission: %w", err)
	}
	return st, nil
}

func (c CenterConfig) LocationAuthorization() (platform.LocationAuthorization, error) {
	if strings.TrimSpace(c.Location) == "" {
		return platform.LocationAuthorizedWhenInUse, nil
	}
	st, err := platform.ParseLocationAuthorization(c.Location)
	if err != nil {
		return st, fmt.Errorf("center.location: %w", err)
	}
	return st, nil
}

func (c CenterConfig) TickInterval() (time.Duration, error) {
	return ParseDurationOrDefault("center.tick", c.Tick, time.Second)
}

func (f FacadeConfig) Options() (platform.AuthorizationOptions, error) {
	if len(f.AuthorizationOptions) == 0 {
		return platform.DefaultAuthorizationOptions, nil
	}
	var out platform.AuthorizationOptions
	for _, raw := range f.AuthorizationOptions {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "alert":
			out |= platform.OptionAlert
		case "sound":
			out |= platform.OptionSound
		case "badge":
			out |= platform.OptionBadge
		default:
			return 0, fmt.Errorf("facade.authorization_options: unknown option %q", raw)
		}
	}
	return out, nil
}

func (f FacadeConfig) CancelGated() bool {
	return f.CancelRequiresPermission == nil || *f.CancelRequiresPermission
}

// Validate checks every field that has a constrained format.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Center.Zone(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Center.Grants(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Center.InitialPermission(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Center.LocationAuthorization(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Center.TickInterval(); err != nil {
		errs = append(errs, err)
	}
	if c.Center.RatePerSec < 0 {
		errs = append(errs, errors.New("center.rate_per_sec must be >= 0"))
	}
	if _, err := c.Facade.Options(); err != nil {
		errs = append(errs, err)
	}
	if t := c.Telegram; t != nil && t.Enabled {
		if strings.TrimSpace(t.Token) == "" {
			errs = append(errs, errors.New("telegram.token is required when enabled"))
		}
		if t.ChatID == 0 {
			errs = append(errs, errors.New("telegram.chat_id is required when enabled"))
		}
	}
	return errors.Join(errs...)
}
