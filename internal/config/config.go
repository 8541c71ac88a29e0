// Package config loads ocdctl.ini and overlays OCDCTL_* environment
// variables on top of it, the way ocdctl's endurance supervisor and CLI
// both expect their settings delivered.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// Config holds settings shared by the CLI and the endurance supervisor.
type Config struct {
	Port         string
	Baud         int
	MTU          int
	Xtal         uint32 // Hz
	MaxCycles    int
	VerifyRepeat int
	MailTo       string
	StateFile    string
}

// defaultBaud differs by platform, matching the original client's
// Windows/Unix split.
func defaultBaud() int {
	if strings.HasPrefix(strings.ToLower(os.Getenv("OS")), "windows") {
		return 57600
	}
	return 115200
}

// Load reads ocdctl.ini from the first hit in cwd, $OCDCTL_HOME, $HOME
// (missing file is not an error — every field then falls back to its
// documented default), then overlays OCDCTL_* environment variables via
// viper so a deployment can override any setting without editing the
// file.
func Load() (*Config, error) {
	var searchPaths []string
	searchPaths = append(searchPaths, filepath.Join(".", "ocdctl.ini"))
	if home := os.Getenv("OCDCTL_HOME"); home != "" {
		searchPaths = append(searchPaths, filepath.Join(home, "ocdctl.ini"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, "ocdctl.ini"))
	}

	var iniFile *ini.File
	for _, path := range searchPaths {
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		loaded, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		iniFile = loaded
		break
	}
	if iniFile == nil {
		iniFile = ini.Empty()
	}
	section := iniFile.Section("DEFAULT")

	cfg := &Config{
		Port:         section.Key("serial_port").MustString("auto"),
		Baud:         section.Key("baud").MustInt(defaultBaud()),
		MTU:          section.Key("mtu").MustInt(256),
		MaxCycles:    section.Key("max_cycles").MustInt(0),
		VerifyRepeat: section.Key("verify_repeat").MustInt(100),
		MailTo:       section.Key("mail_to").MustString(""),
		StateFile:    section.Key("state_file").MustString("cycle"),
	}

	xtalStr := section.Key("xtal").MustString("20M")
	xtal, err := ParseClockFrequency(xtalStr)
	if err != nil {
		return nil, fmt.Errorf("ocdctl.ini xtal: %w", err)
	}
	cfg.Xtal = xtal

	v := viper.New()
	v.SetEnvPrefix("OCDCTL")
	v.AutomaticEnv()
	overlayString(v, "PORT", &cfg.Port)
	overlayInt(v, "BAUD", &cfg.Baud)
	overlayInt(v, "MTU", &cfg.MTU)
	overlayInt(v, "MAX_CYCLES", &cfg.MaxCycles)
	overlayInt(v, "VERIFY_REPEAT", &cfg.VerifyRepeat)
	overlayString(v, "MAIL_TO", &cfg.MailTo)
	overlayString(v, "STATE_FILE", &cfg.StateFile)
	if raw := v.GetString("XTAL"); raw != "" {
		xtal, err := ParseClockFrequency(raw)
		if err != nil {
			return nil, fmt.Errorf("OCDCTL_XTAL: %w", err)
		}
		cfg.Xtal = xtal
	}

	return cfg, nil
}

func overlayString(v *viper.Viper, key string, dst *string) {
	if raw := v.GetString(key); raw != "" {
		*dst = raw
	}
}

func overlayInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}
