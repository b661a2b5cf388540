package config

import (
	"path/filepath"
)

// Platform holds the OS-specific locations of the producing application.
// It is resolved once at startup; the rest of the program only sees plain
// values.
type Platform struct {
	ActivityDir   string
	LaunchPath    string
	LaunchArgs    []string
	ProcessMarker string
}

// ResolvePlatform returns the defaults for goos with home as the user's home
// directory.
func ResolvePlatform(goos, home string) Platform {
	switch goos {
	case "windows":
		return Platform{
			ActivityDir:   filepath.Join(home, "Documents", "Zwift", "Activities"),
			LaunchPath:    `C:\Program Files (x86)\Zwift\ZwiftLauncher.exe`,
			ProcessMarker: "ZwiftApp.exe",
		}
	case "darwin":
		return Platform{
			ActivityDir:   filepath.Join(home, "Documents", "Zwift", "Activities"),
			LaunchPath:    "open",
			LaunchArgs:    []string{"-a", "Zwift"},
			ProcessMarker: "ZwiftAppSilicon",
		}
	default:
		// Linux runs Zwift through the zwift wrapper script, which starts the
		// Windows game binary under wine.
		return Platform{
			ActivityDir:   filepath.Join(home, "Zwift", "Activities"),
			LaunchPath:    "zwift",
			ProcessMarker: "ZwiftApp",
		}
	}
}
