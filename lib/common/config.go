package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/fKV/lib/engine"
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// StoreConfig holds everything needed to open a store.
type StoreConfig struct {
	// Engine implementation (mem, pebble or native)
	Engine engine.Implementation

	// Device path of the store and the version it is opened with
	Path    string
	Version uint32

	// Expiry policy, TTL is only used with engine.GlobalExpiry
	ExpiryMode engine.ExpiryMode
	TTL        time.Duration

	// Path of the native helper library (native engine only)
	LibraryPath string

	// Device capacity in bytes (mem and pebble engines only, 0 = engine default)
	Capacity uint64

	// Sync pebble writes to disk
	Sync bool

	// Logging configuration
	LogLevel string
}

// ParseExpiryMode converts the textual mode (as printed by
// engine.ExpiryMode.String, case insensitive, or short forms none,
// arbitrary and global) into an engine.ExpiryMode.
func ParseExpiryMode(s string) (engine.ExpiryMode, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "none", "no_expiry", "":
		return engine.NoExpiry, nil
	case "arbitrary", "arbitrary_expiry":
		return engine.ArbitraryExpiry, nil
	case "global", "global_expiry":
		return engine.GlobalExpiry, nil
	default:
		return 0, fmt.Errorf("invalid expiry mode %q. must be one of none, arbitrary, global", s)
	}
}

// ParseEngine validates an engine name.
func ParseEngine(s string) (engine.Implementation, error) {
	switch impl := engine.Implementation(strings.ToLower(s)); impl {
	case engine.ImplMem, engine.ImplPebble, engine.ImplNative:
		return impl, nil
	default:
		return "", fmt.Errorf("invalid engine %q. must be one of mem, pebble, native", s)
	}
}

// String returns a formatted string representation of the configuration
func (c *StoreConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Store")
	addField("Path", c.Path)
	addField("Version", fmt.Sprintf("%d", c.Version))
	addField("Expiry Mode", c.ExpiryMode.String())
	if c.ExpiryMode == engine.GlobalExpiry {
		addField("TTL", c.TTL.String())
	}

	addSection("Engine")
	addField("Implementation", string(c.Engine))
	switch c.Engine {
	case engine.ImplNative:
		addField("Library", c.LibraryPath)
	case engine.ImplPebble:
		addField("Sync Writes", fmt.Sprintf("%t", c.Sync))
		fallthrough
	default:
		if c.Capacity == 0 {
			addField("Capacity", "default")
		} else {
			addField("Capacity", fmt.Sprintf("%d bytes", c.Capacity))
		}
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
