package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/fKV/lib/common"
	"github.com/ValentinKolb/fKV/lib/engine"
	"github.com/ValentinKolb/fKV/lib/engine/engines/mem"
	"github.com/ValentinKolb/fKV/lib/engine/engines/native"
	"github.com/ValentinKolb/fKV/lib/engine/engines/pebble"
	"github.com/ValentinKolb/fKV/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

var log = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags needed to open a store to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, "pebble", WrapString("The engine to use (mem, pebble, native). The mem engine only lives as long as the command"))

	key = "path"
	cmd.PersistentFlags().String(key, "./fkv-data", WrapString("The device path of the store (a directory for the pebble engine)"))

	key = "store-version"
	cmd.PersistentFlags().Uint32(key, 1, WrapString("The version the store is opened with. Opening an existing store with another version fails"))

	key = "expiry"
	cmd.PersistentFlags().String(key, "none", WrapString("The expiry mode of the store (none, arbitrary, global)"))

	key = "ttl"
	cmd.PersistentFlags().Duration(key, 0, WrapString("The store wide ttl, only used with --expiry=global (whole seconds)"))

	key = "library"
	cmd.PersistentFlags().String(key, "", WrapString(fmt.Sprintf("Path of the device helper library for the native engine (default $%s or %s)", native.LibraryPathEnv, native.DefaultLibrary)))

	key = "capacity"
	cmd.PersistentFlags().Uint64(key, 0, WrapString("Device capacity in bytes for the mem and pebble engines (0 = engine default)"))

	key = "sync"
	cmd.PersistentFlags().Bool(key, true, WrapString("Sync every write to disk (pebble engine only)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The log level (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("fkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetStoreConfig reads the store configuration from viper
func GetStoreConfig() (*common.StoreConfig, error) {
	impl, err := common.ParseEngine(viper.GetString("engine"))
	if err != nil {
		return nil, err
	}
	mode, err := common.ParseExpiryMode(viper.GetString("expiry"))
	if err != nil {
		return nil, err
	}

	return &common.StoreConfig{
		Engine:      impl,
		Path:        viper.GetString("path"),
		Version:     viper.GetUint32("store-version"),
		ExpiryMode:  mode,
		TTL:         viper.GetDuration("ttl"),
		LibraryPath: viper.GetString("library"),
		Capacity:    viper.GetUint64("capacity"),
		Sync:        viper.GetBool("sync"),
		LogLevel:    viper.GetString("log-level"),
	}, nil
}

// NewEngine creates the engine selected by the configuration
func NewEngine(conf *common.StoreConfig) (engine.Engine, error) {
	switch conf.Engine {
	case engine.ImplMem:
		return mem.NewMemEngine(&mem.Options{Capacity: conf.Capacity}), nil
	case engine.ImplPebble:
		return pebble.NewPebbleEngine(&pebble.Options{Capacity: conf.Capacity, Sync: conf.Sync}), nil
	case engine.ImplNative:
		return native.NewNativeEngine(&native.Options{LibraryPath: conf.LibraryPath})
	default:
		return nil, fmt.Errorf("invalid engine %s", conf.Engine)
	}
}

// OpenStore initializes the loggers, creates the engine and opens the store
// described by the configuration
func OpenStore(conf *common.StoreConfig) (*store.Store, error) {
	if err := common.InitLoggers(conf.LogLevel); err != nil {
		return nil, err
	}

	eng, err := NewEngine(conf)
	if err != nil {
		return nil, err
	}
	expiry, err := store.ExpiryFromMode(conf.ExpiryMode, conf.TTL)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(eng, conf.Path, conf.Version, expiry)
	if err != nil {
		return nil, err
	}
	log.Debugf("opened %s store at %s", conf.Engine, conf.Path)
	return s, nil
}

// RunWithStore wraps a command function: it binds the flags, opens the
// configured store, runs fn and closes the store again. With --print-metrics
// the operation metrics are written to stdout afterwards.
func RunWithStore(fn func(cmd *cobra.Command, s *store.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := BindCommandFlags(cmd); err != nil {
			return err
		}
		conf, err := GetStoreConfig()
		if err != nil {
			return err
		}
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, conf.String())
		}

		s, err := OpenStore(conf)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := s.Close(); err == nil {
				err = closeErr
			}
			if viper.GetBool("print-metrics") {
				metrics.WritePrometheus(os.Stdout, false)
			}
		}()

		return fn(cmd, s, args)
	}
}

// --------------------------------------------------------------------------
// Argument parsing
// --------------------------------------------------------------------------

// ParseKey converts a command line argument into a key. With asInt the
// argument is parsed as a decimal int64 (see store.KeyFromInt64).
func ParseKey(arg string, asInt bool) (store.Key, error) {
	if !asInt {
		return store.KeyFromString(arg)
	}
	v, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return store.Key{}, fmt.Errorf("key must be a number: %w", err)
	}
	return store.KeyFromInt64(v), nil
}

// FormatBytes renders a byte count with a binary unit
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatExpiry renders an absolute expiry time relative to now
func FormatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (in %s)", t.Format(time.RFC3339), time.Until(t).Round(time.Second))
}
