// Package common provides the configuration and logging pieces shared by the
// fKV library and its command line interface.
//
// Key Components:
//
//   - StoreConfig: Everything needed to open a store (engine implementation,
//     device path, version, expiry policy, native library path, capacity and
//     log level). Its String method renders a sectioned overview that the CLI
//     prints with --verbose.
//
//   - Logger: A custom implementation of dragonboat's logger.ILogger with the
//     format "LEVEL | package | message". InitLoggers installs it as the
//     global logger factory and sets the level of every logger used by the
//     module ("store", "engine/mem", "engine/pebble", "engine/native",
//     "dump", "cli").
package common
