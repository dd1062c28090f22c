// Package cmd implements the command-line interface for fKV. Every command
// opens the store described by the persistent store flags (or the matching
// FKV_* environment variables), runs one operation and closes the store again.
//
// The package is organized into several subpackages:
//
//   - admin: Commands for the whole store (info, clear, drop-pools) and its pools (list, create, delete)
//   - kv: Commands for key-value operations on one pool (put, get, del, has, info, list, perf)
//   - backup: The dump and restore commands
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See fkv -help for a list of all commands.
package cmd
