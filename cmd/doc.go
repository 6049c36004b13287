// Package cmd implements the command-line interface of hotkv. It wires the
// HOT engine to a small set of commands for benchmarking and for working
// with engine snapshots.
//
// The package is organized into several subpackages:
//
//   - bench: Compares the engine against a B-tree baseline (latency and memory)
//   - snapshot: Commands to create, inspect and scan snapshot files
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set through an environment variable with the prefix
// HOTKV_ (e.g. HOTKV_SHARDS=8). Variables are additionally read from .env and
// .env.local in the working directory.
//
// See hotkv -help for a list of all commands.
package cmd
