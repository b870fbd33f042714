// Package files provides file discovery utilities for the commodities
// research workspace.
//
// Discovery enumerates the raw dataset directories, finding contract CSV
// files (optionally filtered by the contract-root prefix), derived CSV
// files matching glob patterns, and report workbooks. CSV listings are
// sorted by name so downstream pipeline output is deterministic.
//
// Example usage:
//
//	// Create a discovery instance
//	discovery := files.NewDiscovery(paths.DataDir)
//
//	// Find all raw bar files for the live cattle root
//	contracts, err := discovery.FindCSVFilesWithPrefix(paths.FuturesDir, "LE")
package files
