// Package ioutils provides file system utilities.
//
// This package contains functions for:
//   - Atomic file and JSON writes
//   - Filename sanitization for cross-platform compatibility
//   - Directory creation
//
// # File Operations
//
//	// Write a comment payload
//	err := ioutils.WriteFile("/downloads/001_show.xml", data)
//
//	// Write a run report
//	err := ioutils.WriteJSON("/downloads/download-report.json", report)
//
//	// Ensure directory exists
//	err := ioutils.EnsureDir("/path/to/new/directory")
//
// # Filename Sanitization
//
// Use SanitizeFileName to remove invalid characters from filenames:
//
//	safe := ioutils.SanitizeFileName("Show: Part 1/2") // Returns "Show_ Part 1_2"
package ioutils
