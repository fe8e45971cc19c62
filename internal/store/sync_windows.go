//go:build windows

package store

// syncDir is a no-op; directories cannot be fsynced on Windows.
func syncDir(string) error { return nil }
