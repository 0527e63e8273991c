//go:build !unix

package tools

import "os"

// Without flock the file is written unlocked.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) {}
