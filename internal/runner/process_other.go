//go:build !unix

package runner

import "os/exec"

// configureProcess keeps the default cancellation, which kills the tool
// process only.
func configureProcess(cmd *exec.Cmd) {}
