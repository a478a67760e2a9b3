//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

func setProcAttr(cmd *exec.Cmd) {}

// Windows has no cooperative termination signal for console processes, so
// both steps kill.
func signalTerm(p *os.Process) error { return p.Kill() }

func signalKill(p *os.Process) error { return p.Kill() }
