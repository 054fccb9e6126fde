package main

import (
	"fmt"
	"os"
	"os/exec"
)

// runForeground execs command with args and env, connecting its stdio to
// this process's own, and blocks until it exits. Unlike a Monitor-spawned
// child, nothing here restarts it if it crashes.
func runForeground(command string, args []string, env []string) error {
	cmd := exec.Command(command, args...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %q: %w", command, err)
	}
	return nil
}
