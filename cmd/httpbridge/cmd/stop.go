package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running httpbridge server",
	Long: `Stop a running httpbridge server by reading its PID file and sending
a graceful stop signal. The server drains open connections and destroys all
sessions before exiting.

The PID file defaults to ~/.httpbridge/server.pid (see --pid-file).`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pidPath := pidFilePath()

	pid := readPIDFile(pidPath)
	if pid == 0 {
		return fmt.Errorf("no server PID file found at %s\nIs the server running?", pidPath)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		_ = os.Remove(pidPath)
		return fmt.Errorf("invalid PID %d: %w", pid, err)
	}

	if !processIsAlive(proc) {
		_ = os.Remove(pidPath)
		return fmt.Errorf("server process %d is not running (stale PID file removed)", pid)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Stopping httpbridge (PID %d)...\n", pid)
	if err := sendGracefulStop(proc); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	// Poll every 200ms for up to 15s; shutdown itself is bounded at 10s.
	for i := 0; i < 75; i++ {
		time.Sleep(200 * time.Millisecond)
		if !processIsAlive(proc) {
			_ = os.Remove(pidPath)
			fmt.Fprintln(cmd.ErrOrStderr(), "Server stopped.")
			return nil
		}
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Server did not stop gracefully, killing it...")
	_ = proc.Kill()
	_ = os.Remove(pidPath)
	return nil
}
