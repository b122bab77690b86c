package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/webchat/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the webchat daemon",
	Long: `Stop the webchat daemon gracefully.
Sends SIGTERM to the daemon and waits for it to shut down.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for daemon to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	pidFile := getPIDFilePath()

	pid, err := signalDaemon(pidFile, syscall.SIGTERM)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.ProcessAlive(pid) {
			fmt.Fprintln(out, "Daemon stopped successfully")
			_ = os.Remove(pidFile)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if _, err := signalDaemon(pidFile, syscall.SIGKILL); err != nil {
		return err
	}

	_ = os.Remove(pidFile)
	fmt.Fprintln(out, "Daemon killed")
	return nil
}

// signalDaemon delivers sig to the process named by pidFile
func signalDaemon(pidFile string, sig syscall.Signal) (int, error) {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("daemon is not running (no PID file at %s)", pidFile)
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}
	if !daemon.ProcessAlive(pid) {
		_ = os.Remove(pidFile)
		return 0, fmt.Errorf("daemon is not running (stale PID %d)", pid)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(sig); err != nil {
		return 0, fmt.Errorf("failed to send %s: %w", sig, err)
	}
	return pid, nil
}
