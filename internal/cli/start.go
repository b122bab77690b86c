package cli

import (
	"fmt"

	"github.com/harun/webchat/internal/daemon"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Aliases: []string{"serve"},
	Short:   "Start the webchat daemon",
	Long: `Start the webchat daemon in the foreground.
The daemon keeps the session manager, the record cleanup job and, when enabled,
the websocket gateway running until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		_ = d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := d.WatchConfig(loader); err != nil {
		log.Warn().Err(err).Msg("Config hot reload disabled")
	}

	d.Wait()
	return nil
}

func getPIDFilePath() string {
	cfg, err := loadConfigQuiet()
	if err != nil {
		return daemon.PIDFilePath("/tmp")
	}
	return daemon.PIDFilePath(cfg.DataDir)
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
