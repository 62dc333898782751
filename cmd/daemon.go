package cmd

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gabe/botpool/internal/daemon"
	"github.com/gabe/botpool/internal/logger"
)

var debug bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the botpool daemon",
	Long:  `Start, stop, and check the status of the botpool daemon process.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the botpool daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		paths := daemon.NewPaths(dir)

		if err := os.MkdirAll(paths.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
		logFile, err := os.OpenFile(paths.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()

		var out io.Writer = logFile
		logCfg := logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
		if debug {
			// In debug mode, write to both stdout and log file
			out = io.MultiWriter(os.Stdout, logFile)
			logCfg.Level = "debug"
		}
		log := logger.New(logCfg, out)
		defer log.Sync()

		return daemon.New(dir, cfg, log).Start()
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the botpool daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := stateDir()
		if err != nil {
			return err
		}

		pid, err := daemon.ReadPID(daemon.NewPaths(dir).PIDFile)
		if os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Daemon not running"))
			return nil
		}
		if err != nil {
			return err
		}

		process, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("failed to find process: %w", err)
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓")+" Daemon stop signal sent")
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := stateDir()
		if err != nil {
			return err
		}

		state, pid, err := daemon.New(dir, nil, nil).Status()
		if err != nil {
			return err
		}

		if state == daemon.StateIdle {
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon: not running")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon: %s (PID %d)\n", state, pid)
		}
		return nil
	},
}

func init() {
	daemonCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}
