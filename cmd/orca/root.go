package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orcadeck/orca/internal/config"
	"github.com/orcadeck/orca/internal/localdb"
	"github.com/orcadeck/orca/internal/logging"
	"github.com/orcadeck/orca/internal/monitor"
	"github.com/orcadeck/orca/internal/summary"
)

var cliLog = logging.ForComponent(logging.CompCLI)

// app carries global flags and lazily opened resources.
type app struct {
	profile    string
	configPath string
	debug      bool

	local      *localdb.LocalDB
	loggingOn  bool
	stopSignal func()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "orca",
		Short:         "Tell which agent-deck sessions need you",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.profile, "profile", "p", "", "agent-deck profile (default: $AGENTDECK_PROFILE or config)")
	pf.StringVar(&a.configPath, "config", "", "config file (default: ~/.orca/config.toml)")
	pf.BoolVar(&a.debug, "debug", false, "write debug logs to ~/.orca/debug.log")

	root.AddCommand(
		newStatusCmd(a),
		newSessionsCmd(a),
		newSummaryCmd(a),
		newClassifyCmd(a),
		newAttentionCmd(a),
		newPromptCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	if a.configPath != "" {
		config.SetConfigPath(a.configPath)
	} else {
		config.ClearCache()
	}
	if _, err := config.Load(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v (using defaults)\n", err)
	}
	a.initLogging()
	return nil
}

func (a *app) initLogging() {
	s := config.GetLogSettings()
	dir, err := config.GetOrcaDir()
	if err != nil {
		dir = ""
	}
	logging.Init(logging.Config{
		LogDir:                dir,
		Level:                 s.Level,
		Format:                s.Format,
		MaxSizeMB:             s.MaxSizeMB,
		MaxBackups:            s.MaxBackups,
		MaxAgeDays:            s.MaxAgeDays,
		Compress:              s.Compress,
		RingBufferSize:        s.RingBufferMB * 1024 * 1024,
		AggregateIntervalSecs: s.AggregateIntervalSeconds,
		PprofAddr:             s.PprofAddr,
		Debug:                 s.Debug || a.debug,
	})
	a.loggingOn = true

	if dir == "" {
		return
	}
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-usr1:
				path := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.log", time.Now().Unix()))
				if err := logging.DumpRingBuffer(path); err != nil {
					cliLog.Error("crash_dump_failed", slog.String("error", err.Error()))
				} else {
					cliLog.Info("crash_dump_written", slog.String("path", path))
				}
			}
		}
	}()
	a.stopSignal = func() {
		signal.Stop(usr1)
		close(done)
	}
}

// localDB opens orca.db on first use.
func (a *app) localDB() (*localdb.LocalDB, error) {
	if a.local != nil {
		return a.local, nil
	}
	path, err := config.GetLocalDBPath()
	if err != nil {
		return nil, err
	}
	db, err := localdb.Open(path)
	if err != nil {
		return nil, err
	}
	a.local = db
	return db, nil
}

// monitor wires the session service. Stored prompts are used when orca.db
// can be opened.
func (a *app) monitor() (*monitor.Stack, error) {
	var prompts summary.PromptStore
	if db, err := a.localDB(); err != nil {
		cliLog.Warn("localdb_unavailable", slog.String("error", err.Error()))
	} else {
		prompts = db
	}
	return monitor.FromConfig(a.profile, prompts)
}

func (a *app) shutdown() {
	if a.local != nil {
		_ = a.local.Close()
		a.local = nil
	}
	if a.stopSignal != nil {
		a.stopSignal()
		a.stopSignal = nil
	}
	if a.loggingOn {
		logging.Shutdown()
		a.loggingOn = false
	}
}
