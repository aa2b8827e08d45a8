package serve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sevlyar/go-daemon"
	"github.com/spf13/cobra"

	"github.com/tinkershack/drive-revenant/config"
	"github.com/tinkershack/drive-revenant/internal/common"
	"github.com/tinkershack/drive-revenant/internal/constants"
	"github.com/tinkershack/drive-revenant/pkg/lifecycle"
	revclock "github.com/tinkershack/drive-revenant/pkg/revenant/clock"
	"github.com/tinkershack/drive-revenant/pkg/revenant/enumerate"
	"github.com/tinkershack/drive-revenant/pkg/revenant/housekeeping"
	"github.com/tinkershack/drive-revenant/pkg/revenant/ioengine"
	"github.com/tinkershack/drive-revenant/pkg/revenant/loop"
	"github.com/tinkershack/drive-revenant/pkg/revenant/planner"
	"github.com/tinkershack/drive-revenant/pkg/revenant/policy"
	"github.com/tinkershack/drive-revenant/pkg/revenant/sink"
	"github.com/tinkershack/drive-revenant/pkg/revenant/state"
	"github.com/tinkershack/drive-revenant/pkg/revenant/types"
	"github.com/tinkershack/drive-revenant/pkg/revenantapi"
)

var detached bool

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the drive-revenant scheduler daemon",
		Run:   runServe,
	}

	cmd.Flags().BoolVarP(&detached, "detach", "d", false, "Run as a daemon")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) {
	rc := config.GetConfig()
	pidFile := constants.RevenantPIDFilePath
	if err := lifecycle.EnsureSingleInstance(pidFile); err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		os.Exit(1)
	}

	if detached {
		ctx := &daemon.Context{
			PidFileName: pidFile,
			PidFilePerm: 0644,
			LogFileName: rc.Logs.Path,
			LogFilePerm: 0640,
			WorkDir:     "/",
			Umask:       027,
			Args:        []string{"drive-revenant", "serve"},
		}

		d, err := ctx.Reborn()
		if err != nil {
			fmt.Printf("Failed to start daemon: %v\n", err)
			os.Exit(1)
		}

		if d != nil {
			fmt.Println("drive-revenant is running as a daemon")
			return
		}
		defer ctx.Release()
	}

	startServer()
}

func startServer() {
	cfg := config.GetConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lifecycle.RegisterContextCanceller(cancel)
	go lifecycle.HandleSignals(ctx)

	schedLoop, apiServer, err := buildLoop(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize scheduler: %v\n", err)
		os.Exit(1)
	}

	housekeeper, err := housekeeping.New(common.Log, config.GetStateDir(), 7*24*time.Hour)
	if err != nil {
		fmt.Printf("Failed to initialize housekeeping: %v\n", err)
		os.Exit(1)
	}
	if err := housekeeper.Start(); err != nil {
		fmt.Printf("Failed to start housekeeping: %v\n", err)
		os.Exit(1)
	}

	lifecycle.RegisterShutdownHook(func() {
		fmt.Println("Shutting down drive-revenant")
		if err := housekeeper.Stop(); err != nil {
			fmt.Printf("Error stopping housekeeping: %v\n", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during API shutdown: %v\n", err)
		}
	})

	go func() {
		if err := schedLoop.Run(ctx); err != nil {
			common.Log.Error("scheduler loop exited with error", "error", err)
		}
	}()

	fmt.Printf("drive-revenant listening on port %d\n", cfg.Server.Port)
	if err := apiServer.Start(ctx, cfg.Server.Port); err != nil {
		fmt.Printf("Failed to start API server: %v", err)
	}
}

func buildLoop(cfg *config.Config) (*loop.Loop, *revenantapi.Server, error) {
	clk := revclock.NewReal()

	precedence := make([]types.Reason, 0, len(cfg.Scheduler.PolicyPrecedence))
	for _, p := range cfg.Scheduler.PolicyPrecedence {
		precedence = append(precedence, types.Reason(strings.TrimSpace(p)))
	}

	p := planner.New(planner.Config{
		InstallID:         cfg.Scheduler.InstallID,
		JitterSec:         cfg.Scheduler.JitterSec,
		HDDMaxGapSec:      cfg.Scheduler.HDDMaxGapSec,
		DeadlineMarginSec: cfg.Scheduler.DeadlineMarginSec,
	})

	arb := policy.New(policy.Config{
		Precedence:           precedence,
		IdlePauseMin:         cfg.Scheduler.IdlePauseMin,
		ErrorQuarantineAfter: cfg.Scheduler.ErrorQuarantineAfter,
		ErrorQuarantineSec:   cfg.Scheduler.ErrorQuarantineSec,
	})

	engine := ioengine.New(ioengine.Config{
		Fsync:       cfg.Scheduler.Fsync,
		MaxFlushMs:  cfg.Scheduler.MaxFlushMs,
		LockRetryMs: cfg.Scheduler.LockRetryMs,
	}, ioengine.NewOSFilesystem(), clk.Underlying().Now)

	logPath := cfg.Logs.Path
	if logPath == "" {
		logPath = "/var/log/drive-revenant/events.ndjson"
	} else {
		logPath = filepath.Join(filepath.Dir(logPath), "events.ndjson")
	}
	_ = os.MkdirAll(filepath.Dir(logPath), 0o755)
	eventFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	evSink := sink.New(eventFile, 1000, common.Log)

	statePath := cfg.Scheduler.StateFile
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(config.GetStateDir(), statePath)
	}
	sm := state.New(statePath, common.Log)

	enumerator := enumerate.New(cfg.Drives)
	listed, err := enumerator.List()
	if err != nil {
		return nil, nil, err
	}

	drives := make(map[string]*types.Drive, len(listed))
	now := clk.Now()
	for _, ed := range listed {
		d := &types.Drive{
			Letter:      ed.Letter,
			Type:        ed.Type,
			IntervalSec: cfg.Scheduler.DefaultIntervalSec,
			Enabled:     true,
			PingDir:     strings.ReplaceAll(cfg.Scheduler.PingDirTemplate, "{letter}", ed.Letter),
			State:       types.DriveStateActive,
			EnabledAt:   now,
		}
		if ed.Type == types.DriveTypeUnknown && cfg.Scheduler.TreatUnknownAsSSD {
			d.Type = types.DriveTypeSSD
		}
		d.IntervalSec = planner.ClampIntervalSec(d.Type, d.IntervalSec, cfg.Scheduler.IntervalMinSec, cfg.Scheduler.HDDMaxGapSec)
		d.PhaseOffsetGrid = p.PhaseOffsetGrid(d.Letter, d.IntervalSec, now)
		d.NextDue = planner.NominalFireTime(d)
		drives[d.Letter] = d
	}

	for _, de := range cfg.Drives {
		if de.IntervalSec <= 0 {
			continue
		}
		if d, ok := drives[de.Letter]; ok {
			d.IntervalSec = planner.ClampIntervalSec(d.Type, de.IntervalSec, cfg.Scheduler.IntervalMinSec, cfg.Scheduler.HDDMaxGapSec)
		}
	}

	loaded := make([]*types.Drive, 0, len(drives))
	for _, d := range drives {
		loaded = append(loaded, d)
	}
	if err := sm.Load(loaded); err != nil {
		return nil, nil, err
	}

	inputs := &enumerate.StaticPolicyInputs{}

	schedLoop := loop.New(loop.Config{
		Fsync:                cfg.Scheduler.Fsync,
		MaxFlushMs:           cfg.Scheduler.MaxFlushMs,
		LockRetryMs:          cfg.Scheduler.LockRetryMs,
		JitterSec:            cfg.Scheduler.JitterSec,
		HDDMaxGapSec:         cfg.Scheduler.HDDMaxGapSec,
		DeadlineMarginSec:    cfg.Scheduler.DeadlineMarginSec,
		InstallID:            cfg.Scheduler.InstallID,
		IdlePauseMin:         cfg.Scheduler.IdlePauseMin,
		ErrorQuarantineAfter: cfg.Scheduler.ErrorQuarantineAfter,
		ErrorQuarantineSec:   cfg.Scheduler.ErrorQuarantineSec,
		Precedence:           precedence,
		IntervalMinSec:       cfg.Scheduler.IntervalMinSec,
	}, clk, p, arb, engine, evSink, sm, inputs, common.Log, drives)

	apiServer := revenantapi.New(schedLoop)
	return schedLoop, apiServer, nil
}
