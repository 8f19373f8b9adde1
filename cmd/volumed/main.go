package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("volumed v%s\n", version)
	fmt.Println("Output volume control daemon with DDC/CI external display support")
}

func printUsage() {
	d := DefaultConfig()

	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  volumed [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Daemon that routes volume requests to the right output device:")
	fmt.Println("  external displays over DDC/CI (i2c-dev), the built-in chain over")
	fmt.Println("  the ALSA control interface, and a desktop scripting fallback when")
	fmt.Println("  neither works. Requests arrive over a Unix socket; state changes")
	fmt.Println("  are published on a WebSocket feed.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Printf("        Config file path (default %q, skipped when absent)\n", defaultConfigPath)
	fmt.Println()
	fmt.Println("  -target string")
	fmt.Printf("        Volume target: active-display|builtin (default %q)\n", d.Volume.Target)
	fmt.Println("        active-display controls the first connected external display")
	fmt.Println("        and falls back to builtin when none is connected")
	fmt.Println()
	fmt.Println("  -pinned-connector string")
	fmt.Println("        DRM connector preferred for active-display resolution (e.g. \"DP-1\")")
	fmt.Println()
	fmt.Println("  -update-hz int")
	fmt.Printf("        Daemon loop frequency in Hz (default %d)\n", d.Volume.UpdateHz)
	fmt.Println()
	fmt.Println("  -card-index int")
	fmt.Printf("        ALSA card index for the built-in output chain (default %d)\n", d.Audio.CardIndex)
	fmt.Println()
	fmt.Println("  -store-path string")
	fmt.Printf("        SQLite probe cache path (default %q; empty disables persistence)\n", d.Store.Path)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q)\n", d.IPC.SocketPath)
	fmt.Println()
	fmt.Println("  -ws-listen string")
	fmt.Printf("        State WebSocket listen address (default %q)\n", d.WS.ListenAddr)
	fmt.Println()
	fmt.Println("  -no-ws")
	fmt.Println("        Disable the state WebSocket feed")
	fmt.Println()
	fmt.Println("  -feedback-command string")
	fmt.Println("        Command run once when a volume step crosses out of silence,")
	fmt.Println("        e.g. \"canberra-gtk-play -i audio-volume-change\" (default disabled)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Printf("        Log level: error, warn, info, debug (default %q)\n", d.Logging.Level)
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults (reads /etc/volumed/config.yaml when present)")
	fmt.Println("  volumed")
	fmt.Println()
	fmt.Println("  # Always control the built-in output, regardless of displays")
	fmt.Println("  volumed -target builtin")
	fmt.Println()
	fmt.Println("  # Pin a display and raise the loop rate")
	fmt.Println("  volumed -pinned-connector DP-1 -update-hz 60")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - DDC/CI needs read/write access to /dev/i2c-* (i2c group or udev rule)")
	fmt.Println("  - The built-in chain needs access to /dev/snd/controlC<N>")
	fmt.Println("  - Flags override the matching config file settings, also across reloads")
	fmt.Println("  - Live config reload applies volume.target, volume.pinned_connector and")
	fmt.Println("    feedback.command; socket paths and card selection need a restart")
	fmt.Println()
}

func main() {
	// Check for version/help flags early
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	defaults := DefaultConfig()

	// Parse command-line flags. Defaults mirror DefaultConfig; whether a
	// flag was actually passed is tracked via flag.Visit below, so file
	// settings are only overridden by flags the user typed.
	var (
		configPath    = flag.String("config", "", "Config file path")
		targetFlag    = flag.String("target", defaults.Volume.Target, "Volume target: active-display|builtin")
		pinnedFlag    = flag.String("pinned-connector", defaults.Volume.PinnedConnector, "DRM connector preferred for active-display resolution")
		updateHzFlag  = flag.Int("update-hz", defaults.Volume.UpdateHz, "Daemon loop frequency in Hz")
		cardIndexFlag = flag.Int("card-index", defaults.Audio.CardIndex, "ALSA card index for the built-in output chain")
		storePathFlag = flag.String("store-path", defaults.Store.Path, "SQLite probe cache path (empty disables persistence)")
		ipcSocketFlag = flag.String("ipc-socket", defaults.IPC.SocketPath, "Unix domain socket path for IPC")
		wsListenFlag  = flag.String("ws-listen", defaults.WS.ListenAddr, "State WebSocket listen address")
		noWSFlag      = flag.Bool("no-ws", false, "Disable the state WebSocket feed")
		feedbackFlag  = flag.String("feedback-command", "", "Command run when a volume step crosses out of silence")
		logLevelStr   = flag.String("log-level", defaults.Logging.Level, "Log level: error, warn, info, debug")
		showVersion   = flag.Bool("version", false, "Print version and exit")
		showHelp      = flag.Bool("help", false, "Print help message")
	)

	// Custom usage function
	flag.Usage = printUsage
	flag.Parse()

	// Handle help and version flags
	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	// Record which flags were passed so they keep precedence over the
	// config file, including on every live reload.
	var overrides FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "target":
			overrides.Target = targetFlag
		case "pinned-connector":
			overrides.PinnedConnector = pinnedFlag
		case "update-hz":
			overrides.UpdateHz = updateHzFlag
		case "card-index":
			overrides.CardIndex = cardIndexFlag
		case "store-path":
			overrides.StorePath = storePathFlag
		case "ipc-socket":
			overrides.IPCSocketPath = ipcSocketFlag
		case "ws-listen":
			overrides.WSListenAddr = wsListenFlag
		case "no-ws":
			enabled := !*noWSFlag
			overrides.WSEnabled = &enabled
		case "feedback-command":
			argv := strings.Fields(*feedbackFlag)
			overrides.FeedbackCommand = &argv
		case "log-level":
			overrides.LogLevel = logLevelStr
		}
	})

	// Load configuration. An explicitly passed -config must exist; the
	// default path is optional and silently skipped when absent.
	cfg := DefaultConfig()
	cfgFile := *configPath
	explicitConfig := cfgFile != ""
	if !explicitConfig {
		cfgFile = defaultConfigPath
	}
	configSource := "defaults"
	loaded, err := LoadConfigFile(cfgFile)
	switch {
	case err == nil:
		cfg = loaded
		configSource = cfgFile
	case explicitConfig || !errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Parse and validate log level
	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(logLevel)

	// The holder carries the live config; reloads swap it while manager
	// closures read it per call.
	holder := newConfigHolder(cfg)

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigc
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	// ------------------------------------------------------------------
	// Backend stack
	// ------------------------------------------------------------------

	resolver := newDisplayResolver(logger)

	var store *probeStore
	if p := cfg.Store.Path; p != "" {
		st, err := openProbeStore(ExpandPath(p), logger)
		if err != nil {
			logger.Warn("probe cache unavailable, displays will be re-probed each run", "path", p, "error", err)
		} else {
			store = st
			defer store.close()
		}
	}

	displays := newDisplayControl(resolver, store, logger)

	// Built-in output chain. A machine without a usable card degrades to
	// the scripting tier instead of failing startup.
	var audio audioBackend = noAudioBackend{}
	var alsa *alsaBackend
	if ctl, err := openAlsaCtl(cfg.Audio.CardIndex, logger); err != nil {
		logger.Warn("sound card unavailable", "card_index", cfg.Audio.CardIndex, "error", err)
	} else if alsa, err = newAlsaBackend(ctl, logger); err != nil {
		logger.Warn("sound card has no usable volume controls", "card_index", cfg.Audio.CardIndex, "error", err)
		ctl.close()
		alsa = nil
	} else {
		audio = alsa
		defer alsa.close()
	}

	script := newScriptingBackend(logger)

	mgr := newVolumeManager(displays, resolver, audio, script,
		holder.targetMode, holder.pinnedConnector, logger)

	exec := &effectsExecutor{
		mgr:      mgr,
		feedback: newFeedbackRunner(holder.feedbackCommand, logger),
	}

	state := &DaemonState{}

	// Create event channel - central command bus
	events := make(chan Event, eventQueueSize)

	// State WebSocket feed. A nil broadcasts channel mutes publication.
	var broadcasts chan StateBroadcast
	if cfg.WS.Enabled {
		broadcasts = make(chan StateBroadcast, eventQueueSize)

		server := NewServer(logger, events, ServerConfig{})
		go server.Hub().Run(ctx)
		go RunBroadcaster(ctx, server.Hub(), broadcasts, logger)

		mux := http.NewServeMux()
		server.Register(mux, "/ws")
		httpSrv := &http.Server{Addr: cfg.WS.ListenAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			httpSrv.Close()
		}()
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("state ws server error", "error", err)
				cancel()
			}
		}()
	}

	// Start IPC server. Losing the control socket makes the daemon
	// pointless, so a bind failure takes it down.
	go func() {
		if err := runIPCServer(ctx, cfg.IPC.SocketPath, events, logger); err != nil {
			logger.Error("IPC server failed", "error", err)
			cancel()
		}
	}()

	// Display hotplug events (netlink uevent)
	if hp, err := newHotplugWatcher(logger); err != nil {
		logger.Warn("display hotplug watch unavailable", "error", err)
	} else {
		go hp.watch(ctx, events)
		go func() {
			<-ctx.Done()
			hp.close()
		}()
	}

	// Suspend/resume transitions (systemd-logind)
	go func() {
		if err := runSleepWatcher(ctx, events, logger); err != nil {
			logger.Warn("sleep watcher unavailable", "error", err)
		}
	}()

	// Config hot-reload, only when a config file is actually in play
	if configSource != "defaults" {
		go func() {
			if err := runConfigWatcher(ctx, cfgFile, overrides, holder, events, logger); err != nil {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	// External mixer changes (alsamixer, other apps) re-observe state
	if alsa != nil {
		if ch, err := alsa.changes(); err != nil {
			logger.Debug("mixer event subscription unavailable", "error", err)
		} else {
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case _, ok := <-ch:
						if !ok {
							return
						}
						sendEvent(ctx, events, MixerChanged{At: time.Now()})
					}
				}
			}()
		}
	}

	logger.Debug("starting volumed", "version", version)
	logger.Debug("configuration",
		"config", configSource,
		"target", cfg.Volume.Target,
		"pinned_connector", cfg.Volume.PinnedConnector,
		"update_hz", cfg.Volume.UpdateHz,
		"card_index", cfg.Audio.CardIndex,
		"store_path", cfg.Store.Path,
		"ipc_socket", cfg.IPC.SocketPath,
		"ws_enabled", cfg.WS.Enabled,
		"ws_listen", cfg.WS.ListenAddr,
		"feedback_command", strings.Join(cfg.Feedback.Command, " "),
		"log_level", cfg.Logging.Level)
	listenInfo := []any{"ipc", cfg.IPC.SocketPath, "target", cfg.Volume.Target, "update_rate_hz", cfg.Volume.UpdateHz}
	if cfg.WS.Enabled {
		listenInfo = append(listenInfo, "ws", cfg.WS.ListenAddr)
	}
	logger.Info("listening", listenInfo...)

	// Seed the first observation so clients get real state immediately.
	sendEvent(ctx, events, RefreshState{})

	// Daemon brain; blocks until shutdown.
	runDaemon(ctx, events, exec, state, cfg.Volume.UpdateHz, broadcasts, logger)

	// Release cached display transports before the deferred closes run.
	mgr.PruneAllDisplays()
	logger.Info("stopped")
}
