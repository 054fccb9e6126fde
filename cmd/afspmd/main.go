// Command afspmd spawns and supervises afspm components from a config
// file (spec §6): spawn-all starts every component under a Monitor that
// restarts anything that crashes, while spawn-single runs one component
// directly in the foreground, without supervision, for debugging.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/monitor"
)

var (
	okColor  = color.New(color.FgGreen).SprintFunc()
	errColor = color.New(color.FgRed).SprintFunc()
)

type spawnAllCmd struct {
	Log LogConfig `group:"Logging"`

	MonitorDB   string   `long:"monitor-db" env:"MONITOR_DB" default:"afspmd-monitor.db" description:"Path to the Monitor's restart-history ledger"`
	LoopSleep   string   `long:"loop-sleep" env:"LOOP_SLEEP" default:"1s" description:"Supervisory loop interval"`
	PollTimeout string   `long:"poll-timeout" env:"POLL_TIMEOUT" default:"100ms" description:"Heartbeat poll timeout"`
	Include     []string `long:"include" description:"Component names to spawn (default: all)"`
	Exclude     []string `long:"exclude" description:"Component names not to spawn"`

	Args struct {
		Config string `positional-arg-name:"config" required:"true" description:"Path to the JSON component config"`
	} `positional-args:"yes"`
}

func (c *spawnAllCmd) Execute(_ []string) error {
	closeLog, err := initLog(c.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	loopSleep, err := time.ParseDuration(c.LoopSleep)
	if err != nil {
		return fmt.Errorf("parsing --loop-sleep: %w", err)
	}
	pollTimeout, err := time.ParseDuration(c.PollTimeout)
	if err != nil {
		return fmt.Errorf("parsing --poll-timeout: %w", err)
	}

	cfg, err := loadConfig(c.Args.Config)
	if err != nil {
		return err
	}
	filtered, err := cfg.filter(c.Include, c.Exclude)
	if err != nil {
		return err
	}
	descriptors := filtered.descriptors()
	if len(descriptors) == 0 {
		return fmt.Errorf("no components selected to spawn")
	}

	mon, err := monitor.NewMonitor(c.MonitorDB, pollTimeout, loopSleep)
	if err != nil {
		return fmt.Errorf("building monitor: %w", err)
	}
	defer mon.Close()

	if err := mon.Start(descriptors); err != nil {
		fmt.Fprintln(os.Stderr, errColor("afspmd: startup failed: "), err)
		return err
	}
	fmt.Println(okColor("afspmd: all components started"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyShutdown(cancel)

	mon.Run(ctx)
	fmt.Println(okColor("afspmd: clean shutdown"))
	return nil
}

type spawnSingleCmd struct {
	Log LogConfig `group:"Logging"`

	Args struct {
		Config string `positional-arg-name:"config" required:"true" description:"Path to the JSON component config"`
		Name   string `positional-arg-name:"name" required:"true" description:"Component instance name to spawn"`
	} `positional-args:"yes"`
}

func (c *spawnSingleCmd) Execute(_ []string) error {
	closeLog, err := initLog(c.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := loadConfig(c.Args.Config)
	if err != nil {
		return err
	}
	cc, ok := cfg[c.Args.Name]
	if !ok {
		return fmt.Errorf("component %q not found in config", c.Args.Name)
	}

	env := os.Environ()
	for k, v := range cc.Env {
		env = append(env, k+"="+v)
	}

	log.WithField("name", c.Args.Name).Info("afspmd: spawning component in foreground, unsupervised")
	return runForeground(cc.Command, cc.Args, env)
}

// notifyShutdown cancels ctx's cancel function on SIGINT/SIGTERM.
func notifyShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("afspmd: caught signal, shutting down")
		cancel()
	}()
}

func main() {
	var (
		spawnAll    spawnAllCmd
		spawnSingle spawnSingleCmd
	)

	parser := flags.NewParser(nil, flags.Default)
	if _, err := parser.AddCommand("spawn-all", "Spawn every component in a config under a supervising Monitor",
		"Spawns all (or a filtered subset of) the components named in a config file, restarting any that crash.", &spawnAll); err != nil {
		panic(err)
	}
	if _, err := parser.AddCommand("spawn-single", "Spawn a single component in the foreground, unsupervised",
		"Spawns one named component directly in this process, without a Monitor; useful for debugging.", &spawnSingle); err != nil {
		panic(err)
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, errColor(err))
		os.Exit(1)
	}
}
