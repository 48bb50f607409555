package agent

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/cli"
	"github.com/hashicorp/go-hclog"
	metrics "github.com/hashicorp/go-metrics"
	"github.com/mecaplan/mecaplan/structs"
	"github.com/mecaplan/mecaplan/version"
)

// Command is the "agent" CLI command: it loads the configuration, starts the
// agent and blocks until a signal asks for shutdown.
type Command struct {
	Ui      cli.Ui
	Version *version.VersionInfo

	ShutdownCh <-chan struct{}

	args  []string
	agent *Agent
}

func (c *Command) readConfig() *Config {
	var configPaths []string
	var dev bool
	cmdConfig := &Config{}

	flags := flag.NewFlagSet("agent", flag.ContinueOnError)
	flags.Usage = func() { c.Ui.Error(c.Help()) }

	flags.Var((*flaggedStrings)(&configPaths), "config", "config file")
	flags.BoolVar(&dev, "dev", false, "dev mode")
	flags.StringVar(&cmdConfig.BindAddr, "bind", "", "bind address")
	flags.IntVar(&cmdConfig.Port, "port", 0, "http port")
	flags.StringVar(&cmdConfig.LogLevel, "log-level", "", "log level")

	if err := flags.Parse(c.args); err != nil {
		return nil
	}

	config := DefaultConfig()
	for _, path := range configPaths {
		fileConfig, err := LoadConfigFile(path)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error loading configuration from %s: %s", path, err))
			return nil
		}
		config = config.Merge(fileConfig)
	}
	config = config.Merge(cmdConfig)
	if dev {
		config.Dev = true
	}

	if err := config.Validate(); err != nil {
		c.Ui.Error(fmt.Sprintf("Invalid configuration: %s", err))
		return nil
	}
	return config
}

func (c *Command) setupLogger(config *Config) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "mecaplan",
		Level:      hclog.LevelFromString(config.LogLevel),
		Output:     os.Stderr,
		JSONFormat: config.LogJSON,
	})
}

func (c *Command) setupMetrics() error {
	inm := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(inm)
	metricsConf := metrics.DefaultConfig("mecaplan")
	_, err := metrics.NewGlobal(metricsConf, inm)
	return err
}

// Run parses the configuration, starts the agent and waits for shutdown.
func (c *Command) Run(args []string) int {
	c.args = args
	config := c.readConfig()
	if config == nil {
		return 1
	}

	logger := c.setupLogger(config)
	if err := c.setupMetrics(); err != nil {
		c.Ui.Error(fmt.Sprintf("Error initializing telemetry: %s", err))
		return 1
	}

	agent, err := NewAgent(config, logger)
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error starting agent: %s", err))
		return 1
	}
	c.agent = agent

	c.Ui.Output(fmt.Sprintf("%s agent started! Listening on http://%s",
		c.Version.FullVersionNumber(false), agent.httpServer.Addr))

	return c.handleSignals()
}

// handleSignals blocks until a terminating signal arrives.
func (c *Command) handleSignals() int {
	signalCh := make(chan os.Signal, 4)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case sig := <-signalCh:
			c.Ui.Output(fmt.Sprintf("Caught signal: %v", sig))
			if sig == syscall.SIGHUP {
				// SIGHUP reloads the active planning from upstream.
				err := c.agent.Reload(context.Background(), ReloadAll)
				if err != nil && !errors.Is(err, structs.ErrNoPlanningSelected) {
					c.Ui.Error(fmt.Sprintf("Reload failed: %s", err))
				}
				continue
			}
			c.agent.Shutdown()
			return 0
		case <-c.ShutdownCh:
			c.agent.Shutdown()
			return 0
		}
	}
}

// Synopsis satisfies cli.Command.
func (c *Command) Synopsis() string {
	return "Runs the planning agent"
}

// Help satisfies cli.Command.
func (c *Command) Help() string {
	helpText := `
Usage: mecaplan agent [options]

  Starts the planning agent: connects the configured upstream databases and
  serves the planning HTTP API.

Options:

  -config=<path>
    Path to an HCL configuration file. May be given multiple times; later
    files merge over earlier ones.

  -dev
    Run with a seeded in-memory database instead of PostgreSQL.

  -bind=<addr>
    HTTP bind address. Overrides the configuration file.

  -port=<port>
    HTTP port. Overrides the configuration file.

  -log-level=<level>
    Log verbosity: TRACE, DEBUG, INFO, WARN or ERROR.
`
	return strings.TrimSpace(helpText)
}

// flaggedStrings collects repeated -config flags.
type flaggedStrings []string

func (f *flaggedStrings) String() string {
	return strings.Join(*f, ",")
}

func (f *flaggedStrings) Set(value string) error {
	*f = append(*f, value)
	return nil
}
