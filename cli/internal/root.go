package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devilmonastery/tessera/internal/client"
	"github.com/devilmonastery/tessera/internal/config"
	"github.com/devilmonastery/tessera/internal/credentials"
	"github.com/devilmonastery/tessera/internal/interaction"
	"github.com/devilmonastery/tessera/internal/pkg/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const cliContextKey contextKey = "cliContext"

// Deps are the collaborators the command tree works with. Zero fields get
// the production defaults; tests inject in-memory stores, scripted
// prompters and buffers.
type Deps struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	Store      credentials.Store
	Prompter   interaction.Prompter
	ConfigPath string
	HTTPClient *http.Client
	Now        func() time.Time
	LoadEnv    func() (*config.Env, error)

	// nested is set for commands run from the shell, which reuse the outer
	// logger and cannot start another shell.
	nested bool
}

func (d Deps) withDefaults() Deps {
	if d.In == nil {
		d.In = os.Stdin
	}
	if d.Out == nil {
		d.Out = os.Stdout
	}
	if d.Err == nil {
		d.Err = os.Stderr
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LoadEnv == nil {
		d.LoadEnv = config.Load
	}
	return d
}

// CliContext holds shared CLI context
type CliContext struct {
	Config      *Config
	ConfigPath  string
	ContextName string
	Env         *config.Env
	Store       credentials.Store
	Prompter    interaction.Prompter
	Logger      *slog.Logger

	In  io.Reader
	Out io.Writer
	Err io.Writer

	APIURI  string
	ChainID int64
	Output  string
	Timeout time.Duration
	Now     func() time.Time

	httpClient *http.Client
	clients    []*client.Client
}

// globalFlags are the persistent flags shared by every command
type globalFlags struct {
	apiURI      string
	contextName string
	output      string
	noInput     bool
	timeout     time.Duration

	logLevel      string
	logFile       string
	logToStderr   bool
	alsoLogStderr bool
	logFormat     string
}

// Execute runs the command line in args, or os.Args[1:] when args is nil.
// SDK clients and the log file opened for the run are released whether or
// not the command succeeds.
func Execute(ctx context.Context, deps Deps, args []string) error {
	root, release := newRootCommand(deps)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := release(); err == nil {
		err = cerr
	}
	return err
}

// newRootCommand creates the root command with injected dependencies. The
// returned release func must be called once the command has run.
func newRootCommand(deps Deps) (*cobra.Command, func() error) {
	deps = deps.withDefaults()
	var (
		flags     globalFlags
		ctx       CliContext
		logCloser io.Closer
	)
	release := func() error {
		ctx.closeClients()
		if logCloser == nil {
			return nil
		}
		closer := logCloser
		logCloser = nil
		return closer.Close()
	}

	rootCmd := &cobra.Command{
		Use:   "tessera",
		Short: "CLI for the tessera platform",
		Long: `A command line interface for the tessera platform: wallet sign-in,
tenant administration, authorization checks and object storage.`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors (main.go handles it)
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !deps.nested {
				closer, err := setupLogging(&flags, deps.Err)
				if err != nil {
					return fmt.Errorf("failed to setup logging: %w", err)
				}
				logCloser = closer
			}

			ctx = CliContext{
				In:         deps.In,
				Out:        deps.Out,
				Err:        deps.Err,
				Output:     flags.output,
				Timeout:    flags.timeout,
				Now:        deps.Now,
				httpClient: deps.HTTPClient,
			}
			ctx.Logger = logger.WithCommand(slog.Default().With("component", "cli"), cmd.CommandPath())
			ctx.Logger.Debug("CLI started")

			if err := validateOutput(flags.output); err != nil {
				return err
			}
			if err := ctx.load(deps, &flags); err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey, &ctx))
			return nil
		},
	}

	rootCmd.SetIn(deps.In)
	rootCmd.SetOut(deps.Out)
	rootCmd.SetErr(deps.Err)

	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newAdminCommand())
	rootCmd.AddCommand(newOSCommand())
	rootCmd.AddCommand(newRegisterCommand())
	rootCmd.AddCommand(newConfigCommand())
	if !deps.nested {
		rootCmd.AddCommand(newShellCommand(deps))
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.apiURI, "api-uri", "",
		"API URI (default: $API_URI, then the current context, then "+config.DefaultAPIURI+")")
	pf.StringVar(&flags.contextName, "context", "", "Context to use instead of the current one")
	pf.StringVarP(&flags.output, "output", "o", outputTable, "Output format (table, json, yaml)")
	pf.BoolVar(&flags.noInput, "no-input", false, "Never prompt; fail when a value is missing")
	pf.DurationVar(&flags.timeout, "timeout", client.DefaultTimeout, "Timeout for API requests (0 disables)")

	// Logging flags
	pf.StringVar(&flags.logLevel, "log-level", "warn",
		"Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFile, "log-file", "",
		"Log file path (if specified, logs to file instead of stderr)")
	pf.BoolVar(&flags.logToStderr, "logtostderr", false,
		"Log to stderr (default behavior unless --log-file specified)")
	pf.BoolVar(&flags.alsoLogStderr, "alsologtostderr", false,
		"Log to both file and stderr (file defaults to "+logger.GetDefaultLogFile("cli")+")")
	pf.StringVar(&flags.logFormat, "log-format", "text",
		"Log format (text, json)")

	return rootCmd, release
}

// load resolves configuration for this invocation. API URI precedence is
// --api-uri, then API_URI, then the selected context, then the default.
func (c *CliContext) load(deps Deps, flags *globalFlags) error {
	env, err := deps.LoadEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}
	c.Env = env

	c.ConfigPath = deps.ConfigPath
	if c.ConfigPath == "" {
		if c.ConfigPath, err = GetConfigPath(); err != nil {
			return err
		}
	}
	if c.Config, err = LoadConfig(c.ConfigPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	c.ContextName = c.Config.CurrentContext
	if flags.contextName != "" {
		c.ContextName = flags.contextName
	}
	selected, ctxErr := c.Config.GetContext(c.ContextName)
	if ctxErr != nil && flags.contextName != "" {
		return ctxErr
	}

	c.APIURI = config.DefaultAPIURI
	c.ChainID = config.DefaultChainID
	if selected != nil {
		if selected.APIURI != "" {
			c.APIURI = selected.APIURI
		}
		if selected.ChainID > 0 {
			c.ChainID = selected.ChainID
		}
	}
	if env.APIURI != "" {
		c.APIURI = env.APIURI
	}
	if env.ChainID > 0 {
		c.ChainID = env.ChainID
	}
	if flags.apiURI != "" {
		c.APIURI = flags.apiURI
	}

	c.Store = deps.Store
	if c.Store == nil {
		if c.Store, err = credentials.NewDefaultFileStore(credentials.WithClock(deps.Now)); err != nil {
			return err
		}
	}

	c.Prompter = deps.Prompter
	if c.Prompter == nil || flags.noInput {
		c.Prompter = interaction.Default(!flags.noInput)
	}

	c.Logger.Debug("configuration resolved",
		slog.String("context", c.ContextName),
		slog.String("api_uri", c.APIURI),
		slog.Int64("chain_id", c.ChainID),
		slog.String("credentials", c.Store.Path()))
	return nil
}

// setupLogging configures the global logger based on CLI flags
func setupLogging(flags *globalFlags, stderr io.Writer) (io.Closer, error) {
	logFile := flags.logFile
	if logFile == "" && flags.alsoLogStderr {
		logFile = logger.GetDefaultLogFile("cli")
	}
	// Default to stderr logging unless file is specified
	logToStderr := flags.logToStderr
	if logFile == "" {
		logToStderr = true
	}

	cfg := logger.Config{
		Level:         logger.ParseLevel(flags.logLevel),
		LogFile:       logFile,
		LogToStderr:   logToStderr,
		AlsoLogStderr: flags.alsoLogStderr,
		Format:        flags.logFormat,
		Stderr:        stderr,
	}

	globalLogger, closer, err := logger.SetupLogger(cfg)
	if err != nil {
		return nil, err
	}

	// Set as default logger
	slog.SetDefault(globalLogger)
	return closer, nil
}

// getCliContext extracts the CLI context from the command context
func getCliContext(cmd *cobra.Command) *CliContext {
	return cmd.Context().Value(cliContextKey).(*CliContext)
}
