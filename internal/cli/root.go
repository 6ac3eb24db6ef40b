package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/zarlcorp/mocaport/internal/config"
	"github.com/zarlcorp/mocaport/internal/logger"
	"github.com/zarlcorp/mocaport/internal/portal"
	"github.com/zarlcorp/mocaport/internal/storage"
	"github.com/zarlcorp/mocaport/internal/verify"
)

// Env is what the command tree reads from and writes to.
type Env struct {
	Version string
	In      io.Reader
	Out     io.Writer
	Err     io.Writer

	// OpenStore opens the store in a data directory. Nil opens the
	// encrypted store, prompting for the password.
	OpenStore func(dir string) (*storage.Store, error)
	// Logger replaces the stderr logger built from config.
	Logger *slog.Logger
	// Provider replaces the seeded outcome provider.
	Provider verify.Provider
}

type runner struct {
	env        Env
	dataDir    string
	configPath string
	cfg        config.Config
	log        *slog.Logger
}

// NewRootCommand builds the mocaport command tree.
func NewRootCommand(env Env) *cobra.Command {
	if env.In == nil {
		env.In = os.Stdin
	}
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Err == nil {
		env.Err = os.Stderr
	}

	r := &runner{env: env}

	root := &cobra.Command{
		Use:   "mocaport",
		Short: "Portable credentials and reputation on Moca Network",
		Long: `mocaport claims credential stamps, tracks a reputation score and
answers verification requests from dApps. Everything is simulated locally.

Run without arguments to open the terminal interface.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.setup,
	}
	root.SetIn(env.In)
	root.SetOut(env.Out)
	root.SetErr(env.Err)

	root.PersistentFlags().StringVar(&r.dataDir, "data-dir", DataDir(), "data directory")
	root.PersistentFlags().StringVar(&r.configPath, "config", "", "config file (default <data-dir>/config.toml)")

	root.AddCommand(
		r.versionCmd(),
		r.loginCmd(),
		r.logoutCmd(),
		r.whoamiCmd(),
		r.stampsCmd(),
		r.claimCmd(),
		r.credentialsCmd(),
		r.forgetCmd(),
		r.scoreCmd(),
		r.requestCmd(),
		r.mintCmd(),
		r.anchorCmd(),
	)
	return root
}

// LoadConfig reads the config for dataDir, or path when set.
func LoadConfig(dataDir, path string) (config.Config, error) {
	if path == "" {
		path = filepath.Join(dataDir, config.DefaultConfigFile)
	}
	return config.Load(path)
}

func (r *runner) setup(_ *cobra.Command, _ []string) error {
	cfg, err := LoadConfig(r.dataDir, r.configPath)
	if err != nil {
		return err
	}
	r.cfg = cfg

	r.log = r.env.Logger
	if r.log == nil {
		r.log = logger.Init(r.env.Err, cfg.Log.Level, cfg.Log.Format)
	}
	return nil
}

// withPortal opens the store, resumes any session and runs fn.
func (r *runner) withPortal(ctx context.Context, fn func(*portal.Portal) error) error {
	open := r.env.OpenStore
	if open == nil {
		open = func(dir string) (*storage.Store, error) { return OpenStore(dir, r.env.Err) }
	}

	store, err := open(r.dataDir)
	if err != nil {
		return err
	}

	opts := []portal.Option{portal.WithLogger(r.log)}
	if r.env.Provider != nil {
		opts = append(opts, portal.WithProvider(r.env.Provider))
	}
	p := portal.Open(store, r.cfg, opts...)
	defer func() {
		if err := p.Close(); err != nil {
			r.log.Warn("close store", "err", err)
		}
	}()

	p.Restore(ctx)
	return fn(p)
}

func (r *runner) printf(format string, args ...any) {
	fmt.Fprintf(r.env.Out, format, args...)
}
