package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/lunashield/internal/admission"
	"github.com/dharsanguruparan/lunashield/internal/config"
	"github.com/dharsanguruparan/lunashield/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "lunashield: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	policy admission.Policy
}

func newRootCommand() *cobra.Command {
	a := &app{}
	var logLevel string
	cmd := &cobra.Command{
		Use:   "lunashield",
		Short: "Luna Shield deepfake analysis client",
		Long: `lunashield checks and uploads videos to a deepfake analysis service, renders the
dashboard charts, and runs the web front end or the local stand-in backend.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			a.cfg, a.log = cfg, log
			a.policy = admission.Policy{AllowedTypes: cfg.AllowedTypes, MaxBytes: cfg.MaxUploadBytes}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LUNASHIELD_LOG_LEVEL")
	cmd.AddCommand(
		newCheckCmd(a),
		newAnalyzeCmd(a),
		newDashboardCmd(a),
		newTestCmd(),
		newRunCmd(),
	)
	return cmd
}

func newTestCmd() *cobra.Command {
	var race, cover bool
	cmd := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run Go tests (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), "go", goTestArgs(race, cover, args)...)
		},
	}
	cmd.Flags().BoolVar(&race, "race", false, "Enable Go race detector")
	cmd.Flags().BoolVar(&cover, "cover", false, "Collect coverage data")
	return cmd
}

// goTestArgs builds the arguments of the go test invocation.
func goTestArgs(race, cover bool, pkgs []string) []string {
	args := []string{"test"}
	if race {
		args = append(args, "-race")
	}
	if cover {
		args = append(args, "-cover")
	}
	if len(pkgs) == 0 {
		pkgs = []string{"./..."}
	}
	return append(args, pkgs...)
}

// binaries are the commands `run` can start with go run.
var binaries = []struct {
	name, path, short string
}{
	{"server", "./cmd/server", "Start the web front end (pass --with-backend for the stand-in service)"},
	{"devbackend", "./cmd/devbackend", "Start the stand-in analysis service"},
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one of the lunashield binaries from source",
	}
	for _, b := range binaries {
		path := b.path
		cmd.AddCommand(&cobra.Command{
			Use:                b.name + " [flags]",
			Short:              b.short,
			DisableFlagParsing: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), "go", append([]string{"run", path}, args...)...)
			},
		})
	}
	return cmd
}

// runCommand runs name with the terminal attached and stops it when ctx ends.
func runCommand(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
