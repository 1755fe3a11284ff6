package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/pchat/internal/app"
	"github.com/vovakirdan/pchat/internal/auth"
	"github.com/vovakirdan/pchat/internal/client"
	"github.com/vovakirdan/pchat/internal/config"
	applog "github.com/vovakirdan/pchat/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	run := newRunCmd(opts)

	root := &cobra.Command{
		Use:           "pchat",
		Short:         "Line-oriented chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run.RunE,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error, disabled)")
	root.Flags().AddFlagSet(run.Flags())

	root.AddCommand(run, newHashPasswordCmd(), newTokenCmd(opts), newAttachCmd())
	return root
}

// loadConfig resolves configuration and builds the diagnostics logger.
func loadConfig(opts *rootOptions) (config.Config, *zerolog.Logger, error) {
	bootLogger := applog.New("info", nil)
	cfg, path, err := config.Load(bootLogger, opts.configPath)
	if err != nil {
		return cfg, bootLogger, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger := applog.New(cfg.LogLevel, nil)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the chat server and relay stdin commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			application, err := app.New(cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go forwardInput(ctx, cmd.InOrStdin(), application.Client(), logger)

			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("client exited with error: %w", err)
			}
			logger.Info().Msg("client stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&overrides.Host, "host", "", "chat server host")
	f.IntVar(&overrides.Port, "port", 0, "chat server port")
	f.StringVar(&overrides.Account, "account", "", "login account")
	f.StringVar(&overrides.Password, "password", "", "login password")
	f.StringVar(&overrides.HomeChannel, "home", "", "home channel")
	f.DurationVar(&overrides.ReconnectDelay, "reconnect-delay", 0, "delay between reconnect attempts")
	f.StringVar(&overrides.HTTPAddr, "http-addr", "", "control API listen address")
	f.StringVar(&overrides.DatabasePath, "db", "", "presence directory database path")
	return cmd
}

type sender interface {
	Send(command string) error
}

// forwardInput sends each non-blank stdin line as a raw command until ctx is
// done. Lines that arrive while the client is not running are dropped.
func forwardInput(ctx context.Context, in io.Reader, cl sender, logger *zerolog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := cl.Send(line); err != nil {
			if errors.Is(err, client.ErrNotRunning) || errors.Is(err, client.ErrNotConnected) {
				logger.Warn().Err(err).Str("command", line).Msg("command dropped")
				continue
			}
			logger.Warn().Err(err).Msg("send failed")
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Debug().Err(err).Msg("stdin closed")
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for control_password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a control API token from the configured secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("jwt_secret is not configured")
			}
			svc := auth.NewService(&auth.JWTConfig{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				TTL:      cfg.JWTTTL,
			}, "")
			token, err := svc.IssueToken(operator)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", auth.OperatorName, "token subject")
	return cmd
}
