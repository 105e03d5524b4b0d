/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	actionBurst     int
	actionRate      float64
	bind            string
	port            int
	prefix          string
	profile         bool
	roomExpiry      time.Duration
	sweepInterval   time.Duration
	tlsCert         string
	tlsKey          string
	transitionDelay time.Duration
	verbose         bool
	version         bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.roomExpiry <= 0 {
		return fmt.Errorf("invalid room expiry (must be positive): %s", c.roomExpiry)
	}
	if c.sweepInterval <= 0 {
		return fmt.Errorf("invalid sweep interval (must be positive): %s", c.sweepInterval)
	}
	if c.transitionDelay < 0 {
		return fmt.Errorf("invalid transition delay (must not be negative): %s", c.transitionDelay)
	}
	if c.actionRate <= 0 || c.actionBurst < 1 {
		return fmt.Errorf("invalid action limit (rate must be positive, burst at least 1): %v/%d", c.actionRate, c.actionBurst)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("THEMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "themind",
		Short:         "Real-time coordinator for The Mind, a cooperative card game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			setupLogging(cfg, cmd.OutOrStdout())
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntVar(&cfg.actionBurst, "action-burst", 20, "actions a connection may send in a burst (env: THEMIND_ACTION_BURST)")
	fs.Float64Var(&cfg.actionRate, "action-rate", 10, "sustained actions per second allowed per connection (env: THEMIND_ACTION_RATE)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: THEMIND_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: THEMIND_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: THEMIND_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: THEMIND_PROFILE)")
	fs.DurationVar(&cfg.roomExpiry, "room-expiry", 6*time.Hour, "time after creation before a room is removed (env: THEMIND_ROOM_EXPIRY)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", 30*time.Minute, "how often expired rooms are removed (env: THEMIND_SWEEP_INTERVAL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: THEMIND_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: THEMIND_TLS_KEY)")
	fs.DurationVar(&cfg.transitionDelay, "transition-delay", 1500*time.Millisecond, "pause before a lost life or cleared level is redealt (env: THEMIND_TRANSITION_DELAY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: THEMIND_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: THEMIND_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("themind v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
