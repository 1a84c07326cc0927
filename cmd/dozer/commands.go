package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/dozer/internal/auth"
	"github.com/loykin/dozer/internal/config"
)

const passwordEnv = "DOZER_API_PASSWORD"

func createStartCommand(global *GlobalFlags, flags *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the proxy and manage the server",
		Long: `Start listening on the public address. The server is started when a player
connects and put back to sleep once it has been idle for time.sleep_after.

Examples:
  dozer start
  dozer start --config=/srv/mc/dozer.toml --public-address=0.0.0.0:25565`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), global.ConfigPath, *flags)
		},
	}
	cmd.Flags().StringVar(&flags.PublicAddress, "public-address", "", "override public.address")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, flags *APIFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "admin API URL (default from config api.listen and api.base_path)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	cmd.Flags().StringVar(&flags.Username, "username", "", "admin API user (default api.auth.username when auth is enabled)")
	cmd.Flags().StringVar(&flags.Password, "password", "", "admin API password (or "+passwordEnv+")")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS certificate verification")
}

func createStatusCommand(global *GlobalFlags, flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running dozer",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newClient(global, flags).GetStatus()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createWakeCommand(global *GlobalFlags, flags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wake",
		Short: "Start the server now",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := newClient(global, flags).Wake()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "server is %s\n", state)
			return nil
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createStopCommand(global *GlobalFlags, flags *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Put the server to sleep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := newClient(global, &flags.APIFlags).Stop(flags.Force)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "server is %s\n", state)
			return nil
		},
	}
	addAPIFlags(cmd, &flags.APIFlags)
	cmd.Flags().BoolVar(&flags.Force, "force", false, "kill the server process instead of stopping it")
	return cmd
}

func createConfigCommand(global *GlobalFlags, flags *ConfigGenerateFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or test the configuration",
	}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := flags.Output
			if path == "" {
				path = configPath(global)
			}
			if err := config.WriteDefault(path, flags.Force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\nedit server.command before running `dozer start`\n", path)
			return nil
		},
	}
	generate.Flags().StringVarP(&flags.Output, "output", "o", "", "output file (default the --config path)")
	generate.Flags().BoolVar(&flags.Force, "force", false, "overwrite an existing file")

	test := &cobra.Command{
		Use:   "test",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: global.ConfigPath})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if w := cfg.VersionWarning(); w != "" {
				_, _ = fmt.Fprintf(out, "warning: %s\n", w)
			}
			src := cfg.Path
			if src == "" {
				src = "environment"
			}
			_, _ = fmt.Fprintf(out, "config OK (%s)\n", src)
			return nil
		},
	}
	cmd.AddCommand(generate, test)
	return cmd
}

func configPath(global *GlobalFlags) string {
	if global.ConfigPath != "" {
		return global.ConfigPath
	}
	return config.DefaultFile
}

// newClient targets --api-url, or the admin API configured in the local
// config file when the flag is empty.
func newClient(global *GlobalFlags, flags *APIFlags) *APIClient {
	url, username := flags.APIUrl, flags.Username
	if url == "" || username == "" {
		if cfg, err := config.Load(config.LoadOptions{Path: global.ConfigPath}); err == nil {
			if url == "" {
				url = apiURL(cfg.API)
			}
			if username == "" && cfg.API.Auth.Enabled {
				username = cfg.API.Auth.Username
			}
		}
	}
	password := flags.Password
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	c := NewAPIClient(url, flags.APITimeout)
	if username != "" && password != "" {
		c.WithBasicAuth(username, password)
	}
	if flags.Insecure {
		c.WithInsecureTLS()
	}
	return c
}

func createAuthCommand(flags *HashPasswordFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Admin API credentials",
	}
	hash := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for api.auth.password_hash",
		Long: `Print a bcrypt hash for api.auth.password_hash. The password is read from
--password, or from the first line of stdin.

Examples:
  dozer auth hash-password --password=hunter2
  echo hunter2 | dozer auth hash-password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw := flags.Password
			if pw == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				pw = strings.TrimRight(line, "\r\n")
			}
			h, err := auth.HashPassword(pw)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
	hash.Flags().StringVar(&flags.Password, "password", "", "password to hash (default read from stdin)")
	cmd.AddCommand(hash)
	return cmd
}

func apiURL(api config.APIConfig) string {
	listen := api.Listen
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	} else if strings.HasPrefix(listen, "0.0.0.0:") {
		listen = "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	base := strings.TrimRight(api.BasePath, "/")
	if base != "" && !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	scheme := "http://"
	if api.TLS.Enabled {
		scheme = "https://"
	}
	return scheme + listen + base
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
