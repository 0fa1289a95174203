package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facelive/pkg/config"
	"github.com/MrCodeEU/facelive/pkg/logging"
)

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: fmt.Sprintf(`Show the effective configuration as YAML.

Configuration locations:
  System: %s
  User:   %s

Every field can be overridden with %s_<SECTION>_<FIELD>, for example
%s_PROVIDERS_DEEPFACE_BASE_URL.`, config.SystemConfigPath, config.UserConfigPath, config.EnvPrefix, config.EnvPrefix),
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Debug("Showing configuration")
			out, err := a.cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "facelive v%s\n", version)
			fmt.Fprintln(out, "Video face liveness detection")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Build Information:")
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
