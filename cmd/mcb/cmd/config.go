package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/mcb/configs"
	"github.com/Aman-CERP/mcb/internal/config"
)

const redacted = "<redacted>"

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the user and project configuration files.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.mcb/config.yaml, or $MCB_HOME/config.yaml)
  3. Project config (.mcb.yaml, .mcb.yml or .mcb.toml)
  4. .env in the project root
  5. Environment variables (MCB_*)`,
		Example: `  # Create the user config with defaults
  mcb config init

  # Create a commented .mcb.yaml in the project
  mcb config init --project

  # Show the merged configuration
  mcb config show`,
	}

	cmd.AddCommand(newConfigInitCmd(c))
	cmd.AddCommand(newConfigShowCmd(c))
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigBackupsCmd(c))
	cmd.AddCommand(newConfigRestoreCmd(c))

	return cmd
}

func newConfigInitCmd(c *cli) *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Create the user configuration file from the defaults. An existing
file is kept unless --force is given; it is backed up first.

With --project, write a commented .mcb.yaml into the project root
instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if project {
				return initProjectConfig(cmd, c, force)
			}
			w := c.out(cmd)
			path, backup, err := config.InitUserConfig(force)
			if err != nil {
				w.Warningf("%v", err)
				w.Status("", "use --force to overwrite; the current file is backed up")
				return nil
			}
			w.Successf("created %s", path)
			if backup != "" {
				w.Statusf("", "backup: %s", backup)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&project, "project", false, "Write .mcb.yaml into the project root")

	return cmd
}

func initProjectConfig(cmd *cobra.Command, c *cli, force bool) error {
	root, err := config.FindProjectRoot(c.dir)
	if err != nil {
		return err
	}
	path := filepath.Join(root, config.ProjectYAML)
	w := c.out(cmd)
	if _, err := os.Stat(path); err == nil && !force {
		w.Warningf("%s already exists", path)
		w.Status("", "use --force to overwrite")
		return nil
	}
	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	w.Successf("created %s", path)
	return nil
}

func newConfigShowCmd(c *cli) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  `Show the configuration after merging every source. Secrets are redacted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(false); err != nil {
				return err
			}
			shown := *c.cfg
			if shown.Embedding.APIKey != "" {
				shown.Embedding.APIKey = redacted
			}
			if shown.VectorStore.APIKey != "" {
				shown.VectorStore.APIKey = redacted
			}

			if jsonOutput {
				return c.out(cmd).JSON(shown)
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func newConfigBackupsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List user config backups, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backups, err := config.ListUserConfigBackups()
			if err != nil {
				return err
			}
			w := c.out(cmd)
			if len(backups) == 0 {
				w.Status("", "no backups")
				return nil
			}
			for _, b := range backups {
				w.Status("", b)
			}
			return nil
		},
	}
}

func newConfigRestoreCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the user config from a backup (default: newest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				backups, err := config.ListUserConfigBackups()
				if err != nil {
					return err
				}
				if len(backups) == 0 {
					return fmt.Errorf("no backups of %s", config.GetUserConfigPath())
				}
				path = backups[0]
			}
			if err := config.RestoreUserConfig(path); err != nil {
				return err
			}
			c.out(cmd).Successf("restored %s", path)
			return nil
		},
	}
}
