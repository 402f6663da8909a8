package commands

import (
	"fmt"

	"github.com/goletan/servicehost/internal/serverconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the server configuration",
	Long: `Inspect and edit the seeded server configuration.

Paths are dotted keys; sequence items are addressed by index.

Examples:
  servicehost config show
  servicehost config get server.login_port
  servicehost config set worlds.0.exp_rate 20`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the server configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEditor()
		if err != nil {
			return err
		}
		data, err := e.Raw()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEditor()
		if err != nil {
			return err
		}
		if err := e.Load(); err != nil {
			return err
		}
		v, err := e.Get(args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to render value: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set one configuration value; the value is parsed as YAML",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEditor()
		if err != nil {
			return err
		}
		if err := e.Load(); err != nil {
			return err
		}

		var value any
		if err := yaml.Unmarshal([]byte(args[1]), &value); err != nil {
			return fmt.Errorf("invalid value %q: %w", args[1], err)
		}
		if err := e.Set(args[0], value); err != nil {
			return err
		}
		if err := e.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

func openEditor() (*serverconfig.Editor, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return serverconfig.NewEditor(cfg.Seed.Target, zap.NewNop()), nil
}
