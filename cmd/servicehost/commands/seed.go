package commands

import (
	"context"
	"fmt"

	servicehost "github.com/goletan/servicehost/pkg"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Copy the bundled server configuration if this is the first run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.API.Enabled = false

		h, err := servicehost.New(cmd.Context(), cfg, servicehost.WithVersion(Version))
		if err != nil {
			return err
		}
		defer func() { _ = h.Close(context.Background()) }()

		seeded, err := h.Seed(cmd.Context())
		if err != nil {
			return err
		}
		if seeded {
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s\n", cfg.Seed.Target)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Already seeded, nothing to do")
		}
		return nil
	},
}
