package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/goletan/servicehost/internal/binder/process"
	"github.com/goletan/servicehost/internal/dbtransfer"
	"github.com/goletan/servicehost/internal/lifecycle"
	"github.com/goletan/servicehost/shared/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Export or import the server database",
	Long: `Export or import the server database.

Both refuse while the owning server process is running. Import verifies the
file before it replaces the live database and keeps the old one as .bak.

Examples:
  servicehost db export maple-backup.db
  servicehost db export - > maple-backup.db
  servicehost db import maple-backup.db`,
}

var dbExportCmd = &cobra.Command{
	Use:   "export <file|->",
	Short: "Write the database to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := openTransfer()
		if err != nil {
			return err
		}

		var dst io.Writer = cmd.OutOrStdout()
		if args[0] != "-" {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()
			dst = f
		}

		n, err := t.Export(cmd.Context(), dst)
		if err != nil {
			return err
		}
		if args[0] != "-" {
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d bytes to %s\n", n, args[0])
		}
		return nil
	},
}

var dbImportCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Replace the database with a file or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := openTransfer()
		if err != nil {
			return err
		}

		var src io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()
			src = f
		}

		n, err := t.Import(cmd.Context(), src)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d bytes into %s (previous database kept at %s)\n", n, t.Path(), t.BackupPath())
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbExportCmd)
	dbCmd.AddCommand(dbImportCmd)
}

// runningOwner treats a live server process as holding the database.
type runningOwner struct {
	desc types.Descriptor
}

func (o runningOwner) Name() string { return o.desc.Name }

func (o runningOwner) State() lifecycle.State {
	if _, running := process.Running(o.desc.PIDFile); running {
		return lifecycle.Bound
	}
	return lifecycle.Unbound
}

func openTransfer() (*dbtransfer.Transfer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	desc, _ := cfg.Service(cfg.Database.Service)
	return dbtransfer.New(cfg.Database.Path, runningOwner{desc: desc}, zap.NewNop()), nil
}
