package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cuemby/topio-agent/pkg/config"
	"github.com/cuemby/topio-agent/pkg/gateway"
	"github.com/cuemby/topio-agent/pkg/security"
	"github.com/cuemby/topio-agent/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and encrypt pending passwords",
	Long: `Validate the configuration file. Plaintext passwords listed under
pending_passwords are encrypted with this host's key, stored in the tenant
records and removed from the file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetString("config"))
		if err != nil {
			return err
		}
		vault, err := security.NewHostVault(viper.GetString("machine-id-path"))
		if err != nil {
			return err
		}

		n, err := cfg.SealPendingPasswords(vault)
		if err != nil {
			return err
		}
		if n > 0 {
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Printf("✓ Encrypted %d pending password(s)\n", n)
		}

		if err := cfg.CheckSealed(); err != nil {
			return err
		}
		for _, id := range cfg.TenantIDs() {
			if _, err := cfg.Password(vault, id); err != nil {
				return err
			}
		}

		fmt.Printf("✓ Configuration valid (%d tenant(s))\n", len(cfg.Tenants))
		return nil
	},
}

var passwdCmd = &cobra.Command{
	Use:   "passwd TENANT",
	Short: "Set a tenant's mining password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		cfg, err := config.Load(viper.GetString("config"))
		if err != nil {
			return err
		}
		t, ok := cfg.Tenants[id]
		if !ok {
			return fmt.Errorf("unknown tenant %s", id)
		}
		vault, err := security.NewHostVault(viper.GetString("machine-id-path"))
		if err != nil {
			return err
		}

		pw, err := promptPassword("Mining password: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassword("Repeat password: ")
		if err != nil {
			return err
		}
		if pw != confirm {
			return fmt.Errorf("passwords do not match")
		}

		sealed, err := vault.SealPassword(pw)
		if err != nil {
			return err
		}
		t.EncryptedMiningPassword = sealed
		delete(cfg.PendingPasswords, id)
		if err := cfg.Save(); err != nil {
			return err
		}

		fmt.Printf("✓ Password updated for tenant %s\n", id)
		return nil
	},
}

// promptPassword reads a password from the terminal without echoing
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed version and node state of every tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetString("config"))
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		runner := gateway.NewExecRunner()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TENANT\tUSER\tVERSION\tNODE\tSAFEBOX\tJOINED")
		for _, id := range cfg.TenantIDs() {
			t := cfg.Tenants[id]
			gw := gateway.NewTopioGateway(runner, t.OSUser, t.InstallDir)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			ver, err := gw.InstalledVersion(ctx)
			version := orError(ver, err)
			node, err := gw.ProcessStatus(ctx)
			nodeStatus := orError(string(node), err)
			safebox, err := gw.SafeboxStatus(ctx)
			safeboxStatus := orError(string(safebox), err)
			join, err := gw.JoinStatus(ctx)
			joinStatus := orError(string(join), err)
			cancel()

			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				id, t.OSUser, version, nodeStatus, safeboxStatus, joinStatus)
		}
		return w.Flush()
	},
}

func orError(v string, err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return v
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent agent events",
	Long: `Show the most recent events recorded by the agent. The state database is
locked while the agent runs, so this only works while it is stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := storage.NewBoltStore(viper.GetString("data-dir"))
		if err != nil {
			return err
		}
		defer store.Close()

		evts, err := store.ListEvents(limit)
		if err != nil {
			return err
		}
		if len(evts) == 0 {
			fmt.Println("No events recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "TIME\tTYPE\tTENANT\tMESSAGE")
		for _, e := range evts {
			tenantID := e.Metadata["tenant"]
			if tenantID == "" {
				tenantID = "-"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.Timestamp.Format(time.RFC3339), e.Type, tenantID, e.Message)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().Duration("timeout", 30*time.Second, "Per-tenant timeout for node queries")
	historyCmd.Flags().Int("limit", 20, "Number of events to show (0 for all)")
}
