package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jask/finsync/internal/config"
	"github.com/jask/finsync/internal/database"
	"github.com/jask/finsync/internal/prefs"
	"github.com/jask/finsync/internal/secrets"
	"github.com/jask/finsync/internal/service"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "database ready at %s\n", cfg.Database.Path)
			return nil
		},
	}
}

func seedCategoriesCmd() *cobra.Command {
	var org, file string
	cmd := &cobra.Command{
		Use:   "seed-categories",
		Short: "Create the default (or file-provided) categories for an organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(org) == "" {
				return errors.New("--org is required")
			}
			var defs []database.CategoryDef
			if file != "" {
				loaded, err := prefs.LoadCategories(file)
				if err != nil {
					return err
				}
				if len(loaded) == 0 {
					return fmt.Errorf("%s: no categories", file)
				}
				defs = loaded
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := database.SeedCategories(cmd.Context(), db, org, defs...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d categories for %s\n", n, org)
			return nil
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().StringVar(&file, "file", "", "JSON list of {\"name\",\"type\"} to seed instead of the defaults")
	return cmd
}

func syncCmd() *cobra.Command {
	var itemID, accountID string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch and import transactions for an item now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(itemID) == "" {
				return errors.New("--item is required")
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.runSync(cmd.Context(), itemID, accountID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: fetched %d, imported %d, skipped %d, failed %d, classified %d (%d validated)\n",
				res.ConnectorName, res.Fetched, res.Imported, res.Skipped, res.Failed, res.Classified, res.Validated)
			return nil
		},
	}
	cmd.Flags().StringVar(&itemID, "item", "", "aggregator item id")
	cmd.Flags().StringVar(&accountID, "account", "", "restrict to one aggregator account id")
	return cmd
}

// runSync imports one item now. A failure is recorded on the connection the
// same way a webhook-triggered sync records it.
func (a *app) runSync(ctx context.Context, itemID, accountID string) (service.SyncResult, error) {
	id, err := a.resolver.Resolve(ctx, itemID)
	if err != nil {
		return service.SyncResult{}, err
	}
	res, err := a.sync.SyncItem(ctx, service.SyncRequest{Identity: id, AccountID: accountID, SyncType: service.SyncTypeManual})
	if err != nil {
		if id.Connection != nil && !errors.Is(err, service.ErrUnresolved) {
			if serr := a.connections.SetSyncError(ctx, id.Connection.ID, err.Error()); serr != nil {
				a.logger.Errorf("[Sync] record sync error on %s: %v", id.Connection.ID, serr)
			}
		}
		return res, fmt.Errorf("sync %s: %w", itemID, err)
	}
	return res, nil
}

func disconnectCmd() *cobra.Command {
	var connectionID string
	cmd := &cobra.Command{
		Use:   "disconnect",
		Short: "Remove a bank connection's accounts and transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(connectionID) == "" {
				return errors.New("--connection is required")
			}
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			svc := &service.DisconnectService{DB: a.db, Logger: a.logger}
			res, err := svc.Disconnect(cmd.Context(), connectionID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d accounts and %d transactions\n", res.Accounts, res.Transactions)
			return nil
		},
	}
	cmd.Flags().StringVar(&connectionID, "connection", "", "bank connection id")
	return cmd
}

func secretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage locally stored credentials",
	}

	var value string
	set := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a credential; reads the value from stdin when --value is empty",
		Long: `Store a credential in the local encrypted secret store.

Known names:
  ` + secrets.PluggyClientSecret + `
  ` + secrets.PluggyWebhookSecret + `
  ` + secrets.AIPrimaryKey + `
  ` + secrets.AIFallbackKey,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := strings.TrimSpace(value)
			if v == "" {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					v = strings.TrimSpace(sc.Text())
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read value: %w", err)
				}
			}
			if v == "" {
				return errors.New("empty value")
			}
			if err := secrets.Store(args[0], v); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", args[0])
			return nil
		},
	}
	set.Flags().StringVar(&value, "value", "", "credential value")

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return secrets.Delete(args[0])
		},
	}

	cmd.AddCommand(set, del)
	return cmd
}
