package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// newQueryCmd creates the 'query' subcommand for offline lookups against
// the persisted cache.
func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Queries the cached inventory data without a running server",
	}
	cmd.AddCommand(newQueryPlayerCmd())
	cmd.AddCommand(newQueryItemCmd())
	cmd.AddCommand(newQueryVehicleCmd())
	return cmd
}

func newQueryPlayerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "player <name>",
		Short: "Prints the cached record for one player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			record, ok := svc.cache.GetPlayer(args[0])
			if !ok {
				return fmt.Errorf("player %q not found in cache", args[0])
			}
			return printJSON(cmd, record)
		},
	}
}

func newQueryItemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "item <display-name>",
		Short: "Lists players holding the item, with quantities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, svc.cache.FindPlayersWithItem(args[0]))
		},
	}
}

func newQueryVehicleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vehicle <display-name>",
		Short: "Lists players owning the vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, svc.cache.FindPlayersWithVehicle(args[0]))
		},
	}
}

func printJSON(cmd *cobra.Command, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode query result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
