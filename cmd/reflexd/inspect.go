// cmd/reflexd/inspect.go
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/reflex/internal/app"
	"github.com/rovshanmuradov/reflex/internal/types"
)

func inspectCmd(configPath *string) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the stored token state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lg, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer lg.Sync()

			if cfg.Storage.Driver == "" {
				return fmt.Errorf("inspect needs a storage driver")
			}
			runner := app.NewRunner(cfg, lg.WithComponent("app"), app.WithReadOnly())
			if err := runner.Initialize(cmd.Context()); err != nil {
				return shutdown(runner, err)
			}
			tok := runner.Token()

			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("%s (%s) at %s\n", tok.Name(), tok.Symbol(), tok.Address()))
			sb.WriteString(fmt.Sprintf("Owner:            %s\n", tok.Owner()))
			sb.WriteString(fmt.Sprintf("Trading open:     %t\n", tok.IsTradingOpen()))
			sb.WriteString(fmt.Sprintf("Total supply:     %s\n", types.FormatUnits(tok.TotalSupply())))
			sb.WriteString(fmt.Sprintf("Circulation:      %s\n", types.FormatUnits(tok.Circulation())))
			sb.WriteString(fmt.Sprintf("Burned:           %s of %s\n", types.FormatUnits(tok.TotalBurned()), types.FormatUnits(tok.BurnThreshold())))
			sb.WriteString(fmt.Sprintf("Treasury pending: %s\n", types.FormatUnits(tok.TreasuryPending())))
			sb.WriteString(fmt.Sprintf("Max balance:      %s\n", types.FormatUnits(tok.MaxBalance())))
			sb.WriteString(fmt.Sprintf("Coefficient:      %s\n", tok.CurrentCoeff().Dec()))

			if account != "" {
				addr, err := types.ParseAddress(account)
				if err != nil {
					return shutdown(runner, err)
				}
				sb.WriteString(fmt.Sprintf("\n%s balance: %s\n", types.ShortAddress(addr), types.FormatUnits(tok.BalanceOf(addr))))
			}
			fmt.Print(sb.String())

			return shutdown(runner, nil)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "also print the balance of this base58 address")
	return cmd
}
