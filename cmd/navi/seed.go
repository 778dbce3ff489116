package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jask/navi/internal/config"
	"github.com/jask/navi/internal/offline"
	"github.com/jask/navi/internal/replay"
	"github.com/jask/navi/internal/seed"
)

func newSeedCmd(c *cli) *cobra.Command {
	var (
		n     uint64
		force bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the cache with sample data for the memory driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Remote.Driver != config.DriverMemory && !force {
				return fmt.Errorf("seed only makes sense with --remote memory; pass --force to write anyway")
			}
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			state := seed.Demo(time.Now().In(c.cfg.Assistant.Location()), n)
			snap, err := replay.Snapshot(state)
			if err != nil {
				return err
			}
			if err := a.cache.SaveDashboard(ctx, offline.DashboardSnapshot{Collections: state}); err != nil {
				return err
			}
			if err := a.cache.SaveFinance(ctx, snap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d wallets, %d bills, %d debts\n",
				len(snap.Allocations), len(snap.Subscriptions), len(snap.Debts))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&n, "seed", 1, "random seed for sample amounts")
	cmd.Flags().BoolVar(&force, "force", false, "seed even when a real remote is configured")
	return cmd
}
