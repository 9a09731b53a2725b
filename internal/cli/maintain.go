package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run one maintenance cycle (decay, prune, promote, adapt)",
	RunE:  runMaintain,
}

func runMaintain(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := eng.RunMaintenanceCycle(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("decayed:  %d\n", report.Decayed)
	fmt.Printf("pruned:   %d\n", report.Pruned)
	fmt.Printf("promoted: %d\n", report.Promoted)
	for _, a := range report.Adaptations {
		fmt.Printf("adaptation: %s %.3f -> %.3f [%s]\n", a.Parameter, a.OldValue, a.NewValue, a.Result)
	}
	return nil
}
