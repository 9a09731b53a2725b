package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var recallTopK int

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search stored facts semantically",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecall,
}

func init() {
	recallCmd.Flags().IntVar(&recallTopK, "top", 5, "number of results")
}

func runRecall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	query := strings.Join(args, " ")
	results, err := eng.QueryFacts(ctx, query, recallTopK)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no facts found")
		return nil
	}

	for _, r := range results {
		fmt.Printf("%.3f  %-20s %s  [%s/%s]\n",
			r.Similarity, r.Fact.Key, r.Fact.Value.Render(), r.Fact.Domain, r.Fact.Authority)
	}
	return nil
}
