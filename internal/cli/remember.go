package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/supertedai/memgate/internal/engine"
	"github.com/supertedai/memgate/internal/store"
)

var (
	rememberDomain     string
	rememberType       string
	rememberLongterm   bool
	rememberConfidence float64
)

var rememberCmd = &cobra.Command{
	Use:   "remember <key> <value> [text]",
	Short: "Store a fact by key",
	Long:  `Store a fact by key. The optional text argument is the natural-language rendering used for semantic search; it defaults to "<key> is <value>".`,
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runRemember,
}

func init() {
	rememberCmd.Flags().StringVar(&rememberDomain, "domain", "", "topic domain (default general)")
	rememberCmd.Flags().StringVar(&rememberType, "type", "", "fact type: identity, relationship, preference, event, other")
	rememberCmd.Flags().BoolVar(&rememberLongterm, "longterm", false, "mark the fact longterm (authoritative)")
	rememberCmd.Flags().Float64Var(&rememberConfidence, "confidence", 0.8, "confidence in [0,1]")
}

func runRemember(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, db, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	key, value := args[0], args[1]
	text := fmt.Sprintf("%s is %s", key, value)
	if len(args) == 3 {
		text = args[2]
	}

	authority := store.AuthorityProvisional
	if rememberLongterm {
		authority = store.AuthorityLongterm
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fact, err := eng.PutFact(ctx, engine.PutFactInput{
		Key:        key,
		Value:      store.StringValue(value),
		Domain:     rememberDomain,
		FactType:   rememberType,
		Authority:  authority,
		Confidence: rememberConfidence,
		Text:       text,
	})
	if err != nil {
		return err
	}

	fmt.Printf("stored %s = %s (%s, confidence %.2f)\n",
		fact.Key, fact.Value.Render(), fact.Authority, fact.Confidence)
	return nil
}
