package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-optimizer/internal/recommend"
	"github.com/sells-group/contract-optimizer/internal/store"
)

var (
	recommendUser string
	recommendSave bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Generate recommendations for a user's stored contracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		_, primary, alternate, err := buildExtractor(ctx)
		if err != nil {
			return err
		}
		engine := recommend.NewEngine(primary, alternate)

		contracts, err := st.ListContracts(ctx, recommendUser, store.ContractFilter{Limit: 1000})
		if err != nil {
			return err
		}
		analyzed, err := st.AnalyzedContractIDs(ctx, recommendUser)
		if err != nil {
			return err
		}

		recs, err := engine.Generate(ctx, recommendUser, contracts, analyzed)
		if err != nil {
			return err
		}

		if recommendSave && len(recs) > 0 {
			recs, err = st.CreateRecommendations(ctx, recs)
			if err != nil {
				return err
			}
		}

		zap.L().Info("recommendations generated",
			zap.String("user_id", recommendUser),
			zap.Int("contracts", len(contracts)),
			zap.Int("recommendations", len(recs)),
			zap.Bool("saved", recommendSave),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	},
}

func init() {
	recommendCmd.Flags().StringVar(&recommendUser, "user", "", "user ID to generate recommendations for")
	recommendCmd.Flags().BoolVar(&recommendSave, "save", false, "persist generated recommendations")
	recommendCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(recommendCmd)
}
