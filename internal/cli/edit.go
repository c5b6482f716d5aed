package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/spf13/cobra"
)

func newEditCommand(a *app) *cobra.Command {
	var (
		in        string
		name      string
		marketCap string
		basic     string
	)
	cmd := &cobra.Command{
		Use:   "edit <companyID>",
		Short: "Correct a company's name, market cap or basic industry",
		Long: `Find the company among the stocks of the basic industry given by --in,
apply the changed fields and submit them. Fields that are not given keep
their current value.`,
		Example: `  stockclass edit 42 --in IN0101 --market-cap MIDCAP
  stockclass edit 42 --in IN0101 --basic IN0102 --name "Acme Ltd"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("name") && !flags.Changed("market-cap") && !flags.Changed("basic") {
				return errors.New("nothing to change: set --name, --market-cap or --basic")
			}

			ctx := cmd.Context()
			wf, release := a.newWorkflow()
			defer release()
			if err := wf.Load(ctx); err != nil {
				return err
			}
			if _, err := selectBasic(wf, in); err != nil {
				return err
			}
			if err := wf.Search(ctx); err != nil {
				return err
			}

			row, ok := wf.FindRow(args[0])
			if !ok {
				return fmt.Errorf("company %s is not listed under %s", args[0], in)
			}
			if err := wf.OpenEdit(ctx, row); err != nil {
				return err
			}

			var u workflow.DraftUpdate
			if flags.Changed("name") {
				u.CompanyName = &name
			}
			if flags.Changed("market-cap") {
				u.MarketCap = &marketCap
			}
			if flags.Changed("basic") {
				u.BasicCode = &basic
			}
			if err := wf.UpdateDraft(u); err != nil {
				return err
			}
			if err := wf.SubmitEdit(ctx); err != nil {
				var verr *workflow.ValidationError
				if errors.As(err, &verr) {
					return fmt.Errorf("%s: %s", verr.Field, verr.Message)
				}
				if d := wf.State().Draft; d != nil && d.Error != "" {
					return errors.New(d.Error)
				}
				return err
			}

			out := cmd.OutOrStdout()
			st := wf.State()
			for i, r := range st.Rows {
				if strings.TrimSpace(string(r.CompanyID)) == strings.TrimSpace(args[0]) {
					renderStocks(out, st.Rows[i:i+1], "updated")
					return nil
				}
			}
			fmt.Fprintf(out, "Company %s updated and moved out of %s (%d stocks remain).\n", args[0], in, st.Count)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "basic industry code the company is currently listed under (required)")
	cmd.Flags().StringVar(&name, "name", "", "new company name")
	cmd.Flags().StringVar(&marketCap, "market-cap", "", "new market cap category (LARGECAP|MIDCAP|SMALLCAP)")
	cmd.Flags().StringVar(&basic, "basic", "", "new basic industry code")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
