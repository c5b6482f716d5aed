package cli

import (
	"fmt"
	"io"

	"github.com/dgallion1/stockclass/internal/classification"
	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newTreeCommand(a *app) *cobra.Command {
	var macro string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the classification taxonomy",
		Long: `Fetch the classification payload and print every macro-economic sector,
sector, industry and basic industry, sorted as the filter shows them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, release := a.newWorkflow()
			defer release()
			if err := wf.Load(cmd.Context()); err != nil {
				return err
			}
			return renderTree(cmd.OutOrStdout(), wf, macro)
		},
	}
	cmd.Flags().StringVar(&macro, "macro", "", "only print this macro-economic sector")
	return cmd
}

func renderTree(w io.Writer, wf *workflow.Workflow, onlyMacro string) error {
	l := list.NewWriter()
	l.SetOutputMirror(w)
	l.SetStyle(list.StyleConnectedLight)

	depth, skipping := 0, false
	err := walk(wf, func(d int, name, code string) bool {
		if d == 0 {
			skipping = onlyMacro != "" && name != onlyMacro
		}
		if skipping {
			return false
		}
		for ; depth < d; depth++ {
			l.Indent()
		}
		for ; depth > d; depth-- {
			l.UnIndent()
		}
		if d == 3 {
			l.AppendItem(fmt.Sprintf("%s (%s)", name, code))
		} else {
			l.AppendItem(name)
		}
		return false
	})
	if err != nil {
		return err
	}
	if l.Length() == 0 {
		if onlyMacro != "" {
			return fmt.Errorf("macro-economic sector %q not found", onlyMacro)
		}
		fmt.Fprintln(w, "No classifications found.")
		return nil
	}
	l.Render()
	return nil
}

func newStocksCommand(a *app) *cobra.Command {
	var basic string
	cmd := &cobra.Command{
		Use:   "stocks",
		Short: "List the companies filed under a basic industry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, release := a.newWorkflow()
			defer release()
			if err := wf.Load(cmd.Context()); err != nil {
				return err
			}
			opt, err := selectBasic(wf, basic)
			if err != nil {
				return err
			}
			if err := wf.Search(cmd.Context()); err != nil {
				return err
			}
			st := wf.State()
			renderStocks(cmd.OutOrStdout(), st.Rows, fmt.Sprintf("%d stocks in %s", st.Count, opt.Name))
			return nil
		},
	}
	cmd.Flags().StringVar(&basic, "basic", "", "basic industry code (required)")
	_ = cmd.MarkFlagRequired("basic")
	return cmd
}

func renderStocks(w io.Writer, rows []classification.StockRow, caption string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Company", "Market Cap", "Basic Industry", "Comments"})
	for _, r := range rows {
		basic := string(r.BasicIndustryName)
		if basic == "" {
			basic = string(r.BasicIndCode)
		}
		t.AppendRow(table.Row{r.CompanyID, r.CompanyName, r.MarketCapCategory, basic, r.Comments})
	}
	t.SetCaption("%s", caption)
	t.Render()
}
