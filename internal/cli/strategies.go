package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/optionlab/stratcalc/internal/strategy"
)

func newStrategiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List the supported strategies",
		Long: `List the strategies the engine computes positions for. With
--templates the broader library is shown instead: data-only structures
like covered calls and verticals, described in the strike-rule grammar.`,
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)

			if templates, _ := cmd.Flags().GetBool("templates"); templates {
				renderTemplates(output)
				return
			}

			catalog := strategy.Catalog()
			if output.IsJSON() {
				_ = output.JSON(catalog)
				return
			}

			table := NewTable(output, "strategy", "name", "style", "legs", "outlook")
			for _, d := range catalog {
				style := "debit"
				if d.Credit {
					style = "credit"
				}
				table.AddRow(d.Type.String(), d.Name, style, d.Legs, d.Outlook)
			}
			table.Render()
		},
	}

	cmd.Flags().Bool("templates", false, "list the broader template library instead")

	return cmd
}

func renderTemplates(output *Output) {
	templates := strategy.Templates()

	if output.IsJSON() {
		_ = output.JSON(templates)
		return
	}

	table := NewTable(output, "template", "name", "style", "legs", "outlook")
	for _, tpl := range templates {
		style := "debit"
		if tpl.Credit {
			style = "credit"
		}
		table.AddRow(tpl.Key, tpl.Name, style, templateLegs(tpl), tpl.Outlook)
	}
	table.Render()
}

func templateLegs(tpl strategy.Template) string {
	parts := make([]string, 0, len(tpl.Legs))
	for _, leg := range tpl.Legs {
		if leg.Stock {
			parts = append(parts, fmt.Sprintf("%s stock", leg.Side))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", leg.Side, leg.OptionType, leg.StrikeRule))
	}
	return strings.Join(parts, ", ")
}
