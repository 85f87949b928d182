package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/csvimport/internal/core"
)

type tableOutput struct {
	Key     string         `json:"key"`
	Group   string         `json:"group"`
	Label   string         `json:"label"`
	Table   string         `json:"table"`
	Columns []columnOutput `json:"columns"`
}

type columnOutput struct {
	Name     string `json:"name"`
	Column   string `json:"column"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

func newTablesCmd(_ *app) *cobra.Command {
	var (
		asJSON  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:         "tables",
		Short:       "List destination tables",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs := core.All()
			out := cmd.OutOrStdout()

			if asJSON {
				list := make([]tableOutput, 0, len(defs))
				for _, def := range defs {
					list = append(list, toTableOutput(def))
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tGROUP\tTABLE\tCOLUMNS")
			for _, def := range defs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", def.Info.Key, def.Info.Group, def.TableName(), len(def.FieldSpecs))
				if verbose {
					for _, spec := range def.FieldSpecs {
						req := ""
						if spec.Required {
							req = " (required)"
						}
						fmt.Fprintf(w, "\t\t  %s\t%s%s\n", spec.Column(), strings.ToLower(spec.Type.String()), req)
					}
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "list columns")
	return cmd
}

func toTableOutput(def core.TableDefinition) tableOutput {
	cols := make([]columnOutput, len(def.FieldSpecs))
	for i, spec := range def.FieldSpecs {
		cols[i] = columnOutput{
			Name:     spec.Name,
			Column:   spec.Column(),
			Type:     spec.Type.String(),
			Required: spec.Required,
		}
	}
	return tableOutput{
		Key:     def.Info.Key,
		Group:   def.Info.Group,
		Label:   def.Info.Label,
		Table:   def.TableName(),
		Columns: cols,
	}
}
