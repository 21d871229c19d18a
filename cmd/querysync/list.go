package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/querysync/querysync/catalog"
	"github.com/arthur-debert/querysync/querysync/codec"
	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/querysync/view"
	"github.com/arthur-debert/querysync/types"
)

func (cli *CLI) addListCommand() {
	cmd := &cobra.Command{
		Use:   "list <dataset> [query]",
		Short: "Run a list query against a dataset",
		Long: `List filters, sorts and paginates a dataset the way GET /api/{dataset}
does. Only filter, pagination and sorts are read from the query; malformed
values fall back to their defaults.`,
		Example: `  querysync list products 'filter[category]=books&sorts[0][key]=price&sorts[0][order]=desc'
  querysync list users 'pagination[page]=2&pagination[pageSize]=5' --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := cli.catalog()
			if err != nil {
				return WrapError("build datasets", err)
			}
			query := ""
			if len(args) == 2 {
				query = args[1]
			}
			api := params.APIParamsFrom(params.Sanitize(codec.Decode(query), types.APIKeys))

			data, err := cat.Fetch(cmd.Context(), args[0], api)
			if errors.Is(err, catalog.ErrUnknownDataset) {
				return NewNotFoundError("list", "dataset", args[0], CommonSuggestions.CheckDataset)
			}
			if err != nil {
				return WrapError("list", err)
			}
			return cli.write(recordsTable(data))
		},
	}
	addCatalogFlags(cmd.Flags())
	cli.rootCmd.AddCommand(cmd)
}

// recordsTable shows one record per row, id first and the other fields in
// lexical order
func recordsTable(data types.PaginatedData[types.Record]) Table {
	seen := map[string]bool{}
	for _, rec := range data.Data {
		for k := range rec {
			seen[k] = true
		}
	}
	columns := params.SortedKeys(seen)
	if i := slices.Index(columns, "id"); i > 0 {
		columns = append([]string{"id"}, slices.Delete(columns, i, i+1)...)
	}

	t := Table{Headers: columns, Value: data}
	for _, rec := range data.Data {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = cell(rec[c])
		}
		t.Rows = append(t.Rows, row)
	}
	pages := view.TotalPages(data.Total, data.Pagination.PageSize)
	from, to := view.Showing(data.Pagination, data.Total)
	t.Footer = fmt.Sprintf("showing %d-%d of %d (page %d of %d)", from, to, data.Total, data.Pagination.Page, pages)
	return t
}
