package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/querysync/querysync/codec"
	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/querysync/store"
	"github.com/arthur-debert/querysync/types"
)

// parseValue reads a command line value as JSON, falling back to the raw
// string, so that `list`, `2`, `true`, `null` and `{"page":2}` all work
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

// parseParams reads a JSON object argument
func parseParams(operation, s string) (types.Params, error) {
	var p types.Params
	if err := json.Unmarshal([]byte(s), &p); err != nil || p == nil {
		return nil, NewValidationError(operation, "JSON object", s,
			CommonSuggestions.QuoteJSON, CommonSuggestions.RunHelp)
	}
	return p, nil
}

// paramsTable lists p one key per row
func paramsTable(p types.Params, value any) Table {
	t := Table{Headers: []string{"KEY", "VALUE"}, Value: value}
	for _, k := range params.SortedKeys(p) {
		t.Rows = append(t.Rows, []string{k, cell(p[k])})
	}
	return t
}

func (cli *CLI) addCodecCommands() {
	encodeCmd := &cobra.Command{
		Use:   "encode <json-object>",
		Short: "Encode a parameter map as a canonical query string",
		Example: `  querysync encode '{"sorts":[{"key":"name","order":"asc"}],"filter":{"category":"electronics"}}'
  querysync encode --path /users '{"tab":"activity"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams("encode", args[0])
			if err != nil {
				return err
			}
			p = params.Normalize(p).(map[string]any)
			if path, _ := cmd.Flags().GetString("path"); path != "" {
				cmd.Println(codec.BuildURL(path, p))
				return nil
			}
			cmd.Println(codec.Encode(p))
			return nil
		},
	}
	encodeCmd.Flags().String("path", "", "Print a full URL for this route path")

	decodeCmd := &cobra.Command{
		Use:     "decode <url-or-query>",
		Short:   "Decode a URL or query string into a parameter map",
		Example: `  querysync decode '/users?filter[role]=admin&pagination[page]=2'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := codec.Decode(args[0])
			return cli.write(paramsTable(p, p))
		},
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Show the effective parameters a URL selects on its route",
		Long: `Resolve decodes the URL, drops parameters the route does not allow,
repairs malformed reserved values and merges the result over the route
defaults. The persisted state is not consulted.`,
		Example: `  querysync resolve '/products?sorts[0][key]=name'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := cli.registry()
			if err != nil {
				return err
			}
			path, err := requireRoute(reg, "resolve URL", codec.PathnameOf(args[0]))
			if err != nil {
				return err
			}
			_, effective := store.New(reg, store.WithLogger(cli.logger)).ResolveURL(args[0])
			canonical := codec.BuildURL(path, params.RemoveDefaults(effective, reg.Defaults(path)))

			t := paramsTable(effective, map[string]any{
				"path":      path,
				"canonical": canonical,
				"params":    effective,
			})
			t.Footer = fmt.Sprintf("canonical: %s", canonical)
			return cli.write(t)
		},
	}

	cli.rootCmd.AddCommand(encodeCmd, decodeCmd, resolveCmd)
}
