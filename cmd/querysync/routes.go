package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/querysync/querysync/codec"
	"github.com/arthur-debert/querysync/types"
)

type routeInfo struct {
	Path          string       `json:"path" yaml:"path"`
	Dataset       string       `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	AllowedParams []string     `json:"allowedParams" yaml:"allowedParams"`
	Defaults      types.Params `json:"defaults" yaml:"defaults"`
}

func (cli *CLI) addRoutesCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "routes",
		Short: "List known routes with their parameters and defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := cli.registry()
			if err != nil {
				return err
			}
			t := Table{Headers: []string{"PATH", "DATASET", "ALLOWED", "DEFAULTS"}}
			var infos []routeInfo
			for _, path := range reg.Paths() {
				cfg := reg.ConfigFor(path)
				infos = append(infos, routeInfo{
					Path:          path,
					Dataset:       cfg.Dataset,
					AllowedParams: cfg.AllowedParams,
					Defaults:      cfg.Defaults,
				})
				t.Rows = append(t.Rows, []string{
					path,
					cfg.Dataset,
					strings.Join(cfg.AllowedParams, ","),
					codec.Encode(cfg.Defaults),
				})
			}
			t.Value = infos
			return cli.write(t)
		},
	})
}
