package main

import (
	"github.com/spf13/cobra"

	"github.com/arthur-debert/querysync/querysync/params"
)

func (cli *CLI) addConfigCommand() {
	cli.rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := cli.viperInst.AllSettings()
			t := Table{Headers: []string{"KEY", "VALUE"}, Value: settings}
			if used := cli.viperInst.ConfigFileUsed(); used != "" {
				t.Footer = "config file: " + used
			}
			for _, k := range params.SortedKeys(settings) {
				t.Rows = append(t.Rows, []string{k, cell(settings[k])})
			}
			return cli.write(t)
		},
	})
}
