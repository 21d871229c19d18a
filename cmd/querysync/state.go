package main

import (
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/querysync/querysync/codec"
	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/querysync/registry"
	"github.com/arthur-debert/querysync/querysync/store"
	"github.com/arthur-debert/querysync/types"
)

type sessionInfo struct {
	Key    string `json:"key" yaml:"key"`
	Paths  int    `json:"paths" yaml:"paths"`
	Merged bool   `json:"merged" yaml:"merged"`
}

type stateInfo struct {
	Path  string       `json:"path" yaml:"path"`
	State types.Params `json:"state" yaml:"state"`
	URL   string       `json:"url" yaml:"url"`
}

func (cli *CLI) addStateCommand() {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit the persisted query state",
		Long: `The state commands operate on the query state persisted under the key
"query-store" in the cache file (see --cache). Every change prints the
canonical URL of the new state.

Values are read as JSON when they parse, otherwise as plain strings; null
resets a parameter to its default.`,
	}

	showCmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Show the query state of every route, or of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, done, err := cli.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			paths := st.Registry().Paths()
			if len(args) == 1 {
				path, err := requireRoute(st.Registry(), "show state", args[0])
				if err != nil {
					return err
				}
				paths = []string{path}
			}
			return cli.writeStates(st, paths...)
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <path> <key> <value>",
		Short: "Set one parameter of a route",
		Example: `  querysync state set /products layout list
  querysync state set /users pagination '{"page":2,"pageSize":20}'
  querysync state set /products tab null`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates := types.Params{args[1]: parseValue(args[2])}
			return cli.mutate(cmd, "set state", args[0], updates, func(st *store.Store, path string) {
				st.SetParam(path, args[1], updates[args[1]])
			})
		},
	}

	updateCmd := &cobra.Command{
		Use:     "update <path> <json-object>",
		Short:   "Set several parameters of a route at once",
		Example: `  querysync state update /products '{"layout":"list","filter":{"category":"books"}}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseParams("update state", args[1])
			if err != nil {
				return err
			}
			return cli.mutate(cmd, "update state", args[0], updates, func(st *store.Store, path string) {
				st.UpdateQueryState(path, updates)
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <path>",
		Short: "Return a route to its defaults",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.mutate(cmd, "reset state", args[0], nil, func(st *store.Store, path string) {
				st.Reset(path)
			})
		},
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List every store persisted in the cache file",
		Long: `Lists the store keys in the cache file. The server persists one store
per browser session under "query-store:<session id>"; the state commands
use "query-store".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := cli.storage()
			defer func() { _ = st.Close() }()

			keys, err := st.Keys(cmd.Context())
			if err != nil {
				return NewStoreError("list sessions", err, CommonSuggestions.CheckCache)
			}
			slices.Sort(keys)

			t := Table{Headers: []string{"KEY", "PATHS", "MERGED"}}
			infos := make([]sessionInfo, 0, len(keys))
			for _, key := range keys {
				snap, err := st.Load(cmd.Context(), key)
				if err != nil {
					// one damaged entry does not hide the others
					cli.logger.Warn("skipping unreadable session", "key", key, "error", err)
					continue
				}
				info := sessionInfo{Key: key, Merged: snap.MergedWithStorage}
				for _, state := range snap.QueryStates {
					if len(state) > 0 {
						info.Paths++
					}
				}
				infos = append(infos, info)
				t.Rows = append(t.Rows, []string{key, strconv.Itoa(info.Paths), strconv.FormatBool(info.Merged)})
			}
			t.Value = infos
			return cli.write(t)
		},
	}

	forgetCmd := &cobra.Command{
		Use:     "forget <key>",
		Short:   "Delete a persisted store from the cache file",
		Example: `  querysync state forget query-store:6f1c2a7e-8d4b-4f0e-9a51-0c3d2b7e9f10`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := cli.storage()
			defer func() { _ = st.Close() }()

			if err := st.Delete(cmd.Context(), args[0]); err != nil {
				return NewStoreError("forget session", err, CommonSuggestions.CheckCache)
			}
			cli.logger.Info("store forgotten", "key", args[0])
			return nil
		},
	}

	for _, c := range []*cobra.Command{setCmd, updateCmd} {
		c.Flags().Bool("strict", false, "Reject disallowed or malformed parameters instead of repairing them")
	}
	stateCmd.AddCommand(showCmd, setCmd, updateCmd, resetCmd, sessionsCmd, forgetCmd)
	cli.rootCmd.AddCommand(stateCmd)
}

// mutate validates updates in strict mode, applies fn to a hydrated store
// and prints the resulting state
func (cli *CLI) mutate(cmd *cobra.Command, operation, rawPath string, updates types.Params, fn func(*store.Store, string)) error {
	st, done, err := cli.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer done()

	path, err := requireRoute(st.Registry(), operation, rawPath)
	if err != nil {
		return err
	}
	if strict, _ := cmd.Flags().GetBool("strict"); strict {
		if err := params.Validate(updates, st.Registry().AllowedParams(path)); err != nil {
			return NewStrictError(operation, err)
		}
	}

	changed := false
	unsubscribe := st.Subscribe(func(store.Change) { changed = true })
	fn(st, path)
	unsubscribe()

	if !changed {
		cli.logger.Info("query state unchanged", "path", path)
	}
	return cli.writeStates(st, path)
}

func (cli *CLI) writeStates(st *store.Store, paths ...string) error {
	t := Table{Headers: []string{"PATH", "QUERY", "URL"}}
	infos := make([]stateInfo, 0, len(paths))
	for _, path := range paths {
		path = registry.NormalizePath(path)
		state := st.QueryState(path)
		url := codec.BuildURL(path, state)
		infos = append(infos, stateInfo{Path: path, State: state, URL: url})
		t.Rows = append(t.Rows, []string{path, codec.Encode(state), url})
	}
	t.Value = infos
	return cli.write(t)
}
