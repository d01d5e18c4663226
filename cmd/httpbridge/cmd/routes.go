package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/httpbridge/internal/domain/route"
)

var resolveURI string

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the effective route table",
	Long: `Print the route table built from the configuration, most specific
route first, as YAML.

With --resolve, also show how a request URI splits into context path,
servlet path, path info and query string.

Examples:
  httpbridge routes
  httpbridge routes --resolve '/app/users/42?active=true'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		table, err := cfg.RouteTable()
		if err != nil {
			return err
		}
		return writeRoutes(cmd.OutOrStdout(), table, resolveURI)
	},
}

func init() {
	routesCmd.Flags().StringVar(&resolveURI, "resolve", "", "request URI to resolve against the table")
	routesCmd.Flags().BoolVar(&devMode, "dev", false, "Include the development demo routes")
	rootCmd.AddCommand(routesCmd)
}

type routeView struct {
	Pattern  string `yaml:"pattern"`
	Handler  string `yaml:"handler"`
	Wildcard bool   `yaml:"wildcard,omitempty"`
}

type resolutionView struct {
	URI         string `yaml:"uri"`
	Matched     bool   `yaml:"matched"`
	Pattern     string `yaml:"pattern,omitempty"`
	Handler     string `yaml:"handler,omitempty"`
	ContextPath string `yaml:"context_path"`
	ServletPath string `yaml:"servlet_path"`
	PathInfo    string `yaml:"path_info"`
	QueryString string `yaml:"query_string"`
}

type routesView struct {
	ContextPath string          `yaml:"context_path"`
	Routes      []routeView     `yaml:"routes"`
	Resolve     *resolutionView `yaml:"resolve,omitempty"`
}

// writeRoutes renders table, and optionally the resolution of uri, as YAML.
func writeRoutes(w io.Writer, table *route.Table, uri string) error {
	view := routesView{ContextPath: table.ContextPath()}
	for _, r := range table.Routes() {
		view.Routes = append(view.Routes, routeView{Pattern: r.Pattern, Handler: r.Handler, Wildcard: r.IsWildcard()})
	}

	if uri != "" {
		comps, err := route.Resolve(uri, table)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", uri, err)
		}
		res := &resolutionView{
			URI:         uri,
			Matched:     comps.Matched(),
			ContextPath: comps.ContextPath,
			ServletPath: comps.RoutePath(),
			PathInfo:    comps.PathInfo,
			QueryString: comps.QueryString,
		}
		if comps.Route != nil {
			res.Pattern = comps.Route.Pattern
			res.Handler = comps.Route.Handler
		}
		view.Resolve = res
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
