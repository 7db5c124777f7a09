/*
Copyright © 2024 the terndata.flux authors.
This file is part of terndata.flux.

terndata.flux is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

terndata.flux is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with terndata.flux.  If not, see <http://www.gnu.org/licenses/>.*/

// Package fluxutil holds the command-line interface for the terndata
// flux client.
package fluxutil

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	flux "github.com/ternaustralia/terndata.flux"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "catalog_url",
			usage: `
              catalog_url overrides the root URL of the THREDDS flux
              data catalog.`,
			defaultVal: flux.CatalogBase,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose enables debug logging.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "version",
			usage: `
              version specifies the dataset version. The default is the
              latest version available for the site.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{variablesCmd.Flags(), attrsCmd.Flags(),
				subsetCmd.Flags(), exportXLSXCmd.Flags(), exportOneFluxCmd.Flags()},
		},
		{
			name: "level",
			usage: `
              level specifies the dataset processing level (e.g. L3, L4
              or L6). Each command applies its own default.`,
			defaultVal: "",
			flagsets: []*pflag.FlagSet{variablesCmd.Flags(), attrsCmd.Flags(),
				subsetCmd.Flags(), exportXLSXCmd.Flags(), exportOneFluxCmd.Flags()},
		},
		{
			name: "locations",
			usage: `
              locations fetches the coordinates of every site from its
              latest L6 dataset in addition to the site names.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{sitesCmd.Flags()},
		},
		{
			name: "variables",
			usage: `
              variables specifies the variable names to keep in the
              subset.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "start",
			usage: `
              start bounds the subset time axis from below
              (ISO-8601, e.g. 2007-10-17 or "2007-10-17 14:30").`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "end",
			usage: `
              end bounds the subset time axis from above (ISO-8601).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{subsetCmd.Flags()},
		},
		{
			name: "out",
			usage: `
              out specifies the output .xlsx file.`,
			shorthand:  "o",
			defaultVal: "flux.xlsx",
			flagsets:   []*pflag.FlagSet{exportXLSXCmd.Flags()},
		},
		{
			name: "outdir",
			usage: `
              outdir specifies the output directory for the per-year
              CSV files.`,
			shorthand:  "d",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{exportOneFluxCmd.Flags()},
		},
	}

	Cfg = viper.New()
	Cfg.SetEnvPrefix("TERNFLUX")
	for _, option := range options {
		for _, set := range option.flagsets {
			switch v := option.defaultVal.(type) {
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			default:
				set.StringP(option.name, option.shorthand, cast.ToString(v), option.usage)
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
		Cfg.BindEnv(option.name)
	}

	Root.AddCommand(sitesCmd, versionsCmd, levelsCmd, variablesCmd, attrsCmd,
		rangeCmd, subsetCmd, exportCmd)
	exportCmd.AddCommand(exportXLSXCmd, exportOneFluxCmd)
}

// setConfig reads the configuration file if one is specified.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("fluxutil: problem reading configuration file: %v", err)
		}
	}
	if Cfg.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return nil
}

// client builds a flux client from the configuration.
func client() *flux.Client {
	c := flux.NewClient()
	c.BaseURL = Cfg.GetString("catalog_url")
	return c
}

// Root is the main command.
var Root = &cobra.Command{
	Use:               "ternflux",
	Short:             "A client for the TERN OzFlux ecosystem flux-tower data catalog.",
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
	SilenceUsage:      true,
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the sites in the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		if !Cfg.GetBool("locations") {
			names, err := c.GetSiteNames()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}
		locs, err := c.GetSites()
		if err != nil {
			return err
		}
		for _, name := range sortedLocationKeys(locs) {
			l := locs[name]
			fmt.Printf("%s\t%.4f\t%.4f\t%s\n", l.Site, l.Point.X, l.Point.Y, l.Vegetation)
		}
		return nil
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions [site]",
	Short: "List the dataset versions available for a site.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versions, err := client().GetVersions(args[0])
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Println(v)
		}
		return nil
	},
}

var levelsCmd = &cobra.Command{
	Use:   "levels [site] [version]",
	Short: "List the processing levels available for a site and version.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		levels, err := client().GetProcessingLevels(args[0], args[1])
		if err != nil {
			return err
		}
		for _, l := range levels {
			fmt.Println(l)
		}
		return nil
	},
}

var variablesCmd = &cobra.Command{
	Use:   "variables [site]",
	Short: "List the variables of a site's default dataset.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vars, err := client().GetVariables(args[0], Cfg.GetString("version"), Cfg.GetString("level"))
		if err != nil {
			return err
		}
		for _, v := range vars {
			fmt.Println(v)
		}
		return nil
	},
}

var attrsCmd = &cobra.Command{
	Use:   "attrs [site]",
	Short: "Print the global attributes of a site's default dataset.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs, err := client().GetGlobalAttributes(args[0], Cfg.GetString("version"), Cfg.GetString("level"))
		if err != nil {
			return err
		}
		for _, k := range sortedKeys(attrs) {
			fmt.Printf("%s\t%v\n", k, attrs[k])
		}
		return nil
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range [site] [version]",
	Short: "Print the temporal range of a site's default dataset.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := client().GetTemporalRange(args[0], args[1], Cfg.GetString("level"))
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", start.Format(time.RFC3339), end.Format(time.RFC3339))
		return nil
	},
}

var subsetCmd = &cobra.Command{
	Use:   "subset [site]",
	Short: "Print a variable- and time-filtered summary of a site's dataset.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := client().GetSubset(args[0], flux.SubsetOptions{
			Version:         Cfg.GetString("version"),
			ProcessingLevel: Cfg.GetString("level"),
			Variables:       subsetVariables(),
			Start:           Cfg.GetString("start"),
			End:             Cfg.GetString("end"),
			KeepAttrs:       true,
			KeepQCFlags:     true,
		})
		if err != nil {
			return err
		}
		start, end := ds.TemporalRange()
		fmt.Printf("records: %d (%s to %s)\n", len(ds.Time),
			start.Format(time.RFC3339), end.Format(time.RFC3339))
		for _, v := range ds.VariableNames() {
			fmt.Println(v)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a dataset.",
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx [site]",
	Short: "Export a site's dataset as a three-sheet Excel workbook.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := client().ExportExcel(Cfg.GetString("out"), args[0],
			Cfg.GetString("version"), Cfg.GetString("level"))
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var exportOneFluxCmd = &cobra.Command{
	Use:   "oneflux [site]...",
	Short: "Export datasets as per-year OneFlux-format CSV files.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client()
		bar := pb.StartNew(len(args))
		defer bar.Finish()
		for _, site := range args {
			files, err := c.ExportOneFluxCSV(Cfg.GetString("outdir"), site,
				Cfg.GetString("version"), Cfg.GetString("level"))
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Println(f)
			}
			bar.Increment()
		}
		return nil
	},
}

func subsetVariables() []string {
	vars := Cfg.GetStringSlice("variables")
	if len(vars) == 0 {
		return nil
	}
	return vars
}

func sortedLocationKeys(m map[string]flux.SiteLocation) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fatal prints an error and exits.
func Fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
