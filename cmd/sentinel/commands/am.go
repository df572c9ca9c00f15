package commands

import (
	"fmt"
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage sentinel configuration",
	Long: `Display and manage sentinel configuration ("I am").

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/sentinel/sentinel.toml)
3. User config (~/.sentinel/sentinel.toml)
4. Project config (nearest sentinel.toml, searching up directories)
5. Environment variables (SENTINEL_* prefix)

--config replaces steps 2-4 with a single file.

Examples:
  sentinel am show                    # Show current configuration
  sentinel am show --format json      # Show configuration in JSON format
  sentinel am show --sources          # Show where every value came from
  sentinel am validate                # Validate current configuration
  sentinel am init                    # Write ./sentinel.toml with defaults`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Long: `Write a configuration file with every default value.

An existing file is rotated to .back1, .back2 and .back3 first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAmInit,
}

var (
	configFormat string
	showSources  bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", am.FormatTOML, "Output format: toml, json, yaml")
	amShowCmd.Flags().BoolVar(&showSources, "sources", false, "List each setting with the source it came from")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amInitCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	v, sources, err := configViper()
	if err != nil {
		return err
	}

	if showSources {
		return printSources(am.Introspect(v, sources))
	}

	data, err := am.Render(am.Settings(v), configFormat)
	if err != nil {
		return err
	}
	if configFormat != am.FormatJSON {
		fmt.Print("# sentinel configuration\n")
	}
	fmt.Print(string(data))
	if configFormat == am.FormatJSON {
		fmt.Println()
	}
	return nil
}

func printSources(settings []am.SettingInfo) error {
	data := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range settings {
		data = append(data, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	counts := am.Summary(settings)
	keys := make([]string, 0, len(counts))
	for src := range counts {
		keys = append(keys, string(src))
	}
	sort.Strings(keys)

	fmt.Println()
	for _, k := range keys {
		fmt.Printf("  %-12s %d\n", k, counts[am.ConfigSource(k)])
	}
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	pterm.Success.Println("Configuration is valid")
	if cfg.TwinMode() {
		pterm.Info.Println("No backend token: submissions run against the local twin")
	}
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := "./" + am.ConfigFileName
	if len(args) == 1 {
		path = args[0]
	}
	if err := am.WriteDefault(path); err != nil {
		return err
	}
	pterm.Success.Printfln("Wrote %s", path)
	return nil
}
