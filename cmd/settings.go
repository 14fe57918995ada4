package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/policy-compare/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and override service credentials",
	Long:  "Settings come from the environment; 'set' writes a runtime override to the settings file. Setting an empty value clears the override.",
}

func newSettingsStore() *settings.Store {
	return settings.NewStore(cfg.Data.SettingsPath, settings.EnvFromOS())
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := newSettingsStore()
		snapshot := store.Snapshot()
		overrides := store.Overrides()

		for _, key := range settings.Keys() {
			value := snapshot[key]
			switch {
			case value == "":
				value = "(unset)"
			case strings.HasSuffix(key, "_KEY"):
				value = "(set)"
			}
			marker := ""
			if _, ok := overrides[key]; ok {
				marker = " (override)"
			}
			fmt.Printf("%-28s %s%s\n", key, value, marker)
		}
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one effective setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !slices.Contains(settings.Keys(), key) {
			return eris.Errorf("unknown setting %q", key)
		}
		fmt.Println(newSettingsStore().Get(key))
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Write a runtime override",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !slices.Contains(settings.Keys(), key) {
			return eris.Errorf("unknown setting %q", key)
		}
		value := ""
		if len(args) == 2 {
			value = args[1]
		}

		if err := newSettingsStore().Set(key, value); err != nil {
			return err
		}
		if value == "" {
			fmt.Printf("cleared override for %s\n", key)
		} else {
			fmt.Printf("set %s\n", key)
		}
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsListCmd, settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
