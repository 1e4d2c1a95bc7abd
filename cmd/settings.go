package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect the settings file",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	Long: `Write the default settings to the settings file.
An existing file is left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runSettingsInit,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsInitCmd)

	settingsShowCmd.Flags().Bool("json", false, "Output as JSON")
	settingsInitCmd.Flags().Bool("force", false, "Overwrite an existing settings file")
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	cfg, s, err := loadConfig(false)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(s)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	fmt.Printf("# %s\n%s", cfg.Paths.SettingsPath, data)
	if err := s.Validate(); err != nil {
		fmt.Printf("\nWarning: %v\n", err)
	}
	return nil
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if settingsPath != "" {
		cfg.Paths.SettingsPath = settingsPath
	}
	path := cfg.Paths.SettingsPath

	if _, err := os.Stat(path); err == nil && !mustGetBool(cmd, "force") {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking settings file: %w", err)
	}

	if err := config.SaveSettings(path, config.DefaultSettings()); err != nil {
		return err
	}
	fmt.Printf("Wrote default settings to %s\n", path)
	return nil
}
