package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/cachefsd/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample cachefsd configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/cachefsd/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  cachefsd init

  # Initialize with custom path
  cachefsd init --config /etc/cachefsd/config.yaml

  # Force overwrite existing config
  cachefsd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	if !initForce {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
	}

	if err := config.SaveConfig(config.DefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: cachefsd serve")
	fmt.Printf("  3. Or specify custom config: cachefsd serve --config %s\n", configPath)

	return nil
}
