package cmd

import (
	"fmt"
	"os"

	"github.com/andresmejia3/facecurator/internal/utils"
	"github.com/spf13/cobra"
)

var configSavePath string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration, or save it as a config file",
	Long: `Prints the configuration after defaults, config file and environment are
applied (database password masked). With --save the configuration is written
to a YAML file that can be passed to --config. The database URL is never saved.`,
	Run: func(cmd *cobra.Command, args []string) {
		if configSavePath != "" {
			if err := appConfig.Save(configSavePath); err != nil {
				utils.Die("Failed to save config", err, nil)
			}
			fmt.Printf("💾 Config written to %s\n", configSavePath)
			return
		}
		if err := appConfig.Encode(os.Stdout); err != nil {
			utils.Die("Failed to print config", err, nil)
		}
	},
}

func init() {
	configCmd.Flags().StringVar(&configSavePath, "save", "", "Write the configuration to this YAML file")
	rootCmd.AddCommand(configCmd)
}
