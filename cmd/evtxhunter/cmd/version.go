package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evtxhunter/evtxhunter/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of evtxhunter.`,
	Run: func(cmd *cobra.Command, args []string) {
		if GetOutput() == "json" {
			info := version.GetBuildInfo()
			data, _ := json.MarshalIndent(info, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Println(version.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
