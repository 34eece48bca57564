package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

// outputCmd represents the output command
var outputCmd = &cobra.Command{
	Use:   "output [height]",
	Short: "Print the random beacon output at the specified height.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Get(fmt.Sprintf("%s/v1/beacon/%s", url, args[0]))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		var info struct {
			Height uint64 `json:"height"`
			Hash   string `json:"hash"`
			Output string `json:"output"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			log.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			log.Fatalf("node returned %s", resp.Status)
		}

		fmt.Println(info.Output)
	},
}

func init() {
	rootCmd.AddCommand(outputCmd)
}
