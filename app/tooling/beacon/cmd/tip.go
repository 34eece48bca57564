package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

// tipCmd represents the tip command
var tipCmd = &cobra.Command{
	Use:   "tip",
	Short: "Print the canonical chain tip.",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Get(fmt.Sprintf("%s/v1/chain/tip", url))
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()

		var tip struct {
			Height uint64 `json:"height"`
			Hash   string `json:"hash"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&tip); err != nil {
			log.Fatal(err)
		}

		fmt.Println("height:", tip.Height)
		fmt.Println("hash:  ", tip.Hash)
	},
}

func init() {
	rootCmd.AddCommand(tipCmd)
}
