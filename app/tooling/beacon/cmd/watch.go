package cmd

import (
	"fmt"
	"log"
	neturl "net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream node activity until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		host := strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
		u := neturl.URL{Scheme: "ws", Host: host, Path: "/v1/events"}

		c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			log.Fatal(err)
		}
		defer c.Close()

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, message, err := c.ReadMessage()
				if err != nil {
					return
				}
				fmt.Println(string(message))
			}
		}()

		select {
		case <-done:
		case <-interrupt:
			c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
