package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"simplane/pkg/api"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "watch [session_id]",
		Short: "Stream live updates for a session",
		Long: `Subscribe to a session's live channel and print each update (status changes,
events, metrics and faults) until interrupted.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			count, _ := cmd.Flags().GetInt("count")

			client, ok := newClient(cmd)
			if !ok {
				return
			}

			// Trap Ctrl+C to exit gracefully
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := watch(ctx, cmd, client, args[0], count); err != nil {
				printError(cmd, err)
			}
		},
	}
	c.Flags().Int("count", 0, "Exit after this many updates (0 streams until interrupted)")
	return c
}

func watch(ctx context.Context, cmd *cobra.Command, client *SimClient, id string, count int) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+client.Token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, client.WatchURL(id), header)
	if err != nil {
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: "live subscription refused"}
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer ws.Close()

	go func() {
		<-ctx.Done()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		ws.Close()
	}()

	if viperOutputIsTable() {
		cmd.Printf("Watching session %s (Ctrl+C to stop)\n", id)
	}

	for received := 0; count == 0 || received < count; received++ {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		}
		printLiveMessage(cmd, data)
	}
	return nil
}

func printLiveMessage(cmd *cobra.Command, data []byte) {
	if !viperOutputIsTable() {
		// Machine formats get the envelope verbatim, one per line.
		cmd.Println(string(data))
		return
	}

	var msg api.LiveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		cmd.Println(string(data))
		return
	}
	cmd.Printf("%s%s%s %s%-20s%s %s\n",
		colorDim, time.Now().Format("15:04:05"), colorReset,
		colorBold, msg.Type, colorReset,
		string(msg.Payload))
}
