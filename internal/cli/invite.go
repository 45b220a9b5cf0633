package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossy-p/bridge-signaling/config"
	"github.com/mossy-p/bridge-signaling/internal/discovery"
	"github.com/mossy-p/bridge-signaling/internal/roomcode"
)

func newInviteCmd() *cobra.Command {
	var (
		server string
		parse  bool
		check  bool
	)
	cmd := &cobra.Command{
		Use:   "invite [room-id | payload]",
		Short: "print or decode a room invite payload",
		Long: `invite prints the JSON payload a host shows as a QR code. Without a room id a
new room code is generated. With --parse the argument is decoded instead, and
--check additionally asks the server whether the room exists.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if parse {
				if len(args) != 1 {
					return fmt.Errorf("--parse needs a payload")
				}
				inv, err := discovery.ParseRoomInvite(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "room: %s\n", inv.RoomID)
				if inv.ServerURL != "" {
					fmt.Fprintf(out, "server: %s\n", inv.ServerURL)
					server = inv.ServerURL
				}
				if !check {
					return nil
				}
				if server == "" {
					cfg, err := config.LoadConnection()
					if err != nil {
						return err
					}
					server = cfg.ServerURL
				}
				client, err := discovery.NewClient(server)
				if err != nil {
					return err
				}
				info, ok, err := client.Room(cmd.Context(), inv.RoomID)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "status: not found")
					return nil
				}
				fmt.Fprintf(out, "status: open (host: %s, guests: %d)\n", info.HostType, info.GuestCount)
				return nil
			}

			roomID := ""
			if len(args) == 1 {
				roomID = roomcode.Normalize(args[0])
			} else {
				code, err := roomcode.Generate()
				if err != nil {
					return err
				}
				roomID = code
			}
			data, err := json.Marshal(discovery.NewRoomInvite(roomID, server, time.Now()))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s\n", data)
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "signaling server URL to embed or query")
	cmd.Flags().BoolVar(&parse, "parse", false, "decode the argument as an invite payload")
	cmd.Flags().BoolVar(&check, "check", false, "with --parse, look the room up on the server")
	return cmd
}
