package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mossy-p/bridge-signaling/config"
	"github.com/mossy-p/bridge-signaling/internal/discovery"
	"github.com/mossy-p/bridge-signaling/internal/models"
)

type serverRooms struct {
	Server string            `json:"server"`
	Rooms  []models.RoomInfo `json:"rooms"`
	Error  string            `json:"error,omitempty"`
}

func newRoomsCmd(root *rootOptions) *cobra.Command {
	var (
		servers []string
		asJSON  bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "list the rooms hosted on one or more signaling servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd)
			if len(servers) == 0 {
				cfg, err := config.LoadConnection()
				if err != nil {
					return err
				}
				servers = []string{cfg.ServerURL}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			results := make([]serverRooms, len(servers))
			g, gctx := errgroup.WithContext(ctx)
			for i, server := range servers {
				results[i].Server = server
				g.Go(func() error {
					client, err := discovery.NewClient(server)
					if err != nil {
						return fmt.Errorf("%s: %w", server, err)
					}
					list, err := client.ListRooms(gctx)
					if err != nil {
						// One unreachable server does not hide the others.
						log.WithError(err).WithField("server", server).Warn("Failed to list rooms")
						results[i].Error = err.Error()
						results[i].Rooms = []models.RoomInfo{}
						return nil
					}
					results[i].Rooms = list.Rooms
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			for _, r := range results {
				fmt.Fprintf(out, "%s\n", r.Server)
				if r.Error != "" {
					fmt.Fprintf(out, "  unavailable: %s\n", r.Error)
					continue
				}
				if len(r.Rooms) == 0 {
					fmt.Fprintln(out, "  no active rooms")
					continue
				}
				for _, room := range r.Rooms {
					fmt.Fprintf(out, "  %s  Host: %s | Guests: %d\n", room.RoomID, room.HostType, room.GuestCount)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&servers, "server", "s", nil, "signaling server URL, repeatable (default: SIGNAL_SERVER_URL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall request timeout")
	return cmd
}
