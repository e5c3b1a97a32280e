package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/BioHazard786/Warpcall/cli/internal/call"
	"github.com/BioHazard786/Warpcall/cli/internal/config"
	"github.com/BioHazard786/Warpcall/cli/internal/dns"
	"github.com/BioHazard786/Warpcall/cli/internal/ui"
	"github.com/BioHazard786/Warpcall/internal/protocol"
	"github.com/spf13/cobra"
)

const roomsTimeout = 10 * time.Second

var roomsCmd = &cobra.Command{
	Use:     "rooms",
	Aliases: []string{"ls"},
	Short:   "List the live rooms on the signaling server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configOptions())
		if err != nil {
			return err
		}

		stopSpinner := ui.RunConnectionSpinner("Fetching rooms...")
		list, err := fetchRooms(cmd.Context(), cfg)
		stopSpinner()
		if err != nil {
			return call.NewError("list rooms", err)
		}

		if len(list.Rooms) == 0 {
			ui.PrintInfo("No live rooms")
			return nil
		}
		ui.RenderRooms(os.Stdout, list)
		return nil
	},
}

func fetchRooms(ctx context.Context, cfg *config.Config) (protocol.RoomList, error) {
	ctx, cancel := context.WithTimeout(ctx, roomsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.RoomsURL, nil)
	if err != nil {
		return protocol.RoomList{}, err
	}

	client := &http.Client{Transport: &http.Transport{DialContext: dns.DialContext}}
	resp, err := client.Do(req)
	if err != nil {
		return protocol.RoomList{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return protocol.RoomList{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var list protocol.RoomList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return protocol.RoomList{}, fmt.Errorf("decode rooms: %w", err)
	}
	return list, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
