package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/BioHazard786/Warpcall/cli/internal/call"
	"github.com/BioHazard786/Warpcall/cli/internal/config"
	"github.com/BioHazard786/Warpcall/cli/internal/logging"
	"github.com/BioHazard786/Warpcall/cli/internal/media"
	"github.com/BioHazard786/Warpcall/cli/internal/roomname"
	"github.com/BioHazard786/Warpcall/cli/internal/ui"
	"github.com/BioHazard786/Warpcall/cli/internal/version"
	"github.com/BioHazard786/Warpcall/cli/internal/webrtc"
	"github.com/BioHazard786/Warpcall/internal/protocol"
	pion "github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"
)

var (
	flagName    string
	flagNoAudio bool
	flagNoVideo bool
)

var callCmd = &cobra.Command{
	Use:     "call [room]",
	Aliases: []string{"c"},
	Short:   "Join a room and call whoever else is in it",
	Long: `Join a room on the signaling server and start a WebRTC call with the other member.
Without a room name a fresh one is generated; share it with the person you want to call.

Examples:
  warpcall call
  warpcall call amber-wren-harp
  warpcall call --no-video --relay amber-wren-harp`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return startCall(cmd.Context(), args)
	},
}

func startCall(ctx context.Context, args []string) error {
	cfg, err := LoadConfig(configOptions())
	if err != nil {
		return err
	}

	var roomID string
	if len(args) == 1 {
		roomID = args[0]
	} else {
		roomID = pickRoomName(ctx, cfg)
	}

	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()
	conn, err := NewConnectionContext(ctx, cfg)
	if err != nil {
		sp.Error("Could not reach " + cfg.Domain)
		return err
	}
	defer conn.Close()
	sp.Success("Connected to " + cfg.Domain)

	fmt.Println(ui.RoomInfoView(roomID, cfg.Domain))

	api, err := webrtc.NewAPI(logging.PionFactory())
	if err != nil {
		return call.NewError("set up webrtc", err)
	}

	name := displayName()
	newLink := func(tracks []pion.TrackLocal, events webrtc.Events) (call.Link, error) {
		link, err := webrtc.NewLink(api, webrtc.LinkOptions{
			Config:  cfg,
			Tracks:  tracks,
			Name:    name,
			Version: version.Version,
			Events:  events,
			Log:     slog.Default(),
		})
		if err != nil {
			return nil, err
		}
		return link, nil
	}

	callCtx, hangup := context.WithCancel(ctx)
	defer hangup()

	var c *call.Call
	screen := ui.NewCallUI(roomID, func(text string) error { return c.Say(text) }, hangup)
	c = call.New(
		call.Options{
			RoomID:  roomID,
			Capture: media.Options{Audio: !flagNoAudio, Video: !flagNoVideo},
		},
		conn.Client,
		conn.Handler.Events(),
		media.SyntheticSource{StreamID: "warpcall-" + roomID},
		newLink,
		screen,
		slog.Default(),
	)

	done := make(chan error, 1)
	go func() {
		err := c.Run(callCtx)
		screen.End(err)
		done <- err
	}()

	if err := screen.Run(); err != nil {
		hangup()
		<-done
		return call.NewError("run call screen", err)
	}
	return <-done
}

// pickRoomName generates a room name that is not live on the server. The
// listing is best effort; without it any generated name is used.
func pickRoomName(ctx context.Context, cfg *config.Config) string {
	list, err := fetchRooms(ctx, cfg)
	if err != nil {
		slog.Debug("could not list rooms", "error", err)
		ui.PrintWarning("Could not list live rooms, picking a random name")
		return roomname.New()
	}

	name, err := roomname.Free(func(candidate string) bool {
		return slices.ContainsFunc(list.Rooms, func(r *protocol.RoomSnapshot) bool { return r.ID == candidate })
	})
	if err != nil {
		return roomname.New()
	}
	return name
}

func displayName() string {
	if flagName != "" {
		return flagName
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "warpcall"
}

func init() {
	rootCmd.AddCommand(callCmd)

	callCmd.Flags().StringVarP(&flagName, "name", "n", "", "Name shown to the other side in chat")
	callCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "Do not send audio")
	callCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Do not send video")
}
