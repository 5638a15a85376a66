package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/Huddle/internal/config"
	"github.com/BioHazard786/Huddle/internal/logging"
	"github.com/BioHazard786/Huddle/internal/mesh"
	"github.com/BioHazard786/Huddle/internal/roomname"
	"github.com/BioHazard786/Huddle/internal/ui"
)

var (
	flagServer       string
	flagInsecure     bool
	flagSTUN         string
	flagTURN         string
	flagTURNUser     string
	flagTURNPass     string
	flagRelay        bool
	flagAudioFile    string
	flagVideoFile    string
	flagNoVideo      bool
	flagClaimTimeout time.Duration
	flagLogFile      string
)

var joinCmd = &cobra.Command{
	Use:     "join [room]",
	Aliases: []string{"j"},
	Short:   "Join a room, creating it if nobody is there",
	Long: `Join a group call. Everyone who joins the same room name is connected to everyone
else, up to six participants. Without a room name a memorable one is generated.
Room names are case-insensitive and spaces become dashes, so "Team Sync" joins team-sync.

Examples:
  huddle join team-sync
  huddle join
  huddle join team-sync --no-video --relay
  huddle join team-sync --audio-file voice.ogg --video-file clip.ivf`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := roomname.Generate()
		if len(args) == 1 {
			room = args[0]
		}
		return joinRoom(cmd, room)
	},
}

func joinRoom(cmd *cobra.Command, room string) error {
	logCfg := logging.FromEnv()
	logCfg.File = flagLogFile
	closer, err := logging.Init(logCfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg, err := LoadConfig(config.Options{
		Domain:       flagServer,
		Insecure:     flagInsecure,
		STUNServer:   flagSTUN,
		TURNServer:   flagTURN,
		TURNUser:     flagTURNUser,
		TURNPass:     flagTURNPass,
		ForceRelay:   flagRelay,
		ClaimTimeout: flagClaimTimeout,
		AudioFile:    flagAudioFile,
		VideoFile:    flagVideoFile,
	})
	if err != nil {
		return err
	}

	session, err := NewSession(cfg, SessionOptions{NoVideo: flagNoVideo})
	if err != nil {
		return err
	}
	defer session.Disconnect()

	sp := ui.NewConnectionSpinner(fmt.Sprintf("Joining %s...", room))
	sp.Start()
	if err := session.JoinRoom(cmd.Context(), room); err != nil {
		sp.Stop()
		return describeJoinError(room, err)
	}
	self := session.Identity()
	sp.Success(fmt.Sprintf("Connected as %s", self.PeerName()))
	fmt.Println(ui.RoomBanner(self.Room, self.PeerName()))

	started := time.Now()
	view, runErr := ui.RunRoom(session)
	final := session.State()
	session.Disconnect()

	summary := ui.CallSummary{
		Room:      self.Room,
		Identity:  self.PeerName(),
		Status:    final.Status,
		Duration:  time.Since(started),
		PeakPeers: view.PeakParticipants(),
		Err:       final.Err,
	}
	summary.Tally(session.Messages())
	fmt.Println()
	ui.RenderCallSummary(os.Stdout, summary)

	if runErr != nil {
		return runErr
	}
	if final.Status == mesh.StatusError {
		return describeJoinError(self.Room, final.Err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagServer, "server", "d", "", "Directory server host or ws(s):// URL")
	joinCmd.Flags().BoolVar(&flagInsecure, "insecure", false, "Use ws:// instead of wss://")
	joinCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().StringVar(&flagAudioFile, "audio-file", "", "Ogg/Opus file to send as microphone")
	joinCmd.Flags().StringVar(&flagVideoFile, "video-file", "", "IVF file to send as camera")
	joinCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "Join with audio only")
	joinCmd.Flags().DurationVar(&flagClaimTimeout, "claim-timeout", 0, "How long to wait for each seat claim")
	joinCmd.Flags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file")
}
