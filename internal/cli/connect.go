package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mossy-p/bridge-signaling/config"
	"github.com/mossy-p/bridge-signaling/internal/auth"
	"github.com/mossy-p/bridge-signaling/internal/codec"
	"github.com/mossy-p/bridge-signaling/internal/identity"
	"github.com/mossy-p/bridge-signaling/internal/models"
	"github.com/mossy-p/bridge-signaling/internal/orchestrator"
	"github.com/mossy-p/bridge-signaling/internal/peer"
	"github.com/mossy-p/bridge-signaling/internal/transport"
)

const defaultTickRate = 60

type connectOptions struct {
	root *rootOptions

	configPath  string
	server      string
	room        string
	clientType  string
	authKey     string
	fingerprint string
	autoRoom    bool
	teardown    bool
	maxRetries  int
	countFirst  bool
	stdin       bool
	once        bool
	tickRate    int
	usePeer     bool
	stunServers []string
	canVibrate  bool
	screen      string
}

func newConnectCmd(root *rootOptions) *cobra.Command {
	opts := &connectOptions{root: root}
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "join a signaling room and stay connected",
		Long: `connect registers with the signaling server and keeps the connection alive,
reconnecting with exponential backoff. Messages received from the room are
written to stdout as JSON lines; with --stdin, JSON lines read from stdin are
sent to the room.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML connection file")
	f.StringVar(&opts.server, "server", "", "signaling server URL (ws:// or wss://)")
	f.StringVar(&opts.room, "room", "", "room id to join")
	f.StringVar(&opts.clientType, "type", "", "client type (mobile or host)")
	f.StringVar(&opts.authKey, "auth-key", "", "authenticate with this key before registering")
	f.StringVar(&opts.fingerprint, "fingerprint", "", "device fingerprint for the peer id (default: hostname)")
	f.BoolVar(&opts.autoRoom, "auto-room", false, "generate a room id when none is given")
	f.BoolVar(&opts.teardown, "teardown-on-host-disconnect", false, "disconnect when the room host leaves")
	f.IntVar(&opts.maxRetries, "max-reconnects", 0, "reconnect attempts before giving up")
	f.BoolVar(&opts.countFirst, "count-initial-attempt", false, "count the first connection attempt against max-reconnects")
	f.BoolVar(&opts.stdin, "stdin", false, "send JSON lines read from stdin")
	f.BoolVar(&opts.once, "once", false, "exit after the first successful registration")
	f.IntVar(&opts.tickRate, "tick-rate", defaultTickRate, "update loop frequency in Hz")
	f.BoolVar(&opts.usePeer, "peer", false, "negotiate a WebRTC data channel with the room")
	f.StringSliceVar(&opts.stunServers, "stun", []string{"stun:stun.l.google.com:19302"}, "ICE servers for --peer")
	f.BoolVar(&opts.canVibrate, "vibrate", true, "play haptic commands (logged)")
	f.StringVar(&opts.screen, "screen", "", "with --peer and --stdin, read pixel touches for a WIDTHxHEIGHT screen and send them on the data channel")
	return cmd
}

// connection resolves the settings: defaults, then the YAML file, then the
// environment, then explicitly set flags.
func (o *connectOptions) connection(cmd *cobra.Command) (config.Connection, error) {
	var (
		cfg config.Connection
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadConnectionFile(o.configPath)
	} else {
		cfg, err = config.LoadConnection()
	}
	if err != nil {
		return config.Connection{}, err
	}

	f := cmd.Flags()
	if f.Changed("server") {
		cfg.ServerURL = o.server
	}
	if f.Changed("room") {
		cfg.RoomID = o.room
	}
	if f.Changed("type") {
		cfg.ClientType = o.clientType
	}
	if f.Changed("auth-key") {
		cfg.AuthKey = o.authKey
		cfg.RequireAuthentication = o.authKey != ""
	}
	if f.Changed("auto-room") {
		cfg.AutoGenerateRoomID = o.autoRoom
	}
	if f.Changed("teardown-on-host-disconnect") {
		cfg.TeardownOnHostDisconnect = o.teardown
	}
	if f.Changed("max-reconnects") {
		cfg.MaxReconnectAttempts = o.maxRetries
	}
	if f.Changed("count-initial-attempt") {
		cfg.CountInitialAttempt = o.countFirst
	}
	if f.Changed("vibrate") || o.configPath == "" {
		cfg.Capabilities.CanVibrate = o.canVibrate
	}
	return cfg, cfg.Validate()
}

func (o *connectOptions) run(cmd *cobra.Command) error {
	log := o.root.logger(cmd)

	cfg, err := o.connection(cmd)
	if err != nil {
		return err
	}
	if o.tickRate <= 0 {
		return fmt.Errorf("tick-rate must be positive")
	}
	var width, height float64
	if o.screen != "" {
		if !o.usePeer || !o.stdin {
			return fmt.Errorf("--screen needs --peer and --stdin")
		}
		if width, height, err = parseScreen(o.screen); err != nil {
			return err
		}
	}

	var id identity.ClientIdentity
	if o.fingerprint != "" {
		id, err = identity.New(cfg.ClientType, o.fingerprint)
	} else {
		id, err = identity.FromHost(cfg.ClientType)
	}
	if err != nil {
		return err
	}

	out := &lineWriter{w: cmd.OutOrStdout(), log: log}
	h := &consoleHandler{
		log:    log.WithField("peer", id.PeerID),
		out:    out,
		haptic: peer.NewHapticDispatcher(cfg.Capabilities, logVibrator{log: log}, log),
	}

	opts := orchestrator.Options{
		Config:     cfg,
		Identity:   id,
		Transports: transport.WebSocketFactory(transport.WebSocketOptions{}),
		Handler:    h,
		Logger:     log,
	}
	if cfg.RequireAuthentication {
		ac, err := auth.NewClient(cfg.ServerURL)
		if err != nil {
			return err
		}
		opts.Authenticator = ac
	}
	var coordinator *peer.Coordinator
	if o.usePeer {
		coordinator = peer.New(peer.Options{
			ICEServers: iceServers(o.stunServers),
			OnData: func(msg models.Message) {
				h.haptic.Handle(msg)
				out.write(msg)
			},
			OnChannelOpen: func() { log.Info("Data channel open") },
			OnState: func(s webrtc.PeerConnectionState) {
				log.WithField("state", s.String()).Info("Peer connection state changed")
			},
			Logger: log,
		})
		opts.Peer = coordinator
	}

	orc, err := orchestrator.New(opts)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"peer": id.PeerID, "room": orc.RoomID(), "role": orc.Role()}).Info("Joining room")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var input <-chan models.Message
	switch {
	case o.screen != "":
		touches, err := peer.NewTouchSender(coordinator, peer.TouchSenderOptions{Width: width, Height: height, Logger: log})
		if err != nil {
			return err
		}
		go feedTouches(ctx, cmd.InOrStdin(), touches, log)
	case o.stdin:
		input = readMessages(ctx, cmd.InOrStdin(), log)
	}
	return runLoop(ctx, orc, h, input, time.Second/time.Duration(o.tickRate), o.once)
}

// runLoop owns the orchestrator: every call to it happens here.
func runLoop(ctx context.Context, o *orchestrator.Orchestrator, h *consoleHandler, input <-chan models.Message, interval time.Duration, once bool) error {
	if err := o.Start(); err != nil {
		return err
	}
	defer o.Disconnect()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			if err := o.Send(msg); err != nil {
				h.log.WithError(err).WithField("type", msg.Type()).Warn("Message not sent")
			}
		case <-ticker.C:
			o.Tick()
			if h.failure != nil {
				return h.failure
			}
			if once && o.State() == orchestrator.StateConnected {
				return nil
			}
			if o.State() == orchestrator.StateIdle {
				return nil
			}
		}
	}
}

func readMessages(ctx context.Context, r io.Reader, log logrus.FieldLogger) <-chan models.Message {
	ch := make(chan models.Message)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			msg, err := codec.Decode(line)
			if err != nil {
				log.WithError(err).Warn("Ignoring input line")
				continue
			}
			select {
			case ch <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// feedTouches sends each stdin line, one ScreenTouch in pixels, straight to
// the data channel. The orchestrator is not involved.
func feedTouches(ctx context.Context, r io.Reader, s *peer.TouchSender, log logrus.FieldLogger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var t peer.ScreenTouch
		if err := json.Unmarshal(line, &t); err != nil {
			log.WithError(err).Warn("Ignoring touch line")
			continue
		}
		if _, err := s.Send([]peer.ScreenTouch{t}); err != nil {
			log.WithError(err).Warn("Touch not sent")
		}
	}
}

func parseScreen(v string) (width, height float64, err error) {
	w, h, ok := strings.Cut(strings.ToLower(v), "x")
	if ok {
		width, err = strconv.ParseFloat(w, 64)
		if err == nil {
			height, err = strconv.ParseFloat(h, 64)
		}
	}
	if !ok || err != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid --screen %q, want WIDTHxHEIGHT", v)
	}
	return width, height, nil
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}
