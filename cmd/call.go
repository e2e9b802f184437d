package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/qrave1/PairCall/internal/application/config"
	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/domain/pairing"
	"github.com/qrave1/PairCall/internal/infra/adapters/remote"
	"github.com/qrave1/PairCall/internal/infra/adapters/rtc"
	"github.com/qrave1/PairCall/internal/infra/ports/cli"
	"github.com/qrave1/PairCall/internal/usecase"
)

var (
	flagServer   string
	flagIdentity string
	flagToken    string
	flagVideo    string
	flagAudio    string
	flagSilence  bool
	flagNoICE    bool
	flagLogLevel string
)

var callCmd = &cobra.Command{
	Use:   "call [room-key]",
	Short: "Join a room by key, or open a new one, and start a call",
	Long: `Join a room by its pairing key. Without a key a fresh room is opened and its key
is printed for the partner.

Type a line to chat, /next to hang up and open a new room, /quit to leave.

Examples:
  paircall call
  paircall call k3x9p2 --identity bob
  paircall call --video clip.ivf --audio voice.ogg`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig(cmd)
		if err != nil {
			return err
		}

		key := ""
		if len(args) == 1 {
			key = args[0]
			if !pairing.Valid(key) {
				return fmt.Errorf("invalid room key %q", key)
			}
		}

		return runCall(cmd.Context(), cfg, key, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	f := callCmd.Flags()
	f.StringVar(&flagServer, "server", "", "rendezvous server url (env PAIRCALL_SERVER)")
	f.StringVar(&flagIdentity, "identity", "", "participant id shown to the partner (env PAIRCALL_IDENTITY)")
	f.StringVar(&flagToken, "token", "", "jwt for servers with auth enabled (env PAIRCALL_TOKEN)")
	f.StringVar(&flagVideo, "video", "", "IVF (VP8) file to stream instead of a camera")
	f.StringVar(&flagAudio, "audio", "", "OGG (Opus) file to stream instead of a microphone")
	f.BoolVar(&flagSilence, "silence", false, "send a silent audio track when no files are given")
	f.BoolVar(&flagNoICE, "no-server-ice", false, "do not ask the server for STUN/TURN servers")
	f.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")

	rootCmd.AddCommand(callCmd)
}

// loadClientConfig - флаги перекрывают окружение, окружение перекрывает значения по умолчанию
func loadClientConfig(cmd *cobra.Command) (*config.ClientConfig, error) {
	cfg, err := config.NewClient()
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("server") {
		cfg.ServerURL = flagServer
	}
	if f.Changed("identity") {
		cfg.Identity = flagIdentity
	}
	if f.Changed("token") {
		cfg.Token = flagToken
	}
	if f.Changed("video") {
		cfg.VideoFile = flagVideo
	}
	if f.Changed("audio") {
		cfg.AudioFile = flagAudio
	}
	if f.Changed("silence") {
		cfg.Silence = flagSilence
	}
	if f.Changed("no-server-ice") {
		cfg.FetchICE = !flagNoICE
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}

	if cfg.Identity == "" {
		cfg.Identity = "guest-" + uuid.NewString()[:8]
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// serverKeys берёт ключи у сервера и генерирует локально, если сервер недоступен
type serverKeys struct {
	ctx    context.Context
	client *remote.Client
	local  *pairing.Generator
}

func (k serverKeys) Key() (string, error) {
	key, err := k.client.PairingKey(k.ctx)
	if err == nil {
		return key, nil
	}

	slog.Warn("server pairing key unavailable, generating locally", slog.Any(constant.Error, err))

	return k.local.Key()
}

func mediaSource(cfg *config.ClientConfig) usecase.MediaSource {
	switch {
	case cfg.VideoFile != "" || cfg.AudioFile != "":
		return rtc.FileSource{VideoPath: cfg.VideoFile, AudioPath: cfg.AudioFile}
	case cfg.Silence:
		return rtc.SilenceSource{}
	default:
		return nil
	}
}

func iceServers(ctx context.Context, cfg *config.ClientConfig, client *remote.Client) []webrtc.ICEServer {
	fallback := []webrtc.ICEServer{{URLs: cfg.STUNServers}}

	if !cfg.FetchICE {
		return fallback
	}

	servers, err := client.ICEServers(ctx)
	if err != nil || len(servers) == 0 {
		slog.Warn("fetch ice servers, using configured STUN", slog.Any(constant.Error, err))
		return fallback
	}

	return servers
}

func runCall(ctx context.Context, cfg *config.ClientConfig, key string, in io.Reader, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	slog.SetDefault(
		slog.New(
			slog.NewTextHandler(
				os.Stderr,
				&slog.HandlerOptions{Level: cfg.SlogLevel()},
			),
		),
	)

	opts := []remote.Option{}
	if cfg.Token != "" {
		opts = append(opts, remote.WithToken(cfg.Token))
	}

	client, err := remote.New(cfg.ServerURL, cfg.Identity, opts...)
	if err != nil {
		return err
	}

	factory, err := rtc.NewFactory(rtc.Config{
		ICESource: func() []webrtc.ICEServer { return iceServers(ctx, cfg, client) },
	})
	if err != nil {
		return err
	}

	keys := serverKeys{ctx: ctx, client: client, local: pairing.NewGenerator(nil)}

	if key == "" {
		if key, err = keys.Key(); err != nil {
			return err
		}
	}

	deps := usecase.SessionDeps{
		Store:        client,
		NewTransport: factory,
		Media:        mediaSource(cfg),
		Keys:         keys,
		Config: usecase.SessionConfig{
			RetryAttempts: cfg.RetryAttempts,
			RetryBase:     cfg.RetryBase,
			IdleTimeout:   cfg.IdleTimeout,
		},
	}

	console := cli.NewConsole(out, cfg.Identity)

	session := usecase.NewPeerSession(deps, console.Hooks())
	defer func() { session.Dispose() }()

	console.Key(key)

	if err = session.Start(ctx, key, cfg.Identity); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			command, text := cli.ParseLine(line)

			switch command {
			case cli.CommandSay:
				if err := session.SendMessage(ctx, text); err != nil {
					console.Error(err)
				}
			case cli.CommandNext:
				console.Reset()

				next, err := session.EndAndFindNext(ctx)
				if err != nil {
					return err
				}
				session = next

				console.Key(session.Key())
			case cli.CommandStatus:
				console.Status(session.Status())
			case cli.CommandQuit:
				return nil
			case cli.CommandUnknown:
				console.Error(errors.New("unknown command " + text))
			}
		}
	}
}
