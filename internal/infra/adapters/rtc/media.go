package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/usecase"
)

const opusFrame = 20 * time.Millisecond

// opusSilence - пустой Opus кадр на 20 мс
var opusSilence = []byte{0xf8, 0xff, 0xfe}

var ErrNoMedia = errors.New("no media configured")

// pump крутит источник сэмплов до отмены
type pump struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newPump(ctx context.Context) *pump {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &pump{ctx: ctx, cancel: cancel}
}

func (p *pump) goLoop(fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn(p.ctx)
	}()
}

func (p *pump) stop() {
	p.cancel()
	p.wg.Wait()
}

func newTrack(mime, kind string) (*webrtc.TrackLocalStaticSample, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		kind,
		"paircall-"+uuid.NewString()[:8],
	)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}

	return track, nil
}

// SilenceSource отдаёт одну аудиодорожку с тишиной. Полезна, когда нет камеры, но собеседнику нужен поток.
type SilenceSource struct{}

func (SilenceSource) Acquire(ctx context.Context) (*usecase.LocalMedia, error) {
	track, err := newTrack(webrtc.MimeTypeOpus, "audio")
	if err != nil {
		return nil, err
	}

	p := newPump(ctx)
	p.goLoop(func(ctx context.Context) {
		ticker := time.NewTicker(opusFrame)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrame}); err != nil {
					return
				}
			}
		}
	})

	return &usecase.LocalMedia{Tracks: []webrtc.TrackLocal{track}, Stop: p.stop}, nil
}

// FileSource проигрывает по кругу IVF (VP8) и/или OGG (Opus) файлы вместо камеры и микрофона
type FileSource struct {
	VideoPath string
	AudioPath string
}

func (s FileSource) Acquire(ctx context.Context) (*usecase.LocalMedia, error) {
	if s.VideoPath == "" && s.AudioPath == "" {
		return nil, ErrNoMedia
	}

	p := newPump(ctx)

	var tracks []webrtc.TrackLocal

	if s.VideoPath != "" {
		track, err := s.video(p)
		if err != nil {
			p.stop()
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if s.AudioPath != "" {
		track, err := s.audio(p)
		if err != nil {
			p.stop()
			return nil, err
		}
		tracks = append(tracks, track)
	}

	return &usecase.LocalMedia{Tracks: tracks, Stop: p.stop}, nil
}

func (s FileSource) video(p *pump) (webrtc.TrackLocal, error) {
	f, err := os.Open(s.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read ivf header: %w", err)
	}
	if header.FourCC != "VP80" {
		_ = f.Close()
		return nil, fmt.Errorf("unsupported video codec %q, want VP80", header.FourCC)
	}

	track, err := newTrack(webrtc.MimeTypeVP8, "video")
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	frame := time.Second / 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frame = time.Duration(float64(time.Second) * float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}

	p.goLoop(func(ctx context.Context) {
		defer f.Close()

		ticker := time.NewTicker(frame)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			data, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				reader.ResetReader(rewind(f, 32))
				continue
			}
			if err != nil {
				slog.Warn("read video frame", slog.Any(constant.Error, err))
				return
			}

			if err := track.WriteSample(media.Sample{Data: data, Duration: frame}); err != nil {
				return
			}
		}
	})

	return track, nil
}

func (s FileSource) audio(p *pump) (webrtc.TrackLocal, error) {
	f, err := os.Open(s.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read ogg header: %w", err)
	}

	track, err := newTrack(webrtc.MimeTypeOpus, "audio")
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	p.goLoop(func(ctx context.Context) {
		defer f.Close()

		ticker := time.NewTicker(opusFrame)
		defer ticker.Stop()

		var lastGranule uint64

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			page, header, err := reader.ParseNextPage()
			if errors.Is(err, io.EOF) {
				reader.ResetReader(rewind(f, 0))
				lastGranule = 0
				continue
			}
			if err != nil {
				slog.Warn("read audio page", slog.Any(constant.Error, err))
				return
			}

			samples := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			duration := time.Duration(float64(samples)/48000*1000) * time.Millisecond

			if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
				return
			}
		}
	})

	return track, nil
}

// rewind возвращает файл к началу полезных данных для повторного проигрывания
func rewind(f *os.File, offset int64) func(int64) io.Reader {
	return func(int64) io.Reader {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			slog.Warn("rewind media file", slog.Any(constant.Error, err))
		}
		return f
	}
}
