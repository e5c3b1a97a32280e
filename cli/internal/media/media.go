// Package media provides the local capture collaborator for a call.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// ErrCaptureUnavailable is returned when no media source can be provided.
var ErrCaptureUnavailable = errors.New("media capture unavailable")

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const frameDuration = 20 * time.Millisecond

// Options select which kinds of media to capture.
type Options struct {
	Audio bool
	Video bool
}

// Stream is an open capture. Its tracks outlive individual peer links and
// are released by Close.
type Stream interface {
	Tracks() []pion.TrackLocal
	Close() error
}

// Source opens capture streams.
type Source interface {
	Open(ctx context.Context, opts Options) (Stream, error)
}

// SyntheticSource produces an Opus silence track and an idle VP8 track. It
// stands in for a device source on machines without capture hardware.
type SyntheticSource struct {
	// StreamID groups the tracks of one call.
	StreamID string
}

func (s SyntheticSource) Open(ctx context.Context, opts Options) (Stream, error) {
	if !opts.Audio && !opts.Video {
		return nil, fmt.Errorf("%w: audio and video are both disabled", ErrCaptureUnavailable)
	}

	streamID := s.StreamID
	if streamID == "" {
		streamID = "warpcall"
	}

	st := &syntheticStream{}
	if opts.Audio {
		audio, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{
			MimeType:  pion.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		}, "audio", streamID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
		}
		st.audio = audio
		st.tracks = append(st.tracks, audio)
	}
	if opts.Video {
		video, err := pion.NewTrackLocalStaticSample(pion.RTPCodecCapability{
			MimeType:  pion.MimeTypeVP8,
			ClockRate: 90000,
		}, "video", streamID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
		}
		st.tracks = append(st.tracks, video)
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	if st.audio != nil {
		st.wg.Add(1)
		go st.pump(pumpCtx)
	}
	return st, nil
}

type syntheticStream struct {
	tracks []pion.TrackLocal
	audio  *pion.TrackLocalStaticSample

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (s *syntheticStream) Tracks() []pion.TrackLocal {
	return s.tracks
}

// pump writes silence at the Opus frame rate. Writes before a peer link is
// bound are dropped by the track.
func (s *syntheticStream) pump(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.audio.WriteSample(media.Sample{Data: opusSilence, Duration: frameDuration})
		}
	}
}

func (s *syntheticStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}
