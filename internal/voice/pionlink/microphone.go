package pionlink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/internal/voice"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"go.uber.org/zap"
)

const (
	pageInterval = 20 * time.Millisecond
	opusRate     = 48000
)

// Microphone captures from an Ogg/Opus file, looping at EOF. Only one track
// may hold the device at a time.
type Microphone struct {
	path string
	log  *zap.Logger

	mu    sync.Mutex
	inUse bool
}

func NewMicrophone(path string, logger *zap.Logger) *Microphone {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Microphone{path: path, log: logger.Named("mic")}
}

func (m *Microphone) Acquire(ctx context.Context) (voice.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.path == "" {
		return nil, voice.ErrDeviceNotFound
	}

	m.mu.Lock()
	if m.inUse {
		m.mu.Unlock()
		return nil, voice.ErrDeviceBusy
	}
	m.inUse = true
	m.mu.Unlock()

	t, err := m.open()
	if err != nil {
		m.release()
		return nil, err
	}
	go t.pump()
	return t, nil
}

func (m *Microphone) release() {
	m.mu.Lock()
	m.inUse = false
	m.mu.Unlock()
}

func (m *Microphone) open() (*FileTrack, error) {
	f, err := os.Open(m.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", voice.ErrDeviceNotFound, m.path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", voice.ErrPermissionDenied, m.path)
	case err != nil:
		return nil, err
	}

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read ogg header: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "dots-boxes")
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &FileTrack{
		mic:   m,
		file:  f,
		ogg:   ogg,
		track: track,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}, nil
}

// FileTrack is a voice.LocalTrack fed from the microphone file.
type FileTrack struct {
	mic     *Microphone
	file    *os.File
	ogg     *oggreader.OggReader
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func (t *FileTrack) SetEnabled(v bool) { t.enabled.Store(v) }
func (t *FileTrack) Enabled() bool     { return t.enabled.Load() }

func (t *FileTrack) Stop() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.done
		err = t.file.Close()
		t.mic.release()
	})
	return err
}

func (t *FileTrack) pump() {
	defer close(t.done)
	ticker := time.NewTicker(pageInterval)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}

		page, header, err := t.ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if err := t.rewind(); err != nil {
				t.mic.log.Warn("rewind microphone file", zap.Error(err))
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			t.mic.log.Warn("read ogg page", zap.Error(err))
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		if !t.enabled.Load() {
			continue
		}
		d := time.Duration(float64(samples) / opusRate * float64(time.Second))
		if err := t.track.WriteSample(media.Sample{Data: page, Duration: d}); err != nil {
			t.mic.log.Debug("write sample", zap.Error(err))
		}
	}
}

func (t *FileTrack) rewind() error {
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	ogg, _, err := oggreader.NewWith(t.file)
	if err != nil {
		return err
	}
	t.ogg = ogg
	return nil
}
