// Package streamsink wires the pipeline and rxcursor into a player.Sink,
// leaving the actual AAC decode/audio-output step behind a Device seam —
// the one piece of the playback path the spec treats as an external
// collaborator (a real implementation decodes AAC and writes PCM to an
// audio API; neither concern belongs in this module).
package streamsink

import (
	"context"
	"io"

	"github.com/Rrogntudju/odieux/internal/hls/pipeline"
	"github.com/Rrogntudju/odieux/internal/hls/rxcursor"
	"github.com/Rrogntudju/odieux/internal/httpclient"
)

// Device is the external audio collaborator: whatever decodes the elementary
// stream rxcursor hands it and writes samples to an output API.
type Device interface {
	Play() error
	Pause() error
	IsEmpty() bool
	SetVolume(v float64)
	Close() error
}

// DeviceFactory opens a Device against a readable/seekable elementary
// stream. Implementations own whatever background decode loop they need;
// Open should return once playback has started.
type DeviceFactory interface {
	Open(r io.ReadSeeker) (Device, error)
}

// Factory constructs player.Sink values by chaining pipeline.Start,
// rxcursor, and a DeviceFactory.
type Factory struct {
	Fetcher         *httpclient.Fetcher
	PipelineConfig  pipeline.Config
	ThrottleReserve int64
	Devices         DeviceFactory
}

// NewSink fetches and parses the master playlist at masterURL, starts the
// segment pipeline, wraps its channel in an rxcursor, and opens a Device
// against it. The returned sink's Close tears all three down.
func (f *Factory) NewSink(ctx context.Context, masterURL string) (Sink, error) {
	sinkCtx, cancel := context.WithCancel(ctx)

	ch, err := pipeline.Start(sinkCtx, f.Fetcher, masterURL, f.PipelineConfig)
	if err != nil {
		cancel()
		return nil, err
	}

	cur, err := rxcursor.NewThrottled(ch, f.ThrottleReserve)
	if err != nil {
		cancel()
		return nil, err
	}

	device, err := f.Devices.Open(cur)
	if err != nil {
		cancel()
		cur.Close()
		return nil, err
	}

	return &sink{device: device, cursor: cur, cancel: cancel}, nil
}

// Sink is the player.Sink shape, restated here so callers of this package
// don't need to import internal/player just to hold one.
type Sink interface {
	Play() error
	Pause() error
	IsEmpty() bool
	SetVolume(v float64)
	Close() error
}

type sink struct {
	device Device
	cursor *rxcursor.Cursor
	cancel context.CancelFunc
}

func (s *sink) Play() error         { return s.device.Play() }
func (s *sink) Pause() error        { return s.device.Pause() }
func (s *sink) IsEmpty() bool       { return s.device.IsEmpty() }
func (s *sink) SetVolume(v float64) { s.device.SetVolume(v) }

func (s *sink) Close() error {
	s.cancel()
	s.cursor.Close()
	return s.device.Close()
}
