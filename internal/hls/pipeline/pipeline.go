// Package pipeline orchestrates fetch, decrypt, and demux into the three
// segment-delivery modes an HLS source can require, emitting ordered byte
// buffers on a bounded channel for a consumer to read.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/Rrogntudju/odieux/internal/hls/crypto"
	"github.com/Rrogntudju/odieux/internal/hls/playlist"
	"github.com/Rrogntudju/odieux/internal/hls/tsdemux"
	"github.com/Rrogntudju/odieux/internal/httpclient"
)

// Message is a tagged variant: either a successful byte buffer (Err nil) or
// a terminal error (Data nil). At most one Err message is ever sent, and it
// is always the last message the channel carries before it closes.
type Message struct {
	Data []byte
	Err  error
}

// Config carries the knobs the producer needs beyond the fetcher itself.
type Config struct {
	ChannelCapacity  int
	LiveOrigins      []string
	LiveSleepDivisor int
	Logger           *slog.Logger
}

func (c Config) capacity() int {
	if c.ChannelCapacity <= 0 {
		return 3
	}
	return c.ChannelCapacity
}

func (c Config) sleepDivisor() int {
	if c.LiveSleepDivisor <= 0 {
		return 2
	}
	return c.LiveSleepDivisor
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Start fetches and parses the master playlist, selects the audio variant
// and delivery mode, and spawns the producer goroutine. Mode-selection
// errors (bad master URL, no acceptable variant, ...) are returned
// synchronously; everything past that point is surfaced as the single
// terminal error message on the returned channel.
func Start(ctx context.Context, fetcher *httpclient.Fetcher, masterURL string, cfg Config) (<-chan Message, error) {
	logger := cfg.logger()

	masterText, err := fetcher.Get(ctx, masterURL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetching master playlist: %w", err)
	}

	base, err := url.Parse(masterURL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parsing master URL: %w", err)
	}

	master, err := playlist.ParseMaster(string(masterText), base)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parsing master playlist: %w", err)
	}

	variant, err := playlist.ChooseAudioVariant(master)
	if err != nil {
		return nil, fmt.Errorf("pipeline: choosing audio variant: %w", err)
	}

	mediaURL, err := url.Parse(variant.URI)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parsing media URL: %w", err)
	}

	ch := make(chan Message, cfg.capacity())

	switch {
	case master.IndependentSegments:
		logger.Debug("pipeline: raw-AAC on-demand mode selected", "media_url", variant.URI)
		go runRawAAC(ctx, fetcher, variant.URI, ch)
	case isLiveOrigin(mediaURL, cfg.LiveOrigins):
		logger.Debug("pipeline: live mode selected", "media_url", variant.URI)
		go runLive(ctx, fetcher, variant.URI, ch, cfg, logger)
	default:
		logger.Debug("pipeline: TS on-demand mode selected", "media_url", variant.URI)
		go runTSOnDemand(ctx, fetcher, variant.URI, ch)
	}

	return ch, nil
}

// isLiveOrigin reports whether u's host carries one of the configured
// live-origin prefixes. String-prefix host matching is deliberately
// simple — and fragile, hence configuration-driven rather than hardcoded.
func isLiveOrigin(u *url.URL, origins []string) bool {
	for _, origin := range origins {
		if strings.HasPrefix(u.Host, origin) {
			return true
		}
	}
	return false
}

func fetchMediaPlaylist(ctx context.Context, fetcher *httpclient.Fetcher, mediaURL string) (*playlist.MediaPlaylist, error) {
	text, err := fetcher.Get(ctx, mediaURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(mediaURL)
	if err != nil {
		return nil, err
	}
	return playlist.ParseMedia(string(text), base)
}

// fetchDecryptSegment fetches one segment and, if a key is in force,
// decrypts it using keyCache to avoid refetching a key already seen this
// run. keyCache is owned by the calling producer goroutine and needs no
// synchronization.
func fetchDecryptSegment(ctx context.Context, fetcher *httpclient.Fetcher, keyCache map[string][]byte, seg playlist.Segment) ([]byte, error) {
	data, err := fetcher.Get(ctx, seg.URI)
	if err != nil {
		return nil, err
	}
	if seg.Key == nil {
		return data, nil
	}

	key, ok := keyCache[seg.Key.URI]
	if !ok {
		keyBytes, err := fetcher.Get(ctx, seg.Key.URI)
		if err != nil {
			return nil, fmt.Errorf("pipeline: fetching key %s: %w", seg.Key.URI, err)
		}
		keyCache[seg.Key.URI] = keyBytes
		key = keyBytes
	}

	return crypto.DecryptAES128CBC(key, seg.Key.IV, data)
}

// trySend delivers msg, or reports false without blocking forever if ctx is
// cancelled first — the producer's model of "the receiver was dropped".
func trySend(ctx context.Context, ch chan<- Message, msg Message) bool {
	select {
	case ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func runTSOnDemand(ctx context.Context, fetcher *httpclient.Fetcher, mediaURL string, ch chan Message) {
	defer close(ch)

	media, err := fetchMediaPlaylist(ctx, fetcher, mediaURL)
	if err != nil {
		trySend(ctx, ch, Message{Err: fmt.Errorf("pipeline: fetching media playlist: %w", err)})
		return
	}

	keyCache := make(map[string][]byte)
	for _, seg := range media.Segments {
		raw, err := fetchDecryptSegment(ctx, fetcher, keyCache, seg)
		if err != nil {
			trySend(ctx, ch, Message{Err: err})
			return
		}

		extracted, err := tsdemux.Demux(bytes.NewReader(raw))
		if err != nil {
			trySend(ctx, ch, Message{Err: fmt.Errorf("pipeline: demuxing segment %s: %w", seg.URI, err)})
			return
		}

		if !trySend(ctx, ch, Message{Data: extracted}) {
			return
		}
	}
}

func runRawAAC(ctx context.Context, fetcher *httpclient.Fetcher, mediaURL string, ch chan Message) {
	defer close(ch)

	media, err := fetchMediaPlaylist(ctx, fetcher, mediaURL)
	if err != nil {
		trySend(ctx, ch, Message{Err: fmt.Errorf("pipeline: fetching media playlist: %w", err)})
		return
	}

	keyCache := make(map[string][]byte)
	lastURI := ""
	for _, seg := range media.Segments {
		if seg.URI == lastURI {
			continue
		}
		lastURI = seg.URI

		data, err := fetchDecryptSegment(ctx, fetcher, keyCache, seg)
		if err != nil {
			trySend(ctx, ch, Message{Err: err})
			return
		}

		if !trySend(ctx, ch, Message{Data: data}) {
			return
		}
	}
}

func runLive(ctx context.Context, fetcher *httpclient.Fetcher, mediaURL string, ch chan Message, cfg Config, logger *slog.Logger) {
	defer close(ch)

	keyCache := make(map[string][]byte)
	lastEmittedURI := ""
	divisor := time.Duration(cfg.sleepDivisor())

	for {
		start := time.Now()

		media, err := fetchMediaPlaylist(ctx, fetcher, mediaURL)
		if err != nil {
			trySend(ctx, ch, Message{Err: fmt.Errorf("pipeline: fetching live media playlist: %w", err)})
			return
		}

		emitted := 0
		for _, seg := range media.Segments {
			if seg.URI <= lastEmittedURI {
				continue
			}

			data, err := fetchDecryptSegment(ctx, fetcher, keyCache, seg)
			if err != nil {
				trySend(ctx, ch, Message{Err: err})
				return
			}
			if !trySend(ctx, ch, Message{Data: data}) {
				return
			}
			lastEmittedURI = seg.URI
			emitted++
		}

		var sleepFor time.Duration
		if emitted > 0 {
			sleepFor = media.TargetDuration - time.Since(start)
			if sleepFor < 0 {
				sleepFor = 0
			}
		} else {
			sleepFor = media.TargetDuration / divisor
		}
		logger.Debug("pipeline: live poll complete", "emitted", emitted, "sleep", sleepFor)

		select {
		case <-time.After(sleepFor):
		case <-ctx.Done():
			return
		}
	}
}
