// Package tsdemux extracts the AAC elementary stream from one MPEG-TS
// segment via PAT -> PMT -> elementary-PID discovery, emitting a single
// accumulated buffer per call to Demux.
package tsdemux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astits"
)

// Sentinel errors for the demuxer's three failure modes.
var (
	ErrNoPat       = errors.New("tsdemux: no PAT found before stream ended")
	ErrNoPmt       = errors.New("tsdemux: no PMT found on the program's PID before stream ended")
	ErrTruncatedTS = errors.New("tsdemux: stream ended before an elementary PID was discovered")
)

// state is the demuxer's internal discovery state, mirroring the reference
// state machine: SeekPid0 -> SeekPmt(pmtPID) -> Extract(esPID).
type state int

const (
	stateSeekPAT state = iota
	stateSeekPMT
	stateExtract
)

// Demux reads one segment's worth of MPEG-TS packets from r and returns the
// accumulated payload of the program's first elementary stream (audio,
// in the HLS sources this pipeline targets).
func Demux(r io.Reader) ([]byte, error) {
	dem := astits.NewDemuxer(context.Background(), r)

	st := stateSeekPAT
	var pmtPID uint16
	var esPID uint16
	var out bytes.Buffer

	for {
		data, err := dem.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				break
			}
			return nil, fmt.Errorf("tsdemux: reading packet: %w", err)
		}

		switch st {
		case stateSeekPAT:
			if data.PAT == nil || len(data.PAT.Programs) == 0 {
				continue
			}
			pmtPID = data.PAT.Programs[0].ProgramMapID
			st = stateSeekPMT

		case stateSeekPMT:
			if data.PID != pmtPID || data.PMT == nil {
				continue
			}
			if len(data.PMT.ElementaryStreams) == 0 {
				return nil, fmt.Errorf("%w: PMT carried no elementary streams", ErrNoPmt)
			}
			esPID = data.PMT.ElementaryStreams[0].ElementaryPID
			st = stateExtract

		case stateExtract:
			if data.PID != esPID || data.PES == nil {
				continue
			}
			out.Write(data.PES.Data)
		}
	}

	switch st {
	case stateSeekPAT:
		return nil, fmt.Errorf("%w: %w", ErrTruncatedTS, ErrNoPat)
	case stateSeekPMT:
		return nil, fmt.Errorf("%w: %w", ErrTruncatedTS, ErrNoPmt)
	default:
		return out.Bytes(), nil
	}
}
