// Package playlist parses HLS master and media M3U8 playlists and selects
// the audio rendition the pipeline should fetch.
package playlist

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for the kinds named in the HLS pipeline's error design.
var (
	ErrPlaylistParse         = errors.New("playlist: parse error")
	ErrNoAudioVariant        = errors.New("playlist: no acceptable audio variant")
	ErrRelativeURLResolution = errors.New("playlist: could not resolve relative URL")
	ErrUnsupportedEncryption = errors.New("playlist: unsupported encryption method")
)

// aacLC is the sole codec string the primary variant-selection rule accepts.
const aacLC = "mp4a.40.2"

// Variant is one rendition listed in a master playlist.
type Variant struct {
	URI        string
	Bandwidth  uint64
	Codecs     []string
	RawCodecs  string
	IFrameOnly bool
}

// isAACOnly reports whether this variant's codec list is exactly {mp4a.40.2}.
func (v Variant) isAACOnly() bool {
	return len(v.Codecs) == 1 && v.Codecs[0] == aacLC
}

// hasAudioCodec reports whether this variant declares an AAC component at all.
func (v Variant) hasAudioCodec() bool {
	for _, c := range v.Codecs {
		if strings.HasPrefix(c, "mp4a.") {
			return true
		}
	}
	return false
}

// MasterPlaylist is the parsed result of a master M3U8.
type MasterPlaylist struct {
	Variants            []Variant
	IndependentSegments bool
}

// KeyDescriptor describes an #EXT-X-KEY tag in force for one or more segments.
type KeyDescriptor struct {
	Method string
	URI    string
	IV     []byte // nil when the tag carried no IV attribute
}

// Segment is one entry of a media playlist.
type Segment struct {
	URI string
	Key *KeyDescriptor // nil when no encryption is in force
}

// MediaPlaylist is the parsed result of a media M3U8.
type MediaPlaylist struct {
	TargetDuration     time.Duration
	Segments           []Segment
	EndList            bool
	DiscontinuityCount int
}

// ParseMaster parses a master playlist's text. baseURL is the URL the
// playlist was fetched from, used to resolve relative variant URIs.
func ParseMaster(text string, baseURL *url.URL) (*MasterPlaylist, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	master := &MasterPlaylist{}
	var pendingAttrs string
	havePending := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-INDEPENDENT-SEGMENTS"):
			master.IndependentSegments = true

		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			pendingAttrs = line[len("#EXT-X-STREAM-INF:"):]
			havePending = true

		case strings.HasPrefix(line, "#EXT-X-I-FRAME-STREAM-INF:"):
			// I-frame-only renditions are never audio candidates; skip.
			havePending = false

		case strings.HasPrefix(line, "#"):
			// Unhandled tag; ignored.

		default:
			if !havePending {
				continue
			}
			havePending = false

			attrs := parseAttributeList(pendingAttrs)
			variant := Variant{URI: line}
			if bw, ok := attrs["BANDWIDTH"]; ok {
				if n, err := strconv.ParseUint(bw, 10, 64); err == nil {
					variant.Bandwidth = n
				}
			}
			if codecs, ok := attrs["CODECS"]; ok {
				variant.RawCodecs = codecs
				for _, c := range strings.Split(codecs, ",") {
					variant.Codecs = append(variant.Codecs, strings.TrimSpace(c))
				}
			}

			resolved, err := resolveURL(baseURL, variant.URI)
			if err != nil {
				return nil, fmt.Errorf("%w: variant %q: %v", ErrRelativeURLResolution, variant.URI, err)
			}
			variant.URI = resolved

			master.Variants = append(master.Variants, variant)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistParse, err)
	}
	if len(master.Variants) == 0 {
		return nil, fmt.Errorf("%w: no variants found", ErrPlaylistParse)
	}

	return master, nil
}

// ChooseAudioVariant applies the codec-filtered, bandwidth-maximizing
// selection rule: prefer variants whose codec list is exactly mp4a.40.2,
// picking the highest bandwidth among them; if none match, fall back to the
// highest-bandwidth variant that declares any AAC component, or else the
// highest-bandwidth variant overall. Ties are broken by first-encountered.
func ChooseAudioVariant(master *MasterPlaylist) (Variant, error) {
	if best, ok := pickMaxBandwidth(master.Variants, Variant.isAACOnly); ok {
		return best, nil
	}
	if best, ok := pickMaxBandwidth(master.Variants, Variant.hasAudioCodec); ok {
		return best, nil
	}
	if best, ok := pickMaxBandwidth(master.Variants, func(Variant) bool { return true }); ok {
		return best, nil
	}
	return Variant{}, ErrNoAudioVariant
}

func pickMaxBandwidth(variants []Variant, accept func(Variant) bool) (Variant, bool) {
	var best Variant
	found := false
	for _, v := range variants {
		if !accept(v) {
			continue
		}
		if !found || v.Bandwidth > best.Bandwidth {
			best = v
			found = true
		}
	}
	return best, found
}

// ParseMedia parses a media playlist's text. baseURL is the URL the
// playlist was fetched from, used to resolve relative segment and key URIs.
func ParseMedia(text string, baseURL *url.URL) (*MediaPlaylist, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	media := &MediaPlaylist{}
	var currentKey *KeyDescriptor

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			n, err := strconv.Atoi(line[len("#EXT-X-TARGETDURATION:"):])
			if err != nil {
				return nil, fmt.Errorf("%w: target duration: %v", ErrPlaylistParse, err)
			}
			media.TargetDuration = time.Duration(n) * time.Second

		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			key, err := parseKeyTag(line[len("#EXT-X-KEY:"):], baseURL)
			if err != nil {
				return nil, err
			}
			currentKey = key

		case strings.HasPrefix(line, "#EXT-X-DISCONTINUITY"):
			media.DiscontinuityCount++

		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			media.EndList = true

		case strings.HasPrefix(line, "#EXTINF:"):
			// Duration is carried in the tag but not needed by the pipeline;
			// the next non-comment line is the segment URI.
			continue

		case strings.HasPrefix(line, "#"):
			// Unhandled tag; ignored.

		default:
			resolved, err := resolveURL(baseURL, line)
			if err != nil {
				return nil, fmt.Errorf("%w: segment %q: %v", ErrRelativeURLResolution, line, err)
			}
			media.Segments = append(media.Segments, Segment{URI: resolved, Key: currentKey})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlaylistParse, err)
	}

	return media, nil
}

// parseKeyTag parses an #EXT-X-KEY attribute list. A METHOD=NONE tag clears
// the current key (returns nil, nil).
func parseKeyTag(attrList string, baseURL *url.URL) (*KeyDescriptor, error) {
	attrs := parseAttributeList(attrList)

	method := attrs["METHOD"]
	if method == "" || strings.EqualFold(method, "NONE") {
		return nil, nil
	}
	if !strings.EqualFold(method, "AES-128") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncryption, method)
	}

	key := &KeyDescriptor{Method: "AES-128"}

	if uri, ok := attrs["URI"]; ok {
		resolved, err := resolveURL(baseURL, uri)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrRelativeURLResolution, uri, err)
		}
		key.URI = resolved
	}

	if ivAttr, ok := attrs["IV"]; ok {
		iv, err := parseIV(ivAttr)
		if err != nil {
			return nil, fmt.Errorf("%w: iv %q: %v", ErrPlaylistParse, ivAttr, err)
		}
		key.IV = iv
	}

	return key, nil
}

func parseIV(raw string) ([]byte, error) {
	hexStr := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	return hex.DecodeString(hexStr)
}

// parseAttributeList parses a comma-separated NAME=VALUE (or NAME="VALUE")
// attribute list as used by EXT-X-STREAM-INF and EXT-X-KEY tags, respecting
// quoted commas.
func parseAttributeList(s string) map[string]string {
	attrs := make(map[string]string)

	var key strings.Builder
	var val strings.Builder
	inQuotes := false
	inValue := false

	flush := func() {
		k := strings.TrimSpace(key.String())
		if k != "" {
			attrs[k] = val.String()
		}
		key.Reset()
		val.Reset()
		inValue = false
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == '=' && !inValue && !inQuotes:
			inValue = true
		case r == ',' && !inQuotes:
			flush()
		default:
			if inValue {
				val.WriteRune(r)
			} else {
				key.WriteRune(r)
			}
		}
	}
	flush()

	return attrs
}

// resolveURL resolves uri against base using standard URL resolution rules:
// an absolute URI is used as-is, otherwise it's joined against base.
func resolveURL(base *url.URL, uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	if base == nil {
		return "", fmt.Errorf("relative URI %q with no base URL", uri)
	}
	return base.ResolveReference(parsed).String(), nil
}
