package pipeline

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies where a session's output goes
type Kind int

const (
	KindOggFile Kind = iota + 1
	KindWAVFile
	KindRTP
	KindOggTCP
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindOggFile:
		return "ogg-file"
	case KindWAVFile:
		return "wav-file"
	case KindRTP:
		return "rtp"
	case KindOggTCP:
		return "ogg-tcp"
	case KindNull:
		return "null"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsFile reports whether the destination is a local file
func (k Kind) IsFile() bool {
	return k == KindOggFile || k == KindWAVFile
}

// Destination is a parsed output descriptor
type Destination struct {
	Kind Kind
	Raw  string
	Path string // file kinds
	Host string // network kinds
	Port int
}

func (d Destination) String() string {
	switch {
	case d.Kind.IsFile():
		return d.Path
	case d.Kind == KindNull:
		return "null://"
	default:
		return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	}
}

// ParseDestination classifies a destination string.
//
//	/path/out.ogg, out.opus      Ogg/Opus file
//	/path/out.wav                WAV file
//	udp://host:port, rtp://...   RTP/Opus over UDP
//	tcp://host:port              Ogg/Opus over TCP
//	null://                      discard
func ParseDestination(raw string) (Destination, error) {
	if strings.TrimSpace(raw) == "" {
		return Destination{}, constructionError(fmt.Errorf("%w: empty destination", ErrUnsupportedDestination), "parse_destination")
	}

	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		switch strings.ToLower(scheme) {
		case "null":
			return Destination{Kind: KindNull, Raw: raw}, nil
		case "file":
			return parseFilePath(raw, rest)
		case "udp", "rtp":
			return parseNetwork(raw, KindRTP)
		case "tcp":
			return parseNetwork(raw, KindOggTCP)
		default:
			return Destination{}, constructionError(fmt.Errorf("%w: scheme %q", ErrUnsupportedDestination, scheme), "parse_destination")
		}
	}
	return parseFilePath(raw, raw)
}

func parseFilePath(raw, path string) (Destination, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ogg", ".opus":
		return Destination{Kind: KindOggFile, Raw: raw, Path: path}, nil
	case ".wav":
		return Destination{Kind: KindWAVFile, Raw: raw, Path: path}, nil
	default:
		return Destination{}, constructionError(fmt.Errorf("%w: %q has no .ogg, .opus or .wav extension", ErrUnsupportedDestination, raw), "parse_destination")
	}
}

func parseNetwork(raw string, kind Kind) (Destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Destination{}, constructionError(fmt.Errorf("invalid destination %q: %w", raw, err), "parse_destination")
	}
	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 || host == "" {
		return Destination{}, constructionError(fmt.Errorf("destination %q needs host:port", raw), "parse_destination")
	}
	return Destination{Kind: kind, Raw: raw, Host: host, Port: port}, nil
}

// ResolveDestination expands a destination naming an existing directory
// into a file inside it using template. {session}, {timestamp} and {ext}
// are substituted; {ext} is .ogg. Other destinations are returned as is.
func ResolveDestination(raw, template, sessionID string, now time.Time) string {
	info, err := os.Stat(raw)
	if err != nil || !info.IsDir() {
		return raw
	}
	if template == "" {
		template = DefaultFileNameTemplate
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	name := strings.NewReplacer(
		"{session}", sessionID,
		"{timestamp}", now.Format("20060102_150405"),
		"{ext}", ".ogg",
	).Replace(template)
	return filepath.Join(raw, name)
}
