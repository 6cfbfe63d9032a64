// Package charset detects the text encoding of uploaded files and decodes them
// into canonical UTF-8. Detection never fails: low-confidence or unknown guesses
// fall back to Latin-1, which can decode any byte sequence.
package charset

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported in a Resolution.
const (
	UTF8     = "UTF-8"
	UTF16LE  = "UTF-16LE"
	UTF16BE  = "UTF-16BE"
	Latin1   = "ISO-8859-1"
	Fallback = Latin1
)

const (
	DefaultSampleBytes   = 10 * 1024
	DefaultMinConfidence = 0.7
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Kind tells whether an encoding was detected or chosen as the safe default.
type Kind int

const (
	KindResolved Kind = iota
	KindFallback
)

func (k Kind) String() string {
	if k == KindFallback {
		return "fallback"
	}
	return "resolved"
}

// Resolution is the outcome of encoding detection.
type Resolution struct {
	Kind       Kind
	Encoding   string  // Canonical encoding name (e.g. "UTF-8", "ISO-8859-1")
	Confidence float64 // 0.0-1.0
	Reason     string  // Why the fallback was used; empty when resolved
}

// IsFallback reports whether the resolution used the permissive default.
func (r Resolution) IsFallback() bool {
	return r.Kind == KindFallback
}

// Options configures a Resolver.
type Options struct {
	// SampleBytes is how many leading bytes are inspected.
	SampleBytes int
	// MinConfidence is the detector confidence below which the fallback is used.
	MinConfidence float64
}

// detector is satisfied by *chardet.Detector.
type detector interface {
	DetectBest(b []byte) (*chardet.Result, error)
}

// Resolver detects encodings with a confidence threshold.
type Resolver struct {
	sampleBytes   int
	minConfidence float64
	detector      detector
}

// NewResolver creates a resolver; zero options take the package defaults.
func NewResolver(opts Options) *Resolver {
	if opts.SampleBytes <= 0 {
		opts.SampleBytes = DefaultSampleBytes
	}
	if opts.MinConfidence <= 0 || opts.MinConfidence > 1 {
		opts.MinConfidence = DefaultMinConfidence
	}
	return &Resolver{
		sampleBytes:   opts.SampleBytes,
		minConfidence: opts.MinConfidence,
		detector:      chardet.NewTextDetector(),
	}
}

// Resolve inspects the leading sample of raw and picks an encoding.
func (r *Resolver) Resolve(raw []byte) Resolution {
	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		return resolved(UTF8, 1)
	case bytes.HasPrefix(raw, bomUTF16LE):
		return resolved(UTF16LE, 1)
	case bytes.HasPrefix(raw, bomUTF16BE):
		return resolved(UTF16BE, 1)
	}

	sample := raw
	if len(sample) > r.sampleBytes {
		sample = trimPartialRune(sample[:r.sampleBytes])
	}
	if len(sample) == 0 {
		return fallback(0, "empty input")
	}

	// NUL is valid UTF-8 but never appears in text exports; BOM-less UTF-16
	// is the usual source.
	if bytes.IndexByte(sample, 0) >= 0 {
		if name, ok := sniffUTF16(sample); ok {
			return resolved(name, 1)
		}
	} else if utf8.Valid(sample) {
		// ASCII is a subset of UTF-8, so a valid sample decodes losslessly either way.
		return resolved(UTF8, 1)
	}

	best, err := r.detector.DetectBest(sample)
	if err != nil || best == nil {
		return fallback(0, "charset detection inconclusive")
	}

	confidence := float64(best.Confidence) / 100
	if confidence < r.minConfidence {
		return fallback(confidence, fmt.Sprintf("detected %s with confidence %.2f below %.2f", best.Charset, confidence, r.minConfidence))
	}

	name := canonicalName(best.Charset)
	if _, err := lookup(name); err != nil {
		return fallback(confidence, fmt.Sprintf("detected %s is not supported", best.Charset))
	}
	if name == UTF8 {
		// chardet can report UTF-8 for samples that failed validation above;
		// the bytes are not UTF-8, so prefer the single-byte default.
		return fallback(confidence, "sample is not valid UTF-8")
	}

	return resolved(name, confidence)
}

// Decode converts raw into UTF-8 using the resolved encoding. Undecodable
// sequences become U+FFFD. The returned text never carries a byte-order mark.
func (r *Resolver) Decode(raw []byte, res Resolution) ([]byte, error) {
	enc, err := lookup(res.Encoding)
	if err != nil {
		enc = charmap.ISO8859_1
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(raw), enc.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", res.Encoding, err)
	}
	return bytes.TrimPrefix(out, bomUTF8), nil
}

// sniffUTF16 guesses the byte order of BOM-less UTF-16 text that is mostly
// ASCII: the high byte of each code unit is NUL, so NULs cluster at odd
// offsets for little-endian and at even offsets for big-endian.
func sniffUTF16(sample []byte) (string, bool) {
	if len(sample) < 2 {
		return "", false
	}
	var even, odd int
	for i, b := range sample {
		if b != 0 {
			continue
		}
		if i%2 == 0 {
			even++
		} else {
			odd++
		}
	}
	units := len(sample) / 2
	switch {
	case odd*2 >= units && even*10 <= odd:
		return UTF16LE, true
	case even*2 >= units && odd*10 <= even:
		return UTF16BE, true
	}
	return "", false
}

func resolved(name string, confidence float64) Resolution {
	return Resolution{Kind: KindResolved, Encoding: name, Confidence: confidence}
}

func fallback(confidence float64, reason string) Resolution {
	return Resolution{Kind: KindFallback, Encoding: Fallback, Confidence: confidence, Reason: reason}
}

func canonicalName(name string) string {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "UTF-8", "UTF8":
		return UTF8
	case "UTF-16LE":
		return UTF16LE
	case "UTF-16BE":
		return UTF16BE
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return Latin1
	}
	return name
}

func lookup(name string) (encoding.Encoding, error) {
	switch name {
	case UTF8:
		return xunicode.UTF8, nil
	case UTF16LE:
		return xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM), nil
	case UTF16BE:
		return xunicode.UTF16(xunicode.BigEndian, xunicode.UseBOM), nil
	case Latin1:
		return charmap.ISO8859_1, nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("no decoder for %s", name)
	}
	return enc, nil
}

// trimPartialRune drops an incomplete UTF-8 sequence cut at the end of a sample.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if utf8.RuneStart(b[start]) {
			if !utf8.FullRune(b[start:]) {
				return b[:start]
			}
			return b
		}
	}
	return b
}
