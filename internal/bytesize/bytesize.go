// Package bytesize parses and prints sizes such as "1MiB" or "64KB" for
// configuration files.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// ByteSize is a size in bytes. It decodes from plain numbers or from a
// number with a decimal (K, M, G) or binary (Ki, Mi, Gi) unit.
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
)

var pattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var units = map[string]ByteSize{
	"":    B,
	"b":   B,
	"k":   KB,
	"kb":  KB,
	"m":   MB,
	"mb":  MB,
	"g":   GB,
	"gb":  GB,
	"ki":  KiB,
	"kib": KiB,
	"mi":  MiB,
	"mib": MiB,
	"gi":  GiB,
	"gib": GiB,
}

// Parse reads a size like "1MiB", "512k", "1.5M" or "4096".
func Parse(s string) (ByteSize, error) {
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}

	unit, ok := units[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit %q in %q", m[2], s)
	}

	if strings.Contains(m[1], ".") {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid byte size: %q", s)
		}
		return ByteSize(f * float64(unit)), nil
	}

	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return ByteSize(n) * unit, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText writes the largest binary unit that divides b exactly, so the
// value survives a round trip.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range []struct {
		size ByteSize
		name string
	}{{GiB, "GiB"}, {MiB, "MiB"}, {KiB, "KiB"}} {
		if b >= u.size && b%u.size == 0 {
			return []byte(strconv.FormatUint(uint64(b/u.size), 10) + u.name), nil
		}
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

func (b ByteSize) String() string {
	text, _ := b.MarshalText()
	return string(text)
}

// JSONSchema accepts either form in the configuration schema.
func (ByteSize) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "integer"},
			{Type: "string", Pattern: pattern.String()},
		},
		Description: `size in bytes, e.g. 1048576 or "1MiB"`,
	}
}
