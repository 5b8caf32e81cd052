package config

import (
	"fmt"
	"math"

	humanize "github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// ByteSize is a byte count that parses human-readable sizes such as
// "1500", "8KiB" or "64 kB".  It implements pflag.Value and
// yaml.Unmarshaler.
type ByteSize int

// ParseByteSize parses s with go-humanize.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return ByteSize(n), nil
}

// String renders the size with IEC units, e.g. "64 KiB".
func (b ByteSize) String() string {
	if b < 0 {
		return fmt.Sprintf("%d B", int(b))
	}
	return humanize.IBytes(uint64(b))
}

// Set implements pflag.Value.
func (b *ByteSize) Set(s string) error {
	v, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Type implements pflag.Value.
func (b *ByteSize) Type() string { return "size" }

// UnmarshalYAML accepts both plain integers and unit strings.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	return b.Set(node.Value)
}
