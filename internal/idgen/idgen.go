// Package idgen mints record ids of the form "<unix-millis>-<suffix>", for
// example "1718044800123-k3x9q2ab7d". The prefix orders ids by write time;
// the nanoid suffix keeps ids written in the same millisecond apart.
package idgen

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// Alphabet is lowercase alphanumerics so ids survive case-folding
	// ledgers and URLs unescaped.
	Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// SuffixLen gives 36^10 suffixes per millisecond.
	SuffixLen = 10
)

var ErrMalformed = errors.New("malformed record id")

func Generate() (string, error) {
	return GenerateAt(time.Now())
}

func GenerateAt(t time.Time) (string, error) {
	suffix, err := nanoid.Generate(Alphabet, SuffixLen)
	if err != nil {
		return "", fmt.Errorf("generating id suffix: %w", err)
	}
	var b strings.Builder
	b.Grow(14 + SuffixLen)
	b.WriteString(strconv.FormatInt(t.UnixMilli(), 10))
	b.WriteByte('-')
	b.WriteString(suffix)
	return b.String(), nil
}

// Time recovers the write time stamped into id. Ids minted elsewhere with a
// different suffix are accepted as long as the prefix parses.
func Time(id string) (time.Time, error) {
	prefix, suffix, ok := strings.Cut(id, "-")
	if !ok || suffix == "" {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformed, id)
	}
	ms, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil || ms < 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformed, id)
	}
	return time.UnixMilli(ms), nil
}
