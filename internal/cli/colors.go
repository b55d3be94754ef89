// Package cli styles terminal output for the prism binaries.
package cli

import (
	"fmt"
	"os"
	"sync/atomic"
)

const (
	ResetCode = "\033[0m"
	BoldCode  = "\033[1m"
	DimCode   = "\033[2m"
	Red       = "\033[31m"
	Green     = "\033[32m"
	Yellow    = "\033[33m"
	Blue      = "\033[34m"
	Purple    = "\033[35m"
	Cyan      = "\033[36m"
)

// RGB represents a TrueColor
type RGB struct {
	R, G, B float64
}

var (
	BrandBlue   = RGB{0, 120, 255}
	BrandPurple = RGB{189, 52, 235}
)

var enabled atomic.Bool

func init() {
	_, noColor := os.LookupEnv("NO_COLOR")
	enabled.Store(!noColor)
}

// Enabled reports whether styling is applied. NO_COLOR disables it.
func Enabled() bool {
	return enabled.Load()
}

// SetEnabled overrides the NO_COLOR detection, e.g. when output is piped.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// Style wraps text in a color code
func Style(text string, code string) string {
	if !Enabled() || text == "" {
		return text
	}
	return code + text + ResetCode
}

func Bold(text string) string { return Style(text, BoldCode) }
func Dim(text string) string  { return Style(text, DimCode) }

// ColorizeRGB returns text wrapped in ANSI TrueColor escape codes
func ColorizeRGB(text string, c RGB) string {
	if !Enabled() {
		return text
	}
	return fmt.Sprintf("\033[38;2;%d;%d;%dm%s%s", int(c.R), int(c.G), int(c.B), text, ResetCode)
}

// Gradient colors each rune of text along a line from start to end.
func Gradient(text string, start, end RGB) string {
	if !Enabled() {
		return text
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return text
	}

	var out []byte
	for i, r := range runes {
		progress := 0.0
		if len(runes) > 1 {
			progress = float64(i) / float64(len(runes)-1)
		}
		c := RGB{
			R: start.R + (end.R-start.R)*progress,
			G: start.G + (end.G-start.G)*progress,
			B: start.B + (end.B-start.B)*progress,
		}
		out = append(out, ColorizeRGB(string(r), c)...)
	}
	return string(out)
}

func CheckMark() string { return Style("✔", Green) }
func Arrow() string     { return Style("➜", Blue) }
func CrossMark() string { return Style("✘", Red) }
