// Package vehicle holds the vehicle data read from the portal and the
// parsing around it.
package vehicle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Record is one vehicle as read from its portal page.
type Record struct {
	Maker     string                  `json:"maker"`
	Model     string                  `json:"model"`
	Year      string                  `json:"year"`
	Cylinders string                  `json:"cylinders,omitempty"`
	IsHybrid  bool                    `json:"is_hybrid"`
	Services  []Service               `json:"service_id,omitempty"`
	History   map[string]HistoryEntry `json:"history,omitempty"`
}

// Descriptor renders the record the way callers name a vehicle.
func (r Record) Descriptor() Descriptor {
	return Descriptor{Year: r.Year, Maker: r.Maker, Model: r.Model}
}

// CylinderCount parses the cylinder label, e.g. "4" or "V6". Zero when unknown.
func (r Record) CylinderCount() int {
	digits := strings.TrimFunc(r.Cylinders, func(c rune) bool { return c < '0' || c > '9' })
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// Service is a bookable service code suggested for a vehicle.
type Service struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Minutes     int    `json:"processing_time,omitempty"`
}

// Account is one customer of a multi-account search with the vehicle
// labels listed under it.
type Account struct {
	Client   string   `json:"client"`
	Vehicles []string `json:"cars"`
}

// ErrDescriptor is returned for vehicle descriptors that cannot be parsed.
var ErrDescriptor = errors.New("invalid vehicle descriptor")

// Descriptor is a "YEAR MAKER MODEL" vehicle name.
type Descriptor struct {
	Year  string
	Maker string
	Model string
}

// ParseDescriptor parses "YEAR MAKER MODEL"; the model may contain spaces.
func ParseDescriptor(s string) (Descriptor, error) {
	f := strings.Fields(s)
	if len(f) < 3 {
		return Descriptor{}, fmt.Errorf("%w: %q needs year, maker and model", ErrDescriptor, s)
	}
	if !isYear(f[0]) {
		return Descriptor{}, fmt.Errorf("%w: %q does not start with a year", ErrDescriptor, s)
	}
	return Descriptor{Year: f[0], Maker: f[1], Model: strings.Join(f[2:], " ")}, nil
}

func (d Descriptor) String() string {
	return strings.Join([]string{d.Year, d.Maker, d.Model}, " ")
}

func (d Descriptor) tokens() []string {
	return words(d.String())
}

// words splits s into upper-cased alphanumeric words.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Matches reports whether every token of d is a whole word of the portal's
// label, so "RIO" does not match "RIO5".
func (d Descriptor) Matches(label string) bool {
	toks := d.tokens()
	if len(toks) == 0 {
		return false
	}
	have := make(map[string]bool)
	for _, w := range words(label) {
		have[w] = true
	}
	for _, t := range toks {
		if !have[t] {
			return false
		}
	}
	return true
}

// ParseSummary splits the vehicle page summary "MAKER MODEL YEAR".
func ParseSummary(text string) (maker, model, year string, err error) {
	f := strings.Fields(text)
	if len(f) < 3 || !isYear(f[len(f)-1]) {
		return "", "", "", fmt.Errorf("unexpected vehicle summary %q", text)
	}
	return f[0], strings.Join(f[1:len(f)-1], " "), f[len(f)-1], nil
}

func isYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 1900 && n <= 2100
}
