// Package fitfile reads the session summary of a FIT activity file.
package fitfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
)

// ErrNoSession is returned for FIT files without a session message.
var ErrNoSession = errors.New("no session in activity file")

// Summary describes the first session of an activity.
type Summary struct {
	Sport     string
	SubSport  string
	Name      string
	StartTime time.Time
	Elapsed   time.Duration
	// Distance in metres.
	Distance float64
}

// Summarize decodes the FIT file at path.
func Summarize(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open activity file: %w", err)
	}
	defer f.Close()

	fitData, err := decoder.New(bufio.NewReader(f)).Decode()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to decode FIT file: %w", err)
	}

	for i := range fitData.Messages {
		msg := &fitData.Messages[i]
		if msg.Num != typedef.MesgNumSession {
			continue
		}
		session := mesgdef.NewSession(msg)
		return Summary{
			Sport:     session.Sport.String(),
			SubSport:  session.SubSport.String(),
			Name:      session.SportProfileName,
			StartTime: session.StartTime.UTC(),
			Elapsed:   time.Duration(session.TotalElapsedTime) * time.Millisecond,
			Distance:  float64(session.TotalDistance) / 100,
		}, nil
	}
	return Summary{}, ErrNoSession
}

// Notes formats s as a single line suitable for an upload's notes field.
func (s Summary) Notes() string {
	var parts []string
	if s.Name != "" {
		parts = append(parts, s.Name)
	} else if s.Sport != "" {
		parts = append(parts, strings.ReplaceAll(s.Sport, "_", " "))
	}
	if s.Distance > 0 {
		parts = append(parts, fmt.Sprintf("%.2f km", s.Distance/1000))
	}
	if s.Elapsed > 0 {
		parts = append(parts, s.Elapsed.Round(time.Second).String())
	}
	if !s.StartTime.IsZero() {
		parts = append(parts, s.StartTime.Format("2006-01-02 15:04"))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Zwift: " + strings.Join(parts, " | ")
}

// Notes returns the upload notes for the activity at path, or an empty string
// when the file has no readable summary.
func Notes(path string) string {
	s, err := Summarize(path)
	if err != nil {
		return ""
	}
	return s.Notes()
}
