// Package logging provides the injected Logger collaborator used by every
// core package. The core never calls fmt.Println or os.Exit; it logs
// through this interface at one of four severities.
package logging

import (
	"log"
	"os"
)

// Logger is the collaborator every core package depends on instead of
// writing to stdout directly.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Std is the default Logger, backed by the standard library's log
// package, matching the ambient style the rest of the pack uses
// (log.Printf) rather than a third-party structured logger.
type Std struct {
	l       *log.Logger
	verbose bool
}

// NewStd returns a Logger writing to stderr. When verbose is false,
// Debugf calls are discarded.
func NewStd(verbose bool) *Std {
	return &Std{l: log.New(os.Stderr, "", log.LstdFlags), verbose: verbose}
}

func (s *Std) Debugf(format string, args ...any) {
	if !s.verbose {
		return
	}
	s.l.Printf("debug: "+format, args...)
}

func (s *Std) Infof(format string, args ...any)  { s.l.Printf("info: "+format, args...) }
func (s *Std) Warnf(format string, args ...any)  { s.l.Printf("warn: "+format, args...) }
func (s *Std) Errorf(format string, args ...any) { s.l.Printf("error: "+format, args...) }

// Nop discards everything; useful as a default in tests.
type Nop struct{}

func (Nop) Debugf(string, ...any) {}
func (Nop) Infof(string, ...any)  {}
func (Nop) Warnf(string, ...any)  {}
func (Nop) Errorf(string, ...any) {}

var _ Logger = (*Std)(nil)
var _ Logger = Nop{}
