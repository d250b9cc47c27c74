// Package checkpoint decorates errors with caller information so that a
// failure deep inside the filesystem (a FAT lookup, a block transfer) carries
// the chain of call sites it bubbled through, similar to a stack trace.
// Every error attached to a checkpoint stays visible to errors.Is and
// errors.As.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps an error in a new checkpoint carrying the caller's file and
// line. It returns nil if err is nil.
func From(err error) error {
	// io.EOF and io.ErrUnexpectedEOF must be returned untouched, callers
	// compare them with ==.
	// https://github.com/golang/go/issues/39155
	if err == io.EOF {
		return io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return io.ErrUnexpectedEOF
	}

	if err == nil {
		return nil
	}

	_, file, line, ok := runtime.Caller(1)

	return &checkpoint{
		err:  err,
		prev: nil,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

// Wrap adds a checkpoint with caller information on top of prev and attaches
// err, which usually is one of the predefined sentinel errors of the caller.
// It returns nil if prev is nil, so call sites can wrap unconditionally:
//
//	func (fs *Fs) mount() error {
//		err := fs.readBootSector()
//		return checkpoint.Wrap(err, ErrUnsupportedVolume)
//	}
//
// The result matches both errors with errors.Is:
//
//	if errors.Is(err, ErrUnsupportedVolume) { ... }
func Wrap(prev, err error) error {
	if prev == io.EOF {
		return io.EOF
	}

	if prev == nil {
		return nil
	}

	_, file, line, ok := runtime.Caller(1)

	return &checkpoint{
		err:  err,
		prev: prev,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) Error() string {
	site := "File: unknown"
	if e.callerOk {
		site = fmt.Sprintf("File: %s:%d", e.file, e.line)
	}
	if e.prev == nil {
		return fmt.Sprintf("%s\n\t%v", site, e.err)
	}

	// Indent foreign errors so the chain stays readable.
	prevErrString := e.prev.Error()
	if _, ok := e.prev.(*checkpoint); !ok {
		prevErrString = "File: unknown\n\t" + strings.ReplaceAll(prevErrString, "\n", "\n\t")
	}
	return fmt.Sprintf("%s\n\t%v\n%v", site, e.err, prevErrString)
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return errors.As(e.err, target)
}
