/*
Copyright © 2024 the terndata.flux authors.
This file is part of terndata.flux.

terndata.flux is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

terndata.flux is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with terndata.flux.  If not, see <http://www.gnu.org/licenses/>.*/

package flux

import (
	"fmt"
	"strings"
)

// Kind classifies the failure modes of the public API.
type Kind int

const (
	// KindTransport is a network failure or a non-success HTTP status.
	KindTransport Kind = iota + 1
	// KindNotFound is an unknown catalog object kind, variable name or
	// dataset-type label.
	KindNotFound
	// KindInvalidFormat is a malformed date string or a wrong output
	// file extension.
	KindInvalidFormat
	// KindUpstream is any failure while opening or decoding a remote
	// dataset.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindNotFound:
		return "not found"
	case KindInvalidFormat:
		return "invalid format"
	case KindUpstream:
		return "upstream"
	}
	return "unknown"
}

// An Error is the error type returned by all public Client operations.
// It carries the identifying parameters of the failed call so that the
// error text alone is diagnostic.
type Error struct {
	Kind    Kind
	Op      string // e.g. "get versions"
	Site    string
	Version string
	Level   string
	Err     error  // the underlying cause
}

func (e *Error) Error() string {
	var ids []string
	if e.Site != "" {
		ids = append(ids, fmt.Sprintf("site '%s'", e.Site))
	}
	if e.Version != "" {
		ids = append(ids, fmt.Sprintf("version '%s'", e.Version))
	}
	if e.Level != "" {
		ids = append(ids, fmt.Sprintf("processing-level '%s'", e.Level))
	}
	msg := "flux: fail to " + e.Op
	if len(ids) > 0 {
		msg += " for " + strings.Join(ids, ", ")
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, &Error{Kind: KindNotFound}) can be used to test the
// failure class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind &&
		(t.Op == "" || t.Op == e.Op) &&
		(t.Site == "" || t.Site == e.Site)
}
