package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestOpenError(t *testing.T) {
	cause := fs.ErrNotExist
	tests := []struct {
		name    string
		err     *OpenError
		wantMsg string
	}{
		{
			name:    "with path",
			err:     &OpenError{Path: "data.xml", Err: cause},
			wantMsg: "cannot open data.xml: file does not exist",
		},
		{
			name:    "anonymous stream",
			err:     &OpenError{Err: cause},
			wantMsg: "cannot open data source: file does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrOpen) {
				t.Error("errors.Is(err, ErrOpen) = false")
			}
			if !errors.Is(tt.err, fs.ErrNotExist) {
				t.Error("OpenError should unwrap to its cause")
			}
			if errors.Is(tt.err, ErrFormat) {
				t.Error("OpenError must not match ErrFormat")
			}
		})
	}
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name    string
		err     *FormatError
		wantMsg string
	}{
		{
			name:    "missing attributes",
			err:     NewFormat("data.xml", "date", "version"),
			wantMsg: "data.xml: not an intrinsics data file (missing root attribute date, version)",
		},
		{
			name:    "message only",
			err:     &FormatError{Message: "intrinsic without name"},
			wantMsg: "not an intrinsics data file: intrinsic without name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrFormat) {
				t.Error("errors.Is(err, ErrFormat) = false")
			}
			if errors.Is(tt.err, ErrOpen) {
				t.Error("FormatError must not match ErrOpen")
			}
		})
	}
}

func TestOpenAndFormatDistinguishableThroughWrapping(t *testing.T) {
	open := Wrap(NewOpen("a.xml", fmt.Errorf("boom")), "loading")
	format := Wrap(NewFormat("b.xml", "date"), "loading")

	var oe *OpenError
	if !As(open, &oe) || oe.Path != "a.xml" {
		t.Errorf("As(open) failed, got %v", oe)
	}
	var fe *FormatError
	if !As(format, &fe) || len(fe.Missing) != 1 {
		t.Errorf("As(format) failed, got %v", fe)
	}
	if As(open, &fe) {
		t.Error("open error should not match *FormatError")
	}
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "with ID",
			err:      &NotFoundError{Resource: "intrinsic", ID: "_mm_add_ps"},
			wantMsg:  "intrinsic not found: _mm_add_ps",
			wantBase: ErrNotFound,
		},
		{
			name:     "without ID",
			err:      &NotFoundError{Resource: "technology"},
			wantMsg:  "technology not found",
			wantBase: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if got := tt.err.Unwrap(); !errors.Is(got, tt.wantBase) {
				t.Errorf("Unwrap() = %v, want %v", got, tt.wantBase)
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("index error")
		err := &NotFoundError{Resource: "intrinsic", ID: "x", Err: underlyingErr}
		if got := err.Unwrap(); got != underlyingErr {
			t.Errorf("Unwrap() = %v, want %v", got, underlyingErr)
		}
	})
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name    string
		err     *ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     &ValidationError{Field: "query", Message: "unterminated string"},
			wantMsg: "validation failed for query: unterminated string",
		},
		{
			name:    "without field",
			err:     &ValidationError{Message: "invalid format"},
			wantMsg: "validation failed: invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrInvalidInput) {
				t.Error("ValidationError should match ErrInvalidInput")
			}
		})
	}
}

func TestIOError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewIO("write", "/tmp/x", cause)
	if got := err.Error(); got != "failed to write /tmp/x: disk full" {
		t.Errorf("Error() = %q", got)
	}
	if err.Unwrap() != cause {
		t.Error("Unwrap() should return cause")
	}
	err = NewIO("read", "", cause)
	if got := err.Error(); got != "failed to read: disk full" {
		t.Errorf("Error() = %q", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	base := errors.New("base")
	wrapped := Wrap(base, "ctx")
	if wrapped.Error() != "ctx: base" {
		t.Errorf("Wrap() = %q", wrapped.Error())
	}
	if !Is(wrapped, base) {
		t.Error("wrapped error should match base")
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "ctx %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}
	base := errors.New("base")
	wrapped := Wrapf(base, "ctx %d", 7)
	if wrapped.Error() != "ctx 7: base" {
		t.Errorf("Wrapf() = %q", wrapped.Error())
	}
}
