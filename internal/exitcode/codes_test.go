package exitcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrNotFound, "no build")
	if err.Code != ErrNotFound {
		t.Errorf("Code = %d, want %d", err.Code, ErrNotFound)
	}
	if err.Message != "no build" {
		t.Errorf("Message = %q, want %q", err.Message, "no build")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrNetwork, "connection failed", cause)

	if err.Code != ErrNetwork {
		t.Errorf("Code = %d, want %d", err.Code, ErrNetwork)
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap should preserve cause for errors.Is")
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  New(ErrNotFound, "no build for win64"),
			want: "no build for win64",
		},
		{
			name: "with cause",
			err:  Wrap(ErrNetwork, "connection failed", errors.New("timeout")),
			want: "connection failed: timeout",
		},
		{
			name: "filesystem",
			err:  Filesystem("creating", "/opt/tor", errors.New("disk full")),
			want: "creating /opt/tor: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, Success},
		{"coded error", New(ErrNotFound, "not found"), ErrNotFound},
		{"wrapped coded", Wrap(ErrTimeout, "timed out", errors.New("ctx")), ErrTimeout},
		{"plain error", errors.New("plain"), ErrGeneral},
		{"fmt wrapped", fmt.Errorf("install: %w", Network("download", errors.New("reset"))), ErrNetwork},
		{"double wrapped", fmt.Errorf("a: %w", fmt.Errorf("b: %w", Filesystem("writing", "x", nil))), ErrFilesystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("check: %w", Network("fetch", errors.New("refused")))

	if !Is(err, ErrNetwork) {
		t.Error("Is should return true for matching code")
	}
	if Is(err, ErrFilesystem) {
		t.Error("Is should return false for non-matching code")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantCode int
		wantMsg  string
	}{
		{"Usage", Usage("port %d out of range", 70000), ErrUsage, "port 70000 out of range"},
		{"AuthFailed", AuthFailed("127.0.0.1:9451"), ErrAuth, "control authentication rejected by 127.0.0.1:9451"},
		{"NotInstalled", NotInstalled("/opt/tor/Tor/tor"), ErrNotInstalled, "daemon not installed: /opt/tor/Tor/tor"},
		{"Timeout", Timeout("terminate"), ErrTimeout, "operation timed out: terminate"},
		{"Busy", Busy("install dir"), ErrBusy, "install dir is busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Network("listing", cause)

	if errors.Unwrap(err) != cause {
		t.Error("errors.Unwrap should work with Error")
	}
	if New(ErrNotFound, "x").Unwrap() != nil {
		t.Error("Unwrap should return nil when no cause")
	}
}
