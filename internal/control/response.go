package control

import (
	"fmt"
	"strings"
)

// StatusCode is the three-digit status that opens every control reply.
type StatusCode int

// Status codes the daemon emits. StatusUnknown never appears on the wire; it
// marks a synthetic response produced when a reply could not be read.
const (
	StatusUnknown             StatusCode = 0
	StatusOK                  StatusCode = 250
	StatusOperationUnneeded   StatusCode = 251
	StatusResourceExhausted   StatusCode = 451
	StatusSyntaxError         StatusCode = 500
	StatusUnrecognizedCommand StatusCode = 510
	StatusUnimplemented       StatusCode = 511
	StatusSyntaxErrorArgument StatusCode = 512
	StatusUnrecognizedArg     StatusCode = 513
	StatusAuthRequired        StatusCode = 514
	StatusBadAuthentication   StatusCode = 515
	StatusUnspecifiedError    StatusCode = 550
	StatusInternalError       StatusCode = 551
	StatusUnrecognizedEntity  StatusCode = 552
	StatusInvalidConfigValue  StatusCode = 553
	StatusAsyncEvent          StatusCode = 650
)

func (s StatusCode) String() string {
	if s == StatusUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%03d", int(s))
}

// Response is one parsed control reply.
type Response struct {
	Code StatusCode

	// Lines is never empty; an empty body is a single "".
	Lines []string

	// Data is set for "+" replies. The daemon follows those with a separate
	// status line, which is left for the next Read.
	Data bool

	// Err holds the read failure behind a StatusUnknown response.
	Err error
}

// Success reports whether the status is in the 2xx range.
func (r Response) Success() bool {
	return r.Code >= 200 && r.Code <= 299
}

// Text joins the response lines with newlines.
func (r Response) Text() string {
	return strings.Join(r.Lines, "\n")
}

// AsError renders a failed response as an error, or nil for a successful one.
func (r Response) AsError() error {
	if r.Success() {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("control reply %s: %w", r.Code, r.Err)
	}
	return fmt.Errorf("control reply %s: %s", r.Code, r.Text())
}

func unknownResponse(err error) Response {
	return Response{Code: StatusUnknown, Lines: []string{""}, Err: err}
}

// parseResponse reads one reply using next, which yields lines with the
// terminator already removed. Malformed status lines produce StatusUnknown;
// a failure of next is returned as an error.
func parseResponse(next func() (string, error)) (Response, error) {
	line, err := next()
	if err != nil {
		return Response{}, err
	}

	code, ok := parseStatus(line)
	if !ok {
		return unknownResponse(fmt.Errorf("%w: status line %q", ErrMalformed, line)), nil
	}

	rest := line[3:]
	if rest == "" {
		return Response{Code: code, Lines: []string{""}}, nil
	}

	switch rest[0] {
	case '-':
		lines, err := readStatusBlock(next, rest[1:])
		if err != nil {
			return Response{}, err
		}
		return Response{Code: code, Lines: lines}, nil
	case '+':
		lines, err := readDataBlock(next, rest[1:])
		if err != nil {
			return Response{}, err
		}
		return Response{Code: code, Lines: lines, Data: true}, nil
	default:
		return Response{Code: code, Lines: []string{strings.TrimPrefix(rest, " ")}}, nil
	}
}

// readStatusBlock collects "<code>-text" lines, stripping the four-character
// prefix, up to and including the "<code> text" line that ends the block.
func readStatusBlock(next func() (string, error), first string) ([]string, error) {
	lines := []string{first}
	for {
		line, err := next()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 4 {
			lines = append(lines, line)
			continue
		}
		lines = append(lines, line[4:])
		if line[3] == ' ' {
			return lines, nil
		}
	}
}

// readDataBlock collects lines verbatim until a line that is exactly ".".
func readDataBlock(next func() (string, error), first string) ([]string, error) {
	lines := []string{first}
	for {
		line, err := next()
		if err != nil {
			return nil, err
		}
		if line == "." {
			return lines, nil
		}
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
}

func parseStatus(line string) (StatusCode, bool) {
	if len(line) < 3 {
		return StatusUnknown, false
	}
	code := 0
	for i := 0; i < 3; i++ {
		c := line[i]
		if c < '0' || c > '9' {
			return StatusUnknown, false
		}
		code = code*10 + int(c-'0')
	}
	return StatusCode(code), true
}
