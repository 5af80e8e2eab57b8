package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Request is one line of session input.
type Request struct {
	Tool    string `json:"tool"`
	Command string `json:"command"`
	Args    Args   `json:"args"`
}

const maxRequestLine = 16 * 1024 * 1024

// Serve reads JSON requests from r, one per line, and writes one response
// per line to w. Explicit connections persist across lines and are closed
// when r is exhausted or ctx is done.
func (s *Session) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	defer s.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRequestLine)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp Response
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			resp = failure("Invalid request: %v", err)
		} else {
			resp = s.Execute(ctx, req.Tool, req.Command, req.Args)
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}
