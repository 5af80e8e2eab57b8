package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fenilsonani/mailbridge/internal/metrics"
)

func decodeLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var responses []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid output line %q: %v", line, err)
		}
		responses = append(responses, m)
	}
	return responses
}

func TestServe(t *testing.T) {
	env := newTestEnv(t)

	input := strings.Join([]string{
		`{"tool":"profile","command":"list"}`,
		``,
		`not json`,
		`{"tool":"pop3","command":"list"}`,
	}, "\n")

	var out bytes.Buffer
	if err := env.session.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	responses := decodeLines(t, out.String())
	if len(responses) != 3 {
		t.Fatalf("responses = %d, want 3", len(responses))
	}
	if responses[0]["status"] != "success" {
		t.Errorf("first response = %v", responses[0])
	}
	if msg, _ := responses[1]["error"].(string); !strings.HasPrefix(msg, "Invalid request: ") {
		t.Errorf("second response = %v", responses[1])
	}
	if responses[2]["error"] != "Unknown tool: pop3" {
		t.Errorf("third response = %v", responses[2])
	}
}

func TestServe_ConnectionPersistsAcrossLines(t *testing.T) {
	env := newTestEnv(t)

	input := strings.Join([]string{
		`{"tool":"imap","command":"connect","args":{"server":"imap.example.com","username":"user@example.com","password":"secret","port":993}}`,
		`{"tool":"imap","command":"search","args":{"criteria":"ALL"}}`,
		`{"tool":"imap","command":"mark-read","args":{"message_ids":["4",7]}}`,
	}, "\n")

	var out bytes.Buffer
	if err := env.session.Serve(context.Background(), strings.NewReader(input), &out); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	for i, resp := range decodeLines(t, out.String()) {
		if resp["status"] != "success" {
			t.Errorf("response %d = %v", i, resp)
		}
	}
	if env.dialer.dials != 1 {
		t.Errorf("dials = %d, want 1", env.dialer.dials)
	}
	want := []string{"login", "select INBOX", "search", `+flags \Seen`, "logout", "close"}
	if !reflect.DeepEqual(env.conn.calls, want) {
		t.Errorf("calls = %v, want %v", env.conn.calls, want)
	}
}

func TestExecute_RecordsOutcome(t *testing.T) {
	env := newTestEnv(t)

	ok := metrics.Commands.WithLabelValues(ToolProfile, "list", metrics.OutcomeSuccess)
	failed := metrics.Commands.WithLabelValues(ToolProfile, "show", metrics.OutcomeError)
	sandbox := metrics.Commands.WithLabelValues(ToolIMAP, "delete", metrics.OutcomeSandbox)
	before := []float64{testutil.ToFloat64(ok), testutil.ToFloat64(failed), testutil.ToFloat64(sandbox)}

	env.run(ToolProfile, "list", nil)
	env.run(ToolProfile, "show", Args{"name": "ghost"})
	env.run(ToolIMAP, "delete", Args{"message_ids": []any{"1"}, "sandbox": true})

	after := []float64{testutil.ToFloat64(ok), testutil.ToFloat64(failed), testutil.ToFloat64(sandbox)}
	for i := range before {
		if after[i]-before[i] != 1 {
			t.Errorf("counter %d moved by %v, want 1", i, after[i]-before[i])
		}
	}
}

func TestResponse_JSON(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{"success", success(map[string]any{"ok": true}), `{"status":"success","result":{"ok":true}}`},
		{"sandbox", sandboxed(map[string]any{"would_delete": true}), `{"status":"sandbox","result":{"sandbox_mode":true,"would_delete":true}}`},
		{"error", failure("Search failed: %s", "boom"), `{"error":"Search failed: boom"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
		})
	}
}
