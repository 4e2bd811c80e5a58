package insight

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

func testRecord() timesheet.Record {
	rec := timesheet.NewDefault(timesheet.Period{Month: 5, Year: 2024}, [timesheet.DaysInRecord]string{})
	rec.TotalHours = "176"
	rec.TotalOvertime = "12"
	rec.TotalSalary = "15.000.000"
	return rec
}

func newTestServer(t *testing.T, status int, reply string, gotPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		json.Unmarshal(body, &req)
		if gotPrompt != nil && len(req.Messages) > 0 && len(req.Messages[0].Content) > 0 {
			*gotPrompt = req.Messages[0].Content[0].Text
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         req.Model,
			"content":       []map[string]any{{"type": "text", "text": reply}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeNotConfigured(t *testing.T) {
	a := NewAnalyzer("", "claude-sonnet-4-5")
	if a.Configured() {
		t.Error("Configured() = true without a key")
	}
	if got := a.Analyze(context.Background(), testRecord()); got != MsgNotConfigured {
		t.Errorf("Analyze = %q, want %q", got, MsgNotConfigured)
	}
}

func TestAnalyzeReturnsReply(t *testing.T) {
	var prompt string
	srv := newTestServer(t, http.StatusOK, " Tháng này bạn làm việc rất chăm chỉ! 💪 ", &prompt)
	a := NewAnalyzer("test-key", "claude-sonnet-4-5", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	got := a.Analyze(context.Background(), testRecord())
	if got != "Tháng này bạn làm việc rất chăm chỉ! 💪" {
		t.Errorf("Analyze = %q", got)
	}
	for _, want := range []string{"5/2024", "176", "12", "15.000.000"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestAnalyzeFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		want   string
	}{
		{"server error", http.StatusInternalServerError, "", MsgFailed},
		{"empty reply", http.StatusOK, "   ", MsgEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.reply, nil)
			a := NewAnalyzer("test-key", "claude-sonnet-4-5", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

			if got := a.Analyze(context.Background(), testRecord()); got != tt.want {
				t.Errorf("Analyze = %q, want %q", got, tt.want)
			}
		})
	}
}
