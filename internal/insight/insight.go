// Package insight asks a language model for a short comment on a month's
// hours and salary. It never fails: every problem becomes a canned reply.
package insight

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

const (
	MsgNotConfigured = "Vui lòng cấu hình API Key để sử dụng tính năng phân tích."
	MsgFailed        = "Đã có lỗi xảy ra khi kết nối với dịch vụ phân tích."
	MsgEmpty         = "Không thể phân tích dữ liệu lúc này."

	maxTokens = 512
)

type Analyzer struct {
	client *anthropic.Client
	model  string
}

// NewAnalyzer returns an analyzer for model. With an empty apiKey every call
// returns MsgNotConfigured.
func NewAnalyzer(apiKey, model string, opts ...option.RequestOption) *Analyzer {
	a := &Analyzer{model: model}
	if apiKey == "" {
		return a
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	a.client = &client
	return a
}

func (a *Analyzer) Configured() bool {
	return a.client != nil
}

// Analyze returns the model's comment on rec, or a fallback message.
func (a *Analyzer) Analyze(ctx context.Context, rec timesheet.Record) string {
	if a.client == nil {
		return MsgNotConfigured
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(Prompt(rec))),
		},
	})
	if err != nil {
		log.Printf("Insight request failed: %v", err)
		return MsgFailed
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return MsgEmpty
	}
	return strings.TrimSpace(text.String())
}

// Prompt is the Vietnamese request sent for rec.
func Prompt(rec timesheet.Record) string {
	return fmt.Sprintf(`Bạn là một trợ lý tài chính và sức khỏe thân thiện.
Dưới đây là dữ liệu lương tháng %d/%d của tôi:
- Tổng giờ làm: %s
- Tổng giờ tăng ca: %s
- Tổng lương thực nhận: %s

Hãy đưa ra một nhận xét ngắn gọn (khoảng 2-3 câu) về thu nhập và sức khỏe của tôi dựa trên số giờ làm việc.
Nếu tôi tăng ca nhiều, hãy nhắc nhở giữ gìn sức khỏe. Nếu lương cao, hãy chúc mừng.
Trả lời bằng tiếng Việt thân thiện, có emoji.`,
		rec.Month, rec.Year, rec.TotalHours, rec.TotalOvertime, rec.TotalSalary)
}
