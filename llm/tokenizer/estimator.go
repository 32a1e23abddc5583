package tokenizer

import (
	"unicode"
	"unicode/utf8"
)

const (
	defaultContextWindow = 4096

	// 每条消息的角色标记与分隔符开销
	perMessageTokens = 4
	// 回复起始标记
	replyPrimingTokens = 3

	denseRunesPerToken = 1.5
	latinRunesPerToken = 4.0
)

// denseScripts 中的字符按每 token 约 1.5 个字符估算.
var denseScripts = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
}

// EstimatorTokenizer 按字符类别估算 token 数，用于没有 BPE 编码数据的模型.
type EstimatorTokenizer struct {
	model         string
	contextWindow int
}

// NewEstimatorTokenizer 创建估算器. contextWindow <= 0 时取 4096.
func NewEstimatorTokenizer(model string, contextWindow int) *EstimatorTokenizer {
	if contextWindow <= 0 {
		contextWindow = defaultContextWindow
	}
	return &EstimatorTokenizer{model: model, contextWindow: contextWindow}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	dense := 0
	for _, r := range text {
		if isDense(r) {
			dense++
		}
	}
	other := utf8.RuneCountInString(text) - dense
	n := int(float64(dense)/denseRunesPerToken + float64(other)/latinRunesPerToken)
	return max(n, 1), nil
}

func (e *EstimatorTokenizer) CountMessages(messages []Message) (int, error) {
	total := replyPrimingTokens
	for _, m := range messages {
		n, err := e.CountTokens(m.Content)
		if err != nil {
			return 0, err
		}
		total += n + perMessageTokens
	}
	return total, nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.contextWindow }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

func isDense(r rune) bool {
	if r < utf8.RuneSelf {
		return false
	}
	// 全角标点与符号同样按密集字符计
	if (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF) {
		return true
	}
	return unicode.IsOneOf(denseScripts, r)
}
