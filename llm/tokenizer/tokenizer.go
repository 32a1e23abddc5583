package tokenizer

import (
	"strings"
	"sync"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数，包含每条消息的角色与分隔符开销.
	CountMessages(messages []Message) (int, error)

	// MaxTokens 返回模型的上下文窗口.
	MaxTokens() int

	Name() string
}

// Message 是 tokenizer 使用的轻量消息结构，避免依赖 llm 包.
type Message struct {
	Role    string
	Content string
}

var (
	cacheMu sync.Mutex
	cache   = make(map[string]Tokenizer)
)

// ForModel 返回模型对应的 tokenizer：OpenAI 系列使用 tiktoken，
// 编码数据加载失败或模型未知时回落到估算器. 结果按模型缓存.
func ForModel(model string) Tokenizer {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if t, ok := cache[model]; ok {
		return t
	}
	var t Tokenizer
	if info, ok := lookupEncoding(model); ok {
		t = &fallbackTokenizer{
			primary:  NewTiktokenTokenizer(model, info),
			fallback: NewEstimatorTokenizer(model, info.maxTokens),
		}
	} else {
		t = NewEstimatorTokenizer(model, 0)
	}
	cache[model] = t
	return t
}

func lookupEncoding(model string) (encodingInfo, bool) {
	if info, ok := modelEncodings[model]; ok {
		return info, true
	}
	// 最长前缀匹配，例如 gpt-4o-2024-08-06 -> gpt-4o
	best := ""
	for prefix := range modelEncodings {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return encodingInfo{}, false
	}
	return modelEncodings[best], true
}

// fallbackTokenizer 在 tiktoken 不可用时使用估算器.
type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	if n, err := f.primary.CountTokens(text); err == nil {
		return n, nil
	}
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) CountMessages(messages []Message) (int, error) {
	if n, err := f.primary.CountMessages(messages); err == nil {
		return n, nil
	}
	return f.fallback.CountMessages(messages)
}

func (f *fallbackTokenizer) MaxTokens() int { return f.primary.MaxTokens() }

func (f *fallbackTokenizer) Name() string { return f.primary.Name() }
