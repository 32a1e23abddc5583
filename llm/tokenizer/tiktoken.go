package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encO200k  = "o200k_base"
	encCL100k = "cl100k_base"
)

type encodingInfo struct {
	encoding  string
	maxTokens int
}

// modelEncodings 覆盖网关与专家可能配置的 OpenAI / Azure 部署名.
var modelEncodings = map[string]encodingInfo{
	"gpt-4.1":                {encO200k, 1047576},
	"gpt-4o":                 {encO200k, 128000},
	"gpt-4o-mini":            {encO200k, 128000},
	"gpt-4-turbo":            {encCL100k, 128000},
	"gpt-4":                  {encCL100k, 8192},
	"gpt-35-turbo":           {encCL100k, 16385},
	"gpt-3.5-turbo":          {encCL100k, 16385},
	"text-embedding-ada-002": {encCL100k, 8191},
	"text-embedding-3-large": {encCL100k, 8191},
	"text-embedding-3-small": {encCL100k, 8191},
}

// BPE 表体积大，同一编码在所有模型间共享.
var encodings struct {
	mu     sync.Mutex
	loaded map[string]*tiktoken.Tiktoken
}

func loadEncoding(name string) (*tiktoken.Tiktoken, error) {
	encodings.mu.Lock()
	defer encodings.mu.Unlock()

	if enc, ok := encodings.loaded[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", name, err)
	}
	if encodings.loaded == nil {
		encodings.loaded = make(map[string]*tiktoken.Tiktoken)
	}
	encodings.loaded[name] = enc
	return enc, nil
}

// TiktokenTokenizer 精确计数. 编码在第一次计数时加载，失败后不再重试.
type TiktokenTokenizer struct {
	model string
	info  encodingInfo

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

func NewTiktokenTokenizer(model string, info encodingInfo) *TiktokenTokenizer {
	return &TiktokenTokenizer{model: model, info: info}
}

func (t *TiktokenTokenizer) encoder() (*tiktoken.Tiktoken, error) {
	t.once.Do(func() { t.enc, t.err = loadEncoding(t.info.encoding) })
	return t.enc, t.err
}

func (t *TiktokenTokenizer) CountTokens(text string) (int, error) {
	enc, err := t.encoder()
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages 按 chat 格式计数：每条消息 role 与 content 之外另有分隔符开销，
// 最后加上回复起始标记.
func (t *TiktokenTokenizer) CountMessages(messages []Message) (int, error) {
	enc, err := t.encoder()
	if err != nil {
		return 0, err
	}
	total := replyPrimingTokens
	for _, msg := range messages {
		total += perMessageTokens +
			len(enc.Encode(msg.Role, nil, nil)) +
			len(enc.Encode(msg.Content, nil, nil))
	}
	return total, nil
}

func (t *TiktokenTokenizer) MaxTokens() int { return t.info.maxTokens }

func (t *TiktokenTokenizer) Name() string { return "tiktoken[" + t.info.encoding + "]" }
