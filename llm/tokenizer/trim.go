package tokenizer

// FitMessages 在 budget 内保留尽量多的最新消息.
// 开头连续的 system 消息总会保留；其余消息从最旧开始丢弃.
// 返回保留的消息与丢弃条数. budget <= 0 时不裁剪.
func FitMessages(tok Tokenizer, messages []Message, budget int) ([]Message, int) {
	if budget <= 0 || len(messages) == 0 {
		return messages, 0
	}

	head := 0
	for head < len(messages) && messages[head].Role == "system" {
		head++
	}

	// 先算 system 与收尾开销
	used, err := tok.CountMessages(messages[:head])
	if err != nil {
		return messages, 0
	}

	start := len(messages)
	for i := len(messages) - 1; i >= head; i-- {
		n, err := tok.CountTokens(messages[i].Content)
		if err != nil {
			return messages, 0
		}
		n += messageOverhead(tok, messages[i].Role)
		if used+n > budget {
			break
		}
		used += n
		start = i
	}

	// 至少保留最后一条，哪怕超出预算
	if start == len(messages) && head < len(messages) {
		start = len(messages) - 1
	}

	kept := make([]Message, 0, head+len(messages)-start)
	kept = append(kept, messages[:head]...)
	kept = append(kept, messages[start:]...)
	return kept, start - head
}

func messageOverhead(tok Tokenizer, role string) int {
	n, err := tok.CountTokens(role)
	if err != nil {
		n = 1
	}
	return n + 4
}
