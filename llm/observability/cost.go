package observability

import (
	"sort"
	"strings"
	"sync"
)

// ModelPrice 是一个模型的单价，单位 USD / 1M tokens.
type ModelPrice struct {
	Provider    string
	Model       string
	PriceInput  float64
	PriceOutput float64
}

type priceKey struct{ provider, model string }

// CostCalculator 按 provider 与模型名计价. 带日期后缀的模型名按最长前缀匹配.
type CostCalculator struct {
	mu     sync.RWMutex
	prices map[priceKey]ModelPrice
}

// openAIPrices 同时适用于 openai 与 azure_openai.
var openAIPrices = []ModelPrice{
	{Model: "gpt-4o", PriceInput: 2.5, PriceOutput: 10},
	{Model: "gpt-4o-mini", PriceInput: 0.15, PriceOutput: 0.6},
	{Model: "gpt-4.1", PriceInput: 2, PriceOutput: 8},
	{Model: "gpt-4.1-mini", PriceInput: 0.4, PriceOutput: 1.6},
	{Model: "gpt-4-turbo", PriceInput: 10, PriceOutput: 30},
	{Model: "gpt-35-turbo", PriceInput: 0.5, PriceOutput: 1.5},
	{Model: "gpt-3.5-turbo", PriceInput: 0.5, PriceOutput: 1.5},
	{Model: "text-embedding-3-small", PriceInput: 0.02},
	{Model: "text-embedding-ada-002", PriceInput: 0.1},
}

func NewCostCalculator() *CostCalculator {
	c := &CostCalculator{prices: make(map[priceKey]ModelPrice)}
	for _, provider := range []string{"openai", "azure_openai"} {
		for _, p := range openAIPrices {
			p.Provider = provider
			c.prices[priceKey{provider, p.Model}] = p
		}
	}
	return c
}

// SetPrice 覆盖单个模型的价格.
func (c *CostCalculator) SetPrice(provider, model string, priceInput, priceOutput float64) {
	c.UpdatePrices([]ModelPrice{{Provider: provider, Model: model, PriceInput: priceInput, PriceOutput: priceOutput}})
}

// UpdatePrices 批量覆盖价格.
func (c *CostCalculator) UpdatePrices(prices []ModelPrice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range prices {
		c.prices[priceKey{p.Provider, p.Model}] = p
	}
}

// GetPrice 返回价格，未知模型返回 nil.
// "gpt-4o-mini-2024-07-18" 按 gpt-4o-mini 而不是 gpt-4o 计价.
func (c *CostCalculator) GetPrice(provider, model string) *ModelPrice {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if p, ok := c.prices[priceKey{provider, model}]; ok {
		return &p
	}
	var best *ModelPrice
	for k, p := range c.prices {
		if k.provider != provider || !strings.HasPrefix(model, k.model) {
			continue
		}
		if best == nil || len(k.model) > len(best.Model) {
			p := p
			best = &p
		}
	}
	return best
}

// Calculate 返回一次请求的 USD 成本，未知模型为 0.
func (c *CostCalculator) Calculate(provider, model string, tokensInput, tokensOutput int) float64 {
	price := c.GetPrice(provider, model)
	if price == nil {
		return 0
	}
	return (float64(tokensInput)*price.PriceInput + float64(tokensOutput)*price.PriceOutput) / 1e6
}

// CostSummary 是一组请求的成本汇总.
type CostSummary struct {
	TotalCost       float64
	TotalTokens     int
	TokensInput     int
	TokensOutput    int
	RequestCount    int
	AvgCostPerReq   float64
	AvgTokensPerReq float64
}

func (s *CostSummary) add(cost float64, in, out int) {
	s.TotalCost += cost
	s.TokensInput += in
	s.TokensOutput += out
	s.TotalTokens += in + out
	s.RequestCount++
	s.AvgCostPerReq = s.TotalCost / float64(s.RequestCount)
	s.AvgTokensPerReq = float64(s.TotalTokens) / float64(s.RequestCount)
}

// AgentCost 是单个 Agent 的成本汇总.
type AgentCost struct {
	Agent string
	CostSummary
}

// CostTracker 汇总进程内全部 LLM 请求的成本，并按 Agent 拆分.
type CostTracker struct {
	calculator *CostCalculator

	mu      sync.Mutex
	total   CostSummary
	byAgent map[string]*CostSummary
}

func NewCostTracker(calculator *CostCalculator) *CostTracker {
	return &CostTracker{calculator: calculator, byAgent: make(map[string]*CostSummary)}
}

// Track 记录一次请求并返回其成本. agent 为空时只计入总量.
func (t *CostTracker) Track(agent, provider, model string, tokensInput, tokensOutput int) float64 {
	cost := t.calculator.Calculate(provider, model, tokensInput, tokensOutput)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.add(cost, tokensInput, tokensOutput)
	if agent != "" {
		s, ok := t.byAgent[agent]
		if !ok {
			s = &CostSummary{}
			t.byAgent[agent] = s
		}
		s.add(cost, tokensInput, tokensOutput)
	}
	return cost
}

func (t *CostTracker) Summary() CostSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ByAgent 返回按成本降序排列的各 Agent 汇总.
func (t *CostTracker) ByAgent() []AgentCost {
	t.mu.Lock()
	out := make([]AgentCost, 0, len(t.byAgent))
	for name, s := range t.byAgent {
		out = append(out, AgentCost{Agent: name, CostSummary: *s})
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCost != out[j].TotalCost {
			return out[i].TotalCost > out[j].TotalCost
		}
		return out[i].Agent < out[j].Agent
	})
	return out
}

func (t *CostTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total = CostSummary{}
	t.byAgent = make(map[string]*CostSummary)
}
