// Package tokenizer counts prompt tokens so coaching agents can trim
// conversation history to the model's context window.
//
// ForModel picks a tiktoken encoding for OpenAI models and falls back to a
// script-aware estimator for everything else. FitMessages keeps leading
// system prompts and the newest turns that fit a budget.
package tokenizer
