// Package llm implements the verdict/lesson LLM capability behind the
// check pipeline and classifier scoring. Callers
// never see a specific vendor: they depend on Provider, and a Selector
// fails over between a primary and secondary provider process-wide.
package llm

import "context"

// Temperature is fixed for every verdict/lesson call; verdicts need
// stability across retries more than creativity.
const Temperature = 0.1

// Provider is a duck-typed LLM capability: anything that can turn a prompt
// into text at a given temperature, and report whether it is currently
// reachable.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
	Available(ctx context.Context) bool
}
