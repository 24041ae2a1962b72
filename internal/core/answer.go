package core

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const (
	// withContextTemplate answers from retrieved passages.
	withContextTemplate = `You are a helpful AI assistant. Using the information contained in the context, greet the user and give a comprehensive answer to the question. Respond only to the question asked; the response should be concise and relevant to the question.

Context:
{context}
---
Now here is the question you need to answer.
Question: {question}`

	// noContextTemplate handles queries with no relevant passages: the
	// assistant politely declines and redirects the user to transport
	// services topics.
	noContextTemplate = `You are a helpful AI assistant. The assistant is unable to answer the question given by the user. Politely inform the user that you cannot answer the question, and ask them to ask questions regarding the transport services only.

Now here is the question.
Question: {question}`

	// questionPreamble is prepended to every question before substitution.
	questionPreamble = "greet me by saying hello and answer the question. "
)

// Generator produces a text continuation for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answerer fills one of two prompt templates, depending on whether any
// context was retrieved, and runs it through the generator.
type Answerer struct {
	generator Generator
	logger    *zap.Logger
}

func NewAnswerer(generator Generator, logger *zap.Logger) *Answerer {
	return &Answerer{generator: generator, logger: logger}
}

// Answer generates a reply to the question. An empty contextText selects
// the declining template. Generator errors propagate to the caller
// unmodified; there is no fallback answer.
func (a *Answerer) Answer(ctx context.Context, contextText, question string) (string, error) {
	question = questionPreamble + question

	var prompt string
	if contextText == "" {
		prompt = strings.ReplaceAll(noContextTemplate, "{question}", question)
	} else {
		prompt = strings.NewReplacer(
			"{context}", contextText,
			"{question}", question,
		).Replace(withContextTemplate)
	}

	a.logger.Debug("generating answer",
		zap.Bool("with_context", contextText != ""),
		zap.Int("prompt_len", len(prompt)),
	)
	return a.generator.Generate(ctx, prompt)
}
