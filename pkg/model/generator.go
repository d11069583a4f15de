package model

import (
	"context"
	"strings"

	"github.com/odvcencio/miser/pkg/task"
)

const systemPrompt = `You are an expert software engineer tasked with resolving GitHub issues.

Your goal is to:
1. Understand the issue thoroughly
2. Locate the relevant code in the repository
3. Implement a fix that resolves the issue
4. Generate a git diff patch in unified diff format

The patch should:
- Be in unified diff format (diff --git a/... b/...)
- Include proper context lines (usually 3 lines before/after changes)
- Modify only what's necessary to fix the issue
- Be syntactically correct and ready to apply

Respond with ONLY the patch, no explanations or markdown formatting.`

// Generator produces candidate patches for tasks through a completion client.
type Generator struct {
	client              *Client
	model               string
	temperature         float64
	maxCompletionTokens int
}

// NewGenerator wires a completion client to the patch generation prompts.
func NewGenerator(client *Client, model string, temperature float64, maxCompletionTokens int) *Generator {
	return &Generator{
		client:              client,
		model:               model,
		temperature:         temperature,
		maxCompletionTokens: maxCompletionTokens,
	}
}

// GeneratePatch requests one candidate patch for a task. The returned patch
// has markdown fences stripped but is otherwise unmodified.
func (g *Generator) GeneratePatch(ctx context.Context, t *task.Task) (string, Usage, error) {
	resp, err := g.client.ChatCompletion(ctx, ChatRequest{
		Model: g.model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(t)},
		},
		Temperature:         g.temperature,
		MaxCompletionTokens: g.maxCompletionTokens,
	})
	if err != nil {
		return "", Usage{}, err
	}

	patch := CleanPatch(resp.Choices[0].Message.Content)
	return patch, resp.Usage, nil
}

func userPrompt(t *task.Task) string {
	var b strings.Builder
	b.WriteString("Repository: ")
	b.WriteString(t.Repo)
	b.WriteString("\n\nIssue to fix:\n")
	b.WriteString(t.ProblemStatement)
	b.WriteString("\n\nGenerate a git diff patch that fixes this issue.")
	return b.String()
}

// CleanPatch strips markdown code fences the model sometimes wraps a patch
// in, despite instructions. Fenced content wins over surrounding prose.
func CleanPatch(raw string) string {
	patch := strings.TrimSpace(raw)

	if idx := strings.Index(patch, "```diff"); idx >= 0 {
		patch = patch[idx+len("```diff"):]
		if end := strings.Index(patch, "```"); end >= 0 {
			patch = patch[:end]
		}
	} else if idx := strings.Index(patch, "```"); idx >= 0 {
		patch = patch[idx+len("```"):]
		if end := strings.Index(patch, "```"); end >= 0 {
			patch = patch[:end]
		}
	}

	return strings.TrimSpace(patch)
}
