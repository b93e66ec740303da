package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ManagerConfig struct {
	Timeout       int
	MaxInputChars int
}

// PageDigest is the compact form of a note sent to the generator when it is
// asked to rank pages directly.
type PageDigest struct {
	ID      string
	Title   string
	Content string
}

const pageDigestChars = 200

// Manager builds prompts for the hosted text-generation service. It returns
// raw model text; parsing is left to the caller.
type Manager struct {
	generator IGenerator
	tagger    IGenerator
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, tagger IGenerator, cfg ManagerConfig) *Manager {
	if tagger == nil {
		tagger = generator
	}
	return &Manager{generator: generator, tagger: tagger, cfg: cfg}
}

func (m *Manager) SuggestTags(ctx context.Context, content string) (string, error) {
	prompt := fmt.Sprintf(`Analyze the following content and generate 3-5 relevant tags.
- Tags should be short (1-3 words) and specific to the topic.
- Use the same language as the content.
- Return only a JSON array of tag strings. No extra text.

CONTENT:
%s`, m.clip(content))
	return m.generateText(ctx, m.tagger, prompt)
}

func (m *Manager) RankPages(ctx context.Context, query string, pages []PageDigest) (string, error) {
	lines := make([]string, 0, len(pages))
	for _, p := range pages {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", p.ID, p.Title, truncateRunes(p.Content, pageDigestChars)))
	}
	prompt := fmt.Sprintf(`Given the following query and a list of pages, return a JSON array of objects with "id" and "relevance" (a number between 0 and 1).
Only include pages that are related to the query.

Query: %q

Pages (format: [id] title: content...):
%s

Return only the JSON array, no other text.`, m.clip(query), strings.Join(lines, "\n"))
	return m.generateText(ctx, m.generator, prompt)
}

func (m *Manager) Answer(ctx context.Context, question string, workspace string) (string, error) {
	prompt := fmt.Sprintf(`Answer the following question based on the provided context from the user's notes.
If the context doesn't contain enough information, say so.

Question: %s

Context:
%s`, strings.TrimSpace(question), m.clip(workspace))
	return m.generateText(ctx, m.generator, prompt)
}

func (m *Manager) Generate(ctx context.Context, description string) (string, error) {
	prompt := fmt.Sprintf(`You are a helpful writer.
Generate markdown content based on the description below.
- Use clear sections and headings when appropriate.
- Output ONLY the generated markdown.

DESCRIPTION:
%s`, m.clip(description))
	return m.generateText(ctx, m.generator, prompt)
}

func (m *Manager) generateText(ctx context.Context, gen IGenerator, prompt string) (string, error) {
	if gen == nil {
		return "", fmt.Errorf("%w: generator not configured", ErrUnavailable)
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty ai response", ErrUnavailable)
	}
	return text, nil
}

func (m *Manager) clip(s string) string {
	s = strings.TrimSpace(s)
	if m.cfg.MaxInputChars > 0 {
		return truncateRunes(s, m.cfg.MaxInputChars)
	}
	return s
}

func (m *Manager) MaxInputChars() int {
	return m.cfg.MaxInputChars
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
