package suggest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/notegraph/internal/ai"
	appErr "github.com/xxxsen/notegraph/internal/pkg/errors"
)

const (
	DefaultTagMarker = "ai:"
	defaultMaxTags   = 5
	maxTagRunes      = 32
)

var bareWordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// stopWords are structural or generic words that models tend to echo back
// instead of real topics.
var stopWords = map[string]struct{}{
	"json": {}, "array": {}, "null": {}, "nil": {}, "none": {}, "undefined": {},
	"true": {}, "false": {}, "tag": {}, "tags": {}, "string": {}, "strings": {},
	"object": {}, "list": {}, "item": {}, "items": {}, "keyword": {}, "keywords": {},
	"content": {}, "relevant": {}, "here": {}, "are": {}, "is": {}, "the": {},
	"and": {}, "or": {}, "a": {}, "an": {}, "of": {}, "to": {}, "in": {}, "for": {},
	"with": {}, "on": {}, "this": {}, "that": {}, "text": {}, "example": {},
}

// IsStopWord reports whether tag, with any marker removed, is in the
// stop-list. Matching ignores case.
func IsStopWord(tag string) bool {
	_, ok := stopWords[strings.ToLower(StripMarker(tag))]
	return ok
}

// StripMarker removes the default machine-suggested marker from tag.
func StripMarker(tag string) string {
	return stripMarker(tag, DefaultTagMarker)
}

func stripMarker(tag, marker string) string {
	tag = strings.TrimSpace(tag)
	if marker != "" && len(tag) >= len(marker) && strings.EqualFold(tag[:len(marker)], marker) {
		tag = tag[len(marker):]
	}
	return strings.TrimSpace(strings.TrimPrefix(tag, "#"))
}

// ParseTags reads a model response as a tag list. A structured string list
// wins; otherwise bare words are collected, deduplicated and capped.
func ParseTags(text string) []string {
	if list, ok := ai.ParseStringList(text); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	words := bareWordPattern.FindAllString(text, -1)
	out := make([]string, 0, defaultMaxTags)
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		key := strings.ToLower(w)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
		if len(out) == defaultMaxTags {
			break
		}
	}
	return out
}

// TagGenerator is satisfied by *ai.Manager.
type TagGenerator interface {
	SuggestTags(ctx context.Context, content string) (string, error)
}

type TagConfig struct {
	Marker  string
	MaxTags int
}

type TagSuggester struct {
	gen TagGenerator
	cfg TagConfig
}

func NewTagSuggester(gen TagGenerator, cfg TagConfig) *TagSuggester {
	if cfg.Marker == "" {
		cfg.Marker = DefaultTagMarker
	}
	if cfg.MaxTags <= 0 {
		cfg.MaxTags = defaultMaxTags
	}
	return &TagSuggester{gen: gen, cfg: cfg}
}

// Suggest asks the model for tags describing body and returns them with the
// marker applied. Stop words and tags already present in existing are
// removed. An empty result is not an error.
func (s *TagSuggester) Suggest(ctx context.Context, body string, existing []string) ([]string, error) {
	if strings.TrimSpace(body) == "" {
		return nil, appErr.ErrInvalid
	}
	if s.gen == nil {
		return nil, fmt.Errorf("%w: tag generator not configured", appErr.ErrUnavailable)
	}
	raw, err := s.gen.SuggestTags(ctx, body)
	if err != nil {
		if !errors.Is(err, appErr.ErrUnavailable) {
			err = fmt.Errorf("%w: suggest tags: %v", appErr.ErrUnavailable, err)
		}
		return nil, err
	}
	parsed := ParseTags(raw)
	seen := make(map[string]struct{}, len(existing)+len(parsed))
	for _, tag := range existing {
		seen[strings.ToLower(s.strip(tag))] = struct{}{}
	}
	out := make([]string, 0, s.cfg.MaxTags)
	for _, tag := range parsed {
		name := s.strip(tag)
		if name == "" || len([]rune(name)) > maxTagRunes || IsStopWord(name) {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s.cfg.Marker+name)
		if len(out) == s.cfg.MaxTags {
			break
		}
	}
	logutil.GetLogger(ctx).Debug("tag suggestion parsed",
		zap.Int("raw", len(parsed)), zap.Int("kept", len(out)))
	return out, nil
}

func (s *TagSuggester) strip(tag string) string {
	return StripMarker(stripMarker(tag, s.cfg.Marker))
}

// MergeTags appends suggested to existing, skipping tags whose unmarked
// name is already present.
func MergeTags(existing, suggested []string) []string {
	out := make([]string, 0, len(existing)+len(suggested))
	seen := make(map[string]struct{}, len(existing)+len(suggested))
	for _, list := range [][]string{existing, suggested} {
		for _, tag := range list {
			tag = strings.TrimSpace(tag)
			key := strings.ToLower(StripMarker(tag))
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, tag)
		}
	}
	return out
}
