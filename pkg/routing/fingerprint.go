package routing

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// Categorical buckets keep the fingerprint stable across small variations in
// token count, tool count and depth.
func tokenBucket(tokens int) string {
	switch {
	case tokens < 500:
		return "tiny"
	case tokens < 2000:
		return "small"
	case tokens < 8000:
		return "medium"
	default:
		return "large"
	}
}

func toolBucket(tools int) string {
	switch {
	case tools == 0:
		return "none"
	case tools <= 2:
		return "few"
	case tools <= 5:
		return "some"
	default:
		return "many"
	}
}

func depthBucket(depth int) string {
	switch {
	case depth == 0:
		return "none"
	case depth <= 2:
		return "shallow"
	case depth <= 4:
		return "medium"
	default:
		return "deep"
	}
}

// Fingerprint derives a deterministic key from the task's routing-relevant
// shape. Tasks with the same fingerprint share escalation and downgrade
// state.
func Fingerprint(ctx TaskContext) string {
	key := strings.Join([]string{
		ctx.TaskType,
		tokenBucket(ctx.TokenCount),
		toolBucket(len(ctx.ToolDependencies)),
		depthBucket(ctx.ACDepth),
	}, "|")

	h := fnv.New64a()
	h.Write([]byte(key))
	return fmt.Sprintf("%016x", h.Sum64())
}

// normalizeWords lowercases, strips punctuation, and splits on whitespace.
func normalizeWords(s string) map[string]struct{} {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return unicode.ToLower(r)
	}, s)

	out := make(map[string]struct{})
	for _, w := range strings.Fields(cleaned) {
		out[w] = struct{}{}
	}
	return out
}

// Similarity is the Jaccard index over normalized word sets. Two empty
// inputs are not similar.
func Similarity(a, b string) float64 {
	wa, wb := normalizeWords(a), normalizeWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	intersection := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			intersection++
		}
	}
	union := len(wa) + len(wb) - intersection
	return float64(intersection) / float64(union)
}
