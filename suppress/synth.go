package suppress

import (
	"regexp"
	"sort"
	"strings"
)

// Phrase families: finding descriptions per service that recur often
// enough to deserve a canned, well-tested pattern instead of a
// synthesized one.
type phraseFamily struct {
	contains string
	pattern  string
}

var phraseFamilies = map[string][]phraseFamily{
	"iam": {
		{contains: "administrator access", pattern: `administrator\s+access`},
		{contains: "all iam permissions", pattern: `all\s+iam\s+permissions`},
		{contains: "privilege escalation", pattern: `privilege[-\s]+escalation`},
		{contains: "passing roles", pattern: `passing\s+roles`},
	},
	"s3": {
		{contains: "public access", pattern: `public\s+access`},
		{contains: "public read", pattern: `public\s+read`},
		{contains: "bucket policy", pattern: `bucket\s+polic(y|ies)`},
	},
	"lambda": {
		{contains: "function invocation", pattern: `function\s+invocation`},
		{contains: "invoked by any principal", pattern: `invoked\s+by\s+any\s+principal`},
	},
}

// stopWords are filtered before phrase extraction. Short
// security-domain terms are retained regardless of length.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"are": {}, "can": {}, "not": {}, "has": {}, "have": {}, "from": {},
	"into": {}, "over": {}, "when": {}, "which": {}, "without": {},
	"allows": {}, "allowed": {}, "grants": {}, "granted": {},
	"policy": {}, "statement": {}, "been": {}, "must": {}, "should": {},
}

var securityTerms = map[string]struct{}{
	"iam": {}, "s3": {}, "sts": {}, "kms": {}, "mfa": {}, "acl": {},
	"arn": {}, "api": {}, "aws": {}, "ec2": {}, "vpc": {}, "sns": {},
	"sqs": {}, "key": {}, "ssl": {}, "tls": {},
}

// Phrase window bounds and how many phrases a synthesized pattern keeps.
const (
	minPhraseWords = 2
	maxPhraseWords = 4
	maxPhrases     = 3
)

// SynthesizePattern turns an approved false-positive description into a
// whitelist pattern. Known phrase families return a canned pattern;
// otherwise the three longest 2-4 word phrases are extracted, escaped
// and joined with flexible whitespace. An empty extraction falls back
// to the whole escaped description.
func SynthesizePattern(service, description string) string {
	lower := strings.ToLower(description)

	for _, family := range phraseFamilies[service] {
		if strings.Contains(lower, family.contains) {
			return family.pattern
		}
	}

	words := extractWords(lower)
	phrases := longestPhrases(words)
	if len(phrases) == 0 {
		return flexibleWhitespace(regexp.QuoteMeta(strings.TrimSpace(description)))
	}

	escaped := make([]string, len(phrases))
	for i, phrase := range phrases {
		parts := make([]string, len(phrase))
		for j, w := range phrase {
			parts[j] = regexp.QuoteMeta(w)
		}
		escaped[i] = strings.Join(parts, `\s+`)
	}
	return strings.Join(escaped, "|")
}

// extractWords keeps non-stop-words, retaining short security-domain
// terms that a pure length filter would drop.
func extractWords(lower string) []string {
	var words []string
	for _, w := range strings.Fields(lower) {
		w = trimWord(w)
		if w == "" {
			continue
		}
		if _, isTerm := securityTerms[w]; isTerm {
			words = append(words, w)
			continue
		}
		if _, isStop := stopWords[w]; isStop || len(w) <= significantWordLen {
			continue
		}
		words = append(words, w)
	}
	return words
}

// longestPhrases returns the longest contiguous 2-4 word windows by
// character length, at most maxPhrases of them, without overlapping
// duplicates.
func longestPhrases(words []string) [][]string {
	var candidates [][]string
	for size := minPhraseWords; size <= maxPhraseWords; size++ {
		for i := 0; i+size <= len(words); i++ {
			candidates = append(candidates, words[i:i+size])
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return phraseLen(candidates[i]) > phraseLen(candidates[j])
	})

	var phrases [][]string
	seen := make(map[string]struct{})
	for _, c := range candidates {
		key := strings.Join(c, " ")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		phrases = append(phrases, c)
		if len(phrases) == maxPhrases {
			break
		}
	}
	return phrases
}

func phraseLen(phrase []string) int {
	total := 0
	for _, w := range phrase {
		total += len(w)
	}
	return total
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func flexibleWhitespace(escaped string) string {
	return whitespaceRun.ReplaceAllString(escaped, `\s+`)
}
