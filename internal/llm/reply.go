// ABOUTME: Layered parser for best-effort JSON replies from generative models
// ABOUTME: Strips fences, extracts the outermost JSON value, repairs, then parses
package llm

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

// ParseStage records which layer of the parser produced valid JSON
type ParseStage string

const (
	StageDirect    ParseStage = "direct"
	StageFenced    ParseStage = "fenced"
	StageExtracted ParseStage = "extracted"
	StageRepaired  ParseStage = "repaired"
	StageFailed    ParseStage = "failed"
)

// ParseResult is the outcome of parsing a model reply. JSON is only set
// when OK reports true.
type ParseResult struct {
	Raw   string
	JSON  string
	Stage ParseStage
}

// OK reports whether a valid JSON value was recovered
func (r ParseResult) OK() bool {
	return r.Stage != StageFailed && r.JSON != ""
}

// Get returns the value at a gjson path such as "quiz.0.options"
func (r ParseResult) Get(path string) gjson.Result {
	if !r.OK() {
		return gjson.Result{}
	}
	return gjson.Get(r.JSON, path)
}

// Into unmarshals the recovered JSON into v
func (r ParseResult) Into(v any) error {
	if !r.OK() {
		return errUnparseable
	}
	return json.Unmarshal([]byte(r.JSON), v)
}

type parseError string

func (e parseError) Error() string { return string(e) }

const errUnparseable = parseError("reply is not parseable JSON")

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// ParseReply recovers a JSON object or array from free-form model output
func ParseReply(raw string) ParseResult {
	res := ParseResult{Raw: raw, Stage: StageFailed}
	text := strings.TrimSpace(raw)
	if text == "" {
		return res
	}

	if isJSONContainer(text) {
		res.JSON, res.Stage = text, StageDirect
		return res
	}

	if m := fencePattern.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if isJSONContainer(inner) {
			res.JSON, res.Stage = inner, StageFenced
			return res
		}
		text = inner
	} else if i := strings.Index(text, "```"); i >= 0 {
		// Unterminated fence, usually a truncated reply
		text = strings.TrimSpace(strings.TrimLeftFunc(text[i+3:], unicode.IsLetter))
	}

	// Prose may carry braces of its own, so each opener is a candidate
	for start := strings.IndexAny(text, "{["); start >= 0; {
		candidate := outermostValue(text[start:])
		if isJSONContainer(candidate) {
			res.JSON, res.Stage = candidate, StageExtracted
			return res
		}
		if repaired := repairJSON(candidate); isJSONContainer(repaired) {
			res.JSON, res.Stage = repaired, StageRepaired
			return res
		}
		next := strings.IndexAny(text[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return res
}

// Decode parses raw and unmarshals it into a T
func Decode[T any](raw string) (T, ParseResult) {
	var v T
	res := ParseReply(raw)
	if !res.OK() {
		return v, res
	}
	if err := res.Into(&v); err != nil {
		var zero T
		res.Stage = StageFailed
		res.JSON = ""
		return zero, res
	}
	return v, res
}

func isJSONContainer(s string) bool {
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return gjson.Valid(s)
}

// outermostValue returns the text from the first '{' or '[' to its balanced
// closer. An unbalanced tail is returned as is for the repair stage.
func outermostValue(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

var smartQuotes = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")

// repairJSON fixes single-quoted strings, Python literals, trailing commas,
// smart quotes and missing closers.
func repairJSON(s string) string {
	s = smartQuotes.Replace(s)

	var b strings.Builder
	var stack []byte
	var quote byte
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
				if quote == '\'' && c == '\'' {
					// \' inside a single-quoted string is a plain apostrophe
					str := b.String()
					b.Reset()
					b.WriteString(str[:len(str)-1])
				}
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == quote:
				quote = 0
				b.WriteByte('"')
			case c == '"' && quote == '\'':
				b.WriteString(`\"`)
			case c == '\n':
				b.WriteString(`\n`)
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"', '\'':
			quote = c
			b.WriteByte('"')
		case '{':
			stack = append(stack, '}')
			b.WriteByte(c)
		case '[':
			stack = append(stack, ']')
			b.WriteByte(c)
		case '}', ']':
			trimTrailingComma(&b)
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			b.WriteByte(c)
		default:
			if word, ok := pythonLiteral(s[i:]); ok {
				b.WriteString(word.json)
				i += len(word.py) - 1
				continue
			}
			b.WriteByte(c)
		}
	}

	if quote != 0 {
		b.WriteByte('"')
	}
	trimTrailingComma(&b)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

type literal struct{ py, json string }

var pythonLiterals = []literal{{"True", "true"}, {"False", "false"}, {"None", "null"}}

func pythonLiteral(s string) (literal, bool) {
	for _, l := range pythonLiterals {
		if strings.HasPrefix(s, l.py) {
			rest := s[len(l.py):]
			if rest == "" || !isIdentByte(rest[0]) {
				return l, true
			}
		}
	}
	return literal{}, false
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func trimTrailingComma(b *strings.Builder) {
	str := b.String()
	trimmed := strings.TrimRightFunc(str, unicode.IsSpace)
	if strings.HasSuffix(trimmed, ",") {
		b.Reset()
		b.WriteString(trimmed[:len(trimmed)-1])
	}
}
