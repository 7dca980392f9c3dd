// Package stream implements the embedded tool-call protocol the loop
// controller parses out of the model's token stream: a `[TOOL:<name>]`
// sentinel followed by two fenced regions containing a JSON input object.
package stream

import (
	"encoding/json"
	"strings"
)

const sentinel = "[TOOL:"

// altSentinelPrefix matches the alternate ```tool:<name> {...}``` syntax.
const altSentinelPrefix = "```tool:"

// ToolCall is a parsed tool invocation extracted from the stream.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

// Interceptor consumes tokens one at a time, forwarding prose to the caller
// via Emit and detecting an embedded tool call. Once a tool call is
// successfully parsed, no further bytes are forwarded — the caller is
// expected to abort the upstream stream.
type Interceptor struct {
	Emit func(text string)

	buffer       strings.Builder
	toolBuf      strings.Builder
	inTool       bool
	fenceCount   int
	toolName     string
	usingAltForm bool
	done         bool
	result       *ToolCall
}

// New builds an Interceptor that forwards prose via emit.
func New(emit func(text string)) *Interceptor {
	if emit == nil {
		emit = func(string) {}
	}
	return &Interceptor{Emit: emit}
}

// Feed appends one token (or chunk) of the raw stream. It returns true once a
// tool call has been fully parsed, at which point the caller should abort the
// upstream stream and call Result.
func (ic *Interceptor) Feed(token string) bool {
	if ic.done {
		return true
	}
	ic.buffer.WriteString(token)

	if !ic.inTool {
		combined := ic.buffer.String()
		if idx := strings.Index(combined, sentinel); idx >= 0 {
			ic.Emit(combined[:idx])
			ic.enterToolMode(combined[idx:], false)
			ic.buffer.Reset()
			return ic.done
		}
		if idx := strings.Index(combined, altSentinelPrefix); idx >= 0 {
			ic.Emit(combined[:idx])
			ic.enterToolMode(combined[idx:], true)
			ic.buffer.Reset()
			return ic.done
		}
		// No sentinel seen yet; forward everything except a trailing partial
		// prefix of the sentinel so we don't leak a half-written tag to the UI.
		safe := longestSafePrefix(combined, sentinel, altSentinelPrefix)
		if safe > 0 {
			ic.Emit(combined[:safe])
			ic.buffer.Reset()
			ic.buffer.WriteString(combined[safe:])
		}
		return false
	}

	ic.toolBuf.WriteString(token)
	ic.fenceCount = strings.Count(ic.toolBuf.String(), "```")
	if ic.fenceCount >= 2 {
		ic.attemptParse()
	}
	return ic.done
}

func (ic *Interceptor) enterToolMode(rest string, alt bool) {
	ic.inTool = true
	ic.usingAltForm = alt
	ic.toolBuf.Reset()
	ic.toolBuf.WriteString(rest)
	if alt {
		// "```tool:<name> {...}" — name runs up to the first space or newline.
		body := strings.TrimPrefix(rest, altSentinelPrefix)
		if sp := strings.IndexAny(body, " \n"); sp >= 0 {
			ic.toolName = strings.TrimSpace(body[:sp])
		}
	} else {
		body := strings.TrimPrefix(rest, sentinel)
		if end := strings.Index(body, "]"); end >= 0 {
			ic.toolName = strings.TrimSpace(body[:end])
		}
	}
	ic.fenceCount = strings.Count(ic.toolBuf.String(), "```")
	if ic.fenceCount >= 2 {
		ic.attemptParse()
	}
}

// attemptParse tries to extract tool name and JSON body once two fences have
// been observed. On success it finalizes the call and marks done. On
// failure it degrades to prose: the buffered text is flushed verbatim and
// tool mode is cleared so plain scanning resumes.
func (ic *Interceptor) attemptParse() {
	raw := ic.toolBuf.String()

	// A [TOOL:name] sentinel whose fenced body opens as ```tool:<name> mixes
	// the two syntaxes; it is rejected rather than guessed at.
	if !ic.usingAltForm {
		if f := strings.Index(raw, "```"); f >= 0 && strings.HasPrefix(raw[f+3:], "tool:") {
			ic.degradeToProse(raw)
			return
		}
	}

	name := ic.toolName
	body, ok := extractJSONBody(raw)
	if !ok || name == "" {
		ic.degradeToProse(raw)
		return
	}

	var input map[string]interface{}
	if err := json.Unmarshal([]byte(body), &input); err != nil {
		ic.degradeToProse(raw)
		return
	}

	ic.result = &ToolCall{Name: name, Input: input}
	ic.done = true
}

func (ic *Interceptor) degradeToProse(raw string) {
	ic.Emit(raw)
	ic.inTool = false
	ic.toolName = ""
	ic.toolBuf.Reset()
	ic.fenceCount = 0
}

// extractJSONBody pulls the content of the first fenced ``` ... ``` region
// (skipping an optional "json" language tag on the opening fence).
func extractJSONBody(raw string) (string, bool) {
	first := strings.Index(raw, "```")
	if first == -1 {
		return "", false
	}
	afterFirst := first + 3
	second := strings.Index(raw[afterFirst:], "```")
	if second == -1 {
		return "", false
	}
	inner := raw[afterFirst : afterFirst+second]
	// Drop a leading language/form tag ("json", or "tool:<name>" in the
	// alternate syntax) by slicing from the first '{' to the last '}'.
	start := strings.IndexByte(inner, '{')
	end := strings.LastIndexByte(inner, '}')
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return strings.TrimSpace(inner[start : end+1]), true
}

// longestSafePrefix returns the length of the prefix of s that is guaranteed
// not to contain the start of any needle, so it is safe to forward without
// risk of splitting a sentinel across Feed calls.
func longestSafePrefix(s string, needles ...string) int {
	safe := len(s)
	for _, n := range needles {
		for l := 1; l < len(n) && l <= len(s); l++ {
			if strings.HasSuffix(s, n[:l]) {
				if len(s)-l < safe {
					safe = len(s) - l
				}
			}
		}
	}
	return safe
}

// Done reports whether a tool call has been parsed.
func (ic *Interceptor) Done() bool { return ic.done }

// Result returns the parsed tool call, or nil if the stream ended without one.
func (ic *Interceptor) Result() *ToolCall { return ic.result }

// Flush is called when the upstream stream ends without ever completing a
// tool call's two fences; any buffered prose (plain or partially-collected
// tool-mode text that never closed) is forwarded as-is so nothing is lost.
func (ic *Interceptor) Flush() {
	if ic.done {
		return
	}
	if ic.inTool {
		ic.Emit(ic.toolBuf.String())
		ic.inTool = false
		ic.toolBuf.Reset()
	}
	if ic.buffer.Len() > 0 {
		ic.Emit(ic.buffer.String())
		ic.buffer.Reset()
	}
}
