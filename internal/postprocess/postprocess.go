// Package postprocess removes common LLM artifacts from model output.
//
// Generator output goes through CleanHTML before it is evaluated; evaluator
// output goes through StripFences before it is decoded.
package postprocess

import (
	"regexp"
	"strings"
)

// CleanHTML removes LLM artifacts from a generated listing in three phases
// and returns the trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//  3. Code fence removal
func CleanHTML(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	text = StripFences(text)
	return strings.TrimSpace(text)
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to. Each pattern is anchored to the start of the string
// and requires a colon to reduce false positives on legitimate content.
var echoPatterns = []*regexp.Regexp{
	// "Here is / Here's [the] [complete|generated] HTML [listing|page|document]:"
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the| your)? (?:complete |generated |full )?(?:html)?\s*(?:listing|page|document|code)?\s*:`),
	// "Certainly / Sure / Of course[,] here is [the] HTML ...:"
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.!]? here(?:'s| is)(?: the| your)? (?:complete |generated |full )?(?:html)?\s*(?:listing|page|document|code)?\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 3: code fences ---

var (
	// openingFenceRe matches a leading ``` or ~~~ fence. An info string
	// (```json, ```html) must be ended by a newline or a space, so a fence
	// written on one line with its content is recognised too.
	openingFenceRe = regexp.MustCompile("^(?:```|~~~)[ \t]*(?:[A-Za-z][A-Za-z0-9_+-]*(?:[ \t]*\r?\n|[ \t]+))?")
	closingFenceRe = regexp.MustCompile("[ \t]*(?:```|~~~)[ \t]*$")
)

// StripFences removes a leading and a trailing code fence, either of which
// may be missing, and the whitespace around them. Text without fences is
// only trimmed.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if loc := openingFenceRe.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	if loc := closingFenceRe.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.TrimSpace(text)
}
