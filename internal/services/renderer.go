package services

import (
	"math/rand"
	"strings"
)

// TemplateRenderer expands welcome-message patterns. Rendering is two
// passes over the text:
//
//  1. variant groups: every "{a|b|c}" is replaced by one alternative
//     chosen uniformly at random, each occurrence independently. A
//     brace group without a pipe is not a variant group and is left
//     untouched for the second pass.
//  2. placeholders: every "{name}" whose name is bound is replaced by
//     its value; unknown placeholders stay verbatim.
//
// Malformed input has defined behavior: an unclosed "{" makes the rest
// of the text literal, and a "{" inside a group terminates the outer
// group as literal text and restarts scanning at the inner brace.
// Rendering is pure apart from the randomness source.
type TemplateRenderer struct {
	pick func(n int) int
}

// NewTemplateRenderer creates a renderer backed by math/rand. Variant
// choice is anti-monotony, not security, so a strong source is not
// required.
func NewTemplateRenderer() *TemplateRenderer {
	return &TemplateRenderer{pick: rand.Intn}
}

// Render resolves variant groups, then substitutes bound placeholders.
func (r *TemplateRenderer) Render(template string, bindings map[string]string) string {
	return substitutePlaceholders(r.resolveVariants(template), bindings)
}

func (r *TemplateRenderer) resolveVariants(template string) string {
	var out strings.Builder
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			out.WriteString(template[i:])
			break
		}
		open += i
		out.WriteString(template[i:open])

		body, next, ok := scanGroup(template, open)
		if !ok {
			// Unclosed or nested brace: emit the "{" literally and
			// continue scanning right after it.
			out.WriteByte('{')
			i = open + 1
			continue
		}
		if !strings.Contains(body, "|") {
			// Ordinary placeholder, handled by the second pass.
			out.WriteString(template[open:next])
			i = next
			continue
		}

		alternatives := strings.Split(body, "|")
		out.WriteString(alternatives[r.pick(len(alternatives))])
		i = next
	}
	return out.String()
}

// scanGroup reads a brace group starting at template[open] == '{'. It
// returns the group body, the index just past the closing brace, and
// whether a well-formed non-nested group was found.
func scanGroup(template string, open int) (body string, next int, ok bool) {
	for j := open + 1; j < len(template); j++ {
		switch template[j] {
		case '}':
			return template[open+1 : j], j + 1, true
		case '{':
			return "", 0, false
		}
	}
	return "", 0, false
}

func substitutePlaceholders(text string, bindings map[string]string) string {
	var out strings.Builder
	i := 0
	for i < len(text) {
		open := strings.IndexByte(text[i:], '{')
		if open < 0 {
			out.WriteString(text[i:])
			break
		}
		open += i
		out.WriteString(text[i:open])

		body, next, ok := scanGroup(text, open)
		if !ok {
			out.WriteByte('{')
			i = open + 1
			continue
		}
		if value, bound := bindings[body]; bound {
			out.WriteString(value)
		} else {
			out.WriteString(text[open:next])
		}
		i = next
	}
	return out.String()
}
