// Package iniconf edits fail2ban style INI files line by line. Only the lines
// being changed are rewritten; comments, ordering and spacing elsewhere are
// left exactly as found.
package iniconf

import (
	"strings"
)

// Section is one parsed "[name]" block. Keys are lower-cased; continuation
// lines are joined to their key's value with "\n".
type Section struct {
	Name   string
	Values map[string]string
	Keys   []string
}

func splitLines(content string) ([]string, bool) {
	if content == "" {
		return nil, false
	}
	trailing := strings.HasSuffix(content, "\n")
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n"), trailing
}

func joinLines(lines []string, trailing bool) string {
	out := strings.Join(lines, "\n")
	if trailing {
		out += "\n"
	}
	return out
}

func sectionName(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if len(t) >= 2 && t[0] == '[' && t[len(t)-1] == ']' {
		return strings.TrimSpace(t[1 : len(t)-1]), true
	}
	return "", false
}

func isContinuation(line string) bool {
	return line != "" && (line[0] == ' ' || line[0] == '\t') && strings.TrimSpace(line) != ""
}

func keyValue(line string) (string, string, bool) {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return "", "", false
	}
	t := strings.TrimSpace(line)
	if t == "" || t[0] == '#' || t[0] == ';' {
		return "", "", false
	}
	i := delimiter(t)
	if i < 0 {
		return "", "", false
	}
	return strings.ToLower(strings.TrimSpace(t[:i])), strings.TrimSpace(t[i+1:]), true
}

// delimiter returns the index of the first "=" or ":" in line, or -1. Both are
// accepted as key separators, as in Python's configparser.
func delimiter(line string) int {
	return strings.IndexAny(line, "=:")
}

// bounds returns the header index of section and the index one past its last
// line. header is -1 when the section does not exist.
func bounds(lines []string, section string) (header, end int) {
	header = -1
	for i, l := range lines {
		name, ok := sectionName(l)
		if !ok {
			continue
		}
		if header >= 0 {
			return header, i
		}
		if strings.EqualFold(name, section) {
			header = i
		}
	}
	return header, len(lines)
}

// keySpan returns the lines [start, stop) holding key and its continuations.
func keySpan(lines []string, from, to int, key string) (int, int) {
	key = strings.ToLower(key)
	for i := from; i < to; i++ {
		if k, _, ok := keyValue(lines[i]); ok && k == key {
			j := i + 1
			for j < to && isContinuation(lines[j]) {
				j++
			}
			return i, j
		}
	}
	return -1, -1
}

// rewrite keeps the "key  =" (or "key:") prefix of line and swaps the value.
func rewrite(line, value string) string {
	i := delimiter(line)
	prefix := line[:i+1]
	if i+1 < len(line) && line[i+1] != ' ' && line[i+1] != '\t' {
		return prefix + value
	}
	return prefix + " " + value
}

func splice(lines []string, start, stop int, repl ...string) []string {
	out := make([]string, 0, len(lines)-(stop-start)+len(repl))
	out = append(out, lines[:start]...)
	out = append(out, repl...)
	return append(out, lines[stop:]...)
}

// Set writes "key = value" inside section. An existing key line (and its
// continuation lines) is replaced in place, keeping the original spacing
// around "="; otherwise the line goes after the
// last non-blank line of the section. Keys separated by ":" are matched too. A missing section is appended.
func Set(content, section, key, value string) string {
	lines, trailing := splitLines(content)
	line := key + " = " + value

	header, end := bounds(lines, section)
	if header < 0 {
		if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) != "" {
			lines = append(lines, "")
		}
		lines = append(lines, "["+section+"]", line)
		return joinLines(lines, true)
	}

	if start, stop := keySpan(lines, header+1, end, key); start >= 0 {
		return joinLines(splice(lines, start, stop, rewrite(lines[start], value)), trailing)
	}

	at := end
	for at > header+1 && strings.TrimSpace(lines[at-1]) == "" {
		at--
	}
	lines = splice(lines, at, at, line)
	if at == len(lines)-1 {
		trailing = true
	}
	return joinLines(lines, trailing)
}

// Replace rewrites key inside section only when the key is already present.
// The boolean reports whether anything matched.
func Replace(content, section, key, value string) (string, bool) {
	lines, trailing := splitLines(content)
	header, end := bounds(lines, section)
	if header < 0 {
		return content, false
	}
	start, stop := keySpan(lines, header+1, end, key)
	if start < 0 {
		return content, false
	}
	return joinLines(splice(lines, start, stop, rewrite(lines[start], value)), trailing), true
}

// Get returns the value of key inside section.
func Get(content, section, key string) (string, bool) {
	for _, s := range Parse(content) {
		if strings.EqualFold(s.Name, section) {
			v, ok := s.Values[strings.ToLower(key)]
			return v, ok
		}
	}
	return "", false
}

// Parse reads every section in order. Keys outside any section are ignored.
func Parse(content string) []Section {
	lines, _ := splitLines(content)
	var out []Section
	cur := -1
	lastKey := ""
	for _, l := range lines {
		if name, ok := sectionName(l); ok {
			out = append(out, Section{Name: name, Values: map[string]string{}})
			cur = len(out) - 1
			lastKey = ""
			continue
		}
		if cur < 0 {
			continue
		}
		sec := &out[cur]
		if isContinuation(l) && lastKey != "" {
			v := sec.Values[lastKey]
			if v != "" {
				v += "\n"
			}
			sec.Values[lastKey] = v + strings.TrimSpace(l)
			continue
		}
		k, v, ok := keyValue(l)
		if !ok {
			lastKey = ""
			continue
		}
		if _, seen := sec.Values[k]; !seen {
			sec.Keys = append(sec.Keys, k)
		}
		sec.Values[k] = v
		lastKey = k
	}
	return out
}
