package scaffold

import (
	"regexp"
	"strings"
)

// ParsedACR is the result of parsing one External-Process scaffold response
// in the "ACR" format: a THOUGHT section followed by an ACTION section.
//
// The line-scanning/recovery approach here is adapted from a ReAct-style
// four-section parser (Thought/Action/Action Input/Final Answer) down to
// this scaffold's two-section grammar: THOUGHT and ACTION only, with ACTION
// carrying its own inline arguments rather than a separate Action Input
// block.
type ParsedACR struct {
	Thought     string
	ActionName  string
	ActionArgs  string
	HasThought  bool
	HasAction   bool
}

var (
	thoughtHeaderPattern = regexp.MustCompile(`(?i)^\s*THOUGHT\s*:\s*(.*)$`)
	actionHeaderPattern  = regexp.MustCompile(`(?i)^\s*ACTION\s*:\s*(.*)$`)
	midlineThought       = regexp.MustCompile(`(?i)THOUGHT\s*:\s*`)
	midlineAction        = regexp.MustCompile(`(?i)ACTION\s*:\s*`)
	actionNamePattern    = regexp.MustCompile(`(?s)^([\w.\-]+)\s*(.*)$`)
)

// ParseACR extracts the THOUGHT and ACTION sections from a scaffold
// response. Either marker missing is a ParseError. Action arguments may
// span multiple lines and run to the next top-level marker or end of text.
func ParseACR(text string) (*ParsedACR, error) {
	lines := strings.Split(text, "\n")

	var (
		result       ParsedACR
		current      *string // points at the buffer currently being built (thought or action)
		thoughtBuf   strings.Builder
		actionBuf    strings.Builder
	)

	setSection := func(name string, firstLine string) {
		switch name {
		case "thought":
			result.HasThought = true
			thoughtBuf.Reset()
			if firstLine != "" {
				thoughtBuf.WriteString(firstLine)
			}
			current = &result.Thought
		case "action":
			result.HasAction = true
			actionBuf.Reset()
			if firstLine != "" {
				actionBuf.WriteString(firstLine)
			}
			current = &result.ActionName
		}
	}

	appendCurrent := func(line string) {
		switch current {
		case &result.Thought:
			if thoughtBuf.Len() > 0 {
				thoughtBuf.WriteString("\n")
			}
			thoughtBuf.WriteString(line)
		case &result.ActionName:
			if actionBuf.Len() > 0 {
				actionBuf.WriteString("\n")
			}
			actionBuf.WriteString(line)
		}
	}

	for _, line := range lines {
		if m := thoughtHeaderPattern.FindStringSubmatch(line); m != nil {
			setSection("thought", m[1])
			continue
		}
		if m := actionHeaderPattern.FindStringSubmatch(line); m != nil {
			setSection("action", m[1])
			continue
		}

		// Mid-line recovery: a header buried after other text on the same line.
		if loc := midlineThought.FindStringIndex(line); loc != nil {
			appendCurrent(strings.TrimSpace(line[:loc[0]]))
			setSection("thought", strings.TrimSpace(line[loc[1]:]))
			continue
		}
		if loc := midlineAction.FindStringIndex(line); loc != nil {
			appendCurrent(strings.TrimSpace(line[:loc[0]]))
			setSection("action", strings.TrimSpace(line[loc[1]:]))
			continue
		}

		if current != nil {
			appendCurrent(line)
		}
	}

	result.Thought = strings.TrimSpace(thoughtBuf.String())
	actionLine := strings.TrimSpace(actionBuf.String())

	if !result.HasThought || !result.HasAction {
		return &result, &ParseError{Reason: "missing THOUGHT or ACTION marker"}
	}

	name, args := splitActionLine(actionLine)
	result.ActionName = name
	result.ActionArgs = args

	if result.ActionName == "" {
		return &result, &ParseError{Reason: "ACTION marker present but no tool name found"}
	}

	return &result, nil
}

// splitActionLine separates the tool name from its argument text. The name
// is the first whitespace-delimited token (possibly dotted, e.g.
// "fs.read"); everything after is the argument span, which may itself
// contain newlines already joined by the caller.
func splitActionLine(actionLine string) (name, args string) {
	actionLine = strings.TrimSpace(actionLine)
	if actionLine == "" {
		return "", ""
	}
	m := actionNamePattern.FindStringSubmatch(actionLine)
	if m == nil {
		return "", ""
	}
	return m[1], strings.TrimSpace(m[2])
}
