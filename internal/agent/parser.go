//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package agent

import (
	"fmt"
	"regexp"
	"strings"
)

const finalAnswerMarker = "Final Answer:"

// Format problems reported back to the model.
const (
	missingAction      = "Invalid Format: Missing 'Action:' after 'Thought:'"
	missingActionInput = "Invalid Format: Missing 'Action Input:' after 'Action:'"
	bothActionAndFinal = "Parsing LLM output produced both a final answer and a parse-able action"
)

var (
	actionPattern      = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
	actionOnlyPattern  = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)`)
	actionInputPattern = regexp.MustCompile(`(?s)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
)

// ParsingError reports model output that is neither an action nor a
// final answer.
type ParsingError struct {
	Reason string
	Output string
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("could not parse model output: %s", e.Reason)
}

// Decision is what the model chose to do next: call Tool with Input, or
// finish with Output.
type Decision struct {
	Tool   string
	Input  string
	Output string
	Final  bool
	Log    string
}

// Parse reads one ReAct step from model output.
func Parse(text string) (Decision, error) {
	hasFinal := strings.Contains(text, finalAnswerMarker)
	m := actionPattern.FindStringSubmatch(text)

	if m != nil {
		if hasFinal {
			return Decision{}, &ParsingError{Reason: bothActionAndFinal, Output: text}
		}
		input := strings.Trim(strings.TrimSpace(m[2]), `"`)
		return Decision{Tool: strings.TrimSpace(m[1]), Input: input, Log: text}, nil
	}

	if hasFinal {
		parts := strings.Split(text, finalAnswerMarker)
		return Decision{Output: strings.TrimSpace(parts[len(parts)-1]), Final: true, Log: text}, nil
	}

	if !actionOnlyPattern.MatchString(text) {
		return Decision{}, &ParsingError{Reason: missingAction, Output: text}
	}
	if !actionInputPattern.MatchString(text) {
		return Decision{}, &ParsingError{Reason: missingActionInput, Output: text}
	}
	return Decision{}, &ParsingError{Reason: "Could not parse LLM output: `" + text + "`", Output: text}
}
