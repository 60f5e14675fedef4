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
	"strings"

	"github.com/pgEdge/pgedge-ask-server/internal/agent/tools"
)

const reactTemplate = `You are a smart assistant that can use the following tools to solve problems:

%s

When answering, please strictly follow the format below:

Question: The user's question
Thought: Think about what to do next.
Action: The name of the action to take, from [%s]
Action Input: The input to the action
Observation: The result of the action
Final Answer: The final answer to the original question.

Important rules:
- Do not add words like "choose" or "use" before the tool name.
- The tool name must exactly match one of the listed tools.
- Only use the specified sections (Thought / Action / Action Input / Observation / Final Answer) with no extra text or explanation.

Begin!

Question: %s
%s`

// step is one completed action and what it returned.
type step struct {
	log         string
	observation string
}

func renderPrompt(ts []tools.Tool, input string, steps []step) string {
	descriptions := make([]string, len(ts))
	names := make([]string, len(ts))
	for i, t := range ts {
		descriptions[i] = t.Name() + ": " + t.Description()
		names[i] = t.Name()
	}

	var scratchpad strings.Builder
	for _, s := range steps {
		scratchpad.WriteString(s.log)
		scratchpad.WriteString("\nObservation: ")
		scratchpad.WriteString(s.observation)
		scratchpad.WriteString("\nThought: ")
	}

	return fmt.Sprintf(reactTemplate,
		strings.Join(descriptions, "\n"), strings.Join(names, ", "), input, scratchpad.String())
}

// RAGInput prefixes question with retrieved context when there is any.
func RAGInput(question, context string) string {
	if context == "" {
		return question
	}
	return "Here is the relevant information:\n" + context + "\n\nQuestion: " + question
}
