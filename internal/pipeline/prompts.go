//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package pipeline

import (
	"github.com/pgEdge/pgedge-ask-server/internal/llm"
	"github.com/pgEdge/pgedge-ask-server/internal/memory"
)

const (
	plainSystem = "You are a professional assistant. Please answer the user's questions. " +
		"Remember the previous conversation and reply coherently."

	ragSystem = "You are an expert assistant. Please answer the user's question based solely on " +
		"the provided information. Do not make up any information. If the answer cannot be found " +
		"in the provided data, reply with 'I don't know'."

	cotThoughtSystem = "You are an AI assistant skilled at logical reasoning. Reason step by step " +
		"based on the conversation history and the question."

	ragCoTThoughtSystem = "You are an AI assistant skilled at thinking. Reason logically about the " +
		"question based on the following data."

	cotFinalLead    = "You have finished reasoning about the question. Here is your thinking:"
	cotFinalClose   = "Based on this reasoning, give a clear final answer."
	ragCoTFinalLead = "Here is your logical reasoning about the question:\n"
	ragCoTFinalAsk  = "Based on this reasoning, give the final answer."
)

// ChatInput feeds the single-stage shapes.
type ChatInput struct {
	Question   string
	History    []llm.Message
	Context    string
	HasContext bool
}

// ThoughtInput feeds the first reasoning stage.
type ThoughtInput struct {
	Question   string
	History    []llm.Message
	Context    string
	HasContext bool
}

// FinalInput feeds the second reasoning stage.
type FinalInput struct {
	Thought string
	History []llm.Message
}

// HistoryMessages maps stored turns to prompt messages.
func HistoryMessages(turns []memory.Turn) []llm.Message {
	msgs := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == memory.RoleAI {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: t.Content})
	}
	return msgs
}

// NewChatInput builds the input of a plain or retrieval shape.
func NewChatInput(question string, history []llm.Message, context string, hasContext bool) ChatInput {
	return ChatInput{Question: question, History: history, Context: context, HasContext: hasContext}
}

// NewThoughtInput builds the first-stage input.
func NewThoughtInput(question string, history []llm.Message, context string, hasContext bool) ThoughtInput {
	return ThoughtInput{Question: question, History: history, Context: context, HasContext: hasContext}
}

// NewFinalInput carries the first stage's whole output into the second.
func NewFinalInput(thought string, history []llm.Message) FinalInput {
	return FinalInput{Thought: thought, History: history}
}

func system(content string) llm.Message {
	return llm.Message{Role: llm.RoleSystem, Content: content}
}

func user(content string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: content}
}

func withHistory(lead []llm.Message, history []llm.Message, tail ...llm.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(lead)+len(history)+len(tail))
	msgs = append(msgs, lead...)
	msgs = append(msgs, history...)
	return append(msgs, tail...)
}

// ChatPrompt is the plain prompt, or the retrieval prompt when the input
// has a context block. An empty context still yields the block.
func ChatPrompt(in ChatInput) llm.CompletionRequest {
	if !in.HasContext {
		return llm.CompletionRequest{
			Messages:    withHistory([]llm.Message{system(plainSystem)}, in.History, user(in.Question)),
			Temperature: llm.DefaultTemperature,
		}
	}
	return llm.CompletionRequest{
		Messages: withHistory(
			[]llm.Message{system(ragSystem), system("Reference Information:\n" + in.Context)},
			in.History, user(in.Question)),
		Temperature: llm.DefaultTemperature,
	}
}

// ThoughtPrompt asks for step-by-step reasoning.
func ThoughtPrompt(in ThoughtInput) llm.CompletionRequest {
	lead := []llm.Message{system(cotThoughtSystem)}
	if in.HasContext {
		lead = []llm.Message{system(ragCoTThoughtSystem), system("Data:\n" + in.Context)}
	}
	return llm.CompletionRequest{
		Messages:    withHistory(lead, in.History, user(in.Question)),
		Temperature: llm.DefaultTemperature,
	}
}

// FinalPrompt asks for a definitive answer from the reasoning. grounded
// selects the wording used after retrieval.
func FinalPrompt(in FinalInput, grounded bool) llm.CompletionRequest {
	var tail []llm.Message
	if grounded {
		tail = []llm.Message{system(ragCoTFinalLead + in.Thought), user(ragCoTFinalAsk)}
	} else {
		tail = []llm.Message{system(cotFinalLead), user(in.Thought), system(cotFinalClose)}
	}
	return llm.CompletionRequest{
		Messages:    withHistory(nil, in.History, tail...),
		Temperature: llm.DefaultTemperature,
	}
}
