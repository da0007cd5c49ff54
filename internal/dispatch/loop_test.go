package dispatch

import (
	"context"
	"strings"
	"testing"

	"github.com/aruizmd/medassist/internal/clinical"
	"github.com/aruizmd/medassist/internal/conversation"
	"github.com/aruizmd/medassist/internal/llm"
	"github.com/aruizmd/medassist/internal/tools"
)

func newTestLoop() (*Loop, *llm.Mock, clinical.Service) {
	mock := llm.NewMock()
	svc := clinical.NewInMemoryService()
	loop := NewLoop(mock, tools.NewClinicalRegistry(svc))
	return loop, mock, svc
}

func testConv() conversation.Conversation {
	return conversation.Conversation{
		ID:           "conv1",
		ClinicianID:  "c1",
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are a clinical assistant.",
	}
}

func TestRunPlainAnswer(t *testing.T) {
	loop, mock, _ := newTestLoop()
	mock.Queue(llm.CompletionResponse{Text: "Hello, doctor."}, nil)

	answer, err := loop.Run(context.Background(), testConv(), nil, "Hello")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if answer != "Hello, doctor." {
		t.Fatalf("answer = %q", answer)
	}
	if len(mock.Requests) != 1 {
		t.Fatalf("completions = %d, want 1", len(mock.Requests))
	}
	if len(mock.Requests[0].Tools) == 0 {
		t.Fatalf("initial completion should offer the tool catalogue")
	}
}

func TestRunEmptyAnswerFallback(t *testing.T) {
	loop, mock, _ := newTestLoop()
	mock.Queue(llm.CompletionResponse{}, nil)

	answer, err := loop.Run(context.Background(), testConv(), nil, "Hello")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if answer != FallbackNoAnswer {
		t.Fatalf("answer = %q, want fallback", answer)
	}
}

func TestRunToolRoundThenFollowUp(t *testing.T) {
	loop, mock, svc := newTestLoop()
	p, _ := svc.CreatePatient(context.Background(), clinical.Patient{FullName: "Ana Diaz"})

	mock.Queue(llm.CompletionResponse{ToolCalls: []llm.ToolCall{
		{ID: "call1", Name: "search_patients", ArgumentsJSON: `{"query": "diaz"}`},
	}}, nil)
	mock.Queue(llm.CompletionResponse{Text: "Found Ana Diaz."}, nil)

	answer, err := loop.Run(context.Background(), testConv(), nil, "find diaz")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if answer != "Found Ana Diaz." {
		t.Fatalf("answer = %q", answer)
	}
	if len(mock.Requests) != 2 {
		t.Fatalf("completions = %d, want 2", len(mock.Requests))
	}
	if len(mock.Requests[1].Tools) != 0 {
		t.Fatalf("follow-up must not offer tools")
	}

	followUp := mock.Requests[1].Messages
	last := followUp[len(followUp)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "call1" {
		t.Fatalf("tool result message missing or mislabeled: %+v", last)
	}
	if !strings.Contains(last.Content, p.ID) {
		t.Fatalf("tool result should include found patient, got %q", last.Content)
	}
}

func TestRunMalformedToolArgs(t *testing.T) {
	loop, mock, _ := newTestLoop()
	mock.Queue(llm.CompletionResponse{ToolCalls: []llm.ToolCall{
		{ID: "call1", Name: "search_patients", ArgumentsJSON: `{not valid`},
	}}, nil)
	mock.Queue(llm.CompletionResponse{Text: "Sorry, which patient?"}, nil)

	answer, err := loop.Run(context.Background(), testConv(), nil, "find")
	if err != nil {
		t.Fatalf("Run() should recover from malformed args, error = %v", err)
	}
	if answer != "Sorry, which patient?" {
		t.Fatalf("answer = %q", answer)
	}

	followUp := mock.Requests[1].Messages
	last := followUp[len(followUp)-1]
	if !strings.Contains(last.Content, `"error"`) {
		t.Fatalf("malformed args should yield a structured error result, got %q", last.Content)
	}
}

func TestRunSiblingFailuresDoNotAbortBatch(t *testing.T) {
	loop, mock, _ := newTestLoop()
	var observed []string
	loop.SetToolObserver(func(name string, failed bool) {
		if failed {
			name += "!"
		}
		observed = append(observed, name)
	})

	mock.Queue(llm.CompletionResponse{ToolCalls: []llm.ToolCall{
		{ID: "call1", Name: "no_such_tool", ArgumentsJSON: `{}`},
		{ID: "call2", Name: "create_patient", ArgumentsJSON: `{"full_name": "Ana Diaz"}`},
	}}, nil)
	mock.Queue(llm.CompletionResponse{Text: "done"}, nil)

	if _, err := loop.Run(context.Background(), testConv(), nil, "do both"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(observed) != 2 {
		t.Fatalf("tool calls attempted = %d, want 2", len(observed))
	}
	if observed[0] != "no_such_tool!" || observed[1] != "create_patient" {
		t.Fatalf("observed = %v", observed)
	}
}

func TestRunEmptyFollowUpFallback(t *testing.T) {
	loop, mock, _ := newTestLoop()
	mock.Queue(llm.CompletionResponse{ToolCalls: []llm.ToolCall{
		{ID: "call1", Name: "list_appointments", ArgumentsJSON: `{}`},
	}}, nil)
	mock.Queue(llm.CompletionResponse{}, nil)

	answer, err := loop.Run(context.Background(), testConv(), nil, "agenda?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if answer != FallbackToolsOnly {
		t.Fatalf("answer = %q, want tools-only fallback", answer)
	}
}

func TestRunContextPrecedesUserTurn(t *testing.T) {
	loop, mock, _ := newTestLoop()
	mock.Queue(llm.CompletionResponse{Text: "ok"}, nil)

	ctxMsgs := []conversation.ContextMessage{
		{Role: "system", Content: "Conversation summary so far: prior facts"},
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	if _, err := loop.Run(context.Background(), testConv(), ctxMsgs, "new question"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	msgs := mock.Requests[0].Messages
	if msgs[0].Role != llm.RoleSystem || !strings.Contains(msgs[0].Content, "clinical assistant") {
		t.Fatalf("first message should be the static system prompt, got %+v", msgs[0])
	}
	if msgs[1].Content != ctxMsgs[0].Content {
		t.Fatalf("summary message out of order: %+v", msgs[1])
	}
	if msgs[len(msgs)-1].Content != "new question" {
		t.Fatalf("user turn must come last, got %+v", msgs[len(msgs)-1])
	}
}
