// Package agent defines the language-model capability used by steps: a named
// agent turns a conversation into a lazily produced stream of text.
package agent

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

var (
	ErrAgentNotRegistered = errors.New("agent not registered")
	ErrAgentAlreadyExists = errors.New("agent already registered")
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Agent generates text for a conversation.
type Agent interface {
	StreamText(ctx context.Context, messages []Message) (*Stream, error)
}

// Func adapts a producer function to an Agent.
type Func func(ctx context.Context, messages []Message, emit func(chunk string) error) error

func (f Func) StreamText(ctx context.Context, messages []Message) (*Stream, error) {
	return NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		return f(ctx, messages, emit)
	}), nil
}

// Static answers every conversation with the same chunks.
type Static []string

func (s Static) StreamText(ctx context.Context, _ []Message) (*Stream, error) {
	return NewStream(ctx, func(_ context.Context, emit func(string) error) error {
		for _, chunk := range s {
			if err := emit(chunk); err != nil {
				return err
			}
		}

		return nil
	}), nil
}

// Echo streams back the content of the last user message word by word.
type Echo struct{}

func (Echo) StreamText(ctx context.Context, messages []Message) (*Stream, error) {
	var last string

	for _, message := range messages {
		if message.Role == RoleUser {
			last = message.Content
		}
	}

	return NewStream(ctx, func(_ context.Context, emit func(string) error) error {
		for i, word := range strings.Fields(last) {
			if i > 0 {
				word = " " + word
			}

			if err := emit(word); err != nil {
				return err
			}
		}

		return nil
	}), nil
}

// Registry maps agent names to agents. It is filled at start-up and read
// while workflows are built.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

func (r *Registry) Register(name string, a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("%w: %s", ErrAgentAlreadyExists, name)
	}

	r.agents[name] = a

	return nil
}

func (r *Registry) Lookup(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotRegistered, name)
	}

	return a, nil
}

// MustLookup is Lookup for graph construction, where a missing agent is a programming error.
func (r *Registry) MustLookup(name string) Agent {
	a, err := r.Lookup(name)
	if err != nil {
		panic(err)
	}

	return a
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.agents))
}
