package main

import (
	"context"
	"log"

	"github.com/ecsf-gov/sage/internal/actions"
	"github.com/ecsf-gov/sage/internal/flow"
	"github.com/ecsf-gov/sage/internal/store"
)

func main() {
	// Minimal scripted demonstration: no database, no model, no HTTP.
	// The full service lives in cmd/sage.
	st := store.NewInMemoryStore()
	engine := flow.NewEngine(st, nil, actions.NewExecutor(nil), flow.Config{UseAI: false})

	resp, err := engine.StartConversation(context.Background(), "")
	if err != nil {
		log.Fatalf("Failed to start conversation: %v", err)
	}

	log.Printf("Conversation %s started", resp.ConversationID)
	log.Printf("Assistant: %s", resp.Message)
	for _, choice := range resp.Choices {
		log.Printf("  [%s] %s", choice.Value, choice.Label)
	}
}
