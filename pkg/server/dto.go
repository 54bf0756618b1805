package server

import (
	contractx "github.com/tanpawarit/Chative-Task-Agent/agent/contract"
)

type ChatRequest struct {
	Body struct {
		ConversationID string `json:"conversation_id,omitempty" doc:"Existing conversation; omit to start a new one"`
		Message        string `json:"message" minLength:"1" maxLength:"4000"`
		Adapter        string `json:"adapter,omitempty" doc:"Adapter name; defaults to the conversation's adapter or the server default"`
	}
}

type ChatResponse struct {
	Body contractx.Response `json:"body"`
}

type StartConversationRequest struct {
	Body struct {
		Adapter string `json:"adapter,omitempty"`
	}
}

type ConversationBody struct {
	ConversationID string           `json:"conversation_id"`
	Adapter        string           `json:"adapter"`
	Messages       []contractx.Turn `json:"messages"`
}

type ConversationResponse struct {
	Body ConversationBody `json:"body"`
}

type ListConversationsRequest struct {
	Limit int `query:"limit" minimum:"1" maximum:"100" default:"20"`
}

type ConversationsResponse struct {
	Body struct {
		Conversations []contractx.ConversationSummary `json:"conversations"`
	} `json:"body"`
}

type MessagesRequest struct {
	ConversationID string `path:"conversation_id"`
	Limit          int    `query:"limit" minimum:"1" maximum:"200" default:"50"`
}

type AdapterInfo struct {
	Name    string   `json:"name"`
	Default bool     `json:"default"`
	Tools   []string `json:"tools"`
}

type AdaptersResponse struct {
	Body struct {
		Adapters []AdapterInfo `json:"adapters"`
	} `json:"body"`
}

type HealthResponse struct {
	Body map[string]string `json:"body"`
}
