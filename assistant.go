package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Assistant answers one chat turn for the relay.
type Assistant interface {
	Ask(ctx context.Context, userID, chatID, text string) (ChatReply, error)
}

// localAssistant calls the in-process chat backend.
type localAssistant struct {
	backend *ChatBackend
	pro     bool
}

func NewLocalAssistant(backend *ChatBackend, pro bool) Assistant {
	return &localAssistant{backend: backend, pro: pro}
}

func (a *localAssistant) Ask(ctx context.Context, userID, chatID, text string) (ChatReply, error) {
	if a.pro {
		resp, err := a.backend.Pro(ctx, ProChatRequest{Query: text, UserID: userID, ChatID: chatID})
		if err != nil {
			return ChatReply{}, err
		}
		return ChatReply{Text: resp.Answer, Suggestions: resp.Suggestions, ShowChart: resp.ShowChart}, nil
	}
	resp, err := a.backend.Free(ctx, FreeChatRequest{Message: text, UserID: userID, ChatID: chatID})
	if err != nil {
		return ChatReply{}, err
	}
	return ChatReply{Text: resp.Response, Suggestions: resp.Suggestions, ShowChart: resp.ShowChart}, nil
}

// httpAssistant posts to a remote /chat or /prochat endpoint.
type httpAssistant struct {
	client *resty.Client
	pro    bool
}

func NewHTTPAssistant(baseURL string, pro bool) Assistant {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(90 * time.Second)
	client.SetHeader("Content-Type", "application/json")
	return &httpAssistant{client: client, pro: pro}
}

func (a *httpAssistant) Ask(ctx context.Context, userID, chatID, text string) (ChatReply, error) {
	if a.pro {
		var out ProChatResponse
		if err := a.post(ctx, "/prochat", ProChatRequest{Query: text, UserID: userID, ChatID: chatID}, &out); err != nil {
			return ChatReply{}, err
		}
		if out.Answer == "" {
			return ChatReply{}, errors.New("chat backend returned an empty answer")
		}
		return ChatReply{Text: out.Answer, Suggestions: out.Suggestions, ShowChart: out.ShowChart}, nil
	}

	var out FreeChatResponse
	if err := a.post(ctx, "/chat", FreeChatRequest{Message: text, UserID: userID, ChatID: chatID}, &out); err != nil {
		return ChatReply{}, err
	}
	if out.Response == "" {
		return ChatReply{}, errors.New("chat backend returned an empty response")
	}
	return ChatReply{Text: out.Response, Suggestions: out.Suggestions, ShowChart: out.ShowChart}, nil
}

func (a *httpAssistant) post(ctx context.Context, path string, body, out interface{}) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		Post(path)
	if err != nil {
		return fmt.Errorf("failed to call chat backend %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("chat backend %s returned status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}
