package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tgstep/internal/inference"
)

func (s *Server) handleChatCompletions(c *echo.Context) error {
	body, err := decodeJSON[ChatCompletionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(body.Messages) == 0 {
		return writeBadRequest(c, "messages is required and must not be empty")
	}

	msgs := make([]inference.Message, len(body.Messages))
	for i, m := range body.Messages {
		msgs[i] = inference.Message{Role: m.Role, Content: m.Content}
	}
	prompt, err := s.cfg.Formatter.Render(msgs)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if prompt == "" {
		return writeBadRequest(c, "messages render to an empty prompt")
	}

	id := newCompletionID("chatcmpl")
	req, err := s.openAIRequest(id, prompt, body.OpenAIParameters)
	if err != nil {
		return writeGenerationError(c, err)
	}
	created := s.clock().Unix()

	if body.Stream || streamParam(c) {
		return s.streamChatCompletions(c, req, created)
	}

	res, err := s.run(c.Request().Context(), req, nil)
	if err != nil {
		return writeGenerationError(c, err)
	}
	return c.JSON(http.StatusOK, ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   s.cfg.ModelID,
		Choices: []ChatChoice{{
			Message:      &ChatMessage{Role: "assistant", Content: res.Text},
			FinishReason: openAIFinishReason(res.FinishReason),
		}},
		Usage: usage(res),
	})
}

func (s *Server) streamChatCompletions(c *echo.Context, req inference.Request, created int64) error {
	if err := s.validate(req); err != nil {
		return writeGenerationError(c, err)
	}
	sse, err := newSSEWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	chunk := func(choice ChatChoice) ChatCompletionResponse {
		return ChatCompletionResponse{
			ID:      req.ID,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   s.cfg.ModelID,
			Choices: []ChatChoice{choice},
		}
	}

	if err := sse.send(chunk(ChatChoice{Delta: &ChatMessage{Role: "assistant"}})); err != nil {
		return nil
	}
	_, err = s.run(c.Request().Context(), req, func(ev inference.Event) {
		delta := &ChatMessage{}
		if !ev.Token.Special {
			delta.Content = ev.Token.Text
		}
		choice := ChatChoice{Delta: delta}
		if ev.Done != nil {
			choice.FinishReason = openAIFinishReason(ev.Done.FinishReason)
		}
		_ = sse.send(chunk(choice))
	})
	if err != nil {
		sse.fail(err)
	}
	sse.done()
	return nil
}
