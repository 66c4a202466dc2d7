package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tgstep/internal/generation"
	"github.com/samcharles93/tgstep/internal/inference"
)

// openAIRequest converts the shared OpenAI fields. The presence penalty is
// mapped onto a repetition penalty and echo returns the prompt with the
// completion.
func (s *Server) openAIRequest(id, inputs string, p OpenAIParameters) (inference.Request, error) {
	var repetition *float64
	if p.PresencePenalty != nil {
		r, err := inference.PresenceToRepetition(*p.PresencePenalty)
		if err != nil {
			return inference.Request{}, err
		}
		repetition = &r
	}
	return inference.ResolveRequest(inference.RequestOptions{
		ID:                id,
		Inputs:            inputs,
		MaxNewTokens:      p.MaxTokens,
		Truncate:          p.Truncate,
		Seed:              p.Seed,
		Temperature:       p.Temperature,
		TopK:              p.TopK,
		TopP:              p.TopP,
		TypicalP:          p.TypicalP,
		RepetitionPenalty: repetition,
		DoSample:          &p.DoSample,
		Greedy:            p.Greedy,
		Stop:              p.Stop,
		Details:           &p.DecoderInputDetails,
		ReturnFullText:    p.Echo,
	}, s.cfg.Defaults), nil
}

// openAIFinishReason folds eos and stop sequences into "stop".
func openAIFinishReason(r generation.FinishReason) *string {
	reason := "stop"
	if r == generation.FinishReasonLength {
		reason = "length"
	}
	return &reason
}

func usage(res *inference.Result) *Usage {
	return &Usage{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.GeneratedTokens,
		TotalTokens:      res.PromptTokens + res.GeneratedTokens,
	}
}

func (s *Server) handleCompletions(c *echo.Context) error {
	body, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if body.Prompt == "" {
		return writeBadRequest(c, "prompt must not be empty")
	}

	id := newCompletionID("cmpl")
	req, err := s.openAIRequest(id, body.Prompt, body.OpenAIParameters)
	if err != nil {
		return writeGenerationError(c, err)
	}
	created := s.clock().Unix()

	if body.Stream || streamParam(c) {
		return s.streamCompletions(c, req, created)
	}

	res, err := s.run(c.Request().Context(), req, nil)
	if err != nil {
		return writeGenerationError(c, err)
	}
	return c.JSON(http.StatusOK, CompletionResponse{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   s.cfg.ModelID,
		Choices: []CompletionChoice{{
			Text:         res.Text,
			FinishReason: openAIFinishReason(res.FinishReason),
		}},
		Usage: usage(res),
	})
}

func (s *Server) streamCompletions(c *echo.Context, req inference.Request, created int64) error {
	if err := s.validate(req); err != nil {
		return writeGenerationError(c, err)
	}
	sse, err := newSSEWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	_, err = s.run(c.Request().Context(), req, func(ev inference.Event) {
		choice := CompletionChoice{}
		if !ev.Token.Special {
			choice.Text = ev.Token.Text
		}
		if ev.Done != nil {
			choice.FinishReason = openAIFinishReason(ev.Done.FinishReason)
		}
		_ = sse.send(CompletionResponse{
			ID:      req.ID,
			Object:  "text_completion",
			Created: created,
			Model:   s.cfg.ModelID,
			Choices: []CompletionChoice{choice},
		})
	})
	if err != nil {
		sse.fail(err)
	}
	sse.done()
	return nil
}
