package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tgstep/internal/inference"
)

func (s *Server) generateRequest(body GenerateRequest) inference.Request {
	p := body.Parameters
	return inference.ResolveRequest(inference.RequestOptions{
		ID:                newCompletionID("gen"),
		Inputs:            body.Inputs,
		MaxNewTokens:      p.MaxNewTokens,
		Truncate:          p.Truncate,
		Seed:              p.Seed,
		Temperature:       p.Temperature,
		TopK:              p.TopK,
		TopP:              p.TopP,
		TypicalP:          p.TypicalP,
		RepetitionPenalty: p.RepetitionPenalty,
		DoSample:          &p.DoSample,
		Greedy:            p.Greedy,
		Stop:              p.Stop,
		Details:           &p.DecoderInputDetails,
		ReturnFullText:    p.ReturnFullText,
	}, s.cfg.Defaults)
}

func (s *Server) handleGenerate(c *echo.Context) error {
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if body.Inputs == "" {
		return writeBadRequest(c, "inputs must not be empty")
	}

	res, err := s.run(c.Request().Context(), s.generateRequest(body), nil)
	if err != nil {
		return writeGenerationError(c, err)
	}

	resp := GenerateResponse{GeneratedText: res.Text}
	if body.Parameters.Details || body.Parameters.DecoderInputDetails {
		resp.Details = details(res)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGenerateStream(c *echo.Context) error {
	body, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if body.Inputs == "" {
		return writeBadRequest(c, "inputs must not be empty")
	}
	req := s.generateRequest(body)
	if err := s.validate(req); err != nil {
		return writeGenerationError(c, err)
	}

	sse, err := newSSEWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	_, err = s.run(c.Request().Context(), req, func(ev inference.Event) {
		out := StreamResponse{Token: tokenInfo(ev.Token)}
		if ev.Done != nil {
			text := ev.Done.Text
			out.GeneratedText = &text
			out.Details = &StreamDetails{
				FinishReason:    string(ev.Done.FinishReason),
				GeneratedTokens: ev.Done.GeneratedTokens,
				Seed:            ev.Done.Seed,
			}
		}
		_ = sse.send(out)
	})
	if err != nil {
		sse.fail(err)
	}
	return nil
}

func details(res *inference.Result) *Details {
	d := &Details{
		FinishReason:    string(res.FinishReason),
		GeneratedTokens: res.GeneratedTokens,
		Seed:            res.Seed,
		Prefill:         []PrefillToken{},
		Tokens:          make([]TokenInfo, len(res.Tokens)),
	}
	for i, t := range res.Tokens {
		d.Tokens[i] = tokenInfo(t)
	}
	if p := res.Prefill; p != nil {
		for i, id := range p.TokenIDs {
			d.Prefill = append(d.Prefill, PrefillToken{ID: id, Text: p.Texts[i], Logprob: logprobOrNil(p.Logprobs[i])})
		}
	}
	return d
}
