package api

// GenerateParameters are the text-generation-inference controls.
type GenerateParameters struct {
	Temperature         *float64 `json:"temperature,omitempty"`
	RepetitionPenalty   *float64 `json:"repetition_penalty,omitempty"`
	TopK                *int     `json:"top_k,omitempty"`
	TopP                *float64 `json:"top_p,omitempty"`
	TypicalP            *float64 `json:"typical_p,omitempty"`
	DoSample            bool     `json:"do_sample"`
	Greedy              *bool    `json:"greedy,omitempty"`
	MaxNewTokens        *int     `json:"max_new_tokens,omitempty"`
	ReturnFullText      *bool    `json:"return_full_text,omitempty"`
	Stop                []string `json:"stop,omitempty"`
	Truncate            *int     `json:"truncate,omitempty"`
	Details             bool     `json:"details"`
	DecoderInputDetails bool     `json:"decoder_input_details"`
	Seed                *uint64  `json:"seed,omitempty"`
}

type GenerateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters GenerateParameters `json:"parameters"`
}

type TokenInfo struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Logprob *float32 `json:"logprob"`
	Special bool     `json:"special"`
}

type PrefillToken struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Logprob *float32 `json:"logprob"`
}

type Details struct {
	FinishReason    string         `json:"finish_reason"`
	GeneratedTokens int            `json:"generated_tokens"`
	Seed            *uint64        `json:"seed"`
	Prefill         []PrefillToken `json:"prefill"`
	Tokens          []TokenInfo    `json:"tokens"`
}

type GenerateResponse struct {
	GeneratedText string   `json:"generated_text"`
	Details       *Details `json:"details,omitempty"`
}

type StreamDetails struct {
	FinishReason    string  `json:"finish_reason"`
	GeneratedTokens int     `json:"generated_tokens"`
	Seed            *uint64 `json:"seed"`
}

type StreamResponse struct {
	Token         TokenInfo      `json:"token"`
	GeneratedText *string        `json:"generated_text"`
	Details       *StreamDetails `json:"details"`
}

// OpenAIParameters are shared by the completion and chat completion bodies.
// Besides the OpenAI fields they accept the sampling extensions
// text-generation-inference understands.
type OpenAIParameters struct {
	Model               string   `json:"model,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
	PresencePenalty     *float64 `json:"presence_penalty,omitempty"`
	TopK                *int     `json:"top_k,omitempty"`
	TopP                *float64 `json:"top_p,omitempty"`
	TypicalP            *float64 `json:"typical_p,omitempty"`
	DoSample            bool     `json:"do_sample"`
	Greedy              *bool    `json:"greedy,omitempty"`
	MaxTokens           *int     `json:"max_tokens,omitempty"`
	Echo                *bool    `json:"echo,omitempty"`
	Stop                []string `json:"stop,omitempty"`
	Truncate            *int     `json:"truncate,omitempty"`
	DecoderInputDetails bool     `json:"decoder_input_details"`
	Seed                *uint64  `json:"seed,omitempty"`
	Stream              bool     `json:"stream"`
}

type CompletionRequest struct {
	Prompt string `json:"prompt"`
	OpenAIParameters
}

type ChatMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Messages []ChatMessage `json:"messages"`
	OpenAIParameters
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type CompletionChoice struct {
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
	Logprobs     []int   `json:"logprobs"`
	Index        int     `json:"index"`
}

type CompletionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   *Usage             `json:"usage,omitempty"`
}

type ChatChoice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason *string      `json:"finish_reason"`
}

type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

type Info struct {
	ModelID          string `json:"model_id"`
	Version          string `json:"version"`
	Sha              string `json:"sha,omitempty"`
	Shards           int    `json:"num_shard"`
	MaxNewTokens     int    `json:"max_new_tokens"`
	MaxStopSequences int    `json:"max_stop_sequences"`
}
