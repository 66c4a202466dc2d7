package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tgstep/internal/inference"
)

// sampleFlags mirrors the generate parameters of the HTTP API.
type sampleFlags struct {
	maxNewTokens      int64
	truncate          int64
	seed              int64
	temperature       float64
	topK              int64
	topP              float64
	typicalP          float64
	repetitionPenalty float64
	doSample          bool
	greedy            bool
	ignoreEOS         bool
	stop              []string
}

func (f *sampleFlags) flags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{Name: "max-new-tokens", Aliases: []string{"n"}, Value: inference.DefaultMaxNewTokens, Destination: &f.maxNewTokens},
		&cli.Int64Flag{Name: "truncate", Usage: "keep only the last N prompt tokens", Destination: &f.truncate},
		&cli.Int64Flag{Name: "seed", Usage: "sampling seed (-1 draws one)", Value: -1, Destination: &f.seed},
		&cli.Float64Flag{Name: "temperature", Aliases: []string{"temp"}, Destination: &f.temperature},
		&cli.Int64Flag{Name: "top-k", Destination: &f.topK},
		&cli.Float64Flag{Name: "top-p", Destination: &f.topP},
		&cli.Float64Flag{Name: "typical-p", Destination: &f.typicalP},
		&cli.Float64Flag{Name: "repetition-penalty", Destination: &f.repetitionPenalty},
		&cli.BoolFlag{Name: "do-sample", Destination: &f.doSample},
		&cli.BoolFlag{Name: "greedy", Usage: "force arg-max decoding; conflicts with sampling flags", Destination: &f.greedy},
		&cli.BoolFlag{Name: "ignore-eos", Destination: &f.ignoreEOS},
		&cli.StringSliceFlag{Name: "stop", Usage: "stop sequence (repeatable)", Destination: &f.stop},
	}
}

// options keeps only the flags the user set, so model defaults still apply.
func (f *sampleFlags) options(cmd *cli.Command) inference.RequestOptions {
	var o inference.RequestOptions
	maxNew := int(f.maxNewTokens)
	o.MaxNewTokens = &maxNew
	if cmd.IsSet("truncate") {
		v := int(f.truncate)
		o.Truncate = &v
	}
	if f.seed >= 0 {
		v := uint64(f.seed)
		o.Seed = &v
	}
	if cmd.IsSet("temperature") {
		o.Temperature = &f.temperature
	}
	if cmd.IsSet("top-k") {
		v := int(f.topK)
		o.TopK = &v
	}
	if cmd.IsSet("top-p") {
		o.TopP = &f.topP
	}
	if cmd.IsSet("typical-p") {
		o.TypicalP = &f.typicalP
	}
	if cmd.IsSet("repetition-penalty") {
		o.RepetitionPenalty = &f.repetitionPenalty
	}
	if cmd.IsSet("do-sample") {
		o.DoSample = &f.doSample
	}
	if cmd.IsSet("greedy") {
		o.Greedy = &f.greedy
	}
	if cmd.IsSet("ignore-eos") {
		o.IgnoreEOS = &f.ignoreEOS
	}
	o.Stop = f.stop
	return o
}

func generateCmd() *cli.Command {
	var (
		sf          sampleFlags
		prompts     []string
		promptsFile string
		details     bool
		fullText    bool
		jsonOut     bool
		quiet       bool
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Decode a batch of prompts offline",
		Flags: append(append(append(commonModelFlags(), loggingFlags()...), sf.flags()...),
			&cli.StringSliceFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text (repeatable)",
				Destination: &prompts,
			},
			&cli.StringFlag{
				Name:        "prompts-file",
				Usage:       "file with one prompt per line (- for stdin)",
				Destination: &promptsFile,
			},
			&cli.BoolFlag{Name: "details", Usage: "include prompt token log-probabilities", Destination: &details},
			&cli.BoolFlag{Name: "full-text", Usage: "prepend the prompt to the output", Destination: &fullText},
			&cli.BoolFlag{Name: "json", Usage: "print results as JSON lines", Destination: &jsonOut},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "hide the progress bar", Destination: &quiet},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, LoadConfig())
			ctx, log := setupLogger(ctx)

			if promptsFile != "" {
				more, err := readPrompts(promptsFile, os.Stdin)
				if err != nil {
					return err
				}
				prompts = append(prompts, more...)
			}
			if len(prompts) == 0 {
				return fmt.Errorf("at least one --prompt or --prompts-file is required")
			}

			res, _, err := loadEngine(ctx, log)
			if err != nil {
				return err
			}
			defer func() { _ = res.Engine.Close() }()

			reqs := make([]inference.Request, len(prompts))
			for i, p := range prompts {
				opts := sf.options(cmd)
				opts.ID = fmt.Sprintf("%d", i)
				opts.Inputs = p
				opts.Details = &details
				opts.ReturnFullText = &fullText
				reqs[i] = inference.ResolveRequest(opts, res.GenerationDefaults)
			}

			var bar *progressbar.ProgressBar
			if !quiet {
				bar = progressbar.NewOptions(len(reqs),
					progressbar.OptionSetDescription("Generating"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			start := time.Now()
			results, err := res.Engine.Generate(ctx, reqs, func(ev inference.Event) {
				if ev.Done != nil && bar != nil {
					_ = bar.Add(1)
				}
			})
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			if err := printResults(os.Stdout, results, jsonOut); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stderr, summarize(results, elapsed))
			return nil
		},
	}
}

func readPrompts(path string, stdin io.Reader) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var out []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if line := strings.TrimRight(sc.Text(), "\r"); strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

type tokenJSON struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Logprob *float32 `json:"logprob"`
	Special bool     `json:"special,omitempty"`
}

type resultJSON struct {
	ID              string      `json:"id"`
	Text            string      `json:"generated_text"`
	FinishReason    string      `json:"finish_reason"`
	PromptTokens    int         `json:"prompt_tokens"`
	GeneratedTokens int         `json:"generated_tokens"`
	Seed            *uint64     `json:"seed,omitempty"`
	Prefill         []tokenJSON `json:"prefill,omitempty"`
	Tokens          []tokenJSON `json:"tokens,omitempty"`
}

func finite(v float32) *float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return nil
	}
	return &v
}

func toJSON(r *inference.Result) resultJSON {
	out := resultJSON{
		ID:              r.RequestID,
		Text:            r.Text,
		FinishReason:    string(r.FinishReason),
		PromptTokens:    r.PromptTokens,
		GeneratedTokens: r.GeneratedTokens,
		Seed:            r.Seed,
	}
	if p := r.Prefill; p != nil {
		for i, id := range p.TokenIDs {
			out.Prefill = append(out.Prefill, tokenJSON{ID: id, Text: p.Texts[i], Logprob: finite(p.Logprobs[i])})
		}
		for _, t := range r.Tokens {
			out.Tokens = append(out.Tokens, tokenJSON{ID: t.ID, Text: t.Text, Logprob: finite(t.Logprob), Special: t.Special})
		}
	}
	return out
}

func printResults(w io.Writer, results []*inference.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, r := range results {
			if err := enc.Encode(toJSON(r)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(w, "[%s] %s\n  (%d prompt, %d generated, %s)\n",
			r.RequestID, r.Text, r.PromptTokens, r.GeneratedTokens, r.FinishReason); err != nil {
			return err
		}
	}
	return nil
}

func summarize(results []*inference.Result, elapsed time.Duration) string {
	var generated int64
	for _, r := range results {
		generated += int64(r.GeneratedTokens)
	}
	tps := 0.0
	if s := elapsed.Seconds(); s > 0 {
		tps = float64(generated) / s
	}
	return fmt.Sprintf("%s requests, %s tokens in %s (%s tok/s)",
		humanize.Comma(int64(len(results))),
		humanize.Comma(generated),
		elapsed.Round(time.Millisecond),
		humanize.FormatFloat("#,###.##", tps),
	)
}
