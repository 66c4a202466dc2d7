package inference

import "testing"

func TestChatFormatterRender(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvChatUserPre:  "<user>",
		EnvChatUserPost: "</user>",
		EnvChatAssPre:   "<bot>",
		EnvChatAssPost:  "</bot>",
		EnvChatSysPre:   "[",
		EnvChatSysPost:  "]",
	}
	f := ChatFormatterFromEnv(func(k string) string { return env[k] })

	got, err := f.Render([]Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "<think>hmm</think>hello<|im_end|>"},
		{Role: "user", Content: "again"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "[be brief]<user>hi</user><bot>hello</bot><user>again</user>"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestChatFormatterEmptyEnv(t *testing.T) {
	t.Parallel()

	f := ChatFormatterFromEnv(func(string) string { return "" })
	got, err := f.Render([]Message{{Role: "user", Content: "a"}, {Role: "user", Content: "b"}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "ab" {
		t.Fatalf("got %q", got)
	}
}

func TestChatFormatterRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	if _, err := (ChatFormatter{}).Render([]Message{{Role: "tool", Content: "x"}}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
