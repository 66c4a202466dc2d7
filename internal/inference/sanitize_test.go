package inference

import "testing"

func TestSanitizeAssistantForContext(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "closed think block", in: "<think>internal</think>\nHello there", want: "Hello there"},
		{name: "mixed case tags", in: "a<THINK>x</Think>b", want: "ab"},
		{name: "unclosed think block", in: "<think>internal only", want: ""},
		{name: "two blocks", in: "<think>1</think>one <think>2</think>two", want: "one two"},
		{name: "end markers", in: "Answer<|im_end|><|endoftext|>", want: "Answer"},
		{name: "plain text", in: "All good.", want: "All good."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeAssistantForContext(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
