package inference

import (
	"fmt"
	"os"
	"strings"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Affix wraps the content of one role.
type Affix struct {
	Pre  string
	Post string
}

// ChatFormatter flattens a conversation into a single prompt by wrapping
// each message with the affixes of its role.
type ChatFormatter struct {
	User      Affix
	Assistant Affix
	System    Affix
}

// Environment variables read by ChatFormatterFromEnv.
const (
	EnvChatUserPre  = "TGICHAT_USER_PRE"
	EnvChatUserPost = "TGICHAT_USER_POST"
	EnvChatAssPre   = "TGICHAT_ASS_PRE"
	EnvChatAssPost  = "TGICHAT_ASS_POST"
	EnvChatSysPre   = "TGICHAT_SYS_PRE"
	EnvChatSysPost  = "TGICHAT_SYS_POST"
)

// ChatFormatterFromEnv reads the affixes from the environment. Unset
// variables are empty. A nil getenv means os.Getenv.
func ChatFormatterFromEnv(getenv func(string) string) ChatFormatter {
	if getenv == nil {
		getenv = os.Getenv
	}
	return ChatFormatter{
		User:      Affix{Pre: getenv(EnvChatUserPre), Post: getenv(EnvChatUserPost)},
		Assistant: Affix{Pre: getenv(EnvChatAssPre), Post: getenv(EnvChatAssPost)},
		System:    Affix{Pre: getenv(EnvChatSysPre), Post: getenv(EnvChatSysPost)},
	}
}

func (f ChatFormatter) Render(msgs []Message) (string, error) {
	var sb strings.Builder
	for _, m := range msgs {
		var affix Affix
		content := m.Content
		switch m.Role {
		case "user":
			affix = f.User
		case "assistant":
			affix = f.Assistant
			content = SanitizeAssistantForContext(content)
		case "system":
			affix = f.System
		default:
			return "", fmt.Errorf("unknown chat role %q", m.Role)
		}
		sb.WriteString(affix.Pre)
		sb.WriteString(content)
		sb.WriteString(affix.Post)
	}
	return sb.String(), nil
}
