package bot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/disgoorg/snowflake/v2"

	"community_bot/internal/chat"
	"community_bot/internal/duration"
	"community_bot/internal/reactable"
)

// ArgumentError reports a missing or malformed command argument.
type ArgumentError struct {
	Missing bool
	Param   string
	Reason  string
}

func (e *ArgumentError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%s is a required argument that is missing.", e.Param)
	}
	return e.Reason
}

func missing(param string) error {
	return &ArgumentError{Missing: true, Param: param}
}

func badArgument(format string, args ...any) error {
	return &ArgumentError{Reason: fmt.Sprintf(format, args...)}
}

// request is one invocation of a command.
type request struct {
	msg    chat.Message
	args   string
	prefix string
}

// next consumes the next whitespace-delimited argument.
func (r *request) next(param string) (string, error) {
	arg, rest := nextArg(r.args)
	if arg == "" {
		return "", missing(param)
	}
	r.args = rest
	return arg, nil
}

// rest consumes the remaining text.
func (r *request) rest(param string) (string, error) {
	text := strings.TrimSpace(r.args)
	if text == "" {
		return "", missing(param)
	}
	r.args = ""
	return text, nil
}

// nextArg splits the first whitespace-delimited token off s.
func nextArg(s string) (arg, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func parseDuration(s string) (time.Duration, error) {
	d, err := duration.Parse(s)
	if err != nil {
		if errors.Is(err, duration.ErrInvalid) {
			return 0, badArgument("%q is not a valid duration. Use a form like 1d12h or 30m.", s)
		}
		return 0, err
	}
	return d, nil
}

func parseEmoji(s string) (reactable.Reactable, error) {
	r, err := reactable.Parse(s)
	if err != nil {
		return reactable.Reactable{}, badArgument("%s is not a valid emoji", s)
	}
	return r, nil
}

func parseRole(s string) (snowflake.ID, error) {
	id, ok := chat.ParseRoleMention(s)
	if !ok {
		return 0, badArgument("%s is not a valid role", s)
	}
	return id, nil
}

func parseChannel(s string) (snowflake.ID, error) {
	id, ok := chat.ParseChannelMention(s)
	if !ok {
		return 0, badArgument("%s is not a valid channel", s)
	}
	return id, nil
}

// SelfRole is one line of the selfroles command.
type SelfRole struct {
	RoleID      snowflake.ID
	Emoji       reactable.Reactable
	Description string
}

var spaces = regexp.MustCompile(` +`)

// ParseSelfRoles parses one "<role> <emoji> <description>" entry per line.
// Blank lines are skipped. Each emoji may be used once.
func ParseSelfRoles(text string) ([]SelfRole, error) {
	var roles []SelfRole
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := spaces.Split(line, 3)
		if len(parts) != 3 {
			return nil, badArgument("%s is not a valid pair of role-emoji-description", line)
		}
		roleID, err := parseRole(parts[0])
		if err != nil {
			return nil, err
		}
		emoji, err := parseEmoji(parts[1])
		if err != nil {
			return nil, err
		}
		if seen[emoji.Key()] {
			return nil, badArgument("%s is used more than once", parts[1])
		}
		seen[emoji.Key()] = true
		roles = append(roles, SelfRole{RoleID: roleID, Emoji: emoji, Description: parts[2]})
	}
	if len(roles) == 0 {
		return nil, missing("roles")
	}
	return roles, nil
}
