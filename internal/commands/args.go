package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/shlex"
	"github.com/ichi0g0y/alliance-bot/internal/membership"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
)

type ArgKind int

const (
	ArgMember  ArgKind = iota // 1人のメンバー
	ArgMembers                // 残りのメンバー全部（greedy）
	ArgRole
	ArgChannel
	ArgInt
	ArgDate // YYYY-MM-DD
	ArgWord
	ArgText // 残りの文字列全部
)

// ArgSpec declares one positional argument of a command.
type ArgSpec struct {
	Name     string
	Kind     ArgKind
	Optional bool
}

func (s ArgSpec) signature() string {
	name := s.Name
	if s.Kind == ArgMembers {
		name += "..."
	}
	if s.Optional {
		return "[" + name + "]"
	}
	return "<" + name + ">"
}

// ArgError is a user-facing argument problem found before a command runs.
type ArgError struct {
	Arg     ArgSpec
	Missing bool
	Msg     string
}

func (e *ArgError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Missing {
		return "missing argument " + e.Arg.Name
	}
	return "invalid argument " + e.Arg.Name
}

// Args holds parsed and resolved argument values by name.
type Args struct {
	values map[string]any
}

func (a *Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

func (a *Args) ID(name string) snowflake.ID {
	id, _ := a.values[name].(snowflake.ID)
	return id
}

func (a *Args) IDs(name string) []snowflake.ID {
	ids, _ := a.values[name].([]snowflake.ID)
	return ids
}

func (a *Args) Int(name string) int {
	n, _ := a.values[name].(int)
	return n
}

func (a *Args) Date(name string) time.Time {
	t, _ := a.values[name].(time.Time)
	return t
}

func (a *Args) String(name string) string {
	s, _ := a.values[name].(string)
	return s
}

var (
	userMentionRe    = regexp.MustCompile(`^<@!?(\d+)>$`)
	roleMentionRe    = regexp.MustCompile(`^<@&(\d+)>$`)
	channelMentionRe = regexp.MustCompile(`^<#(\d+)>$`)
	rawIDRe          = regexp.MustCompile(`^\d+$`)
)

func parseMention(re *regexp.Regexp, token string) (snowflake.ID, bool) {
	if m := re.FindStringSubmatch(token); m != nil {
		id, err := snowflake.ParseString(m[1])
		return id, err == nil
	}
	if rawIDRe.MatchString(token) {
		id, err := snowflake.ParseString(token)
		return id, err == nil
	}
	return 0, false
}

// ParseUserMention accepts <@id>, <@!id> or a raw id.
func ParseUserMention(token string) (snowflake.ID, bool) {
	return parseMention(userMentionRe, token)
}

func ParseRoleMention(token string) (snowflake.ID, bool) {
	return parseMention(roleMentionRe, token)
}

func ParseChannelMention(token string) (snowflake.ID, bool) {
	return parseMention(channelMentionRe, token)
}

// tokenize splits on whitespace honoring quotes. Unbalanced quotes fall back
// to a plain whitespace split.
func tokenize(raw string) []string {
	tokens, err := shlex.Split(raw)
	if err != nil {
		return strings.Fields(raw)
	}
	return tokens
}

// splitHead returns the first whitespace-separated word and the trimmed rest.
func splitHead(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// parseArgs validates raw against specs, resolving members, roles and channels
// through the platform. Extra trailing tokens are ignored.
func (d *Dispatcher) parseArgs(ctx context.Context, specs []ArgSpec, raw string) (*Args, error) {
	args := &Args{values: make(map[string]any, len(specs))}
	tokens := tokenize(raw)
	pos := 0

	for i, spec := range specs {
		if spec.Kind == ArgText {
			text := strings.Join(tokens[min(pos, len(tokens)):], " ")
			if i == 0 {
				text = raw
			}
			text = strings.TrimSpace(text)
			if text == "" {
				if !spec.Optional {
					return nil, &ArgError{Arg: spec, Missing: true}
				}
				continue
			}
			args.values[spec.Name] = text
			pos = len(tokens)
			continue
		}

		if spec.Kind == ArgMembers {
			var ids []snowflake.ID
			for pos < len(tokens) {
				id, ok := ParseUserMention(tokens[pos])
				if !ok {
					break
				}
				if _, err := d.env.Platform.Member(ctx, id); err != nil {
					break
				}
				ids = append(ids, id)
				pos++
			}
			if len(ids) == 0 && !spec.Optional {
				return nil, &ArgError{Arg: spec, Missing: true}
			}
			args.values[spec.Name] = ids
			continue
		}

		if pos >= len(tokens) {
			if spec.Optional {
				continue
			}
			return nil, &ArgError{Arg: spec, Missing: true}
		}
		token := tokens[pos]
		pos++

		v, err := d.resolveArg(ctx, spec, token)
		if err != nil {
			return nil, err
		}
		args.values[spec.Name] = v
	}
	return args, nil
}

func (d *Dispatcher) resolveArg(ctx context.Context, spec ArgSpec, token string) (any, error) {
	bad := &ArgError{Arg: spec}
	switch spec.Kind {
	case ArgMember:
		id, ok := ParseUserMention(token)
		if !ok {
			return nil, bad
		}
		if _, err := d.env.Platform.Member(ctx, id); err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return nil, bad
			}
			return nil, err
		}
		return id, nil
	case ArgRole:
		id, ok := ParseRoleMention(token)
		if !ok {
			return nil, bad
		}
		if _, err := d.env.Platform.Role(ctx, id); err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return nil, bad
			}
			return nil, err
		}
		return id, nil
	case ArgChannel:
		id, ok := ParseChannelMention(token)
		if !ok {
			return nil, bad
		}
		if _, err := d.env.Platform.Channel(ctx, id); err != nil {
			if errors.Is(err, platform.ErrNotFound) {
				return nil, bad
			}
			return nil, err
		}
		return id, nil
	case ArgInt:
		n, err := strconv.Atoi(token)
		if err != nil {
			return nil, &ArgError{Arg: spec, Msg: fmt.Sprintf("⚠️ `%s` is not a valid number.", token)}
		}
		return n, nil
	case ArgDate:
		t, err := membership.ParseDate(token)
		if err != nil {
			return nil, &ArgError{Arg: spec, Msg: "❌ Invalid date format. Please use `YYYY-MM-DD` (e.g., `2023-05-21`)."}
		}
		return t, nil
	case ArgWord:
		return token, nil
	}
	return nil, fmt.Errorf("unsupported argument kind %d", spec.Kind)
}
