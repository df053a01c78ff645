// Package commands parses prefix commands from guild messages and routes them
// to the alliance services.
package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app"
	"github.com/ichi0g0y/alliance-bot/internal/awards"
	"github.com/ichi0g0y/alliance-bot/internal/eventtracker"
	"github.com/ichi0g0y/alliance-bot/internal/membership"
	"github.com/ichi0g0y/alliance-bot/internal/milestone"
	"github.com/ichi0g0y/alliance-bot/internal/notification"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/shared/metrics"
	"github.com/ichi0g0y/alliance-bot/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	msgNoPermission  = "⛔ You don't have permission to use the `%s` command."
	msgMissingArg    = "🤔 You're missing an argument. Correct usage: `%s`"
	msgBadArgument   = "⚠️ I couldn't find what you were looking for. Please check your spelling and try again."
	msgBotPermission = "❌ **Permissions Error:** I don't have the necessary permissions to do that. Please check my role hierarchy and permissions."
	msgUnexpected    = "😬 An unexpected error occurred. I've logged the details for my developer."
)

// Services are the components commands delegate to.
type Services struct {
	Awards     *awards.Engine
	Milestones *milestone.Evaluator
	Events     *eventtracker.Tracker
	Membership *membership.Service
	Stats      *stats.Service
}

// Request is one parsed invocation.
type Request struct {
	Msg     platform.IncomingMessage
	Command *Command
	Args    *Args

	d *Dispatcher
}

func (r *Request) Actor() snowflake.ID {
	return r.Msg.Author.ID
}

// Progress posts an interim message to the invoking channel.
func (r *Request) Progress(ctx context.Context, text string) {
	r.d.reply(ctx, r.Msg.ChannelID, text)
}

type Dispatcher struct {
	env      *app.Env
	prefix   string
	svc      Services
	commands []*Command
	index    map[string]*Command
	counter  *prometheus.CounterVec
}

func NewDispatcher(env *app.Env, prefix string, svc Services) *Dispatcher {
	if prefix == "" {
		prefix = "!"
	}
	d := &Dispatcher{
		env:    env,
		prefix: prefix,
		svc:    svc,
		index:  make(map[string]*Command),
		counter: metrics.Register(env.Registry, promauto.With(nil).NewCounterVec(prometheus.CounterOpts{
			Name: "alliance_commands_total",
			Help: "Prefix commands handled, by command and result.",
		}, []string{"command", "result"})),
	}
	d.commands = d.table()
	for _, c := range d.commands {
		d.index[c.Name] = c
		for _, alias := range c.Aliases {
			d.index[alias] = c
		}
	}
	return d
}

func (d *Dispatcher) Prefix() string {
	return d.prefix
}

// Lookup finds a command by name or alias, case-insensitively.
func (d *Dispatcher) Lookup(name string) (*Command, bool) {
	c, ok := d.index[strings.ToLower(name)]
	return c, ok
}

// Handle executes msg if it is a command and posts the reply to its channel.
// It reports whether msg was a recognised command.
func (d *Dispatcher) Handle(ctx context.Context, msg platform.IncomingMessage) bool {
	reply, ok := d.Execute(ctx, msg)
	if !ok {
		return false
	}
	if reply != "" {
		d.reply(ctx, msg.ChannelID, reply)
	}
	return true
}

// Execute runs msg and returns the reply text instead of sending it.
func (d *Dispatcher) Execute(ctx context.Context, msg platform.IncomingMessage) (reply string, handled bool) {
	if msg.Author.Bot || msg.GuildID == 0 || !strings.HasPrefix(msg.Content, d.prefix) {
		return "", false
	}
	name, rest := splitHead(strings.TrimPrefix(msg.Content, d.prefix))
	cmd, ok := d.Lookup(name)
	if !ok {
		return "", false
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Command panicked",
				zap.String("command", cmd.Name),
				zap.Int64("actor_id", int64(msg.Author.ID)),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			d.counter.WithLabelValues(cmd.Name, "panic").Inc()
			reply, handled = msgUnexpected, true
		}
	}()

	target, raw := cmd, rest
	if len(cmd.Subcommands) > 0 {
		subName, subRest := splitHead(rest)
		if sub, ok := cmd.subcommand(subName); ok {
			target, raw = sub, subRest
		}
	}

	allowed, err := d.permitted(ctx, msg.Author.ID, target)
	if err != nil {
		return d.fail(cmd.Name, target, msg, err), true
	}
	if !allowed {
		d.counter.WithLabelValues(cmd.Name, "forbidden").Inc()
		return fmt.Sprintf(msgNoPermission, cmd.Name), true
	}

	args, err := d.parseArgs(ctx, target.Args, raw)
	if err != nil {
		return d.fail(cmd.Name, target, msg, err), true
	}

	req := &Request{Msg: msg, Command: target, Args: args, d: d}
	out, err := target.Run(ctx, req)
	if err != nil {
		return d.fail(cmd.Name, target, msg, err), true
	}
	d.counter.WithLabelValues(cmd.Name, "ok").Inc()
	return out, true
}

func (d *Dispatcher) permitted(ctx context.Context, userID snowflake.ID, c *Command) (bool, error) {
	perm := c.permission()
	if perm == 0 {
		return true, nil
	}
	return d.env.Platform.HasPermission(ctx, userID, perm)
}

// fail maps a command error to the reply shown to the invoker.
func (d *Dispatcher) fail(name string, c *Command, msg platform.IncomingMessage, err error) string {
	var argErr *ArgError
	switch {
	case errors.As(err, &argErr):
		d.counter.WithLabelValues(name, "bad_argument").Inc()
		if argErr.Msg != "" {
			return argErr.Msg
		}
		if argErr.Missing {
			return fmt.Sprintf(msgMissingArg, d.usage(c))
		}
		return msgBadArgument
	case errors.Is(err, platform.ErrPermission):
		d.counter.WithLabelValues(name, "bot_forbidden").Inc()
		logger.Warn("Command hit a permission error",
			zap.String("command", name),
			zap.Error(err))
		return msgBotPermission
	}

	d.counter.WithLabelValues(name, "error").Inc()
	logger.Error("Command failed",
		zap.String("command", name),
		zap.Int64("actor_id", int64(msg.Author.ID)),
		zap.String("content", msg.Content),
		zap.Error(err))
	return msgUnexpected
}

func (d *Dispatcher) usage(c *Command) string {
	return strings.TrimSpace(d.prefix + c.qualifiedName() + " " + c.signature())
}

func (d *Dispatcher) reply(ctx context.Context, channelID snowflake.ID, text string) {
	for _, chunk := range notification.Split(text, notification.MaxMessageLength) {
		if _, err := d.env.Platform.SendMessage(ctx, channelID, chunk); err != nil {
			logger.Warn("Failed to send command reply",
				zap.Int64("channel_id", int64(channelID)),
				zap.Error(err))
			return
		}
	}
}
