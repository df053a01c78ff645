package commands

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app/apptest"
	"github.com/ichi0g0y/alliance-bot/internal/awards"
	"github.com/ichi0g0y/alliance-bot/internal/eventtracker"
	"github.com/ichi0g0y/alliance-bot/internal/membership"
	"github.com/ichi0g0y/alliance-bot/internal/milestone"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/roles"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/ichi0g0y/alliance-bot/internal/stats"
	"github.com/ichi0g0y/alliance-bot/internal/types"
)

const (
	cmdChan   snowflake.ID = 50
	adminID   snowflake.ID = 100
	modID     snowflake.ID = 101
	plainID   snowflake.ID = 102
	recruitID snowflake.ID = 103
	roleA     snowflake.ID = 500
)

func setupDispatcher(t *testing.T) (*apptest.Harness, *Dispatcher) {
	t.Helper()
	h := apptest.New(t)
	h.Guild.PutChannel(platform.Channel{ID: cmdChan, Name: "bot-commands"})
	h.Guild.PutRole(platform.Role{ID: roleA, Name: "Member"})
	for _, m := range []platform.Member{
		{User: platform.User{ID: adminID, Username: "admin"}, DisplayName: "Admin"},
		{User: platform.User{ID: modID, Username: "mod"}, DisplayName: "Mod"},
		{User: platform.User{ID: plainID, Username: "plain"}, DisplayName: "Plain"},
		{User: platform.User{ID: recruitID, Username: "recruit"}, DisplayName: "Recruit"},
	} {
		h.Guild.PutMember(m)
	}
	h.Guild.Grant(adminID, platform.PermAdministrator)
	h.Guild.Grant(modID, platform.PermManageRoles|platform.PermManageEvents)

	rec := roles.NewReconciler(h.Env)
	evaluator := milestone.NewEvaluator(h.Env, rec)
	d := NewDispatcher(h.Env, "!", Services{
		Awards:     awards.NewEngine(h.Env, rec),
		Milestones: evaluator,
		Events:     eventtracker.NewTracker(h.Env, evaluator),
		Membership: membership.NewService(h.Env, rec),
		Stats:      stats.NewService(h.Env),
	})
	return h, d
}

func msgFrom(author snowflake.ID, content string) platform.IncomingMessage {
	return platform.IncomingMessage{
		ID:        900,
		ChannelID: cmdChan,
		GuildID:   1,
		Author:    platform.User{ID: author},
		Content:   content,
	}
}

func run(t *testing.T, d *Dispatcher, author snowflake.ID, content string) string {
	t.Helper()
	reply, ok := d.Execute(context.Background(), msgFrom(author, content))
	if !ok {
		t.Fatalf("%q was not handled", content)
	}
	return reply
}

func TestExecuteIgnoresNonCommands(t *testing.T) {
	_, d := setupDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  platform.IncomingMessage
	}{
		{name: "plain chat", msg: msgFrom(plainID, "hello there")},
		{name: "unknown command", msg: msgFrom(plainID, "!dance")},
		{name: "bare prefix", msg: msgFrom(plainID, "!")},
		{name: "bot author", msg: platform.IncomingMessage{GuildID: 1, Author: platform.User{ID: 9, Bot: true}, Content: "!help"}},
		{name: "direct message", msg: platform.IncomingMessage{Author: platform.User{ID: plainID}, Content: "!help"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if reply, ok := d.Execute(ctx, tc.msg); ok {
				t.Fatalf("Execute handled %q with reply %q", tc.msg.Content, reply)
			}
		})
	}
}

func TestPermissionDenied(t *testing.T) {
	_, d := setupDispatcher(t)

	got := run(t, d, plainID, "!accept <@103>")
	want := "⛔ You don't have permission to use the `accept` command."
	if got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}

	// サブコマンドは親の権限を引き継ぐ
	got = run(t, d, modID, "!config-tenure set 30 <@&500>")
	if !strings.HasPrefix(got, "⛔") || !strings.Contains(got, "`config-tenure`") {
		t.Fatalf("unexpected reply for subcommand without permission: %q", got)
	}
}

func TestArgumentErrors(t *testing.T) {
	_, d := setupDispatcher(t)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing",
			content: "!set-joindate",
			want:    "🤔 You're missing an argument. Correct usage: `!set-joindate <member> <YYYY-MM-DD>`",
		},
		{
			name:    "missing second",
			content: "!set-joindate <@103>",
			want:    "🤔 You're missing an argument. Correct usage: `!set-joindate <member> <YYYY-MM-DD>`",
		},
		{
			name:    "unknown member",
			content: "!set-joindate <@999> 2024-01-01",
			want:    msgBadArgument,
		},
		{
			name:    "bad date",
			content: "!set-joindate <@103> 21-05-2023",
			want:    "❌ Invalid date format. Please use `YYYY-MM-DD` (e.g., `2023-05-21`).",
		},
		{
			name:    "bad number",
			content: "!config-tenure set thirty <@&500>",
			want:    "⚠️ `thirty` is not a valid number.",
		},
		{
			name:    "unknown role",
			content: "!config-tenure set 30 <@&777>",
			want:    msgBadArgument,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := run(t, d, adminID, tc.content); got != tc.want {
				t.Fatalf("got=%q want=%q", got, tc.want)
			}
		})
	}
}

func TestAcceptCommand(t *testing.T) {
	h, d := setupDispatcher(t)
	ctx := context.Background()

	if got := run(t, d, modID, "!accept"); got != "Please mention at least one member to accept." {
		t.Fatalf("unexpected reply without members: %q", got)
	}

	if got := run(t, d, adminID, "!config-accept add <@&500>"); got != "✅ <@&500> will now be **added** on `!accept`." {
		t.Fatalf("unexpected config reply: %q", got)
	}
	if got := run(t, d, adminID, "!config-accept add <@&500>"); got != "⚠️ <@&500> is already in the 'add' list." {
		t.Fatalf("unexpected duplicate reply: %q", got)
	}

	got := run(t, d, modID, "!accept <@103>")
	if got != "✅ Successfully accepted: <@103>. Welcome to the alliance!" {
		t.Fatalf("unexpected accept reply: %q", got)
	}
	m, err := h.Env.Store.GetMember(ctx, recruitID)
	if err != nil || !m.JoinDate.Equal(apptest.Now) {
		t.Fatalf("recruit not recorded: %+v %v", m, err)
	}
	member, _ := h.Guild.Member(ctx, recruitID)
	if !member.HasRole(roleA) {
		t.Fatalf("recruit should have the accept role: %v", member.Roles)
	}

	list := run(t, d, adminID, "!config-accept")
	if !strings.Contains(list, "**Roles to Add:** <@&500>") || !strings.Contains(list, "**Roles to Remove:** None") {
		t.Fatalf("unexpected accept config listing: %q", list)
	}
}

func TestSetJoinDateAndProfile(t *testing.T) {
	_, d := setupDispatcher(t)

	if got := run(t, d, plainID, "!profile"); !strings.Contains(got, "not officially tracked") {
		t.Fatalf("untracked profile reply: %q", got)
	}

	got := run(t, d, adminID, "!set-joindate <@!103> 2024-05-02")
	if got != "✅ Successfully set <@103>'s join date to **2024-05-02**." {
		t.Fatalf("unexpected set-joindate reply: %q", got)
	}

	got = run(t, d, plainID, "!profile <@103>")
	for _, want := range []string{"**Alliance Profile: Recruit**", "Alliance Tenure: **30** days", "Events Attended: **0**"} {
		if !strings.Contains(got, want) {
			t.Fatalf("profile %q missing %q", got, want)
		}
	}
}

func TestEventLifecycleCommands(t *testing.T) {
	h, d := setupDispatcher(t)
	ctx := context.Background()

	if reply := run(t, d, modID, "!event-create   Raid Night  "); reply != "" {
		t.Fatalf("event-create should not reply on success: %q", reply)
	}
	events, err := h.Env.Store.ListActiveEvents(ctx)
	if err != nil || len(events) != 1 || events[0].Title != "Raid Night" {
		t.Fatalf("unexpected active events: %+v %v", events, err)
	}
	eventMsg := events[0].MessageID
	h.Guild.React(eventMsg, platform.CheckMark, platform.User{ID: recruitID})
	h.Guild.React(eventMsg, platform.CheckMark, platform.User{ID: plainID})

	if got := run(t, d, modID, "!event-close"); !strings.Contains(got, "as a **reply**") {
		t.Fatalf("close without reference: %q", got)
	}

	closeMsg := func(author snowflake.ID) platform.IncomingMessage {
		m := msgFrom(author, "!event-close")
		m.ReferenceID = eventMsg
		return m
	}

	h.Guild.Grant(plainID, platform.PermManageEvents)
	got, _ := d.Execute(ctx, closeMsg(plainID))
	if got != "❌ **Error:** Only the event host (<@101>) or an Administrator can close this event." {
		t.Fatalf("unexpected non-host reply: %q", got)
	}

	got, _ = d.Execute(ctx, closeMsg(modID))
	if got != "✅ Event 'Raid Night' has been closed. Stats have been updated for 2 participants and 1 host." {
		t.Fatalf("unexpected close reply: %q", got)
	}

	got, _ = d.Execute(ctx, closeMsg(adminID))
	if got != "❌ **Error:** That message is not an active event that I am tracking." {
		t.Fatalf("unexpected second close reply: %q", got)
	}
}

func TestEventCreateWithoutSendPermission(t *testing.T) {
	h, d := setupDispatcher(t)
	h.Guild.DenySend(cmdChan)

	got := run(t, d, modID, "!event-create Raid")
	if got != "❌ **Error:** I don't have permissions to send messages or add reactions in this channel." {
		t.Fatalf("got=%q", got)
	}
}

func TestAwardCycleCommand(t *testing.T) {
	h, d := setupDispatcher(t)

	tests := []struct {
		content string
		want    string
	}{
		{content: "!award-cycle", want: "Invalid subcommand. Use `run` or `reset`. Example: `!award-cycle run gamma`"},
		{content: "!award-cycle run delta", want: msgInvalidTier},
		{content: "!award-cycle run gamma", want: "No monthly awards found in the configuration."},
		{content: "!award-cycle reset beta", want: "✅ Data reset complete. Deleted 0 old log entries."},
	}
	for _, tc := range tests {
		if got := run(t, d, adminID, tc.content); got != tc.want {
			t.Fatalf("%s: got=%q want=%q", tc.content, got, tc.want)
		}
	}

	// 進捗メッセージはコマンドのチャンネルに直接送られる
	sent := h.Guild.SentTo(cmdChan)
	if len(sent) != 2 || !strings.Contains(sent[0].Content, "**Gamma (monthly)**") {
		t.Fatalf("unexpected progress messages: %+v", sent)
	}
}

func TestAwardCycleRunReportsToLogChannel(t *testing.T) {
	h, d := setupDispatcher(t)
	ctx := context.Background()

	run(t, d, adminID, "!config-award create Chatterbox server monthly <@&500>")
	if err := h.Env.Store.RecordActivity(ctx, types.ActivityEvent{UserID: recruitID, ChannelID: cmdChan, Timestamp: apptest.DaysAgo(1)}); err != nil {
		t.Fatalf("RecordActivity failed: %v", err)
	}

	got := run(t, d, adminID, "!award-cycle run gamma")
	if got != "✅ Award cycle finished. A detailed report has been sent to the log channel." {
		t.Fatalf("got=%q", got)
	}
	reported := false
	for _, l := range h.Sink.Logs() {
		if strings.Contains(l, "Award Cycle Report") && strings.Contains(l, "<@103>") {
			reported = true
		}
	}
	if !reported {
		t.Fatalf("report not logged: %v", h.Sink.Logs())
	}
}

func TestConfigAwardCommands(t *testing.T) {
	h, d := setupDispatcher(t)
	h.Guild.PutChannel(platform.Channel{ID: 60, Name: "Raids", Kind: platform.ChannelCategory})

	tests := []struct {
		content string
		want    string
	}{
		{content: "!config-award create Top weekly monthly <@&500>", want: "❌ Invalid award type. Must be `server`, `channel`, or `category`."},
		{content: "!config-award create Top server yearly <@&500>", want: "❌ Invalid frequency. Must be `monthly` or `quarterly`."},
		{content: "!config-award create Top category monthly <@&500>", want: "❌ The `category` type requires a target channel or category."},
		{content: "!config-award create Top category quarterly <@&500> <#60>", want: "✅ Award `Top` created successfully!"},
		{content: `!config-award create "Best Chatter" server monthly <@&500>`, want: "✅ Award `Best Chatter` created successfully!"},
		{content: "!config-award delete Nope", want: "⚠️ No award named `Nope` was found."},
	}
	for _, tc := range tests {
		if got := run(t, d, adminID, tc.content); got != tc.want {
			t.Fatalf("%s: got=%q want=%q", tc.content, got, tc.want)
		}
	}

	list := run(t, d, adminID, "!config-award")
	if !strings.Contains(list, "`Top` (Quarterly): **Type:** Category in **Raids** **Role:** <@&500>") ||
		!strings.Contains(list, "`Best Chatter` (Monthly): **Type:** Server") {
		t.Fatalf("unexpected award listing: %q", list)
	}
}

func TestConfigTenureCommands(t *testing.T) {
	h, d := setupDispatcher(t)
	ctx := context.Background()

	if got := run(t, d, adminID, "!config-tenure"); !strings.Contains(got, "No tenure roles configured.") {
		t.Fatalf("unexpected empty listing: %q", got)
	}

	h.Guild.PutRole(platform.Role{ID: 501, Name: "Veteran"})
	steps := []struct {
		content string
		want    string
	}{
		{content: "!config-tenure set 90 <@&501>", want: "✅ Tenure role for **90 days** set to <@&501>."},
		{content: "!config-tenure set 30 <@&500>", want: "✅ Tenure role for **30 days** set to <@&500>."},
		{content: "!config-tenure set 0 <@&500>", want: "❌ The threshold must be a positive number."},
		{content: "!config-tenure set-qualifier <@&500>", want: "✅ Done. Tenure checks will now only apply to members with the <@&500> role."},
	}
	for _, s := range steps {
		if got := run(t, d, adminID, s.content); got != s.want {
			t.Fatalf("%s: got=%q want=%q", s.content, got, s.want)
		}
	}

	h.Guild.DeleteRole(501)
	list := run(t, d, adminID, "!config-tenure")
	want := "**Tenure Milestone Roles**\n**30 Days**: <@&500>\n**90 Days**: Deleted Role (ID: 501)\n**Qualifying Role:** <@&500>"
	if list != want {
		t.Fatalf("got=%q want=%q", list, want)
	}

	run(t, d, adminID, "!config-tenure clear-qualifier")
	if _, ok, _ := h.Env.Settings.ID(ctx, settings.KeyTenureQualifier); ok {
		t.Fatalf("qualifier should be cleared")
	}

	if got := run(t, d, adminID, "!config-tenure remove 90"); got != "✅ Removed the tenure role for **90 days**." {
		t.Fatalf("unexpected remove reply: %q", got)
	}
}

func TestConfigChannelsAndParticipation(t *testing.T) {
	h, d := setupDispatcher(t)
	ctx := context.Background()

	if got := run(t, d, adminID, "!config-logchannel <#50>"); got != "✅ Log channel has been set to <#50>" {
		t.Fatalf("got=%q", got)
	}
	if got := run(t, d, adminID, "!config-announcements 50"); got != "✅ Award announcement channel has been set to <#50>" {
		t.Fatalf("got=%q", got)
	}
	if id, ok, _ := h.Env.Settings.ID(ctx, settings.KeyAnnouncementChannel); !ok || id != cmdChan {
		t.Fatalf("announcement channel not stored: %s %v", id, ok)
	}

	if got := run(t, d, adminID, "!config-participation set 5 <@&500>"); got != "✅ Participation role for **5 events** set to <@&500>." {
		t.Fatalf("got=%q", got)
	}
	if got := run(t, d, adminID, "!config-participation"); !strings.Contains(got, "**5 Events**: <@&500>") {
		t.Fatalf("unexpected participation listing: %q", got)
	}
}

func TestLeaderboardCommand(t *testing.T) {
	_, d := setupDispatcher(t)

	if got := run(t, d, plainID, "!LB hosting"); got != "**Top 10 Event Hosts**\nNo one has hosted an event yet." {
		t.Fatalf("got=%q", got)
	}
	if got := run(t, d, plainID, "!leaderboard karma"); got != "Invalid statistic. Please use `activity`, `participation`, or `hosting`." {
		t.Fatalf("got=%q", got)
	}
}

func TestHelpCommand(t *testing.T) {
	_, d := setupDispatcher(t)

	all := run(t, d, plainID, "!help")
	for _, want := range []string{"`!accept [members...]`", "`!event-close`", "`!leaderboard [activity|participation|hosting]`"} {
		if !strings.Contains(all, want) {
			t.Fatalf("help listing missing %q", want)
		}
	}

	one := run(t, d, plainID, "!help award-cycle")
	if !strings.Contains(one, "`!award-cycle run <gamma|beta>`") || !strings.Contains(one, "`!award-cycle reset <gamma|beta>`") {
		t.Fatalf("unexpected command help: %q", one)
	}

	if got := run(t, d, plainID, "!help lb"); !strings.HasPrefix(got, "`!leaderboard [activity|participation|hosting]`") {
		t.Fatalf("alias lookup got=%q", got)
	}
	if got := run(t, d, plainID, "!help acept"); got != "❓ No command named `acept`." {
		t.Fatalf("got=%q", got)
	}
}

func TestHandleSendsReply(t *testing.T) {
	h, d := setupDispatcher(t)

	if !d.Handle(context.Background(), msgFrom(plainID, "!leaderboard participation")) {
		t.Fatalf("Handle should report the command as handled")
	}
	sent := h.Guild.SentTo(cmdChan)
	if len(sent) != 1 || !strings.HasPrefix(sent[0].Content, "**Top 10") {
		t.Fatalf("unexpected replies: %+v", sent)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	h := apptest.New(t)
	h.Guild.PutMember(platform.Member{User: platform.User{ID: adminID}})
	h.Guild.Grant(adminID, platform.PermAdministrator)
	d := NewDispatcher(h.Env, "!", Services{})

	if got := run(t, d, adminID, "!check-tenure"); got != msgUnexpected {
		t.Fatalf("got=%q want=%q", got, msgUnexpected)
	}
}

// adminLookupFails errors on administrator checks only.
type adminLookupFails struct {
	platform.Client
}

func (p adminLookupFails) HasPermission(ctx context.Context, userID snowflake.ID, perm platform.Permission) (bool, error) {
	if perm == platform.PermAdministrator {
		return false, errors.New("member cache unavailable")
	}
	return p.Client.HasPermission(ctx, userID, perm)
}

func TestEventCloseWithoutReplySkipsAdminLookup(t *testing.T) {
	h, d := setupDispatcher(t)
	h.Env.Platform = adminLookupFails{Client: h.Guild}

	got := run(t, d, modID, "!event-close")
	want := "❌ **Error:** You must use this command as a **reply** to the event message you want to close."
	if got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}
