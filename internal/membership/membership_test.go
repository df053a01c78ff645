package membership

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ichi0g0y/alliance-bot/internal/app/apptest"
	"github.com/ichi0g0y/alliance-bot/internal/platform"
	"github.com/ichi0g0y/alliance-bot/internal/roles"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
)

const (
	recruitRole snowflake.ID = 600
	memberRole  snowflake.ID = 601
	officer     snowflake.ID = 9
)

func setupService(t *testing.T) (*apptest.Harness, *Service) {
	t.Helper()
	h := apptest.New(t)
	ctx := context.Background()
	h.Guild.PutRole(platform.Role{ID: recruitRole, Name: "Recruit"})
	h.Guild.PutRole(platform.Role{ID: memberRole, Name: "Member"})
	h.Guild.PutMember(platform.Member{User: platform.User{ID: officer, Username: "officer"}})
	if _, err := h.Env.Settings.AddToIDList(ctx, settings.KeyAcceptAddRoles, memberRole); err != nil {
		t.Fatalf("AddToIDList failed: %v", err)
	}
	if _, err := h.Env.Settings.AddToIDList(ctx, settings.KeyAcceptRemoveRoles, recruitRole); err != nil {
		t.Fatalf("AddToIDList failed: %v", err)
	}
	// ギルドに存在しないロールは無視される
	if _, err := h.Env.Settings.AddToIDList(ctx, settings.KeyAcceptAddRoles, 4040); err != nil {
		t.Fatalf("AddToIDList failed: %v", err)
	}
	return h, NewService(h.Env, roles.NewReconciler(h.Env))
}

func TestAcceptSwapsRolesAndRecordsJoinDate(t *testing.T) {
	h, svc := setupService(t)
	ctx := context.Background()
	h.Guild.PutMember(platform.Member{User: platform.User{ID: 1}, Roles: []snowflake.ID{recruitRole}})

	// 既存のカウンタは保持される
	if err := h.Env.Store.IncrementParticipation(ctx, 1, apptest.DaysAgo(400)); err != nil {
		t.Fatalf("IncrementParticipation failed: %v", err)
	}

	res, err := svc.Accept(ctx, officer, []snowflake.ID{1, 2})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if len(res.Accepted) != 1 || res.Accepted[0] != 1 {
		t.Fatalf("accepted got=%v want=[1]", res.Accepted)
	}
	if len(res.Failed) != 1 || res.Failed[0].MemberID != 2 {
		t.Fatalf("failed got=%+v want member 2", res.Failed)
	}

	m, _ := h.Guild.Member(ctx, 1)
	if !m.HasRole(memberRole) || m.HasRole(recruitRole) {
		t.Fatalf("roles got=%v want member role only", m.Roles)
	}
	rec, err := h.Env.Store.GetMember(ctx, 1)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if !rec.JoinDate.Equal(apptest.Now) || rec.ParticipationCount != 1 {
		t.Fatalf("record got=%+v want join=now participation=1", rec)
	}
	if logs := h.Sink.Logs(); len(logs) != 1 || logs[0] != "**Accept**: <@9> accepted <@1>." {
		t.Fatalf("unexpected audit lines: %q", logs)
	}
}

func TestAcceptPermissionFailure(t *testing.T) {
	h, svc := setupService(t)
	ctx := context.Background()
	h.Guild.PutMember(platform.Member{User: platform.User{ID: 1}})
	h.Guild.DenyRole(memberRole)

	res, err := svc.Accept(ctx, officer, []snowflake.ID{1})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0].Reason != "Missing Permissions" {
		t.Fatalf("failed got=%+v want Missing Permissions", res.Failed)
	}
	if _, err := h.Env.Store.GetMember(ctx, 1); err == nil {
		t.Fatalf("member should not be recorded when roles could not be applied")
	}
}

func TestAcceptRequiresMembers(t *testing.T) {
	_, svc := setupService(t)
	if _, err := svc.Accept(context.Background(), officer, nil); !errors.Is(err, ErrNoMembers) {
		t.Fatalf("Accept(nil) error got=%v want=%v", err, ErrNoMembers)
	}
}

func TestSyncMembers(t *testing.T) {
	h, svc := setupService(t)
	ctx := context.Background()
	joined := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	h.Guild.PutMember(platform.Member{User: platform.User{ID: 1}, JoinedAt: joined})
	h.Guild.PutMember(platform.Member{User: platform.User{ID: 2}, JoinedAt: joined})
	h.Guild.PutMember(platform.Member{User: platform.User{ID: 3, Bot: true}, JoinedAt: joined})
	if err := h.Env.Store.UpsertJoinDate(ctx, 2, apptest.DaysAgo(5)); err != nil {
		t.Fatalf("UpsertJoinDate failed: %v", err)
	}

	added, err := svc.SyncMembers(ctx, officer)
	if err != nil {
		t.Fatalf("SyncMembers failed: %v", err)
	}
	// officer と 1 が追加される（2 は既存、3 は bot）
	if added != 2 {
		t.Fatalf("added got=%d want=2", added)
	}
	rec, err := h.Env.Store.GetMember(ctx, 1)
	if err != nil || !rec.JoinDate.Equal(joined) {
		t.Fatalf("member 1 got=%+v/%v want join=%v", rec, err, joined)
	}
	rec, _ = h.Env.Store.GetMember(ctx, 2)
	if !rec.JoinDate.Equal(apptest.DaysAgo(5)) {
		t.Fatalf("existing record must not be overwritten: %+v", rec)
	}
	if _, err := h.Env.Store.GetMember(ctx, 3); err == nil {
		t.Fatalf("bots must not be tracked")
	}

	again, err := svc.SyncMembers(ctx, officer)
	if err != nil || again != 0 {
		t.Fatalf("second sync got=%d/%v want=0/nil", again, err)
	}
}

func TestSetJoinDate(t *testing.T) {
	h, svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.SetJoinDate(ctx, officer, 1, "21-05-2023"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("bad date error got=%v want=%v", err, ErrInvalidDate)
	}

	got, err := svc.SetJoinDate(ctx, officer, 1, "2023-05-21")
	if err != nil {
		t.Fatalf("SetJoinDate failed: %v", err)
	}
	want := time.Date(2023, 5, 21, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("date got=%v want=%v", got, want)
	}
	rec, err := h.Env.Store.GetMember(ctx, 1)
	if err != nil || !rec.JoinDate.Equal(want) || rec.ParticipationCount != 0 {
		t.Fatalf("record got=%+v/%v", rec, err)
	}
	if !strings.Contains(h.Sink.Logs()[0], "join date to 2023-05-21") {
		t.Fatalf("unexpected audit line: %q", h.Sink.Logs()[0])
	}
}

func TestProfile(t *testing.T) {
	h, svc := setupService(t)
	ctx := context.Background()

	p, err := svc.Profile(ctx, 1)
	if err != nil || p.Tracked {
		t.Fatalf("untracked profile got=%+v/%v", p, err)
	}

	if err := h.Env.Store.UpsertJoinDate(ctx, 1, apptest.DaysAgo(45)); err != nil {
		t.Fatalf("UpsertJoinDate failed: %v", err)
	}
	if err := h.Env.Store.IncrementHostCount(ctx, 1, apptest.Now); err != nil {
		t.Fatalf("IncrementHostCount failed: %v", err)
	}
	p, err = svc.Profile(ctx, 1)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if !p.Tracked || p.TenureDays != 45 || p.Hosted != 1 || p.Attended != 0 {
		t.Fatalf("profile got=%+v", p)
	}
}
