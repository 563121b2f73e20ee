package services

import (
	"context"
	"strings"
	"testing"

	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/internal/session"
	"github.com/rdychk/rdychk/pkg/response"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Beach Party", "beach-party"},
		{"  --Friday!! drinks--  ", "friday-drinks"},
		{"Ünïcode only", "n-code-only"},
		{"!!!", "group"},
		{"", "group"},
		{strings.Repeat("a", 60), strings.Repeat("a", 40)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, expected %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewSlug_IsValidCookieSlug(t *testing.T) {
	for _, name := range []string{"Beach Party", "???", strings.Repeat("x y ", 30)} {
		slug := NewSlug(name)
		if !session.ValidSlug(slug) {
			t.Errorf("NewSlug(%q) = %q is not a valid slug", name, slug)
		}
		if len(slug) < 8 || slug[len(slug)-7] != '-' {
			t.Errorf("NewSlug(%q) = %q lacks a 6 character suffix", name, slug)
		}
	}
}

func TestGroupService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.groups.Create(ctx, &CreateGroupRequest{Name: "Beach Party", Type: models.GroupTypeInPerson}, "user-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(g.Slug, "beach-party-") || g.CreatedBy == nil || *g.CreatedBy != "user-1" {
		t.Errorf("unexpected group %+v", g)
	}

	anon, err := f.groups.Create(ctx, &CreateGroupRequest{Name: "Beach Party"}, "")
	if err != nil {
		t.Fatal(err)
	}
	if anon.Slug == g.Slug || anon.Type != models.GroupTypeRemote || anon.CreatedBy != nil {
		t.Errorf("unexpected anonymous group %+v", anon)
	}

	_, err = f.groups.Create(ctx, &CreateGroupRequest{Name: "x", Type: "hybrid"}, "")
	expectCode(t, err, response.CodeBadRequest)

	lat := 123.0
	_, err = f.groups.Create(ctx, &CreateGroupRequest{Name: "x", BaseLat: &lat}, "")
	expectCode(t, err, response.CodeBadRequest)
}

func TestGroupService_View(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "beach-party-ab12cd", models.GroupTypeInPerson)
	ana := f.join(t, g.Slug, "Ana")
	ben := f.join(t, g.Slug, "Ben")
	if _, err := f.members.ToggleReady(ctx, f.caller(t, ben.ID), true); err != nil {
		t.Fatal(err)
	}
	f.db.Create(&models.LocationVote{GroupID: g.ID, MemberID: ana.ID, Vote: 1})
	f.db.Create(&models.LocationVote{GroupID: g.ID, MemberID: ben.ID, Vote: -1})

	view, err := f.groups.View(ctx, g.Slug)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if len(view.Members) != 2 || view.Members[0].ID != ana.ID {
		t.Errorf("members not in join order: %+v", view.Members)
	}
	if view.ReadyCount != 1 {
		t.Errorf("ReadyCount = %d, expected 1", view.ReadyCount)
	}
	if view.Tally != (models.VoteTally{Up: 1, Down: 1, Score: 0}) {
		t.Errorf("unexpected tally %+v", view.Tally)
	}

	_, err = f.groups.View(ctx, "missing")
	expectCode(t, err, response.CodeNotFound)
}

func TestGroupService_UpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.createGroup(t, "beach-party-ab12cd", models.GroupTypeRemote)
	ana := f.join(t, g.Slug, "Ana")
	ben := f.join(t, g.Slug, "Ben")

	name := "Beach night"
	typ := models.GroupTypeInPerson
	_, err := f.groups.UpdateSettings(ctx, f.caller(t, ben.ID), &UpdateSettingsRequest{Name: &name})
	expectCode(t, err, response.CodeForbidden)

	updated, err := f.groups.UpdateSettings(ctx, f.caller(t, ana.ID), &UpdateSettingsRequest{Name: &name, Type: &typ})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if updated.Name != name || updated.Type != typ || updated.Slug != g.Slug {
		t.Errorf("unexpected group %+v", updated)
	}

	_, err = f.groups.UpdateSettings(ctx, f.caller(t, ana.ID), &UpdateSettingsRequest{})
	expectCode(t, err, response.CodeBadRequest)
}
