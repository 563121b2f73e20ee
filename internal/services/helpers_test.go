package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rdychk/rdychk/internal/config"
	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/pkg/response"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	}, logger.Silent)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (n *recordingNotifier) Publish(_ context.Context, e ChangeEvent) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) count(table, kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Table == table && e.Type == kind {
			c++
		}
	}
	return c
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []PreviewTask
}

func (q *recordingQueue) Enqueue(task *PreviewTask) error {
	q.mu.Lock()
	q.tasks = append(q.tasks, *task)
	q.mu.Unlock()
	return nil
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

// fixture is a group with services wired against a throwaway database.
type fixture struct {
	db       *gorm.DB
	authz    *AuthzService
	members  *MemberService
	groups   *GroupService
	location *LocationService
	notifier *recordingNotifier
	queue    *recordingQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	n := &recordingNotifier{}
	q := &recordingQueue{}
	authz := NewAuthzService(db)
	return &fixture{
		db:       db,
		authz:    authz,
		members:  NewMemberService(db, authz, n),
		groups:   NewGroupService(db, n),
		location: NewLocationService(db, authz, n, q, PolicyMember),
		notifier: n,
		queue:    q,
	}
}

func (f *fixture) createGroup(t *testing.T, slug, groupType string) *models.Group {
	t.Helper()
	g := &models.Group{Slug: slug, Name: slug, Type: groupType}
	if err := f.db.Create(g).Error; err != nil {
		t.Fatalf("create group: %v", err)
	}
	return g
}

func (f *fixture) join(t *testing.T, slug, name string) *models.Member {
	t.Helper()
	m, err := f.members.Join(context.Background(), slug, name, "")
	if err != nil {
		t.Fatalf("Join(%s) error = %v", name, err)
	}
	return m
}

// caller reloads the member and group and wraps them the way ResolveCaller does.
func (f *fixture) caller(t *testing.T, memberID string) *Caller {
	t.Helper()
	var m models.Member
	if err := f.db.First(&m, "id = ?", memberID).Error; err != nil {
		t.Fatalf("load member: %v", err)
	}
	var g models.Group
	if err := f.db.First(&g, "id = ?", m.GroupID).Error; err != nil {
		t.Fatalf("load group: %v", err)
	}
	return &Caller{member: m, group: g}
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !response.IsCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}
