package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gorm.io/driver/sqlite"

	"portfolio/pkg/domain"
)

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "portfolio.db") + "?_busy_timeout=5000&_journal_mode=WAL"
	s, err := OpenGormStore(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("gorm_sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, s Store, id, email string) domain.User {
	t.Helper()
	u := domain.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: "hash",
		Role:         domain.RoleUser,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	if err := s.SaveUser(u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	return u
}

func seedPost(t *testing.T, s Store, id, owner string, created time.Time) domain.Post {
	t.Helper()
	p := domain.Post{
		ID:        id,
		UserID:    owner,
		Title:     "Title " + id,
		Content:   "<p>Body " + id + "</p>",
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := s.SavePost(p); err != nil {
		t.Fatalf("save post: %v", err)
	}
	return p
}

func TestStoreUsers(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		seedUser(t, s, "u-1", "alice@example.com")
		seedUser(t, s, "u-2", "bob@example.com")

		exists, err := s.HasUserEmail("alice@example.com")
		if err != nil || !exists {
			t.Fatalf("expected email to exist, exists=%v err=%v", exists, err)
		}
		exists, err = s.HasUserEmail("carol@example.com")
		if err != nil || exists {
			t.Fatalf("expected unknown email, exists=%v err=%v", exists, err)
		}

		u, ok, err := s.GetUserByEmail("bob@example.com")
		if err != nil || !ok || u.ID != "u-2" {
			t.Fatalf("get by email: %+v ok=%v err=%v", u, ok, err)
		}
		if _, ok, err := s.GetUserByID("missing"); err != nil || ok {
			t.Fatalf("expected missing user, ok=%v err=%v", ok, err)
		}

		users, err := s.GetUsersByIDs([]string{"u-1", "u-2", "u-3"})
		if err != nil {
			t.Fatalf("get users by ids: %v", err)
		}
		if len(users) != 2 || users["u-1"].Email != "alice@example.com" {
			t.Fatalf("unexpected users: %+v", users)
		}

		u.Role = domain.RoleAdmin
		if err := s.SaveUser(u); err != nil {
			t.Fatalf("update user: %v", err)
		}
		u, _, _ = s.GetUserByID("u-2")
		if u.Role != domain.RoleAdmin {
			t.Fatalf("expected role update, got %q", u.Role)
		}
	})
}

func TestStoreUserEmailUnique(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		alice := seedUser(t, s, "u-1", "alice@example.com")
		seedUser(t, s, "u-2", "bob@example.com")

		taken := alice
		taken.ID = "u-3"
		if err := s.SaveUser(taken); err == nil {
			t.Fatalf("expected error saving a second user with alice's email")
		}
		if _, ok, _ := s.GetUserByID("u-3"); ok {
			t.Fatalf("rejected user should not be stored")
		}
		owner, ok, err := s.GetUserByEmail("alice@example.com")
		if err != nil || !ok || owner.ID != "u-1" {
			t.Fatalf("email should still belong to u-1: %+v ok=%v err=%v", owner, ok, err)
		}

		moved, _, _ := s.GetUserByID("u-2")
		moved.Email = "alice@example.com"
		if err := s.SaveUser(moved); err == nil {
			t.Fatalf("expected error renaming bob onto alice's email")
		}
		if owner, _, _ := s.GetUserByEmail("bob@example.com"); owner.ID != "u-2" {
			t.Fatalf("failed rename should keep bob's email, got %+v", owner)
		}

		alice.Name = "Alice Renamed"
		if err := s.SaveUser(alice); err != nil {
			t.Fatalf("resaving the owner should succeed: %v", err)
		}
	})
}

func TestStorePostsWithChildren(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		seedUser(t, s, "u-1", "alice@example.com")
		seedPost(t, s, "p-old", "u-1", baseTime)
		seedPost(t, s, "p-new", "u-1", baseTime.Add(time.Hour))

		for i, id := range []string{"c-1", "c-2"} {
			c := domain.Comment{ID: id, PostID: "p-old", UserID: "u-1", Text: "comment " + id, CreatedAt: baseTime.Add(time.Duration(i) * time.Minute)}
			if err := s.AddComment(c); err != nil {
				t.Fatalf("add comment: %v", err)
			}
		}
		if _, _, err := s.ToggleLike("p-old", "u-1"); err != nil {
			t.Fatalf("toggle like: %v", err)
		}

		posts, err := s.ListPosts()
		if err != nil {
			t.Fatalf("list posts: %v", err)
		}
		if len(posts) != 2 || posts[0].ID != "p-new" || posts[1].ID != "p-old" {
			t.Fatalf("expected newest first, got %+v", posts)
		}
		if len(posts[0].Comments) != 0 || posts[0].Likes == nil {
			t.Fatalf("expected empty non-nil children on p-new: %+v", posts[0])
		}

		p, ok, err := s.GetPost("p-old")
		if err != nil || !ok {
			t.Fatalf("get post: ok=%v err=%v", ok, err)
		}
		if len(p.Comments) != 2 || p.Comments[0].ID != "c-1" || p.Comments[1].ID != "c-2" {
			t.Fatalf("expected comments oldest first, got %+v", p.Comments)
		}
		if len(p.Likes) != 1 || p.Likes[0] != "u-1" {
			t.Fatalf("unexpected likes: %+v", p.Likes)
		}

		p.Title = "Edited"
		p.UpdatedAt = baseTime.Add(2 * time.Hour)
		if err := s.SavePost(p); err != nil {
			t.Fatalf("update post: %v", err)
		}
		p, _, _ = s.GetPost("p-old")
		if p.Title != "Edited" || len(p.Comments) != 2 {
			t.Fatalf("update should keep children: %+v", p)
		}

		if err := s.DeletePost("p-old"); err != nil {
			t.Fatalf("delete post: %v", err)
		}
		if exists, _ := s.HasPost("p-old"); exists {
			t.Fatalf("expected post gone")
		}
		if _, ok, _ := s.GetComment("p-old", "c-1"); ok {
			t.Fatalf("expected comments removed with post")
		}
		likes, err := s.ListLikes("p-old")
		if err != nil || len(likes) != 0 {
			t.Fatalf("expected likes removed with post, likes=%v err=%v", likes, err)
		}
	})
}

func TestStoreCommentsScopedToPost(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		seedPost(t, s, "p-1", "u-1", baseTime)
		seedPost(t, s, "p-2", "u-1", baseTime)
		if err := s.AddComment(domain.Comment{ID: "c-1", PostID: "p-1", UserID: "u-2", Text: "hi", CreatedAt: baseTime}); err != nil {
			t.Fatalf("add comment: %v", err)
		}
		if _, ok, _ := s.GetComment("p-2", "c-1"); ok {
			t.Fatalf("comment must not resolve under another post")
		}
		c, ok, err := s.GetComment("p-1", "c-1")
		if err != nil || !ok || c.UserID != "u-2" {
			t.Fatalf("get comment: %+v ok=%v err=%v", c, ok, err)
		}
		if err := s.DeleteComment("p-2", "c-1"); err != nil {
			t.Fatalf("delete under wrong post: %v", err)
		}
		if _, ok, _ := s.GetComment("p-1", "c-1"); !ok {
			t.Fatalf("delete under wrong post must not remove the comment")
		}
		if err := s.DeleteComment("p-1", "c-1"); err != nil {
			t.Fatalf("delete comment: %v", err)
		}
		if _, ok, _ := s.GetComment("p-1", "c-1"); ok {
			t.Fatalf("expected comment removed")
		}
	})
}

func TestStoreToggleLike(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		seedPost(t, s, "p-1", "u-1", baseTime)

		liked, count, err := s.ToggleLike("p-1", "u-a")
		if err != nil || !liked || count != 1 {
			t.Fatalf("first toggle: liked=%v count=%d err=%v", liked, count, err)
		}
		liked, count, err = s.ToggleLike("p-1", "u-b")
		if err != nil || !liked || count != 2 {
			t.Fatalf("second user: liked=%v count=%d err=%v", liked, count, err)
		}
		liked, count, err = s.ToggleLike("p-1", "u-a")
		if err != nil || liked || count != 1 {
			t.Fatalf("unlike: liked=%v count=%d err=%v", liked, count, err)
		}
		likes, err := s.ListLikes("p-1")
		if err != nil || len(likes) != 1 || likes[0] != "u-b" {
			t.Fatalf("unexpected likes: %v err=%v", likes, err)
		}
	})
}

func TestStoreToggleLikeConcurrentDistinctUsers(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		seedPost(t, s, "p-1", "u-1", baseTime)
		users := []string{"u-a", "u-b", "u-c", "u-d", "u-e", "u-f"}

		var wg sync.WaitGroup
		errs := make(chan error, len(users))
		for _, id := range users {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				if _, _, err := s.ToggleLike("p-1", userID); err != nil {
					errs <- err
				}
			}(id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("concurrent toggle: %v", err)
		}
		likes, err := s.ListLikes("p-1")
		if err != nil {
			t.Fatalf("list likes: %v", err)
		}
		if len(likes) != len(users) {
			t.Fatalf("expected %d likes, got %v", len(users), likes)
		}
	})
}

func TestStoreContactMessages(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		first := domain.ContactMessage{ID: "m-1", Name: "A", Email: "a@example.com", Subject: "Hi", Message: "First", CreatedAt: baseTime}
		second := domain.ContactMessage{
			ID: "m-2", Name: "B", Email: "b@example.com", Subject: "Yo", Message: "Second",
			Meta:      map[string]string{"ip": "203.0.113.1"},
			CreatedAt: baseTime.Add(time.Minute),
		}
		for _, m := range []domain.ContactMessage{first, second} {
			if err := s.SaveContactMessage(m); err != nil {
				t.Fatalf("save message: %v", err)
			}
		}

		list, err := s.ListContactMessages()
		if err != nil {
			t.Fatalf("list messages: %v", err)
		}
		if len(list) != 2 || list[0].ID != "m-2" {
			t.Fatalf("expected newest first, got %+v", list)
		}
		if diff := cmp.Diff(second, list[0]); diff != "" {
			t.Fatalf("message round trip mismatch (-want +got):\n%s", diff)
		}

		if err := s.MarkContactMessageRead("m-1"); err != nil {
			t.Fatalf("mark read: %v", err)
		}
		m, ok, err := s.GetContactMessage("m-1")
		if err != nil || !ok || !m.Read {
			t.Fatalf("expected read message, got %+v ok=%v err=%v", m, ok, err)
		}

		if err := s.DeleteContactMessage("m-1"); err != nil {
			t.Fatalf("delete message: %v", err)
		}
		if _, ok, _ := s.GetContactMessage("m-1"); ok {
			t.Fatalf("expected message deleted")
		}
	})
}
