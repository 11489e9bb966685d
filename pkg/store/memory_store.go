package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"portfolio/pkg/domain"
)

// MemoryStore keeps everything in process memory. It is meant for tests and
// local runs without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	emails   map[string]string // email -> userID
	posts    map[string]domain.Post
	comments map[string][]domain.Comment // postID -> comments, oldest first
	likes    map[string][]string         // postID -> userIDs, oldest first
	contacts map[string]domain.ContactMessage
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		emails:   make(map[string]string),
		posts:    make(map[string]domain.Post),
		comments: make(map[string][]domain.Comment),
		likes:    make(map[string][]string),
		contacts: make(map[string]domain.ContactMessage),
	}
}

// SaveUser upserts by id. Like the database's unique index, an email already
// held by another user is rejected.
func (s *MemoryStore) SaveUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.emails[u.Email]; ok && owner != u.ID {
		return fmt.Errorf("email %q already belongs to another user", u.Email)
	}
	if prev, ok := s.users[u.ID]; ok && prev.Email != u.Email {
		delete(s.emails, prev.Email)
	}
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) HasUserEmail(email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.emails[email]
	return ok, nil
}

func (s *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUsersByIDs(ids []string) (map[string]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			res[id] = u
		}
	}
	return res, nil
}

func (s *MemoryStore) SavePost(p domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Comments = nil
	p.Likes = nil
	p.Author = nil
	s.posts[p.ID] = p
	return nil
}

func (s *MemoryStore) HasPost(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.posts[id]
	return ok, nil
}

func (s *MemoryStore) GetPost(id string) (domain.Post, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return domain.Post{}, false, nil
	}
	return s.withChildrenLocked(p), true, nil
}

func (s *MemoryStore) ListPosts() ([]domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		res = append(res, s.withChildrenLocked(p))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// withChildrenLocked returns a copy of p whose slices do not alias store state.
func (s *MemoryStore) withChildrenLocked(p domain.Post) domain.Post {
	p.Comments = append([]domain.Comment{}, s.comments[p.ID]...)
	p.Likes = append([]string{}, s.likes[p.ID]...)
	return p
}

func (s *MemoryStore) DeletePost(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
	delete(s.comments, id)
	delete(s.likes, id)
	return nil
}

func (s *MemoryStore) AddComment(c domain.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Author = nil
	s.comments[c.PostID] = append(s.comments[c.PostID], c)
	return nil
}

func (s *MemoryStore) GetComment(postID, commentID string) (domain.Comment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.comments[postID] {
		if c.ID == commentID {
			return c, true, nil
		}
	}
	return domain.Comment{}, false, nil
}

func (s *MemoryStore) DeleteComment(postID, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.comments[postID]
	for i, c := range list {
		if c.ID == commentID {
			s.comments[postID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ToggleLike(postID, userID string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.likes[postID]
	for i, id := range list {
		if id == userID {
			list = append(list[:i:i], list[i+1:]...)
			s.likes[postID] = list
			return false, len(list), nil
		}
	}
	list = append(list, userID)
	s.likes[postID] = list
	return true, len(list), nil
}

func (s *MemoryStore) ListLikes(postID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.likes[postID]...), nil
}

func (s *MemoryStore) SaveContactMessage(m domain.ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.contacts[m.ID] = m
	return nil
}

func (s *MemoryStore) ListContactMessages() ([]domain.ContactMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.ContactMessage, 0, len(s.contacts))
	for _, m := range s.contacts {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID > res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (s *MemoryStore) GetContactMessage(id string) (domain.ContactMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.contacts[id]
	return m, ok, nil
}

func (s *MemoryStore) MarkContactMessageRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.contacts[id]; ok {
		m.Read = true
		s.contacts[id] = m
	}
	return nil
}

func (s *MemoryStore) DeleteContactMessage(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, id)
	return nil
}
