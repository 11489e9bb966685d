package app

import "fmt"

// LikeToggle is the outcome of ToggleLike.
type LikeToggle struct {
	Likes   int  `json:"likes"`
	IsLiked bool `json:"isLiked"`
}

// LikeSummary lists who likes a post.
type LikeSummary struct {
	Likes   int      `json:"likes"`
	LikedBy []string `json:"likedBy"`
}

// ToggleLike likes the post for userID, or unlikes it if already liked.
func (a *App) ToggleLike(postID, userID string) (LikeToggle, error) {
	exists, err := a.store.HasPost(postID)
	if err != nil {
		return LikeToggle{}, fmt.Errorf("fetch post: %w", err)
	}
	if !exists {
		return LikeToggle{}, ErrPostNotFound
	}
	liked, count, err := a.store.ToggleLike(postID, userID)
	if err != nil {
		return LikeToggle{}, fmt.Errorf("toggle like: %w", err)
	}
	return LikeToggle{Likes: count, IsLiked: liked}, nil
}

// GetLikes returns the like count and the liking user IDs.
func (a *App) GetLikes(postID string) (LikeSummary, error) {
	exists, err := a.store.HasPost(postID)
	if err != nil {
		return LikeSummary{}, fmt.Errorf("fetch post: %w", err)
	}
	if !exists {
		return LikeSummary{}, ErrPostNotFound
	}
	likedBy, err := a.store.ListLikes(postID)
	if err != nil {
		return LikeSummary{}, fmt.Errorf("list likes: %w", err)
	}
	if likedBy == nil {
		likedBy = []string{}
	}
	return LikeSummary{Likes: len(likedBy), LikedBy: likedBy}, nil
}
