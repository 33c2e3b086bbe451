package model

import "time"

// Post is a blog post as returned by the backend
type Post struct {
	ID               string      `json:"_id"`
	Slug             string      `json:"slug"`
	Title            string      `json:"title"`
	Summary          string      `json:"summary"`
	Body             string      `json:"body"`
	FeaturedImageURL string      `json:"featuredImageUrl,omitempty"`
	Author           UserSummary `json:"author"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Edited reports whether the post was modified after publication.
func (p *Post) Edited() bool {
	return p.UpdatedAt.After(p.CreatedAt)
}

// PostsPage is one page of the post list.
// Page is 1-based.
type PostsPage struct {
	Posts      []*Post `json:"blogPosts"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
}

// PostForm carries the editable fields of a post
type PostForm struct {
	Slug    string
	Title   string
	Summary string
	Body    string
	// FeaturedImage is required on create, optional on update
	FeaturedImage *Upload
}

// Upload is a file attached to a multipart request
type Upload struct {
	FieldName   string
	FileName    string
	ContentType string
	Content     []byte
}
