package models

import "time"

// Post represents a single blog post. Author and DatePosted are fixed at
// creation and never written by update requests.
type Post struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	DatePosted time.Time `json:"datePosted"`
	Author     string    `json:"author"`
}

// PostWithAuthor is a post joined with the author's public identity and
// avatar, as shown on the index and user-posts listings.
type PostWithAuthor struct {
	Post
	AuthorUsername string `json:"authorUsername"`
	AuthorIcon     string `json:"authorIcon"` // "images/<filename>"
}
