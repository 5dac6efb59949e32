package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/scribe-blog/scribe-be/internal/models"
	ws "github.com/scribe-blog/scribe-be/internal/websocket"
)

// PostServiceProvider defines the interface for post services.
type PostServiceProvider interface {
	GetAllPosts() ([]models.PostWithAuthor, error)
	GetPostByID(id int64) (models.PostWithAuthor, error)
	GetPostsByAuthor(authorID string) ([]models.PostWithAuthor, error)
	CreatePost(title, content, authorID string, postedAt time.Time) (models.Post, error)
	UpdatePost(id int64, title, content string) (models.Post, error)
	DeletePost(id int64) error
}

// PostService provides business logic for post management.
type PostService struct {
	db           *sql.DB
	hub          *ws.Hub
	eventService EventServiceProvider
}

// NewPostService creates a new PostService.
func NewPostService(db *sql.DB, hub *ws.Hub, eventService EventServiceProvider) *PostService {
	return &PostService{db: db, hub: hub, eventService: eventService}
}

const postWithAuthorSelect = `
	SELECT p.id, p.title, p.content, p.date_posted, p.author, u.username, pr.image
	FROM posts p
	JOIN users u ON u.id = p.author
	JOIN profiles pr ON pr.user_id = p.author`

func scanPostWithAuthor(row interface{ Scan(...interface{}) error }) (models.PostWithAuthor, error) {
	var post models.PostWithAuthor
	var image string
	err := row.Scan(&post.ID, &post.Title, &post.Content, &post.DatePosted, &post.Author, &post.AuthorUsername, &image)
	if err != nil {
		return models.PostWithAuthor{}, err
	}
	post.AuthorIcon = "images/" + image
	return post, nil
}

// GetAllPosts returns every post with its author's identity and avatar,
// newest first.
func (s *PostService) GetAllPosts() ([]models.PostWithAuthor, error) {
	rows, err := s.db.Query(postWithAuthorSelect + " ORDER BY p.date_posted DESC, p.id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.PostWithAuthor
	for rows.Next() {
		post, err := scanPostWithAuthor(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// GetPostByID retrieves a single post joined with its author.
func (s *PostService) GetPostByID(id int64) (models.PostWithAuthor, error) {
	row := s.db.QueryRow(postWithAuthorSelect+" WHERE p.id = ?", id)
	post, err := scanPostWithAuthor(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.PostWithAuthor{}, fmt.Errorf("post %d: %w", id, ErrNotFound)
		}
		return models.PostWithAuthor{}, err
	}
	return post, nil
}

// GetPostsByAuthor returns one user's posts, newest first.
func (s *PostService) GetPostsByAuthor(authorID string) ([]models.PostWithAuthor, error) {
	rows, err := s.db.Query(postWithAuthorSelect+" WHERE p.author = ? ORDER BY p.date_posted DESC, p.id DESC", authorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []models.PostWithAuthor
	for rows.Next() {
		post, err := scanPostWithAuthor(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// CreatePost inserts a new post. Author and timestamp are computed by the
// caller from the request context and fixed for the life of the row.
func (s *PostService) CreatePost(title, content, authorID string, postedAt time.Time) (models.Post, error) {
	res, err := s.db.Exec("INSERT INTO posts(title, content, date_posted, author) VALUES(?, ?, ?, ?)",
		title, content, postedAt.UTC(), authorID)
	if err != nil {
		return models.Post{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		ID:         id,
		Title:      title,
		Content:    content,
		DatePosted: postedAt.UTC(),
		Author:     authorID,
	}

	s.eventService.CreateEvent("post.create", "info", fmt.Sprintf("Post %q created", title), &post.ID)
	if s.hub != nil {
		s.hub.Broadcast <- ws.NewFeedMessage("post.created", post)
		s.hub.BroadcastTo(authorID, ws.NewFeedMessage("post.created", post))
	}
	return post, nil
}

// UpdatePost rewrites a post's title and content. The author and timestamp
// columns are never touched.
func (s *PostService) UpdatePost(id int64, title, content string) (models.Post, error) {
	res, err := s.db.Exec("UPDATE posts SET title = ?, content = ? WHERE id = ?", title, content, id)
	if err != nil {
		return models.Post{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Post{}, err
	}
	if affected == 0 {
		return models.Post{}, fmt.Errorf("post %d: %w", id, ErrNotFound)
	}

	updated, err := s.GetPostByID(id)
	if err != nil {
		return models.Post{}, err
	}
	return updated.Post, nil
}

// DeletePost removes a post from the database.
func (s *PostService) DeletePost(id int64) error {
	_, err := s.db.Exec("DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return err
	}

	s.eventService.CreateEvent("post.delete", "info", fmt.Sprintf("Post %d deleted", id), &id)
	if s.hub != nil {
		s.hub.Broadcast <- ws.NewFeedMessage("post.deleted", map[string]int64{"id": id})
	}
	return nil
}
