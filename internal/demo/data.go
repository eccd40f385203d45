package demo

import (
	"strings"
	"time"
)

// Post is one blog post.
type Post struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Excerpt       string   `json:"excerpt"`
	Author        string   `json:"author"`
	AuthorID      string   `json:"authorId"`
	Date          string   `json:"date"`
	Category      string   `json:"category"`
	CategoryID    string   `json:"categoryId"`
	Tags          []string `json:"tags"`
	FeaturedImage string   `json:"featuredImage"`
	ReadTime      int      `json:"readTime"`
	Likes         int      `json:"likes"`
	Views         int      `json:"views"`
}

// Category groups posts.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PostCount   int    `json:"postCount"`
	Color       string `json:"color"`
}

// SocialLinks are an author's profiles.
type SocialLinks struct {
	Twitter  string `json:"twitter,omitempty"`
	GitHub   string `json:"github,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// Author writes posts.
type Author struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Bio         string      `json:"bio"`
	Avatar      string      `json:"avatar"`
	Role        string      `json:"role"`
	SocialLinks SocialLinks `json:"socialLinks"`
}

// Comment is a reader comment on a post.
type Comment struct {
	ID      string `json:"id"`
	PostID  string `json:"postId"`
	Author  string `json:"author"`
	Content string `json:"content"`
	Date    string `json:"date"`
	Likes   int    `json:"likes"`
}

// ViewMode is how the post list is laid out.
type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

// Blog is the state of the blog slice.
type Blog struct {
	Posts              []Post     `json:"posts"`
	Categories         []Category `json:"categories"`
	Authors            []Author   `json:"authors"`
	Comments           []Comment  `json:"comments"`
	SelectedPostID     *string    `json:"selectedPostId"`
	SelectedCategoryID *string    `json:"selectedCategoryId"`
	SearchQuery        string     `json:"searchQuery"`
	ViewMode           ViewMode   `json:"viewMode"`
}

// User is the signed in user.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CounterSlice is the state of the demoA slice.
type CounterSlice struct {
	Count       int    `json:"count"`
	LastUpdated string `json:"lastUpdated"`
}

// TextSlice is the state of the demoB slice.
type TextSlice struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

func article(title string, sections ...string) string {
	var b strings.Builder
	b.WriteString("# " + title + "\n")
	for _, s := range sections {
		b.WriteString("\n## " + s + "\n\n")
		b.WriteString(strings.Repeat(s+" is covered here in depth, with examples and trade-offs. ", 6))
		b.WriteString("\n")
	}
	return b.String()
}

// InitialBlog returns the seeded blog state. Post bodies are long enough
// that the slice is offloaded by default thresholds.
func InitialBlog() Blog {
	return Blog{
		Posts: []Post{
			{
				ID:            "1",
				Title:         "Getting Started with State Management",
				Content:       article("Introduction to State Management", "Why State Matters", "Local State", "Shared Stores", "Best Practices"),
				Excerpt:       "The fundamentals of application state and when to reach for each approach.",
				Author:        "Sarah Johnson",
				AuthorID:      "1",
				Date:          "2024-12-01",
				Category:      "Frontend",
				CategoryID:    "1",
				Tags:          []string{"State Management", "Frontend"},
				FeaturedImage: "https://images.unsplash.com/photo-1633356122544-f134324a6cee?w=800",
				ReadTime:      8,
				Likes:         124,
				Views:         1523,
			},
			{
				ID:            "2",
				Title:         "Typed Code Best Practices",
				Content:       article("Type Safety", "Explicit Types", "Strict Mode", "Inference", "Utility Types"),
				Excerpt:       "Practices that make typed code more robust and maintainable.",
				Author:        "Michael Chen",
				AuthorID:      "2",
				Date:          "2024-11-28",
				Category:      "Languages",
				CategoryID:    "2",
				Tags:          []string{"Types", "Best Practices"},
				FeaturedImage: "https://images.unsplash.com/photo-1516116216624-53e697fedbea?w=800",
				ReadTime:      6,
				Likes:         98,
				Views:         1245,
			},
			{
				ID:            "3",
				Title:         "Modern CSS: Grid vs Flexbox",
				Content:       article("Grid vs Flexbox", "One-Dimensional Layouts", "Two-Dimensional Layouts", "Using Both"),
				Excerpt:       "Choosing the right layout tool for the job.",
				Author:        "Emma Davis",
				AuthorID:      "3",
				Date:          "2024-11-25",
				Category:      "CSS",
				CategoryID:    "3",
				Tags:          []string{"CSS", "Grid", "Flexbox", "Layout"},
				FeaturedImage: "https://images.unsplash.com/photo-1507721999472-8ed4421c4af2?w=800",
				ReadTime:      5,
				Likes:         156,
				Views:         2103,
			},
			{
				ID:            "4",
				Title:         "Building Accessible Web Applications",
				Content:       article("Web Accessibility", "Perceivable", "Operable", "Understandable", "Robust", "Testing Tools"),
				Excerpt:       "Building applications that work for every user.",
				Author:        "Sarah Johnson",
				AuthorID:      "1",
				Date:          "2024-11-20",
				Category:      "Web Development",
				CategoryID:    "4",
				Tags:          []string{"Accessibility", "WCAG", "UX"},
				FeaturedImage: "https://images.unsplash.com/photo-1573164713714-d95e436ab8d6?w=800",
				ReadTime:      7,
				Likes:         203,
				Views:         2847,
			},
			{
				ID:            "5",
				Title:         "Rendering Performance",
				Content:       article("Performance Optimization", "Unnecessary Renders", "Memoization", "Code Splitting", "Measuring"),
				Excerpt:       "Proven techniques for faster interfaces.",
				Author:        "Michael Chen",
				AuthorID:      "2",
				Date:          "2024-11-15",
				Category:      "Frontend",
				CategoryID:    "1",
				Tags:          []string{"Performance", "Optimization"},
				FeaturedImage: "https://images.unsplash.com/photo-1460925895917-afdab827c52f?w=800",
				ReadTime:      9,
				Likes:         187,
				Views:         2456,
			},
		},
		Categories: []Category{
			{ID: "1", Name: "Frontend", Description: "Frontend development", PostCount: 2, Color: "#00E6E6"},
			{ID: "2", Name: "Languages", Description: "Language tips and best practices", PostCount: 1, Color: "#3178C6"},
			{ID: "3", Name: "CSS", Description: "Modern CSS techniques and layouts", PostCount: 1, Color: "#FF6B6B"},
			{ID: "4", Name: "Web Development", Description: "General web development topics", PostCount: 1, Color: "#51CF66"},
		},
		Authors: []Author{
			{
				ID: "1", Name: "Sarah Johnson", Role: "Senior Frontend Developer",
				Bio:    "Senior frontend developer focused on accessible applications.",
				Avatar: "https://i.pravatar.cc/150?img=1",
				SocialLinks: SocialLinks{
					Twitter:  "https://twitter.com/sarahj",
					GitHub:   "https://github.com/sarahj",
					LinkedIn: "https://linkedin.com/in/sarahj",
				},
			},
			{
				ID: "2", Name: "Michael Chen", Role: "Full Stack Developer",
				Bio:         "Full-stack developer and tech blogger.",
				Avatar:      "https://i.pravatar.cc/150?img=12",
				SocialLinks: SocialLinks{Twitter: "https://twitter.com/mchen", GitHub: "https://github.com/mchen"},
			},
			{
				ID: "3", Name: "Emma Davis", Role: "UI/UX Designer",
				Bio:         "Designer and CSS enthusiast.",
				Avatar:      "https://i.pravatar.cc/150?img=5",
				SocialLinks: SocialLinks{Twitter: "https://twitter.com/emmad", LinkedIn: "https://linkedin.com/in/emmad"},
			},
		},
		Comments: []Comment{
			{ID: "1", PostID: "1", Author: "John Doe", Content: "This helped me understand state management better.", Date: "2024-12-02", Likes: 5},
			{ID: "2", PostID: "1", Author: "Jane Smith", Content: "Would love to see more examples!", Date: "2024-12-02", Likes: 3},
			{ID: "3", PostID: "2", Author: "Alex Brown", Content: "Thanks for sharing these tips!", Date: "2024-11-29", Likes: 8},
		},
		ViewMode: ViewGrid,
	}
}

// InitialCounter returns the seeded demoA state.
func InitialCounter(now time.Time) CounterSlice {
	return CounterSlice{Count: 0, LastUpdated: now.UTC().Format(time.RFC3339)}
}

// InitialText returns the seeded demoB state.
func InitialText() TextSlice {
	return TextSlice{Text: "Initial Text", Color: "#00E6E6"}
}
