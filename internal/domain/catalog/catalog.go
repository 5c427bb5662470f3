// Package catalog is the demo host's business layer: users and products
// served from memory, with every service and repository call traced.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Sentinel kinds for catalog errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrInvalidID = errors.New("invalid id")
)

// Trace categories used by the catalog layers.
const (
	CategoryService    = "service"
	CategoryRepository = "repository"
)

// Tracker times an operation; the returned func records its outcome.
type Tracker interface {
	Track(ctx context.Context, category, operation string) func(err error)
}

// User is a demo account.
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Product is a demo catalog item.
type Product struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// Repository holds the demo data set.
type Repository struct {
	mu       sync.RWMutex
	users    []User
	products []Product
	tracker  Tracker
}

// NewRepository returns a repository seeded with sample data.
func NewRepository(tracker Tracker) *Repository {
	return &Repository{
		tracker: tracker,
		users: []User{
			{ID: 1, Name: "Ada Lovelace", Email: "ada@example.com"},
			{ID: 2, Name: "Alan Turing", Email: "alan@example.com"},
			{ID: 3, Name: "Grace Hopper", Email: "grace@example.com"},
		},
		products: []Product{
			{ID: 1, Name: "Keyboard", Price: 49.90, Stock: 120},
			{ID: 2, Name: "Mouse", Price: 19.90, Stock: 300},
			{ID: 3, Name: "Monitor", Price: 219.00, Stock: 35},
			{ID: 4, Name: "Headset", Price: 89.50, Stock: 0},
		},
	}
}

// Users returns all users.
func (r *Repository) Users(ctx context.Context) (out []User, err error) {
	done := r.tracker.Track(ctx, CategoryRepository, "UserRepository.GetAll")
	defer func() { done(err) }()

	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.users), nil
}

// UserByID returns one user or ErrNotFound.
func (r *Repository) UserByID(ctx context.Context, id int) (u User, err error) {
	done := r.tracker.Track(ctx, CategoryRepository, "UserRepository.GetByID")
	defer func() { done(err) }()

	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.IndexFunc(r.users, func(u User) bool { return u.ID == id })
	if i < 0 {
		return User{}, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return r.users[i], nil
}

// Products returns products whose name contains query (case-insensitive).
func (r *Repository) Products(ctx context.Context, query string) (out []Product, err error) {
	done := r.tracker.Track(ctx, CategoryRepository, "ProductRepository.Search")
	defer func() { done(err) }()

	q := strings.ToLower(strings.TrimSpace(query))
	r.mu.RLock()
	defer r.mu.RUnlock()
	out = make([]Product, 0, len(r.products))
	for _, p := range r.products {
		if q == "" || strings.Contains(strings.ToLower(p.Name), q) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Service applies business rules on top of the repository.
type Service struct {
	repo    *Repository
	tracker Tracker
}

// NewService wires a Service to its repository.
func NewService(repo *Repository, tracker Tracker) *Service {
	return &Service{repo: repo, tracker: tracker}
}

// Users lists all users.
func (s *Service) Users(ctx context.Context) (users []User, err error) {
	done := s.tracker.Track(ctx, CategoryService, "UserService.GetAll")
	defer func() { done(err) }()
	return s.repo.Users(ctx)
}

// User returns one user. Non-positive ids are rejected before the lookup.
func (s *Service) User(ctx context.Context, id int) (u User, err error) {
	done := s.tracker.Track(ctx, CategoryService, "UserService.GetByID")
	defer func() { done(err) }()

	if id < 1 {
		return User{}, fmt.Errorf("user %d: %w", id, ErrInvalidID)
	}
	return s.repo.UserByID(ctx, id)
}

// Products lists products matching query. With inStock set, sold-out
// items are left out.
func (s *Service) Products(ctx context.Context, query string, inStock bool) (products []Product, err error) {
	done := s.tracker.Track(ctx, CategoryService, "ProductService.Search")
	defer func() { done(err) }()

	products, err = s.repo.Products(ctx, query)
	if err != nil || !inStock {
		return products, err
	}
	return slices.DeleteFunc(products, func(p Product) bool { return p.Stock == 0 }), nil
}
