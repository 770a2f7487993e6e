package clients

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository keeps clients in a map. Used in development and tests.
type InMemoryRepository struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{clients: make(map[string]Client)}
}

func (r *InMemoryRepository) Get(ctx context.Context, phone string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[phone]
	if !ok {
		return nil, ErrClientNotFound
	}
	return &c, nil
}

func (r *InMemoryRepository) Create(ctx context.Context, client *Client) error {
	if err := validate(client); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[client.Phone]; exists {
		return ErrClientExists
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	r.clients[client.Phone] = *client
	return nil
}

func (r *InMemoryRepository) Update(ctx context.Context, client *Client) error {
	if err := validate(client); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.clients[client.Phone]
	if !ok {
		return ErrClientNotFound
	}
	updated := *client
	updated.CreatedAt = existing.CreatedAt
	r.clients[client.Phone] = updated
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[phone]; !ok {
		return ErrClientNotFound
	}
	delete(r.clients, phone)
	return nil
}
