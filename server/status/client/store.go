package client

import (
	"encoding/json"
	"fmt"

	"github.com/andydunstall/mergedb/server/store"
)

type Store struct {
	client *Client
}

func NewStore(client *Client) *Store {
	return &Store{
		client: client,
	}
}

func (c *Store) Keys() ([]store.KeyInfo, error) {
	r, err := c.client.Request("/status/store/keys")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var keys []store.KeyInfo
	if err := json.NewDecoder(r).Decode(&keys); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return keys, nil
}

func (c *Store) Key(key string) (*store.KeyState, error) {
	r, err := c.client.Request("/status/store/keys/" + key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var state store.KeyState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &state, nil
}
