// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package client

import (
	"fmt"
	"os"

	"github.com/Wazzaps/ampm/cache"
	"github.com/Wazzaps/ampm/query"
	"github.com/Wazzaps/ampm/record"
	"github.com/Wazzaps/ampm/repo"
)

// Client composes the query engine, the local cache and the remote
// gateway to answer get, env, list, upload and remote-rm operations.
type Client struct {
	cache   *cache.Cache
	uri     repo.URI
	offline bool

	// the gateway is opened on first use so offline invocations and
	// cache hits never touch the share
	gateway *repo.Gateway
}

// Options configures a Client.
type Options struct {
	CacheDir string
	Server   string
	Offline  bool
}

// New builds a Client. The server URI is parsed eagerly (it is cheap and
// mistakes should surface early) but the share is not touched until a
// remote operation needs it.
func New(opts Options) (*Client, error) {
	c := &Client{
		cache:   cache.New(opts.CacheDir),
		offline: opts.Offline,
	}
	if !opts.Offline {
		uri, err := repo.ParseURI(opts.Server)
		if err != nil {
			return nil, err
		}
		c.uri = uri
	}
	return c, nil
}

// Cache exposes the local cache.
func (c *Client) Cache() *cache.Cache { return c.cache }

func (c *Client) remote() (*repo.Gateway, error) {
	if c.offline {
		return nil, fmt.Errorf("%w: remote access disabled", cache.ErrOfflineMiss)
	}
	if c.gateway != nil {
		return c.gateway, nil
	}
	root, err := c.uri.Root(c.cache.MountBase())
	if err != nil {
		return nil, err
	}
	g, err := repo.Open(root)
	if err != nil {
		return nil, err
	}
	c.gateway = g
	return g, nil
}

// listRecords enumerates candidate records from the remote share, or from
// the local cache in offline mode.
func (c *Client) listRecords(typePrefix string) ([]record.Entry, error) {
	if c.offline {
		return c.cache.List(typePrefix)
	}
	g, err := c.remote()
	if err != nil {
		return nil, err
	}
	return g.List(typePrefix)
}

// loadRecord resolves an exact identifier to its record, preferring the
// cached copy.
func (c *Client) loadRecord(id record.Identifier) (*record.Record, error) {
	if rec, err := c.cache.LoadRecord(id); err == nil {
		return rec, nil
	}
	if c.offline {
		return nil, fmt.Errorf("%w: %s", cache.ErrOfflineMiss, id)
	}
	g, err := c.remote()
	if err != nil {
		return nil, err
	}
	return g.Load(id)
}

// Resolve turns an identifier-or-type plus constraints into exactly one
// identifier and record. Exact identifiers skip the query engine.
func (c *Client) Resolve(arg string, constraints []string) (record.Identifier, *record.Record, error) {
	if record.IsIdentifier(arg) && len(constraints) == 0 {
		id, err := record.ParseIdentifier(arg)
		if err != nil {
			return record.Identifier{}, nil, err
		}
		rec, err := c.loadRecord(id)
		if err != nil {
			return record.Identifier{}, nil, err
		}
		return id, rec, nil
	}

	q, err := query.New(arg, constraints)
	if err != nil {
		return record.Identifier{}, nil, err
	}
	candidates, err := c.listRecords(arg)
	if err != nil {
		return record.Identifier{}, nil, err
	}
	entry, err := q.Resolve(candidates)
	if err != nil {
		return record.Identifier{}, nil, err
	}
	return entry.ID, entry.Record, nil
}

// Get resolves the argument and returns the absolute path of the
// materialized payload, fetching it if needed.
func (c *Client) Get(arg string, constraints []string) (string, error) {
	// an exact identifier with a live .target needs no record at all
	if record.IsIdentifier(arg) && len(constraints) == 0 {
		if id, err := record.ParseIdentifier(arg); err == nil {
			if text, err := c.cache.ReadTarget(id); err == nil {
				if path, err := c.ensureFromTargetText(text); err == nil {
					return path, nil
				}
			}
		}
	}

	id, rec, err := c.Resolve(arg, constraints)
	if err != nil {
		return "", err
	}
	if c.offline {
		text, err := c.cache.ReadTarget(id)
		if err != nil {
			return "", fmt.Errorf("%w: %s", cache.ErrOfflineMiss, id)
		}
		return text, nil
	}
	g, err := c.remote()
	if err != nil {
		return "", err
	}
	return c.cache.EnsureLocal(g, id, rec)
}

// ensureFromTargetText validates a .target link text without resolving
// the link.
func (c *Client) ensureFromTargetText(text string) (string, error) {
	if _, err := os.Lstat(text); err != nil {
		return "", err
	}
	return text, nil
}

// Env resolves the argument and returns the pre-rendered shell script
// exporting the record's env bindings, materializing the artifact first
// when needed.
func (c *Client) Env(arg string, constraints []string) (string, error) {
	if record.IsIdentifier(arg) && len(constraints) == 0 {
		if id, err := record.ParseIdentifier(arg); err == nil {
			if script, err := c.cache.ReadEnvFile(id); err == nil {
				return script, nil
			}
		}
	}

	id, rec, err := c.Resolve(arg, constraints)
	if err != nil {
		return "", err
	}
	if c.offline {
		script, err := c.cache.ReadEnvFile(id)
		if err != nil {
			return "", fmt.Errorf("%w: %s", cache.ErrOfflineMiss, id)
		}
		return script, nil
	}
	g, err := c.remote()
	if err != nil {
		return "", err
	}
	if _, err := c.cache.EnsureLocal(g, id, rec); err != nil {
		return "", err
	}
	return c.cache.ReadEnvFile(id)
}

// List runs the query engine's filter step only and returns every
// surviving record.
func (c *Client) List(typePrefix string, constraints []string) ([]record.Entry, error) {
	q, err := query.New(typePrefix, constraints)
	if err != nil {
		return nil, err
	}
	candidates, err := c.listRecords(typePrefix)
	if err != nil {
		return nil, err
	}
	return q.Filter(candidates), nil
}

// RemoteRemove deletes an artifact from the share by exact identifier.
func (c *Client) RemoteRemove(arg string) error {
	id, err := record.ParseIdentifier(arg)
	if err != nil {
		return err
	}
	g, err := c.remote()
	if err != nil {
		return err
	}
	return g.Remove(id)
}
