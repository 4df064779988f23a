// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pipeline

import (
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
)

// Pipeline cache errors.
var (
	// ErrNilDescription is returned when fetching a pipeline with a nil description.
	ErrNilDescription = errors.New("pipeline: description is nil")

	// ErrNilCreateFunc is returned when the cache has no way to build pipelines.
	ErrNilCreateFunc = errors.New("pipeline: create function is nil")
)

// CreateFunc builds a backend pipeline object for a description. The
// description passed in is the cache's private clone and must not be
// retained for mutation.
type CreateFunc[P any] func(desc *Description) (P, error)

type entry[P any] struct {
	desc     *Description
	pipeline P
}

// Cache memoizes backend pipeline objects keyed by structural description.
//
// Pipeline creation is expensive because it involves shader compilation and
// validation, so every distinct description is built exactly once. The cache
// never evicts: its size is bounded by the number of distinct state
// combinations the workload uses.
//
// Cache is not safe for concurrent use; it belongs to the render goroutine.
//
// Usage:
//
//	cache := pipeline.NewCache(func(d *pipeline.Description) (backend.Pipeline, error) {
//	    return device.CreatePipeline(d, shader)
//	})
//	p, err := cache.FetchOrCreate(&desc)
type Cache[P any] struct {
	create  CreateFunc[P]
	buckets map[uint64][]entry[P]

	size    int
	created uint64
	hits    uint64
}

// NewCache creates an empty cache that builds pipelines with create.
func NewCache[P any](create CreateFunc[P]) *Cache[P] {
	return &Cache[P]{
		create:  create,
		buckets: make(map[uint64][]entry[P]),
	}
}

// FetchOrCreate returns the pipeline for desc, building it on first use.
//
// On a hit the cached object is returned unchanged. On a miss desc is
// deep-copied before it becomes the key, so the caller may keep mutating
// its own description afterwards.
//
// Parameters:
//   - desc: The pipeline description to look up.
//
// Returns the pipeline and nil on success.
// Returns the zero value and an error if desc is nil or creation fails.
// A failed creation is not cached.
func (c *Cache[P]) FetchOrCreate(desc *Description) (P, error) {
	var zero P
	if desc == nil {
		return zero, ErrNilDescription
	}

	h := desc.Hash()
	for _, e := range c.buckets[h] {
		if e.desc.Equal(desc) {
			c.hits++
			return e.pipeline, nil
		}
	}

	if c.create == nil {
		return zero, ErrNilCreateFunc
	}

	key, err := Clone(desc)
	if err != nil {
		return zero, err
	}

	p, err := c.create(key)
	if err != nil {
		return zero, fmt.Errorf("create pipeline %q: %w", desc.Label, err)
	}

	c.buckets[h] = append(c.buckets[h], entry[P]{desc: key, pipeline: p})
	c.size++
	c.created++
	return p, nil
}

// Clone returns a deep copy of desc that shares no slices with it.
func Clone(desc *Description) (*Description, error) {
	out := &Description{}
	if err := copier.CopyWithOption(out, desc, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("clone pipeline description: %w", err)
	}
	return out, nil
}

// Len returns the number of cached pipelines.
func (c *Cache[P]) Len() int {
	return c.size
}

// Created returns how many pipelines the cache has built.
func (c *Cache[P]) Created() uint64 {
	return c.created
}

// Stats returns cache hits and misses.
func (c *Cache[P]) Stats() (hits, misses uint64) {
	return c.hits, c.created
}

// Each calls fn for every cached pipeline.
func (c *Cache[P]) Each(fn func(desc *Description, p P)) {
	for _, bucket := range c.buckets {
		for _, e := range bucket {
			fn(e.desc, e.pipeline)
		}
	}
}

// DestroyAll calls destroy for every cached pipeline and empties the cache.
// The created counter is kept.
func (c *Cache[P]) DestroyAll(destroy func(P)) {
	if destroy != nil {
		c.Each(func(_ *Description, p P) { destroy(p) })
	}
	c.buckets = make(map[uint64][]entry[P])
	c.size = 0
}
