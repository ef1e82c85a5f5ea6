// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"fmt"
	"sort"
)

// Graph is a validated, immutable stage graph.
//
// Thread Safety:
//
//	Graph is read-only after Build and safe for concurrent use.
type Graph[S any] struct {
	name     string
	stages   map[string]Stage[S]
	preds    map[string]Predicate[S]
	gate     string
	router   Router[S]
	terminal string
}

// Name returns the graph's name, used in logging, metrics, and snapshots.
func (g *Graph[S]) Name() string { return g.name }

// StageNames returns all stage names in sorted order for deterministic
// scheduling sweeps.
func (g *Graph[S]) StageNames() []string {
	names := make([]string, 0, len(g.stages))
	for name := range g.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stage returns the named stage.
func (g *Graph[S]) Stage(name string) (Stage[S], bool) {
	s, ok := g.stages[name]
	return s, ok
}

// Deps returns the dependency names of a stage.
func (g *Graph[S]) Deps(name string) []string {
	s, ok := g.stages[name]
	if !ok {
		return nil
	}
	return s.Deps()
}

// Predicate returns the entry predicate for a stage, or nil.
func (g *Graph[S]) Predicate(name string) Predicate[S] {
	return g.preds[name]
}

// Gate returns the name of the suspension stage, empty if none.
func (g *Graph[S]) Gate() string { return g.gate }

// Router returns the gate's decision router, nil if no gate.
func (g *Graph[S]) Router() Router[S] { return g.router }

// Terminal returns the name of the terminal stage.
func (g *Graph[S]) Terminal() string { return g.terminal }

// StageCount returns the number of stages.
func (g *Graph[S]) StageCount() int { return len(g.stages) }

// Builder constructs a Graph with validation.
//
// Description:
//
//	Builder provides a fluent API for assembling a graph. Build validates
//	that all dependencies exist, dependency edges are acyclic, and the
//	gate (if declared) has a router. Construction errors accumulate and
//	the first is returned from Build.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use.
type Builder[S any] struct {
	name     string
	stages   map[string]Stage[S]
	preds    map[string]Predicate[S]
	gate     string
	router   Router[S]
	terminal string
	errors   []error
}

// NewBuilder creates a graph builder.
func NewBuilder[S any](name string) *Builder[S] {
	return &Builder[S]{
		name:   name,
		stages: make(map[string]Stage[S]),
		preds:  make(map[string]Predicate[S]),
		errors: make([]error, 0),
	}
}

// AddStage adds a stage to the graph.
func (b *Builder[S]) AddStage(stage Stage[S]) *Builder[S] {
	if stage == nil {
		b.errors = append(b.errors, ErrNilStage)
		return b
	}

	name := stage.Name()
	if _, exists := b.stages[name]; exists {
		b.errors = append(b.errors, NewStageError(name, ErrDuplicateStage))
		return b
	}

	b.stages[name] = stage
	return b
}

// When attaches an entry predicate to a previously added stage.
func (b *Builder[S]) When(name string, p Predicate[S]) *Builder[S] {
	if _, exists := b.stages[name]; !exists {
		b.errors = append(b.errors, NewStageError(name, ErrStageNotFound))
		return b
	}
	if p == nil {
		b.errors = append(b.errors, NewStageError(name, ErrInvalidInput))
		return b
	}
	b.preds[name] = p
	return b
}

// Gate declares the suspension stage. The stage is created here rather
// than via AddStage because a gate has no Run of its own; r interprets the
// decisions that resume it.
func (b *Builder[S]) Gate(name string, deps []string, r Router[S]) *Builder[S] {
	if b.gate != "" {
		b.errors = append(b.errors, NewStageError(name, fmt.Errorf("%w: graph already has gate %s", ErrInvalidInput, b.gate)))
		return b
	}
	if r == nil {
		b.errors = append(b.errors, NewStageError(name, fmt.Errorf("%w: gate requires a router", ErrInvalidInput)))
		return b
	}
	if _, exists := b.stages[name]; exists {
		b.errors = append(b.errors, NewStageError(name, ErrDuplicateStage))
		return b
	}

	b.stages[name] = &gateStage[S]{
		BaseStage: BaseStage{StageName: name, StageDeps: deps},
	}
	b.gate = name
	b.router = r
	return b
}

// Terminal declares the stage whose completion finishes the run. Without
// this, Build infers the terminal as the stage no other stage depends
// on; graphs with more than one sink (a predicate-guarded side route,
// say) must declare it.
func (b *Builder[S]) Terminal(name string) *Builder[S] {
	b.terminal = name
	return b
}

// Build validates and constructs the Graph.
func (b *Builder[S]) Build() (*Graph[S], error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	if len(b.stages) == 0 {
		return nil, ErrInvalidInput
	}

	// Validate dependencies exist
	for name, stage := range b.stages {
		for _, dep := range stage.Deps() {
			if _, exists := b.stages[dep]; !exists {
				return nil, NewStageError(name, fmt.Errorf("%w: dependency %q", ErrStageNotFound, dep))
			}
		}
	}

	// Build adjacency list over dependency edges only; gate routes are
	// not edges here, which is what keeps the reject back-edge legal.
	adjList := make(map[string][]string)
	for name := range b.stages {
		adjList[name] = b.stages[name].Deps()
	}

	if err := b.detectCycles(adjList); err != nil {
		return nil, err
	}

	terminal := b.terminal
	if terminal == "" {
		terminal = b.findTerminal()
	} else if _, exists := b.stages[terminal]; !exists {
		return nil, NewStageError(terminal, ErrStageNotFound)
	}

	return &Graph[S]{
		name:     b.name,
		stages:   b.stages,
		preds:    b.preds,
		gate:     b.gate,
		router:   b.router,
		terminal: terminal,
	}, nil
}

// detectCycles uses DFS to detect cycles in the dependency edges.
func (b *Builder[S]) detectCycles(adjList map[string][]string) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make([]string, 0)

	var dfs func(node string) error
	dfs = func(node string) error {
		visited[node] = true
		recStack[node] = true
		path = append(path, node)

		for _, dep := range adjList[node] {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				cycleStart := -1
				for i, n := range path {
					if n == dep {
						cycleStart = i
						break
					}
				}
				cyclePath := append(path[cycleStart:], dep)
				return NewCycleError(cyclePath)
			}
		}

		path = path[:len(path)-1]
		recStack[node] = false
		return nil
	}

	// Iterate names sorted so the reported cycle is deterministic.
	names := make([]string, 0, len(b.stages))
	for name := range b.stages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !visited[name] {
			if err := dfs(name); err != nil {
				return err
			}
		}
	}

	return nil
}

// findTerminal finds the stage no other stage depends on. If several
// exist, the lexicographically first is chosen for determinism; graphs
// should funnel into a single barrier stage.
func (b *Builder[S]) findTerminal() string {
	hasDependent := make(map[string]bool)
	for _, stage := range b.stages {
		for _, dep := range stage.Deps() {
			hasDependent[dep] = true
		}
	}

	var terminals []string
	for name := range b.stages {
		if !hasDependent[name] {
			terminals = append(terminals, name)
		}
	}

	if len(terminals) == 0 {
		return ""
	}

	sort.Strings(terminals)
	return terminals[0]
}
