// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphview

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Options configures the circular layout.
type Options struct {
	// Width and Height are the scene size.
	Width  float64
	Height float64

	// CenterX and CenterY are the circle origin.
	CenterX float64
	CenterY float64

	// Radius is the nominal circle radius.
	Radius float64

	// Jitter bounds the uniform radial perturbation: each node sits at
	// Radius + u with u in [-Jitter, +Jitter].
	Jitter float64

	// Seed makes the jitter reproducible.
	Seed uint64
}

// DefaultOptions returns the 800x600 scene with R=200, J=25.
func DefaultOptions() Options {
	return Options{
		Width:   800,
		Height:  600,
		CenterX: 400,
		CenterY: 300,
		Radius:  200,
		Jitter:  25,
	}
}

// Layout places node i of n at angle 2*pi*i/n around the center.
//
// Layout is pure: the same nodes (in the same order) and options always
// produce the same positions.
func Layout(nodes []Node, opts Options) map[string]Point {
	positions := make(map[string]Point, len(nodes))
	if len(nodes) == 0 {
		return positions
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	n := float64(len(nodes))
	for i, node := range nodes {
		angle := 2 * math.Pi * float64(i) / n
		r := opts.Radius + (rng.Float64()*2-1)*opts.Jitter
		positions[node.ID] = Point{
			X: opts.CenterX + math.Cos(angle)*r,
			Y: opts.CenterY + math.Sin(angle)*r,
		}
	}
	return positions
}

// Fingerprint hashes the node identity set. Order and non-identity fields
// do not affect it.
func Fingerprint(nodes []Node) uint64 {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	sort.Strings(ids)

	d := xxhash.New()
	for _, id := range ids {
		_, _ = d.WriteString(id)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
