// SPDX-License-Identifier: GPL-3.0-or-later

package rbtree

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeEmpty(t *testing.T) {
	var tr Tree[string]
	assert.True(t, tr.Empty())
	assert.Nil(t, tr.First())
}

func TestTreeInsertOrdered(t *testing.T) {
	var tr Tree[int]
	keys := []int64{50, 10, 70, 20, 5, 60, 80, 1}
	for i, k := range keys {
		tr.Insert(k, i)
	}
	require.False(t, tr.Empty())

	var got []int64
	for n := tr.First(); n != nil; n = tr.Next(n) {
		got = append(got, n.Key())
	}
	want := append([]int64(nil), keys...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	assert.Equal(t, want, got)
}

func TestTreeEraseFirst(t *testing.T) {
	var tr Tree[string]
	nodes := make([]*Node[string], 0, 5)
	for _, k := range []int64{3, 1, 4, 1, 5} {
		nodes = append(nodes, tr.Insert(k, "x"))
	}
	for len(nodes) > 0 {
		first := tr.First()
		require.NotNil(t, first)
		tr.Erase(first)
		nodes = nodes[:len(nodes)-1]
	}
	assert.True(t, tr.Empty())
}

func TestTreeEraseArbitrary(t *testing.T) {
	var tr Tree[int]
	var nodes []*Node[int]
	var keys []int64
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		k := rng.Int63n(1000)
		keys = append(keys, k)
		nodes = append(nodes, tr.Insert(k, i))
	}

	rng.Shuffle(len(nodes), func(i, j int) {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	})

	// erase half, then verify the remaining are still sorted correctly
	removed := make(map[*Node[int]]bool)
	for _, n := range nodes[:100] {
		tr.Erase(n)
		removed[n] = true
	}

	var remainingKeys []int64
	for i, n := range nodes {
		if !removed[n] {
			remainingKeys = append(remainingKeys, keys[i])
		}
	}
	sort.Slice(remainingKeys, func(i, j int) bool { return remainingKeys[i] < remainingKeys[j] })

	var got []int64
	for n := tr.First(); n != nil; n = tr.Next(n) {
		got = append(got, n.Key())
	}
	assert.Equal(t, remainingKeys, got)
}

func TestTreeFirstIsMinimum(t *testing.T) {
	var tr Tree[int]
	for _, k := range []int64{9, 3, 7, 1, 8, 2} {
		tr.Insert(k, 0)
	}
	assert.Equal(t, int64(1), tr.First().Key())
}
