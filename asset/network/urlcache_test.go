package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_urlCache_page(t *testing.T) {
	cache := newURLCache(10)

	assert.Equal(t, 1, cache.page(1))
	assert.Equal(t, 1, cache.page(10))
	assert.Equal(t, 2, cache.page(11))
	assert.Equal(t, 2, cache.page(15))
	assert.Equal(t, 3, cache.page(21))
}

func Test_urlCache_missing(t *testing.T) {
	cache := newURLCache(10)
	cache.put([]uploadURL{
		{ChunkIndex: 1, URL: "https://storage.example.com/1"},
		{ChunkIndex: 2, URL: "https://storage.example.com/2"},
	})

	url, ok := cache.get(1)
	assert.True(t, ok)
	assert.Equal(t, "https://storage.example.com/1", url)

	_, ok = cache.get(3)
	assert.False(t, ok)

	assert.Equal(t, []int{3, 4}, cache.missing([]int{1, 2, 3, 4}))
	assert.Nil(t, cache.missing([]int{1, 2}))
}
