package network

// urlCache maps chunk indices to presigned upload URLs. It is populated
// from the session create response and refilled page by page between
// batches; concurrent chunk uploads only ever read from it, so no locking
// is needed.
type urlCache struct {
	urls     map[int]string
	pageSize int
}

func newURLCache(pageSize int) *urlCache {
	return &urlCache{
		urls:     map[int]string{},
		pageSize: pageSize,
	}
}

func (c *urlCache) put(entries []uploadURL) {
	for _, entry := range entries {
		c.urls[entry.ChunkIndex] = entry.URL
	}
}

func (c *urlCache) get(index int) (string, bool) {
	url, ok := c.urls[index]
	return url, ok
}

// page returns the presigned URL page holding the given chunk index.
func (c *urlCache) page(index int) int {
	return (index-1)/c.pageSize + 1
}

// missing returns the subset of indices without a cached URL, in order.
func (c *urlCache) missing(indices []int) []int {
	var missing []int
	for _, index := range indices {
		if _, ok := c.urls[index]; !ok {
			missing = append(missing, index)
		}
	}
	return missing
}
