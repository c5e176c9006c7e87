// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsightFilterPagination(t *testing.T) {
	page, perPage := InsightFilter{}.Pagination()
	assert.Equal(t, int64(1), page)
	assert.Equal(t, int64(20), perPage)

	page, perPage = InsightFilter{Page: 3, PerPage: 50}.Pagination()
	assert.Equal(t, int64(3), page)
	assert.Equal(t, int64(50), perPage)

	page, perPage = InsightFilter{Page: -1, PerPage: 10000}.Pagination()
	assert.Equal(t, int64(1), page)
	assert.Equal(t, int64(100), perPage)
}

func TestInsightFilterLimits(t *testing.T) {
	limit, offset := InsightFilter{Page: 3, PerPage: 20}.limits()
	assert.Equal(t, uint64(20), limit)
	assert.Equal(t, uint64(40), offset)

	limit, offset = InsightFilter{}.limits()
	assert.Equal(t, uint64(20), limit)
	assert.Equal(t, uint64(0), offset)
}
