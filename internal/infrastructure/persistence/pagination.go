package persistence

import "gorm.io/gorm"

const maxPageSize = 200

// normalizePage clamps page and pageSize to sane values
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// paginate applies offset and limit for a 1-based page
func paginate(query *gorm.DB, page, pageSize int) *gorm.DB {
	page, pageSize = normalizePage(page, pageSize)
	return query.Offset((page - 1) * pageSize).Limit(pageSize)
}
