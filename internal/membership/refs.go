package membership

import (
	"concord-backend/internal/models"
	"slices"
)

func containsRef(refs []models.MemberRef, userID int64) bool {
	return slices.ContainsFunc(refs, func(m models.MemberRef) bool { return m.ID == userID })
}

func addRef(refs []models.MemberRef, ref models.MemberRef) []models.MemberRef {
	if containsRef(refs, ref.ID) {
		return refs
	}
	return append(refs, ref)
}

func removeRef(refs []models.MemberRef, userID int64) []models.MemberRef {
	return slices.DeleteFunc(refs, func(m models.MemberRef) bool { return m.ID == userID })
}

func addID(ids []int64, id int64) []int64 {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func removeID(ids []int64, id int64) []int64 {
	return slices.DeleteFunc(ids, func(v int64) bool { return v == id })
}

// nonNil keeps empty sets serialized as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
