package config

import (
	"fmt"
)

// CacheKeyStruct builds the keys of durable local state. Namespace, when set,
// prefixes every key so several installations can share one backend.
type CacheKeyStruct struct {
	Namespace string
}

func NewCacheKeyStruct(namespace string) *CacheKeyStruct {
	return &CacheKeyStruct{Namespace: namespace}
}

// ExamAnswersKey returns the key of the in-progress answers for an exam
func (r *CacheKeyStruct) ExamAnswersKey(examID string) string {
	return r.prefix() + fmt.Sprintf("exam_answers_%s", examID)
}

// ExamResultKey returns the key of the last result snapshot for an exam
func (r *CacheKeyStruct) ExamResultKey(examID string) string {
	return r.prefix() + fmt.Sprintf("exam_result_%s", examID)
}

func (r *CacheKeyStruct) prefix() string {
	if r.Namespace == "" {
		return ""
	}
	return r.Namespace + ":"
}

var CacheKey = NewCacheKeyStruct("")
