package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeMetadataError(t *testing.T) {
	assert.JSONEq(t, `{"error":"boom"}`, mergeMetadataError("", "boom"))
	assert.JSONEq(t, `{"source":"crawler","error":"boom"}`,
		mergeMetadataError(`{"source":"crawler"}`, "boom"))
	// 原 JSON 损坏时重建为只含 error 的对象
	assert.JSONEq(t, `{"error":"boom"}`, mergeMetadataError(`{broken`, "boom"))
}

func TestClearMetadataError(t *testing.T) {
	out, changed := clearMetadataError(`{"source":"crawler","error":"boom"}`)
	assert.True(t, changed)
	assert.JSONEq(t, `{"source":"crawler"}`, out)

	// 没有 error 字段时原样返回
	out, changed = clearMetadataError(`{"source":"crawler"}`)
	assert.False(t, changed)
	assert.Equal(t, `{"source":"crawler"}`, out)

	out, changed = clearMetadataError("")
	assert.False(t, changed)
	assert.Empty(t, out)

	out, changed = clearMetadataError(`{broken`)
	assert.False(t, changed)
	assert.Equal(t, `{broken`, out)
}

func TestFailureThenSuccessRoundTrip(t *testing.T) {
	meta := mergeMetadataError(`{"source":"upload"}`, "extract timed out")
	assert.Contains(t, meta, "error")

	out, changed := clearMetadataError(meta)
	assert.True(t, changed)
	assert.JSONEq(t, `{"source":"upload"}`, out)
}
