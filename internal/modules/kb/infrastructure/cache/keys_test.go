package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyPrefixes(t *testing.T) {
	assert.True(t, strings.HasPrefix(KeyEmbedding("m", "text"), "emb_"))
	assert.True(t, strings.HasPrefix(KeyQueryEmbedding("m", "text"), "qemb_"))
	assert.True(t, strings.HasPrefix(KeySearch("col", "hash", 5, 0.5), "srch_"))
}

func TestKeyEmbeddingDistinguishesModelAndClass(t *testing.T) {
	assert.NotEqual(t, KeyEmbedding("model-a", "text"), KeyEmbedding("model-b", "text"))
	// 文档嵌入与查询嵌入必须是不同的键空间
	assert.NotEqual(t, KeyEmbedding("m", "text"), KeyQueryEmbedding("m", "text"))
}

func TestHashVectorDeterministic(t *testing.T) {
	vec := []float64{0.123456789, -0.5, 1.0}
	assert.Equal(t, HashVector(vec), HashVector(vec))
	assert.NotEqual(t, HashVector(vec), HashVector([]float64{0.2, -0.5, 1.0}))
}

func TestHashVectorFixedPrecision(t *testing.T) {
	// 第七位小数之后的差异不应产生不同的 key
	a := []float64{0.1234567}
	b := []float64{0.1234569}
	assert.Equal(t, HashVector(a), HashVector(b))

	// 六位以内的差异必须区分
	c := []float64{0.123457}
	d := []float64{0.123458}
	assert.NotEqual(t, HashVector(c), HashVector(d))
}

func TestKeySearchVariesByParams(t *testing.T) {
	base := KeySearch("col", "h", 5, 0.5)
	assert.NotEqual(t, base, KeySearch("col", "h", 10, 0.5))
	assert.NotEqual(t, base, KeySearch("col", "h", 5, 0.6))
	assert.NotEqual(t, base, KeySearch("other", "h", 5, 0.5))
}
