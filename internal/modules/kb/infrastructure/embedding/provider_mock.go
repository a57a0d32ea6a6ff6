package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"SemHub/internal/modules/kb/domain/repository"
)

// MockProvider 无外部依赖的嵌入实现，本地开发与测试用。
// 同一文本永远得到同一向量，向量做了 L2 归一化。
type MockProvider struct {
	model string
	dim   int
}

var _ repository.EmbeddingProvider = (*MockProvider)(nil)

func NewMockProvider(model string, dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	if model == "" {
		model = "mock"
	}
	return &MockProvider{model: model, dim: dim}
}

func (m *MockProvider) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	vecs := make([][]float64, len(texts))
	for i, t := range texts {
		vecs[i] = m.vectorOf(t)
	}
	return vecs, nil
}

func (m *MockProvider) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	return m.vectorOf(text), nil
}

func (m *MockProvider) Model() string { return m.model }

func (m *MockProvider) Dim() int { return m.dim }

func (m *MockProvider) vectorOf(text string) []float64 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, m.dim)
	var norm float64
	for i := range vec {
		// 用哈希流生成确定性伪随机分量
		off := (i * 4) % (len(sum) - 4)
		u := binary.BigEndian.Uint32(sum[off : off+4])
		v := float64(u%2000)/1000.0 - 1.0 + float64(i)*1e-6
		vec[i] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
