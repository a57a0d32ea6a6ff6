package chunking

import (
	"context"
	"strings"

	"SemHub/internal/modules/kb/domain/knowledge"
)

// Chunker 把原始文本切分为有序片段
type Chunker interface {
	Chunk(ctx context.Context, text string) ([]string, error)
}

// WordChunker 基于词数的滑动窗口切分：每片最多 size 个词，
// 下一个窗口从上一个窗口结束位置回退 overlap 个词开始。
type WordChunker struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewWordChunker 创建词窗口切分器。overlap >= size 时无法保证前进，直接拒绝。
func NewWordChunker(size, overlap int) (*WordChunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, knowledge.ErrInvalidChunking
	}
	return &WordChunker{ChunkSize: size, ChunkOverlap: overlap}, nil
}

// Chunk 纯函数：无 I/O、确定性。空白输入返回空切片而非错误。
func (c *WordChunker) Chunk(_ context.Context, text string) ([]string, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{}, nil
	}

	step := c.ChunkSize - c.ChunkOverlap
	chunks := make([]string, 0, (len(words)+step-1)/step)
	for start := 0; start < len(words); start += step {
		end := start + c.ChunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

// EstimateTokens 粗略 token 估算：词数 * 4/3（英文经验值）
func EstimateTokens(text string) int {
	n := len(strings.Fields(text))
	return n + n/3
}
