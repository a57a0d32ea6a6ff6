package chunking

import (
	"context"
	"fmt"
	"sync"

	"SemHub/internal/modules/kb/domain/knowledge"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// RecursiveChunker 可选策略：按分隔符递归切分（eino splitter）。
// 默认策略仍是 WordChunker；本策略通过 chunkingConfig.strategy = "recursive" 启用。
type RecursiveChunker struct {
	ChunkSize    int
	ChunkOverlap int

	initOnce sync.Once
	initErr  error
	impl     document.Transformer
}

func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, knowledge.ErrInvalidChunking
	}
	return &RecursiveChunker{ChunkSize: size, ChunkOverlap: overlap}, nil
}

func (c *RecursiveChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	if text == "" {
		return []string{}, nil
	}

	c.initOnce.Do(func() {
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   c.ChunkSize,
			OverlapSize: c.ChunkOverlap,
			Separators:  []string{"\n\n", "\n", ". ", " "},
			LenFunc: func(s string) int {
				return len([]rune(s))
			},
			KeepType: recursive.KeepTypeEnd,
		})
		if err != nil {
			c.initErr = err
			return
		}
		c.impl = impl
	})
	if c.initErr != nil {
		return nil, c.initErr
	}
	if c.impl == nil {
		return nil, fmt.Errorf("recursive splitter not initialized")
	}

	frags, err := c.impl.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(frags))
	for _, f := range frags {
		if f == nil || f.Content == "" {
			continue
		}
		out = append(out, f.Content)
	}
	return out, nil
}
