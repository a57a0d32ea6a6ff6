package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"SemHub/internal/config"
	"SemHub/internal/modules/kb/domain/repository"

	arkEmbed "github.com/cloudwego/eino-ext/components/embedding/ark"
	dashscopeEmbed "github.com/cloudwego/eino-ext/components/embedding/dashscope"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// einoProvider 把 eino Embedder 适配为领域 EmbeddingProvider。
// eino 只有一个嵌入入口，EmbedQuery 复用同一调用；
// 带专用查询模式的提供方可以单独实现接口。
type einoProvider struct {
	embedder embedding.Embedder
	model    string
	dim      int
}

var _ repository.EmbeddingProvider = (*einoProvider)(nil)

func (p *einoProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	return p.embedder.EmbedStrings(ctx, texts)
}

func (p *einoProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := p.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("provider returned %d vectors for one text", len(vecs))
	}
	return vecs[0], nil
}

func (p *einoProvider) Model() string { return p.model }

func (p *einoProvider) Dim() int { return p.dim }

// NewProviderFromConfig 按配置构建嵌入提供方
func NewProviderFromConfig(ctx context.Context, conf *config.Config) (repository.EmbeddingProvider, error) {
	if conf == nil {
		return nil, fmt.Errorf("nil config")
	}

	dim := conf.EmbeddingConfig.Dimensions
	provider := strings.ToLower(strings.TrimSpace(conf.EmbeddingConfig.Provider))
	model := strings.TrimSpace(conf.EmbeddingConfig.Model)

	switch provider {
	case "", "mock":
		if model == "" {
			model = "mock"
		}
		return NewMockProvider(model, dim), nil
	case "openai":
		apiKey := strings.TrimSpace(conf.EmbeddingConfig.APIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		}
		if model == "" {
			model = strings.TrimSpace(os.Getenv("OPENAI_EMBED_MODEL"))
		}
		baseURL := strings.TrimSpace(conf.EmbeddingConfig.BaseURL)
		if baseURL == "" {
			baseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
		}
		if apiKey == "" || model == "" {
			return nil, fmt.Errorf("openai embedding missing apiKey/model")
		}

		timeout := time.Duration(conf.EmbeddingConfig.TimeoutSeconds) * time.Second
		localDim := dim
		em, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			APIKey:     apiKey,
			Model:      model,
			BaseURL:    baseURL,
			Timeout:    timeout,
			Dimensions: &localDim,
		})
		if err != nil {
			return nil, err
		}
		return &einoProvider{embedder: em, model: model, dim: dim}, nil
	case "ark":
		apiKey := strings.TrimSpace(conf.EmbeddingConfig.APIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		}
		if model == "" {
			model = strings.TrimSpace(os.Getenv("ARK_EMBED_MODEL"))
		}
		baseURL := strings.TrimSpace(conf.EmbeddingConfig.BaseURL)
		if apiKey == "" || model == "" {
			return nil, fmt.Errorf("ark embedding missing apiKey/model")
		}
		em, err := arkEmbed.NewEmbedder(ctx, &arkEmbed.EmbeddingConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: baseURL,
		})
		if err != nil {
			return nil, err
		}
		return &einoProvider{embedder: em, model: model, dim: dim}, nil
	case "dashscope":
		apiKey := strings.TrimSpace(conf.EmbeddingConfig.APIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY"))
		}
		if model == "" {
			model = strings.TrimSpace(os.Getenv("DASHSCOPE_EMBED_MODEL"))
		}
		if apiKey == "" || model == "" {
			return nil, fmt.Errorf("dashscope embedding missing apiKey/model")
		}
		localDim := dim
		em, err := dashscopeEmbed.NewEmbedder(ctx, &dashscopeEmbed.EmbeddingConfig{
			Model:      model,
			APIKey:     apiKey,
			Dimensions: &localDim,
		})
		if err != nil {
			return nil, err
		}
		return &einoProvider{embedder: em, model: model, dim: dim}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}
