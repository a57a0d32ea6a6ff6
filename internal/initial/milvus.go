package initial

import (
	"context"
	"strings"

	"SemHub/internal/config"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
)

// OpenMilvus 连接 Milvus 并保证业务数据库存在。
// 集合按知识库动态创建，这里只负责数据库级别的准备。
func OpenMilvus(ctx context.Context, conf *config.Config) (mclient.Client, error) {
	addr := strings.TrimSpace(conf.MilvusConfig.Address)
	dbName := strings.TrimSpace(conf.MilvusConfig.DBName)
	username := strings.TrimSpace(conf.MilvusConfig.Username)
	password := strings.TrimSpace(conf.MilvusConfig.Password)

	defaultCli, err := mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: username,
		Password: password,
		DBName:   "default",
	})
	if err != nil {
		return nil, err
	}

	dbs, err := defaultCli.ListDatabases(ctx)
	if err != nil {
		_ = defaultCli.Close()
		return nil, err
	}
	exists := false
	for _, db := range dbs {
		if db.Name == dbName {
			exists = true
			break
		}
	}
	if !exists {
		if err := defaultCli.CreateDatabase(ctx, dbName); err != nil {
			_ = defaultCli.Close()
			return nil, err
		}
	}
	_ = defaultCli.Close()

	return mclient.NewClient(ctx, mclient.Config{
		Address:  addr,
		Username: username,
		Password: password,
		DBName:   dbName,
	})
}
