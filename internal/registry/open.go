package registry

import (
	"fmt"
	"io"

	"github.com/orbgate/orbgate/internal/config"
)

// Open 根据配置构建注册表。返回的 io.Closer 可能为 nil（static 无需释放）。
func Open(cfg *config.Config) (Registry, io.Closer, error) {
	switch cfg.Global.Registry {
	case config.RegistryRedis:
		reg := NewRedis(RedisOptions{
			Addr:     cfg.Global.RedisAddr,
			Password: cfg.Global.RedisPassword,
			DB:       cfg.Global.RedisDB,
		})
		return reg, reg, nil
	case config.RegistryLevelDB:
		reg, err := NewLevelDB(cfg.Global.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		return reg, reg, nil
	case config.RegistryStatic, "":
		sites, err := SitesFromConfig(cfg.Sites)
		if err != nil {
			return nil, nil, err
		}
		reg, err := NewStatic(sites)
		if err != nil {
			return nil, nil, err
		}
		return reg, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported registry %q", cfg.Global.Registry)
	}
}

var _ io.Closer = (*KVRegistry)(nil)
