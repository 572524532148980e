package torrent

import (
	"time"

	"github.com/anacrolix/log"
)

// A config suitable for tests against peers on loopback: short timeouts and no dial rate limit.
func TestingConfig() *ClientConfig {
	cfg := NewDefaultClientConfig()
	cfg.DialRateLimiter = nil
	cfg.NominalDialTimeout = 5 * time.Second
	cfg.HandshakesTimeout = 5 * time.Second
	cfg.RequestTimeout = 5 * time.Second
	cfg.PieceTimeout = 10 * time.Second
	cfg.ReadTimeout = 30 * time.Second
	cfg.WriteTimeout = 5 * time.Second
	cfg.KeepAliveTimeout = 0
	cfg.Logger = log.Default.WithNames("test").FilterLevel(log.Warning)
	//cfg.Debug = true
	return cfg
}
