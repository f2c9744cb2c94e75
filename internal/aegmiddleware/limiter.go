// Package aegmiddleware 提供 HTTP 层的速率限制：全局、按客户端 IP、按数据模型三层。
//
// file: internal/aegmiddleware/limiter.go
package aegmiddleware

import (
	"ModelAegis/internal/aegobserve"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Settings 限流参数。速率单位为 请求/秒，Rate <= 0 表示该层不限流。
type Settings struct {
	GlobalRate  float64       `mapstructure:"global_rate"`
	GlobalBurst int           `mapstructure:"global_burst"`
	IPRate      float64       `mapstructure:"ip_rate"`
	IPBurst     int           `mapstructure:"ip_burst"`
	ModelRate   float64       `mapstructure:"model_rate"`
	ModelBurst  int           `mapstructure:"model_burst"`
	IdleTTL     time.Duration `mapstructure:"idle_ttl"`
}

// RateLimiter 管理所有层级的令牌桶。按键创建的限流器放在 go-cache 中，闲置超过 IdleTTL 后自动回收。
type RateLimiter struct {
	settings Settings
	global   *rate.Limiter
	ips      *cache.Cache
	models   *cache.Cache
}

// NewRateLimiter 创建限流器
func NewRateLimiter(s Settings) *RateLimiter {
	if s.IdleTTL <= 0 {
		s.IdleTTL = 15 * time.Minute
	}
	rl := &RateLimiter{
		settings: s,
		ips:      cache.New(s.IdleTTL, 10*time.Minute),
		models:   cache.New(s.IdleTTL, 10*time.Minute),
	}
	if s.GlobalRate > 0 {
		rl.global = rate.NewLimiter(rate.Limit(s.GlobalRate), burstOf(s.GlobalBurst))
	}

	slog.Info("[RateLimiter] 初始化完成",
		"global_rate", s.GlobalRate, "global_burst", s.GlobalBurst,
		"ip_rate", s.IPRate, "ip_burst", s.IPBurst,
		"model_rate", s.ModelRate, "model_burst", s.ModelBurst)
	return rl
}

func burstOf(b int) int {
	if b < 1 {
		return 1
	}
	return b
}

// keyed 返回某个键的限流器，不存在时创建；每次访问都刷新过期时间
func keyed(c *cache.Cache, key string, r float64, burst int) *rate.Limiter {
	if v, ok := c.Get(key); ok {
		c.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(rate.Limit(r), burstOf(burst))
	if err := c.Add(key, l, cache.DefaultExpiration); err != nil {
		// 并发请求已经先创建了
		if v, ok := c.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return l
}

// AllowGlobal 消耗一个全局令牌
func (rl *RateLimiter) AllowGlobal() bool {
	return rl.global == nil || rl.global.Allow()
}

// AllowIP 消耗一个该 IP 的令牌
func (rl *RateLimiter) AllowIP(ip string) bool {
	if rl.settings.IPRate <= 0 {
		return true
	}
	return keyed(rl.ips, ip, rl.settings.IPRate, rl.settings.IPBurst).Allow()
}

// AllowDataModel 消耗一个该数据模型的令牌。外部数据源按模型限流，避免单个模型压垮对方数据库。
func (rl *RateLimiter) AllowDataModel(dataModelID string) bool {
	if rl.settings.ModelRate <= 0 || dataModelID == "" {
		return true
	}
	return keyed(rl.models, dataModelID, rl.settings.ModelRate, rl.settings.ModelBurst).Allow()
}

// Global 返回全局限制中间件
func (rl *RateLimiter) Global(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowGlobal() {
			aegobserve.CountRateLimited("global")
			errResp(w, http.StatusTooManyRequests, "系统繁忙，请稍后再试 (global limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PerIP 返回 IP 限制中间件
func (rl *RateLimiter) PerIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowIP(ClientIP(r)) {
			aegobserve.CountRateLimited("ip")
			errResp(w, http.StatusTooManyRequests, "您的请求过于频繁，请稍后再试 (per-ip limit)")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Chain 组合全局与 IP 两层：Global -> IP -> Handler
func (rl *RateLimiter) Chain(next http.Handler) http.Handler {
	return rl.Global(rl.PerIP(next))
}

// ClientIP 从请求中获取客户端 IP 地址，考虑代理情况
func ClientIP(r *http.Request) string {
	ip := r.Header.Get("X-Forwarded-For")
	ip = strings.TrimSpace(strings.Split(ip, ",")[0])
	if ip != "" {
		return ip
	}
	ip = r.Header.Get("X-Real-IP")
	if ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// errResp 写出 JSON 错误
func errResp(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
