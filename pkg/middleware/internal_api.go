package middleware

import (
	"net"
	"os"

	"github.com/gin-gonic/gin"
)

// InternalAPIConfig конфигурация для внутреннего API
type InternalAPIConfig struct {
	// TrustedNetworks список доверенных IP-адресов или CIDR диапазонов
	TrustedNetworks []string
	// APIKeyEnvName имя переменной окружения, где хранится ключ API
	APIKeyEnvName string
	// DefaultAPIKey ключ по умолчанию, если не задан через переменные окружения
	DefaultAPIKey string
	// HeaderName имя заголовка для передачи ключа API
	HeaderName string
}

// NewInternalAPIConfig создает конфигурацию по умолчанию
func NewInternalAPIConfig() *InternalAPIConfig {
	return &InternalAPIConfig{
		TrustedNetworks: []string{
			"10.0.0.0/8",     // Внутренняя сеть Kubernetes
			"172.16.0.0/12",  // Docker сеть по умолчанию
			"192.168.0.0/16", // Локальная сеть
			"127.0.0.0/8",    // Локальный хост
		},
		APIKeyEnvName: "INTERNAL_API_KEY",
		DefaultAPIKey: "internal-api-key-for-development",
		HeaderName:    "X-Internal-API-Key",
	}
}

// InternalAuthMiddleware middleware для защиты внутренних endpoint'ов
// (интейк заказов, служебные операции инвентаря)
type InternalAuthMiddleware struct {
	config *InternalAPIConfig
	apiKey string
}

// NewInternalAuthMiddleware создает новый middleware для защиты внутренних API
func NewInternalAuthMiddleware(config *InternalAPIConfig) *InternalAuthMiddleware {
	if config == nil {
		config = NewInternalAPIConfig()
	}

	apiKey := os.Getenv(config.APIKeyEnvName)
	if apiKey == "" {
		apiKey = config.DefaultAPIKey
	}

	return &InternalAuthMiddleware{
		config: config,
		apiKey: apiKey,
	}
}

// Required проверяет либо корректный API ключ, либо доверенную сеть
func (m *InternalAuthMiddleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		headerKey := c.GetHeader(m.config.HeaderName)
		if headerKey == m.apiKey {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if isIPTrusted(clientIP, m.config.TrustedNetworks) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(403, gin.H{
			"error": "доступ запрещен, этот API доступен только для внутренних сервисов",
		})
	}
}

// isIPTrusted проверяет, входит ли IP-адрес в список доверенных сетей
func isIPTrusted(ipStr string, trustedNetworks []string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	for _, network := range trustedNetworks {
		_, ipNet, err := net.ParseCIDR(network)
		if err != nil {
			continue
		}
		if ipNet.Contains(ip) {
			return true
		}
	}

	return false
}
