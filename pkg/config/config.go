// Package config는 환경 변수 기반 설정 오버레이를 제공합니다.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 인터페이스는 설정 값에 액세스하기 위한 메서드를 정의합니다.
type Config interface {
	IsSet(key string) bool
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
}

type viperConfig struct {
	v *viper.Viper
}

func (c *viperConfig) IsSet(key string) bool {
	return c.v.IsSet(key)
}

func (c *viperConfig) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *viperConfig) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *viperConfig) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *viperConfig) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// GetStringSlice는 쉼표로 구분된 환경 변수도 슬라이스로 분리합니다.
func (c *viperConfig) GetStringSlice(key string) []string {
	values := c.v.GetStringSlice(key)
	if len(values) == 1 && strings.Contains(values[0], ",") {
		return strings.Split(values[0], ",")
	}
	return values
}

// FromEnv는 prefix가 붙은 환경 변수를 읽는 설정을 생성합니다.
// 키의 "."은 "_"로 치환됩니다. 예: prefix "qris", 키 "gateway.client_secret" -> QRIS_GATEWAY_CLIENT_SECRET
func FromEnv(prefix string, keys ...string) Config {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv는 IsSet에 반영되지 않으므로 명시적으로 바인딩
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	return &viperConfig{v: v}
}
