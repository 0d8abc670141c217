// =============================================================================
// 📦 SkillBridge 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("SKILLBRIDGE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/skillbridge/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 SkillBridge 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Host 宿主身份配置
	Host HostConfig `yaml:"host" env:"HOST"`

	// Skills 技能清单配置
	Skills SkillsConfig `yaml:"skills" env:"SKILLS"`

	// Dispatch 调度配置
	Dispatch DispatchConfig `yaml:"dispatch" env:"DISPATCH"`

	// Transport 技能传输配置
	Transport TransportConfig `yaml:"transport" env:"TRANSPORT"`

	// State 会话状态存储配置
	State StateConfig `yaml:"state" env:"STATE"`

	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// API Key 列表（为空则不鉴权）
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 每个客户端的限流速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// TLS 证书与私钥（均设置时启用 HTTPS）
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
	// 渠道 JWT 鉴权（配置 secret 或公钥文件后启用）
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig 入站请求的 JWT 校验配置
type JWTConfig struct {
	// 期望的签发者
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 期望的受众
	Audience string `yaml:"audience" env:"AUDIENCE"`
	// HS256 密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥文件路径
	PublicKeyFile string `yaml:"public_key_file" env:"PUBLIC_KEY_FILE"`
}

// Enabled 报告是否配置了 JWT 校验
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKeyFile != ""
}

// HostConfig 宿主身份，用于签发调用技能的 Bearer 令牌
type HostConfig struct {
	// 宿主应用 ID（令牌 iss 与 appid）
	AppID string `yaml:"app_id" env:"APP_ID"`
	// HS256 签名密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 私钥文件路径（优先于 Secret）
	PrivateKeyFile string `yaml:"private_key_file" env:"PRIVATE_KEY_FILE"`
	// 令牌有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	// 过期前提前刷新的时间
	TokenRefreshSkew time.Duration `yaml:"token_refresh_skew" env:"TOKEN_REFRESH_SKEW"`
}

// SkillsConfig 技能清单来源
type SkillsConfig struct {
	// 清单目录（*.yaml / *.yml / *.json）
	ManifestDir string `yaml:"manifest_dir" env:"MANIFEST_DIR"`
	// 额外的清单文件
	ManifestFiles []string `yaml:"manifest_files" env:"MANIFEST_FILES"`
	// 意图关键字：skill id → 关键字列表
	Keywords map[string][]string `yaml:"keywords" env:"-"`
	// 是否监听清单文件变更并热加载
	Watch bool `yaml:"watch" env:"WATCH"`
	// 清单文件轮询周期
	WatchInterval time.Duration `yaml:"watch_interval" env:"WATCH_INTERVAL"`
}

// DispatchConfig 调度状态机配置
type DispatchConfig struct {
	// 切换技能前是否向用户确认
	SkillSwitchConfirmation bool `yaml:"skill_switch_confirmation" env:"SKILL_SWITCH_CONFIRMATION"`
	// 单次转发内允许处理的最大回调数
	MaxCallbackHops int `yaml:"max_callback_hops" env:"MAX_CALLBACK_HOPS"`
	// 出错时发送给用户的通用提示
	GenericErrorText string `yaml:"generic_error_text" env:"GENERIC_ERROR_TEXT"`
	// 切换确认提示模板，%s 为目标技能名称
	SwitchPromptTemplate string `yaml:"switch_prompt_template" env:"SWITCH_PROMPT_TEMPLATE"`
	// 确认提示最多重复次数
	ConfirmMaxRetries int `yaml:"confirm_max_retries" env:"CONFIRM_MAX_RETRIES"`
	// 技能请求用户令牌时随请求发送的提示（为空则不发送）
	SignInPromptText string `yaml:"sign_in_prompt_text" env:"SIGN_IN_PROMPT_TEXT"`
}

// TransportConfig 技能 WebSocket 传输配置
type TransportConfig struct {
	// 建连超时
	DialTimeout time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	// 单条帧写超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 每个技能的转发速率（0 表示不限流）
	ForwardRPS float64 `yaml:"forward_rps" env:"FORWARD_RPS"`
	// 转发突发容量
	ForwardBurst int `yaml:"forward_burst" env:"FORWARD_BURST"`
	// 单条消息最大字节数
	ReadLimit int64 `yaml:"read_limit" env:"READ_LIMIT"`
	// 空闲连接回收时间（0 表示不回收）
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// StateConfig 会话状态存储配置
type StateConfig struct {
	// 存储类型: memory, redis, database
	Backend string `yaml:"backend" env:"BACKEND"`
	// Redis 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 状态过期时间（0 表示不过期）
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否使用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "SKILLBRIDGE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 校验与辅助函数
// =============================================================================

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，失败时返回 INVALID_CONFIGURATION 错误
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Host.AppID == "" {
		errs = append(errs, "host.app_id is required")
	}
	if c.Host.Secret == "" && c.Host.PrivateKeyFile == "" {
		errs = append(errs, "host.secret or host.private_key_file is required")
	}
	if c.Skills.ManifestDir == "" && len(c.Skills.ManifestFiles) == 0 {
		errs = append(errs, "skills.manifest_dir or skills.manifest_files is required")
	}
	if c.Dispatch.MaxCallbackHops <= 0 {
		errs = append(errs, "dispatch.max_callback_hops must be positive")
	}
	if c.Transport.ForwardRPS < 0 {
		errs = append(errs, "transport.forward_rps must not be negative")
	}
	if c.Transport.IdleTimeout < 0 {
		errs = append(errs, "transport.idle_timeout must not be negative")
	}
	switch c.State.Backend {
	case "memory", "redis", "database":
	default:
		errs = append(errs, fmt.Sprintf("unknown state backend %q", c.State.Backend))
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfiguration,
			"config validation errors: "+strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
