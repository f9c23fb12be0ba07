package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path              string        `mapstructure:"path"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	SendBufferSize    int           `mapstructure:"send_buffer_size"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// GameConfig 比赛规则配置
type GameConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`        // 主循环间隔
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`   // 心跳扫码最大间隔
	ZoneGracePeriod    time.Duration `mapstructure:"zone_grace_period"`    // 出圈宽限时间
	ZoneWarningLead    time.Duration `mapstructure:"zone_warning_lead"`    // 缩圈预警提前量
	CheckInWindow      time.Duration `mapstructure:"check_in_window"`      // 签到窗口时长
	CheckInRadius      float64       `mapstructure:"check_in_radius"`      // 集合点签到半径（米）
	PregameCountdown   time.Duration `mapstructure:"pregame_countdown"`    // 开局前分散倒计时
	KillProximity      float64       `mapstructure:"kill_proximity"`       // 猎杀GPS距离阈值（米）
	RequireProximity   bool          `mapstructure:"require_proximity"`    // 是否强制近距离证明
	SpectatorFuzzGrid  float64       `mapstructure:"spectator_fuzz_grid"`  // 观众坐标量化网格（米）
	LocationStaleAfter time.Duration `mapstructure:"location_stale_after"` // 定位过期时间
}

// ChainConfig 链上结算配置
type ChainConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`        // 操作员桥接服务地址
	OperatorKey    string        `mapstructure:"operator_key"`    // 操作员私钥（hex）
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryTimes     int           `mapstructure:"retry_times"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	QueueSize      int           `mapstructure:"queue_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT              JWTConfig     `mapstructure:"jwt"`
	MessageFreshness time.Duration `mapstructure:"message_freshness"` // 签名消息时间戳允许偏差
	MessagePrefix    string        `mapstructure:"message_prefix"`    // 签名消息前缀
	OperatorUser     string        `mapstructure:"operator_user"`
	OperatorPassHash string        `mapstructure:"operator_pass_hash"` // argon2id编码
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		// 设置配置文件路径
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		// 设置环境变量前缀
		v.SetEnvPrefix("HUNT_GAME")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 设置默认值
		setDefaults(v)

		// 读取配置文件
		if err = v.ReadInConfig(); err != nil {
			// 如果配置文件不存在，使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		// 解析配置到结构体
		cfg = &Config{}
		err = v.Unmarshal(cfg)
	})

	return err
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// 数据库默认配置
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/hunt-game.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "info")
	v.SetDefault("database.auto_migrate", true)

	// WebSocket默认配置
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.enable_compression", true)

	// 比赛规则默认配置
	v.SetDefault("game.tick_interval", "1s")
	v.SetDefault("game.heartbeat_interval", "90s")
	v.SetDefault("game.zone_grace_period", "30s")
	v.SetDefault("game.zone_warning_lead", "60s")
	v.SetDefault("game.check_in_window", "15m")
	v.SetDefault("game.check_in_radius", 50.0)
	v.SetDefault("game.pregame_countdown", "2m")
	v.SetDefault("game.kill_proximity", 30.0)
	v.SetDefault("game.require_proximity", true)
	v.SetDefault("game.spectator_fuzz_grid", 100.0)
	v.SetDefault("game.location_stale_after", "60s")

	// 链上结算默认配置
	v.SetDefault("chain.endpoint", "http://127.0.0.1:8545/operator")
	v.SetDefault("chain.request_timeout", "30s")
	v.SetDefault("chain.retry_times", 5)
	v.SetDefault("chain.retry_base_delay", "2s")
	v.SetDefault("chain.queue_size", 256)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "hunt-game.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全默认配置
	v.SetDefault("security.jwt.expire_hours", 24)
	v.SetDefault("security.message_freshness", "5m")
	v.SetDefault("security.message_prefix", "hunt")
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载")
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt 获取整数配置
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool 获取布尔配置
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}
