package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Camera  CameraConfig  `yaml:"camera"`
	Storage StorageConfig `yaml:"storage"`
	Stream  StreamConfig  `yaml:"stream"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// カメラドライバー
const (
	DriverV4L2 = "v4l2"
	DriverMock = "mock"
)

// CameraConfig はカメラ関連の設定
type CameraConfig struct {
	Driver   string        `yaml:"driver"`   // v4l2 または mock
	Device   string        `yaml:"device"`   // デバイスパス (例: /dev/video0)
	Width    int           `yaml:"width"`    // 画像幅
	Height   int           `yaml:"height"`   // 画像高さ
	FPS      int           `yaml:"fps"`      // キャプチャループの周期
	Rotation int           `yaml:"rotation"` // 0, 90, 180, 270
	Quality  int           `yaml:"quality"`  // JPEG品質 (2-31、小さいほど高画質)
	Warmup   time.Duration `yaml:"warmup"`   // 開始後の待ち時間
}

// ストアの種類
const (
	BackendFile   = "file"
	BackendMemory = "memory"
)

// StorageConfig は共有ストアの設定
type StorageConfig struct {
	WorkDir string `yaml:"work_dir"` // センチネル・フレーム・録画を置くディレクトリ
	Backend string `yaml:"backend"`  // file または memory (単一プロセスのみ)
}

// StreamConfig は配信の設定
type StreamConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval"` // フレーム間の待ち時間
	PollInterval  time.Duration `yaml:"poll_interval"`  // ロック待ちの再確認間隔
}

// MQTTConfig は状態通知の設定。Broker が空なら通知しない
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text または json
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Camera: CameraConfig{
			Driver:   DriverV4L2,
			Device:   "/dev/video0",
			Width:    320,
			Height:   240,
			FPS:      20,
			Rotation: 180,
			Quality:  2,
			Warmup:   3 * time.Second,
		},
		Storage: StorageConfig{
			WorkDir: "/tmp",
			Backend: BackendFile,
		},
		Stream: StreamConfig{
			FrameInterval: 500 * time.Millisecond,
			PollInterval:  10 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Topic: "kanshi/camera",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load は設定を読み込む
//
// デフォルト値、CONFIG_FILE で指定されたYAML、環境変数の順に上書きする。
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile は指定したYAMLファイルから設定を読み込む。path が空ならファイルは読まない
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Storage.WorkDir = getEnvOrDefault("KANSHI_WORK_DIR", c.Storage.WorkDir)
	c.Storage.Backend = getEnvOrDefault("KANSHI_STORE", c.Storage.Backend)
	c.Camera.Driver = getEnvOrDefault("CAMERA_DRIVER", c.Camera.Driver)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.FPS = getEnvAsIntOrDefault("CAMERA_FPS", c.Camera.FPS)
	c.MQTT.Broker = getEnvOrDefault("MQTT_BROKER", c.MQTT.Broker)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	switch c.Camera.Driver {
	case DriverV4L2, DriverMock:
	default:
		return fmt.Errorf("未対応のカメラドライバー: %q", c.Camera.Driver)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 {
		return fmt.Errorf("無効なFPS: %d", c.Camera.FPS)
	}
	if c.Camera.Rotation%90 != 0 || c.Camera.Rotation < 0 || c.Camera.Rotation >= 360 {
		return fmt.Errorf("無効な回転角度: %d", c.Camera.Rotation)
	}
	if c.Camera.Warmup < 0 {
		return fmt.Errorf("ウォームアップ時間が負の値です: %s", c.Camera.Warmup)
	}

	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.WorkDir == "" {
			return fmt.Errorf("作業ディレクトリが設定されていません")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("未対応のストア: %q", c.Storage.Backend)
	}

	if c.Stream.FrameInterval < 0 || c.Stream.PollInterval < 0 {
		return fmt.Errorf("配信間隔が負の値です")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("無効なQoS: %d", c.MQTT.QoS)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("未対応のログ形式: %q", c.Log.Format)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
