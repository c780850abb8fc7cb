package events

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MQTTConfig はMQTT接続設定
type MQTTConfig struct {
	Broker   string // host:port または tcp://host:port
	ClientID string
	Topic    string // イベントは {Topic}/{type} に送信される
	QoS      byte
	Timeout  time.Duration // 接続1回・送信1回あたりの待ち時間

	RetryInterval time.Duration // 接続に失敗したときの再試行間隔
}

// MQTTPublisher はイベントをMQTTブローカーへ送信する
type MQTTPublisher struct {
	cfg    MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// BrokerURL はスキームが無ければ tcp:// を補う
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// NewMQTTPublisher はブローカーに接続するPublisherを作成する
//
// Timeout までに接続できなくてもエラーにはせず、未接続のまま返す。
// 接続はバックグラウンドで再試行され、つながった時点から送信される。
// 不要になったら必ず Close すること。
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "kanshi-" + uuid.NewString()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 2 * time.Second
	}

	p := &MQTTPublisher{cfg: cfg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetConnectRetryInterval(cfg.RetryInterval)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.setConnected(true)
		log.WithFields(log.Fields{"broker": cfg.Broker, "client_id": cfg.ClientID}).Info("MQTTブローカーに接続しました")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		log.WithError(err).WithField("broker", cfg.Broker).Warn("MQTT接続が切れました。再接続を待ちます")
	})

	p.client = mqtt.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		log.WithField("broker", cfg.Broker).Warn("MQTTブローカーに接続できません。バックグラウンドで再試行します")
		return p, nil
	}
	if err := token.Error(); err != nil {
		p.client.Disconnect(0)
		return nil, errors.Wrap(err, "MQTT接続に失敗")
	}
	p.setConnected(true)

	return p, nil
}

// Topic はイベント種別ごとのトピックを返す
func (p *MQTTPublisher) Topic(t Type) string {
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(p.cfg.Topic, "/"), t)
}

// Publish はイベントをJSONで送信する
func (p *MQTTPublisher) Publish(ev Event) error {
	if !p.isConnected() {
		p.countError()
		return errors.New("MQTT未接続")
	}

	payload, err := ev.JSON()
	if err != nil {
		p.countError()
		return errors.Wrap(err, "イベントのJSON化に失敗")
	}

	topic := p.Topic(ev.Type)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		p.countError()
		return errors.Errorf("MQTT送信がタイムアウトしました: %s", topic)
	}
	if err := token.Error(); err != nil {
		p.countError()
		return errors.Wrapf(err, "MQTT送信に失敗: %s", topic)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	log.WithFields(log.Fields{"topic": topic, "size": len(payload)}).Debug("イベントを送信しました")
	return nil
}

// Close はブローカーから切断する。接続の再試行中ならそれも止める
func (p *MQTTPublisher) Close() error {
	if p.client != nil {
		p.client.Disconnect(250)
		log.Info("MQTTブローカーから切断しました")
	}
	p.setConnected(false)
	return nil
}

// Connected はブローカーに接続済みかを返す
func (p *MQTTPublisher) Connected() bool {
	return p.isConnected()
}

// Stats は送信数とエラー数を返す
func (p *MQTTPublisher) Stats() (published, failed uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published, p.errors
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}
