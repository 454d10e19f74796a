package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/w1xm/k3ng_interface/internal/config"
	"go.uber.org/zap"
)

// Publisher sends status updates somewhere outside the daemon.
type Publisher interface {
	PublishStatus(status Status) error
}

type mqttPublisher struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

const mqttConnectTimeout = 5 * time.Second

func newMQTTPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*mqttPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("connecting to %s: timeout after %v", cfg.Broker, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Broker, err)
	}
	return &mqttPublisher{client: client, topic: cfg.Topic, qos: cfg.QoS, logger: logger}, nil
}

func (p *mqttPublisher) PublishStatus(status Status) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	// Retained, so new subscribers see the last position immediately.
	token := p.client.Publish(p.topic, p.qos, true, data)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.topic, err)
	}
	p.logger.Debug("status published", zap.String("topic", p.topic), zap.Int("size", len(data)))
	return nil
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(250)
}

// PublishLoop publishes every status change until ctx is done.
func (s *Server) PublishLoop(ctx context.Context, p Publisher) error {
	_, changed := s.Status()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
		var status Status
		status, changed = s.Status()
		if err := p.PublishStatus(status); err != nil {
			s.logger.Warn("publishing status", zap.Error(err))
		}
	}
}
