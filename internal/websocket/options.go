package websocket

import (
	"time"

	"github.com/thereayou/livechat/internal/config"
)

type Options struct {
	// Время ожидания записи
	WriteWait time.Duration
	// Время ожидания pong от клиента, после него соединение считается мёртвым
	PongWait time.Duration
	// Интервал отправки ping
	PingPeriod time.Duration
	// Максимальный размер входящего кадра
	MaxMessageSize int64
	SendBuffer     int

	// Интервал проверки зависших соединений
	SweepInterval time.Duration

	SendRate  float64
	SendBurst int

	TypingTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 512 * 1024,
		SendBuffer:     256,
		SweepInterval:  30 * time.Second,
		SendRate:       5,
		SendBurst:      10,
		TypingTimeout:  3 * time.Second,
	}
}

func OptionsFromConfig(ws config.WebSocketConfig, chat config.ChatConfig) Options {
	o := DefaultOptions()
	if ws.WriteWait > 0 {
		o.WriteWait = ws.WriteWait
	}
	if ws.PongWait > 0 {
		o.PongWait = ws.PongWait
		o.SweepInterval = ws.PongWait / 2
	}
	if ws.PingPeriod > 0 {
		o.PingPeriod = ws.PingPeriod
	}
	if ws.MaxMessageSize > 0 {
		o.MaxMessageSize = ws.MaxMessageSize
	}
	if ws.SendBuffer > 0 {
		o.SendBuffer = ws.SendBuffer
	}
	if chat.SendRate > 0 {
		o.SendRate = chat.SendRate
	}
	if chat.SendBurst > 0 {
		o.SendBurst = chat.SendBurst
	}
	if chat.TypingTimeout > 0 {
		o.TypingTimeout = chat.TypingTimeout
	}
	return o
}
