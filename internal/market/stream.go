package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"alpha-tick-bot-go/internal/models"
)

// KlineStream delivers closed bars from the Binance futures kline stream.
// It keeps one daemon goroutine alive across reconnects and pushes every
// closed candle into Bars(); the consumer decides what to do with them.
type KlineStream struct {
	wsBaseURL string
	symbol    string
	interval  string
	logger    *zap.SugaredLogger

	bars     chan models.Bar
	stopChan chan struct{}
}

// klineEvent is the subset of the stream payload we care about.
type klineEvent struct {
	Kline struct {
		StartTime int64       `json:"t"`
		Open      json.Number `json:"o"`
		High      json.Number `json:"h"`
		Low       json.Number `json:"l"`
		Close     json.Number `json:"c"`
		Volume    json.Number `json:"v"`
		Closed    bool        `json:"x"`
	} `json:"k"`
}

// NewKlineStream creates a stream for one symbol/interval pair.
func NewKlineStream(wsBaseURL, symbol, interval string, logger *zap.SugaredLogger) *KlineStream {
	return &KlineStream{
		wsBaseURL: wsBaseURL,
		symbol:    symbol,
		interval:  interval,
		logger:    logger,
		bars:      make(chan models.Bar, 16),
		stopChan:  make(chan struct{}),
	}
}

// Bars returns the channel of closed bars.
func (ks *KlineStream) Bars() <-chan models.Bar { return ks.bars }

// Start launches the connect/read/reconnect loop.
func (ks *KlineStream) Start() {
	go ks.loop()
}

// Stop terminates the stream. Safe to call once.
func (ks *KlineStream) Stop() {
	close(ks.stopChan)
}

func (ks *KlineStream) loop() {
	url := fmt.Sprintf("%s/ws/%s@kline_%s", ks.wsBaseURL, strings.ToLower(ks.symbol), ks.interval)
	for {
		select {
		case <-ks.stopChan:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			ks.logger.Warnf("kline stream dial failed: %v, retrying in 5s", err)
			time.Sleep(5 * time.Second)
			continue
		}
		ks.logger.Infof("kline stream connected: %s@kline_%s", ks.symbol, ks.interval)

		if err := ks.readMessages(conn); err != nil {
			ks.logger.Warnf("kline stream read error: %v", err)
		}
		conn.Close()

		select {
		case <-ks.stopChan:
			return
		default:
			ks.logger.Info("kline stream disconnected, reconnecting in 5s...")
			time.Sleep(5 * time.Second)
		}
	}
}

// readMessages blocks on one connection until it breaks. Keepalive: pongs
// extend the read deadline, pings go out at 90% of the pong window.
func (ks *KlineStream) readMessages(conn *websocket.Conn) error {
	const (
		pongWait   = 60 * time.Second
		pingPeriod = (pongWait * 9) / 10
	)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()
	pingStop := make(chan struct{})
	defer close(pingStop)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-pingStop:
				return
			case <-ks.stopChan:
				return
			}
		}
	}()

	for {
		select {
		case <-ks.stopChan:
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				return fmt.Errorf("read message: %w", err)
			}

			var event klineEvent
			if err := json.Unmarshal(message, &event); err != nil {
				ks.logger.Warnf("unparsable kline event: %v", err)
				continue
			}
			if !event.Kline.Closed {
				continue // only completed candles drive updates
			}

			bar, err := ks.toBar(event)
			if err != nil {
				ks.logger.Warnf("bad kline payload: %v", err)
				continue
			}
			select {
			case ks.bars <- bar:
			case <-ks.stopChan:
				return nil
			}
		}
	}
}

func (ks *KlineStream) toBar(event klineEvent) (models.Bar, error) {
	k := event.Kline
	open, err := k.Open.Float64()
	if err != nil {
		return models.Bar{}, err
	}
	high, err := k.High.Float64()
	if err != nil {
		return models.Bar{}, err
	}
	low, err := k.Low.Float64()
	if err != nil {
		return models.Bar{}, err
	}
	closePx, err := k.Close.Float64()
	if err != nil {
		return models.Bar{}, err
	}
	volume, err := strconv.ParseFloat(k.Volume.String(), 64)
	if err != nil {
		return models.Bar{}, err
	}
	return models.Bar{
		OpenTime: time.UnixMilli(k.StartTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePx,
		Volume:   volume,
	}, nil
}
