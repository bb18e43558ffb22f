package eventbus

import (
	"log"
	"sync"

	"github.com/director74/fulfillment_engine/pkg/messaging"
)

// Subscriber получает события шины через буферизованный канал
type Subscriber struct {
	name string
	ch   chan Event
}

// Events возвращает канал событий подписчика
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// EventBus рассылает события конвейера подписчикам. Публикация никогда
// не блокируется: если буфер подписчика заполнен, событие для него
// отбрасывается, а ошибка подписчика не влияет на конвейер.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []*Subscriber
	bufferSize  int
	logger      *log.Logger
}

// NewEventBus создает новую шину событий
func NewEventBus(bufferSize int, logger *log.Logger) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[EventBus] ", log.LstdFlags)
	}

	return &EventBus{
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscribe регистрирует нового подписчика
func (b *EventBus) Subscribe(name string) *Subscriber {
	sub := &Subscriber{
		name: name,
		ch:   make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	return sub
}

// Unsubscribe удаляет подписчика и закрывает его канал
func (b *EventBus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subscribers {
		if s == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// Publish рассылает событие всем подписчикам без ожидания
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			// Подписчик не успевает, событие для него пропускается
			b.logger.Printf("подписчик %s переполнен, событие %s (%s) пропущено",
				sub.name, event.Type, event.ID)
		}
	}
}

// Close закрывает каналы всех подписчиков и очищает шину
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
}

// BridgeToBroker запускает подписчика, транслирующего события в exchange
// брокера сообщений (для дашбордов и внешних потребителей)
func (b *EventBus) BridgeToBroker(publisher messaging.MessagePublisher, exchange string) *Subscriber {
	sub := b.Subscribe("broker-bridge")

	go func() {
		for event := range sub.Events() {
			if err := publisher.PublishMessage(exchange, string(event.Type), event); err != nil {
				b.logger.Printf("ошибка трансляции события %s в %s: %v", event.ID, exchange, err)
			}
		}
	}()

	return sub
}
