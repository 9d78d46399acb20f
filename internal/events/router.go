package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrUnknownType — событие нераспознанного типа. Не глотается молча:
	// консьюмер отправляет такое сообщение в DLQ.
	ErrUnknownType = errors.New("unknown event type")
	// ErrValidation — payload не проходит нормализацию схемы.
	ErrValidation = errors.New("event validation failed")
)

// Envelope — входящее сообщение брокера до нормализации.
type Envelope struct {
	// Type — тип из заголовков брокера; может быть пустым.
	Type string
	// RoutingKey — ключ маршрутизации из фрейма брокера.
	RoutingKey    string
	MessageID     string
	EventID       string
	CorrelationID string
	Payload       []byte
}

// Handler обрабатывает одно нормализованное событие.
type Handler func(ctx context.Context, env Envelope) error

// Router сопоставляет входящие события обработчикам.
// Тип определяется по порядку: явное поле type в payload, переписанный
// rawType, ключ маршрутизации брокера.
type Router struct {
	handlers map[string]Handler
	logger   *log.Entry
}

// NewRouter создаёт роутер событий.
func NewRouter(logger *log.Entry) *Router {
	if logger == nil {
		logger = log.WithField("component", "event-router")
	}
	return &Router{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register привязывает обработчик к типу события.
func (r *Router) Register(eventType string, handler Handler) {
	r.handlers[eventType] = handler
}

// Registered возвращает список типов с обработчиками.
func (r *Router) Registered() []string {
	types := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		types = append(types, eventType)
	}
	return types
}

// Dispatch определяет тип события и вызывает обработчик.
// Нераспознанный тип — ошибка ErrUnknownType, сообщение уходит в DLQ.
func (r *Router) Dispatch(ctx context.Context, env Envelope) error {
	eventType := ResolveType(env.Payload, env.Type, env.RoutingKey)
	if eventType == "" {
		return fmt.Errorf("%w: no type field, rawType or routing key", ErrUnknownType)
	}

	handler, ok := r.handlers[eventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, eventType)
	}

	r.logger.WithFields(log.Fields{
		"event_type":     eventType,
		"message_id":     env.MessageID,
		"correlation_id": env.CorrelationID,
	}).Debug("dispatching event")

	env.Type = eventType
	return handler(ctx, env)
}

// ResolveType определяет тип события: явный type, rawType, routing key.
func ResolveType(payload []byte, headerType, routingKey string) string {
	var probe struct {
		Type    string `json:"type"`
		RawType string `json:"rawType"`
	}
	if err := json.Unmarshal(payload, &probe); err == nil {
		if probe.Type != "" {
			return probe.Type
		}
		if probe.RawType != "" {
			return probe.RawType
		}
	}
	if headerType != "" {
		return headerType
	}
	return routingKey
}
