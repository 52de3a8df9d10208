package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/nsqio/go-nsq"
)

type EventHandlerFunc func(event interface{}) error

type EventHandler struct {
	f EventHandlerFunc
	t reflect.Type
}

type EventBusConfig struct {
	NumHandlers int     `yaml:"NumHandlers"`
	ListenName  *string `yaml:"ListenName"`
}

// Publisher is the part of *nsq.Producer the bus needs.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type EventBus struct {
	app       *App
	publisher Publisher
	handlers  map[string][]EventHandler

	config *EventBusConfig
}

func NewEventBus(app *App) *EventBus {
	bus := &EventBus{
		app:      app,
		handlers: make(map[string][]EventHandler),
		config:   app.Config.EventBus,
	}
	if bus.config == nil {
		bus.config = &EventBusConfig{NumHandlers: 1}
	}

	if app.NsqProducer != nil {
		bus.publisher = app.NsqProducer
	}

	return bus
}

func (bus *EventBus) SetPublisher(p Publisher) {
	bus.publisher = p
}

type NsqEvent struct {
	Event   string          `json:"e"`
	Message json.RawMessage `json:"msg"`
}

func (bus *EventBus) SetListenName(name string) {
	bus.config.ListenName = &name
}

func (bus *EventBus) HandleMessage(m *nsq.Message) error {
	return bus.Dispatch(m.Body)
}

// Dispatch decodes an event envelope and runs the handlers registered for
// its type. Unknown event types are ignored.
func (bus *EventBus) Dispatch(body []byte) error {
	var e NsqEvent

	if err := json.Unmarshal(body, &e); err != nil {
		return err
	}

	handlers, ok := bus.handlers[e.Event]
	if !ok {
		return nil
	}

	//Type is the same for all
	msg := reflect.New(handlers[0].t).Interface()

	if err := json.Unmarshal(e.Message, msg); err != nil {
		return err
	}

	event := reflect.ValueOf(msg).Elem().Interface()

	for _, h := range handlers {
		if err := h.f(event); err != nil {
			bus.app.Logger.WithField("event", string(e.Message)).WithField("error", err).Error("Error handling event")
			return err
		}
	}

	return nil
}

// Listen consumes the configured topic until ctx is cancelled.
func (bus *EventBus) Listen(ctx context.Context) error {
	for k, handlers := range bus.handlers {
		bus.app.Logger.Debugf("%s has %d handlers registered", k, len(handlers))
	}

	config := bus.app.Config
	if config.NsqTopic == "" || config.NsqLookupd == "" {
		return fmt.Errorf("missing nsq topic or lookupd for eventbus")
	}

	application := filepath.Base(os.Args[0])
	if bus.config.ListenName != nil {
		application = *bus.config.ListenName
	}

	consumer, err := nsq.NewConsumer(config.NsqTopic, application, nsq.NewConfig())
	if err != nil {
		return err
	}
	consumer.SetLogger(nsqLogger{bus.app.Logger}, nsq.LogLevelWarning)

	consumer.AddConcurrentHandlers(bus, bus.config.NumHandlers)

	if err := consumer.ConnectToNSQLookupd(config.NsqLookupd); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-consumer.StopChan:
		return fmt.Errorf("nsq consumer stopped")
	}

	consumer.Stop()
	<-consumer.StopChan

	return nil
}

func (bus *EventBus) Handle(event interface{}, handler EventHandlerFunc) {
	event_id := getEventId(event)
	bus.app.Logger.Debugf("Registering event: %s", event_id)
	h := EventHandler{handler, reflect.TypeOf(event)}
	bus.handlers[event_id] = append(bus.handlers[event_id], h)
}

// Publish sends event to the configured topic. Without a publisher the
// event is only logged.
func (bus *EventBus) Publish(event interface{}) error {
	return bus.PublishToTopic(bus.app.Config.NsqTopic, event)
}

func (bus *EventBus) PublishToTopic(topic string, event interface{}) error {
	msg, err := Envelope(event)
	if err != nil {
		return err
	}

	if bus.publisher == nil {
		bus.app.Logger.WithField("event", string(msg)).Debug("No event publisher configured, dropping event")
		return nil
	}

	return bus.publisher.Publish(topic, msg)
}

// Envelope encodes event the way Dispatch expects it.
func Envelope(event interface{}) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return json.Marshal(NsqEvent{
		Event:   getEventId(event),
		Message: json.RawMessage(data),
	})
}

func getEventId(event interface{}) string {
	t := reflect.TypeOf(event)
	return t.String()
}
