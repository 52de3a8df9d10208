package app

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
)

type widgetMoved struct {
	Id   uint64 `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

type topicRecorder struct {
	topics []string
	bodies [][]byte
}

func (r *topicRecorder) Publish(topic string, body []byte) error {
	r.topics = append(r.topics, topic)
	r.bodies = append(r.bodies, body)
	return nil
}

func newTestApp() *App {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	app := &App{Config: DefaultConfig(), Logger: logger}
	app.Event = NewEventBus(app)
	return app
}

func TestEventBusRoundTrip(t *testing.T) {
	app := newTestApp()

	r := &topicRecorder{}
	app.Event.SetPublisher(r)

	var got []widgetMoved
	app.Event.Handle(widgetMoved{}, func(event interface{}) error {
		got = append(got, event.(widgetMoved))
		return nil
	})

	if err := app.Event.Publish(widgetMoved{Id: 9, From: "a", To: "b"}); err != nil {
		t.Fatal(err)
	}
	if len(r.topics) != 1 || r.topics[0] != "deskctl" {
		t.Fatalf("Unexpected topics %v", r.topics)
	}

	if err := app.Event.Dispatch(r.bodies[0]); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Id != 9 || got[0].To != "b" {
		t.Fatalf("Unexpected events %+v", got)
	}

	unknown, err := Envelope(struct{ X int }{1})
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Event.Dispatch(unknown); err != nil {
		t.Fatalf("Unhandled events must be ignored, got %v", err)
	}

	if err := app.Event.Dispatch([]byte("{")); err == nil {
		t.Fatal("Expected malformed envelope to fail")
	}
}

func TestEventBusHandlerError(t *testing.T) {
	app := newTestApp()

	failure := errors.New("handler failed")
	app.Event.Handle(widgetMoved{}, func(event interface{}) error {
		return failure
	})

	body, err := Envelope(widgetMoved{Id: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := app.Event.Dispatch(body); !errors.Is(err, failure) {
		t.Fatalf("Expected handler error, got %v", err)
	}
}

func TestEventBusWithoutPublisher(t *testing.T) {
	app := newTestApp()

	if err := app.Event.Publish(widgetMoved{Id: 1}); err != nil {
		t.Fatalf("Publishing without nsqd must not fail, got %v", err)
	}
}
