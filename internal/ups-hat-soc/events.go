package soc

import (
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
)

var addEvent = eventclient.AddEvent

// eventSink sends battery events to the event reporter. A failed send is
// logged and dropped.
type eventSink struct{}

func (eventSink) Report(eventType string, details map[string]interface{}) {
	log.Infof("Reporting %s event", eventType)
	err := addEvent(eventclient.Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
	})
	if err != nil {
		log.Errorf("Error sending %s event: %v", eventType, err)
	}
}
