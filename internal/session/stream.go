package session

import (
	"github.com/crewdeck/relay/internal/registry"
	"github.com/crewdeck/relay/internal/topic"
)

// Emitter sends one frame of a streamed response.
type Emitter func(data interface{})

// Stream returns start/buffer/end emitters for one logical streamed
// response on (topic, id). Each emitter sends a namespaced event
// ("<base>:start", "<base>:buffer", "<base>:end") carrying an incremental
// payload; the end frame carries the terminal summary. This is how
// long-running generative responses reach the client as multiple frames
// instead of one.
func (s *Session) Stream(t topic.Topic, id, base string) (start, buffer, end Emitter) {
	emit := func(suffix string) Emitter {
		name := base + ":" + suffix
		return func(data interface{}) {
			s.Send(registry.Event{Topic: t, TopicID: id, Name: name, Data: data})
		}
	}
	return emit("start"), emit("buffer"), emit("end")
}
