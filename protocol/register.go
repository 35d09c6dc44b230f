package protocol

import "github.com/rsbus/rsbus/converter"

// The protocol messages that travel as event payloads (introspection
// announcements, recorded event batches) get converters in the global
// registry so any transport can carry them.
func init() {
	for _, c := range []converter.Converter{
		converter.NewMessage(func() *Hello { return new(Hello) }),
		converter.NewMessage(func() *Bye { return new(Bye) }),
		converter.NewMessage(func() *EventsByScopeMap { return new(EventsByScopeMap) }),
	} {
		if err := converter.Register(c, false); err != nil {
			panic(err)
		}
	}
}
