// Package filter provides predicates that restrict the events a listener
// receives. Filters are pure functions over events; a listener delivers an
// event to its handlers only when every registered filter matches.
package filter
