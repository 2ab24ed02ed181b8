// Package channel defines the correlation channel used to drive an OAuth
// popup flow between the designer bridge and the party that can actually
// open windows (the extension host or a real browser).
package channel

import (
	"context"
	"errors"
)

// Command identifies the kind of message carried on a channel.
type Command string

const (
	// CommandOpenLoginPopup asks the remote party to display the authorization URL.
	CommandOpenLoginPopup Command = "OpenLoginPopup"
	// CommandLoginComplete reports a successful authorization.
	CommandLoginComplete Command = "LoginComplete"
	// CommandLoginCancelled reports that the user or the remote declined.
	CommandLoginCancelled Command = "LoginCancelled"
	// CommandLoginTimeOut is an explicit timeout notice from the remote party.
	CommandLoginTimeOut Command = "LoginTimeOut"

	// CommandStartLogin is sent by the designer UI to the bridge to request a
	// new login attempt for the given URL.
	CommandStartLogin Command = "StartLogin"
	// CommandLoginResult is sent by the bridge back to the designer UI once an
	// attempt has settled.
	CommandLoginResult Command = "LoginResult"
)

// Terminal reports whether the command ends a login attempt.
func (c Command) Terminal() bool {
	switch c {
	case CommandLoginComplete, CommandLoginCancelled, CommandLoginTimeOut:
		return true
	default:
		return false
	}
}

// Message is the wire payload exchanged over a Channel.
//
// ID is the correlation id of the login attempt. It is always set on
// outbound messages but may be missing on inbound ones; hosts that predate
// the field never echo it.
type Message struct {
	Command           Command `json:"command"`
	ID                string  `json:"id,omitempty"`
	URL               string  `json:"url,omitempty"`
	RedirectURL       string  `json:"redirectUrl,omitempty"`
	ConsentServerCode string  `json:"consentServerCode,omitempty"`
	Error             string  `json:"error,omitempty"`
}

// OpenPopup builds the outbound instruction to show url for attempt id.
func OpenPopup(id, url string) Message {
	return Message{Command: CommandOpenLoginPopup, ID: id, URL: url}
}

// Complete builds a LoginComplete message.
func Complete(id, redirectURL, consentCode string) Message {
	return Message{
		Command:           CommandLoginComplete,
		ID:                id,
		RedirectURL:       redirectURL,
		ConsentServerCode: consentCode,
	}
}

// Cancelled builds a LoginCancelled message.
func Cancelled(id string) Message {
	return Message{Command: CommandLoginCancelled, ID: id}
}

// TimedOut builds a LoginTimeOut message.
func TimedOut(id string) Message {
	return Message{Command: CommandLoginTimeOut, ID: id}
}

// LoginResult reports a settled attempt back to the UI. errMsg is empty on
// success.
func LoginResult(id, errMsg, redirectURL, consentCode string) Message {
	return Message{
		Command:           CommandLoginResult,
		ID:                id,
		Error:             errMsg,
		RedirectURL:       redirectURL,
		ConsentServerCode: consentCode,
	}
}

// Handler receives inbound messages.
type Handler func(Message)

// Channel is a duplex, best-effort message transport.
type Channel interface {
	// Send delivers msg to the remote party. There is no acknowledgement.
	Send(ctx context.Context, msg Message) error

	// OnMessage registers h for every inbound message, in arrival order.
	// The returned func unregisters h and may be called more than once.
	OnMessage(h Handler) (unregister func())

	// Done is closed once the transport is closed, for whatever reason.
	Done() <-chan struct{}

	// Close releases the transport. It is safe to call more than once.
	Close() error
}

// ErrClosed is returned by Send after the channel has been closed.
var ErrClosed = errors.New("channel closed")
