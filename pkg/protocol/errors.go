package protocol

import "fmt"

// CreationError is a validation rejection from the bot-creation protocol.
// Rejections are expected, user-facing outcomes: the Error string is the
// denial message sent back to the poking user, and the master never treats
// one as a fault. Use errors.As with the concrete types below to
// discriminate, or AsCreationError to test for the whole family.
type CreationError interface {
	error
	creationError()
}

// UnfoundUserError means the poking user could not be located in the
// channel tree, usually because the master is not subscribed there.
type UnfoundUserError struct{}

func (UnfoundUserError) Error() string {
	return "I can't find you in the channel list, " +
		"either I am not subscribed to your channel or this is a bug."
}

// MasterChannelError means the poke came from the master's own channel.
// A worker never colocates with the master.
type MasterChannelError struct {
	Master string
}

func (e MasterChannelError) Error() string {
	return fmt.Sprintf("Joining the channel of %q is not allowed", e.Master)
}

// MultipleBotsError means the target channel already hosts a worker.
type MultipleBotsError struct {
	Existing string
}

func (e MultipleBotsError) Error() string {
	return fmt.Sprintf("%q is already in this channel. "+
		"Multiple bots in one channel are not allowed.", e.Existing)
}

// OutOfNamesError means the display-name pool is exhausted.
type OutOfNamesError struct{}

func (OutOfNamesError) Error() string {
	return "Out of names. Too many bots are already connected!"
}

// OutOfIdentitiesError means the identity pool is exhausted.
type OutOfIdentitiesError struct{}

func (OutOfIdentitiesError) Error() string {
	return "Out of identities. Too many bots are already connected!"
}

func (UnfoundUserError) creationError()     {}
func (MasterChannelError) creationError()   {}
func (MultipleBotsError) creationError()    {}
func (OutOfNamesError) creationError()      {}
func (OutOfIdentitiesError) creationError() {}

// AsCreationError reports whether err is a creation rejection and returns
// it typed if so.
func AsCreationError(err error) (CreationError, bool) {
	ce, ok := err.(CreationError) //nolint:errorlint // rejections are never wrapped
	return ce, ok
}
